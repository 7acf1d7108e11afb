package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
)

// NewEmbeddingProvider builds the embedder selected by EMBED_PROVIDER. The
// returned closer releases provider resources and is never nil.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, io.Closer, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "openai", "":
		o, err := NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return o, closerFunc(func() error { return nil }), nil
	}
	return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
