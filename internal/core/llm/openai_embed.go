package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/Kaleem/internal/core"
)

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint
// (a local sentence-transformers server, vLLM, or OpenAI itself).
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(baseURL, token, model string) (*OpenAIEmbedder, error) {
	if token == "" {
		// Local embedding servers accept any bearer token.
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: emb, model: model}, nil
}

// EmbedTexts returns one vector per input text, in input order.
func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(texts), o.model, err)
	}
	return vecs, nil
}
