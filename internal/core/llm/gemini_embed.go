package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Kaleem/internal/core"
)

// geminiBatchLimit is the most contents BatchEmbedContents accepts per call.
const geminiBatchLimit = 100

// GeminiEmbedder embeds chunk texts with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	name   string
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	em := cl.EmbeddingModel(modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &GeminiEmbedder{client: cl, model: em, name: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts sends texts in batches of at most geminiBatchLimit and returns
// one vector per text, in input order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range batchRanges(len(texts), geminiBatchLimit) {
		batch := g.model.NewBatch()
		for _, t := range texts[r[0]:r[1]] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := g.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed %d-%d with %s: %w", r[0], r[1], g.name, err)
		}
		if len(resp.Embeddings) != r[1]-r[0] {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), r[1]-r[0])
		}
		for idx, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("gemini returned an empty embedding for text %d", r[0]+idx)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// batchRanges splits [0, n) into half-open ranges of at most size elements.
func batchRanges(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
