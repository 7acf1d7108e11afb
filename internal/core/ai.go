package core

import "context"

// EmbeddingProvider turns texts into fixed-length vectors, one per input, in order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
