package korpus

import "context"

// Embedder turns text into vectors. Configure one with WithEmbedder to
// ingest and query by text alone; the database never embeds on its own.
//
// Embed must return exactly one vector per input text, in input order, and
// every vector must match the dimension of the target collection.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
