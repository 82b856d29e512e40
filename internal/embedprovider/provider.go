// Package embedprovider defines the EmbeddingProvider collaborator (§6) and
// its concrete Ollama binding.
package embedprovider

import "context"

// Provider turns chunk text into vectors. Implementations are responsible
// for any batching, truncation, or normalization their backing model needs.
type Provider interface {
	// ID names the embedding model. A chunk's cacheKey does not include
	// it: cacheKeys hash file contents only.
	ID() string

	// MaxChunkSize is the largest text the provider can embed in one call,
	// in bytes. Callers chunk to fit this bound before calling Embed.
	MaxChunkSize() int

	// Embed returns one vector per text, in the same order. An error
	// aborts the whole batch: the compute pipeline treats this as "abandon
	// this file" (§7).
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
