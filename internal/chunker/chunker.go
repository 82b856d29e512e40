// Package chunker splits source file contents into retrieval-sized
// fragments (§4.2, §6). The AST-aware path understands function/class
// boundaries for Java, JavaScript and TypeScript; every other language
// falls back to line-based chunking with a token budget.
package chunker

import (
	"context"

	"github.com/jamaly87/vectorindex/internal/models"
)

// ChunkRequest is one file's worth of work for a Chunker.
type ChunkRequest struct {
	Path         string
	Contents     string
	MaxChunkSize int // provider's size bound: ASTChunker truncates to this many bytes, LineChunker treats it as a token budget
	Digest       string
}

// ChunkOrErr carries either a chunk or a terminal per-file error over the
// channel Chunk returns — the compute pipeline abandons the whole file on
// the first error (§7).
type ChunkOrErr struct {
	Chunk models.Chunk
	Err   error
}

// Chunker produces a lazy sequence of chunks for one file. The channel is
// closed once every chunk (or a terminal error) has been sent.
type Chunker interface {
	Chunk(ctx context.Context, req ChunkRequest) (<-chan ChunkOrErr, error)
}
