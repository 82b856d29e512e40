package chunker

import (
	"context"
	"strings"

	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// LineChunker splits a file into overlapping line-based windows bounded by
// a token budget, for languages the AST chunker doesn't understand. It is
// also the AST chunker's fallback on parse failure.
type LineChunker struct {
	maxLines     int
	overlapLines int
	encoding     *tiktoken.Tiktoken
}

// NewLineChunker builds a LineChunker. If the cl100k_base encoding can't be
// loaded, token counts degrade to a rune-count approximation.
func NewLineChunker(maxLines, overlapLines int) *LineChunker {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &LineChunker{maxLines: maxLines, overlapLines: overlapLines, encoding: enc}
}

func (lc *LineChunker) tokenCount(s string) int {
	if lc.encoding == nil {
		return len([]rune(s)) / 4
	}
	return len(lc.encoding.Encode(s, nil, nil))
}

// Chunk splits req.Contents into line windows of at most maxLines lines,
// further bounded by req.MaxChunkSize tokens, each overlapping the
// previous window by overlapLines lines.
func (lc *LineChunker) Chunk(ctx context.Context, req ChunkRequest) (<-chan ChunkOrErr, error) {
	out := make(chan ChunkOrErr)
	go func() {
		defer close(out)

		lines := strings.Split(req.Contents, "\n")
		if len(lines) == 0 {
			return
		}

		index := 0
		emit := func(startLine int, window []string) bool {
			content := strings.Join(window, "\n")
			if strings.TrimSpace(content) == "" {
				return true
			}
			select {
			case out <- ChunkOrErr{Chunk: models.Chunk{
				Digest:    req.Digest,
				Filepath:  req.Path,
				StartLine: startLine,
				EndLine:   startLine + len(window) - 1,
				Content:   content,
				Index:     index,
			}}:
				index++
				return true
			case <-ctx.Done():
				return false
			}
		}

		maxLines := lc.maxLines
		if maxLines <= 0 {
			maxLines = 25
		}
		overlap := lc.overlapLines
		if overlap < 0 || overlap >= maxLines {
			overlap = 0
		}

		if len(lines) <= maxLines {
			emit(1, lines)
			return
		}

		start := 0
		for start < len(lines) {
			end := start + maxLines
			if end > len(lines) {
				end = len(lines)
			}
			window := lines[start:end]

			// shrink the window further if it still exceeds the token budget
			if req.MaxChunkSize > 0 {
				for len(window) > 1 && lc.tokenCount(strings.Join(window, "\n")) > req.MaxChunkSize {
					window = window[:len(window)-1]
				}
			}

			if !emit(start+1, window) {
				return
			}

			next := start + len(window) - overlap
			if next <= start {
				next = start + len(window)
			}
			start = next
		}
	}()
	return out, nil
}
