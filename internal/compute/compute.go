// Package compute is the Compute Pipeline (§4.2): reads files, chunks
// them, embeds the chunks, and yields one row per chunk plus an
// end-of-file marker, preserving per-file chunk ordering.
package compute

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jamaly87/vectorindex/internal/chunker"
	"github.com/jamaly87/vectorindex/internal/embedprovider"
	"github.com/jamaly87/vectorindex/internal/models"
)

// maxChunksPerFile bounds embedding cost per file (§4.2 step 3).
const maxChunksPerFile = 20

// FileReader abstracts reading workspace file contents (§6).
type FileReader interface {
	ReadFile(path string) (string, error)
}

// Item is one (path, cacheKey) unit of compute work.
type Item = models.FileVersion

// ChunkRow pairs a vector-table row with the cache metadata needed to
// durably persist it (§4.2 step 5 tuple).
type ChunkRow struct {
	Row       models.ChunkRow
	StartLine int
	EndLine   int
	Contents  string
	Desc      string
}

// Event is one element of the pipeline's lazy output sequence: either a
// chunk row (EndOfFile == false), an end-of-file marker for Item, or a
// fatal error. Err is only ever set on the last Event the channel
// delivers — the provider violated its embedding contract by returning
// an undefined vector for a chunk it accepted (§7), which is fatal to
// the whole update call rather than an ordinary per-file skip.
type Event struct {
	Progress  float64
	Row       ChunkRow
	EndOfFile bool
	Item      Item
	Err       error
}

// Pipeline drives chunking and embedding for a batch of items.
type Pipeline struct {
	reader   FileReader
	chunker  chunker.Chunker
	provider embedprovider.Provider
}

// NewPipeline wires the three external collaborators the pipeline needs.
func NewPipeline(reader FileReader, ck chunker.Chunker, provider embedprovider.Provider) *Pipeline {
	return &Pipeline{reader: reader, chunker: ck, provider: provider}
}

// Run processes items in order and streams Events on the returned
// channel, closing it once every item (or the context) has been
// consumed. A per-file failure abandons that file silently (no rows, no
// end-of-file marker) and moves on to the next item (§4.2, §7). A fatal
// error — the embedding provider returning an undefined vector element —
// is delivered as a final Event with Err set, and Run stops processing
// further items.
func (p *Pipeline) Run(ctx context.Context, items []Item) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for i, item := range items {
			select {
			case <-ctx.Done():
				return
			default:
			}
			ok, fatal := p.processFile(ctx, i, len(items), item, out)
			if fatal != nil {
				select {
				case out <- Event{Err: fatal}:
				case <-ctx.Done():
				}
				return
			}
			if !ok {
				continue
			}
		}
	}()
	return out
}

// processFile returns ok == true when item was fully processed (rows and
// an end-of-file marker sent). ok == false with fatal == nil is an
// ordinary recoverable skip; ok == false with fatal != nil means the
// caller must abandon the whole Run call.
func (p *Pipeline) processFile(ctx context.Context, i, total int, item Item, out chan<- Event) (bool, error) {
	contents, err := p.reader.ReadFile(item.Path)
	if err != nil {
		return false, nil
	}

	chunkCh, err := p.chunker.Chunk(ctx, chunker.ChunkRequest{
		Path:         item.Path,
		Contents:     contents,
		MaxChunkSize: p.provider.MaxChunkSize(),
		Digest:       item.CacheKey,
	})
	if err != nil {
		return false, nil
	}

	var chunks []models.Chunk
	for c := range chunkCh {
		if c.Err != nil {
			return false, nil
		}
		if c.Chunk.Content == "" {
			return false, nil
		}
		chunks = append(chunks, c.Chunk)
	}
	if len(chunks) == 0 || len(chunks) > maxChunksPerFile {
		return false, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.provider.Embed(ctx, texts)
	if err != nil {
		return false, nil
	}
	if len(vectors) != len(chunks) {
		return false, fmt.Errorf("embedding provider returned %d vectors for %d chunks in %s", len(vectors), len(chunks), item.Path)
	}
	for _, v := range vectors {
		if v == nil {
			return false, fmt.Errorf("embedding provider returned an undefined vector for a chunk in %s", item.Path)
		}
	}

	for j, c := range chunks {
		progress := (float64(i) + float64(j)/float64(len(chunks))) / float64(total)
		row := ChunkRow{
			Row: models.ChunkRow{
				UUID:     uuid.New().String(),
				Path:     item.Path,
				CacheKey: item.CacheKey,
				Vector:   vectors[j],
			},
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Contents:  c.Content,
			Desc:      fmt.Sprintf("%s [%d:%d]", item.Path, c.StartLine, c.EndLine),
		}
		select {
		case out <- Event{Progress: progress, Row: row}:
		case <-ctx.Done():
			return false, nil
		}
	}

	select {
	case out <- Event{EndOfFile: true, Item: item, Progress: float64(i+1) / float64(total)}:
	case <-ctx.Done():
		return false, nil
	}
	return true, nil
}
