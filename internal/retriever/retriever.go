// Package retriever is the Retriever (§4.6): it embeds a query once,
// fans out a per-tag vector search, merges the results by ascending
// distance, and joins the survivors against the embedding cache to
// recover their source text.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/embedprovider"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/tagutil"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
)

// remoteSearchLimit bounds per-tag search width when filterDirectory is
// set, since the LIKE predicate is assumed to be post-filtered (§4.6
// step 3).
const remoteSearchLimit = 300

// BranchDirectory identifies a tag's (branch, directory) pair; Retrieve
// completes it into a full Tag using artifactID.
type BranchDirectory struct {
	Branch    string
	Directory string
}

// Retriever joins vector search against the durable embedding cache.
type Retriever struct {
	tables   *vectorstore.Manager
	cache    *embedcache.Cache
	provider embedprovider.Provider
	logger   *slog.Logger
}

// New wires the Retriever's collaborators.
func New(tables *vectorstore.Manager, cache *embedcache.Cache, provider embedprovider.Provider, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{tables: tables, cache: cache, provider: provider, logger: logger}
}

// Retrieve embeds queryText once and searches every tag in tags, merging
// results ascending by distance and truncating to n (§4.6).
func (r *Retriever) Retrieve(ctx context.Context, queryText string, n int, tags []BranchDirectory, artifactID, filterDirectory string) ([]models.Chunk, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	vectors, err := r.provider.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVector := vectors[0]

	limit := n
	var pathLike string
	if filterDirectory != "" {
		limit = remoteSearchLimit
		pathLike = filterDirectory
	}

	var merged []vectorstore.ScoredRow
	for _, bd := range tags {
		tableName := tagutil.Sanitize(models.Tag{Branch: bd.Branch, Directory: bd.Directory, ArtifactID: artifactID})
		table, err := r.tables.Open(ctx, tableName)
		if err != nil {
			r.logger.Warn("retrieve: table missing for tag", "table", tableName, "error", err)
			continue
		}

		rows, err := table.Search(ctx, queryVector, vectorstore.SearchOptions{Limit: limit, PathLike: pathLike})
		if err != nil {
			r.logger.Warn("retrieve: search failed for tag", "table", tableName, "error", err)
			continue
		}
		merged = append(merged, rows...)
	}

	if len(merged) == 0 {
		return nil, nil
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > n {
		merged = merged[:n]
	}

	uuids := make([]string, len(merged))
	for i, row := range merged {
		uuids[i] = row.UUID
	}
	records, err := r.cache.SelectByUUIDs(uuids)
	if err != nil {
		return nil, fmt.Errorf("failed to join retrieved rows against the embedding cache: %w", err)
	}
	byUUID := make(map[string]models.CacheRecord, len(records))
	for _, rec := range records {
		byUUID[rec.UUID] = rec
	}

	chunks := make([]models.Chunk, 0, len(merged))
	for _, row := range merged {
		rec, ok := byUUID[row.UUID]
		if !ok {
			r.logger.Warn("retrieve: vector row has no matching cache record", "uuid", row.UUID)
			continue
		}
		chunks = append(chunks, models.Chunk{
			Digest:    rec.CacheKey,
			Filepath:  rec.Path,
			StartLine: rec.StartLine,
			EndLine:   rec.EndLine,
			Content:   rec.Contents,
			Index:     0,
		})
	}
	return chunks, nil
}
