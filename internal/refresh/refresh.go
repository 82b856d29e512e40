// Package refresh is the Refresh Coordinator (§4.1): it drives the
// four-phase incremental update protocol — remote short-circuit, local
// compute, add-tag, remove-tag/delete — and emits a lazy sequence of
// progress events.
package refresh

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jamaly87/vectorindex/internal/compute"
	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/remotecache"
	"github.com/jamaly87/vectorindex/internal/tagutil"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
)

const embeddingsLabel = "embeddings"

// Coordinator drives Update over its injected collaborators.
type Coordinator struct {
	tables  *vectorstore.Manager
	cache   *embedcache.Cache
	remote  remotecache.RemoteCache // nil disables the remote short-circuit
	compute *compute.Pipeline
	logger  *slog.Logger
}

// NewCoordinator wires the Refresh Coordinator's collaborators. remote
// may be nil: the coordinator then skips straight to local compute.
func NewCoordinator(tables *vectorstore.Manager, cache *embedcache.Cache, remote remotecache.RemoteCache, pipeline *compute.Pipeline, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{tables: tables, cache: cache, remote: remote, compute: pipeline, logger: logger}
}

// Update runs the four-phase protocol for tag/results and streams
// progress events on the returned channel, closing it once the terminal
// event has been sent or a fatal error occurs. A fatal error is reported
// as the final event on the channel, with Err set (§7); the channel is
// then closed without a done event.
func (c *Coordinator) Update(ctx context.Context, tag models.Tag, results models.RefreshIndexResults, markComplete models.MarkCompleteFunc, artifactID string) <-chan models.ProgressEvent {
	out := make(chan models.ProgressEvent)
	go func() {
		defer close(out)
		tableName := tagutil.Sanitize(tag)

		remaining, fatal := c.remoteShortCircuit(ctx, tableName, artifactID, results.Compute, markComplete)
		if fatal != nil {
			emit(ctx, out, models.ProgressEvent{Err: fatal})
			return
		}

		if ctx.Err() != nil {
			return
		}
		if fatal := c.localCompute(ctx, out, tableName, artifactID, remaining, markComplete, len(results.Compute)); fatal != nil {
			emit(ctx, out, models.ProgressEvent{Err: fatal})
			return
		}

		if ctx.Err() != nil {
			return
		}
		if fatal := c.addTag(ctx, out, tableName, artifactID, results.AddTag, markComplete); fatal != nil {
			emit(ctx, out, models.ProgressEvent{Err: fatal})
			return
		}

		if ctx.Err() != nil {
			return
		}
		if fatal := c.removeAndDelete(ctx, out, tableName, results.RemoveTag, results.Delete, markComplete); fatal != nil {
			emit(ctx, out, models.ProgressEvent{Err: fatal})
			return
		}

		if ctx.Err() != nil {
			return
		}
		if fatal := c.deleteFromCache(ctx, out, artifactID, results.Delete, markComplete); fatal != nil {
			emit(ctx, out, models.ProgressEvent{Err: fatal})
			return
		}

		emit(ctx, out, models.ProgressEvent{Progress: 1, Status: models.StatusDone})
	}()
	return out
}

func emit(ctx context.Context, out chan<- models.ProgressEvent, ev models.ProgressEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// remoteShortCircuit resolves as many Compute items as possible from the
// remote cache, returning the items still left to compute locally. A
// remote transport failure degrades silently to "nothing resolved"
// (§4.1 step 3, §7); a cache-write or table-write failure while
// persisting a remote-resolved row is fatal to the whole update.
func (c *Coordinator) remoteShortCircuit(ctx context.Context, tableName, artifactID string, items []models.FileVersion, markComplete models.MarkCompleteFunc) ([]models.FileVersion, error) {
	if len(items) == 0 || c.remote == nil || !c.remote.Connected() {
		return items, nil
	}

	byKey := make(map[string]models.FileVersion, len(items))
	keys := make([]string, 0, len(items))
	for _, it := range items {
		byKey[it.CacheKey] = it
		keys = append(keys, it.CacheKey)
	}

	resolved, err := c.remote.Get(ctx, keys, embeddingsLabel, artifactID)
	if err != nil {
		c.logger.Warn("remote cache lookup failed, falling back to local compute", "error", err)
		return items, nil
	}

	resolvedKeys := make(map[string]bool)
	for cacheKey, chunks := range resolved {
		item, ok := byKey[cacheKey]
		if !ok {
			c.logger.Warn("remote cache returned unknown cache key", "cacheKey", cacheKey)
			continue
		}

		rows := make([]models.ChunkRow, 0, len(chunks))
		for _, rc := range chunks {
			rowUUID := uuid.New().String()
			rows = append(rows, models.ChunkRow{UUID: rowUUID, Path: item.Path, CacheKey: item.CacheKey, Vector: rc.Vector})
			if err := c.cache.Insert(models.CacheRecord{
				UUID: rowUUID, CacheKey: item.CacheKey, Path: item.Path, ArtifactID: artifactID,
				Vector: rc.Vector, StartLine: rc.StartLine, EndLine: rc.EndLine, Contents: rc.Contents,
			}); err != nil {
				return nil, err
			}
		}

		if err := c.tables.AddRows(ctx, tableName, rows); err != nil {
			return nil, err
		}

		markComplete([]models.FileVersion{item}, models.ResultCompute)
		resolvedKeys[cacheKey] = true
	}

	var stillLocal []models.FileVersion
	for _, it := range items {
		if !resolvedKeys[it.CacheKey] {
			stillLocal = append(stillLocal, it)
		}
	}
	return stillLocal, nil
}

// localCompute drives the Compute Pipeline over remaining and flushes a
// per-file batch to the vector table at each end-of-file marker (§4.1
// step 4). totalOriginal is the size of the full Compute list, used for
// the 90%-of-budget progress scaling.
func (c *Coordinator) localCompute(ctx context.Context, out chan<- models.ProgressEvent, tableName, artifactID string, remaining []models.FileVersion, markComplete models.MarkCompleteFunc, totalOriginal int) error {
	if len(remaining) == 0 {
		return nil
	}

	events := c.compute.Run(ctx, remaining)
	var batch []models.ChunkRow
	resolvedShare := float64(totalOriginal-len(remaining)) / float64(totalOriginal)
	remainingShare := float64(len(remaining)) / float64(totalOriginal)

	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		if !ev.EndOfFile {
			if err := c.cache.Insert(models.CacheRecord{
				UUID: ev.Row.Row.UUID, CacheKey: ev.Row.Row.CacheKey, Path: ev.Row.Row.Path, ArtifactID: artifactID,
				Vector: ev.Row.Row.Vector, StartLine: ev.Row.StartLine, EndLine: ev.Row.EndLine, Contents: ev.Row.Contents,
			}); err != nil {
				return err
			}
			batch = append(batch, ev.Row.Row)
			if !emit(ctx, out, models.ProgressEvent{
				Progress: 0.9 * (resolvedShare + ev.Progress*remainingShare), Status: models.StatusRunning, Desc: ev.Row.Desc,
			}) {
				return nil
			}
			continue
		}

		if len(batch) > 0 {
			if err := c.tables.AddRows(ctx, tableName, batch); err != nil {
				return err
			}
			markComplete([]models.FileVersion{ev.Item}, models.ResultCompute)
		}
		batch = nil
	}
	return nil
}

// addTag reconstructs rows from the cache for items already embedded
// under this artifact and inserts them into the tag's table without
// recomputing (§4.1 step 5).
func (c *Coordinator) addTag(ctx context.Context, out chan<- models.ProgressEvent, tableName, artifactID string, items []models.FileVersion, markComplete models.MarkCompleteFunc) error {
	if len(items) == 0 {
		return nil
	}
	step := 0.1 / float64(len(items)) / 3.0

	for k, item := range items {
		records, err := c.cache.SelectByKey(artifactID, item.CacheKey, item.Path)
		if err != nil {
			return err
		}

		rows := make([]models.ChunkRow, 0, len(records))
		for _, r := range records {
			rows = append(rows, models.ChunkRow{UUID: r.UUID, Path: r.Path, CacheKey: r.CacheKey, Vector: r.Vector})
		}
		if err := c.tables.AddRows(ctx, tableName, rows); err != nil {
			return err
		}

		markComplete([]models.FileVersion{item}, models.ResultAddTag)
		if !emit(ctx, out, models.ProgressEvent{Progress: 0.9 + step*float64(k+1), Status: models.StatusRunning}) {
			return nil
		}
	}
	return nil
}

// removeAndDelete issues one predicate deletion per item in
// removeTag ∪ delete against the tag's table (§4.1 step 6). Predicate
// deletion failures are fatal (§7).
func (c *Coordinator) removeAndDelete(ctx context.Context, out chan<- models.ProgressEvent, tableName string, removeTag, del []models.FileVersion, markComplete models.MarkCompleteFunc) error {
	combined := append(append([]models.FileVersion(nil), removeTag...), del...)
	if len(combined) == 0 {
		return nil
	}

	predicates := make([]vectorstore.Predicate, 0, len(combined))
	for _, item := range combined {
		predicates = append(predicates, vectorstore.Predicate{CacheKey: item.CacheKey, Path: item.Path})
	}
	if err := c.tables.Delete(ctx, tableName, predicates); err != nil {
		return err
	}

	if len(removeTag) > 0 {
		markComplete(removeTag, models.ResultRemoveTag)
	}
	emit(ctx, out, models.ProgressEvent{Progress: 0.9 + 0.2/3.0, Status: models.StatusRunning})
	return nil
}

// deleteFromCache removes cache records for every Delete item (§4.1
// step 7).
func (c *Coordinator) deleteFromCache(ctx context.Context, out chan<- models.ProgressEvent, artifactID string, del []models.FileVersion, markComplete models.MarkCompleteFunc) error {
	if len(del) == 0 {
		return nil
	}
	for _, item := range del {
		if err := c.cache.Delete(artifactID, item.CacheKey, item.Path); err != nil {
			return err
		}
	}
	markComplete(del, models.ResultDelete)
	emit(ctx, out, models.ProgressEvent{Progress: 1, Status: models.StatusRunning})
	return nil
}
