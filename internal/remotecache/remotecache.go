// Package remotecache is the optional precomputed-embeddings lookup
// service (§4.5): given a batch of cache keys, it returns whatever
// vectors a shared team-wide cache already has, so the compute pipeline
// can skip embedding those chunks locally.
package remotecache

import (
	"context"

	"github.com/jamaly87/vectorindex/internal/models"
)

// RemoteCache looks up precomputed chunks for a batch of cache keys. A
// miss for any individual key is not an error — the caller falls back to
// local compute for keys absent from the returned map.
type RemoteCache interface {
	// Connected reports whether the remote cache is currently reachable.
	// The coordinator treats false as "skip the remote short-circuit
	// entirely" rather than retrying per key (§4.1 step 3).
	Connected() bool

	// Get looks up cacheKeys for the given label (the coordinator always
	// passes "embeddings") and repo name, returning whatever subset is
	// already cached.
	Get(ctx context.Context, cacheKeys []string, label, repoName string) (map[string][]models.RemoteChunk, error)
}
