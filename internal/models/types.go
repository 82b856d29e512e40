// Package models holds the data model shared by every component of the
// vector-index engine: chunk rows, cache records, tags, refresh results and
// retrieved chunks.
package models

// ChunkRow is a vector table entry (§3). Field names are lowercase at the
// wire level because the underlying columnar store folds identifiers.
type ChunkRow struct {
	UUID     string    `json:"uuid"`
	Path     string    `json:"path"`
	CacheKey string    `json:"cachekey"`
	Vector   []float32 `json:"vector"`
}

// CacheRecord is a durable embedding-cache row (§3). Primary key is UUID;
// the logical reconstruction key is (ArtifactID, CacheKey, Path).
type CacheRecord struct {
	UUID       string    `json:"uuid" gorm:"primaryKey"`
	CacheKey   string    `json:"cacheKey" gorm:"index:idx_logical_key"`
	Path       string    `json:"path" gorm:"index:idx_logical_key"`
	ArtifactID string    `json:"artifact_id" gorm:"index:idx_logical_key"`
	Vector     []float32 `json:"-" gorm:"serializer:json;column:vector"`
	StartLine  int       `json:"startLine"`
	EndLine    int       `json:"endLine"`
	Contents   string    `json:"contents"`
}

// TableName pins the gorm table name to the one named in §6.
func (CacheRecord) TableName() string { return "lance_db_cache" }

// Tag is the opaque (branch, directory, artifactId) triple naming a logical
// corpus (§3).
type Tag struct {
	Branch     string
	Directory  string
	ArtifactID string
}

// FileVersion is a (path, cacheKey) pair as it appears in a RefreshIndexResults
// bucket or a markComplete callback. It is the identity object that flows
// unchanged from request to completion (§4.1 resolved open question on the
// markComplete call site).
type FileVersion struct {
	Path     string
	CacheKey string
}

// RefreshIndexResults is the diff between desired and observed workspace
// indexing state, partitioned into four disjoint operation classes (§4.1).
type RefreshIndexResults struct {
	Compute   []FileVersion
	AddTag    []FileVersion
	RemoveTag []FileVersion
	Delete    []FileVersion
}

// ResultKind identifies which of the four refresh operation classes a
// markComplete call reports on.
type ResultKind int

const (
	ResultCompute ResultKind = iota
	ResultAddTag
	ResultRemoveTag
	ResultDelete
)

func (k ResultKind) String() string {
	switch k {
	case ResultCompute:
		return "compute"
	case ResultAddTag:
		return "addTag"
	case ResultRemoveTag:
		return "removeTag"
	case ResultDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MarkCompleteFunc reports that a batch of items has durably finished an
// operation class. It is invoked exactly once per item per applicable
// result type, and only after the corresponding store write is durable.
type MarkCompleteFunc func(items []FileVersion, kind ResultKind)

// ProgressStatus is the lifecycle state carried by a ProgressEvent.
type ProgressStatus string

const (
	StatusRunning ProgressStatus = "running"
	StatusDone    ProgressStatus = "done"
)

// ProgressEvent is one step of the lazy progress stream a refresh emits.
// Progress is monotonically non-decreasing and bounded by 1.
type ProgressEvent struct {
	Progress float64
	Status   ProgressStatus
	Desc     string
	Err      error
}

// Chunk is a retrieval-output record (§4.6) or the payload a chunker /
// compute pipeline produces for a single fragment of source text.
type Chunk struct {
	Digest    string // cacheKey
	Filepath  string // path
	StartLine int
	EndLine   int
	Content   string
	Index     int
}

// RemoteChunk is a precomputed chunk returned by the remote cache (§4.5, §6).
type RemoteChunk struct {
	Vector    []float32
	StartLine int
	EndLine   int
	Contents  string
}
