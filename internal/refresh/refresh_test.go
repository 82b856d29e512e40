package refresh

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/jamaly87/vectorindex/internal/chunker"
	"github.com/jamaly87/vectorindex/internal/compute"
	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/remotecache"
	"github.com/jamaly87/vectorindex/internal/tagutil"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
)

var testTag = models.Tag{Branch: "main", Directory: "/repo", ArtifactID: "art1"}

// --- vectorstore.Store/Table fakes ---

type fakeStore struct {
	tables map[string]*fakeTable
}

func newFakeStore() *fakeStore { return &fakeStore{tables: make(map[string]*fakeTable)} }

func (s *fakeStore) TableNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) OpenTable(ctx context.Context, name string) (vectorstore.Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, vectorstore.ErrTableNotFound
	}
	return t, nil
}

func (s *fakeStore) CreateTable(ctx context.Context, name string, initial []vectorstore.Row) (vectorstore.Table, error) {
	t, ok := s.tables[name]
	if !ok {
		t = &fakeTable{}
		s.tables[name] = t
	}
	if len(initial) > 0 {
		_ = t.Add(ctx, initial)
	}
	return t, nil
}

type fakeTable struct {
	rows []vectorstore.Row
}

func (t *fakeTable) Add(ctx context.Context, rows []vectorstore.Row) error {
	t.rows = append(t.rows, rows...)
	return nil
}

func (t *fakeTable) Delete(ctx context.Context, predicates []vectorstore.Predicate) error {
	for _, p := range predicates {
		kept := t.rows[:0]
		for _, r := range t.rows {
			if r.CacheKey == p.CacheKey && r.Path == p.Path {
				continue
			}
			kept = append(kept, r)
		}
		t.rows = kept
	}
	return nil
}

func (t *fakeTable) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredRow, error) {
	return nil, nil
}

// --- remotecache.RemoteCache fake ---

type fakeRemote struct {
	connected bool
	results   map[string][]models.RemoteChunk
	err       error
}

func (f *fakeRemote) Connected() bool { return f.connected }
func (f *fakeRemote) Get(ctx context.Context, keys []string, label, repoName string) (map[string][]models.RemoteChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// --- compute collaborator fakes ---

type fakeReader struct{ contents map[string]string }

func (f *fakeReader) ReadFile(path string) (string, error) { return f.contents[path], nil }

type fakeChunker struct{ chunksByPath map[string][]models.Chunk }

func (f *fakeChunker) Chunk(ctx context.Context, req chunker.ChunkRequest) (<-chan chunker.ChunkOrErr, error) {
	out := make(chan chunker.ChunkOrErr, len(f.chunksByPath[req.Path]))
	for _, c := range f.chunksByPath[req.Path] {
		out <- chunker.ChunkOrErr{Chunk: c}
	}
	close(out)
	return out, nil
}

type fakeProvider struct {
	dims       int
	nilVectors map[string]bool // text keys that come back with an undefined vector
}

func (f *fakeProvider) ID() string        { return "fake" }
func (f *fakeProvider) MaxChunkSize() int { return 1000 }
func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.nilVectors[t] {
			continue
		}
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func newTestCoordinator(t *testing.T, store *fakeStore, remote remotecache.RemoteCache) (*Coordinator, *embedcache.Cache) {
	t.Helper()
	cache, err := embedcache.Open(":memory:")
	if err != nil {
		t.Fatalf("embedcache.Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	reader := &fakeReader{contents: map[string]string{
		"a.go": "contentA",
		"b.go": "contentB",
	}}
	ck := &fakeChunker{chunksByPath: map[string][]models.Chunk{
		"a.go": {{Content: "chunkA", StartLine: 1, EndLine: 1}},
		"b.go": {{Content: "chunkB", StartLine: 1, EndLine: 1}},
	}}
	pipeline := compute.NewPipeline(reader, ck, &fakeProvider{dims: 4})

	coord := NewCoordinator(vectorstore.NewManager(store), cache, remote, pipeline, nil)
	return coord, cache
}

func collectProgress(ch <-chan models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestUpdateLocalComputeMarksCompleteAndReachesDone(t *testing.T) {
	store := newFakeStore()
	coord, _ := newTestCoordinator(t, store, nil)

	var completed []models.FileVersion
	markComplete := func(items []models.FileVersion, kind models.ResultKind) {
		if kind == models.ResultCompute {
			completed = append(completed, items...)
		}
	}

	tag := testTag
	results := models.RefreshIndexResults{
		Compute: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}, {Path: "b.go", CacheKey: "k2"}},
	}

	events := collectProgress(coord.Update(context.Background(), tag, results, markComplete, "art1"))

	if len(completed) != 2 {
		t.Fatalf("expected both files marked complete, got %+v", completed)
	}
	last := events[len(events)-1]
	if last.Status != models.StatusDone || last.Progress != 1 {
		t.Fatalf("expected terminal done event, got %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Progress < events[i-1].Progress {
			t.Fatalf("progress must be monotonically non-decreasing: %+v -> %+v", events[i-1], events[i])
		}
	}
}

func TestUpdateRemoteShortCircuitSkipsLocalCompute(t *testing.T) {
	store := newFakeStore()
	remote := &fakeRemote{connected: true, results: map[string][]models.RemoteChunk{
		"k1": {{Vector: []float32{1, 2}, StartLine: 1, EndLine: 1, Contents: "remote chunk"}},
	}}
	coord, cache := newTestCoordinator(t, store, remote)

	var completedKinds []models.ResultKind
	markComplete := func(items []models.FileVersion, kind models.ResultKind) { completedKinds = append(completedKinds, kind) }

	tag := testTag
	results := models.RefreshIndexResults{Compute: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}}}

	collectProgress(coord.Update(context.Background(), tag, results, markComplete, "art1"))

	if len(completedKinds) != 1 || completedKinds[0] != models.ResultCompute {
		t.Fatalf("expected one Compute completion from the remote path, got %+v", completedKinds)
	}
	records, err := cache.SelectByKey("art1", "k1", "a.go")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected remote-resolved chunk durably cached, got %+v err=%v", records, err)
	}
}

func TestUpdateRemoteFailureFallsBackToLocal(t *testing.T) {
	store := newFakeStore()
	remote := &fakeRemote{connected: true, err: errors.New("network down")}
	coord, _ := newTestCoordinator(t, store, remote)

	var completed []models.FileVersion
	markComplete := func(items []models.FileVersion, kind models.ResultKind) {
		if kind == models.ResultCompute {
			completed = append(completed, items...)
		}
	}

	tag := testTag
	results := models.RefreshIndexResults{Compute: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}}}

	collectProgress(coord.Update(context.Background(), tag, results, markComplete, "art1"))

	if len(completed) != 1 || completed[0].Path != "a.go" {
		t.Fatalf("expected local compute fallback to complete a.go, got %+v", completed)
	}
}

func TestUpdateAddTagReconstructsFromCacheWithoutRecompute(t *testing.T) {
	store := newFakeStore()
	coord, cache := newTestCoordinator(t, store, nil)

	if err := cache.Insert(models.CacheRecord{UUID: "u1", CacheKey: "k1", Path: "a.go", ArtifactID: "art1", Vector: []float32{1, 2}}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	var completedKinds []models.ResultKind
	markComplete := func(items []models.FileVersion, kind models.ResultKind) { completedKinds = append(completedKinds, kind) }

	tag := testTag
	results := models.RefreshIndexResults{AddTag: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}}}

	collectProgress(coord.Update(context.Background(), tag, results, markComplete, "art1"))

	if len(completedKinds) != 1 || completedKinds[0] != models.ResultAddTag {
		t.Fatalf("expected an AddTag completion, got %+v", completedKinds)
	}
	tableName := tagutil.Sanitize(testTag)
	table, err := store.OpenTable(context.Background(), tableName)
	if err != nil {
		t.Fatalf("expected table created by add-tag, got error: %v", err)
	}
	ft := table.(*fakeTable)
	if len(ft.rows) != 1 || ft.rows[0].UUID != "u1" {
		t.Fatalf("expected reconstructed row u1, got %+v", ft.rows)
	}
}

func TestUpdateRemoveTagAndDeleteRemovePredicateRows(t *testing.T) {
	store := newFakeStore()
	tableName := tagutil.Sanitize(testTag)
	store.tables[tableName] = &fakeTable{rows: []vectorstore.Row{
		{UUID: "u1", Path: "a.go", CacheKey: "k1"},
		{UUID: "u2", Path: "b.go", CacheKey: "k2"},
	}}
	coord, cache := newTestCoordinator(t, store, nil)

	if err := cache.Insert(models.CacheRecord{UUID: "u2", CacheKey: "k2", Path: "b.go", ArtifactID: "art1"}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	var completedKinds []models.ResultKind
	markComplete := func(items []models.FileVersion, kind models.ResultKind) { completedKinds = append(completedKinds, kind) }

	tag := testTag
	results := models.RefreshIndexResults{
		RemoveTag: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}},
		Delete:    []models.FileVersion{{Path: "b.go", CacheKey: "k2"}},
	}

	collectProgress(coord.Update(context.Background(), tag, results, markComplete, "art1"))

	ft := store.tables[tableName]
	if len(ft.rows) != 0 {
		t.Fatalf("expected both rows removed from the table, got %+v", ft.rows)
	}
	records, err := cache.SelectByKey("art1", "k2", "b.go")
	if err != nil || len(records) != 0 {
		t.Fatalf("expected b.go removed from cache, got %+v err=%v", records, err)
	}
	records, err = cache.SelectByKey("art1", "k1", "a.go")
	if err != nil || len(records) != 0 {
		t.Fatalf("remove-tag must not touch the cache, got %+v err=%v", records, err)
	}

	var sawRemoveTag, sawDelete bool
	for _, k := range completedKinds {
		if k == models.ResultRemoveTag {
			sawRemoveTag = true
		}
		if k == models.ResultDelete {
			sawDelete = true
		}
	}
	if !sawRemoveTag || !sawDelete {
		t.Fatalf("expected both RemoveTag and Delete completions, got %+v", completedKinds)
	}
}

func TestUpdateFatalComputeErrorSurfacesAndSkipsDone(t *testing.T) {
	store := newFakeStore()
	cache, err := embedcache.Open(":memory:")
	if err != nil {
		t.Fatalf("embedcache.Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	reader := &fakeReader{contents: map[string]string{"a.go": "contentA"}}
	ck := &fakeChunker{chunksByPath: map[string][]models.Chunk{
		"a.go": {{Content: "broken", StartLine: 1, EndLine: 1}},
	}}
	pipeline := compute.NewPipeline(reader, ck, &fakeProvider{dims: 4, nilVectors: map[string]bool{"broken": true}})
	coord := NewCoordinator(vectorstore.NewManager(store), cache, nil, pipeline, nil)

	tag := testTag
	results := models.RefreshIndexResults{Compute: []models.FileVersion{{Path: "a.go", CacheKey: "k1"}}}

	events := collectProgress(coord.Update(context.Background(), tag, results, func([]models.FileVersion, models.ResultKind) {}, "art1"))

	if len(events) != 1 {
		t.Fatalf("expected a single terminal event, got %+v", events)
	}
	if events[0].Err == nil {
		t.Fatal("expected the terminal event to carry the fatal compute error")
	}
	if events[0].Status == models.StatusDone {
		t.Fatal("a fatal compute error must not reach StatusDone")
	}
}

func TestUpdateEmptyResultsProducesOnlyDoneEvent(t *testing.T) {
	store := newFakeStore()
	coord, _ := newTestCoordinator(t, store, nil)

	events := collectProgress(coord.Update(context.Background(), models.Tag{Branch: "main", Directory: "/repo", ArtifactID: "art1"}, models.RefreshIndexResults{}, func([]models.FileVersion, models.ResultKind) {}, "art1"))
	if len(events) != 1 || events[0].Status != models.StatusDone {
		t.Fatalf("expected a single done event for an empty update, got %+v", events)
	}
}
