package retriever

import (
	"context"
	"testing"

	"github.com/jamaly87/vectorindex/internal/embedcache"
	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/tagutil"
	"github.com/jamaly87/vectorindex/internal/vectorstore"
)

type fakeStore struct {
	tables map[string]*fakeTable
}

func (s *fakeStore) TableNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
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
	t := &fakeTable{}
	s.tables[name] = t
	return t, nil
}

type fakeTable struct {
	hits     []vectorstore.ScoredRow
	err      error
	lastOpts vectorstore.SearchOptions
}

func (t *fakeTable) Add(ctx context.Context, rows []vectorstore.Row) error { return nil }
func (t *fakeTable) Delete(ctx context.Context, predicates []vectorstore.Predicate) error {
	return nil
}
func (t *fakeTable) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredRow, error) {
	t.lastOpts = opts
	if t.err != nil {
		return nil, t.err
	}
	return t.hits, nil
}

type fakeProvider struct{}

func (f *fakeProvider) ID() string        { return "fake" }
func (f *fakeProvider) MaxChunkSize() int { return 1000 }
func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func openTestCache(t *testing.T) *embedcache.Cache {
	t.Helper()
	c, err := embedcache.Open(":memory:")
	if err != nil {
		t.Fatalf("embedcache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRetrieveEmptyTagsReturnsEmpty(t *testing.T) {
	store := &fakeStore{tables: map[string]*fakeTable{}}
	cache := openTestCache(t)
	r := New(vectorstore.NewManager(store), cache, &fakeProvider{}, nil)

	chunks, err := r.Retrieve(context.Background(), "query", 5, nil, "art1", "")
	if err != nil || chunks != nil {
		t.Fatalf("expected nil, nil for an empty tag list, got %+v, %v", chunks, err)
	}
}

func TestRetrieveMergesAndSortsByDistanceAcrossTags(t *testing.T) {
	tag1 := models.Tag{Branch: "main", Directory: "/repoA", ArtifactID: "art1"}
	tag2 := models.Tag{Branch: "main", Directory: "/repoB", ArtifactID: "art1"}
	store := &fakeStore{tables: map[string]*fakeTable{
		tagutil.Sanitize(tag1): {hits: []vectorstore.ScoredRow{{UUID: "u2", Distance: 0.5}}},
		tagutil.Sanitize(tag2): {hits: []vectorstore.ScoredRow{{UUID: "u1", Distance: 0.1}}},
	}}
	cache := openTestCache(t)
	if err := cache.Insert(models.CacheRecord{UUID: "u1", CacheKey: "k1", Path: "a.go", ArtifactID: "art1", StartLine: 1, EndLine: 2, Contents: "near"}); err != nil {
		t.Fatalf("seed u1: %v", err)
	}
	if err := cache.Insert(models.CacheRecord{UUID: "u2", CacheKey: "k2", Path: "b.go", ArtifactID: "art1", StartLine: 3, EndLine: 4, Contents: "far"}); err != nil {
		t.Fatalf("seed u2: %v", err)
	}

	r := New(vectorstore.NewManager(store), cache, &fakeProvider{}, nil)
	chunks, err := r.Retrieve(context.Background(), "query", 5, []BranchDirectory{
		{Branch: "main", Directory: "/repoA"},
		{Branch: "main", Directory: "/repoB"},
	}, "art1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 merged chunks, got %+v", chunks)
	}
	if chunks[0].Content != "near" || chunks[1].Content != "far" {
		t.Fatalf("expected ascending-distance order (near, far), got %+v", chunks)
	}
}

func TestRetrieveTruncatesToN(t *testing.T) {
	tag1 := models.Tag{Branch: "main", Directory: "/repo", ArtifactID: "art1"}
	store := &fakeStore{tables: map[string]*fakeTable{
		tagutil.Sanitize(tag1): {hits: []vectorstore.ScoredRow{
			{UUID: "u1", Distance: 0.1},
			{UUID: "u2", Distance: 0.2},
			{UUID: "u3", Distance: 0.3},
		}},
	}}
	cache := openTestCache(t)
	for _, uuid := range []string{"u1", "u2", "u3"} {
		if err := cache.Insert(models.CacheRecord{UUID: uuid, CacheKey: uuid, Path: "a.go", ArtifactID: "art1"}); err != nil {
			t.Fatalf("seed %s: %v", uuid, err)
		}
	}

	r := New(vectorstore.NewManager(store), cache, &fakeProvider{}, nil)
	chunks, err := r.Retrieve(context.Background(), "query", 2, []BranchDirectory{{Branch: "main", Directory: "/repo"}}, "art1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected truncation to n=2, got %d chunks", len(chunks))
	}
}

func TestRetrieveMissingTableIsSkippedNotFatal(t *testing.T) {
	store := &fakeStore{tables: map[string]*fakeTable{}}
	cache := openTestCache(t)
	r := New(vectorstore.NewManager(store), cache, &fakeProvider{}, nil)

	chunks, err := r.Retrieve(context.Background(), "query", 5, []BranchDirectory{{Branch: "main", Directory: "/repo"}}, "art1", "")
	if err != nil {
		t.Fatalf("expected missing table to degrade gracefully, got error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks when no tables exist, got %+v", chunks)
	}
}

func TestRetrieveFilterDirectorySetsPathLikeAndWiderLimit(t *testing.T) {
	tag1 := models.Tag{Branch: "main", Directory: "/repo", ArtifactID: "art1"}
	table := &fakeTable{hits: []vectorstore.ScoredRow{{UUID: "u1", Distance: 0.1}}}
	store := &fakeStore{tables: map[string]*fakeTable{tagutil.Sanitize(tag1): table}}
	cache := openTestCache(t)
	if err := cache.Insert(models.CacheRecord{UUID: "u1", CacheKey: "k1", Path: "sub/a.go", ArtifactID: "art1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := New(vectorstore.NewManager(store), cache, &fakeProvider{}, nil)
	_, err := r.Retrieve(context.Background(), "query", 5, []BranchDirectory{{Branch: "main", Directory: "/repo"}}, "art1", "sub")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if table.lastOpts.PathLike != "sub" || table.lastOpts.Limit != remoteSearchLimit {
		t.Fatalf("expected PathLike=sub and Limit=%d, got %+v", remoteSearchLimit, table.lastOpts)
	}
}
