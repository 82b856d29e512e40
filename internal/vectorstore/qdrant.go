package vectorstore

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant-backed Store binding.
type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	VectorSize int
	Distance   string // "cosine", "dot", "euclidean"
}

// QdrantStore realizes Store over a Qdrant gRPC connection. One Qdrant
// collection stands in for one per-tag "table" (§2.1): Qdrant has no
// native table abstraction, but a collection-per-tag gives the same
// lazy-create/open/add/delete/search surface the spec names in §6.
type QdrantStore struct {
	cfg    QdrantConfig
	client *qdrant.Client
}

// NewQdrantStore connects to Qdrant over gRPC.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return &QdrantStore{cfg: cfg, client: client}, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) TableNames(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

func (s *QdrantStore) OpenTable(ctx context.Context, name string) (Table, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, ErrTableNotFound
	}
	return &qdrantTable{client: s.client, collection: name}, nil
}

// CreateTable creates collection name if it does not already exist and
// inserts initial. Called with an empty initial it creates nothing and
// returns ErrTableNotFound: the
// Absent → Created transition only fires on a non-empty insert (§4.3),
// so no collection is registered with Qdrant until there is something
// to put in it.
func (s *QdrantStore) CreateTable(ctx context.Context, name string, initial []Row) (Table, error) {
	if len(initial) == 0 {
		return nil, ErrTableNotFound
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(s.cfg.VectorSize),
						Distance: s.distanceMetric(),
					},
				},
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		log.Printf("vectorstore: created table %s", name)
	}

	t := &qdrantTable{client: s.client, collection: name}
	if len(initial) > 0 {
		if err := t.Add(ctx, initial); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *QdrantStore) distanceMetric() qdrant.Distance {
	switch s.cfg.Distance {
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

type qdrantTable struct {
	client     *qdrant.Client
	collection string
}

func (t *qdrantTable) Add(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(rows))
	for i, row := range rows {
		vector := make([]float32, len(row.Vector))
		copy(vector, row.Vector)

		points[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: row.UUID},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vector},
				},
			},
			Payload: map[string]*qdrant.Value{
				"path":     qdrant.NewValueString(row.Path),
				"cachekey": qdrant.NewValueString(row.CacheKey),
			},
		}
	}

	if _, err := t.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: t.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert %d rows into %s: %w", len(rows), t.collection, err)
	}
	return nil
}

// Delete issues one predicate deletion per item (§4.1 step 6: "issue a
// predicate deletion for each item"), each a typed
// cachekey = <literal> AND path = <literal> filter built from field-match
// conditions rather than an interpolated string.
func (t *qdrantTable) Delete(ctx context.Context, predicates []Predicate) error {
	for _, p := range predicates {
		_, err := t.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: t.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							fieldMatch("cachekey", p.CacheKey),
							fieldMatch("path", p.Path),
						},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete (cachekey=%s, path=%s) from %s: %w", p.CacheKey, p.Path, t.collection, err)
		}
	}
	return nil
}

// Search runs a nearest-neighbor query. opts.PathLike implements the
// "path LIKE '<dir>%'" predicate of §4.6 as a client-side prefix filter
// over the requested rows, matching the spec's note that post-filtering
// is assumed for the directory-scoped search policy.
func (t *qdrantTable) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredRow, error) {
	limit := uint64(opts.Limit)
	if limit == 0 {
		limit = 10
	}

	results, err := t.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: t.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", t.collection, err)
	}

	rows := make([]ScoredRow, 0, len(results))
	for _, r := range results {
		path := r.Payload["path"].GetStringValue()
		if opts.PathLike != "" && !strings.HasPrefix(path, opts.PathLike) {
			continue
		}
		rows = append(rows, ScoredRow{
			UUID:     r.Id.GetUuid(),
			Path:     path,
			CacheKey: r.Payload["cachekey"].GetStringValue(),
			// Qdrant scores rank higher-is-better; invert to a
			// distance so ascending sort matches §4.6.
			Distance: 1 - float64(r.Score),
		})
	}
	return rows, nil
}

func fieldMatch(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
