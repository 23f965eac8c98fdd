package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks finsight/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// Record is a point fetched without similarity scoring.
type Record struct {
	ID   string
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// Filter narrows queries by payload fields. Equals entries must all match
// exactly; each AnyOf entry matches when the field equals any listed value.
// All conditions combine conjunctively.
type Filter struct {
	Equals map[string]string
	AnyOf  map[string][]string
}

// Empty reports whether the filter has no conditions.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Equals) == 0 && len(f.AnyOf) == 0)
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection if missing, or validates the
	// vector size of an existing one.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with an optional filter.
	Search(ctx context.Context, collection string, query []float32, k int, filter *Filter) ([]SearchResult, error)

	// Get fetches points by ID, returning only those that exist.
	Get(ctx context.Context, collection string, ids []string) ([]Record, error)

	// Scroll pages through points matching the filter without scoring.
	Scroll(ctx context.Context, collection string, filter *Filter, limit int) ([]Record, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points matching the filter, or all points
	// for a nil filter.
	Count(ctx context.Context, collection string, filter *Filter) (uint64, error)
}
