package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// DefaultRetrievalLimit caps how many hits a single query pulls from the
// store.
const DefaultRetrievalLimit = 4

// Strategy selects how the retriever searches the store. It is fixed at
// construction, not a per-query branch.
type Strategy string

const (
	// StrategyLexical uses a BM25-style match query.
	StrategyLexical Strategy = "lexical"
	// StrategySimilarity embeds the query and searches by vector similarity.
	StrategySimilarity Strategy = "similarity"
)

// Retriever executes owner-scoped searches against the fragment store.
type Retriever struct {
	store      FragmentStore
	embedder   Embedder
	collection string
	strategy   Strategy
	limit      int
}

// NewRetriever creates a Retriever. The embedder may be nil for the lexical
// strategy. Unknown strategies are rejected here rather than surfacing as a
// silent lexical fallback at query time.
func NewRetriever(store FragmentStore, embedder Embedder, collection string, strategy Strategy, limit int) (*Retriever, error) {
	switch strategy {
	case StrategyLexical:
	case StrategySimilarity:
		if embedder == nil {
			return nil, fmt.Errorf("similarity strategy requires an embedder")
		}
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", strategy)
	}
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}
	return &Retriever{
		store:      store,
		embedder:   embedder,
		collection: collection,
		strategy:   strategy,
		limit:      limit,
	}, nil
}

// Retrieve searches the owner's fragments for the query. An empty result is
// a normal outcome, not an error; the caller renders it as "nothing found".
func (r *Retriever) Retrieve(ctx context.Context, ownerID int64, query string) ([]Hit, error) {
	query = strings.ToLower(query)

	switch r.strategy {
	case StrategySimilarity:
		vector, err := r.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		hits, err := r.store.SearchVector(ctx, r.collection, ownerID, vector, r.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to search by vector: %w", err)
		}
		return hits, nil
	default:
		hits, err := r.store.SearchLexical(ctx, r.collection, ownerID, query, r.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to search by keywords: %w", err)
		}
		return hits, nil
	}
}
