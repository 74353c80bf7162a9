package knowledge_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"knowbot/src/core/knowledge"
)

// memoryStore is an in-memory FragmentStore for tests. It enforces the same
// owner scoping the real stores do.
type memoryStore struct {
	mu          sync.Mutex
	collections map[string][]knowledge.IndexedFragment

	lexicalQueries []string
	vectorQueries  [][]float32
}

func newMemoryStore() *memoryStore {
	return &memoryStore{collections: make(map[string][]knowledge.IndexedFragment)}
}

func (s *memoryStore) EnsureCollection(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return false, nil
	}
	s.collections[name] = nil
	return true, nil
}

func (s *memoryStore) DropCollection(ctx context.Context, name string) (knowledge.DropResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return knowledge.DropNotFound, nil
	}
	delete(s.collections, name)
	return knowledge.Dropped, nil
}

func (s *memoryStore) AddFragments(ctx context.Context, name string, fragments []knowledge.IndexedFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("collection %q does not exist", name)
	}
	s.collections[name] = append(s.collections[name], fragments...)
	return nil
}

func (s *memoryStore) FragmentsByOwner(ctx context.Context, name string, ownerID int64) ([]knowledge.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]knowledge.Fragment, 0)
	for _, f := range s.collections[name] {
		if f.OwnerID == ownerID {
			out = append(out, f.Fragment)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteByDocument(ctx context.Context, name string, ownerID int64, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.collections[name][:0]
	for _, f := range s.collections[name] {
		if f.OwnerID == ownerID && f.DocumentID == documentID {
			continue
		}
		kept = append(kept, f)
	}
	s.collections[name] = kept
	return nil
}

func (s *memoryStore) SearchLexical(ctx context.Context, name string, ownerID int64, query string, limit int) ([]knowledge.Hit, error) {
	s.mu.Lock()
	s.lexicalQueries = append(s.lexicalQueries, query)
	s.mu.Unlock()

	hits := make([]knowledge.Hit, 0)
	fragments, _ := s.FragmentsByOwner(ctx, name, ownerID)
	for _, f := range fragments {
		if strings.Contains(f.Text, query) {
			hits = append(hits, knowledge.Hit{Fragment: f, Score: 1})
		}
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (s *memoryStore) SearchVector(ctx context.Context, name string, ownerID int64, vector []float32, limit int) ([]knowledge.Hit, error) {
	s.mu.Lock()
	s.vectorQueries = append(s.vectorQueries, vector)
	s.mu.Unlock()

	hits := make([]knowledge.Hit, 0)
	fragments, _ := s.FragmentsByOwner(ctx, name, ownerID)
	for _, f := range fragments {
		hits = append(hits, knowledge.Hit{Fragment: f, Score: 0.9})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// constEmbedder returns a fixed-size vector per input without any service.
type constEmbedder struct {
	dims int
}

func (e constEmbedder) vector() []float32 {
	v := make([]float32, e.dims)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func (e constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector()
	}
	return out, nil
}

func (e constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(), nil
}
