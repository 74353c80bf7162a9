package knowledge

import (
	"context"
	"fmt"

	"knowbot/src/infrastructure/log"
)

// Page is one unit of extracted document text, numbered from zero.
type Page struct {
	Number int
	Text   string
}

// Ingestor runs the write path: normalize each page, chunk it, embed the
// chunks, and append them to the collection one page batch at a time.
type Ingestor struct {
	store      FragmentStore
	embedder   Embedder
	normalizer *Normalizer
	chunker    *Chunker
	collection string
}

// NewIngestor creates an Ingestor.
func NewIngestor(store FragmentStore, embedder Embedder, normalizer *Normalizer, chunker *Chunker, collection string) *Ingestor {
	return &Ingestor{
		store:      store,
		embedder:   embedder,
		normalizer: normalizer,
		chunker:    chunker,
		collection: collection,
	}
}

// IngestPages indexes every page of one document for the owner. Each page's
// fragments are written with a separate store call in chunk order; a failure
// mid-document leaves earlier pages written. Returns the number of fragments
// stored.
func (s *Ingestor) IngestPages(ctx context.Context, pages []Page, ownerID int64, documentID, fileName string) (int, error) {
	stored := 0
	for _, page := range pages {
		meta := Metadata{
			OwnerID:    ownerID,
			DocumentID: documentID,
			FileName:   fileName,
			PageNumber: page.Number,
		}

		fragments, err := s.chunker.Split(s.normalizer.Normalize(page.Text), meta)
		if err != nil {
			return stored, fmt.Errorf("failed to chunk page %d: %w", page.Number, err)
		}
		if len(fragments) == 0 {
			continue
		}

		batch, err := s.embedBatch(ctx, fragments)
		if err != nil {
			return stored, fmt.Errorf("failed to embed page %d: %w", page.Number, err)
		}

		if err := s.store.AddFragments(ctx, s.collection, batch); err != nil {
			return stored, fmt.Errorf("failed to store page %d: %w", page.Number, err)
		}
		stored += len(batch)
	}

	log.Info("document indexed",
		"owner_id", ownerID,
		"document_id", documentID,
		"file_name", fileName,
		"pages", len(pages),
		"fragments", stored)
	return stored, nil
}

func (s *Ingestor) embedBatch(ctx context.Context, fragments []Fragment) ([]IndexedFragment, error) {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(fragments))
	}

	batch := make([]IndexedFragment, len(fragments))
	for i, f := range fragments {
		batch[i] = IndexedFragment{Fragment: f, Vector: vectors[i]}
	}
	return batch, nil
}
