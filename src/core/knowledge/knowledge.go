// Package knowledge implements the document ingestion and retrieval core:
// normalizing and chunking uploaded documents into owned fragments, storing
// them in a search collection, and answering questions by retrieving
// fragments and synthesizing LLM answers over them.
package knowledge

import (
	"context"
	"errors"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrTokenNotFound      = errors.New("pending-delete token not found")
	ErrCursorExpired      = errors.New("scroll cursor expired")
)

// Fragment is the unit stored and retrieved: a chunk of document text plus
// ownership and location metadata. Immutable once written.
type Fragment struct {
	Text       string `json:"text"`
	OwnerID    int64  `json:"owner_id"`
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	PageNumber int    `json:"page_number"`
}

// Metadata carries the per-page context attached to every fragment produced
// from that page. It is copied into each fragment verbatim.
type Metadata struct {
	OwnerID    int64
	DocumentID string
	FileName   string
	PageNumber int
}

// Hit is a fragment returned by a search together with its relevance score.
// The score scale is store-defined and treated as opaque.
type Hit struct {
	Fragment Fragment `json:"fragment"`
	Score    float64  `json:"score"`
}

// DocumentRef identifies one logical document of an owner. Documents have no
// standalone storage record; refs are derived from distinct
// (file_name, document_id) pairs among the owner's fragments.
type DocumentRef struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
}

// IndexedFragment pairs a fragment with the embedding it is stored under.
type IndexedFragment struct {
	Fragment
	Vector []float32 `json:"-"`
}

// DropResult reports the outcome of dropping a collection. Failures are
// reported through the accompanying error, so callers can tell "absent" from
// "failed" instead of collapsing both into false.
type DropResult int

const (
	DropUnknown DropResult = iota
	Dropped
	DropNotFound
)

// FragmentStore is the gateway to the search store. Every read and delete
// takes the owner id so cross-owner access is impossible by construction.
type FragmentStore interface {
	// EnsureCollection creates the named collection. It returns false with a
	// nil error when the collection already exists.
	EnsureCollection(ctx context.Context, name string) (created bool, err error)

	// DropCollection removes the named collection.
	DropCollection(ctx context.Context, name string) (DropResult, error)

	// AddFragments appends one page's fragment batch. Fragments within the
	// batch are written in chunk order; ordering across batches is
	// unspecified and partial writes are possible if a caller stops mid-loop.
	AddFragments(ctx context.Context, name string, fragments []IndexedFragment) error

	// FragmentsByOwner scans all fragments of one owner using cursor
	// pagination, accumulating pages until an empty one. Cursor expiry is an
	// error, never a partial result.
	FragmentsByOwner(ctx context.Context, name string, ownerID int64) ([]Fragment, error)

	// DeleteByDocument removes every fragment matching the owner and document.
	DeleteByDocument(ctx context.Context, name string, ownerID int64, documentID string) error

	// SearchLexical runs a BM25-style match query scoped to the owner.
	SearchLexical(ctx context.Context, name string, ownerID int64, query string, limit int) ([]Hit, error)

	// SearchVector runs a similarity query scoped to the owner.
	SearchVector(ctx context.Context, name string, ownerID int64, vector []float32, limit int) ([]Hit, error)
}

// Embedder turns text into fixed-length vectors. Implementations batch
// document calls to respect provider rate and size limits.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
