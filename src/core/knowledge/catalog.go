package knowledge

import (
	"context"
	"fmt"
	"sort"

	"knowbot/src/infrastructure/log"
)

// Catalog answers document-level questions about the collection: which
// documents an owner has, deleting one, and resetting the collection itself.
type Catalog struct {
	store      FragmentStore
	collection string
}

// NewCatalog creates a Catalog.
func NewCatalog(store FragmentStore, collection string) *Catalog {
	return &Catalog{store: store, collection: collection}
}

// ListDocuments scans all of the owner's fragments and returns the distinct
// (file name, document id) pairs, sorted by file name for a stable listing.
// An owner with no fragments gets an empty list.
func (c *Catalog) ListDocuments(ctx context.Context, ownerID int64) ([]DocumentRef, error) {
	fragments, err := c.store.FragmentsByOwner(ctx, c.collection, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}

	seen := make(map[DocumentRef]struct{})
	refs := make([]DocumentRef, 0)
	for _, f := range fragments {
		ref := DocumentRef{DocumentID: f.DocumentID, FileName: f.FileName}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FileName != refs[j].FileName {
			return refs[i].FileName < refs[j].FileName
		}
		return refs[i].DocumentID < refs[j].DocumentID
	})
	return refs, nil
}

// DeleteDocument removes every fragment of the owner's document.
func (c *Catalog) DeleteDocument(ctx context.Context, ownerID int64, documentID string) error {
	if err := c.store.DeleteByDocument(ctx, c.collection, ownerID, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	log.Info("document removed", "owner_id", ownerID, "document_id", documentID)
	return nil
}

// Reset clears the collection if it exists and recreates it. Returns true
// when an existing collection was cleared.
func (c *Catalog) Reset(ctx context.Context) (cleared bool, err error) {
	result, err := c.store.DropCollection(ctx, c.collection)
	if err != nil {
		return false, fmt.Errorf("failed to clear collection: %w", err)
	}

	if _, err := c.store.EnsureCollection(ctx, c.collection); err != nil {
		return result == Dropped, fmt.Errorf("failed to create collection: %w", err)
	}
	return result == Dropped, nil
}

// Ensure creates the collection when absent. Returns true when it was
// created on this call.
func (c *Catalog) Ensure(ctx context.Context) (bool, error) {
	created, err := c.store.EnsureCollection(ctx, c.collection)
	if err != nil {
		return false, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return created, nil
}
