package knowledge_test

import (
	"context"
	"testing"

	"knowbot/src/core/knowledge"
)

func newTestIngestor(store knowledge.FragmentStore) *knowledge.Ingestor {
	return knowledge.NewIngestor(
		store,
		constEmbedder{dims: 8},
		knowledge.NewNormalizer(),
		knowledge.NewChunker(),
		"kb",
	)
}

func TestIngestPages(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	pages := []knowledge.Page{
		{Number: 0, Text: "First page about market trends."},
		{Number: 1, Text: "Second page about growth."},
	}

	stored, err := newTestIngestor(store).IngestPages(ctx, pages, 42, "doc-1", "report.pdf")
	if err != nil {
		t.Fatalf("IngestPages() error = %v", err)
	}
	if stored != 2 {
		t.Errorf("IngestPages() stored %d fragments, want 2", stored)
	}

	fragments, err := store.FragmentsByOwner(ctx, "kb", 42)
	if err != nil {
		t.Fatalf("FragmentsByOwner() error = %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("owner has %d fragments, want 2", len(fragments))
	}
	for i, f := range fragments {
		if f.OwnerID != 42 || f.DocumentID != "doc-1" || f.FileName != "report.pdf" {
			t.Errorf("fragment %d metadata = %+v", i, f)
		}
		if f.PageNumber != i {
			t.Errorf("fragment %d page = %d, want %d", i, f.PageNumber, i)
		}
	}
}

func TestIngestPagesSkipsEmptyPages(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	pages := []knowledge.Page{
		{Number: 0, Text: ""},
		{Number: 1, Text: "Only this page has text."},
	}

	stored, err := newTestIngestor(store).IngestPages(ctx, pages, 42, "doc-1", "report.pdf")
	if err != nil {
		t.Fatalf("IngestPages() error = %v", err)
	}
	if stored != 1 {
		t.Errorf("IngestPages() stored %d fragments, want 1", stored)
	}
}

func TestListDocumentsDistinctAndSorted(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	ingestor := newTestIngestor(store)
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "b content one"}, {Number: 1, Text: "b content two"}}, 42, "doc-2", "beta.pdf")
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "a content"}}, 42, "doc-1", "alpha.pdf")

	refs, err := knowledge.NewCatalog(store, "kb").ListDocuments(ctx, 42)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListDocuments() returned %d refs, want 2", len(refs))
	}
	if refs[0].FileName != "alpha.pdf" || refs[1].FileName != "beta.pdf" {
		t.Errorf("ListDocuments() order = %v, want alpha.pdf then beta.pdf", refs)
	}
}

func TestListDocumentsEmptyOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	refs, err := knowledge.NewCatalog(store, "kb").ListDocuments(ctx, 99)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("ListDocuments() returned %d refs, want 0", len(refs))
	}
}

// An upload for one owner must never surface in another owner's listing,
// retrieval, or deletes.
func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	ingestor := newTestIngestor(store)
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "private notes of owner one"}}, 1, "doc-1", "one.pdf")
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "private notes of owner two"}}, 2, "doc-2", "two.pdf")

	catalog := knowledge.NewCatalog(store, "kb")

	refs, err := catalog.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(refs) != 1 || refs[0].DocumentID != "doc-1" {
		t.Errorf("owner 1 listing = %v, want only doc-1", refs)
	}

	// Owner 1 deleting owner 2's document id must be a no-op.
	if err := catalog.DeleteDocument(ctx, 1, "doc-2"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	refs, err = catalog.ListDocuments(ctx, 2)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("owner 2 lost a document to a foreign delete, listing = %v", refs)
	}
}

func TestDeleteDocumentRemovesAllFragments(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	ingestor := newTestIngestor(store)
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "page one"}, {Number: 1, Text: "page two"}}, 42, "doc-1", "report.pdf")
	ingestor.IngestPages(ctx, []knowledge.Page{{Text: "kept content"}}, 42, "doc-2", "other.pdf")

	catalog := knowledge.NewCatalog(store, "kb")
	if err := catalog.DeleteDocument(ctx, 42, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	fragments, err := store.FragmentsByOwner(ctx, "kb", 42)
	if err != nil {
		t.Fatalf("FragmentsByOwner() error = %v", err)
	}
	for _, f := range fragments {
		if f.DocumentID == "doc-1" {
			t.Errorf("fragment of deleted document survived: %+v", f)
		}
	}
	if len(fragments) != 1 {
		t.Errorf("owner has %d fragments after delete, want 1", len(fragments))
	}
}

func TestCatalogReset(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	catalog := knowledge.NewCatalog(store, "kb")

	// Resetting a missing collection still creates it and reports nothing
	// was cleared.
	cleared, err := catalog.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if cleared {
		t.Error("Reset() of a missing collection reported cleared = true")
	}

	newTestIngestor(store).IngestPages(ctx, []knowledge.Page{{Text: "content"}}, 42, "doc-1", "report.pdf")

	cleared, err = catalog.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if !cleared {
		t.Error("Reset() of an existing collection reported cleared = false")
	}

	fragments, err := store.FragmentsByOwner(ctx, "kb", 42)
	if err != nil {
		t.Fatalf("FragmentsByOwner() error = %v", err)
	}
	if len(fragments) != 0 {
		t.Errorf("collection still has %d fragments after reset", len(fragments))
	}
}

// End-to-end over the fakes: ingest, list, retrieve, delete, list again.
func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.EnsureCollection(ctx, "kb")

	ingestor := newTestIngestor(store)
	if _, err := ingestor.IngestPages(ctx, []knowledge.Page{{Text: "The annual report covers market growth."}}, 42, "doc-1", "report.pdf"); err != nil {
		t.Fatalf("IngestPages() error = %v", err)
	}

	catalog := knowledge.NewCatalog(store, "kb")
	refs, err := catalog.ListDocuments(ctx, 42)
	if err != nil || len(refs) != 1 {
		t.Fatalf("ListDocuments() = %v, %v; want one ref", refs, err)
	}

	retriever, err := knowledge.NewRetriever(store, nil, "kb", knowledge.StrategyLexical, 4)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	hits, err := retriever.Retrieve(ctx, 42, "market growth")
	if err != nil || len(hits) == 0 {
		t.Fatalf("Retrieve() = %v, %v; want hits", hits, err)
	}

	if err := catalog.DeleteDocument(ctx, 42, refs[0].DocumentID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	refs, err = catalog.ListDocuments(ctx, 42)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("listing after delete = %v, want empty", refs)
	}
}
