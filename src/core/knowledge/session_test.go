package knowledge

import (
	"errors"
	"testing"
	"time"
)

func TestTokenCacheConsume(t *testing.T) {
	c := NewTokenCache()
	ref := DocumentRef{DocumentID: "doc-1", FileName: "report.pdf"}

	token := c.Put(42, ref)

	entry, err := c.Consume(42, token)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if entry.DocumentID != ref.DocumentID || entry.FileName != ref.FileName {
		t.Errorf("Consume() = %+v, want %+v", entry, ref)
	}

	// A token is single-use.
	if _, err := c.Consume(42, token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("second Consume() error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenCacheUnknownToken(t *testing.T) {
	c := NewTokenCache()

	if _, err := c.Consume(42, "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Consume() error = %v, want ErrTokenNotFound", err)
	}
	if _, err := c.Peek(42, "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Peek() error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenCacheOwnerScoping(t *testing.T) {
	c := NewTokenCache()
	token := c.Put(42, DocumentRef{DocumentID: "doc-1", FileName: "report.pdf"})

	// Another owner cannot use the token.
	if _, err := c.Consume(43, token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Consume() for wrong owner error = %v, want ErrTokenNotFound", err)
	}

	// The right owner still can.
	if _, err := c.Consume(42, token); err != nil {
		t.Errorf("Consume() for right owner error = %v", err)
	}
}

func TestTokenCacheTTL(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewTokenCache(WithTokenTTL(time.Minute))
	c.now = func() time.Time { return clock }

	token := c.Put(42, DocumentRef{DocumentID: "doc-1", FileName: "report.pdf"})

	clock = clock.Add(30 * time.Second)
	if _, err := c.Peek(42, token); err != nil {
		t.Fatalf("Peek() before expiry error = %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.Consume(42, token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Consume() after expiry error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenCacheCapacityEvictsOldest(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewTokenCache(WithTokenCapacity(2))
	c.now = func() time.Time { return clock }

	first := c.Put(42, DocumentRef{DocumentID: "doc-1"})
	clock = clock.Add(time.Second)
	second := c.Put(42, DocumentRef{DocumentID: "doc-2"})
	clock = clock.Add(time.Second)
	third := c.Put(42, DocumentRef{DocumentID: "doc-3"})

	if _, err := c.Peek(42, first); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("oldest token still present, Peek() error = %v, want ErrTokenNotFound", err)
	}
	if _, err := c.Peek(42, second); err != nil {
		t.Errorf("Peek(second) error = %v", err)
	}
	if _, err := c.Peek(42, third); err != nil {
		t.Errorf("Peek(third) error = %v", err)
	}
}

func TestTokenCacheReplaceAll(t *testing.T) {
	c := NewTokenCache()

	stale := c.Put(42, DocumentRef{DocumentID: "doc-1", FileName: "old.pdf"})

	refs := []DocumentRef{
		{DocumentID: "doc-2", FileName: "a.pdf"},
		{DocumentID: "doc-3", FileName: "b.pdf"},
	}
	tokens := c.ReplaceAll(42, refs)

	if len(tokens) != len(refs) {
		t.Fatalf("ReplaceAll() returned %d tokens, want %d", len(tokens), len(refs))
	}

	// Old tokens are invalidated by a fresh listing.
	if _, err := c.Peek(42, stale); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("stale token still present, Peek() error = %v, want ErrTokenNotFound", err)
	}

	// New tokens map to their refs in order.
	for i, token := range tokens {
		entry, err := c.Peek(42, token)
		if err != nil {
			t.Fatalf("Peek(tokens[%d]) error = %v", i, err)
		}
		if entry.DocumentID != refs[i].DocumentID {
			t.Errorf("tokens[%d] maps to %q, want %q", i, entry.DocumentID, refs[i].DocumentID)
		}
	}
}
