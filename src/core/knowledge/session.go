package knowledge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTokenTTL bounds how long an unconfirmed delete choice stays valid.
const DefaultTokenTTL = 10 * time.Minute

// DefaultTokenCapacity bounds how many pending tokens one owner can hold.
const DefaultTokenCapacity = 64

// PendingDelete maps an opaque token back to the document a user may confirm
// deleting. Tokens keep callback payloads small.
type PendingDelete struct {
	DocumentID string
	FileName   string
	createdAt  time.Time
}

// TokenCache holds per-owner pending-delete tokens. Entries expire after a
// TTL and each owner is capped to a fixed number of live tokens, so an
// abandoned confirmation can never grow the cache without bound. Safe for
// concurrent use.
type TokenCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	owners   map[int64]map[string]PendingDelete
	now      func() time.Time
}

// TokenCacheOption configures a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenTTL sets the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTokenCapacity sets the per-owner token limit.
func WithTokenCapacity(n int) TokenCacheOption {
	return func(c *TokenCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewTokenCache creates a TokenCache with the given options.
func NewTokenCache(opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		ttl:      DefaultTokenTTL,
		capacity: DefaultTokenCapacity,
		owners:   make(map[int64]map[string]PendingDelete),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put registers a pending delete for the owner and returns its opaque token.
// When the owner is at capacity, the oldest entry is evicted first.
func (c *TokenCache) Put(ownerID int64, ref DocumentRef) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.owners[ownerID]
	if entries == nil {
		entries = make(map[string]PendingDelete)
		c.owners[ownerID] = entries
	}
	c.evictExpiredLocked(entries)

	for len(entries) >= c.capacity {
		c.evictOldestLocked(entries)
	}

	token := uuid.New().String()
	entries[token] = PendingDelete{
		DocumentID: ref.DocumentID,
		FileName:   ref.FileName,
		createdAt:  c.now(),
	}
	return token
}

// ReplaceAll drops the owner's existing tokens and registers a fresh set,
// returning tokens in the same order as refs. Used when a new listing is
// rendered and old callback payloads become stale.
func (c *TokenCache) ReplaceAll(ownerID int64, refs []DocumentRef) []string {
	c.mu.Lock()
	delete(c.owners, ownerID)
	c.mu.Unlock()

	tokens := make([]string, 0, len(refs))
	for _, ref := range refs {
		tokens = append(tokens, c.Put(ownerID, ref))
	}
	return tokens
}

// Consume removes the token and returns its pending delete. Returns
// ErrTokenNotFound for unknown, expired, or foreign-owner tokens. A failed
// downstream delete must not re-Consume; callers call Consume only after the
// delete succeeded, keeping the flow retry-safe.
func (c *TokenCache) Consume(ownerID int64, token string) (PendingDelete, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.owners[ownerID]
	if entries == nil {
		return PendingDelete{}, ErrTokenNotFound
	}
	c.evictExpiredLocked(entries)

	entry, ok := entries[token]
	if !ok {
		return PendingDelete{}, ErrTokenNotFound
	}
	delete(entries, token)
	if len(entries) == 0 {
		delete(c.owners, ownerID)
	}
	return entry, nil
}

// Peek returns the pending delete for a token without consuming it.
func (c *TokenCache) Peek(ownerID int64, token string) (PendingDelete, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.owners[ownerID]
	if entries == nil {
		return PendingDelete{}, ErrTokenNotFound
	}
	c.evictExpiredLocked(entries)

	entry, ok := entries[token]
	if !ok {
		return PendingDelete{}, ErrTokenNotFound
	}
	return entry, nil
}

func (c *TokenCache) evictExpiredLocked(entries map[string]PendingDelete) {
	cutoff := c.now().Add(-c.ttl)
	for token, entry := range entries {
		if entry.createdAt.Before(cutoff) {
			delete(entries, token)
		}
	}
}

func (c *TokenCache) evictOldestLocked(entries map[string]PendingDelete) {
	var oldest string
	var oldestAt time.Time
	for token, entry := range entries {
		if oldest == "" || entry.createdAt.Before(oldestAt) {
			oldest = token
			oldestAt = entry.createdAt
		}
	}
	if oldest != "" {
		delete(entries, oldest)
	}
}
