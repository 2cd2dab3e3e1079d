package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formweave/formweave/model"
)

// DefaultDraftKey is the cache key prefix for builder drafts.
const DefaultDraftKey = "form-builder-draft"

// DraftEntry is a builder draft: the working configuration plus the moment
// it was captured. IsNew marks drafts of forms never saved to the store.
type DraftEntry struct {
	Config    model.FormConfig `json:"formConfig"`
	Timestamp int64            `json:"timestamp"` // unix milliseconds
	IsNew     bool             `json:"isNewForm"`
}

// Age returns how old the draft is.
func (d DraftEntry) Age() time.Duration {
	return time.Since(time.UnixMilli(d.Timestamp))
}

// DraftCache stores at most one working draft per form id. Missing drafts
// are reported through found=false, not an error.
type DraftCache interface {
	Put(ctx context.Context, formID string, entry DraftEntry) error
	Get(ctx context.Context, formID string) (DraftEntry, bool, error)
	Clear(ctx context.Context, formID string) error
}

// MemoryDraftCache is an in-memory DraftCache for tests and single-instance
// deployments.
type MemoryDraftCache struct {
	mu      sync.RWMutex
	entries map[string]DraftEntry
}

// NewMemoryDraftCache creates an in-memory draft cache.
func NewMemoryDraftCache() *MemoryDraftCache {
	return &MemoryDraftCache{entries: make(map[string]DraftEntry)}
}

// Put stores a draft.
func (c *MemoryDraftCache) Put(_ context.Context, formID string, entry DraftEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[formID] = entry
	return nil
}

// Get returns a draft when present.
func (c *MemoryDraftCache) Get(_ context.Context, formID string) (DraftEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[formID]
	return entry, ok, nil
}

// Clear removes a draft. Clearing a missing draft is not an error.
func (c *MemoryDraftCache) Clear(_ context.Context, formID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, formID)
	return nil
}

// HealthCheck always succeeds for the in-memory cache.
func (c *MemoryDraftCache) HealthCheck(context.Context) error { return nil }

// RedisDraftCache stores drafts in Redis so sessions survive process
// restarts and editing can move between instances.
type RedisDraftCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDraftCache creates a Redis draft cache. An empty prefix falls
// back to DefaultDraftKey; a zero ttl keeps drafts until cleared.
func NewRedisDraftCache(client *redis.Client, prefix string, ttl time.Duration) *RedisDraftCache {
	if prefix == "" {
		prefix = DefaultDraftKey
	}
	return &RedisDraftCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisDraftCache) key(formID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, formID)
}

// Put stores a draft.
func (c *RedisDraftCache) Put(ctx context.Context, formID string, entry DraftEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := c.client.Set(ctx, c.key(formID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("store draft: %w", err)
	}
	return nil
}

// Get returns a draft when present. Corrupt payloads count as absent so a
// bad draft can never block loading the canonical record.
func (c *RedisDraftCache) Get(ctx context.Context, formID string) (DraftEntry, bool, error) {
	payload, err := c.client.Get(ctx, c.key(formID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DraftEntry{}, false, nil
	}
	if err != nil {
		return DraftEntry{}, false, fmt.Errorf("load draft: %w", err)
	}
	var entry DraftEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return DraftEntry{}, false, nil
	}
	return entry, true, nil
}

// Clear removes a draft.
func (c *RedisDraftCache) Clear(ctx context.Context, formID string) error {
	if err := c.client.Del(ctx, c.key(formID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisDraftCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
