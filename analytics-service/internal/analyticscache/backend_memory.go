package analyticscache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/thryec/pebbles-backend/shared/models"
)

// MemoryBackend keeps entries in a size-bounded, in-process LRU. maxTTL is a
// hard ceiling on residency; logical expiry is still decided by ExpiresAt.
type MemoryBackend struct {
	mu   sync.Mutex
	data *expirable.LRU[string, models.AnalyticsCacheEntry]
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Sweeper = (*MemoryBackend)(nil)
)

func NewMemoryBackend(capacity int, maxTTL time.Duration) *MemoryBackend {
	return &MemoryBackend{
		data: expirable.NewLRU[string, models.AnalyticsCacheEntry](capacity, nil, maxTTL),
	}
}

func (b *MemoryBackend) Load(ctx context.Context, owner, key string) (*models.AnalyticsCacheEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.data.Get(storageKey(owner, key))
	if !ok {
		return nil, ErrMiss
	}
	out := cloneEntry(entry)
	return &out, nil
}

func (b *MemoryBackend) Save(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data.Add(storageKey(entry.Owner, entry.Key), cloneEntry(*entry))
	return nil
}

func (b *MemoryBackend) Touch(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := storageKey(entry.Owner, entry.Key)
	cur, ok := b.data.Peek(k)
	if !ok || !cur.CreatedAt.Equal(entry.CreatedAt) {
		return nil
	}
	cur.AccessCount++
	if entry.LastAccessed.After(cur.LastAccessed) {
		cur.LastAccessed = entry.LastAccessed
	}
	b.data.Add(k, cur)
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, owner, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data.Remove(storageKey(owner, key))
	return nil
}

func (b *MemoryBackend) Purge(ctx context.Context, owner string) (int, error) {
	return b.removeWhere(func(e models.AnalyticsCacheEntry) bool {
		return e.Owner == owner
	}), nil
}

func (b *MemoryBackend) Sweep(ctx context.Context, now time.Time) (int, error) {
	return b.removeWhere(func(e models.AnalyticsCacheEntry) bool {
		return !e.IsValid(now)
	}), nil
}

func (b *MemoryBackend) Len() int {
	return b.data.Len()
}

func (b *MemoryBackend) removeWhere(match func(models.AnalyticsCacheEntry) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for _, k := range b.data.Keys() {
		if e, ok := b.data.Peek(k); ok && match(e) {
			b.data.Remove(k)
			removed++
		}
	}
	return removed
}

// cloneEntry copies the slices of an entry so callers cannot mutate what is
// stored.
func cloneEntry(e models.AnalyticsCacheEntry) models.AnalyticsCacheEntry {
	e.Params.Categories = slices.Clone(e.Params.Categories)
	e.Params.Tags = slices.Clone(e.Params.Tags)
	e.Params.Clients = slices.Clone(e.Params.Clients)
	e.Results.Payload = slices.Clone(e.Results.Payload)
	return e
}
