package analyticscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/thryec/pebbles-backend/shared/models"
)

// ownerIndexTTL bounds how long a per-owner key index outlives its last write.
const ownerIndexTTL = 7 * 24 * time.Hour

// touchScript bumps the access counters of an entry, but only while the hash
// still belongs to the generation (creation time) that was read.
var touchScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'gen') ~= ARGV[1] then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'count', 1)
local last = tonumber(redis.call('HGET', KEYS[1], 'last') or '0')
if tonumber(ARGV[2]) > last then
	redis.call('HSET', KEYS[1], 'last', ARGV[2])
end
return 1
`)

// RedisBackend stores each entry as a msgpack document and keeps its access
// counters in a companion hash so hits can update them atomically. A set per
// owner indexes the owner's documents for Purge.
//
// The document cache runs without a local in-process tier: hits must see
// purges and counter updates made by other instances.
type RedisBackend struct {
	rdb  *redis.Client
	docs *cache.Cache
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{
		rdb:  rdb,
		docs: cache.New(&cache.Options{Redis: rdb}),
	}
}

func accessKey(docKey string) string { return docKey + ":access" }

func ownerIndexKey(owner string) string { return "analytics-owner/" + owner }

func generation(e *models.AnalyticsCacheEntry) string {
	return strconv.FormatInt(e.CreatedAt.UnixNano(), 10)
}

// physicalTTL is the time Redis keeps the keys of an entry. go-redis/cache
// rejects sub-second TTLs, so it is rounded up to whole seconds.
func physicalTTL(e *models.AnalyticsCacheEntry) time.Duration {
	ttl := e.ExpiresAt.Sub(e.CreatedAt)
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (b *RedisBackend) Load(ctx context.Context, owner, key string) (*models.AnalyticsCacheEntry, error) {
	k := storageKey(owner, key)
	var entry models.AnalyticsCacheEntry
	if err := b.docs.Get(ctx, k, &entry); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to load cache document: %w", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.ExpiresAt = entry.ExpiresAt.UTC()

	vals, err := b.rdb.HMGet(ctx, accessKey(k), "gen", "count", "last").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load access counters: %w", err)
	}
	entry.AccessCount = 0
	entry.LastAccessed = entry.CreatedAt
	if gen, _ := vals[0].(string); gen == generation(&entry) {
		if s, ok := vals[1].(string); ok {
			entry.AccessCount, _ = strconv.ParseInt(s, 10, 64)
		}
		if s, ok := vals[2].(string); ok {
			if ns, err := strconv.ParseInt(s, 10, 64); err == nil && ns > 0 {
				entry.LastAccessed = time.Unix(0, ns).UTC()
			}
		}
	}
	return &entry, nil
}

func (b *RedisBackend) Save(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	k := storageKey(entry.Owner, entry.Key)
	ttl := physicalTTL(entry)

	// Counters are written first: a reader that sees the new document but the
	// old hash falls back to zero counters instead of mixing generations.
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, accessKey(k))
		pipe.HSet(ctx, accessKey(k),
			"gen", generation(entry),
			"count", 0,
			"last", entry.LastAccessed.UnixNano(),
		)
		pipe.Expire(ctx, accessKey(k), ttl)
		pipe.SAdd(ctx, ownerIndexKey(entry.Owner), k)
		pipe.Expire(ctx, ownerIndexKey(entry.Owner), max(ttl, ownerIndexTTL))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write access counters: %w", err)
	}

	doc := *entry
	doc.AccessCount = 0
	if err := b.docs.Set(&cache.Item{
		Ctx:   ctx,
		Key:   k,
		Value: &doc,
		TTL:   ttl,
	}); err != nil {
		return fmt.Errorf("failed to write cache document: %w", err)
	}
	return nil
}

func (b *RedisBackend) Touch(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	k := storageKey(entry.Owner, entry.Key)
	err := touchScript.Run(ctx, b.rdb, []string{accessKey(k)},
		generation(entry), entry.LastAccessed.UnixNano(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to record cache access: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, owner, key string) error {
	k := storageKey(owner, key)
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k, accessKey(k))
		pipe.SRem(ctx, ownerIndexKey(owner), k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (b *RedisBackend) Purge(ctx context.Context, owner string) (int, error) {
	idx := ownerIndexKey(owner)
	members, err := b.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read owner index: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	docs := b.rdb.Del(ctx, members...)
	if err := docs.Err(); err != nil {
		return 0, fmt.Errorf("failed to purge cache documents: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, accessKey(m))
	}
	keys = append(keys, idx)
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return int(docs.Val()), fmt.Errorf("failed to purge access counters: %w", err)
	}
	return int(docs.Val()), nil
}
