package analyticscache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thryec/pebbles-backend/shared/models"
)

const (
	DefaultTTL       = 15 * time.Minute
	defaultOpTimeout = 500 * time.Millisecond
)

// Store is the analytics cache. It holds no entry state of its own; every
// entry lives in the Backend, so any number of Stores may share one backend.
type Store struct {
	backend    Backend
	defaultTTL time.Duration
	opTimeout  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultTTL sets the TTL used by Put when it is given a non-positive one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithOpTimeout bounds each backend call.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		defaultTTL: DefaultTTL,
		opTimeout:  defaultOpTimeout,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "analyticscache")
	return s
}

// clock returns the current time at the precision every backend can store.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// IsValid reports whether entry has not expired yet.
func (s *Store) IsValid(entry *models.AnalyticsCacheEntry) bool {
	return entry.IsValid(s.clock())
}

// FindByParams returns the live entry owner has for queryType and params.
// A hit records the access on the entry before returning it. Expired entries,
// entries written under an outdated result schema and backend failures are
// all reported as a miss.
func (s *Store) FindByParams(ctx context.Context, owner, queryType string, params models.AnalyticsParams) (*models.AnalyticsCacheEntry, bool) {
	key := GenerateCacheKey(queryType, params)

	opCtx, cancel := s.opContext(ctx)
	entry, err := s.backend.Load(opCtx, owner, key)
	cancel()
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			cacheErrors.WithLabelValues("load").Inc()
			s.logger.Warn("cache lookup failed", "owner", owner, "queryType", queryType, "key", key, "err", err)
		}
		cacheMisses.WithLabelValues(queryType).Inc()
		return nil, false
	}

	if entry.Owner != owner || entry.QueryType != queryType {
		cacheErrors.WithLabelValues("mismatch").Inc()
		s.logger.Error("cache entry does not match lookup", "owner", owner, "queryType", queryType, "key", key)
		cacheMisses.WithLabelValues(queryType).Inc()
		return nil, false
	}

	now := s.clock()
	if !entry.IsValid(now) || entry.Results.SchemaVersion != models.ResultSchemaVersion(queryType) {
		cacheStale.WithLabelValues(queryType).Inc()
		cacheMisses.WithLabelValues(queryType).Inc()
		s.delete(ctx, owner, key)
		return nil, false
	}

	updateAccess(entry, now)
	opCtx, cancel = s.opContext(ctx)
	defer cancel()
	if err := s.backend.Touch(opCtx, entry); err != nil {
		// the entry itself is fine; only its counters are behind
		cacheErrors.WithLabelValues("touch").Inc()
		s.logger.Warn("failed to record cache access", "owner", owner, "key", key, "err", err)
	}
	cacheHits.WithLabelValues(queryType).Inc()
	return entry, true
}

// updateAccess records one hit on entry. It is called once per successful
// FindByParams.
func updateAccess(entry *models.AnalyticsCacheEntry, now time.Time) {
	entry.LastAccessed = now
	entry.AccessCount++
}

// Put stores results for (owner, queryType, params), replacing any existing
// entry and resetting its access counters. A non-positive ttl means the store
// default. The entry is returned even if the backend write failed.
func (s *Store) Put(ctx context.Context, owner, queryType string, params models.AnalyticsParams, results models.AnalyticsResults, ttl time.Duration) *models.AnalyticsCacheEntry {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.clock()
	entry := &models.AnalyticsCacheEntry{
		Owner:        owner,
		Key:          GenerateCacheKey(queryType, params),
		QueryType:    queryType,
		Params:       params,
		Results:      results,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		AccessCount:  0,
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.backend.Save(opCtx, entry); err != nil {
		cacheErrors.WithLabelValues("save").Inc()
		s.logger.Warn("cache write failed", "owner", owner, "queryType", queryType, "key", entry.Key, "err", err)
	}
	return entry
}

// Invalidate drops the entry for (owner, queryType, params) if there is one.
func (s *Store) Invalidate(ctx context.Context, owner, queryType string, params models.AnalyticsParams) {
	s.delete(ctx, owner, GenerateCacheKey(queryType, params))
}

// PurgeOwner drops every entry of owner and reports how many were removed.
func (s *Store) PurgeOwner(ctx context.Context, owner string) int {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := s.backend.Purge(opCtx, owner)
	if err != nil {
		cacheErrors.WithLabelValues("purge").Inc()
		s.logger.Warn("cache purge failed", "owner", owner, "err", err)
	}
	cacheRemoved.WithLabelValues("purge").Add(float64(n))
	return n
}

// Sweep removes expired entries from backends that do not expire them on
// their own. It is a no-op for other backends.
func (s *Store) Sweep(ctx context.Context) int {
	sweeper, ok := s.backend.(Sweeper)
	if !ok {
		return 0
	}
	n, err := sweeper.Sweep(ctx, s.clock())
	if err != nil {
		cacheErrors.WithLabelValues("sweep").Inc()
		s.logger.Warn("cache sweep failed", "err", err)
	}
	cacheRemoved.WithLabelValues("sweep").Add(float64(n))
	return n
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if _, ok := s.backend.(Sweeper); !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.logger.Debug("swept expired cache entries", "removed", n)
			}
		}
	}
}

func (s *Store) delete(ctx context.Context, owner, key string) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.backend.Delete(opCtx, owner, key); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		s.logger.Warn("cache delete failed", "owner", owner, "key", key, "err", err)
	}
}
