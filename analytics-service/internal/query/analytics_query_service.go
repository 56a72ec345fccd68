package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/thryec/pebbles-backend/analytics-service/internal/analyticscache"
	"github.com/thryec/pebbles-backend/analytics-service/internal/repository"
	"github.com/thryec/pebbles-backend/shared/cqrs"
	"github.com/thryec/pebbles-backend/shared/models"
)

// DefaultFilterLimit is the page size of a filter query that names none.
const DefaultFilterLimit = 50

// TransactionAggregator computes analytics over a user's transactions.
type TransactionAggregator interface {
	Stats(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.TransactionStats, error)
	Filter(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.TransactionFilterResult, error)
	MonthlySummary(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.MonthlySummary, error)
}

// AnalyticsQueryService serves analytics reads cache-aside: a live cache entry
// answers the query, otherwise the aggregation runs and its result is cached
// for the TTL of its query type.
type AnalyticsQueryService struct {
	repo   TransactionAggregator
	cache  *analyticscache.Store
	ttls   map[string]time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewAnalyticsQueryService(repo TransactionAggregator, cache *analyticscache.Store, ttls map[string]time.Duration, logger *slog.Logger) *AnalyticsQueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsQueryService{
		repo:   repo,
		cache:  cache,
		ttls:   ttls,
		now:    time.Now,
		logger: logger.With("component", "analytics-query"),
	}
}

func (s *AnalyticsQueryService) TransactionStats(ctx context.Context, q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
	return s.cached(ctx, q.UserID, models.QueryTransactionStats, q.Params, func(now time.Time) (any, error) {
		return s.repo.Stats(ctx, q.UserID, q.Params, now)
	})
}

// FilterTransactions caches the first repository.MaxFilterResults matches
// and pages them per request, so every limit shares one cache entry.
func (s *AnalyticsQueryService) FilterTransactions(ctx context.Context, q cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error) {
	view, err := s.cached(ctx, q.UserID, models.QueryTransactionFilter, q.Params, func(now time.Time) (any, error) {
		return s.repo.Filter(ctx, q.UserID, q.Params, now)
	})
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultFilterLimit
	}
	limit = min(limit, repository.MaxFilterResults)

	var result models.TransactionFilterResult
	if err := json.Unmarshal(view.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode filter results: %w", err)
	}
	if len(result.Transactions) <= limit {
		return view, nil
	}
	result.Transactions = result.Transactions[:limit]
	if view.Data, err = json.Marshal(result); err != nil {
		return nil, fmt.Errorf("failed to encode filter results: %w", err)
	}
	return view, nil
}

// MonthlySummary defaults to the last year when neither a period nor dates are
// given.
func (s *AnalyticsQueryService) MonthlySummary(ctx context.Context, q cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error) {
	params := q.Params
	if (params.Period == nil || !params.Period.Valid()) && params.StartDate == nil && params.EndDate == nil {
		year := models.PeriodYear
		params.Period = &year
	}
	return s.cached(ctx, q.UserID, models.QueryMonthlySummary, params, func(now time.Time) (any, error) {
		return s.repo.MonthlySummary(ctx, q.UserID, params, now)
	})
}

func (s *AnalyticsQueryService) cached(
	ctx context.Context,
	owner, queryType string,
	params models.AnalyticsParams,
	compute func(now time.Time) (any, error),
) (*models.AnalyticsView, error) {
	if owner == "" {
		return nil, cqrs.ErrForbidden
	}
	if params.StartDate != nil && params.EndDate != nil && params.StartDate.After(*params.EndDate) {
		return nil, fmt.Errorf("%w: startDate is after endDate", cqrs.ErrInvalidQuery)
	}

	if entry, ok := s.cache.FindByParams(ctx, owner, queryType, params); ok {
		return entryToView(entry, true), nil
	}

	result, err := compute(s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", queryType, err)
	}
	results, err := models.EncodeResults(queryType, result)
	if err != nil {
		return nil, err
	}
	entry := s.cache.Put(ctx, owner, queryType, params, results, s.ttls[queryType])
	s.logger.Debug("computed analytics", "owner", owner, "queryType", queryType, "key", entry.Key, "expiresAt", entry.ExpiresAt)
	return entryToView(entry, false), nil
}

func entryToView(e *models.AnalyticsCacheEntry, cached bool) *models.AnalyticsView {
	return &models.AnalyticsView{
		QueryType:   e.QueryType,
		Cached:      cached,
		GeneratedAt: e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
		Data:        e.Results.Payload,
	}
}
