package command

import (
	"context"
	"log/slog"

	"github.com/thryec/pebbles-backend/analytics-service/internal/analyticscache"
	"github.com/thryec/pebbles-backend/shared/cqrs"
	"github.com/thryec/pebbles-backend/shared/events"
)

// Reasons attached to analytics.cache_purged events.
const (
	PurgeReasonUserRequest = "user_request"
	PurgeReasonTransaction = "transaction_changed"
)

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AnalyticsCommandService owns cache invalidation. Cached analytics are only
// dropped, never edited: the next read recomputes them.
type AnalyticsCommandService struct {
	cache     *analyticscache.Store
	publisher EventPublisher
	logger    *slog.Logger
}

func NewAnalyticsCommandService(cache *analyticscache.Store, publisher EventPublisher, logger *slog.Logger) *AnalyticsCommandService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsCommandService{
		cache:     cache,
		publisher: publisher,
		logger:    logger.With("component", "analytics-command"),
	}
}

// PurgeUserCache drops every cached result of the requesting user and reports
// how many entries were removed.
func (s *AnalyticsCommandService) PurgeUserCache(ctx context.Context, cmd cqrs.PurgeAnalyticsCacheCommand) (int, error) {
	if cmd.UserID == "" {
		return 0, cqrs.ErrForbidden
	}
	return s.purge(ctx, cmd.UserID, PurgeReasonUserRequest), nil
}

// HandleTransactionEvent purges the caches of both parties of a transaction
// that was created or changed status.
func (s *AnalyticsCommandService) HandleTransactionEvent(ctx context.Context, event events.Event) error {
	var users []string
	switch event.Type {
	case events.TransactionCreated:
		var data events.TransactionCreatedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		users = []string{data.FromUserID, data.ToUserID}
	case events.TransactionStatusUpdated:
		var data events.TransactionStatusUpdatedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		users = []string{data.FromUserID, data.ToUserID}
	default:
		return nil
	}

	seen := map[string]bool{}
	for _, u := range users {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		s.purge(ctx, u, PurgeReasonTransaction)
	}
	return nil
}

func (s *AnalyticsCommandService) purge(ctx context.Context, userID, reason string) int {
	removed := s.cache.PurgeOwner(ctx, userID)
	s.logger.Info("purged analytics cache", "userId", userID, "reason", reason, "removed", removed)

	if s.publisher == nil {
		return removed
	}
	if err := s.publisher.Publish(ctx, events.AnalyticsEventsStream, events.AnalyticsCachePurged, events.AnalyticsCachePurgedEvent{
		UserID:  userID,
		Reason:  reason,
		Removed: removed,
	}); err != nil {
		s.logger.Warn("failed to publish analytics.cache_purged event", "userId", userID, "err", err)
	}
	return removed
}
