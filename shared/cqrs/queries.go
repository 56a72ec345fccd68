package cqrs

import "github.com/thryec/pebbles-backend/shared/models"

// ---------- Analytics queries ----------

// TransactionStatsQuery aggregates a user's transactions.
type TransactionStatsQuery struct {
	UserID string
	Params models.AnalyticsParams
}

// FilterTransactionsQuery lists a user's transactions matching Params.
type FilterTransactionsQuery struct {
	UserID string
	Params models.AnalyticsParams
	Limit  int
}

// MonthlySummaryQuery totals a user's transactions per calendar month.
type MonthlySummaryQuery struct {
	UserID string
	Params models.AnalyticsParams
}
