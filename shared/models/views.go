package models

import (
	"encoding/json"
	"time"
)

// TransactionView is the read-optimised projection of a transaction as seen by one of its parties.
// Direction is "in" when the viewer received the funds and "out" when they sent them.
type TransactionView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Client    string    `json:"client,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TransactionStats is the payload of a "transaction-stats" query.
type TransactionStats struct {
	TotalReceived float64            `json:"totalReceived"`
	TotalSent     float64            `json:"totalSent"`
	Net           float64            `json:"net"`
	Count         int64              `json:"count"`
	ByStatus      map[string]int64   `json:"byStatus"`
	ByType        map[string]float64 `json:"byType"`
	GroupBy       string             `json:"groupBy,omitempty"`
	Groups        []StatsGroup       `json:"groups,omitempty"`
	Transactions  []TransactionView  `json:"transactions,omitempty"`
}

type StatsGroup struct {
	Key      string  `json:"key"`
	Count    int64   `json:"count"`
	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
}

// TransactionFilterResult is the payload of a "transaction-filter" query.
type TransactionFilterResult struct {
	Total        int64             `json:"total"`
	Transactions []TransactionView `json:"transactions"`
}

// MonthlySummary is the payload of a "monthly-summary" query.
type MonthlySummary struct {
	Currency string         `json:"currency,omitempty"`
	Months   []MonthSummary `json:"months"`
}

type MonthSummary struct {
	Month    string  `json:"month"` // YYYY-MM
	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
	Count    int64   `json:"count"`
}

// AnalyticsView is what the API returns for every analytics query.
type AnalyticsView struct {
	QueryType   string          `json:"queryType"`
	Cached      bool            `json:"cached"`
	GeneratedAt time.Time       `json:"generatedAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Data        json.RawMessage `json:"data"`
}
