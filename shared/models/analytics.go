package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Analytics query types served by the analytics service.
const (
	QueryTransactionStats  = "transaction-stats"
	QueryTransactionFilter = "transaction-filter"
	QueryMonthlySummary    = "monthly-summary"
)

// resultSchemaVersions holds the current payload version of each query type.
// Bump a version whenever the shape of its payload changes; cached entries
// written under an older version are then ignored instead of mis-decoded.
var resultSchemaVersions = map[string]int{
	QueryTransactionStats:  1,
	QueryTransactionFilter: 1,
	QueryMonthlySummary:    1,
}

// ResultSchemaVersion returns the current payload version for queryType.
// Unknown query types are version 1.
func ResultSchemaVersion(queryType string) int {
	if v, ok := resultSchemaVersions[queryType]; ok {
		return v
	}
	return 1
}

type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	}
	return false
}

// Start returns the beginning of the period that ends at now.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return now.AddDate(0, 0, -1)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	case PeriodQuarter:
		return now.AddDate(0, -3, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

// AnalyticsParams are the parameters of an analytics query. A nil pointer, an
// empty string and an empty list all mean the parameter was not given.
type AnalyticsParams struct {
	Period          *Period    `json:"period,omitempty"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	TransactionType string     `json:"transactionType,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Clients         []string   `json:"clients,omitempty"`
	GroupBy         string     `json:"groupBy,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	IncludeDetails  *bool      `json:"includeDetails,omitempty"`
}

// DateRange resolves the time window the params select. Explicit dates take
// precedence over the period; zero values mean unbounded.
func (p AnalyticsParams) DateRange(now time.Time) (start, end time.Time) {
	if p.StartDate != nil {
		start = *p.StartDate
	}
	if p.EndDate != nil {
		end = *p.EndDate
	}
	if p.StartDate == nil && p.EndDate == nil && p.Period != nil && p.Period.Valid() {
		start = p.Period.Start(now)
		end = now
	}
	return start, end
}

func (p AnalyticsParams) WantDetails() bool {
	return p.IncludeDetails != nil && *p.IncludeDetails
}

// AnalyticsResults is a computed aggregation payload tagged with the schema
// version it was encoded under.
type AnalyticsResults struct {
	SchemaVersion int             `json:"schemaVersion" msgpack:"schemaVersion"`
	Payload       json.RawMessage `json:"payload" msgpack:"payload"`
}

// EncodeResults serialises v as the current payload version of queryType.
func EncodeResults(queryType string, v any) (AnalyticsResults, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return AnalyticsResults{}, fmt.Errorf("failed to encode %s results: %w", queryType, err)
	}
	return AnalyticsResults{SchemaVersion: ResultSchemaVersion(queryType), Payload: payload}, nil
}

// DecodeResults unmarshals the payload into out.
func DecodeResults(r AnalyticsResults, out any) error {
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return fmt.Errorf("failed to decode results: %w", err)
	}
	return nil
}

// AnalyticsCacheEntry is a memoised analytics result belonging to Owner.
type AnalyticsCacheEntry struct {
	Owner        string           `json:"owner" msgpack:"owner"`
	Key          string           `json:"key" msgpack:"key"`
	QueryType    string           `json:"queryType" msgpack:"queryType"`
	Params       AnalyticsParams  `json:"params" msgpack:"params"`
	Results      AnalyticsResults `json:"results" msgpack:"results"`
	CreatedAt    time.Time        `json:"createdAt" msgpack:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt" msgpack:"expiresAt"`
	LastAccessed time.Time        `json:"lastAccessed" msgpack:"lastAccessed"`
	AccessCount  int64            `json:"accessCount" msgpack:"accessCount"`
}

// IsValid reports whether the entry has not yet expired at now.
func (e *AnalyticsCacheEntry) IsValid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
