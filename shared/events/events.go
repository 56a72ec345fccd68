package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	TransactionCreated       = "transaction.created"
	TransactionStatusUpdated = "transaction.status_updated"

	AnalyticsCachePurged = "analytics.cache_purged"
)

// Stream names
const (
	TransactionEventsStream = "transaction.events"
	AnalyticsEventsStream   = "analytics.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// DecodeData re-decodes the loosely typed Data field into out.
func (e Event) DecodeData(out any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event data: %w", e.Type, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s event data: %w", e.Type, err)
	}
	return nil
}

// Transaction events
type TransactionCreatedEvent struct {
	TransactionID string  `json:"transactionId"`
	Type          string  `json:"type"`
	FromUserID    string  `json:"fromUserId,omitempty"`
	ToUserID      string  `json:"toUserId"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
}

type TransactionStatusUpdatedEvent struct {
	TransactionID string `json:"transactionId"`
	FromUserID    string `json:"fromUserId,omitempty"`
	ToUserID      string `json:"toUserId"`
	Status        string `json:"status"`
}

// Analytics events
type AnalyticsCachePurgedEvent struct {
	UserID  string `json:"userId"`
	Reason  string `json:"reason"`
	Removed int    `json:"removed"`
}
