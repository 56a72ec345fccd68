package models

// Transaction types and statuses recorded by the payment side of the platform.
// Analytics only move money totals for completed transactions.
const (
	TransactionTypePayment      = "payment"
	TransactionTypeTip          = "tip"
	TransactionTypeSubscription = "subscription"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)
