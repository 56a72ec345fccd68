package cqrs

// PurgeAnalyticsCacheCommand drops every cached analytics result of a user.
type PurgeAnalyticsCacheCommand struct {
	UserID string
}
