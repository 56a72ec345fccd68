package analyticscache

import (
	"context"
	"errors"
	"time"

	"github.com/thryec/pebbles-backend/shared/models"
)

// ErrMiss is returned by Backend.Load when no entry is stored for a key.
var ErrMiss = errors.New("analytics cache miss")

// Backend persists cache entries. Implementations must partition storage by
// owner and provide atomic reads and writes per (owner, key).
type Backend interface {
	// Load returns the stored entry or ErrMiss. It may return entries that
	// have already expired.
	Load(ctx context.Context, owner, key string) (*models.AnalyticsCacheEntry, error)

	// Save replaces whatever is stored for (entry.Owner, entry.Key).
	Save(ctx context.Context, entry *models.AnalyticsCacheEntry) error

	// Touch records one access at entry.LastAccessed. It only applies when
	// the stored entry is still the one created at entry.CreatedAt, so a hit
	// racing a Save never brings back overwritten results.
	Touch(ctx context.Context, entry *models.AnalyticsCacheEntry) error

	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, owner, key string) error

	// Purge removes every entry of owner and reports how many were removed.
	Purge(ctx context.Context, owner string) (int, error)
}

// Sweeper is implemented by backends that do not expire entries on their own.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

const storagePrefix = "analytics/"

// storageKey is unambiguous because key is a fixed-length hex digest.
func storageKey(owner, key string) string {
	return storagePrefix + owner + "/" + key
}
