package analyticscache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thryec/pebbles-backend/shared/models"
)

// PostgresBackend stores entries in the analytics_cache table. Postgres has no
// native expiry, so expired rows linger until read or swept.
type PostgresBackend struct {
	db *sql.DB
}

var (
	_ Backend = (*PostgresBackend)(nil)
	_ Sweeper = (*PostgresBackend)(nil)
)

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Load(ctx context.Context, owner, key string) (*models.AnalyticsCacheEntry, error) {
	query := `
		SELECT query_type, params, results, schema_version, created_at, expires_at, last_accessed, access_count
		FROM analytics_cache
		WHERE owner = $1 AND cache_key = $2
	`
	entry := models.AnalyticsCacheEntry{Owner: owner, Key: key}
	var params, results []byte
	err := b.db.QueryRowContext(ctx, query, owner, key).Scan(
		&entry.QueryType, &params, &results, &entry.Results.SchemaVersion,
		&entry.CreatedAt, &entry.ExpiresAt, &entry.LastAccessed, &entry.AccessCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	if err := json.Unmarshal(params, &entry.Params); err != nil {
		return nil, fmt.Errorf("failed to decode cached params: %w", err)
	}
	entry.Results.Payload = json.RawMessage(results)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.ExpiresAt = entry.ExpiresAt.UTC()
	entry.LastAccessed = entry.LastAccessed.UTC()
	return &entry, nil
}

func (b *PostgresBackend) Save(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	results := []byte(entry.Results.Payload)
	if len(results) == 0 {
		results = []byte("null")
	}

	query := `
		INSERT INTO analytics_cache (owner, cache_key, query_type, params, results, schema_version,
			created_at, expires_at, last_accessed, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		ON CONFLICT (owner, cache_key) DO UPDATE SET
			query_type = EXCLUDED.query_type,
			params = EXCLUDED.params,
			results = EXCLUDED.results,
			schema_version = EXCLUDED.schema_version,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			last_accessed = EXCLUDED.last_accessed,
			access_count = 0
	`
	_, err = b.db.ExecContext(ctx, query,
		entry.Owner, entry.Key, entry.QueryType, params, results, entry.Results.SchemaVersion,
		entry.CreatedAt, entry.ExpiresAt, entry.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Touch(ctx context.Context, entry *models.AnalyticsCacheEntry) error {
	query := `
		UPDATE analytics_cache
		SET access_count = access_count + 1, last_accessed = GREATEST(last_accessed, $4)
		WHERE owner = $1 AND cache_key = $2 AND created_at = $3
	`
	if _, err := b.db.ExecContext(ctx, query, entry.Owner, entry.Key, entry.CreatedAt, entry.LastAccessed); err != nil {
		return fmt.Errorf("failed to record cache access: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, owner, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM analytics_cache WHERE owner = $1 AND cache_key = $2`, owner, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Purge(ctx context.Context, owner string) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM analytics_cache WHERE owner = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (b *PostgresBackend) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM analytics_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
