package analyticscache

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresBackend(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresBackend(db), mock
}

func TestPostgresBackendLoad(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"query_type", "params", "results", "schema_version",
		"created_at", "expires_at", "last_accessed", "access_count",
	}).AddRow(
		"monthly-summary", []byte(`{"period":"month"}`), []byte(`{"total":100}`), 1,
		created, created.Add(time.Hour), created.Add(time.Minute), int64(3),
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM analytics_cache")).
		WithArgs("u1", "k1").
		WillReturnRows(rows)

	entry, err := backend.Load(context.Background(), "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "u1", entry.Owner)
	assert.Equal(t, "k1", entry.Key)
	assert.Equal(t, "monthly-summary", entry.QueryType)
	require.NotNil(t, entry.Params.Period)
	assert.EqualValues(t, "month", *entry.Params.Period)
	assert.Equal(t, 1, entry.Results.SchemaVersion)
	assert.JSONEq(t, `{"total":100}`, string(entry.Results.Payload))
	assert.True(t, created.Add(time.Hour).Equal(entry.ExpiresAt))
	assert.EqualValues(t, 3, entry.AccessCount)
}

func TestPostgresBackendLoadMiss(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM analytics_cache")).
		WithArgs("u1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := backend.Load(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestPostgresBackendSaveUpserts(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	entry := testEntry(t, "u1", created, time.Hour, 7)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (owner, cache_key) DO UPDATE")).
		WithArgs("u1", entry.Key, "transaction-stats", sqlmock.AnyArg(), sqlmock.AnyArg(), 1,
			created, created.Add(time.Hour), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, backend.Save(context.Background(), entry))
}

func TestPostgresBackendTouchIsGuardedByGeneration(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	entry := testEntry(t, "u1", created, time.Hour, 7)
	entry.LastAccessed = created.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("SET access_count = access_count + 1")).
		WithArgs("u1", entry.Key, created, created.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, backend.Touch(context.Background(), entry))
}

func TestPostgresBackendDeletePurgeSweep(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_cache WHERE owner = $1 AND cache_key = $2")).
		WithArgs("u1", "k1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_cache WHERE owner = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_cache WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, backend.Delete(ctx, "u1", "k1"))

	n, err := backend.Purge(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = backend.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreSweepsPostgresBackend(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	store, clock := newTestStore(t, backend)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_cache WHERE expires_at <= $1")).
		WithArgs(clock.Now()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	assert.Equal(t, 5, store.Sweep(context.Background()))
}

func TestStorePostgresFailureIsMiss(t *testing.T) {
	backend, mock := newMockPostgresBackend(t)
	store, _ := newTestStore(t, backend)

	mock.ExpectQuery(regexp.QuoteMeta("FROM analytics_cache")).
		WillReturnError(sql.ErrConnDone)

	_, ok := store.FindByParams(context.Background(), "u1", "transaction-stats", testEntry(t, "u1", time.Now(), time.Hour, 1).Params)
	assert.False(t, ok)
}
