package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/thryec/pebbles-backend/shared/models"
)

const (
	// MaxFilterResults caps the rows a filter query loads.
	MaxFilterResults = 500
	maxDetailRows    = 100
)

// groupExpressions maps the supported groupBy values to the SQL that yields
// the group key.
var groupExpressions = map[string]string{
	"category": "COALESCE(category, '')",
	"client":   "COALESCE(client, '')",
	"type":     "type",
	"status":   "status",
	"project":  "COALESCE(project_id, '')",
	"day":      "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	"week":     `to_char(created_at AT TIME ZONE 'UTC', 'IYYY-"W"IW')`,
	"month":    "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM')",
}

// ValidGroupBy reports whether groupBy names a supported grouping.
func ValidGroupBy(groupBy string) bool {
	_, ok := groupExpressions[strings.TrimSpace(groupBy)]
	return ok
}

// TransactionReadRepository aggregates a user's transactions straight from
// PostgreSQL. A user sees every transaction they sent or received. Money
// totals only count completed transactions.
type TransactionReadRepository struct {
	db *sql.DB
}

func NewTransactionReadRepository(db *sql.DB) *TransactionReadRepository {
	return &TransactionReadRepository{db: db}
}

// whereClause collects AND-ed conditions. A "?" in a condition is replaced by
// the positional placeholder of its argument.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *whereClause) String() string {
	return strings.Join(w.conds, " AND ")
}

// cleanList trims items and drops blank ones.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ownerFilter selects owner's transactions matching params. The owner is
// always $1.
func ownerFilter(owner string, params models.AnalyticsParams, now time.Time) *whereClause {
	w := &whereClause{}
	w.add("(from_user_id = ? OR to_user_id = ?)", owner)

	start, end := params.DateRange(now)
	if !start.IsZero() {
		w.add("created_at >= ?", start.UTC())
	}
	if !end.IsZero() {
		w.add("created_at <= ?", end.UTC())
	}
	if t := strings.TrimSpace(params.TransactionType); t != "" {
		w.add("type = ?", t)
	}
	if l := cleanList(params.Categories); len(l) > 0 {
		w.add("category = ANY(?)", pq.Array(l))
	}
	if l := cleanList(params.Tags); len(l) > 0 {
		w.add("tags && ?", pq.Array(l))
	}
	if l := cleanList(params.Clients); len(l) > 0 {
		w.add("client = ANY(?)", pq.Array(l))
	}
	if c := strings.TrimSpace(params.Currency); c != "" {
		w.add("currency = ?", strings.ToUpper(c))
	}
	return w
}

// Stats totals owner's transactions, optionally grouped and with the most
// recent matching transactions attached.
func (r *TransactionReadRepository) Stats(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.TransactionStats, error) {
	w := ownerFilter(owner, params, now)
	query := `
		SELECT status, type, COUNT(*),
			COALESCE(SUM(CASE WHEN to_user_id = $1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN from_user_id = $1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE ` + w.String() + `
		GROUP BY status, type
	`
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	defer rows.Close()

	stats := &models.TransactionStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]float64{},
	}
	for rows.Next() {
		var status, txType string
		var count int64
		var received, sent float64
		if err := rows.Scan(&status, &txType, &count, &received, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan transaction totals: %w", err)
		}
		stats.Count += count
		stats.ByStatus[status] += count
		if status != models.TransactionStatusCompleted {
			continue
		}
		stats.TotalReceived += received
		stats.TotalSent += sent
		stats.ByType[txType] += received + sent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transaction totals: %w", err)
	}
	stats.Net = stats.TotalReceived - stats.TotalSent

	if groupBy := strings.TrimSpace(params.GroupBy); ValidGroupBy(groupBy) {
		groups, err := r.groups(ctx, w, groupBy)
		if err != nil {
			return nil, err
		}
		stats.GroupBy = groupBy
		stats.Groups = groups
	}

	if params.WantDetails() {
		views, err := r.list(ctx, owner, w, maxDetailRows)
		if err != nil {
			return nil, err
		}
		stats.Transactions = views
	}
	return stats, nil
}

func (r *TransactionReadRepository) groups(ctx context.Context, w *whereClause, groupBy string) ([]models.StatsGroup, error) {
	query := `
		SELECT ` + groupExpressions[groupBy] + ` AS group_key, COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' AND to_user_id = $1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' AND from_user_id = $1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE ` + w.String() + `
		GROUP BY group_key
		ORDER BY group_key
	`
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group transactions by %s: %w", groupBy, err)
	}
	defer rows.Close()

	groups := []models.StatsGroup{}
	for rows.Next() {
		var g models.StatsGroup
		if err := rows.Scan(&g.Key, &g.Count, &g.Received, &g.Sent); err != nil {
			return nil, fmt.Errorf("failed to scan transaction group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transaction groups: %w", err)
	}
	return groups, nil
}

// Filter returns how many of owner's transactions match params and the most
// recent MaxFilterResults of them.
func (r *TransactionReadRepository) Filter(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.TransactionFilterResult, error) {
	w := ownerFilter(owner, params, now)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE `+w.String(), w.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	views, err := r.list(ctx, owner, w, MaxFilterResults)
	if err != nil {
		return nil, err
	}
	return &models.TransactionFilterResult{Total: total, Transactions: views}, nil
}

func (r *TransactionReadRepository) list(ctx context.Context, owner string, w *whereClause, limit int) ([]models.TransactionView, error) {
	args := append(slices.Clone(w.args), limit)
	query := `
		SELECT id, type, from_user_id, to_user_id, amount, currency, status, category, tags, client, project_id, created_at
		FROM transactions
		WHERE ` + w.String() + `
		ORDER BY created_at DESC, id
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	views := []models.TransactionView{}
	for rows.Next() {
		var view models.TransactionView
		var fromUserID, category, client, projectID sql.NullString
		var toUserID string
		var tags pq.StringArray

		if err := rows.Scan(
			&view.ID, &view.Type, &fromUserID, &toUserID,
			&view.Amount, &view.Currency, &view.Status,
			&category, &tags, &client, &projectID, &view.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		view.Direction = "out"
		if toUserID == owner {
			view.Direction = "in"
		}
		view.Category = category.String
		view.Client = client.String
		view.ProjectID = projectID.String
		view.Tags = []string(tags)
		if view.Tags == nil {
			view.Tags = []string{}
		}
		view.CreatedAt = view.CreatedAt.UTC()
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return views, nil
}

// MonthlySummary totals owner's completed transactions per calendar month
// (UTC), oldest month first.
func (r *TransactionReadRepository) MonthlySummary(ctx context.Context, owner string, params models.AnalyticsParams, now time.Time) (*models.MonthlySummary, error) {
	w := ownerFilter(owner, params, now)
	query := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month, COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' AND to_user_id = $1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' AND from_user_id = $1 THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE ` + w.String() + `
		GROUP BY month
		ORDER BY month
	`
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise transactions: %w", err)
	}
	defer rows.Close()

	summary := &models.MonthlySummary{
		Currency: strings.ToUpper(strings.TrimSpace(params.Currency)),
		Months:   []models.MonthSummary{},
	}
	for rows.Next() {
		var m models.MonthSummary
		if err := rows.Scan(&m.Month, &m.Count, &m.Received, &m.Sent); err != nil {
			return nil, fmt.Errorf("failed to scan monthly totals: %w", err)
		}
		summary.Months = append(summary.Months, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monthly totals: %w", err)
	}
	return summary, nil
}
