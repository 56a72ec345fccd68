package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thryec/pebbles-backend/shared/cqrs"
	"github.com/thryec/pebbles-backend/shared/models"
)

// ---- mock implementations ----

type mockAnalyticsCommander struct {
	purgeFn func(cqrs.PurgeAnalyticsCacheCommand) (int, error)
}

func (m *mockAnalyticsCommander) PurgeUserCache(_ context.Context, cmd cqrs.PurgeAnalyticsCacheCommand) (int, error) {
	if m.purgeFn != nil {
		return m.purgeFn(cmd)
	}
	return 0, fmt.Errorf("not configured")
}

type mockAnalyticsQuerier struct {
	statsFn   func(cqrs.TransactionStatsQuery) (*models.AnalyticsView, error)
	filterFn  func(cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error)
	monthlyFn func(cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error)
}

func (m *mockAnalyticsQuerier) TransactionStats(_ context.Context, q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
	if m.statsFn != nil {
		return m.statsFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAnalyticsQuerier) FilterTransactions(_ context.Context, q cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error) {
	if m.filterFn != nil {
		return m.filterFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAnalyticsQuerier) MonthlySummary(_ context.Context, q cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error) {
	if m.monthlyFn != nil {
		return m.monthlyFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// ---- helpers ----

func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	}
}

func newTestRouter(cmds AnalyticsCommander, qrys AnalyticsQuerier, authUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(fakeAuth(authUserID))
	h := NewAnalyticsHandler(cmds, qrys)
	api := r.Group("/api")
	api.GET("/transactions/stats", h.GetTransactionStats)
	api.POST("/transactions/filter", h.FilterTransactions)
	api.GET("/transactions/summary/monthly", h.GetMonthlySummary)
	api.DELETE("/analytics/cache", h.PurgeCache)
	return r
}

func doRequest(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ---- test data ----

func testView(queryType string, cached bool) *models.AnalyticsView {
	return &models.AnalyticsView{
		QueryType:   queryType,
		Cached:      cached,
		GeneratedAt: time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
		Data:        json.RawMessage(`{"total":100}`),
	}
}

// ---- tests ----

func TestGetTransactionStats(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		statsFn        func(cqrs.TransactionStatsQuery) (*models.AnalyticsView, error)
		expectedStatus int
		expectedCache  string
	}{
		{
			name:  "success - computed",
			query: "?period=month&groupBy=category",
			statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
				return testView(models.QueryTransactionStats, false), nil
			},
			expectedStatus: http.StatusOK,
			expectedCache:  "MISS",
		},
		{
			name:  "success - served from cache",
			query: "?tags=b,a&includeDetails=true",
			statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
				return testView(models.QueryTransactionStats, true), nil
			},
			expectedStatus: http.StatusOK,
			expectedCache:  "HIT",
		},
		{
			name:           "bad request - malformed start date",
			query:          "?startDate=yesterday",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - includeDetails is not a boolean",
			query:          "?includeDetails=maybe",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "bad request - start after end",
			query: "?startDate=2026-05-01&endDate=2026-04-01",
			statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
				return nil, fmt.Errorf("%w: startDate is after endDate", cqrs.ErrInvalidQuery)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "forbidden - no user",
			statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
				return nil, cqrs.ErrForbidden
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name: "internal error - aggregation failed",
			statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
				return nil, fmt.Errorf("failed to aggregate transactions: connection refused")
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAnalyticsCommander{}, &mockAnalyticsQuerier{statsFn: tt.statsFn}, "usr-001")
			w := doRequest(router, http.MethodGet, "/api/transactions/stats"+tt.query, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if got := w.Header().Get("X-Cache"); got != tt.expectedCache {
				t.Errorf("[%s] expected X-Cache %q got %q", tt.name, tt.expectedCache, got)
			}
		})
	}
}

func TestGetTransactionStatsParsesQuery(t *testing.T) {
	var got cqrs.TransactionStatsQuery
	querier := &mockAnalyticsQuerier{statsFn: func(q cqrs.TransactionStatsQuery) (*models.AnalyticsView, error) {
		got = q
		return testView(models.QueryTransactionStats, false), nil
	}}
	router := newTestRouter(&mockAnalyticsCommander{}, querier, "usr-001")

	url := "/api/transactions/stats?period=week&startDate=2026-01-01T00:00:00%2B02:00&endDate=2026-01-31" +
		"&type=tip&categories=design,writing&clients=acme&currency=usdc&includeDetails=false"
	w := doRequest(router, http.MethodGet, url, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d; body: %s", w.Code, w.Body.String())
	}

	p := got.Params
	if got.UserID != "usr-001" {
		t.Errorf("expected user usr-001 got %s", got.UserID)
	}
	if p.Period == nil || *p.Period != models.PeriodWeek {
		t.Errorf("expected period week got %v", p.Period)
	}
	if want := time.Date(2025, 12, 31, 22, 0, 0, 0, time.UTC); p.StartDate == nil || !p.StartDate.Equal(want) {
		t.Errorf("expected startDate %s got %v", want, p.StartDate)
	}
	if want := time.Date(2026, 1, 31, 23, 59, 59, 999999000, time.UTC); p.EndDate == nil || !p.EndDate.Equal(want) {
		t.Errorf("expected endDate %s got %v", want, p.EndDate)
	}
	if p.TransactionType != "tip" || p.Currency != "usdc" {
		t.Errorf("unexpected type/currency %q/%q", p.TransactionType, p.Currency)
	}
	if len(p.Categories) != 2 || p.Categories[1] != "writing" {
		t.Errorf("unexpected categories %v", p.Categories)
	}
	if p.Tags != nil {
		t.Errorf("expected no tags got %v", p.Tags)
	}
	if p.IncludeDetails == nil || *p.IncludeDetails {
		t.Errorf("expected includeDetails=false got %v", p.IncludeDetails)
	}
}

func TestFilterTransactions(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		filterFn       func(cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error)
		expectedStatus int
	}{
		{
			name: "success - filter by tags",
			body: map[string]interface{}{"tags": []string{"a", "b"}, "limit": 20},
			filterFn: func(q cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error) {
				if q.Limit != 20 || len(q.Params.Tags) != 2 {
					return nil, fmt.Errorf("unexpected query %+v", q)
				}
				return testView(models.QueryTransactionFilter, false), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - unknown fields are ignored",
			body: map[string]interface{}{"period": "month", "sortBy": "amount"},
			filterFn: func(q cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error) {
				return testView(models.QueryTransactionFilter, true), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad request - limit too large",
			body:           map[string]interface{}{"limit": 1000},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - malformed date",
			body:           map[string]interface{}{"startDate": "last tuesday"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "internal error - query failed",
			body: map[string]interface{}{},
			filterFn: func(q cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error) {
				return nil, fmt.Errorf("failed to count transactions")
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAnalyticsCommander{}, &mockAnalyticsQuerier{filterFn: tt.filterFn}, "usr-001")
			w := doRequest(router, http.MethodPost, "/api/transactions/filter", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetMonthlySummary(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		monthlyFn      func(cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error)
		expectedStatus int
	}{
		{
			name: "success - default period",
			monthlyFn: func(q cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error) {
				if q.Params.Period != nil {
					return nil, fmt.Errorf("period should be left to the query service")
				}
				return testView(models.QueryMonthlySummary, false), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "success - unknown period is passed through",
			query: "?period=fortnight",
			monthlyFn: func(q cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error) {
				return testView(models.QueryMonthlySummary, true), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad request - malformed end date",
			query:          "?endDate=31/01/2026",
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAnalyticsCommander{}, &mockAnalyticsQuerier{monthlyFn: tt.monthlyFn}, "usr-001")
			w := doRequest(router, http.MethodGet, "/api/transactions/summary/monthly"+tt.query, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestPurgeCache(t *testing.T) {
	tests := []struct {
		name           string
		purgeFn        func(cqrs.PurgeAnalyticsCacheCommand) (int, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success - purge own cache",
			purgeFn: func(cmd cqrs.PurgeAnalyticsCacheCommand) (int, error) {
				if cmd.UserID != "usr-001" {
					return 0, cqrs.ErrForbidden
				}
				return 3, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"removed":3}`,
		},
		{
			name: "forbidden - no user",
			purgeFn: func(cmd cqrs.PurgeAnalyticsCacheCommand) (int, error) {
				return 0, cqrs.ErrForbidden
			},
			expectedStatus: http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAnalyticsCommander{purgeFn: tt.purgeFn}, &mockAnalyticsQuerier{}, "usr-001")
			w := doRequest(router, http.MethodDelete, "/api/analytics/cache", nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedBody != "" && w.Body.String() != tt.expectedBody {
				t.Errorf("[%s] expected body %s got %s", tt.name, tt.expectedBody, w.Body.String())
			}
		})
	}
}
