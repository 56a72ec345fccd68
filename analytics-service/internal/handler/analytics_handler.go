package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thryec/pebbles-backend/shared/cqrs"
	"github.com/thryec/pebbles-backend/shared/middleware"
	"github.com/thryec/pebbles-backend/shared/models"
)

// AnalyticsQuerier defines the read-side operations used by AnalyticsHandler.
type AnalyticsQuerier interface {
	TransactionStats(context.Context, cqrs.TransactionStatsQuery) (*models.AnalyticsView, error)
	FilterTransactions(context.Context, cqrs.FilterTransactionsQuery) (*models.AnalyticsView, error)
	MonthlySummary(context.Context, cqrs.MonthlySummaryQuery) (*models.AnalyticsView, error)
}

// AnalyticsCommander defines the write-side operations used by AnalyticsHandler.
type AnalyticsCommander interface {
	PurgeUserCache(context.Context, cqrs.PurgeAnalyticsCacheCommand) (int, error)
}

type AnalyticsHandler struct {
	commands AnalyticsCommander
	queries  AnalyticsQuerier
}

// AnalyticsQueryRequest is the query string of the GET analytics routes.
// List parameters are comma separated.
type AnalyticsQueryRequest struct {
	Period         string `form:"period"`
	StartDate      string `form:"startDate"`
	EndDate        string `form:"endDate"`
	Type           string `form:"type"`
	Categories     string `form:"categories"`
	Tags           string `form:"tags"`
	Clients        string `form:"clients"`
	GroupBy        string `form:"groupBy"`
	Currency       string `form:"currency" validate:"omitempty,max=16"`
	IncludeDetails string `form:"includeDetails" validate:"omitempty,boolean"`
}

type FilterTransactionsRequest struct {
	models.AnalyticsParams
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

type PurgeCacheResponse struct {
	Removed int `json:"removed"`
}

func NewAnalyticsHandler(commands AnalyticsCommander, queries AnalyticsQuerier) *AnalyticsHandler {
	return &AnalyticsHandler{commands: commands, queries: queries}
}

func (h *AnalyticsHandler) GetTransactionStats(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	params, ok := bindAnalyticsQuery(c)
	if !ok {
		return
	}

	view, err := h.queries.TransactionStats(c.Request.Context(), cqrs.TransactionStatsQuery{
		UserID: userID,
		Params: params,
	})
	if err != nil {
		respondWithQueryError(c, err, "Failed to compute transaction stats")
		return
	}
	respondWithView(c, view)
}

func (h *AnalyticsHandler) FilterTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req FilterTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.queries.FilterTransactions(c.Request.Context(), cqrs.FilterTransactionsQuery{
		UserID: userID,
		Params: req.AnalyticsParams,
		Limit:  req.Limit,
	})
	if err != nil {
		respondWithQueryError(c, err, "Failed to filter transactions")
		return
	}
	respondWithView(c, view)
}

func (h *AnalyticsHandler) GetMonthlySummary(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	params, ok := bindAnalyticsQuery(c)
	if !ok {
		return
	}

	view, err := h.queries.MonthlySummary(c.Request.Context(), cqrs.MonthlySummaryQuery{
		UserID: userID,
		Params: params,
	})
	if err != nil {
		respondWithQueryError(c, err, "Failed to compute monthly summary")
		return
	}
	respondWithView(c, view)
}

func (h *AnalyticsHandler) PurgeCache(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	removed, err := h.commands.PurgeUserCache(c.Request.Context(), cqrs.PurgeAnalyticsCacheCommand{UserID: userID})
	if err != nil {
		respondWithQueryError(c, err, "Failed to purge analytics cache")
		return
	}
	c.JSON(http.StatusOK, PurgeCacheResponse{Removed: removed})
}

// bindAnalyticsQuery parses the query string into params. On failure it has
// already written the 400 response.
func bindAnalyticsQuery(c *gin.Context) (models.AnalyticsParams, bool) {
	var req AnalyticsQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return models.AnalyticsParams{}, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return models.AnalyticsParams{}, false
	}

	params := models.AnalyticsParams{
		TransactionType: req.Type,
		Categories:      splitList(req.Categories),
		Tags:            splitList(req.Tags),
		Clients:         splitList(req.Clients),
		GroupBy:         req.GroupBy,
		Currency:        req.Currency,
	}
	if req.Period != "" {
		p := models.Period(req.Period)
		params.Period = &p
	}
	if req.IncludeDetails != "" {
		b, _ := strconv.ParseBool(req.IncludeDetails)
		params.IncludeDetails = &b
	}

	var errs []middleware.ValidationError
	if req.StartDate != "" {
		t, err := parseDate(req.StartDate, false)
		if err != nil {
			errs = append(errs, middleware.ValidationError{Field: "startDate", Message: "Value must be an RFC 3339 timestamp or a YYYY-MM-DD date", Type: "datetime"})
		}
		params.StartDate = t
	}
	if req.EndDate != "" {
		t, err := parseDate(req.EndDate, true)
		if err != nil {
			errs = append(errs, middleware.ValidationError{Field: "endDate", Message: "Value must be an RFC 3339 timestamp or a YYYY-MM-DD date", Type: "datetime"})
		}
		params.EndDate = t
	}
	if errs != nil {
		middleware.RespondWithValidationError(c, errs)
		return models.AnalyticsParams{}, false
	}
	return params, true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain end date
// covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return &t, nil
}

func respondWithView(c *gin.Context, view *models.AnalyticsView) {
	if view.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, view)
}

func respondWithQueryError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, cqrs.ErrForbidden):
		middleware.RespondWithError(c, http.StatusForbidden, "You can only access your own analytics")
	case errors.Is(err, cqrs.ErrInvalidQuery):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
