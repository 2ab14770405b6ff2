package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"gudangku/backend/internal/analytics"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/service"
	"gudangku/backend/internal/store"
)

type API struct {
	service       *service.Service
	reports       *analytics.Engine
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, reports *analytics.Engine, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		reports:       reports,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, "staff", "admin"))
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe, "staff", "admin"))

	mux.HandleFunc("/api/v1/items", a.requireAuth(a.handleItems, "staff", "admin"))
	mux.HandleFunc("/api/v1/items/", a.requireAuth(a.handleItemActions, "staff", "admin"))
	mux.HandleFunc("/api/v1/locations", a.requireAuth(a.handleLocations, "staff", "admin"))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, "staff", "admin"))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, "staff", "admin"))
	mux.HandleFunc("/api/v1/taxes", a.requireAuth(a.handleTaxRates, "staff", "admin"))

	mux.HandleFunc("/api/v1/product/checkin", a.requireAuth(a.handleCheckIn, "staff", "admin"))
	mux.HandleFunc("/api/v1/product/checkout", a.requireAuth(a.handleCheckOut, "staff", "admin"))
	mux.HandleFunc("/api/v1/product/batch-checkin", a.requireAuth(a.handleBatchCheckIn, "staff", "admin"))
	mux.HandleFunc("/api/v1/product/batch-checkout", a.requireAuth(a.handleBatchCheckOut, "staff", "admin"))
	mux.HandleFunc("/api/v1/product/today-stats", a.requireAuth(a.handleTodayStats, "staff", "admin"))

	mux.HandleFunc("/api/v1/report/summary", a.requireAuth(a.handleReportSummary, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/list", a.requireAuth(a.handleReportList, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/charts", a.requireAuth(a.handleReportCharts, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/item-analysis", a.requireAuth(a.handleItemAnalysis, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/rol-recommendations", a.requireAuth(a.handleReorderRecommendations, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/predictive", a.requireAuth(a.handlePredictive, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/abc-analysis", a.requireAuth(a.handleABCAnalysis, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/supplier-price-analysis", a.requireAuth(a.handlePriceComparison, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/seasonal", a.requireAuth(a.handleSeasonal, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/stock-report", a.requireAuth(a.handleStockReport, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/daily-log", a.requireAuth(a.handleDailyLog, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/monthly-log", a.requireAuth(a.handleMonthlyLog, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/consumption", a.requireAuth(a.handleConsumption, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/transaction-analysis", a.requireAuth(a.handleTransactionActivity, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/insights", a.requireAuth(a.handleInsights, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/export.csv", a.requireAuth(a.handleReportExportCSV, "staff", "admin"))
	mux.HandleFunc("/api/v1/report/print", a.requireAuth(a.handleReportPrint, "staff", "admin"))

	mux.HandleFunc("/api/v1/dashboard/stats", a.requireAuth(a.handleDashboardStats, "staff", "admin"))
	mux.HandleFunc("/api/v1/dashboard/recent-transactions", a.requireAuth(a.handleRecentTransactions, "staff", "admin"))
	mux.HandleFunc("/api/v1/dashboard/low-stock", a.requireAuth(a.handleLowStock, "staff", "admin"))

	mux.HandleFunc("/api/v1/users/staff", a.requireAuth(a.handleStaffUsers, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// locationID reads the location scope from the location_id request header.
// Every item and movement endpoint is scoped to exactly one location.
func locationID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("location_id"))
	if id == "" {
		return "", errors.New("Location ID required")
	}
	return id, nil
}

// parseReportFilter reads the shared report query params. The date range
// applies only when both startDate and endDate parse as 2006-01-02; a
// half-open or malformed range is ignored rather than rejected.
func parseReportFilter(r *http.Request) domain.ReportFilter {
	query := r.URL.Query()
	filter := domain.ReportFilter{
		SupplierID: strings.TrimSpace(query.Get("supplierId")),
		CategoryID: strings.TrimSpace(query.Get("categoryId")),
		Page:       parsePositiveLimit(query.Get("page"), 1, 0),
		Limit:      parsePositiveLimit(query.Get("limit"), 50, 500),
	}

	start, startErr := time.Parse("2006-01-02", strings.TrimSpace(query.Get("startDate")))
	end, endErr := time.Parse("2006-01-02", strings.TrimSpace(query.Get("endDate")))
	if startErr == nil && endErr == nil {
		from := start.UTC()
		to := end.UTC().AddDate(0, 0, 1).Add(-time.Millisecond)
		filter.From = &from
		filter.To = &to
	}
	return filter
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": actor})
}

// handleLogout is a client-coordination endpoint: tokens are stateless, so the
// server has nothing to revoke. The client discards its token on 200.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidMovement):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case strings.Contains(strings.ToLower(err.Error()), "admin role required"):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		includeInactive := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_inactive")), "true")
		items, err := a.service.ListItems(r.Context(), location, includeInactive)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req domain.ItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.CreateItem(r.Context(), location, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleItemActions(w http.ResponseWriter, r *http.Request) {
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	prefix := "/api/v1/items/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("item id required"))
		return
	}

	if code, ok := strings.CutPrefix(tail, "barcode/"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		item, err := a.service.GetItemByBarcode(r.Context(), location, strings.Trim(code, "/"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
		return
	}

	if itemID, ok := strings.CutSuffix(tail, "/thresholds"); ok {
		itemID = strings.Trim(itemID, "/")
		switch r.Method {
		case http.MethodGet:
			item, err := a.service.GetItem(r.Context(), location, itemID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, domain.ItemThresholds{
				ROL: item.ROL,
				MOQ: item.MOQ,
				EOQ: item.EOQ,
			})
		case http.MethodPut:
			var req domain.ItemThresholds
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			item, err := a.service.UpdateItemThresholds(r.Context(), location, itemID, req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"item": item})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if itemID, ok := strings.CutSuffix(tail, "/deactivate"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		item, err := a.service.DeactivateItem(r.Context(), location, strings.Trim(itemID, "/"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
		return
	}

	switch r.Method {
	case http.MethodGet:
		item, err := a.service.GetItem(r.Context(), location, tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodPatch:
		var req domain.ItemUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.UpdateItem(r.Context(), location, tail, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodDelete:
		item, err := a.service.DeactivateItem(r.Context(), location, tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		locations, err := a.service.ListLocations(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
	case http.MethodPost:
		var req domain.LocationCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		location, err := a.service.CreateLocation(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"location": location})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"category": category})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTaxRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		taxes, err := a.service.ListTaxRates(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"taxes": taxes})
	case http.MethodPost:
		var req domain.TaxRateCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tax, err := a.service.CreateTaxRate(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"tax": tax})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	a.handleMovement(w, r, a.service.CheckIn)
}

func (a *API) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	a.handleMovement(w, r, a.service.CheckOut)
}

func (a *API) handleMovement(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, domain.MovementRequest) (domain.MovementResult, error)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.MovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := apply(r.Context(), location, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleBatchCheckIn(w http.ResponseWriter, r *http.Request) {
	a.handleBatchMovement(w, r, a.service.BatchCheckIn)
}

func (a *API) handleBatchCheckOut(w http.ResponseWriter, r *http.Request) {
	a.handleBatchMovement(w, r, a.service.BatchCheckOut)
}

// handleBatchMovement responds 201 even when some items failed: the payload
// carries both the applied movements and the per-item failures.
func (a *API) handleBatchMovement(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, domain.BatchMovementRequest) (domain.BatchResult, error)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req domain.BatchMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := apply(r.Context(), location, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleTodayStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.TodayStats(r.Context(), location)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// reportHandler wraps the shared method check and location scoping of the
// GET /report endpoints.
func (a *API) reportHandler(w http.ResponseWriter, r *http.Request, serve func(location string) (any, error)) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payload, err := serve(location)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		return a.reports.Summary(r.Context(), location, parseReportFilter(r))
	})
}

func (a *API) handleReportList(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		return a.reports.List(r.Context(), location, parseReportFilter(r))
	})
}

func (a *API) handleReportCharts(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		return a.reports.Charts(r.Context(), location, parseReportFilter(r))
	})
}

func (a *API) handleItemAnalysis(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.ItemAnalysis(r.Context(), location)
		return map[string]any{"items": rows}, err
	})
}

func (a *API) handleReorderRecommendations(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.ReorderRecommendations(r.Context(), location)
		return map[string]any{"recommendations": rows}, err
	})
}

func (a *API) handlePredictive(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.Predictive(r.Context(), location)
		return map[string]any{"predictions": rows}, err
	})
}

func (a *API) handleABCAnalysis(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.ABCAnalysis(r.Context(), location)
		return map[string]any{"items": rows}, err
	})
}

func (a *API) handlePriceComparison(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.PriceComparison(r.Context(), location)
		return map[string]any{"items": rows}, err
	})
}

func (a *API) handleSeasonal(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.SeasonalTrends(r.Context(), location)
		return map[string]any{"trends": rows}, err
	})
}

func (a *API) handleStockReport(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		query := r.URL.Query()
		rows, err := a.reports.StockReport(
			r.Context(),
			location,
			strings.TrimSpace(query.Get("supplierId")),
			strings.TrimSpace(query.Get("categoryId")),
			strings.TrimSpace(query.Get("status")),
		)
		return map[string]any{"items": rows}, err
	})
}

func (a *API) handleDailyLog(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		query := r.URL.Query()
		day := time.Now().UTC()
		if raw := strings.TrimSpace(query.Get("date")); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, store.ErrInvalidMovement
			}
			day = parsed.UTC()
		}
		rows, err := a.reports.DailyLog(r.Context(), location, day, strings.TrimSpace(query.Get("type")), strings.TrimSpace(query.Get("itemId")))
		return map[string]any{"rows": rows}, err
	})
}

func (a *API) handleMonthlyLog(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.MonthlyLog(r.Context(), location)
		return map[string]any{"months": rows}, err
	})
}

func (a *API) handleConsumption(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		order := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("order")))
		rows, err := a.reports.Consumption(r.Context(), location, parseReportFilter(r), order)
		return map[string]any{"items": rows}, err
	})
}

func (a *API) handleTransactionActivity(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		return a.reports.TransactionActivity(r.Context(), location)
	})
}

func (a *API) handleInsights(w http.ResponseWriter, r *http.Request) {
	a.reportHandler(w, r, func(location string) (any, error) {
		rows, err := a.reports.SmartInsights(r.Context(), location)
		return map[string]any{"insights": rows}, err
	})
}

func (a *API) handleReportExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filter := parseReportFilter(r)
	filter.Page = 1
	filter.Limit = 10000
	page, err := a.reports.List(r.Context(), location, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"transactions-%s.csv\"", time.Now().UTC().Format("2006-01-02")))
	_, _ = w.Write([]byte(ledgerToCSV(page.Rows)))
}

func (a *API) handleReportPrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filter := parseReportFilter(r)
	summary, err := a.reports.Summary(r.Context(), location, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	filter.Page = 1
	filter.Limit = 500
	page, err := a.reports.List(r.Context(), location, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(reportToPrintableHTML(*summary, page.Rows)))
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := a.service.DashboardStats(r.Context(), location)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10, 100)
	entries, err := a.service.RecentTransactions(r.Context(), location, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	alerts, err := a.service.LowStockAlerts(r.Context(), location)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleStaffUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListStaff()})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateStaff(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	location, err := locationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), location, date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, location_id")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func ledgerToCSV(rows []domain.LedgerRow) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, "date,item_code,item_name,type,quantity,quantity_type,price,tax_percent,tax_amount,total_amount,taken_by,remarks")
	for _, row := range rows {
		lines = append(lines, strings.Join([]string{
			row.Date.Format(time.RFC3339),
			csvField(row.ItemCode),
			csvField(row.ItemName),
			row.Type,
			strconv.FormatInt(row.Quantity, 10),
			csvField(row.QuantityType),
			strconv.FormatFloat(row.Price, 'f', 2, 64),
			strconv.FormatFloat(row.TaxPercent, 'f', 2, 64),
			strconv.FormatFloat(row.TaxAmount, 'f', 2, 64),
			strconv.FormatFloat(row.TotalAmount, 'f', 2, 64),
			csvField(row.TakenBy),
			csvField(row.Remarks),
		}, ","))
	}
	return strings.Join(lines, "\n") + "\n"
}

func csvField(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return "\"" + strings.ReplaceAll(value, "\"", "\"\"") + "\""
	}
	return value
}

// reportHTMLTmpl renders the printable transaction report. All user-controlled
// fields are auto-escaped by html/template to prevent XSS.
var reportHTMLTmpl = template.Must(template.New("report-print").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Transaction Report</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Transaction Report</h2>
  <p>Transactions: {{.Summary.TotalTransactions}} | Check-in: {{printf "%.2f" .Summary.TotalCheckInAmount}} | Check-out: {{printf "%.2f" .Summary.TotalCheckOutAmount}} | Revenue: {{printf "%.2f" .Summary.Revenue}}</p>

  <h3>Transactions</h3>
  <table>
    <thead><tr><th>Date</th><th>Item</th><th>Type</th><th>Qty</th><th>Price</th><th>Total</th><th>By</th></tr></thead>
    <tbody>{{range .Rows}}<tr><td>{{.Date.Format "2006-01-02 15:04"}}</td><td>{{.ItemName}}</td><td>{{.Type}}</td><td style="text-align:right;">{{.Quantity}} {{.QuantityType}}</td><td style="text-align:right;">{{printf "%.2f" .Price}}</td><td style="text-align:right;">{{printf "%.2f" .TotalAmount}}</td><td>{{.TakenBy}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func reportToPrintableHTML(summary domain.TransactionSummary, rows []domain.LedgerRow) string {
	var buf bytes.Buffer
	data := struct {
		Summary domain.TransactionSummary
		Rows    []domain.LedgerRow
	}{Summary: summary, Rows: rows}
	if err := reportHTMLTmpl.Execute(&buf, data); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
