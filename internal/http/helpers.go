package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nestegg/internal/core"
	"nestegg/internal/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// identityMiddleware resolves the caller from the X-User-ID header. Identity
// is established upstream; this layer only trusts the header it is handed.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP statuses. Validation failures are
// 422, missing resources 404, balance and exhaustion conflicts 409,
// persistence failures 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidPercent),
		errors.Is(err, core.ErrInvalidEndpoints),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrEmptyName):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrPlanExhausted):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrStoreUnavailable):
		logError(r, "Store unavailable", err)
		writeJSONError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		logError(r, "Unhandled error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func logError(r *http.Request, msg string, err error) {
	slogger := log.NewStructuredLogger(log.FromContext(r.Context()))
	fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "")
	slogger.LogError(r.Context(), msg, err, log.ComponentHTTP, fields)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// periodFrom reads year and month query parameters, defaulting to the
// current UTC period.
func periodFrom(r *http.Request) (year, month int) {
	now := time.Now().UTC()
	year, month = now.Year(), int(now.Month())
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}
	return year, month
}

// moneyJSON is the wire shape of an amount: cents for machines, a decimal
// string for display.
type moneyJSON struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func toMoneyJSON(m core.Money) moneyJSON {
	return moneyJSON{Cents: m.Cents, Display: m.String()}
}

type entryJSON struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Amount     moneyJSON `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	GoalID     *int64    `json:"goal_id,omitempty"`
}

func toEntryJSON(e core.LedgerEntry) entryJSON {
	return entryJSON{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Amount:     toMoneyJSON(e.Amount),
		OccurredAt: e.OccurredAt,
		CategoryID: e.CategoryID,
		Note:       e.Note,
		GoalID:     e.GoalRef,
	}
}
