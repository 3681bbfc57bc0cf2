package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"nestegg/internal/services"
	"nestegg/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := Services{
		Allocations: services.NewAllocationService(repo, nil),
		Transfers:   services.NewTransferService(repo, nil),
		Scheduler:   services.NewSchedulerService(repo, nil),
		Aggregator:  services.NewAggregator(repo),
	}
	s := NewServer(":0", svc, repo, time.Minute)
	t.Cleanup(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/healthz", 0, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/reserve", 0, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing identity status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reserve", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad identity status = %d, want 401", rec.Code)
	}
}

func TestCommitIncomeSplitsAmount(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/incomes", 1, map[string]any{
		"amount": "1000.00", "month": 3, "year": 2025,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[incomeResponse](t, rec)
	if resp.Amount.Cents != 100000 || resp.Savings.Cents != 10000 || resp.Spendable.Cents != 90000 {
		t.Fatalf("split = %d/%d/%d, want 100000/10000/90000",
			resp.Amount.Cents, resp.Savings.Cents, resp.Spendable.Cents)
	}
	if resp.Savings.Display != "100.00" {
		t.Fatalf("savings display = %q, want 100.00", resp.Savings.Display)
	}

	list := decodeBody[[]incomeResponse](t, do(t, s, http.MethodGet, "/api/incomes?year=2025&month=3", 1, nil))
	if len(list) != 1 || list[0].ID != resp.ID {
		t.Fatalf("listed %d incomes, want the committed one", len(list))
	}
	if other := decodeBody[[]incomeResponse](t, do(t, s, http.MethodGet, "/api/incomes?year=2025&month=3", 2, nil)); len(other) != 0 {
		t.Fatalf("other user sees %d incomes, want 0", len(other))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed amount", http.MethodPost, "/api/incomes",
			map[string]any{"amount": "abc", "month": 1, "year": 2025}, http.StatusUnprocessableEntity},
		{"negative amount", http.MethodPost, "/api/incomes",
			map[string]any{"amount": "-5.00", "month": 1, "year": 2025}, http.StatusUnprocessableEntity},
		{"unknown income", http.MethodDelete, "/api/incomes/999", nil, http.StatusNotFound},
		{"unknown plan payment", http.MethodPost, "/api/plans/999/payments", nil, http.StatusNotFound},
		{"bad transfer endpoint", http.MethodPost, "/api/transfers",
			map[string]any{"source": map[string]any{"kind": "wallet"}, "dest": map[string]any{"kind": "reserve"}, "amount": "1.00"},
			http.StatusUnprocessableEntity},
		{"unknown body field", http.MethodPost, "/api/goals",
			map[string]any{"name": "bike", "unexpected": true}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, 1, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	s := newTestServer(t)

	goal := decodeBody[goalResponse](t, do(t, s, http.MethodPost, "/api/goals", 1, map[string]any{"name": "trip"}))
	rec := do(t, s, http.MethodPost, "/api/transfers", 1, map[string]any{
		"source": map[string]any{"kind": "reserve"},
		"dest":   map[string]any{"kind": "goal", "goal_id": goal.ID},
		"amount": "50.00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestReserveTargetAndProgress(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, http.MethodPut, "/api/reserve/target", 1, map[string]any{
		"target_months": 6, "target": "2000.00",
	}); rec.Code != http.StatusNoContent {
		t.Fatalf("set target status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/incomes", 1, map[string]any{
		"amount": "500.00", "month": 4, "year": 2025,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("commit income status = %d", rec.Code)
	}

	resp := decodeBody[reserveResponse](t, do(t, s, http.MethodGet, "/api/reserve", 1, nil))
	if resp.Current.Cents != 5000 {
		t.Fatalf("reserve current = %d, want 5000", resp.Current.Cents)
	}
	if resp.Target == nil || resp.Target.Cents != 200000 {
		t.Fatalf("reserve target = %+v, want 200000 cents", resp.Target)
	}
	if resp.TargetMonths != 6 {
		t.Fatalf("target months = %d, want 6", resp.TargetMonths)
	}
	if resp.Pct == nil || *resp.Pct != 0.025 {
		t.Fatalf("pct = %v, want 0.025", resp.Pct)
	}
}

func TestPlanLifecycle(t *testing.T) {
	s := newTestServer(t)

	plan := decodeBody[planResponse](t, do(t, s, http.MethodPost, "/api/plans", 1, map[string]any{
		"name":               "laptop",
		"installment_amount": "75.00",
		"total_installments": 2,
		"start_date":         time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}))

	payPath := fmt.Sprintf("/api/plans/%d/payments", plan.ID)

	first := decodeBody[paymentResponse](t, do(t, s, http.MethodPost, payPath, 1, nil))
	if first.Number != 1 || first.Status != "active" {
		t.Fatalf("first payment = %d/%s, want 1/active", first.Number, first.Status)
	}
	if first.Entry.Note != "laptop (1/2)" {
		t.Fatalf("first note = %q", first.Entry.Note)
	}

	second := decodeBody[paymentResponse](t, do(t, s, http.MethodPost, payPath, 1, nil))
	if second.Number != 2 || second.Status != "completed" {
		t.Fatalf("second payment = %d/%s, want 2/completed", second.Number, second.Status)
	}

	if rec := do(t, s, http.MethodPost, payPath, 1, nil); rec.Code != http.StatusConflict {
		t.Fatalf("exhausted plan status = %d, want 409", rec.Code)
	}

	listed := decodeBody[[]planResponse](t, do(t, s, http.MethodGet, "/api/plans", 1, nil))
	if len(listed) != 1 || listed[0].Paid != 2 || listed[0].Status != "completed" {
		t.Fatalf("listed plan = %+v", listed)
	}
}

func TestCreatePlanWithPaidOffsetReportsDerivedStatus(t *testing.T) {
	s := newTestServer(t)

	created := decodeBody[planResponse](t, do(t, s, http.MethodPost, "/api/plans", 1, map[string]any{
		"name":               "car",
		"installment_amount": "120.00",
		"total_installments": 3,
		"start_date":         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"paid_offset":        2,
	}))
	if created.Paid != 2 || created.Status != "active" {
		t.Fatalf("create response = %d/%s, want 2/active", created.Paid, created.Status)
	}

	listed := decodeBody[[]planResponse](t, do(t, s, http.MethodGet, "/api/plans", 1, nil))
	if len(listed) != 1 || listed[0].Status != created.Status || listed[0].Paid != created.Paid {
		t.Fatalf("listing %+v disagrees with create response %+v", listed, created)
	}
}

func TestBudgetUsageCacheInvalidation(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()

	cat := decodeBody[categoryResponse](t, do(t, s, http.MethodPost, "/api/categories", 1, map[string]any{"name": "food"}))
	if rec := do(t, s, http.MethodPut, "/api/budgets", 1, map[string]any{
		"category_id": cat.ID, "month": int(now.Month()), "year": now.Year(), "limit": "50.00",
	}); rec.Code != http.StatusNoContent {
		t.Fatalf("upsert budget status = %d", rec.Code)
	}

	usage := decodeBody[[]budgetUsageLineJSON](t, do(t, s, http.MethodGet, "/api/budgets/usage", 1, nil))
	if len(usage) != 1 || usage[0].Spent.Cents != 0 {
		t.Fatalf("initial usage = %+v, want one line with zero spend", usage)
	}

	expense := decodeBody[recurringResponse](t, do(t, s, http.MethodPost, "/api/recurring", 1, map[string]any{
		"name": "groceries", "amount": "12.50", "frequency": "monthly", "occurrences_period": 1,
		"category_id": cat.ID,
	}))
	if rec := do(t, s, http.MethodPost, fmt.Sprintf("/api/recurring/%d/payments", expense.ID), 1, nil); rec.Code != http.StatusCreated {
		t.Fatalf("pay recurring status = %d", rec.Code)
	}

	// the write must have evicted the cached view
	usage = decodeBody[[]budgetUsageLineJSON](t, do(t, s, http.MethodGet, "/api/budgets/usage", 1, nil))
	if len(usage) != 1 || usage[0].Spent.Cents != 1250 {
		t.Fatalf("usage after payment = %+v, want spent 1250", usage)
	}
	if usage[0].Limit.Cents != 5000 || usage[0].CategoryName != "food" {
		t.Fatalf("usage line = %+v", usage[0])
	}
}

func TestGoalArchiveHidesFromListing(t *testing.T) {
	s := newTestServer(t)

	goal := decodeBody[goalResponse](t, do(t, s, http.MethodPost, "/api/goals", 1, map[string]any{"name": "bike"}))
	if rec := do(t, s, http.MethodDelete, fmt.Sprintf("/api/goals/%d", goal.ID), 1, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("archive status = %d", rec.Code)
	}
	if goals := decodeBody[[]goalResponse](t, do(t, s, http.MethodGet, "/api/goals", 1, nil)); len(goals) != 0 {
		t.Fatalf("listed %d goals after archive, want 0", len(goals))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t)

	got := decodeBody[settingsResponse](t, do(t, s, http.MethodGet, "/api/settings/allocation", 1, nil))
	if got.DefaultPercent != 0.10 {
		t.Fatalf("default percent = %v, want 0.10", got.DefaultPercent)
	}

	if rec := do(t, s, http.MethodPut, "/api/settings/allocation", 1, map[string]any{"default_percent": 0.25}); rec.Code != http.StatusOK {
		t.Fatalf("update settings status = %d", rec.Code)
	}
	got = decodeBody[settingsResponse](t, do(t, s, http.MethodGet, "/api/settings/allocation", 1, nil))
	if got.DefaultPercent != 0.25 {
		t.Fatalf("updated percent = %v, want 0.25", got.DefaultPercent)
	}

	if rec := do(t, s, http.MethodPut, "/api/settings/allocation", 1, map[string]any{"default_percent": 1.5}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid percent status = %d, want 422", rec.Code)
	}
}
