package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nestegg/internal/core"
)

type incomeRequest struct {
	Amount      string   `json:"amount"`
	Month       int      `json:"month"`
	Year        int      `json:"year"`
	RulePercent *float64 `json:"rule_percent,omitempty"`
}

type incomeResponse struct {
	ID          int64     `json:"id"`
	Amount      moneyJSON `json:"amount"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	RulePercent *float64  `json:"rule_percent,omitempty"`
	Savings     moneyJSON `json:"savings"`
	Spendable   moneyJSON `json:"spendable"`
}

func (s *Server) handleCommitIncome(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req incomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	month, year := req.Month, req.Year
	if month == 0 && year == 0 {
		now := time.Now().UTC()
		month, year = int(now.Month()), now.Year()
	}

	income := core.IncomeEvent{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Month:       month,
		Year:        year,
		RulePercent: req.RulePercent,
	}
	result, committed, err := s.allocations.CommitIncome(r.Context(), income)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	s.slogger.LogEntryAppended(r.Context(), userID, committed.ID,
		string(core.KindReserveContribution), result.Savings.Cents)

	writeJSON(w, http.StatusCreated, incomeResponse{
		ID:          committed.ID,
		Amount:      toMoneyJSON(committed.Amount),
		Month:       committed.Month,
		Year:        committed.Year,
		RulePercent: committed.RulePercent,
		Savings:     toMoneyJSON(result.Savings),
		Spendable:   toMoneyJSON(result.Spendable),
	})
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	year, month := periodFrom(r)

	incomes, err := s.allocations.ListIncomes(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]incomeResponse, 0, len(incomes))
	for _, e := range incomes {
		resp = append(resp, incomeResponse{
			ID:          e.ID,
			Amount:      toMoneyJSON(e.Amount),
			Month:       e.Month,
			Year:        e.Year,
			RulePercent: e.RulePercent,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	incomeID, err := strconv.ParseInt(chi.URLParam(r, "incomeID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid income id")
		return
	}

	if err := s.allocations.DeleteIncome(r.Context(), userID, incomeID); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

type settingsResponse struct {
	DefaultPercent float64 `json:"default_percent"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.allocations.Settings(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{DefaultPercent: settings.DefaultPercent})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req settingsResponse
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := core.AllocationSettings{UserID: userID, DefaultPercent: req.DefaultPercent}
	if err := s.allocations.UpdateSettings(r.Context(), settings); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{DefaultPercent: settings.DefaultPercent})
}
