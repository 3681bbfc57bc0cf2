package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nestegg/internal/core"
)

type planRequest struct {
	Name              string    `json:"name"`
	InstallmentAmount string    `json:"installment_amount"`
	TotalInstallments int       `json:"total_installments"`
	StartDate         time.Time `json:"start_date"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	PaidOffset        int       `json:"paid_offset,omitempty"`
}

type planResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	InstallmentAmount moneyJSON `json:"installment_amount"`
	TotalInstallments int       `json:"total_installments"`
	StartDate         time.Time `json:"start_date"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	Paid              int       `json:"paid"`
	Status            string    `json:"status"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.InstallmentAmount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	plan, err := s.scheduler.RegisterPlan(r.Context(), core.InstallmentPlan{
		UserID:            userID,
		Name:              req.Name,
		InstallmentAmount: core.Money{Cents: cents},
		TotalInstallments: req.TotalInstallments,
		StartDate:         req.StartDate,
		CategoryID:        req.CategoryID,
		PaidOffset:        req.PaidOffset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, planResponse{
		ID:                plan.ID,
		Name:              plan.Name,
		InstallmentAmount: toMoneyJSON(plan.InstallmentAmount),
		TotalInstallments: plan.TotalInstallments,
		StartDate:         plan.StartDate,
		CategoryID:        plan.CategoryID,
		Paid:              plan.PaidOffset,
		Status:            string(plan.StatusFor(plan.PaidOffset)),
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	rows, err := s.scheduler.ListPlans(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]planResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, planResponse{
			ID:                row.Plan.ID,
			Name:              row.Plan.Name,
			InstallmentAmount: toMoneyJSON(row.Plan.InstallmentAmount),
			TotalInstallments: row.Plan.TotalInstallments,
			StartDate:         row.Plan.StartDate,
			CategoryID:        row.Plan.CategoryID,
			Paid:              row.Paid(),
			Status:            string(row.Status()),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type paymentResponse struct {
	Entry  entryJSON `json:"entry"`
	Number int       `json:"number"`
	Total  int       `json:"total"`
	Status string    `json:"status"`
}

func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	planID, err := strconv.ParseInt(chi.URLParam(r, "planID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	receipt, err := s.scheduler.PayInstallment(r.Context(), userID, planID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)

	writeJSON(w, http.StatusCreated, paymentResponse{
		Entry:  toEntryJSON(receipt.Entry),
		Number: receipt.Number,
		Total:  receipt.Total,
		Status: string(receipt.Status),
	})
}

type recurringRequest struct {
	Name              string `json:"name"`
	Amount            string `json:"amount"`
	Frequency         string `json:"frequency"`
	OccurrencesPeriod int    `json:"occurrences_period"`
	CategoryID        *int64 `json:"category_id,omitempty"`
}

type recurringResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Amount            moneyJSON `json:"amount"`
	Frequency         string    `json:"frequency"`
	OccurrencesPeriod int       `json:"occurrences_period"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	IsActive          bool      `json:"is_active"`
}

func toRecurringResponse(e core.RecurringExpense) recurringResponse {
	return recurringResponse{
		ID:                e.ID,
		Name:              e.Name,
		Amount:            toMoneyJSON(e.Amount),
		Frequency:         string(e.Frequency),
		OccurrencesPeriod: e.OccurrencesPeriod,
		CategoryID:        e.CategoryID,
		IsActive:          e.IsActive,
	}
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.scheduler.CreateRecurring(r.Context(), core.RecurringExpense{
		UserID:            userID,
		Name:              req.Name,
		Amount:            core.Money{Cents: cents},
		Frequency:         core.Frequency(req.Frequency),
		OccurrencesPeriod: req.OccurrencesPeriod,
		CategoryID:        req.CategoryID,
		IsActive:          true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringResponse(expense))
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.scheduler.ListRecurring(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]recurringResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, toRecurringResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePayRecurring(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	entry, err := s.scheduler.PayRecurring(r.Context(), userID, expenseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	writeJSON(w, http.StatusCreated, toEntryJSON(entry))
}

func (s *Server) handleToggleRecurring(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid expense id")
		return
	}

	active, err := s.scheduler.ToggleActive(r.Context(), userID, expenseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

type commitmentsResponse struct {
	Recurring    moneyJSON `json:"recurring"`
	Installments moneyJSON `json:"installments"`
	Total        moneyJSON `json:"total"`
}

func (s *Server) handleCommitments(w http.ResponseWriter, r *http.Request) {
	commitments, err := s.scheduler.MonthlyCommitments(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commitmentsResponse{
		Recurring:    toMoneyJSON(commitments.Recurring),
		Installments: toMoneyJSON(commitments.Installments),
		Total:        toMoneyJSON(commitments.Total),
	})
}
