package http

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nestegg/internal/core"
)

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, core.ErrEmptyName)
		return
	}

	id, err := s.repo.Queries().CreateCategory(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: id, Name: req.Name})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.repo.Queries().ListCategories(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for id, name := range categories {
		resp = append(resp, categoryResponse{ID: id, Name: name})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Name < resp[j].Name })
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	categoryID, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := s.repo.Queries().DeleteCategory(r.Context(), userID, categoryID); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

type budgetRequest struct {
	CategoryID int64  `json:"category_id"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
	Limit      string `json:"limit"`
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	budget := core.Budget{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Month:      req.Month,
		Year:       req.Year,
		Limit:      core.Money{Cents: cents},
	}
	if err := budget.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.repo.Queries().UpsertBudget(r.Context(), budget); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

type budgetUsageLineJSON struct {
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Limit        moneyJSON `json:"limit"`
	Spent        moneyJSON `json:"spent"`
}

func (s *Server) handleBudgetUsage(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	year, month := periodFrom(r)

	key := s.usageKey(userID, year, month)
	lines, ok := s.usageCache.Get(key)
	if !ok {
		var err error
		lines, err = s.aggregator.BudgetUsage(r.Context(), userID, year, month)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.usageCache.Set(key, lines)
	}

	resp := make([]budgetUsageLineJSON, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, budgetUsageLineJSON{
			CategoryID:   line.CategoryID,
			CategoryName: line.CategoryName,
			Limit:        toMoneyJSON(line.Limit),
			Spent:        toMoneyJSON(line.Spent),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	year, month := periodFrom(r)

	entries, err := s.repo.Queries().ListEntries(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
