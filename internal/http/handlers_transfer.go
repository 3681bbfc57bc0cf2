package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nestegg/internal/core"
)

type endpointJSON struct {
	Kind   string `json:"kind"`
	GoalID int64  `json:"goal_id,omitempty"`
}

func (e endpointJSON) toEndpoint() core.TransferEndpoint {
	return core.TransferEndpoint{Kind: core.EndpointKind(e.Kind), GoalID: e.GoalID}
}

type transferRequest struct {
	Source     endpointJSON `json:"source"`
	Dest       endpointJSON `json:"dest"`
	Amount     string       `json:"amount"`
	OccurredAt *time.Time   `json:"occurred_at,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	err = s.transfers.Transfer(r.Context(), userID,
		req.Source.toEndpoint(), req.Dest.toEndpoint(),
		core.Money{Cents: cents}, occurredAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

type reserveResponse struct {
	Current      moneyJSON  `json:"current"`
	TargetMonths int        `json:"target_months"`
	Target       *moneyJSON `json:"target,omitempty"`
	Pct          *float64   `json:"pct,omitempty"`
}

func (s *Server) handleReserveProgress(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	key := s.reserveKey(userID)
	progress, ok := s.reserveCache.Get(key)
	if !ok {
		var err error
		progress, err = s.aggregator.ReserveProgress(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.reserveCache.Set(key, progress)
	}

	resp := reserveResponse{
		Current:      toMoneyJSON(progress.Current),
		TargetMonths: progress.TargetMonths,
		Pct:          progress.Pct,
	}
	if progress.Target != nil {
		t := toMoneyJSON(*progress.Target)
		resp.Target = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

type reserveTargetRequest struct {
	TargetMonths int     `json:"target_months"`
	Target       *string `json:"target,omitempty"`
}

func (s *Server) handleSetReserveTarget(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req reserveTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var targetCents *int64
	if req.Target != nil {
		cents, err := core.ParseDecimalToCents(*req.Target)
		if err != nil {
			writeError(w, r, err)
			return
		}
		targetCents = &cents
	}
	if req.TargetMonths < 0 {
		writeError(w, r, core.ErrInvalidAmount)
		return
	}

	if err := s.repo.Queries().SetReserveTarget(r.Context(), userID, req.TargetMonths, targetCents); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

type goalRequest struct {
	Name string `json:"name"`
}

type goalResponse struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Current moneyJSON `json:"current"`
}

func toGoalResponse(g core.Goal) goalResponse {
	return goalResponse{ID: g.ID, Name: g.Name, Current: toMoneyJSON(g.Current)}
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req goalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal := core.Goal{UserID: userID, Name: req.Name}
	if err := goal.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.repo.Queries().CreateGoal(r.Context(), &goal); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(goal))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.aggregator.GoalBalances(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		resp = append(resp, toGoalResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchiveGoal(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	goalID, err := strconv.ParseInt(chi.URLParam(r, "goalID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	if err := s.transfers.ArchiveGoal(r.Context(), userID, goalID); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}
