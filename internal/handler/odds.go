package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/odds"
)

// OddsHandler handles market odds endpoints.
type OddsHandler struct {
	odds *odds.Service
}

// NewOddsHandler creates a new OddsHandler.
func NewOddsHandler(svc *odds.Service) *OddsHandler {
	return &OddsHandler{odds: svc}
}

// initOddsRequest is the shape of POST /api/odds/{marketId}.
type initOddsRequest struct {
	Selections map[string]decimal.Decimal `json:"selections"`
	Source     domain.OddsSource          `json:"source"`
}

// InitializeMarket handles POST /api/odds/{marketId}.
func (h *OddsHandler) InitializeMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")

	var req initOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if len(req.Selections) == 0 {
		RespondError(w, domain.ErrInvalidRequest("selections are required"))
		return
	}

	snap, err := h.odds.InitializeMarket(r.Context(), marketID, req.Selections, req.Source)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, snap)
}

// updateOddsRequest is the shape of PUT /api/odds/{marketId}.
type updateOddsRequest struct {
	Changes map[string]decimal.Decimal `json:"changes"`
	Source  domain.OddsSource          `json:"source"`
	Reason  string                     `json:"reason,omitempty"`
}

// UpdateOdds handles PUT /api/odds/{marketId}.
func (h *OddsHandler) UpdateOdds(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")

	var req updateOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if len(req.Changes) == 0 {
		RespondError(w, domain.ErrInvalidRequest("changes are required"))
		return
	}

	snap, err := h.odds.UpdateOdds(r.Context(), marketID, req.Changes, req.Source, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// GetOdds handles GET /api/odds/{marketId}.
func (h *OddsHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	snap, err := h.odds.GetCurrentOdds(r.Context(), chi.URLParam(r, "marketId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// oddsHistoryResponse wraps per-selection odds histories.
type oddsHistoryResponse struct {
	MarketID  string                        `json:"market_id"`
	Histories map[string]domain.OddsHistory `json:"histories"`
}

// GetOddsHistory handles GET /api/odds/{marketId}/history.
// An optional selection_id query parameter narrows to one selection.
func (h *OddsHandler) GetOddsHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")

	if selectionID := r.URL.Query().Get("selection_id"); selectionID != "" {
		history, err := h.odds.GetOddsHistory(r.Context(), marketID, selectionID)
		if err != nil {
			RespondError(w, err)
			return
		}
		RespondJSON(w, http.StatusOK, history)
		return
	}

	histories, err := h.odds.GetAllOddsHistory(r.Context(), marketID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, oddsHistoryResponse{MarketID: marketID, Histories: histories})
}

// volatilityResponse is the shape of GET /api/odds/{marketId}/volatility.
type volatilityResponse struct {
	MarketID string                 `json:"market_id"`
	Level    domain.VolatilityLevel `json:"level"`
	Score    decimal.Decimal        `json:"score"`
}

// GetVolatility handles GET /api/odds/{marketId}/volatility.
// An optional window query parameter (Go duration, e.g. "10m") overrides the
// configured measurement window.
func (h *OddsHandler) GetVolatility(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")

	var window time.Duration
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			RespondError(w, domain.ErrInvalidRequest("window must be a positive duration"))
			return
		}
		window = d
	}

	level, err := h.odds.GetCurrentVolatility(r.Context(), marketID)
	if err != nil {
		RespondError(w, err)
		return
	}
	score, err := h.odds.GetVolatilityScore(r.Context(), marketID, window)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, volatilityResponse{MarketID: marketID, Level: level, Score: score})
}

// suspendOddsRequest is the shape of POST /api/odds/{marketId}/suspend.
type suspendOddsRequest struct {
	Reason string `json:"reason"`
}

// SuspendOdds handles POST /api/odds/{marketId}/suspend.
func (h *OddsHandler) SuspendOdds(w http.ResponseWriter, r *http.Request) {
	var req suspendOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.Reason == "" {
		RespondError(w, domain.ErrInvalidRequest("reason is required"))
		return
	}

	snap, err := h.odds.SuspendOdds(r.Context(), chi.URLParam(r, "marketId"), req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// ResumeOdds handles POST /api/odds/{marketId}/resume.
func (h *OddsHandler) ResumeOdds(w http.ResponseWriter, r *http.Request) {
	snap, err := h.odds.ResumeOdds(r.Context(), chi.URLParam(r, "marketId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// lockOddsRequest is the shape of POST /api/odds/{marketId}/lock.
type lockOddsRequest struct {
	BetID       string `json:"bet_id"`
	SelectionID string `json:"selection_id"`
}

// LockOdds handles POST /api/odds/{marketId}/lock.
func (h *OddsHandler) LockOdds(w http.ResponseWriter, r *http.Request) {
	var req lockOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.BetID == "" || req.SelectionID == "" {
		RespondError(w, domain.ErrInvalidRequest("bet_id and selection_id are required"))
		return
	}

	pinned, err := h.odds.LockOddsForBet(r.Context(), chi.URLParam(r, "marketId"), req.BetID, req.SelectionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, pinned)
}

// unlockOddsRequest is the shape of POST /api/odds/{marketId}/unlock.
type unlockOddsRequest struct {
	BetID string `json:"bet_id"`
}

// UnlockOdds handles POST /api/odds/{marketId}/unlock.
func (h *OddsHandler) UnlockOdds(w http.ResponseWriter, r *http.Request) {
	var req unlockOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.BetID == "" {
		RespondError(w, domain.ErrInvalidRequest("bet_id is required"))
		return
	}

	if err := h.odds.UnlockOdds(r.Context(), chi.URLParam(r, "marketId"), req.BetID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// lockedSelectionsResponse maps selections to the bet IDs pinning them.
type lockedSelectionsResponse struct {
	MarketID string              `json:"market_id"`
	Locks    map[string][]string `json:"locks"`
}

// GetLockedSelections handles GET /api/odds/{marketId}/locks.
func (h *OddsHandler) GetLockedSelections(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")
	locks, err := h.odds.GetLockedSelections(r.Context(), marketID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, lockedSelectionsResponse{MarketID: marketID, Locks: locks})
}
