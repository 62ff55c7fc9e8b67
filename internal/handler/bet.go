package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/bet"
	"github.com/oddsmith/sportsbook/internal/betindex"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/guard"
)

// BetHandler handles bet placement and lifecycle endpoints.
type BetHandler struct {
	bets  *bet.Service
	index *betindex.Service
	keys  *guard.IdempotencyKeys
}

// NewBetHandler creates a new BetHandler.
func NewBetHandler(bets *bet.Service, index *betindex.Service, keys *guard.IdempotencyKeys) *BetHandler {
	return &BetHandler{bets: bets, index: index, keys: keys}
}

// placeBetRequest is the shape of POST /api/bets.
type placeBetRequest struct {
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	MarketID       string          `json:"market_id"`
	SelectionID    string          `json:"selection_id"`
	Stake          decimal.Decimal `json:"stake"`
	Currency       string          `json:"currency"`
	AcceptableOdds decimal.Decimal `json:"acceptable_odds"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// betResponse is the shape of bet placement and lookup responses.
type betResponse struct {
	BetID           string           `json:"bet_id"`
	UserID          string           `json:"user_id"`
	EventID         string           `json:"event_id"`
	MarketID        string           `json:"market_id"`
	SelectionID     string           `json:"selection_id"`
	Stake           domain.Money     `json:"stake"`
	Status          domain.BetStatus `json:"status"`
	FinalOdds       decimal.Decimal  `json:"final_odds"`
	PotentialPayout domain.Money     `json:"potential_payout"`
	Payout          *domain.Money    `json:"payout,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	VoidReason      string           `json:"void_reason,omitempty"`
	Version         int              `json:"version"`
}

func toBetResponse(agg *domain.BetAggregate) betResponse {
	return betResponse{
		BetID:           agg.BetID,
		UserID:          agg.UserID,
		EventID:         agg.EventID,
		MarketID:        agg.MarketID,
		SelectionID:     agg.SelectionID,
		Stake:           agg.Stake,
		Status:          agg.Status,
		FinalOdds:       agg.FinalOdds,
		PotentialPayout: agg.Stake.MulDecimal(agg.FinalOdds),
		Payout:          agg.Payout,
		RejectionReason: agg.RejectionReason,
		VoidReason:      agg.VoidReason,
		Version:         agg.Version,
	}
}

// PlaceBet handles POST /api/bets. A request carrying an idempotency key is
// safe to retry: the retry returns the original bet with a 200 instead of 201.
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	stake, err := domain.NewMoney(req.Stake, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}

	betID := uuid.New().String()
	if req.IdempotencyKey != "" {
		betID = h.keys.BetID(req.UserID, req.IdempotencyKey)
	}

	agg, err := h.bets.PlaceBet(r.Context(), domain.PlaceBetRequest{
		BetID:          betID,
		UserID:         req.UserID,
		EventID:        req.EventID,
		MarketID:       req.MarketID,
		SelectionID:    req.SelectionID,
		Stake:          stake,
		AcceptableOdds: req.AcceptableOdds,
	})
	if err != nil {
		if domain.CodeOf(err) == "AlreadyProcessed" && req.IdempotencyKey != "" {
			prior, lookupErr := h.bets.GetBetDetails(r.Context(), betID)
			if lookupErr != nil {
				RespondError(w, lookupErr)
				return
			}
			RespondJSON(w, http.StatusOK, toBetResponse(prior))
			return
		}
		RespondError(w, err)
		return
	}

	if req.IdempotencyKey != "" {
		h.keys.Remember(req.UserID, req.IdempotencyKey, betID)
	}
	RespondJSON(w, http.StatusCreated, toBetResponse(agg))
}

// GetBet handles GET /api/bets/{betId}.
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	agg, err := h.bets.GetBetDetails(r.Context(), chi.URLParam(r, "betId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toBetResponse(agg))
}

// betEventsResponse wraps a bet's event stream.
type betEventsResponse struct {
	BetID  string               `json:"bet_id"`
	Events []domain.EventRecord `json:"events"`
}

// GetBetEvents handles GET /api/bets/{betId}/events.
func (h *BetHandler) GetBetEvents(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	events, err := h.bets.GetBetEvents(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, betEventsResponse{BetID: betID, Events: events})
}

// betHistoryResponse carries the bet's state after each applied event,
// oldest first.
type betHistoryResponse struct {
	BetID   string        `json:"bet_id"`
	History []betResponse `json:"history"`
}

// GetBetHistory handles GET /api/bets/{betId}/history.
func (h *BetHandler) GetBetHistory(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	snapshots, err := h.bets.GetBetHistory(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	resp := betHistoryResponse{BetID: betID, History: make([]betResponse, 0, len(snapshots))}
	for _, agg := range snapshots {
		resp.History = append(resp.History, toBetResponse(agg))
	}
	RespondJSON(w, http.StatusOK, resp)
}

// voidBetRequest is the shape of POST /api/bets/{betId}/void.
type voidBetRequest struct {
	Reason string `json:"reason"`
}

// VoidBet handles POST /api/bets/{betId}/void.
func (h *BetHandler) VoidBet(w http.ResponseWriter, r *http.Request) {
	var req voidBetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.Reason == "" {
		RespondError(w, domain.ErrInvalidRequest("reason is required"))
		return
	}

	agg, err := h.bets.VoidBet(r.Context(), chi.URLParam(r, "betId"), req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toBetResponse(agg))
}

// CashOut handles POST /api/bets/{betId}/cashout.
func (h *BetHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	agg, err := h.bets.CashOut(r.Context(), chi.URLParam(r, "betId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toBetResponse(agg))
}

// betListResponse wraps a list of bets.
type betListResponse struct {
	Bets []betResponse `json:"bets"`
}

// userBetsResponse lists a user's bet IDs in placement order.
type userBetsResponse struct {
	UserID string   `json:"user_id"`
	BetIDs []string `json:"bet_ids"`
}

// GetUserBets handles GET /api/bets/users/{userId}. The optional limit query
// parameter caps the result to the most recent placements.
func (h *BetHandler) GetUserBets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	ids, err := h.index.GetUserBets(r.Context(), userID, parseLimit(r, 50))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, userBetsResponse{UserID: userID, BetIDs: ids})
}

// GetActiveBets handles GET /api/bets/users/{userId}/active.
func (h *BetHandler) GetActiveBets(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.index.GetActiveBets(r.Context(), chi.URLParam(r, "userId"), parseLimit(r, 50))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toBetList(aggs))
}

// GetUserBetHistory handles GET /api/bets/users/{userId}/history, newest first.
func (h *BetHandler) GetUserBetHistory(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.index.GetBetHistory(r.Context(), chi.URLParam(r, "userId"), parseLimit(r, 50))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toBetList(aggs))
}

func toBetList(aggs []*domain.BetAggregate) betListResponse {
	resp := betListResponse{Bets: make([]betResponse, 0, len(aggs))}
	for _, agg := range aggs {
		resp.Bets = append(resp.Bets, toBetResponse(agg))
	}
	return resp
}
