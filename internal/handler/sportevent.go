package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/sportevent"
)

// SportEventHandler handles sport event and market endpoints.
type SportEventHandler struct {
	events *sportevent.Service
}

// NewSportEventHandler creates a new SportEventHandler.
func NewSportEventHandler(events *sportevent.Service) *SportEventHandler {
	return &SportEventHandler{events: events}
}

// createEventRequest is the shape of POST /api/events.
type createEventRequest struct {
	EventID      string            `json:"event_id"`
	Name         string            `json:"name"`
	SportType    string            `json:"sport_type"`
	Competition  string            `json:"competition,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	Participants map[string]string `json:"participants,omitempty"`
}

// CreateEvent handles POST /api/events.
func (h *SportEventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	ev, err := h.events.CreateEvent(r.Context(), domain.SportEvent{
		EventID:      req.EventID,
		Name:         req.Name,
		SportType:    req.SportType,
		Competition:  req.Competition,
		StartTime:    req.StartTime,
		Participants: req.Participants,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, ev)
}

// GetEvent handles GET /api/events/{eventId}.
func (h *SportEventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// UpdateEvent handles PUT /api/events/{eventId}.
func (h *SportEventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var upd sportevent.EventUpdate
	if err := DecodeJSON(r, &upd); err != nil {
		RespondError(w, err)
		return
	}

	ev, err := h.events.UpdateEvent(r.Context(), chi.URLParam(r, "eventId"), upd)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// StartEvent handles POST /api/events/{eventId}/start.
func (h *SportEventHandler) StartEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.StartEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// SuspendEvent handles POST /api/events/{eventId}/suspend.
func (h *SportEventHandler) SuspendEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.SuspendEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// completeEventRequest is the shape of POST /api/events/{eventId}/complete.
// Results maps market IDs to their winning selections.
type completeEventRequest struct {
	Results map[string]string `json:"results"`
}

// CompleteEvent handles POST /api/events/{eventId}/complete.
func (h *SportEventHandler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	var req completeEventRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	ev, err := h.events.CompleteEvent(r.Context(), chi.URLParam(r, "eventId"), req.Results)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// CancelEvent handles POST /api/events/{eventId}/cancel.
func (h *SportEventHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.CancelEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ev)
}

// addMarketRequest is the shape of POST /api/events/{eventId}/markets.
type addMarketRequest struct {
	MarketID    string                     `json:"market_id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Outcomes    map[string]decimal.Decimal `json:"outcomes"`
}

// AddMarket handles POST /api/events/{eventId}/markets.
func (h *SportEventHandler) AddMarket(w http.ResponseWriter, r *http.Request) {
	var req addMarketRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	market, err := h.events.AddMarket(r.Context(), chi.URLParam(r, "eventId"), domain.Market{
		MarketID:    req.MarketID,
		Name:        req.Name,
		Description: req.Description,
		Outcomes:    req.Outcomes,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, market)
}

// marketListResponse wraps an event's markets.
type marketListResponse struct {
	EventID string           `json:"event_id"`
	Markets []*domain.Market `json:"markets"`
}

// ListMarkets handles GET /api/events/{eventId}/markets.
func (h *SportEventHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	markets, err := h.events.ListMarkets(r.Context(), eventID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, marketListResponse{EventID: eventID, Markets: markets})
}

// GetMarket handles GET /api/events/{eventId}/markets/{marketId}.
func (h *SportEventHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.events.GetMarket(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "marketId"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, market)
}

// marketStatusRequest is the shape of PUT /api/events/{eventId}/markets/{marketId}/status.
type marketStatusRequest struct {
	Status domain.MarketStatus `json:"status"`
}

// UpdateMarketStatus handles PUT /api/events/{eventId}/markets/{marketId}/status.
func (h *SportEventHandler) UpdateMarketStatus(w http.ResponseWriter, r *http.Request) {
	var req marketStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	market, err := h.events.UpdateMarketStatus(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "marketId"), req.Status)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, market)
}

// marketResultRequest is the shape of POST /api/events/{eventId}/markets/{marketId}/result.
type marketResultRequest struct {
	Winner string `json:"winner"`
}

// SetMarketResult handles POST /api/events/{eventId}/markets/{marketId}/result.
func (h *SportEventHandler) SetMarketResult(w http.ResponseWriter, r *http.Request) {
	var req marketResultRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	if req.Winner == "" {
		RespondError(w, domain.ErrInvalidRequest("winner is required"))
		return
	}

	market, err := h.events.SetMarketResult(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "marketId"), req.Winner)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, market)
}
