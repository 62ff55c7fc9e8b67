package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/wallet"
)

// WalletHandler handles wallet balance and transaction endpoints.
type WalletHandler struct {
	wallets *wallet.Service
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets *wallet.Service) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// moneyMovementRequest is the shape of deposit and withdrawal bodies.
type moneyMovementRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
}

func (req moneyMovementRequest) toMoney() (domain.Money, error) {
	return domain.NewMoney(req.Amount, req.Currency)
}

// Deposit handles POST /api/wallet/{userId}/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req moneyMovementRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	amount, err := req.toMoney()
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.wallets.Deposit(r.Context(), userID, amount, req.TransactionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// Withdraw handles POST /api/wallet/{userId}/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req moneyMovementRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	amount, err := req.toMoney()
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.wallets.Withdraw(r.Context(), userID, amount, req.TransactionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// balanceResponse is the shape of GET /wallet/balance.
type balanceResponse struct {
	UserID    string       `json:"user_id"`
	Balance   domain.Money `json:"balance"`
	Available domain.Money `json:"available"`
}

// GetBalance handles GET /api/wallet/{userId}/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	total, available, err := h.wallets.Balances(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, balanceResponse{
		UserID:    userID,
		Balance:   total,
		Available: available,
	})
}

// txListResponse wraps a transaction list.
type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// GetTransactions handles GET /api/wallet/{userId}/transactions.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit := parseLimit(r, 20)

	txs, err := h.wallets.GetTransactionHistory(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, txListResponse{Transactions: txs})
}

// ledgerListResponse wraps a ledger entry list.
type ledgerListResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
}

// GetLedger handles GET /api/wallet/{userId}/ledger.
func (h *WalletHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit := parseLimit(r, 50)

	entries, err := h.wallets.GetLedgerEntries(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ledgerListResponse{Entries: entries})
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return limit
}
