package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// Ledger account names. The house account is the external counterparty every
// wallet movement books against.
const houseAccount = "house:cash"

func cashAccount(userID string) string     { return "user:" + userID + ":cash" }
func reservedAccount(userID string) string { return "user:" + userID + ":reserved" }

// walletState is the serialized state of one wallet actor. Invariants:
// total >= reserved >= 0; the sum of active reservations equals reserved;
// every transaction produced exactly one Credit and one Debit ledger entry.
type walletState struct {
	UserID       string                  `json:"user_id"`
	Currency     string                  `json:"currency,omitempty"`
	Total        domain.Money            `json:"total"`
	Reserved     domain.Money            `json:"reserved"`
	Refs         map[string]uuid.UUID    `json:"refs"`         // referenceId -> completed tx id
	Reservations map[string]domain.Money `json:"reservations"` // betId -> reserved amount
	Transactions []domain.Transaction    `json:"transactions"`
	Ledger       []domain.LedgerEntry    `json:"ledger"`
}

func newWalletState(userID string) *walletState {
	return &walletState{
		UserID:       userID,
		Refs:         make(map[string]uuid.UUID),
		Reservations: make(map[string]domain.Money),
	}
}

// clone deep-copies the state so an operation can build its candidate state,
// persist it, and only then replace the actor's canonical cell.
func (st *walletState) clone() *walletState {
	out := &walletState{
		UserID:       st.UserID,
		Currency:     st.Currency,
		Total:        st.Total,
		Reserved:     st.Reserved,
		Refs:         make(map[string]uuid.UUID, len(st.Refs)),
		Reservations: make(map[string]domain.Money, len(st.Reservations)),
		Transactions: append([]domain.Transaction(nil), st.Transactions...),
		Ledger:       append([]domain.LedgerEntry(nil), st.Ledger...),
	}
	for k, v := range st.Refs {
		out.Refs[k] = v
	}
	for k, v := range st.Reservations {
		out.Reservations[k] = v
	}
	return out
}

// adoptCurrency pins the wallet currency on first funding and rejects mixed
// currencies afterwards.
func (st *walletState) adoptCurrency(currency string) error {
	if st.Currency == "" {
		st.Currency = currency
		st.Total = domain.ZeroMoney(currency)
		st.Reserved = domain.ZeroMoney(currency)
		return nil
	}
	if st.Currency != currency {
		return domain.ErrCurrencyMismatch(st.Currency, currency)
	}
	return nil
}

// available returns total - reserved.
func (st *walletState) available() domain.Money {
	if st.Currency == "" || st.Reserved.IsZero() {
		return st.Total
	}
	avail, err := st.Total.Subtract(st.Reserved)
	if err != nil {
		// total >= reserved holds by construction; a mismatch here means the
		// snapshot is corrupt, so fail closed.
		return domain.ZeroMoney(st.Currency)
	}
	return avail
}

// appendTransaction records a completed transaction in the log.
func (st *walletState) appendTransaction(tx domain.Transaction) {
	st.Transactions = append(st.Transactions, tx)
}

// appendPair books the double-entry pair for a transaction: one Credit to
// creditAccount and one Debit to debitAccount, both with the same Money.
func (st *walletState) appendPair(tx domain.Transaction, creditAccount, debitAccount string, at time.Time) {
	st.Ledger = append(st.Ledger,
		domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			Account:       creditAccount,
			Amount:        tx.Amount,
			Kind:          domain.EntryCredit,
			Description:   tx.Description,
			CreatedAt:     at,
		},
		domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			Account:       debitAccount,
			Amount:        tx.Amount,
			Kind:          domain.EntryDebit,
			Description:   tx.Description,
			CreatedAt:     at,
		},
	)
}

// findTransaction returns the transaction with the given id, or nil.
func (st *walletState) findTransaction(id uuid.UUID) *domain.Transaction {
	for i := range st.Transactions {
		if st.Transactions[i].ID == id {
			tx := st.Transactions[i]
			return &tx
		}
	}
	return nil
}
