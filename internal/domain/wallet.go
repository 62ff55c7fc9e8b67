package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates all wallet transaction types.
type TransactionType string

const (
	TxDeposit            TransactionType = "deposit"
	TxWithdrawal         TransactionType = "withdrawal"
	TxReservation        TransactionType = "reservation"
	TxReservationCommit  TransactionType = "reservation_commit"
	TxReservationRelease TransactionType = "reservation_release"
	TxBetWin             TransactionType = "bet_win"
	TxBetLoss            TransactionType = "bet_loss"
	TxBetRefund          TransactionType = "bet_refund"
)

// TransactionStatus tracks the lifecycle of a wallet transaction.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is one row of the wallet's append-only transaction log.
// Idempotency is scoped to (userId, referenceId).
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	UserID       string            `json:"user_id"`
	Type         TransactionType   `json:"type"`
	Amount       Money             `json:"amount"`
	Status       TransactionStatus `json:"status"`
	Description  string            `json:"description,omitempty"`
	ReferenceID  string            `json:"reference_id,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// EntryKind distinguishes the two sides of a double-entry pair.
type EntryKind string

const (
	EntryCredit EntryKind = "credit"
	EntryDebit  EntryKind = "debit"
)

// LedgerEntry is one side of a double-entry booking. Every transaction
// produces exactly one Credit and one Debit against the same TransactionID,
// both carrying the same Money.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Account       string    `json:"account"`
	Amount        Money     `json:"amount"`
	Kind          EntryKind `json:"kind"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransactionResult is the success value returned by wallet operations.
type TransactionResult struct {
	Transaction *Transaction `json:"transaction"`
	Balance     Money        `json:"balance"`
	Available   Money        `json:"available"`
	Idempotent  bool         `json:"idempotent,omitempty"`
}
