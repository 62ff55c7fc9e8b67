package bet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/sportsbook/internal/domain"
)

// WalletClient is the slice of the wallet service the bet workflow needs.
type WalletClient interface {
	GetAvailableBalance(ctx context.Context, userID string) (domain.Money, error)
	Reserve(ctx context.Context, userID string, amount domain.Money, betID string) (*domain.TransactionResult, error)
	CommitReservation(ctx context.Context, userID, betID string) (*domain.TransactionResult, error)
	ReleaseReservation(ctx context.Context, userID, betID string) (*domain.TransactionResult, error)
	CreditPayout(ctx context.Context, userID string, amount domain.Money, referenceID string, txType domain.TransactionType, description string) (*domain.TransactionResult, error)
	RecordBetLoss(ctx context.Context, userID, betID string) (*domain.TransactionResult, error)
}

// OddsClient is the slice of the odds service the bet workflow needs.
type OddsClient interface {
	GetCurrentOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error)
	LockOddsForBet(ctx context.Context, marketID, betID, selectionID string) (domain.OddsValue, error)
	UnlockOdds(ctx context.Context, marketID, betID string) error
}

// IndexClient registers accepted bets in the per-user bet index.
type IndexClient interface {
	AddBet(ctx context.Context, userID, betID string) error
}

// EventRegistry registers accepted bets against their market for settlement
// fan-out when the sport event completes.
type EventRegistry interface {
	RegisterBet(ctx context.Context, eventID, marketID, betID string) error
}

// Config tunes the cash-out quote.
type Config struct {
	// CashoutMargin is the house margin applied to every cash-out quote.
	CashoutMargin decimal.Decimal
	// CashoutMinimum is the floor a positive quote never goes below.
	CashoutMinimum decimal.Decimal
}

// DefaultConfig returns the production defaults: 0.95 margin, 0.01 floor.
func DefaultConfig() Config {
	return Config{
		CashoutMargin:  decimal.RequireFromString("0.95"),
		CashoutMinimum: decimal.RequireFromString("0.01"),
	}
}
