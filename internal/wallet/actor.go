// Package wallet implements the per-user wallet actor: an append-only
// transaction log with double-entry ledger booking, fund reservations for
// pending bets, and (userId, referenceId) idempotency. All operations for one
// user run serialized on that user's mailbox.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/oddsmith/sportsbook/internal/actor"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/domain"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/store"
)

// Service is the wallet actor service. One logical actor exists per user,
// addressed by key "wallet:<userId>".
type Service struct {
	sys    *actor.System
	states store.StateStore
	bus    eventbus.Publisher
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*walletState
}

// NewService creates the wallet service.
func NewService(sys *actor.System, states store.StateStore, bus eventbus.Publisher, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		sys:    sys,
		states: states,
		bus:    bus,
		clock:  clk,
		logger: logger.With("actor", "wallet"),
		active: make(map[string]*walletState),
	}
}

func walletKey(userID string) string { return "wallet:" + userID }

type txOutcome struct {
	res *domain.TransactionResult
	err error
}

// run executes fn on the user's mailbox with the current state loaded.
func (s *Service) run(ctx context.Context, userID string, fn func(st *walletState) (*domain.TransactionResult, error)) (*domain.TransactionResult, error) {
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() txOutcome {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return txOutcome{err: err}
		}
		res, err := fn(st)
		return txOutcome{res: res, err: err}
	})
	if err != nil {
		return nil, err
	}
	return out.res, out.err
}

// stateFor returns the cached state for userID, loading the snapshot on first
// access. Runs on the user's mailbox goroutine.
func (s *Service) stateFor(ctx context.Context, userID string) (*walletState, error) {
	s.mu.Lock()
	st, ok := s.active[userID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	raw, err := s.states.Load(ctx, walletKey(userID))
	if err != nil {
		return nil, domain.ErrPersistenceError("load wallet state", err)
	}
	if raw == nil {
		st = newWalletState(userID)
	} else {
		st = newWalletState(userID)
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, domain.ErrPersistenceError("decode wallet state", err)
		}
	}

	s.mu.Lock()
	s.active[userID] = st
	s.mu.Unlock()
	return st, nil
}

// commit persists the candidate state and swaps it in as canonical. On
// persistence failure the in-memory state is left untouched, so memory and
// store stay consistent.
func (s *Service) commit(ctx context.Context, st *walletState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return domain.ErrPersistenceError("encode wallet state", err)
	}
	if err := s.states.Save(ctx, walletKey(st.UserID), raw); err != nil {
		return domain.ErrPersistenceError("save wallet state", err)
	}
	s.mu.Lock()
	s.active[st.UserID] = st
	s.mu.Unlock()
	return nil
}

func (s *Service) newTransaction(userID string, t domain.TransactionType, amount domain.Money, referenceID, description string) domain.Transaction {
	return domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        t,
		Amount:      amount,
		Status:      domain.TxStatusCompleted,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   s.clock.Now(),
	}
}

// priorResult replays the outcome of an already-processed referenceId: the
// original transaction, the current balances, and no new entries.
func (s *Service) priorResult(st *walletState, txID uuid.UUID) (*domain.TransactionResult, error) {
	tx := st.findTransaction(txID)
	if tx == nil {
		return nil, domain.ErrPersistenceError("replay transaction", fmt.Errorf("transaction %s missing from log", txID))
	}
	return &domain.TransactionResult{
		Transaction: tx,
		Balance:     st.Total,
		Available:   st.available(),
		Idempotent:  true,
	}, nil
}

func (s *Service) resultFor(st *walletState, tx domain.Transaction) *domain.TransactionResult {
	return &domain.TransactionResult{
		Transaction: &tx,
		Balance:     st.Total,
		Available:   st.available(),
	}
}

// publishTransaction emits wallet.transaction.posted. Fire-and-forget.
func (s *Service) publishTransaction(ctx context.Context, st *walletState, tx domain.Transaction) {
	rec, err := domain.NewEventRecord(walletKey(st.UserID), domain.EventTransactionPosted, len(st.Transactions), tx, s.clock.Now())
	if err != nil {
		s.logger.Error("encode transaction event failed", "user_id", st.UserID, "error", err)
		return
	}
	eventbus.Fire(ctx, s.bus, s.logger, domain.NewBusEvent(rec, domain.AggregateWallet, st.UserID, ""))
}

// Deposit credits amount to the user's wallet. Idempotent on referenceID.
func (s *Service) Deposit(ctx context.Context, userID string, amount domain.Money, referenceID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		if !amount.IsPositive() {
			return nil, domain.ErrNonPositiveAmount()
		}
		if referenceID != "" {
			if txID, ok := st.Refs[referenceID]; ok {
				return s.priorResult(st, txID)
			}
		}

		next := st.clone()
		if err := next.adoptCurrency(amount.Currency); err != nil {
			return nil, err
		}
		total, err := next.Total.Add(amount)
		if err != nil {
			return nil, err
		}
		next.Total = total

		tx := s.newTransaction(userID, domain.TxDeposit, amount, referenceID, "deposit")
		next.appendTransaction(tx)
		next.appendPair(tx, cashAccount(userID), houseAccount, tx.CreatedAt)
		if referenceID != "" {
			next.Refs[referenceID] = tx.ID
		}

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// Withdraw debits amount from the user's available balance. Idempotent on
// referenceID; reserved funds cannot be withdrawn.
func (s *Service) Withdraw(ctx context.Context, userID string, amount domain.Money, referenceID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		if !amount.IsPositive() {
			return nil, domain.ErrNonPositiveAmount()
		}
		if referenceID != "" {
			if txID, ok := st.Refs[referenceID]; ok {
				return s.priorResult(st, txID)
			}
		}
		if st.Currency != "" && st.Currency != amount.Currency {
			return nil, domain.ErrCurrencyMismatch(st.Currency, amount.Currency)
		}

		cmp, err := st.available().Compare(amount)
		if err != nil || cmp < 0 {
			return nil, domain.ErrInsufficientAvailableBalance()
		}

		next := st.clone()
		total, err := next.Total.Subtract(amount)
		if err != nil {
			return nil, domain.ErrInsufficientAvailableBalance()
		}
		next.Total = total

		tx := s.newTransaction(userID, domain.TxWithdrawal, amount, referenceID, "withdrawal")
		next.appendTransaction(tx)
		next.appendPair(tx, houseAccount, cashAccount(userID), tx.CreatedAt)
		if referenceID != "" {
			next.Refs[referenceID] = tx.ID
		}

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// Reserve earmarks amount for a pending bet. Total is unchanged; available
// shrinks. One active reservation per betID.
func (s *Service) Reserve(ctx context.Context, userID string, amount domain.Money, betID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		if !amount.IsPositive() {
			return nil, domain.ErrNonPositiveAmount()
		}
		if _, ok := st.Reservations[betID]; ok {
			return nil, domain.ErrDuplicateReservation(betID)
		}
		if st.Currency != "" && st.Currency != amount.Currency {
			return nil, domain.ErrCurrencyMismatch(st.Currency, amount.Currency)
		}

		cmp, err := st.available().Compare(amount)
		if err != nil || cmp < 0 {
			return nil, domain.ErrInsufficientAvailableBalance()
		}

		next := st.clone()
		reserved, err := next.Reserved.Add(amount)
		if err != nil {
			return nil, err
		}
		next.Reserved = reserved
		next.Reservations[betID] = amount

		tx := s.newTransaction(userID, domain.TxReservation, amount, betID, "reserve stake for bet "+betID)
		next.appendTransaction(tx)
		next.appendPair(tx, reservedAccount(userID), cashAccount(userID), tx.CreatedAt)

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// CommitReservation finalizes a reservation: the reserved amount leaves the
// wallet for good (the stake is collected by the house).
func (s *Service) CommitReservation(ctx context.Context, userID, betID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		amount, ok := st.Reservations[betID]
		if !ok {
			return nil, domain.ErrReservationNotFound(betID)
		}

		next := st.clone()
		total, err := next.Total.Subtract(amount)
		if err != nil {
			return nil, domain.ErrPersistenceError("commit reservation", err)
		}
		reserved, err := next.Reserved.Subtract(amount)
		if err != nil {
			return nil, domain.ErrPersistenceError("commit reservation", err)
		}
		next.Total = total
		next.Reserved = reserved
		delete(next.Reservations, betID)

		tx := s.newTransaction(userID, domain.TxReservationCommit, amount, betID, "collect stake for bet "+betID)
		next.appendTransaction(tx)
		next.appendPair(tx, houseAccount, reservedAccount(userID), tx.CreatedAt)

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// ReleaseReservation returns a reserved amount to the available balance.
func (s *Service) ReleaseReservation(ctx context.Context, userID, betID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		amount, ok := st.Reservations[betID]
		if !ok {
			return nil, domain.ErrReservationNotFound(betID)
		}

		next := st.clone()
		reserved, err := next.Reserved.Subtract(amount)
		if err != nil {
			return nil, domain.ErrPersistenceError("release reservation", err)
		}
		next.Reserved = reserved
		delete(next.Reservations, betID)

		tx := s.newTransaction(userID, domain.TxReservationRelease, amount, betID, "release stake for bet "+betID)
		next.appendTransaction(tx)
		next.appendPair(tx, cashAccount(userID), reservedAccount(userID), tx.CreatedAt)

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// CreditPayout credits a settlement, cash-out or refund amount. Idempotent on
// referenceID, so a replayed settlement never pays twice.
func (s *Service) CreditPayout(ctx context.Context, userID string, amount domain.Money, referenceID string, txType domain.TransactionType, description string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		if !amount.IsPositive() {
			return nil, domain.ErrNonPositiveAmount()
		}
		if txID, ok := st.Refs[referenceID]; ok {
			return s.priorResult(st, txID)
		}

		next := st.clone()
		if err := next.adoptCurrency(amount.Currency); err != nil {
			return nil, err
		}
		total, err := next.Total.Add(amount)
		if err != nil {
			return nil, err
		}
		next.Total = total

		tx := s.newTransaction(userID, txType, amount, referenceID, description)
		next.appendTransaction(tx)
		next.appendPair(tx, cashAccount(userID), houseAccount, tx.CreatedAt)
		next.Refs[referenceID] = tx.ID

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// RecordBetLoss books a zero-amount marker transaction for a lost bet. The
// stake was already collected when the reservation committed, so no balance
// moves. Idempotent per bet.
func (s *Service) RecordBetLoss(ctx context.Context, userID, betID string) (*domain.TransactionResult, error) {
	return s.run(ctx, userID, func(st *walletState) (*domain.TransactionResult, error) {
		ref := "loss-" + betID
		if txID, ok := st.Refs[ref]; ok {
			return s.priorResult(st, txID)
		}

		next := st.clone()
		currency := next.Currency
		if currency == "" {
			return nil, domain.ErrNotFound("wallet", userID)
		}

		tx := s.newTransaction(userID, domain.TxBetLoss, domain.ZeroMoney(currency), ref, "bet "+betID+" lost")
		next.appendTransaction(tx)
		next.appendPair(tx, houseAccount, cashAccount(userID), tx.CreatedAt)
		next.Refs[ref] = tx.ID

		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		s.publishTransaction(ctx, next, tx)
		return s.resultFor(next, tx), nil
	})
}

// GetBalance returns the total balance, reserved funds included.
func (s *Service) GetBalance(ctx context.Context, userID string) (domain.Money, error) {
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() txOutcome {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return txOutcome{err: err}
		}
		return txOutcome{res: &domain.TransactionResult{Balance: st.Total, Available: st.available()}}
	})
	if err != nil {
		return domain.Money{}, err
	}
	if out.err != nil {
		return domain.Money{}, out.err
	}
	return out.res.Balance, nil
}

// GetAvailableBalance returns total minus reserved.
func (s *Service) GetAvailableBalance(ctx context.Context, userID string) (domain.Money, error) {
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() txOutcome {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return txOutcome{err: err}
		}
		return txOutcome{res: &domain.TransactionResult{Balance: st.Total, Available: st.available()}}
	})
	if err != nil {
		return domain.Money{}, err
	}
	if out.err != nil {
		return domain.Money{}, out.err
	}
	return out.res.Available, nil
}

// Balances returns total and available in one actor call.
func (s *Service) Balances(ctx context.Context, userID string) (total, available domain.Money, err error) {
	out, callErr := actor.Call(ctx, s.sys, walletKey(userID), func() txOutcome {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return txOutcome{err: err}
		}
		return txOutcome{res: &domain.TransactionResult{Balance: st.Total, Available: st.available()}}
	})
	if callErr != nil {
		return domain.Money{}, domain.Money{}, callErr
	}
	if out.err != nil {
		return domain.Money{}, domain.Money{}, out.err
	}
	return out.res.Balance, out.res.Available, nil
}

// GetTransactionHistory returns the most recent transactions, newest first.
// limit <= 0 returns the full log.
func (s *Service) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	type histOut struct {
		txs []domain.Transaction
		err error
	}
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() histOut {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return histOut{err: err}
		}
		txs := make([]domain.Transaction, 0, len(st.Transactions))
		for i := len(st.Transactions) - 1; i >= 0; i-- {
			txs = append(txs, st.Transactions[i])
			if limit > 0 && len(txs) == limit {
				break
			}
		}
		return histOut{txs: txs}
	})
	if err != nil {
		return nil, err
	}
	return out.txs, out.err
}

// GetLedgerEntries returns the double-entry ledger, newest first.
// limit <= 0 returns everything.
func (s *Service) GetLedgerEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	type ledgerOut struct {
		entries []domain.LedgerEntry
		err     error
	}
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() ledgerOut {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return ledgerOut{err: err}
		}
		entries := make([]domain.LedgerEntry, 0, len(st.Ledger))
		for i := len(st.Ledger) - 1; i >= 0; i-- {
			entries = append(entries, st.Ledger[i])
			if limit > 0 && len(entries) == limit {
				break
			}
		}
		return ledgerOut{entries: entries}
	})
	if err != nil {
		return nil, err
	}
	return out.entries, out.err
}

// ActiveReservations returns a copy of the user's live reservations by bet id.
func (s *Service) ActiveReservations(ctx context.Context, userID string) (map[string]domain.Money, error) {
	type resOut struct {
		reservations map[string]domain.Money
		err          error
	}
	out, err := actor.Call(ctx, s.sys, walletKey(userID), func() resOut {
		st, err := s.stateFor(ctx, userID)
		if err != nil {
			return resOut{err: err}
		}
		copied := make(map[string]domain.Money, len(st.Reservations))
		for k, v := range st.Reservations {
			copied[k] = v
		}
		return resOut{reservations: copied}
	})
	if err != nil {
		return nil, err
	}
	return out.reservations, out.err
}
