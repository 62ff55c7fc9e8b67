package domain

import "fmt"

// AppError is the base domain error type. Domain failures are returned as
// values with a discriminated Code; they are never thrown across an actor
// boundary. Status is the HTTP status the outer layer maps the code to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// CodeOf returns the domain code of err, or empty when err is not an AppError.
func CodeOf(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ""
}

// Input error constructors.

func ErrInvalidRequest(msg string) *AppError {
	return &AppError{Code: "InvalidRequest", Message: msg, Status: 400}
}

func ErrNonPositiveAmount() *AppError {
	return &AppError{Code: "NonPositiveAmount", Message: "amount must be positive", Status: 400}
}

func ErrNegativeAmount(amount string) *AppError {
	return &AppError{Code: "NegativeAmount", Message: fmt.Sprintf("amount must not be negative, got %s", amount), Status: 400}
}

func ErrCurrencyMismatch(a, b string) *AppError {
	return &AppError{Code: "CurrencyMismatch", Message: fmt.Sprintf("currency mismatch: %s vs %s", a, b), Status: 400}
}

func ErrInsufficientAmount() *AppError {
	return &AppError{Code: "InsufficientAmount", Message: "cannot subtract a larger amount from a smaller one", Status: 400}
}

func ErrInvalidOdds(odds string) *AppError {
	return &AppError{Code: "InvalidOdds", Message: fmt.Sprintf("decimal odds must be at least 1.01, got %s", odds), Status: 400}
}

func ErrUnknownSelection(selectionID string) *AppError {
	return &AppError{Code: "UnknownSelection", Message: fmt.Sprintf("selection %s is not part of this market", selectionID), Status: 404}
}

func ErrInvalidTransition(from, to string) *AppError {
	return &AppError{Code: "InvalidTransition", Message: fmt.Sprintf("transition %s -> %s is not allowed", from, to), Status: 409}
}

// Contention and state error constructors.

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: "InsufficientBalance", Message: "insufficient balance for stake", Status: 400}
}

func ErrInsufficientAvailableBalance() *AppError {
	return &AppError{Code: "InsufficientAvailableBalance", Message: "amount exceeds available balance", Status: 400}
}

func ErrDuplicateReservation(betID string) *AppError {
	return &AppError{Code: "DuplicateReservation", Message: fmt.Sprintf("an active reservation already exists for bet %s", betID), Status: 409}
}

func ErrReservationNotFound(betID string) *AppError {
	return &AppError{Code: "ReservationNotFound", Message: fmt.Sprintf("no active reservation for bet %s", betID), Status: 404}
}

func ErrMarketSuspended(marketID string) *AppError {
	return &AppError{Code: "MarketSuspended", Message: fmt.Sprintf("market %s is suspended", marketID), Status: 409}
}

func ErrOddsChanged(current, acceptable string) *AppError {
	return &AppError{Code: "OddsChanged", Message: fmt.Sprintf("current odds %s are below the acceptable odds %s", current, acceptable), Status: 409}
}

func ErrAlreadyProcessed(betID string) *AppError {
	return &AppError{Code: "AlreadyProcessed", Message: fmt.Sprintf("bet %s has already been processed", betID), Status: 409}
}

func ErrAlreadyExists(entity, id string) *AppError {
	return &AppError{Code: "AlreadyExists", Message: fmt.Sprintf("%s %s already exists", entity, id), Status: 409}
}

func ErrAlreadyInitialized(marketID string) *AppError {
	return &AppError{Code: "AlreadyInitialized", Message: fmt.Sprintf("market %s is already initialized", marketID), Status: 409}
}

func ErrBetNotFound(betID string) *AppError {
	return &AppError{Code: "BetNotFound", Message: fmt.Sprintf("bet %s not found", betID), Status: 404}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NotFound", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrCannotVoidInStatus(status string) *AppError {
	return &AppError{Code: "CannotVoidInStatus", Message: fmt.Sprintf("bet cannot be voided in status %s", status), Status: 400}
}

func ErrCannotCashOutInStatus(status string) *AppError {
	return &AppError{Code: "CannotCashOutInStatus", Message: fmt.Sprintf("bet cannot be cashed out in status %s", status), Status: 409}
}

// Infrastructure error constructors.

func ErrPersistenceError(op string, cause error) *AppError {
	return &AppError{Code: "PersistenceError", Message: fmt.Sprintf("persistence failed during %s", op), Status: 500, Cause: cause}
}

func ErrWalletDepositFailed(cause error) *AppError {
	return &AppError{Code: "WalletDepositFailed", Message: "wallet deposit failed", Status: 502, Cause: cause}
}

func ErrOperationCancelled(cause error) *AppError {
	return &AppError{Code: "OperationCancelled", Message: "operation cancelled by caller deadline", Status: 408, Cause: cause}
}
