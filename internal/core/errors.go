package core

import "errors"

// Sentinel errors returned by the ledger. They are always wrapped with the
// offending identifier or value, so compare with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrClosedAccount      = errors.New("account is closed")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrMonthOutOfOrder    = errors.New("month out of order")
	ErrInvalidAllocation  = errors.New("invalid allocation")
	ErrInvalidGoal        = errors.New("invalid goal")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidAccountKind = errors.New("invalid account kind")
	ErrInvalidSettings    = errors.New("invalid budget settings")
)

// ErrReserved is returned when a caller tries to remove an entity the ledger
// relies on, such as the inflow category or an account's transfer payee.
var ErrReserved = errors.New("reserved by the ledger")
