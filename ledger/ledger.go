package ledger

import (
	"context"
	"errors"
)

// Lifetime counters adjusted alongside balance mutations.
const (
	CounterWithdrawn = "totalWithdrawn"
	CounterCredited  = "totalCredited"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSessionNotFound     = errors.New("session not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateKey        = errors.New("duplicate idempotency key")
	ErrStatusConflict      = errors.New("transaction status conflict")
)

// Store is the persisted ledger: sessions, their balances, and withdrawal
// transactions. Every balance mutation for a session runs inside one atomic
// unit scoped to that session so concurrent calls serialize.
//
// Implementations: FileStore (JSON, local/demo/tests) and PGStore (Postgres).
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error

	// ReserveFunds atomically checks balance >= total, decrements balance by
	// total and increments the named lifetime counter by counterAmount.
	// Fails with ErrInsufficientBalance.
	ReserveFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error

	// ReleaseFunds is the exact inverse of ReserveFunds; refunds only.
	ReleaseFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error

	// CreditFunds increments balance (deposits) and the named counter.
	CreditFunds(ctx context.Context, sessionID string, amount int64, counterField string, counterAmount int64) error

	// CreateWithReservation inserts the transaction row and reserves
	// tx.Total() against the session in the same atomic unit, incrementing
	// CounterWithdrawn by tx.Amount. If a row already exists for
	// (sessionID, idempotencyKey) it returns that row and ErrDuplicateKey
	// without reserving again.
	CreateWithReservation(ctx context.Context, tx *Transaction) (*Transaction, error)

	// TransitionStatus atomically moves the transaction from exactly the
	// given status to the next one. ErrStatusConflict when the row is no
	// longer in from; under concurrent callers exactly one wins the claim.
	TransitionStatus(ctx context.Context, txID, from, to string) (*Transaction, error)

	// ReleaseAndFail releases the reservation and marks the row failed, with
	// lastErr recorded, in one atomic unit guarded by the persisted status:
	// an already-terminal row is left untouched and released=false is
	// returned, so racing resolutions release exactly once. When from is
	// non-empty the row must currently be in that exact status, otherwise
	// ErrStatusConflict.
	ReleaseAndFail(ctx context.Context, txID, from string, lastErr *TxError) (tx *Transaction, released bool, err error)

	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, sessionID, key string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error

	// ListByStatus returns transactions in the given status, oldest first.
	ListByStatus(ctx context.Context, status string) ([]*Transaction, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Transaction, error)
}
