package ledger

import "time"

// Session is the single source of truth for a player's spendable funds.
// All amounts are nanotons.
type Session struct {
	ID                string    `json:"sessionId"`
	Balance           int64     `json:"balance"`
	TotalWithdrawn    int64     `json:"totalWithdrawn"`
	TotalCredited     int64     `json:"totalCredited"`
	IsAuthenticated   bool      `json:"isAuthenticated"`
	IsDemo            bool      `json:"isDemo"`
	WithdrawalAddress string    `json:"withdrawalAddress"` // registered destination; empty until set
	CreatedAt         time.Time `json:"createdAt"`
}

// Transaction statuses. Failed and confirmed rows are permanent audit records.
const (
	StatusPendingApproval = "pending_approval"
	StatusPending         = "pending"
	StatusConfirmed       = "confirmed"
	StatusFailed          = "failed"
)

// TxError is the structured last-error of a withdrawal attempt.
type TxError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Transaction is a claim against a session's balance while non-terminal.
type Transaction struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"sessionId"`
	IdempotencyKey string     `json:"idempotencyKey"`
	Amount         int64      `json:"amount"` // nanotons, excludes fee
	Fee            int64      `json:"fee"`    // nanotons, fee of the current attempt
	DestAddress    string     `json:"destAddress"`
	OperationID    string     `json:"operationId,omitempty"` // node async handle
	Status         string     `json:"status"`
	RetryAttempt   int        `json:"retryAttempt"`
	LastError      *TxError   `json:"lastError,omitempty"`
	TxHash         string     `json:"txHash,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`

	// Advisory is a transient note about the last status poll (e.g. node
	// unreachable, result unknown). Never persisted.
	Advisory string `json:"-"`
}

// Total is the reserved amount of the transaction: payout plus fee.
func (t *Transaction) Total() int64 {
	return t.Amount + t.Fee
}

// Terminal reports whether the transaction can no longer change state.
func (t *Transaction) Terminal() bool {
	return t.Status == StatusConfirmed || t.Status == StatusFailed
}
