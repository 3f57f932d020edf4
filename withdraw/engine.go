// Package withdraw is the withdrawal processing engine: it moves a session's
// balance between available, reserved and confirmed-withdrawn while
// coordinating with the asynchronous settlement node.
//
// The flow is a saga with two non-atomic phases. Phase one commits locally:
// validate, reserve funds and persist the transaction row in a single store
// unit. Phase two calls the external node, which cannot be rolled back; any
// downstream failure triggers the compensating release of the reservation,
// exactly once, guarded by the transaction's persisted status.
package withdraw

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptolatam/cashout/config"
	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/settlement"
	"github.com/cryptolatam/cashout/ton"
)

// Notifier receives advisory callbacks on terminal transitions. Delivery
// failures are logged and never affect ledger state.
type Notifier interface {
	WithdrawalConfirmed(sessionID, txID, txHash, amount string) error
	WithdrawalFailed(sessionID, txID, reason, amount string) error
}

type Engine struct {
	cfg    *config.Config
	store  ledger.Store
	node   settlement.Submitter
	policy Policy
	log    zerolog.Logger

	killSwitch func() bool
	addrValid  func(string) bool
	notifier   Notifier
	now        func() time.Time
}

func New(cfg *config.Config, store ledger.Store, node settlement.Submitter, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		node:       node,
		policy:     Policy{BaseFee: cfg.WithdrawalFee, MaxAttempts: cfg.MaxRetryAttempts},
		log:        log,
		killSwitch: func() bool { return cfg.MaintenanceMode },
		addrValid:  settlement.ValidAddressFormat,
		now:        time.Now,
	}
}

// SetKillSwitch overrides the platform-wide maintenance predicate.
func (e *Engine) SetKillSwitch(fn func() bool) { e.killSwitch = fn }

// SetAddressValidator overrides the local address-format predicate.
func (e *Engine) SetAddressValidator(fn func(string) bool) { e.addrValid = fn }

// SetNotifier wires the operator callback client.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// Request handles a withdrawal request. amount is nanotons, exclusive of the
// fixed fee. Identical (sessionID, idempotencyKey) pairs return the original
// transaction without reserving twice.
func (e *Engine) Request(ctx context.Context, sessionID string, amount int64, idempotencyKey string) (*ledger.Transaction, error) {
	if e.killSwitch() {
		return nil, newError(CodeMaintenance, "withdrawals are temporarily disabled")
	}
	if idempotencyKey == "" {
		return nil, newError(CodeValidation, "idempotency key required")
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, newError(CodeNotFound, "session not found")
	}
	if !sess.IsDemo && !sess.IsAuthenticated {
		return nil, newError(CodeUnauthorized, "session is not authenticated")
	}
	dest := sess.WithdrawalAddress
	if !sess.IsDemo {
		if dest == "" {
			return nil, newError(CodeValidation, "no withdrawal address registered")
		}
		if !e.addrValid(dest) {
			return nil, newError(CodeValidation, "registered address is malformed")
		}
		if e.cfg.Network == "mainnet" {
			check, err := e.node.ValidateAddressChecksum(ctx, dest, e.cfg.Network)
			if err != nil {
				return nil, newError(CodeSettlementUnavailable, "address validation unavailable")
			}
			if !check.IsValid {
				return nil, newError(CodeValidation, "registered address failed checksum: "+check.Error)
			}
		}
	}
	if amount < e.cfg.MinWithdrawal {
		return nil, newError(CodeValidation, "amount below minimum withdrawal of "+ton.Format(e.cfg.MinWithdrawal))
	}
	total := amount + e.cfg.WithdrawalFee
	if total > sess.Balance {
		return nil, newError(CodeInsufficientBalance, "balance does not cover amount plus fee")
	}

	// Idempotency: a prior transaction for this key wins untouched.
	if prior, err := e.store.GetByIdempotencyKey(ctx, sessionID, idempotencyKey); err == nil {
		return prior, nil
	}

	status := ledger.StatusPending
	if !sess.IsDemo && e.cfg.ApprovalThreshold > 0 && amount >= e.cfg.ApprovalThreshold {
		status = ledger.StatusPendingApproval
	}
	tx := &ledger.Transaction{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Fee:            e.cfg.WithdrawalFee,
		DestAddress:    dest,
		Status:         status,
		CreatedAt:      e.now(),
	}
	// Committed local step of the saga: row + reservation in one unit.
	created, err := e.store.CreateWithReservation(ctx, tx)
	if err == ledger.ErrDuplicateKey {
		return created, nil
	}
	if err == ledger.ErrInsufficientBalance {
		return nil, newError(CodeInsufficientBalance, "balance does not cover amount plus fee")
	}
	if err != nil {
		return nil, err
	}
	tx = created
	e.audit(tx, "funds_reserved").Int64("total", total).Msg("reservation committed")

	if tx.Status == ledger.StatusPendingApproval {
		e.audit(tx, "approval_required").Msg("withdrawal held for manual approval")
		return tx, nil
	}
	if sess.IsDemo {
		now := e.now()
		tx.Status = ledger.StatusConfirmed
		tx.TxHash = "demo-" + uuid.New().String()
		tx.ConfirmedAt = &now
		if err := e.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, err
		}
		e.audit(tx, "demo_confirmed").Msg("demo withdrawal settled locally")
		return tx, nil
	}
	return e.submit(ctx, tx)
}

// submit runs phase two of the saga: liquidity and connectivity checks, then
// the fire-and-forget send. Any failure here compensates the reservation.
func (e *Engine) submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	status, err := e.node.CheckNodeStatus(ctx, e.cfg.Network)
	if err != nil || !status.Connected || !status.Synced {
		if failErr := e.failAndRelease(ctx, tx, string(settlement.KindUnknown), "settlement node unavailable"); failErr != nil {
			return nil, failErr
		}
		return tx, refundedError(CodeSettlementUnavailable, "settlement node unavailable, funds refunded")
	}
	liquid, err := e.node.GetSourceBalance(ctx, e.cfg.HouseWallet, e.cfg.Network)
	if err != nil || liquid.Confirmed < tx.Amount {
		if failErr := e.failAndRelease(ctx, tx, string(settlement.KindSourceUnderfunded), "house wallet cannot cover withdrawal"); failErr != nil {
			return nil, failErr
		}
		return tx, refundedError(CodeSettlementUnavailable, "settlement temporarily unavailable, funds refunded")
	}
	opID, err := e.node.SubmitSend(ctx, &settlement.SendRequest{
		Source:      e.cfg.HouseWallet,
		Destination: tx.DestAddress,
		Amount:      tx.Amount,
		Memo:        tx.ID,
		Network:     e.cfg.Network,
		Attempt:     tx.RetryAttempt,
		FeeOverride: e.policy.FeeFor(tx.RetryAttempt),
	})
	if err != nil {
		if failErr := e.failAndRelease(ctx, tx, string(settlement.KindUnknown), "submission failed: "+err.Error()); failErr != nil {
			return nil, failErr
		}
		return tx, refundedError(CodeSettlementUnavailable, "submission failed, funds refunded")
	}
	tx.OperationID = opID
	tx.Status = ledger.StatusPending
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	e.audit(tx, "submitted").Str("operation_id", opID).Msg("send submitted to node")
	return tx, nil
}

// failAndRelease runs the compensating action: release the reservation and
// mark the row failed, in one atomic store unit guarded by the persisted
// status. Racing resolutions of the same row release exactly once.
func (e *Engine) failAndRelease(ctx context.Context, tx *ledger.Transaction, kind, message string) error {
	return e.failFrom(ctx, tx, "", kind, message)
}

// failFrom additionally requires the row to currently be in from; the store
// surfaces ledger.ErrStatusConflict when it moved on already.
func (e *Engine) failFrom(ctx context.Context, tx *ledger.Transaction, from, kind, message string) error {
	updated, released, err := e.store.ReleaseAndFail(ctx, tx.ID, from, &ledger.TxError{Kind: kind, Message: message})
	if err != nil {
		return err
	}
	*tx = *updated
	if !released {
		return nil
	}
	e.audit(tx, "funds_released").Str("kind", kind).Str("reason", message).Msg("reservation refunded")
	if e.notifier != nil {
		if err := e.notifier.WithdrawalFailed(tx.SessionID, tx.ID, message, ton.Format(tx.Amount)); err != nil {
			e.log.Warn().Err(err).Str("tx_id", tx.ID).Msg("operator failure callback not delivered")
		}
	}
	return nil
}

// Credit records a confirmed deposit against the session balance.
func (e *Engine) Credit(ctx context.Context, sessionID string, amount int64) (*ledger.Session, error) {
	if amount <= 0 {
		return nil, newError(CodeValidation, "credit amount must be positive")
	}
	if err := e.store.CreditFunds(ctx, sessionID, amount, ledger.CounterCredited, amount); err != nil {
		if err == ledger.ErrSessionNotFound {
			return nil, newError(CodeNotFound, "session not found")
		}
		return nil, err
	}
	e.log.Info().Str("event", "funds_credited").Str("session_id", sessionID).Int64("amount", amount).Msg("deposit credited")
	return e.store.GetSession(ctx, sessionID)
}

// History returns all withdrawal rows of a session, oldest first.
func (e *Engine) History(ctx context.Context, sessionID string) ([]*ledger.Transaction, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, newError(CodeNotFound, "session not found")
	}
	return e.store.ListBySession(ctx, sessionID)
}

func (e *Engine) audit(tx *ledger.Transaction, event string) *zerolog.Event {
	return e.log.Info().
		Str("event", event).
		Str("tx_id", tx.ID).
		Str("session_id", tx.SessionID).
		Str("status", tx.Status).
		Int64("amount", tx.Amount)
}
