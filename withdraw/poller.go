package withdraw

import (
	"context"

	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/settlement"
	"github.com/cryptolatam/cashout/ton"
)

// CheckStatus advances the transaction's state machine by one poll. Terminal
// and pending-approval rows are returned unchanged without touching the node.
// A node transport error is "unknown", not "failed": the stored record is
// returned as-is and no refund happens, because the send may still land.
func (e *Engine) CheckStatus(ctx context.Context, sessionID, txID string) (*ledger.Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, newError(CodeNotFound, "transaction not found")
	}
	if tx.SessionID != sessionID {
		return nil, newError(CodeNotFound, "transaction not found")
	}
	return e.poll(ctx, tx)
}

func (e *Engine) poll(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	if tx.Terminal() || tx.Status == ledger.StatusPendingApproval {
		return tx, nil
	}
	if tx.OperationID == "" {
		// Reserved but never submitted; the reconciler owns this window.
		return tx, nil
	}
	res, err := e.node.GetOperationStatus(ctx, tx.OperationID, e.cfg.Network)
	if err != nil {
		e.audit(tx, "poll_unreachable").Err(err).Msg("node unreachable, status unknown")
		tx.Advisory = "settlement node unreachable, result unknown; check again later"
		return tx, nil
	}
	switch res.Status {
	case settlement.OpSuccess:
		now := e.now()
		tx.Status = ledger.StatusConfirmed
		tx.TxHash = res.TxID
		tx.ConfirmedAt = &now
		tx.LastError = nil
		if err := e.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, err
		}
		e.audit(tx, "confirmed").Str("tx_hash", tx.TxHash).Msg("withdrawal settled on-chain")
		if e.notifier != nil {
			if err := e.notifier.WithdrawalConfirmed(tx.SessionID, tx.ID, tx.TxHash, ton.Format(tx.Amount)); err != nil {
				e.log.Warn().Err(err).Str("tx_id", tx.ID).Msg("operator confirm callback not delivered")
			}
		}
		return tx, nil

	case settlement.OpFailed:
		kind := settlement.Classify(res.Error)
		decision := e.policy.Decide(kind, tx.RetryAttempt)
		if decision.Retry {
			return e.resubmit(ctx, tx, kind, res.Error, decision)
		}
		if err := e.failAndRelease(ctx, tx, string(kind), res.Error); err != nil {
			return nil, err
		}
		return tx, nil

	default:
		// queued/executing: still in flight, nothing to persist.
		return tx, nil
	}
}

// resubmit replays the send with the escalated fee. The reservation covers
// the original amount+fee; the escalation is paid by the house wallet.
func (e *Engine) resubmit(ctx context.Context, tx *ledger.Transaction, kind settlement.FailureKind, nodeErr string, decision Decision) (*ledger.Transaction, error) {
	opID, err := e.node.SubmitSend(ctx, &settlement.SendRequest{
		Source:      e.cfg.HouseWallet,
		Destination: tx.DestAddress,
		Amount:      tx.Amount,
		Memo:        tx.ID,
		Network:     e.cfg.Network,
		Attempt:     tx.RetryAttempt + 1,
		FeeOverride: decision.Fee,
	})
	if err != nil {
		// Node went away between poll and resubmit. Leave the row pending;
		// the next poll repeats the decision.
		e.audit(tx, "retry_submit_unreachable").Err(err).Msg("resubmission not delivered, will retry on next poll")
		tx.Advisory = "settlement node unreachable, result unknown; check again later"
		return tx, nil
	}
	tx.OperationID = opID
	tx.RetryAttempt++
	tx.Status = ledger.StatusPending
	tx.LastError = &ledger.TxError{Kind: string(kind), Message: nodeErr}
	if err := e.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	e.audit(tx, "retry_submitted").
		Int("retry_attempt", tx.RetryAttempt).
		Int64("escalated_fee", decision.Fee).
		Str("operation_id", opID).
		Msg("send resubmitted with escalated fee")
	return tx, nil
}
