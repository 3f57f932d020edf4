package withdraw

import (
	"context"

	"github.com/google/uuid"

	"github.com/cryptolatam/cashout/ledger"
)

// Approve releases a held withdrawal to the settlement node. Only valid from
// pending_approval; the submission path is identical to an unheld request.
// The pending_approval -> pending transition is an atomic claim on the row:
// of concurrent approvals exactly one reaches the node.
func (e *Engine) Approve(ctx context.Context, txID string) (*ledger.Transaction, error) {
	tx, err := e.store.TransitionStatus(ctx, txID, ledger.StatusPendingApproval, ledger.StatusPending)
	if err == ledger.ErrTransactionNotFound {
		return nil, newError(CodeNotFound, "transaction not found")
	}
	if err == ledger.ErrStatusConflict {
		return nil, newError(CodeOperationFailed, "transaction is not awaiting approval")
	}
	if err != nil {
		return nil, err
	}
	e.audit(tx, "approved").Msg("withdrawal approved")
	return e.submit(ctx, tx)
}

// Reject refunds a held withdrawal. Only valid from pending_approval; the
// status guard and the release run in one store unit.
func (e *Engine) Reject(ctx context.Context, txID, reason string) (*ledger.Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, newError(CodeNotFound, "transaction not found")
	}
	if reason == "" {
		reason = "rejected by admin"
	}
	err = e.failFrom(ctx, tx, ledger.StatusPendingApproval, "admin_rejected", reason)
	if err == ledger.ErrStatusConflict {
		return nil, newError(CodeOperationFailed, "transaction is not awaiting approval")
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Requeue re-reserves a terminally failed withdrawal as a brand-new
// transaction held for approval. The failed row stays untouched as the audit
// record.
func (e *Engine) Requeue(ctx context.Context, txID string) (*ledger.Transaction, error) {
	orig, err := e.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, newError(CodeNotFound, "transaction not found")
	}
	if orig.Status != ledger.StatusFailed {
		return nil, newError(CodeOperationFailed, "only failed transactions can be requeued")
	}
	tx := &ledger.Transaction{
		ID:             uuid.New().String(),
		SessionID:      orig.SessionID,
		IdempotencyKey: "requeue-" + uuid.New().String(),
		Amount:         orig.Amount,
		Fee:            orig.Fee,
		DestAddress:    orig.DestAddress,
		Status:         ledger.StatusPendingApproval,
		CreatedAt:      e.now(),
	}
	created, err := e.store.CreateWithReservation(ctx, tx)
	if err == ledger.ErrInsufficientBalance {
		return nil, newError(CodeInsufficientBalance, "balance no longer covers the withdrawal")
	}
	if err != nil {
		return nil, err
	}
	e.audit(created, "requeued").Str("original_tx_id", orig.ID).Msg("failed withdrawal requeued for approval")
	return created, nil
}

// BulkResult is the outcome of a bulk admin action. Items are independent;
// partial success is expected.
type BulkResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// BulkApprove applies Approve across ids with independent outcomes.
func (e *Engine) BulkApprove(ctx context.Context, txIDs []string) *BulkResult {
	return e.bulk(txIDs, func(id string) error {
		_, err := e.Approve(ctx, id)
		return err
	})
}

// BulkReject applies Reject across ids with independent outcomes.
func (e *Engine) BulkReject(ctx context.Context, txIDs []string, reason string) *BulkResult {
	return e.bulk(txIDs, func(id string) error {
		_, err := e.Reject(ctx, id, reason)
		return err
	})
}

func (e *Engine) bulk(txIDs []string, op func(string) error) *BulkResult {
	res := &BulkResult{Errors: make(map[string]string)}
	for _, id := range txIDs {
		if err := op(id); err != nil {
			res.Failed++
			res.Errors[id] = err.Error()
			continue
		}
		res.Succeeded++
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res
}

// PendingApprovals lists transactions held for manual review, oldest first.
func (e *Engine) PendingApprovals(ctx context.Context) ([]*ledger.Transaction, error) {
	return e.store.ListByStatus(ctx, ledger.StatusPendingApproval)
}
