package withdraw

import (
	"context"
	"time"

	"github.com/cryptolatam/cashout/ledger"
)

// ReconcileReport summarizes one sweep over stuck pending transactions.
type ReconcileReport struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"` // reserved but never submitted, refunded
	Polled   int `json:"polled"`   // in flight, re-polled against the node
}

// ReconcileStuck sweeps pending rows older than olderThan. A row that never
// obtained an operation id sits in the crash window between reservation and
// submission: nothing can be in flight, so the reservation is released. Rows
// with an operation id are simply re-polled; the poller decides.
//
// Invoked by cmd/reconciler on an external schedule; this core owns no timer.
func (e *Engine) ReconcileStuck(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	pending, err := e.store.ListByStatus(ctx, ledger.StatusPending)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	cutoff := e.now().Add(-olderThan)
	for _, tx := range pending {
		if tx.CreatedAt.After(cutoff) {
			continue
		}
		report.Scanned++
		if tx.OperationID == "" {
			if err := e.failAndRelease(ctx, tx, "stuck_before_submission", "reserved but never submitted, swept by reconciler"); err != nil {
				e.log.Error().Err(err).Str("tx_id", tx.ID).Msg("reconciler release failed")
				continue
			}
			report.Released++
			continue
		}
		if _, err := e.poll(ctx, tx); err != nil {
			e.log.Error().Err(err).Str("tx_id", tx.ID).Msg("reconciler poll failed")
			continue
		}
		report.Polled++
	}
	e.log.Info().
		Str("event", "reconcile_sweep").
		Int("scanned", report.Scanned).
		Int("released", report.Released).
		Int("polled", report.Polled).
		Msg("stuck transaction sweep complete")
	return report, nil
}
