package withdraw

import (
	"context"
	"sync"
	"testing"

	"github.com/cryptolatam/cashout/config"
	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/settlement"
)

func gatedConfig() *config.Config {
	cfg := testConfig()
	cfg.ApprovalThreshold = 1_000_000_000
	return cfg
}

func heldWithdrawal(t *testing.T, e *Engine, store *ledger.FileStore, key string) *ledger.Transaction {
	t.Helper()
	tx, err := e.Request(context.Background(), "s1", 1_500_000_000, key)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.StatusPendingApproval {
		t.Fatalf("setup: status = %s", tx.Status)
	}
	return tx
}

func TestApproveSubmits(t *testing.T) {
	e, store, node := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")

	got, err := e.Approve(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.StatusPending || got.OperationID == "" {
		t.Fatalf("tx = %+v", got)
	}
	if len(node.submits) != 1 {
		t.Errorf("submits = %d", len(node.submits))
	}
	// Already approved: second approve must be rejected.
	_, err = e.Approve(ctx, tx.ID)
	mustCode(t, err, CodeOperationFailed)
}

// Two racing approvals of one held withdrawal: exactly one claims the row
// and reaches the node; the other gets the conflict.
func TestConcurrentApproveSubmitsOnce(t *testing.T) {
	e, store, node := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Approve(ctx, tx.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var approved, conflicted int
	for err := range errs {
		if err == nil {
			approved++
			continue
		}
		if ae, ok := AsError(err); ok && ae.Code == CodeOperationFailed {
			conflicted++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if approved != 1 || conflicted != 1 {
		t.Fatalf("approved=%d conflicted=%d, want 1/1", approved, conflicted)
	}
	if len(node.submits) != 1 {
		t.Errorf("submits = %d, want exactly one on-chain send", len(node.submits))
	}
	sess, _ := store.GetSession(ctx, "s1")
	if sess.Balance != 499_900_000 {
		t.Errorf("balance = %d, want one reservation outstanding", sess.Balance)
	}
}

func TestApproveNodeDownRefunds(t *testing.T) {
	e, store, node := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")

	node.status = settlement.NodeStatus{Connected: false}
	_, err := e.Approve(ctx, tx.ID)
	e2 := mustCode(t, err, CodeSettlementUnavailable)
	if !e2.Refunded {
		t.Error("refunded flag must be set")
	}
	sess, _ := store.GetSession(ctx, "s1")
	if sess.Balance != 2_000_000_000 {
		t.Errorf("balance = %d, want full refund", sess.Balance)
	}
}

func TestRejectRefunds(t *testing.T) {
	e, store, _ := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")

	got, err := e.Reject(ctx, tx.ID, "out-of-band chargeback")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.StatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.LastError == nil || got.LastError.Message != "out-of-band chargeback" {
		t.Errorf("lastError = %+v", got.LastError)
	}
	sess, _ := store.GetSession(ctx, "s1")
	if sess.Balance != 2_000_000_000 || sess.TotalWithdrawn != 0 {
		t.Errorf("reject refund: balance=%d withdrawn=%d", sess.Balance, sess.TotalWithdrawn)
	}
	// Only pending_approval rows can be rejected.
	_, err = e.Reject(ctx, tx.ID, "again")
	mustCode(t, err, CodeOperationFailed)
}

func TestRequeueCreatesNewRow(t *testing.T) {
	e, store, _ := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")
	if _, err := e.Reject(ctx, tx.ID, "checking requeue"); err != nil {
		t.Fatal(err)
	}

	requeued, err := e.Requeue(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if requeued.ID == tx.ID {
		t.Fatal("requeue must create a new transaction row")
	}
	if requeued.Status != ledger.StatusPendingApproval {
		t.Errorf("status = %s, want pending_approval", requeued.Status)
	}
	if requeued.Amount != tx.Amount || requeued.Fee != tx.Fee {
		t.Errorf("requeued = %+v", requeued)
	}
	// Original stays failed, audit trail preserved.
	orig, _ := store.GetTransaction(ctx, tx.ID)
	if orig.Status != ledger.StatusFailed {
		t.Errorf("original mutated: %s", orig.Status)
	}
	sess, _ := store.GetSession(ctx, "s1")
	if sess.Balance != 499_900_000 {
		t.Errorf("balance = %d, want re-reserved", sess.Balance)
	}
	// Requeue is only valid from failed.
	_, err = e.Requeue(ctx, requeued.ID)
	mustCode(t, err, CodeOperationFailed)
}

func TestRequeueInsufficientBalance(t *testing.T) {
	e, store, _ := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 2_000_000_000, false)
	tx := heldWithdrawal(t, e, store, "k1")
	if _, err := e.Reject(ctx, tx.ID, "r"); err != nil {
		t.Fatal(err)
	}
	// Drain the balance below amount+fee before requeueing.
	if err := store.ReserveFunds(ctx, "s1", 1_900_000_000, ledger.CounterWithdrawn, 0); err != nil {
		t.Fatal(err)
	}
	_, err := e.Requeue(ctx, tx.ID)
	mustCode(t, err, CodeInsufficientBalance)
}

func TestBulkPartialSuccess(t *testing.T) {
	e, store, _ := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 4_000_000_000, false)
	tx1 := heldWithdrawal(t, e, store, "k1")
	tx2 := heldWithdrawal(t, e, store, "k2")
	if _, err := e.Reject(ctx, tx2.ID, "already handled"); err != nil {
		t.Fatal(err)
	}

	res := e.BulkApprove(ctx, []string{tx1.ID, tx2.ID, "missing-id"})
	if res.Succeeded != 1 || res.Failed != 2 {
		t.Fatalf("bulk result = %+v", res)
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestPendingApprovals(t *testing.T) {
	e, store, _ := newTestEngine(t, gatedConfig())
	ctx := context.Background()
	seed(t, store, "s1", 4_000_000_000, false)
	tx1 := heldWithdrawal(t, e, store, "k1")
	tx2 := heldWithdrawal(t, e, store, "k2")

	held, err := e.PendingApprovals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 2 {
		t.Fatalf("held = %d, want 2", len(held))
	}
	ids := map[string]bool{held[0].ID: true, held[1].ID: true}
	if !ids[tx1.ID] || !ids[tx2.ID] {
		t.Errorf("unexpected ids: %v", ids)
	}
}
