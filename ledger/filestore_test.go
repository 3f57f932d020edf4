package ledger

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir())
}

func seedSession(t *testing.T, s *FileStore, id string, balance int64) {
	t.Helper()
	err := s.PutSession(context.Background(), &Session{
		ID:                id,
		Balance:           balance,
		IsAuthenticated:   true,
		WithdrawalAddress: "EQtest-address",
		CreatedAt:         time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1_000_000_000)

	if err := s.ReserveFunds(ctx, "s1", 500_000_000, CounterWithdrawn, 499_900_000); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 500_000_000 || sess.TotalWithdrawn != 499_900_000 {
		t.Fatalf("after reserve: balance=%d withdrawn=%d", sess.Balance, sess.TotalWithdrawn)
	}

	if err := s.ReleaseFunds(ctx, "s1", 500_000_000, CounterWithdrawn, 499_900_000); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.GetSession(ctx, "s1")
	if sess.Balance != 1_000_000_000 || sess.TotalWithdrawn != 0 {
		t.Errorf("round trip drift: balance=%d withdrawn=%d", sess.Balance, sess.TotalWithdrawn)
	}
}

func TestReserveInsufficientBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 550_000_000)

	// 0.5500 balance, 0.5501 total requested
	err := s.ReserveFunds(ctx, "s1", 550_100_000, CounterWithdrawn, 550_000_000)
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 550_000_000 || sess.TotalWithdrawn != 0 {
		t.Errorf("failed reserve must not mutate: balance=%d withdrawn=%d", sess.Balance, sess.TotalWithdrawn)
	}
}

func TestCreditFunds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 0)
	if err := s.CreditFunds(ctx, "s1", 2_000_000_000, CounterCredited, 2_000_000_000); err != nil {
		t.Fatal(err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 2_000_000_000 || sess.TotalCredited != 2_000_000_000 {
		t.Errorf("after credit: balance=%d credited=%d", sess.Balance, sess.TotalCredited)
	}
}

func TestCreateWithReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1_000_000_000)

	tx := &Transaction{
		ID:             "tx1",
		SessionID:      "s1",
		IdempotencyKey: "key1",
		Amount:         499_900_000,
		Fee:            100_000,
		DestAddress:    "EQtest-address",
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}
	created, err := s.CreateWithReservation(ctx, tx)
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "tx1" {
		t.Fatalf("created id = %q", created.ID)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 500_000_000 {
		t.Errorf("balance after reserve = %d, want 500000000", sess.Balance)
	}
	if sess.TotalWithdrawn != 499_900_000 {
		t.Errorf("withdrawn counter = %d", sess.TotalWithdrawn)
	}

	// Same idempotency key: existing row back, no second reservation.
	dup := *tx
	dup.ID = "tx2"
	got, err := s.CreateWithReservation(ctx, &dup)
	if err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if got.ID != "tx1" {
		t.Errorf("duplicate returned %q, want tx1", got.ID)
	}
	sess, _ = s.GetSession(ctx, "s1")
	if sess.Balance != 500_000_000 {
		t.Errorf("duplicate reserved again: balance=%d", sess.Balance)
	}
	if _, err := s.GetTransaction(ctx, "tx2"); err != ErrTransactionNotFound {
		t.Error("duplicate call must not create a second row")
	}
}

func TestTransitionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1_000_000_000)
	tx := &Transaction{
		ID: "tx1", SessionID: "s1", IdempotencyKey: "k", Amount: 400_000_000, Fee: 100_000,
		DestAddress: "EQtest-address", Status: StatusPendingApproval, CreatedAt: time.Now(),
	}
	if _, err := s.CreateWithReservation(ctx, tx); err != nil {
		t.Fatal(err)
	}

	got, err := s.TransitionStatus(ctx, "tx1", StatusPendingApproval, StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	// The claim is gone; a second identical transition conflicts.
	if _, err := s.TransitionStatus(ctx, "tx1", StatusPendingApproval, StatusPending); err != ErrStatusConflict {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
	if _, err := s.TransitionStatus(ctx, "ghost", StatusPendingApproval, StatusPending); err != ErrTransactionNotFound {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestReleaseAndFailReleasesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1_000_000_000)
	tx := &Transaction{
		ID: "tx1", SessionID: "s1", IdempotencyKey: "k", Amount: 499_900_000, Fee: 100_000,
		DestAddress: "EQtest-address", Status: StatusPending, CreatedAt: time.Now(),
	}
	if _, err := s.CreateWithReservation(ctx, tx); err != nil {
		t.Fatal(err)
	}

	got, released, err := s.ReleaseAndFail(ctx, "tx1", "", &TxError{Kind: "unknown", Message: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	if !released || got.Status != StatusFailed || got.LastError == nil {
		t.Fatalf("first release: released=%v tx=%+v", released, got)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 1_000_000_000 || sess.TotalWithdrawn != 0 {
		t.Errorf("after release: balance=%d withdrawn=%d", sess.Balance, sess.TotalWithdrawn)
	}

	// Terminal row: second call is a no-op, no funds created.
	got, released, err = s.ReleaseAndFail(ctx, "tx1", "", &TxError{Kind: "unknown", Message: "again"})
	if err != nil {
		t.Fatal(err)
	}
	if released {
		t.Error("second release must be a no-op")
	}
	if got.LastError.Message != "boom" {
		t.Errorf("terminal row mutated: %+v", got.LastError)
	}
	sess, _ = s.GetSession(ctx, "s1")
	if sess.Balance != 1_000_000_000 {
		t.Errorf("funds created: balance = %d", sess.Balance)
	}
}

func TestReleaseAndFailStatusGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1_000_000_000)
	tx := &Transaction{
		ID: "tx1", SessionID: "s1", IdempotencyKey: "k", Amount: 400_000_000, Fee: 100_000,
		DestAddress: "EQtest-address", Status: StatusPending, CreatedAt: time.Now(),
	}
	if _, err := s.CreateWithReservation(ctx, tx); err != nil {
		t.Fatal(err)
	}
	// Row is pending, caller requires pending_approval.
	if _, _, err := s.ReleaseAndFail(ctx, "tx1", StatusPendingApproval, &TxError{Kind: "admin_rejected", Message: "r"}); err != ErrStatusConflict {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.Balance != 599_900_000 {
		t.Errorf("guarded call mutated balance: %d", sess.Balance)
	}
}

func TestPersistenceReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1 := NewFileStore(dir)
	seedSession(t, s1, "s1", 750_000_000)
	tx := &Transaction{
		ID: "tx1", SessionID: "s1", IdempotencyKey: "k", Amount: 100_000_000, Fee: 100_000,
		DestAddress: "EQtest-address", Status: StatusPending, CreatedAt: time.Now(),
	}
	if _, err := s1.CreateWithReservation(ctx, tx); err != nil {
		t.Fatal(err)
	}

	s2 := NewFileStore(dir)
	sess, err := s2.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Balance != 649_900_000 {
		t.Errorf("reloaded balance = %d", sess.Balance)
	}
	got, err := s2.GetTransaction(ctx, "tx1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending || got.Amount != 100_000_000 {
		t.Errorf("reloaded tx: %+v", got)
	}
}

// Conservation: balance + reserved(non-terminal) == credited - confirmed withdrawals.
func TestConservationInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.PutSession(ctx, &Session{ID: "s1", IsAuthenticated: true, WithdrawalAddress: "EQa", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreditFunds(ctx, "s1", 3_000_000_000, CounterCredited, 3_000_000_000); err != nil {
		t.Fatal(err)
	}
	mk := func(id, key string, amount int64) *Transaction {
		return &Transaction{ID: id, SessionID: "s1", IdempotencyKey: key, Amount: amount, Fee: 100_000,
			DestAddress: "EQa", Status: StatusPending, CreatedAt: time.Now()}
	}
	if _, err := s.CreateWithReservation(ctx, mk("t1", "k1", 400_000_000)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateWithReservation(ctx, mk("t2", "k2", 700_000_000)); err != nil {
		t.Fatal(err)
	}
	// t1 fails and is released; t2 confirms.
	t1, _ := s.GetTransaction(ctx, "t1")
	if err := s.ReleaseFunds(ctx, "s1", t1.Total(), CounterWithdrawn, t1.Amount); err != nil {
		t.Fatal(err)
	}
	t1.Status = StatusFailed
	if err := s.UpdateTransaction(ctx, t1); err != nil {
		t.Fatal(err)
	}
	t2, _ := s.GetTransaction(ctx, "t2")
	t2.Status = StatusConfirmed
	if err := s.UpdateTransaction(ctx, t2); err != nil {
		t.Fatal(err)
	}

	sess, _ := s.GetSession(ctx, "s1")
	var reserved, confirmed int64
	for _, id := range []string{"t1", "t2"} {
		tx, _ := s.GetTransaction(ctx, id)
		switch tx.Status {
		case StatusPending, StatusPendingApproval:
			reserved += tx.Total()
		case StatusConfirmed:
			confirmed += tx.Total()
		}
	}
	if sess.Balance+reserved != sess.TotalCredited-confirmed {
		t.Errorf("conservation broken: balance=%d reserved=%d credited=%d confirmed=%d",
			sess.Balance, reserved, sess.TotalCredited, confirmed)
	}
	if sess.TotalWithdrawn != t2.Amount {
		t.Errorf("withdrawn counter = %d, want %d", sess.TotalWithdrawn, t2.Amount)
	}
}
