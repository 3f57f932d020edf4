package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGStore is the Postgres-backed ledger. Balance mutations run inside a
// transaction that locks the session row (SELECT ... FOR UPDATE) so
// concurrent withdraw/deposit/settlement calls against one session serialize.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Schema for reference (migrations live with the platform):
//
//	CREATE TABLE cashout_sessions (
//	  session_id text PRIMARY KEY,
//	  balance bigint NOT NULL DEFAULT 0 CHECK (balance >= 0),
//	  total_withdrawn bigint NOT NULL DEFAULT 0,
//	  total_credited bigint NOT NULL DEFAULT 0,
//	  is_authenticated boolean NOT NULL DEFAULT false,
//	  is_demo boolean NOT NULL DEFAULT false,
//	  withdrawal_address text NOT NULL DEFAULT '',
//	  created_at timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE TABLE cashout_withdrawals (
//	  id text PRIMARY KEY,
//	  session_id text NOT NULL REFERENCES cashout_sessions(session_id),
//	  idempotency_key text NOT NULL,
//	  amount bigint NOT NULL,
//	  fee bigint NOT NULL,
//	  dest_address text NOT NULL,
//	  operation_id text NOT NULL DEFAULT '',
//	  status text NOT NULL,
//	  retry_attempt int NOT NULL DEFAULT 0,
//	  last_error_kind text,
//	  last_error_message text,
//	  tx_hash text NOT NULL DEFAULT '',
//	  created_at timestamptz NOT NULL DEFAULT now(),
//	  confirmed_at timestamptz,
//	  UNIQUE (session_id, idempotency_key)
//	);

func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, balance, total_withdrawn, total_credited, is_authenticated, is_demo, withdrawal_address, created_at
		FROM cashout_sessions WHERE session_id = $1
	`, sessionID)
	var sess Session
	err := row.Scan(&sess.ID, &sess.Balance, &sess.TotalWithdrawn, &sess.TotalCredited,
		&sess.IsAuthenticated, &sess.IsDemo, &sess.WithdrawalAddress, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) PutSession(ctx context.Context, sess *Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashout_sessions (session_id, balance, total_withdrawn, total_credited, is_authenticated, is_demo, withdrawal_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
		  is_authenticated = EXCLUDED.is_authenticated,
		  withdrawal_address = EXCLUDED.withdrawal_address
	`, sess.ID, sess.Balance, sess.TotalWithdrawn, sess.TotalCredited,
		sess.IsAuthenticated, sess.IsDemo, sess.WithdrawalAddress, sess.CreatedAt)
	return err
}

// lockSession loads the session row FOR UPDATE inside tx.
func lockSession(ctx context.Context, tx *sql.Tx, sessionID string) (*Session, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT session_id, balance, total_withdrawn, total_credited, is_authenticated, is_demo, withdrawal_address, created_at
		FROM cashout_sessions WHERE session_id = $1 FOR UPDATE
	`, sessionID)
	var sess Session
	err := row.Scan(&sess.ID, &sess.Balance, &sess.TotalWithdrawn, &sess.TotalCredited,
		&sess.IsAuthenticated, &sess.IsDemo, &sess.WithdrawalAddress, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func counterColumn(field string) (string, error) {
	switch field {
	case CounterWithdrawn:
		return "total_withdrawn", nil
	case CounterCredited:
		return "total_credited", nil
	default:
		return "", fmt.Errorf("unknown counter field %q", field)
	}
}

func (s *PGStore) mutate(ctx context.Context, sessionID string, balanceDelta int64, counterField string, counterDelta int64) error {
	col, err := counterColumn(counterField)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	sess, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if sess.Balance+balanceDelta < 0 {
		return ErrInsufficientBalance
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE cashout_sessions SET balance = balance + $1, "+col+" = "+col+" + $2 WHERE session_id = $3",
		balanceDelta, counterDelta, sessionID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) ReserveFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error {
	return s.mutate(ctx, sessionID, -total, counterField, counterAmount)
}

func (s *PGStore) ReleaseFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error {
	return s.mutate(ctx, sessionID, total, counterField, -counterAmount)
}

func (s *PGStore) CreditFunds(ctx context.Context, sessionID string, amount int64, counterField string, counterAmount int64) error {
	return s.mutate(ctx, sessionID, amount, counterField, counterAmount)
}

func (s *PGStore) CreateWithReservation(ctx context.Context, wtx *Transaction) (*Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := lockSession(ctx, tx, wtx.SessionID)
	if err != nil {
		return nil, err
	}
	// Idempotency: the (session_id, idempotency_key) row wins over this call.
	existing, err := scanTransaction(tx.QueryRowContext(ctx,
		selectTx+" WHERE session_id = $1 AND idempotency_key = $2", wtx.SessionID, wtx.IdempotencyKey))
	if err == nil {
		return existing, ErrDuplicateKey
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if sess.Balance < wtx.Total() {
		return nil, ErrInsufficientBalance
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cashout_sessions SET balance = balance - $1, total_withdrawn = total_withdrawn + $2
		WHERE session_id = $3
	`, wtx.Total(), wtx.Amount, wtx.SessionID)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cashout_withdrawals
		  (id, session_id, idempotency_key, amount, fee, dest_address, operation_id, status, retry_attempt, last_error_kind, last_error_message, tx_hash, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, wtx.ID, wtx.SessionID, wtx.IdempotencyKey, wtx.Amount, wtx.Fee, wtx.DestAddress,
		wtx.OperationID, wtx.Status, wtx.RetryAttempt, errKind(wtx.LastError), errMessage(wtx.LastError),
		wtx.TxHash, wtx.CreatedAt, wtx.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	cp := *wtx
	return &cp, nil
}

const selectTx = `
	SELECT id, session_id, idempotency_key, amount, fee, dest_address, operation_id, status,
	       retry_attempt, last_error_kind, last_error_message, tx_hash, created_at, confirmed_at
	FROM cashout_withdrawals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var kind, msg sql.NullString
	var confirmedAt sql.NullTime
	err := row.Scan(&t.ID, &t.SessionID, &t.IdempotencyKey, &t.Amount, &t.Fee, &t.DestAddress,
		&t.OperationID, &t.Status, &t.RetryAttempt, &kind, &msg, &t.TxHash, &t.CreatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	if kind.Valid || msg.Valid {
		t.LastError = &TxError{Kind: kind.String, Message: msg.String}
	}
	if confirmedAt.Valid {
		t.ConfirmedAt = &confirmedAt.Time
	}
	return &t, nil
}

func errKind(e *TxError) any {
	if e == nil {
		return nil
	}
	return e.Kind
}

func errMessage(e *TxError) any {
	if e == nil {
		return nil
	}
	return e.Message
}

func (s *PGStore) TransitionStatus(ctx context.Context, txID, from, to string) (*Transaction, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cashout_withdrawals SET status = $1 WHERE id = $2 AND status = $3", to, txID, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTransaction(ctx, txID); err != nil {
			return nil, err
		}
		return nil, ErrStatusConflict
	}
	return s.GetTransaction(ctx, txID)
}

func (s *PGStore) ReleaseAndFail(ctx context.Context, txID, from string, lastErr *TxError) (*Transaction, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()
	// Lock the withdrawal row first so racing resolutions serialize here.
	row, err := scanTransaction(tx.QueryRowContext(ctx, selectTx+" WHERE id = $1 FOR UPDATE", txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrTransactionNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if from != "" && row.Status != from {
		return nil, false, ErrStatusConflict
	}
	if row.Terminal() {
		return row, false, nil
	}
	if _, err := lockSession(ctx, tx, row.SessionID); err != nil {
		return nil, false, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cashout_sessions SET balance = balance + $1, total_withdrawn = total_withdrawn - $2
		WHERE session_id = $3
	`, row.Total(), row.Amount, row.SessionID)
	if err != nil {
		return nil, false, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cashout_withdrawals SET status = $1, last_error_kind = $2, last_error_message = $3
		WHERE id = $4
	`, StatusFailed, lastErr.Kind, lastErr.Message, txID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	row.Status = StatusFailed
	row.LastError = lastErr
	return row, true, nil
}

func (s *PGStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, selectTx+" WHERE id = $1", txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (s *PGStore) GetByIdempotencyKey(ctx context.Context, sessionID, key string) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		selectTx+" WHERE session_id = $1 AND idempotency_key = $2", sessionID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (s *PGStore) UpdateTransaction(ctx context.Context, t *Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cashout_withdrawals SET
		  operation_id = $1, status = $2, retry_attempt = $3, fee = $4,
		  last_error_kind = $5, last_error_message = $6, tx_hash = $7, confirmed_at = $8
		WHERE id = $9
	`, t.OperationID, t.Status, t.RetryAttempt, t.Fee,
		errKind(t.LastError), errMessage(t.LastError), t.TxHash, t.ConfirmedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *PGStore) listWhere(ctx context.Context, where string, arg any) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTx+" WHERE "+where+" ORDER BY created_at", arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) ListByStatus(ctx context.Context, status string) ([]*Transaction, error) {
	return s.listWhere(ctx, "status = $1", status)
}

func (s *PGStore) ListBySession(ctx context.Context, sessionID string) ([]*Transaction, error) {
	return s.listWhere(ctx, "session_id = $1", sessionID)
}
