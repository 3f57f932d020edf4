package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists sessions and withdrawals to JSON files under dataDir
// (same style as the platform data/*.json stores). The single mutex gives the
// per-session serialization the Store contract requires.
type FileStore struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	transactions map[string]*Transaction
	dataDir      string
}

func NewFileStore(dataDir string) *FileStore {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		sessions:     make(map[string]*Session),
		transactions: make(map[string]*Transaction),
		dataDir:      dataDir,
	}
	s.load()
	return s
}

func (s *FileStore) sessionsPath() string {
	return filepath.Join(s.dataDir, "sessions.json")
}

func (s *FileStore) withdrawalsPath() string {
	return filepath.Join(s.dataDir, "withdrawals.json")
}

func (s *FileStore) ensureDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

func (s *FileStore) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, err := os.ReadFile(s.sessionsPath()); err == nil {
		var list []*Session
		if err := json.Unmarshal(data, &list); err == nil {
			for _, sess := range list {
				if sess != nil && sess.ID != "" {
					s.sessions[sess.ID] = sess
				}
			}
		}
	}
	if data, err := os.ReadFile(s.withdrawalsPath()); err == nil {
		var list []*Transaction
		if err := json.Unmarshal(data, &list); err == nil {
			for _, tx := range list {
				if tx != nil && tx.ID != "" {
					s.transactions[tx.ID] = tx
				}
			}
		}
	}
}

// saveLocked writes both files. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	sessList := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessList = append(sessList, sess)
	}
	sort.Slice(sessList, func(i, j int) bool { return sessList[i].ID < sessList[j].ID })
	data, err := json.MarshalIndent(sessList, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.sessionsPath(), data, 0644); err != nil {
		return err
	}
	txList := make([]*Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		txList = append(txList, tx)
	}
	sort.Slice(txList, func(i, j int) bool { return txList[i].CreatedAt.Before(txList[j].CreatedAt) })
	data, err = json.MarshalIndent(txList, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.withdrawalsPath(), data, 0644)
}

func (s *FileStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *FileStore) PutSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return s.saveLocked()
}

// mutateLocked applies a balance/counter delta. Caller must hold s.mu.
func (s *FileStore) mutateLocked(sessionID string, balanceDelta int64, counterField string, counterDelta int64) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Balance+balanceDelta < 0 {
		return ErrInsufficientBalance
	}
	sess.Balance += balanceDelta
	switch counterField {
	case CounterWithdrawn:
		sess.TotalWithdrawn += counterDelta
	case CounterCredited:
		sess.TotalCredited += counterDelta
	}
	return nil
}

func (s *FileStore) ReserveFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutateLocked(sessionID, -total, counterField, counterAmount); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *FileStore) ReleaseFunds(ctx context.Context, sessionID string, total int64, counterField string, counterAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutateLocked(sessionID, total, counterField, -counterAmount); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *FileStore) CreditFunds(ctx context.Context, sessionID string, amount int64, counterField string, counterAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutateLocked(sessionID, amount, counterField, counterAmount); err != nil {
		return err
	}
	return s.saveLocked()
}

func (s *FileStore) CreateWithReservation(ctx context.Context, tx *Transaction) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions {
		if existing.SessionID == tx.SessionID && existing.IdempotencyKey == tx.IdempotencyKey {
			cp := *existing
			return &cp, ErrDuplicateKey
		}
	}
	if err := s.mutateLocked(tx.SessionID, -tx.Total(), CounterWithdrawn, tx.Amount); err != nil {
		return nil, err
	}
	cp := *tx
	s.transactions[tx.ID] = &cp
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	out := cp
	return &out, nil
}

func (s *FileStore) TransitionStatus(ctx context.Context, txID, from, to string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if tx.Status != from {
		return nil, ErrStatusConflict
	}
	tx.Status = to
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	cp := *tx
	return &cp, nil
}

func (s *FileStore) ReleaseAndFail(ctx context.Context, txID, from string, lastErr *TxError) (*Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, false, ErrTransactionNotFound
	}
	if from != "" && tx.Status != from {
		return nil, false, ErrStatusConflict
	}
	if tx.Terminal() {
		cp := *tx
		return &cp, false, nil
	}
	if err := s.mutateLocked(tx.SessionID, tx.Total(), CounterWithdrawn, -tx.Amount); err != nil {
		return nil, false, err
	}
	tx.Status = StatusFailed
	tx.LastError = lastErr
	if err := s.saveLocked(); err != nil {
		return nil, false, err
	}
	cp := *tx
	return &cp, true, nil
}

func (s *FileStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *FileStore) GetByIdempotencyKey(ctx context.Context, sessionID, key string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.transactions {
		if tx.SessionID == sessionID && tx.IdempotencyKey == key {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *FileStore) UpdateTransaction(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return ErrTransactionNotFound
	}
	cp := *tx
	s.transactions[tx.ID] = &cp
	return s.saveLocked()
}

func (s *FileStore) ListByStatus(ctx context.Context, status string) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, tx := range s.transactions {
		if tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) ListBySession(ctx context.Context, sessionID string) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, tx := range s.transactions {
		if tx.SessionID == sessionID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
