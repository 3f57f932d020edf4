package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cryptolatam/cashout/ledger"
	"github.com/cryptolatam/cashout/ton"
	"github.com/cryptolatam/cashout/withdraw"
)

type withdrawRequest struct {
	SessionID      string `json:"sessionId"`
	Amount         string `json:"amount"` // decimal TON
	IdempotencyKey string `json:"idempotencyKey"`
}

// transactionView is the external shape of a withdrawal row.
type transactionView struct {
	TransactionID string          `json:"transactionId"`
	SessionID     string          `json:"sessionId"`
	Amount        string          `json:"amount"`
	Fee           string          `json:"fee"`
	DestAddress   string          `json:"destAddress,omitempty"`
	Status        string          `json:"status"`
	OperationID   string          `json:"operationId,omitempty"`
	RetryAttempt  int             `json:"retryAttempt,omitempty"`
	LastError     *ledger.TxError `json:"lastError,omitempty"`
	TxHash        string          `json:"txHash,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	Advisory      string          `json:"advisory,omitempty"`
}

func viewOf(tx *ledger.Transaction) *transactionView {
	return &transactionView{
		TransactionID: tx.ID,
		SessionID:     tx.SessionID,
		Amount:        ton.Format(tx.Amount),
		Fee:           ton.Format(tx.Fee),
		DestAddress:   tx.DestAddress,
		Status:        tx.Status,
		OperationID:   tx.OperationID,
		RetryAttempt:  tx.RetryAttempt,
		LastError:     tx.LastError,
		TxHash:        tx.TxHash,
		CreatedAt:     tx.CreatedAt,
		ConfirmedAt:   tx.ConfirmedAt,
		Advisory:      tx.Advisory,
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "invalid body")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "sessionId required")
		return
	}
	if !s.limiter.Allow(req.SessionID) {
		writeError(w, http.StatusTooManyRequests, withdraw.CodeRateLimited, "too many requests")
		return
	}
	amount, err := ton.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, err.Error())
		return
	}
	tx, err := s.engine.Request(r.Context(), req.SessionID, amount, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tx))
}

func (s *Server) handleWithdrawStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	txID := strings.TrimSpace(r.URL.Query().Get("tx_id"))
	if sessionID == "" || txID == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "session_id and tx_id are required")
		return
	}
	if !s.limiter.Allow(sessionID) {
		writeError(w, http.StatusTooManyRequests, withdraw.CodeRateLimited, "too many requests")
		return
	}
	tx, err := s.engine.CheckStatus(r.Context(), sessionID, txID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tx))
}

func (s *Server) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "session_id required")
		return
	}
	txs, err := s.engine.History(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]*transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, viewOf(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": views})
}

type depositRequest struct {
	SessionID string `json:"sessionId"`
	Amount    string `json:"amount"` // decimal TON
}

// handleDeposit is the deposit-detector collaborator surface: credit detected
// funds to the session balance.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "invalid body")
		return
	}
	amount, err := ton.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, err.Error())
		return
	}
	sess, err := s.engine.Credit(r.Context(), strings.TrimSpace(req.SessionID), amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"balance":   ton.Format(sess.Balance),
	})
}
