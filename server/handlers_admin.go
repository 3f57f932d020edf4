package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cryptolatam/cashout/withdraw"
)

type adminActionRequest struct {
	TxID   string `json:"txId"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TxID) == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "txId required")
		return
	}
	tx, err := s.engine.Approve(r.Context(), req.TxID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tx))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TxID) == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "txId required")
		return
	}
	tx, err := s.engine.Reject(r.Context(), req.TxID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tx))
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TxID) == "" {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "txId required")
		return
	}
	tx, err := s.engine.Requeue(r.Context(), req.TxID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(tx))
}

type bulkRequest struct {
	Action string   `json:"action"` // "approve" or "reject"
	TxIDs  []string `json:"txIds"`
	Reason string   `json:"reason,omitempty"`
}

// handleBulk applies approve/reject across a set with independent outcomes;
// partial success is expected and reported as counts.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TxIDs) == 0 {
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "txIds required")
		return
	}
	var res *withdraw.BulkResult
	switch req.Action {
	case "approve":
		res = s.engine.BulkApprove(r.Context(), req.TxIDs)
	case "reject":
		res = s.engine.BulkReject(r.Context(), req.TxIDs, strings.TrimSpace(req.Reason))
	default:
		writeError(w, http.StatusBadRequest, withdraw.CodeValidation, "action must be approve or reject")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	txs, err := s.engine.PendingApprovals(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]*transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, viewOf(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": views})
}
