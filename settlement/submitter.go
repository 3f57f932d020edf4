// Package settlement wraps the external TON node wallet daemon: submitting
// sends, polling in-flight operations, and liquidity/connectivity checks.
// Sends are fire-and-forget; a returned operation id is polled later for a
// terminal result.
package settlement

import "context"

// Operation statuses reported by the node for an in-flight send.
const (
	OpQueued    = "queued"
	OpExecuting = "executing"
	OpSuccess   = "success"
	OpFailed    = "failed"
)

type NodeStatus struct {
	Connected bool `json:"connected"`
	Synced    bool `json:"synced"`
}

// SourceBalance is the house wallet's liquidity, nanotons.
type SourceBalance struct {
	Confirmed int64 `json:"confirmed"`
	Pending   int64 `json:"pending"`
}

type ChecksumResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// SendRequest is one submission attempt. Amount is nanotons; FeeOverride is
// the escalated fee for retries (0 = node default).
type SendRequest struct {
	Source      string
	Destination string
	Amount      int64
	Memo        string
	Network     string
	Attempt     int
	FeeOverride int64
}

// OperationResult is the polled state of a submitted send.
type OperationResult struct {
	Status string `json:"status"` // queued | executing | success | failed
	TxID   string `json:"txid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Submitter is the settlement network surface this core consumes. The node is
// slow and occasionally unreachable; callers must treat transport errors as
// "unknown", never as operation failure.
type Submitter interface {
	CheckNodeStatus(ctx context.Context, network string) (*NodeStatus, error)
	GetSourceBalance(ctx context.Context, address, network string) (*SourceBalance, error)
	ValidateAddressChecksum(ctx context.Context, address, network string) (*ChecksumResult, error)
	SubmitSend(ctx context.Context, req *SendRequest) (operationID string, err error)
	GetOperationStatus(ctx context.Context, operationID, network string) (*OperationResult, error)
}
