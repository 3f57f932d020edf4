package settlement

import "strings"

// FailureKind is the enumerated cause of a failed operation. The node reports
// free-text errors; classification happens once, here, so nothing downstream
// matches on wording.
type FailureKind string

const (
	// KindUnpaidActionLimit: the send was dropped because the attached fee
	// did not cover the action chain. Resubmitting with a higher fee works.
	KindUnpaidActionLimit FailureKind = "unpaid_action_limit"
	// KindSourceUnderfunded: house wallet could not cover amount+fee.
	KindSourceUnderfunded FailureKind = "source_underfunded"
	// KindInvalidDestination: destination rejected by the network.
	KindInvalidDestination FailureKind = "invalid_destination"
	// KindExpired: the message expired before it reached a block.
	KindExpired FailureKind = "expired"
	KindUnknown FailureKind = "unknown"
)

// Retryable reports whether resubmitting the same send can succeed.
// Only fee-related drops are worth an escalated retry; an expired message may
// be a stale node clock, but resubmission is still safe because the old
// message can no longer land.
func (k FailureKind) Retryable() bool {
	return k == KindUnpaidActionLimit || k == KindExpired
}

// Classify maps a node failure message to a FailureKind.
func Classify(errText string) FailureKind {
	s := strings.ToLower(errText)
	switch {
	case strings.Contains(s, "unpaid action"):
		return KindUnpaidActionLimit
	case strings.Contains(s, "not enough funds"), strings.Contains(s, "insufficient"):
		return KindSourceUnderfunded
	case strings.Contains(s, "invalid address"), strings.Contains(s, "unknown destination"), strings.Contains(s, "bounce"):
		return KindInvalidDestination
	case strings.Contains(s, "expired"), strings.Contains(s, "timed out in mempool"):
		return KindExpired
	default:
		return KindUnknown
	}
}
