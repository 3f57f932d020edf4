package withdraw

import "github.com/cryptolatam/cashout/settlement"

// Policy is the pure retry/fee-escalation decision: given the failure kind of
// an attempt and how many retries already happened, retry or give up, and
// with what network fee.
type Policy struct {
	BaseFee     int64 // fee of attempt 0, nanotons
	MaxAttempts int   // retries beyond the first submission
}

type Decision struct {
	Retry bool
	Fee   int64 // fee for the next attempt when Retry
}

// FeeFor returns the network fee for a given attempt: the base fee doubled
// once per attempt.
func (p Policy) FeeFor(attempt int) int64 {
	fee := p.BaseFee
	for i := 0; i < attempt; i++ {
		fee *= 2
	}
	return fee
}

// Decide evaluates a failed attempt. attempt is the retry count of the
// transaction before this decision (0 = the initial submission failed).
func (p Policy) Decide(kind settlement.FailureKind, attempt int) Decision {
	if !kind.Retryable() || attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Fee: p.FeeFor(attempt + 1)}
}
