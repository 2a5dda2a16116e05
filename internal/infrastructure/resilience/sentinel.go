package resilience

import (
	"context"
	"errors"
)

// SentinelClassifier classifies errors of collaborators that report failures
// through package-level sentinel errors rather than status codes.
type SentinelClassifier struct {
	// Transient errors are retried and count against the breaker.
	Transient []error
	// Rejected errors are caused by the request itself: never retried and
	// never counted, so one oversized payload cannot open the circuit.
	Rejected []error
}

func (c SentinelClassifier) Classify(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	for _, target := range c.Rejected {
		if errors.Is(err, target) {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}
	for _, target := range c.Transient {
		if errors.Is(err, target) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
