package domain

import (
	"fmt"
	"time"
)

// OutcomeKind classifies how a generate call ended, except for success.
type OutcomeKind string

const (
	KindRetryable            OutcomeKind = "retryable"
	KindModelUnavailable     OutcomeKind = "model_unavailable"
	KindQuotaExceeded        OutcomeKind = "quota_exceeded"
	KindFatal                OutcomeKind = "fatal"
	KindExhaustedCandidates  OutcomeKind = "exhausted_candidates"
	KindCredentialsExhausted OutcomeKind = "credentials_exhausted"
	KindCancelled            OutcomeKind = "cancelled"
)

// Result is a successful generate payload plus routing info.
type Result struct {
	Payload  string
	Model    string
	Attempts int
}

// FailureReport is the structured terminal failure surfaced to callers.
// Wait is non-zero only for quota failures and tells the caller how long
// until the condition may clear.
type FailureReport struct {
	Kind   OutcomeKind
	Reason string
	Wait   time.Duration
}

func (r *FailureReport) Error() string {
	if r.Wait > 0 {
		return fmt.Sprintf("%s: %s (retry in %s)", r.Kind, r.Reason, r.Wait.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

// IsQuota reports whether the failure is quota-related and worth waiting out.
func (r *FailureReport) IsQuota() bool {
	return r.Kind == KindQuotaExceeded
}
