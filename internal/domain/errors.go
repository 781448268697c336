package domain

import "errors"

var (
	ErrExhaustedCandidates  = errors.New("no model candidates left")
	ErrNoCredentials        = errors.New("no credentials configured")
	ErrCredentialsExhausted = errors.New("credentials exhausted")
)

var (
	ErrEmptyPrompt = errors.New("empty prompt")
	ErrCancelled   = errors.New("operation cancelled")
)

// Ошибки конфигурации - поднимаются при конструировании, не при первом запросе.
var (
	ErrNoModels         = errors.New("at least one model candidate is required")
	ErrInvalidLimit     = errors.New("quota limit must be positive")
	ErrInvalidWindow    = errors.New("quota window duration must be positive")
	ErrInvalidAttempts  = errors.New("max attempts must be positive")
	ErrInvalidBackoff   = errors.New("backoff base and cap must be positive")
	ErrInvalidThreshold = errors.New("wait threshold must be positive")
	ErrMissingTransport = errors.New("transport is required")
	ErrMissingTracker   = errors.New("quota tracker is required")
)
