package model

import (
	"sync"

	"github.com/kitbuilder587/genclient/internal/domain"
)

// Selector walks an ordered list of model candidates, preference order
// first. The index only moves forward: a model that was reported missing
// once is not worth retrying, переименованные модели назад не возвращаются.
type Selector struct {
	mu         sync.Mutex
	candidates []domain.ModelCandidate
	idx        int
}

func NewSelector(candidates []domain.ModelCandidate) (*Selector, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrNoModels
	}

	// own copy, insertion order is the preference order
	cs := make([]domain.ModelCandidate, len(candidates))
	copy(cs, candidates)
	return &Selector{candidates: cs}, nil
}

// Current returns the active candidate, or ErrExhaustedCandidates once
// Advance has walked past the end.
func (s *Selector) Current() (domain.ModelCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.candidates) {
		return domain.ModelCandidate{}, domain.ErrExhaustedCandidates
	}
	return s.candidates[s.idx], nil
}

// Advance moves to the next candidate and reports ErrExhaustedCandidates
// when none remain. Idempotent at the end: repeated calls keep failing the
// same way.
func (s *Selector) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx < len(s.candidates) {
		s.idx++
	}
	if s.idx >= len(s.candidates) {
		return domain.ErrExhaustedCandidates
	}
	return nil
}

// Remaining reports how many candidates are left including the current one.
func (s *Selector) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.candidates) {
		return 0
	}
	return len(s.candidates) - s.idx
}
