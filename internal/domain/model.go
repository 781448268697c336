package domain

// Tier describes what a model candidate is good for. Candidates are ordered
// fastest/cheapest first, so Fast ones come before Capable ones.
type Tier string

const (
	TierFast    Tier = "fast"
	TierCapable Tier = "capable"
)

// ModelCandidate names one model variant in the fallback order.
type ModelCandidate struct {
	ID   string
	Tier Tier
}

func (m ModelCandidate) String() string {
	return m.ID
}
