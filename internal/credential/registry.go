package credential

import (
	"sync"

	"github.com/kitbuilder587/genclient/internal/domain"
)

// Credential is one authorization secret. The secret never leaves the
// process through logs or serialization; anything user-visible goes through
// Masked.
type Credential struct {
	label  string
	secret string
}

func New(label, secret string) Credential {
	return Credential{label: label, secret: secret}
}

func (c Credential) Label() string  { return c.label }
func (c Credential) Secret() string { return c.secret }

// Masked renders the secret the way the quota-check tool always did:
// first four characters, ellipsis, last four.
func (c Credential) Masked() string {
	if len(c.secret) <= 8 {
		return c.label + "(****)"
	}
	return c.label + "(" + c.secret[:4] + "..." + c.secret[len(c.secret)-4:] + ")"
}

// String keeps the secret out of %v formatting.
func (c Credential) String() string { return c.Masked() }

// Registry holds the configured credentials in order and tracks which one
// is active. Rotation is caller-driven: a new key is provisioned by a
// human, so the registry never rotates on its own.
type Registry struct {
	mu    sync.Mutex
	creds []Credential
	idx   int
}

func NewRegistry(creds []Credential) (*Registry, error) {
	if len(creds) == 0 {
		return nil, domain.ErrNoCredentials
	}

	cs := make([]Credential, len(creds))
	copy(cs, creds)
	return &Registry{creds: cs}, nil
}

// Active returns the credential requests should use right now.
func (r *Registry) Active() (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idx >= len(r.creds) {
		return Credential{}, domain.ErrNoCredentials
	}
	return r.creds[r.idx], nil
}

// Rotate switches to the next configured credential, failing with
// ErrCredentialsExhausted when none remain. A failed rotation keeps the
// current credential active: its quota window will reset eventually, so
// the key stays usable for later calls. Forward-only: an exhausted key
// points at an exhausted remote quota, going back would not help.
func (r *Registry) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idx+1 >= len(r.creds) {
		return domain.ErrCredentialsExhausted
	}
	r.idx++
	return nil
}

// Remaining reports how many credentials are left including the active one.
func (r *Registry) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idx >= len(r.creds) {
		return 0
	}
	return len(r.creds) - r.idx
}
