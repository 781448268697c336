package transport

import (
	"context"

	"github.com/kitbuilder587/genclient/internal/credential"
)

// Options tune a single generation request.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Request is one attempt against one model with one credential. The
// resilient client owns which model and credential go in here.
type Request struct {
	Model      string
	Credential credential.Credential
	Prompt     string
	Options    Options
}

// Response is the raw remote answer before classification. Status uses
// HTTP status semantics regardless of the underlying protocol; SDK-level
// hints (retry delays, quota scope) are folded into Message so the
// classifier sees everything in one place.
type Response struct {
	Status  int
	Message string
	Payload string
}

// OK reports whether the response carries a usable payload.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport sends one framed request. Implementations must honor the
// context deadline; a returned error means the request never produced a
// remote answer (network failure, timeout) and is treated as retryable.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}
