package mock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kitbuilder587/genclient/internal/transport"
)

// Step is one scripted transport answer.
type Step struct {
	Response *transport.Response
	Err      error
}

// Transport is a scriptable stub. Steps are consumed in order; once the
// script runs out the last step repeats. PerModel overrides the script for
// specific model IDs, which is how model-fallback scenarios are written.
type Transport struct {
	mu    sync.Mutex
	steps []Step
	pos   int

	PerModel map[string]Step
	Delay    time.Duration

	CallCount   int
	LastRequest transport.Request
	AllRequests []transport.Request
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{}
}

// WithSuccess scripts a success answer that repeats forever.
func (t *Transport) WithSuccess(payload string) *Transport {
	return t.WithSteps(Step{Response: &transport.Response{Status: http.StatusOK, Payload: payload}})
}

func (t *Transport) WithSteps(steps ...Step) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = steps
	t.pos = 0
	return t
}

func (t *Transport) WithModelStep(model string, step Step) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.PerModel == nil {
		t.PerModel = make(map[string]Step)
	}
	t.PerModel[model] = step
	return t
}

func (t *Transport) Send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	t.mu.Lock()
	t.CallCount++
	t.LastRequest = req
	t.AllRequests = append(t.AllRequests, req)

	step, ok := t.PerModel[req.Model]
	if !ok {
		if len(t.steps) == 0 {
			step = Step{Response: &transport.Response{Status: http.StatusOK, Payload: "mock payload"}}
		} else {
			step = t.steps[t.pos]
			if t.pos < len(t.steps)-1 {
				t.pos++
			}
		}
	}
	delay := t.Delay
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Calls returns how many requests reached the transport.
func (t *Transport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCount
}

// ModelsSeen returns the model IDs in request order.
func (t *Transport) ModelsSeen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	models := make([]string, 0, len(t.AllRequests))
	for _, r := range t.AllRequests {
		models = append(models, r.Model)
	}
	return models
}

// Reset clears call bookkeeping but keeps the script.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCount = 0
	t.LastRequest = transport.Request{}
	t.AllRequests = nil
	t.pos = 0
}
