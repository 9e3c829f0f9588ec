// Package health runs the background checks behind /livez and /readyz.
//
// A check flips to unhealthy after FailureThreshold consecutive failures and
// back to healthy on the first success.
package health

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports the health of one component.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind uint8

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Kind = iota
	// Readiness checks decide whether the engine may serve traffic.
	Readiness
)

// Check describes a registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
}

type runner struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	// fails is only touched by the goroutine running the check.
	fails int
}

func (p *runner) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.healthy.Store(true)
}

// Health holds the registered checks and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	runners []*runner
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &runner{Check: c}
	p.healthy.Store(true)

	h.mu.Lock()
	h.runners = append(h.runners, p)
	h.mu.Unlock()
}

// Start runs every check immediately and then once per interval until ctx is
// done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	runners := slices.Clone(h.runners)
	h.mu.Unlock()

	for _, p := range runners {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady opens or closes the readiness gate. The engine closes it first
// during graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// CheckStatus is the state of one check in a Report.
type CheckStatus struct {
	Name    string
	Healthy bool
	Error   string
}

// Report is the state of every check of one Kind.
type Report struct {
	Healthy bool
	Checks  []CheckStatus
}

// Encode writes the report as {"status":..., "checks":[...]}.
func (r Report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	if r.Healthy {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
	}
	e.FieldStart("checks")
	e.ArrStart()
	for _, c := range r.Checks {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("healthy")
		e.Bool(c.Healthy)
		if c.Error != "" {
			e.FieldStart("error")
			e.Str(c.Error)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Status reports the checks of the given kind, sorted by name. Readiness
// also fails while the gate is closed.
func (h *Health) Status(kind Kind) Report {
	h.mu.RLock()
	runners := slices.Clone(h.runners)
	h.mu.RUnlock()

	r := Report{Healthy: true}
	if kind == Readiness && !h.ready.Load() {
		r.Healthy = false
		r.Checks = append(r.Checks, CheckStatus{Name: "gate", Error: "engine is not ready"})
	}
	for _, p := range runners {
		if p.Kind != kind {
			continue
		}
		s := CheckStatus{Name: p.Name, Healthy: p.healthy.Load()}
		if msg := p.lastErr.Load(); msg != nil {
			s.Error = *msg
		}
		if !s.Healthy {
			r.Healthy = false
		}
		r.Checks = append(r.Checks, s)
	}
	slices.SortFunc(r.Checks, func(a, b CheckStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return r
}

// Handler serves the report of one Kind: 200 when healthy, 503 otherwise.
func (h *Health) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		r := h.Status(kind)
		status := http.StatusOK
		if !r.Healthy {
			status = http.StatusServiceUnavailable
		}

		var e jx.Encoder
		r.Encode(&e)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(e.Bytes())
	}
}
