// Package health serves liveness and readiness probes for the shop API.
//
// Each check is polled in its own goroutine. It is reported down after a run
// of consecutive failures and up again after a run of consecutive successes.
package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by *pgxpool.Pool and the redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// CheckOption tunes a single check.
type CheckOption func(*probe)

// WithThresholds overrides the default 3 failures / 1 success thresholds.
func WithThresholds(failures, successes int) CheckOption {
	return func(p *probe) {
		p.downAfter = max(failures, 1)
		p.upAfter = max(successes, 1)
	}
}

type kind int

const (
	liveness kind = iota
	readiness
)

// probe is one registered check. streak counts consecutive successes when
// positive and consecutive failures when negative.
type probe struct {
	name      string
	timeout   time.Duration
	fn        CheckFunc
	downAfter int
	upAfter   int

	mu     sync.Mutex
	streak int
	down   bool
	err    error
}

func newProbe(name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) *probe {
	p := &probe{name: name, timeout: timeout, fn: fn, downAfter: 3, upAfter: 1}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.fn(ctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	switch {
	case err != nil:
		p.streak = min(p.streak, 0) - 1
		p.down = p.down || -p.streak >= p.downAfter
	default:
		p.streak = max(p.streak, 0) + 1
		p.down = p.down && p.streak < p.upAfter
	}
}

// reason is "" while the probe is up.
func (p *probe) reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.down:
		return ""
	case p.err != nil:
		return p.err.Error()
	default:
		return "check is unhealthy"
	}
}

func (p *probe) poll(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		p.observe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Health manages liveness and readiness checks.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes [2][]*probe
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

func (h *Health) add(k kind, p *probe) {
	h.mu.Lock()
	h.probes[k] = append(h.probes[k], p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(liveness, newProbe(name, timeout, fn, opts))
}

// AddReadinessCheck registers a check that decides whether the instance
// should receive traffic, e.g. database or cache connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(readiness, newProbe(name, timeout, fn, opts))
}

// Start polls every registered check right away and then each interval
// until Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, h.stop = context.WithCancel(ctx)
	for _, group := range h.probes {
		for _, p := range group {
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				p.poll(ctx, interval)
			}()
		}
	}
}

// Stop cancels the polling goroutines and waits for them. It is safe to call
// more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	h.wg.Wait()
}

// SetReady toggles the manual readiness flag, set during start-up and
// cleared at the start of a graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the instance is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(readiness)) == 0
}

func (h *Health) failures(k kind) map[string]string {
	h.mu.Lock()
	group := slices.Clone(h.probes[k])
	h.mu.Unlock()

	out := make(map[string]string)
	for _, p := range group {
		if r := p.reason(); r != "" {
			out[p.name] = r
		}
	}
	return out
}

// Register mounts GET /livez, GET /readyz and GET /health on mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /livez", h.LiveEndpoint)
	mux.HandleFunc("GET /readyz", h.ReadyEndpoint)
	mux.HandleFunc("GET /health", StatusEndpoint)
}

// LiveEndpoint answers 200 {"status":"ok"} while all liveness checks pass and
// 503 with the failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(liveness))
}

// ReadyEndpoint is like LiveEndpoint for readiness checks and additionally
// fails while the instance is not marked ready.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// StatusEndpoint always answers 200 {"status":"ok"}. It only proves the
// process serves HTTP.
func StatusEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, nil)
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status := http.StatusOK
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })

		names := slices.Sorted(maps.Keys(failures))
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
