// Package health exposes liveness and readiness probes for the POS backend.
//
// Probes run on their own tickers and use consecutive-result thresholds so a
// single slow database ping does not flip the service out of rotation: a probe
// has to fail failAfter times in a row to go unhealthy, and pass passAfter
// times to recover.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type probe struct {
	name      string
	timeout   time.Duration
	check     CheckFunc
	failAfter int
	passAfter int

	// healthy and lastErr are read by probe endpoints from request
	// goroutines; everything else is touched only by the probe's own loop.
	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	streakFail int
	streakPass int
}

func (p *probe) tick(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(tctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.streakPass = 0
		p.streakFail++
		if p.streakFail >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.streakFail = 0
	p.streakPass++
	if p.streakPass >= p.passAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health runs registered probes and serves /livez and /readyz.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health service in the not-ready state. Call SetReady(true)
// once startup (migrations, cache warmup) has finished.
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{
		name:      name,
		timeout:   timeout,
		check:     check,
		failAfter: 3,
		passAfter: 1,
	}
	p.healthy.Store(true)
	return p
}

// AddLivenessCheck registers a probe that decides whether the process should
// be restarted (goroutine leaks, runaway GC pauses).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe that decides whether the service should
// receive traffic (postgres, redis).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one goroutine per registered probe, each ticking at the
// given interval. Register all probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.tick(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.tick(ctx)
				}
			}
		}(p)
	}
}

// SetReady flips the manual readiness gate. Shutdown sets it to false before
// draining so the load balancer stops routing new requests here.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness probe
// is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type probeStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while every liveness probe passes, 503 with
// per-probe errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.liveness))
	copy(probes, h.liveness)
	h.mu.RUnlock()

	writeStatus(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.readiness))
	copy(probes, h.readiness)
	h.mu.RUnlock()

	failures := failing(probes)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func failing(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if msg := p.failure(); msg != "" {
			failures[p.name] = msg
		}
	}
	return failures
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeStatus{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
