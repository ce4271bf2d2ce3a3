package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/internal/cbreaker"
)

var _ api.Prober = (*BreakerProber)(nil)

// BreakerProber guards each endpoint with its own circuit breaker.
// While an endpoint's breaker is open its probes fail immediately, which the
// resolver treats like any other unreachable replica.
type BreakerProber struct {
	next api.Prober
	cfg  api.CircuitBreakerCfg

	mu       sync.Mutex
	breakers map[api.Endpoint]*cbreaker.CircuitBreaker
}

func NewBreakerProber(next api.Prober, cfg api.CircuitBreakerCfg) *BreakerProber {
	return &BreakerProber{
		next:     next,
		cfg:      cfg,
		breakers: make(map[api.Endpoint]*cbreaker.CircuitBreaker),
	}
}

func (p *BreakerProber) Probe(ctx context.Context, ep api.Endpoint) (api.ProbeResult, error) {
	res, err := cbreaker.Do(ctx, p.breaker(ep), func(ctx context.Context) (api.ProbeResult, error) {
		return p.next.Probe(ctx, ep)
	})
	if errors.Is(err, cbreaker.ErrOpenState) {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, err)
	}
	return res, err
}

// Available reports whether probes to ep are currently let through.
func (p *BreakerProber) Available(ep api.Endpoint) bool {
	return p.breaker(ep).IsClosed()
}

func (p *BreakerProber) breaker(ep api.Endpoint) *cbreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.breakers[ep]
	if !ok {
		cb = cbreaker.NewCircuitBreaker(p.cfg.FailureThreshold, p.cfg.SuccessThreshold, p.resetTimeout())
		p.breakers[ep] = cb
	}
	return cb
}

func (p *BreakerProber) resetTimeout() time.Duration {
	if p.cfg.ResetTimeout <= 0 {
		return 5 * time.Second
	}
	return p.cfg.ResetTimeout
}
