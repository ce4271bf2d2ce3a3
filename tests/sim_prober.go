package testsim

import (
	"context"
	"sync"
	"time"

	"github.com/shrtyk/raft-router/api"
)

// Outcome is a scripted probe answer.
type Outcome struct {
	Result api.ProbeResult
	Err    error
}

// SimProber is an in-memory api.Prober with scripted answers. Endpoints with
// no script fail as unreachable.
type SimProber struct {
	mu       sync.Mutex
	outcomes map[api.Endpoint]Outcome
	calls    []api.Endpoint
	delay    time.Duration
}

func NewSimProber() *SimProber {
	return &SimProber{outcomes: make(map[api.Endpoint]Outcome)}
}

func (p *SimProber) Set(ep api.Endpoint, o Outcome) *SimProber {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes[ep] = o
	return p
}

// Leader scripts ep as the leader.
func (p *SimProber) Leader(ep api.Endpoint) *SimProber {
	return p.Set(ep, Outcome{Result: api.ProbeResult{IsLeader: true}})
}

// Follower scripts ep as a follower pointing at hint (may be empty).
func (p *SimProber) Follower(ep api.Endpoint, hint string) *SimProber {
	return p.Set(ep, Outcome{Result: api.ProbeResult{LeaderHint: hint}})
}

// Down scripts ep as unreachable.
func (p *SimProber) Down(ep api.Endpoint) *SimProber {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.outcomes, ep)
	return p
}

// SetDelay makes every probe block for d or until its context ends.
func (p *SimProber) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

func (p *SimProber) Probe(ctx context.Context, ep api.Endpoint) (api.ProbeResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ep)
	o, ok := p.outcomes[ep]
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return api.ProbeResult{}, &api.Error{Op: "probe", Kind: api.ErrUnreachable, Endpoint: ep, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if !ok {
		return api.ProbeResult{}, &api.Error{Op: "probe", Kind: api.ErrUnreachable, Endpoint: ep}
	}
	return o.Result, o.Err
}

// Calls returns the probed endpoints in call order.
func (p *SimProber) Calls() []api.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Endpoint(nil), p.calls...)
}

// Reset forgets recorded calls.
func (p *SimProber) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
