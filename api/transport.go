package api

import (
	"context"
)

// Prober asks a single endpoint who the leader is.
type Prober interface {
	// Probe returns the endpoint's view of leadership.
	//
	// A transport failure (timeout, refused connection, non-2xx status) is
	// returned as an error. A body that cannot be decoded must be reported
	// with an error matching ErrMalformedResponse.
	Probe(ctx context.Context, ep Endpoint) (ProbeResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ep Endpoint) (ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, ep Endpoint) (ProbeResult, error) {
	return f(ctx, ep)
}
