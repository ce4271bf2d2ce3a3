// Package resolver finds the replica that currently leads.
//
// Discovery walks the replica set in registration order and stops at the
// first replica that either claims leadership or points at an untried
// replica. Every replica is probed at most once per pass, so a pass costs
// at most one round-trip per replica.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/pkg/registry"
)

var _ api.Resolver = (*Resolver)(nil)

type Resolver struct {
	reg    *registry.Registry
	prober api.Prober
	logger *slog.Logger
}

func New(reg *registry.Registry, prober api.Prober, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		reg:    reg,
		prober: prober,
		logger: log.With(slog.String("component", "resolver")),
	}
}

// DiscoverLeader returns the current leader.
//
// Errors match api.ErrDiscoveryFailed when no replica answered usefully, and
// api.ErrMalformedResponse when a replica answered with an unreadable body.
func (r *Resolver) DiscoverLeader(ctx context.Context) (api.Endpoint, error) {
	eps := r.reg.AllEndpoints()
	tried := make(map[api.Endpoint]struct{}, len(eps))

	var lastErr error
	for _, ep := range eps {
		if err := ctx.Err(); err != nil {
			return "", &api.Error{Op: "discover", Kind: api.ErrDiscoveryFailed, Err: err}
		}
		tried[ep] = struct{}{}

		res, err := r.prober.Probe(ctx, ep)
		if err != nil {
			if errors.Is(err, api.ErrMalformedResponse) {
				return "", &api.Error{Op: "discover", Kind: api.ErrMalformedResponse, Endpoint: ep, Err: err}
			}
			r.logger.Warn("leader probe failed",
				slog.String("endpoint", ep.String()),
				logger.ErrAttr(err),
			)
			lastErr = err
			continue
		}

		if res.IsLeader {
			r.logger.Debug("leader found", slog.String("endpoint", ep.String()))
			return ep, nil
		}
		if res.LeaderHint == "" {
			continue
		}

		hinted, ok := r.reg.Lookup(res.LeaderHint)
		if !ok {
			r.logger.Warn("ignoring leader hint outside the replica set",
				slog.String("endpoint", ep.String()),
				slog.String("hint", res.LeaderHint),
			)
			continue
		}
		if _, seen := tried[hinted]; seen {
			r.logger.Debug("ignoring leader hint to an already probed replica",
				slog.String("endpoint", ep.String()),
				slog.String("hint", hinted.String()),
			)
			continue
		}

		r.logger.Debug("leader found by hint",
			slog.String("endpoint", ep.String()),
			slog.String("leader", hinted.String()),
		)
		return hinted, nil
	}

	return "", &api.Error{Op: "discover", Kind: api.ErrDiscoveryFailed, Err: lastErr}
}
