// Package router assembles the registry, prober, resolver, routing cache and
// dispatcher into a ready-to-use api.Router.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/internal/retry"
	"github.com/shrtyk/raft-router/pkg/dispatcher"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/pkg/registry"
	"github.com/shrtyk/raft-router/pkg/routing"
	"github.com/shrtyk/raft-router/pkg/transport"
)

var _ api.Router = (*Router)(nil)

type Router struct {
	*dispatcher.Dispatcher

	reg      *registry.Registry
	cache    *routing.Cache
	breakers *transport.BreakerProber // nil unless enabled
	cfg      *api.RouterConfig
	logger   *slog.Logger
	closers  []func() error
}

// WarmUp resolves the leader before traffic arrives. Unavailable clusters
// are retried with exponential backoff; a malformed leader-info answer is
// not retried.
func (r *Router) WarmUp(ctx context.Context) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		_, err := r.cache.Resolve(ctx)
		return err
	},
		retry.WithMaxAttempts(r.cfg.Retry.MaxAttempts),
		retry.WithBaseDelay(r.cfg.Retry.BaseDelay),
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, api.ErrMalformedResponse)
		}),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.logger.Warn("leader not reachable yet",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				logger.ErrAttr(err),
			)
		}),
	)
}

// ReplicaStatus describes one replica from the router's point of view.
type ReplicaStatus struct {
	ID        string `json:"id"`
	Endpoint  string `json:"endpoint"`
	Leader    bool   `json:"leader"`
	Available bool   `json:"available"`
}

// Status is a point-in-time view of the routing state.
type Status struct {
	Leader   string          `json:"leader,omitempty"`
	Known    bool            `json:"known"`
	Passes   int64           `json:"discoveryPasses"`
	Replicas []ReplicaStatus `json:"replicas"`
}

func (r *Router) Status() Status {
	leader, known := r.cache.Get()
	s := Status{
		Leader: leader.String(),
		Known:  known,
		Passes: r.cache.Passes(),
	}
	for _, rep := range r.reg.Replicas() {
		available := true
		if r.breakers != nil {
			available = r.breakers.Available(rep.Endpoint)
		}
		s.Replicas = append(s.Replicas, ReplicaStatus{
			ID:        r.reg.ID(rep.Endpoint),
			Endpoint:  rep.Endpoint.String(),
			Leader:    known && rep.Endpoint == leader,
			Available: available,
		})
	}
	return s
}

func (r *Router) Close() error {
	var err error
	for _, c := range r.closers {
		err = errors.Join(err, c())
	}
	return err
}
