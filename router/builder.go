package router

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/dispatcher"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/pkg/registry"
	"github.com/shrtyk/raft-router/pkg/resolver"
	"github.com/shrtyk/raft-router/pkg/routing"
	"github.com/shrtyk/raft-router/pkg/transport"
)

type routerBuilder struct {
	// required
	reg *registry.Registry

	// optional with defaults
	cfg         *api.RouterConfig
	logger      *slog.Logger
	prober      api.Prober
	client      *http.Client
	grpcTargets map[api.Endpoint]string
}

func NewBuilder(reg *registry.Registry) api.RouterBuilder {
	return &routerBuilder{
		reg: reg,
		cfg: DefaultConfig(),
	}
}

func (rb *routerBuilder) Build() (api.Router, error) {
	if rb.reg == nil {
		return nil, fmt.Errorf("builder: %w", registry.ErrEmpty)
	}

	log := rb.logger
	if log == nil {
		log = logger.NewLogger(rb.cfg.Log.Env, rb.cfg.Log.AddSource)
	}

	client := rb.client
	if client == nil {
		client = &http.Client{}
	}

	var closers []func() error
	prober := rb.prober
	if prober == nil {
		switch rb.cfg.Probe.Transport {
		case api.ProbeGRPC:
			gp, err := transport.NewGRPCProber(
				rb.cfg.Timings.ProbeTimeout, rb.reg.AllEndpoints(), rb.grpcTargets)
			if err != nil {
				return nil, fmt.Errorf("builder: %w", err)
			}
			prober = gp
			closers = append(closers, gp.Close)
		case api.ProbeHTTP, "":
			prober = transport.NewHTTPProber(client, rb.cfg.Timings.ProbeTimeout)
		default:
			return nil, fmt.Errorf("builder: unknown probe transport %q", rb.cfg.Probe.Transport)
		}
	}

	var breakers *transport.BreakerProber
	if rb.cfg.CBreaker.Enabled {
		breakers = transport.NewBreakerProber(prober, rb.cfg.CBreaker)
		prober = breakers
	}

	cache := routing.NewCache(resolver.New(rb.reg, prober, log), log)
	d := dispatcher.New(rb.reg, cache,
		dispatcher.WithHTTPClient(client),
		dispatcher.WithRequestTimeout(rb.cfg.Timings.RequestTimeout),
		dispatcher.WithLogger(log),
	)

	return &Router{
		Dispatcher: d,
		reg:        rb.reg,
		cache:      cache,
		breakers:   breakers,
		cfg:        rb.cfg,
		logger:     log.With(slog.String("component", "router")),
		closers:    closers,
	}, nil
}

func (rb *routerBuilder) WithConfig(cfg *api.RouterConfig) api.RouterBuilder {
	rb.cfg = cfg
	return rb
}

func (rb *routerBuilder) WithLogger(l *slog.Logger) api.RouterBuilder {
	rb.logger = l
	return rb
}

func (rb *routerBuilder) WithProber(p api.Prober) api.RouterBuilder {
	rb.prober = p
	return rb
}

func (rb *routerBuilder) WithHTTPClient(c *http.Client) api.RouterBuilder {
	rb.client = c
	return rb
}

func (rb *routerBuilder) WithGRPCTargets(targets map[api.Endpoint]string) api.RouterBuilder {
	rb.grpcTargets = targets
	return rb
}
