package api

import (
	"log/slog"
	"net/http"
)

// RouterBuilder is an interface for constructing a Router.
type RouterBuilder interface {
	// Build constructs the Router. It returns an error if the configuration
	// is unusable.
	Build() (Router, error)

	// WithConfig sets the router configuration.
	// If not provided, a DefaultConfig will be used.
	WithConfig(*RouterConfig) RouterBuilder

	// WithLogger sets a custom slog.Logger.
	// If not provided, a logger based on RouterConfig.Log is created.
	WithLogger(*slog.Logger) RouterBuilder

	// WithProber sets a custom Prober.
	// If not provided, an HTTP prober sharing the router's client is used.
	WithProber(Prober) RouterBuilder

	// WithHTTPClient sets the client used for dispatch (and the default prober).
	// Per-attempt timeouts come from RouterConfig.Timings, not from the client.
	WithHTTPClient(*http.Client) RouterBuilder

	// WithGRPCTargets sets the gRPC leader-info address of each endpoint when
	// probes go over gRPC. Endpoints without an entry use their own host:port.
	WithGRPCTargets(map[Endpoint]string) RouterBuilder
}
