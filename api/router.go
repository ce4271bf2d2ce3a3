/*
Package api defines the public contracts of the leader-aware request router.
It provides the types shared by the registry, resolver, routing cache and
dispatcher, and the interfaces callers and integrators implement.

# Caller-facing surface

Application code only sees Sender (or Router): it sends logical requests (path, method,
headers, body) and receives a Response or an error. It never constructs or
observes individual replica endpoints.

# Pluggable pieces

  - Prober: asks one endpoint who the leader is. The default implementation
    issues GET <endpoint>/leader-info over HTTP; a gRPC implementation lives in
    `github.com/shrtyk/raft-router/pkg/transport`.

  - LeaderCache: owns the leader belief. The default implementation in
    `github.com/shrtyk/raft-router/pkg/routing` coalesces concurrent discovery.

  - Resolver: scans the replica set for the current leader.
*/
package api

import "context"

// Sender sends logical requests to whichever replica currently leads.
type Sender interface {
	// Send issues a request for path using the given options.
	//
	// Returns the backend response unchanged unless it is a not-leader
	// rejection, in which case the leader is re-resolved and the request is
	// retried once. Terminal failures are reported as *Error values matching
	// ErrClusterUnavailable, ErrRequestFailed or ErrMalformedResponse.
	Send(ctx context.Context, path string, opts RequestOptions) (*Response, error)

	// Do is Send for a prebuilt request.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Router is a Sender with introspection and lifecycle.
type Router interface {
	Sender

	// Leader returns the currently believed leader, if any.
	Leader() (Endpoint, bool)

	// Endpoints returns the replica set in registration order.
	Endpoints() []Endpoint

	// WarmUp discovers the leader ahead of the first request, retrying with
	// backoff while the cluster is unavailable.
	WarmUp(ctx context.Context) error

	// Close releases probe connections.
	Close() error
}

// Resolver determines which endpoint is currently authoritative.
type Resolver interface {
	DiscoverLeader(ctx context.Context) (Endpoint, error)
}
