package api

import "context"

// LeaderCache owns the leader belief shared by all in-flight requests.
// Implementations must be safe for concurrent use.
type LeaderCache interface {
	// Get returns the current belief without blocking.
	Get() (Endpoint, bool)

	// SetLeader records a newly discovered leader.
	SetLeader(ep Endpoint)

	// Invalidate clears the belief only if it still equals expected.
	// Reports whether the belief was cleared.
	Invalidate(expected Endpoint) bool

	// Redirect replaces the belief with hint only if it still equals
	// expected. Reports whether the belief was replaced.
	Redirect(expected, hint Endpoint) bool

	// Resolve returns the current belief, running discovery if there is none.
	// Concurrent callers share a single discovery pass.
	Resolve(ctx context.Context) (Endpoint, error)
}
