package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDiscoveryFailed: no replica answered as leader or with a usable hint.
	ErrDiscoveryFailed = errors.New("router: no leader reachable")
	// ErrClusterUnavailable is returned by Send when discovery fails.
	ErrClusterUnavailable = errors.New("router: cluster unavailable")
	// ErrNotLeader marks a 403 not_leader rejection.
	ErrNotLeader = errors.New("router: endpoint is not the leader")
	// ErrUnreachable marks a network-level failure or timeout.
	ErrUnreachable = errors.New("router: endpoint unreachable")
	// ErrRequestFailed is returned by Send once the retry budget is spent.
	ErrRequestFailed = errors.New("router: request failed")
	// ErrMalformedResponse marks a body that is not the expected JSON.
	ErrMalformedResponse = errors.New("router: malformed response")
	// ErrResponseTooLarge marks a backend body above the dispatcher's limit.
	ErrResponseTooLarge = errors.New("router: response too large")
)

// Error describes a failed routing operation.
//
// errors.Is matches both Kind and the wrapped cause, so a retry-exhausted
// redirect satisfies errors.Is(err, ErrRequestFailed) and
// errors.Is(err, ErrNotLeader).
type Error struct {
	Op       string   // "discover", "send", "probe"
	Kind     error    // one of the sentinel errors above
	Endpoint Endpoint // last endpoint attempted, if any
	Err      error    // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " %s", e.Endpoint)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is a failure the dispatcher recovers
// from by re-resolving the leader.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotLeader) || errors.Is(err, ErrUnreachable)
}
