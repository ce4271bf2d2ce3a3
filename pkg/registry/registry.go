// Package registry holds the fixed, ordered replica set of the logical service.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shrtyk/raft-router/api"
)

var (
	ErrEmpty     = errors.New("registry: replica set is empty")
	ErrBlank     = errors.New("registry: blank endpoint address")
	ErrDuplicate = errors.New("registry: duplicate replica")
)

// Replica is one configured member of the replica set.
type Replica struct {
	// ID is an optional stable name. Backends may name the leader by ID
	// instead of by address.
	ID       string
	Endpoint api.Endpoint
}

// Registry is an immutable, ordered set of endpoints.
// It is safe for concurrent use.
type Registry struct {
	replicas []Replica
	byRef    map[string]int
}

// New builds a Registry from bare endpoints, in the given order.
func New(endpoints ...api.Endpoint) (*Registry, error) {
	replicas := make([]Replica, len(endpoints))
	for i, ep := range endpoints {
		replicas[i] = Replica{Endpoint: ep}
	}
	return NewWithReplicas(replicas)
}

// NewWithReplicas builds a Registry from replicas carrying optional IDs.
func NewWithReplicas(replicas []Replica) (*Registry, error) {
	if len(replicas) == 0 {
		return nil, ErrEmpty
	}

	r := &Registry{
		replicas: make([]Replica, 0, len(replicas)),
		byRef:    make(map[string]int, 2*len(replicas)),
	}
	for i, rep := range replicas {
		addr := api.Endpoint(strings.TrimRight(strings.TrimSpace(string(rep.Endpoint)), "/"))
		if addr == "" {
			return nil, fmt.Errorf("replica #%d: %w", i, ErrBlank)
		}
		rep.Endpoint = addr
		rep.ID = strings.TrimSpace(rep.ID)

		if _, ok := r.byRef[string(addr)]; ok {
			return nil, fmt.Errorf("replica #%d %s: %w", i, addr, ErrDuplicate)
		}
		r.byRef[string(addr)] = i
		if rep.ID != "" {
			if _, ok := r.byRef[rep.ID]; ok {
				return nil, fmt.Errorf("replica #%d id %q: %w", i, rep.ID, ErrDuplicate)
			}
			r.byRef[rep.ID] = i
		}
		r.replicas = append(r.replicas, rep)
	}
	return r, nil
}

// AllEndpoints returns the endpoints in registration order.
// The returned slice is a copy.
func (r *Registry) AllEndpoints() []api.Endpoint {
	out := make([]api.Endpoint, len(r.replicas))
	for i, rep := range r.replicas {
		out[i] = rep.Endpoint
	}
	return out
}

// Replicas returns the configured replicas in registration order.
func (r *Registry) Replicas() []Replica {
	return append([]Replica(nil), r.replicas...)
}

// Len returns the number of replicas.
func (r *Registry) Len() int {
	return len(r.replicas)
}

// Contains reports whether ep is a registered endpoint.
func (r *Registry) Contains(ep api.Endpoint) bool {
	i, ok := r.byRef[string(ep)]
	return ok && r.replicas[i].Endpoint == ep
}

// Lookup resolves an address or a replica ID to a registered endpoint.
// Trailing slashes on addresses are ignored.
func (r *Registry) Lookup(ref string) (api.Endpoint, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if i, ok := r.byRef[ref]; ok {
		return r.replicas[i].Endpoint, true
	}
	if i, ok := r.byRef[strings.TrimRight(ref, "/")]; ok {
		return r.replicas[i].Endpoint, true
	}
	return "", false
}

// ID returns the replica ID of ep, or the address itself when no ID is set.
func (r *Registry) ID(ep api.Endpoint) string {
	if i, ok := r.byRef[string(ep)]; ok && r.replicas[i].ID != "" {
		return r.replicas[i].ID
	}
	return string(ep)
}
