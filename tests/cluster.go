// Package testsim runs fake replicated backends for tests.
//
// A Cluster is a set of httptest servers that all speak the router's wire
// contract: GET /leader-info and business paths that answer 403
// {"error":"not_leader"} on every replica but the leader. Tests flip
// leadership, take replicas down and count the traffic each replica saw.
package testsim

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/registry"
)

// HintMode controls what followers put in leaderEndpoint.
type HintMode int

const (
	NoHint HintMode = iota
	HintAddress
	HintID
)

// Echo is the body the default business handler answers with.
type Echo struct {
	Replica     string `json:"replica"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
	RequestID   string `json:"requestId"`
}

type Replica struct {
	ID  string
	srv *httptest.Server
	c   *Cluster

	probes   atomic.Int64
	requests atomic.Int64
	down     atomic.Bool

	// leaderInfo, when set, replaces the computed leader-info answer.
	leaderInfo atomic.Pointer[rawAnswer]
}

type rawAnswer struct {
	status int
	body   string
}

func (r *Replica) Endpoint() api.Endpoint {
	return api.Endpoint(r.srv.URL)
}

// Probes returns how many leader-info requests reached the replica.
func (r *Replica) Probes() int64 {
	return r.probes.Load()
}

// Requests returns how many business requests reached the replica.
func (r *Replica) Requests() int64 {
	return r.requests.Load()
}

// SetDown makes the replica drop every connection.
func (r *Replica) SetDown(down bool) {
	r.down.Store(down)
}

// SetLeaderInfo forces the raw leader-info answer of the replica.
func (r *Replica) SetLeaderInfo(status int, body string) {
	r.leaderInfo.Store(&rawAnswer{status: status, body: body})
}

type Cluster struct {
	t        testing.TB
	replicas []*Replica

	mu         sync.RWMutex
	leader     int
	hint       HintMode
	redirect   HintMode
	rejectAll  bool
	probeDelay time.Duration
	handler    http.HandlerFunc
}

type Option func(*Cluster)

// WithLeader sets the initial leader; -1 means no leader.
func WithLeader(i int) Option {
	return func(c *Cluster) { c.leader = i }
}

// WithHints makes followers name the leader in leader-info answers.
func WithHints(mode HintMode) Option {
	return func(c *Cluster) { c.hint = mode }
}

// WithRedirectHints makes followers name the leader in 403 rejections.
func WithRedirectHints(mode HintMode) Option {
	return func(c *Cluster) { c.redirect = mode }
}

// WithProbeDelay delays every leader-info answer.
func WithProbeDelay(d time.Duration) Option {
	return func(c *Cluster) { c.probeDelay = d }
}

// WithHandler replaces the leader's business handler.
func WithHandler(h http.HandlerFunc) Option {
	return func(c *Cluster) { c.handler = h }
}

// New starts n replicas named replica1..replicaN. They are closed when the
// test ends.
func New(t testing.TB, n int, opts ...Option) *Cluster {
	t.Helper()

	c := &Cluster{t: t, leader: -1}
	for _, opt := range opts {
		opt(c)
	}
	if c.handler == nil {
		c.handler = echoHandler
	}

	for i := range n {
		r := &Replica{ID: fmt.Sprintf("replica%d", i+1), c: c}
		idx := i
		r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			c.serve(idx, w, req)
		}))
		t.Cleanup(r.srv.Close)
		c.replicas = append(c.replicas, r)
	}
	return c
}

func (c *Cluster) Replica(i int) *Replica {
	return c.replicas[i]
}

func (c *Cluster) Replicas() []*Replica {
	return c.replicas
}

// Endpoints returns the replica addresses in order.
func (c *Cluster) Endpoints() []api.Endpoint {
	eps := make([]api.Endpoint, len(c.replicas))
	for i, r := range c.replicas {
		eps[i] = r.Endpoint()
	}
	return eps
}

// Registry builds a registry of the replicas, IDs included.
func (c *Cluster) Registry() *registry.Registry {
	c.t.Helper()
	reps := make([]registry.Replica, len(c.replicas))
	for i, r := range c.replicas {
		reps[i] = registry.Replica{ID: r.ID, Endpoint: r.Endpoint()}
	}
	reg, err := registry.NewWithReplicas(reps)
	if err != nil {
		c.t.Fatalf("build registry: %v", err)
	}
	return reg
}

// SetLeader moves leadership to replica i; -1 means no leader.
func (c *Cluster) SetLeader(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leader = i
}

// Leader returns the index of the current leader, or -1.
func (c *Cluster) Leader() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader
}

// RejectAll makes every replica, the leader included, answer business
// requests with a not-leader rejection.
func (c *Cluster) RejectAll(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectAll = reject
}

// TotalProbes sums leader-info requests over all replicas.
func (c *Cluster) TotalProbes() int64 {
	var n int64
	for _, r := range c.replicas {
		n += r.Probes()
	}
	return n
}

// TotalRequests sums business requests over all replicas.
func (c *Cluster) TotalRequests() int64 {
	var n int64
	for _, r := range c.replicas {
		n += r.Requests()
	}
	return n
}

// LeaderProbe answers a leader-info probe for replica i from the cluster
// state, bypassing HTTP. It counts as a probe.
func (c *Cluster) LeaderProbe(i int) api.ProbeResult {
	r := c.replicas[i]
	r.probes.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.leader == i {
		return api.ProbeResult{IsLeader: true}
	}
	return api.ProbeResult{LeaderHint: c.hintFor(c.hint)}
}

// hintFor must be called with c.mu held.
func (c *Cluster) hintFor(mode HintMode) string {
	if c.leader < 0 {
		return ""
	}
	switch mode {
	case HintAddress:
		return c.replicas[c.leader].Endpoint().String()
	case HintID:
		return c.replicas[c.leader].ID
	default:
		return ""
	}
}

func (c *Cluster) serve(i int, w http.ResponseWriter, req *http.Request) {
	r := c.replicas[i]
	if r.down.Load() {
		panic(http.ErrAbortHandler)
	}

	if req.URL.Path == api.LeaderInfoPath {
		c.serveLeaderInfo(i, w)
		return
	}

	r.requests.Add(1)
	c.mu.RLock()
	isLeader := c.leader == i && !c.rejectAll
	hint := c.hintFor(c.redirect)
	handler := c.handler
	c.mu.RUnlock()

	if !isLeader {
		body := api.NotLeaderBody{Error: api.NotLeaderError}
		if hint != "" {
			body.LeaderEndpoint = &hint
		}
		writeJSON(w, http.StatusForbidden, body)
		return
	}

	w.Header().Set("X-Replica", r.ID)
	handler(w, req)
}

func (c *Cluster) serveLeaderInfo(i int, w http.ResponseWriter) {
	r := c.replicas[i]

	c.mu.RLock()
	delay := c.probeDelay
	c.mu.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	if raw := r.leaderInfo.Load(); raw != nil {
		r.probes.Add(1)
		w.Header().Set("Content-Type", api.ContentTypeJSON)
		w.WriteHeader(raw.status)
		_, _ = io.WriteString(w, raw.body)
		return
	}

	res := c.LeaderProbe(i)
	info := api.LeaderInfo{IsLeader: res.IsLeader}
	if res.LeaderHint != "" {
		info.LeaderEndpoint = &res.LeaderHint
	}
	writeJSON(w, http.StatusOK, info)
}

func echoHandler(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	writeJSON(w, http.StatusOK, Echo{
		Replica:     w.Header().Get("X-Replica"),
		Method:      req.Method,
		Path:        req.URL.Path,
		Body:        string(body),
		ContentType: req.Header.Get("Content-Type"),
		RequestID:   req.Header.Get(api.RequestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", api.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
