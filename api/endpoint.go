package api

import (
	"net/http"
	"strings"
)

// Endpoint is the address of one replica: scheme, host, port and an optional
// base path, e.g. "http://10.0.0.1:8080/blog". Two endpoints are the same
// replica iff their address strings are equal.
type Endpoint string

func (e Endpoint) String() string {
	return string(e)
}

// URL joins the endpoint with a request path.
func (e Endpoint) URL(path string) string {
	base := strings.TrimRight(string(e), "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// RequestOptions carries the caller-controlled parts of a logical request.
type RequestOptions struct {
	Method  string
	Headers http.Header
	Body    []byte
}

// Request is a backend-agnostic request. It is bound to an endpoint only
// when it is dispatched, so the same value may be sent to several replicas.
type Request struct {
	Path    string
	Method  string
	Headers http.Header
	Body    []byte
}

// NewRequest builds a Request from a path and options, defaulting the method
// to GET.
func NewRequest(path string, opts RequestOptions) *Request {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Path:    path,
		Method:  method,
		Headers: opts.Headers,
		Body:    opts.Body,
	}
}

// Response is what the leader answered. Body is fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Endpoint is the replica that produced the response.
	Endpoint Endpoint
}

// ProbeResult is the answer of one leader-info probe.
//
// Exactly one of the following holds:
//   - IsLeader is true: the probed endpoint leads;
//   - LeaderHint is non-empty: the probed endpoint names another replica
//     (by address or by replica ID);
//   - both are zero: the endpoint is up but does not know the leader.
type ProbeResult struct {
	IsLeader   bool
	LeaderHint string
}

// LeaderInfo is the JSON body served at GET <endpoint>/leader-info.
type LeaderInfo struct {
	IsLeader       bool    `json:"isLeader"`
	LeaderEndpoint *string `json:"leaderEndpoint"`
}

// NotLeaderBody is the JSON body that accompanies a 403 not-leader
// rejection. LeaderEndpoint is optional.
type NotLeaderBody struct {
	Error          string  `json:"error"`
	LeaderEndpoint *string `json:"leaderEndpoint,omitempty"`
}

const (
	// LeaderInfoPath is the discovery path on every replica.
	LeaderInfoPath = "/leader-info"
	// NotLeaderError is the literal error value of a not-leader rejection.
	NotLeaderError = "not_leader"
	// ContentTypeJSON is attached to every request unless the caller overrides it.
	ContentTypeJSON = "application/json"
	// RequestIDHeader carries an identifier that stays the same across the
	// attempts of one Send.
	RequestIDHeader = "X-Request-Id"
)
