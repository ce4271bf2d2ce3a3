// Package dispatcher sends logical requests to the leader.
//
// Each Send walks a small state machine:
//
//	NoBelief -> HaveBelief -> Sending -> {Success, Redirect, Unreachable}
//
// Redirect (403 {"error":"not_leader"}) and Unreachable (transport error or
// timeout) clear the belief and restart from NoBelief. Both share one retry
// budget: a Send re-resolves the leader at most once and then gives up with
// api.ErrRequestFailed.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/pkg/registry"
)

const (
	// retryBudget is the number of re-resolutions allowed per Send.
	retryBudget = 1

	defaultRequestTimeout = 5 * time.Second
	maxResponseBody       = 32 << 20
)

var _ api.Sender = (*Dispatcher)(nil)

type Dispatcher struct {
	reg            *registry.Registry
	cache          api.LeaderCache
	client         *http.Client
	requestTimeout time.Duration
	maxBody        int64
	newRequestID   func() string
	logger         *slog.Logger
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithRequestTimeout bounds every attempt, body read included.
// Non-positive values keep the default.
func WithRequestTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.requestTimeout = t
		}
	}
}

// WithMaxResponseBody caps the backend body size. Larger bodies fail with
// ErrResponseTooLarge. Non-positive values keep the default.
func WithMaxResponseBody(n int64) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxBody = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRequestIDFunc replaces the generator of X-Request-Id values.
func WithRequestIDFunc(fn func() string) Option {
	return func(d *Dispatcher) { d.newRequestID = fn }
}

func New(reg *registry.Registry, cache api.LeaderCache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:            reg,
		cache:          cache,
		client:         http.DefaultClient,
		requestTimeout: defaultRequestTimeout,
		maxBody:        maxResponseBody,
		newRequestID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	d.logger = d.logger.With(slog.String("component", "dispatcher"))
	return d
}

func (d *Dispatcher) Send(ctx context.Context, path string, opts api.RequestOptions) (*api.Response, error) {
	return d.Do(ctx, api.NewRequest(path, opts))
}

func (d *Dispatcher) Do(ctx context.Context, req *api.Request) (*api.Response, error) {
	if req == nil {
		return nil, errors.New("dispatcher: nil request")
	}

	reqID := req.Headers.Get(api.RequestIDHeader)
	if reqID == "" {
		reqID = d.newRequestID()
	}
	log := d.logger.With(
		slog.String("request_id", reqID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	var (
		lastErr error
		lastEp  api.Endpoint
	)
	for attempt := 0; attempt <= retryBudget; attempt++ {
		ep, err := d.cache.Resolve(ctx)
		if err != nil {
			return nil, d.resolveFailed(ctx, err)
		}

		resp, hint, err := d.attempt(ctx, ep, req, reqID)
		if err == nil {
			return resp, nil
		}
		if !api.IsTransient(err) {
			return nil, err
		}

		log.Warn("attempt failed, re-resolving leader",
			slog.Int("attempt", attempt+1),
			slog.String("endpoint", ep.String()),
			logger.ErrAttr(err),
		)
		d.forget(ep, hint)
		lastErr, lastEp = err, ep
	}

	log.Error("retry budget exhausted",
		slog.String("endpoint", lastEp.String()),
		logger.ErrAttr(lastErr),
	)
	return nil, &api.Error{Op: "send", Kind: api.ErrRequestFailed, Endpoint: lastEp, Err: lastErr}
}

// Leader returns the currently believed leader.
func (d *Dispatcher) Leader() (api.Endpoint, bool) {
	return d.cache.Get()
}

func (d *Dispatcher) Endpoints() []api.Endpoint {
	return d.reg.AllEndpoints()
}

// attempt sends req to ep once. It returns the leader hint of a not-leader
// rejection alongside the error, if the rejection carried one.
func (d *Dispatcher) attempt(
	ctx context.Context,
	ep api.Endpoint,
	req *api.Request,
	reqID string,
) (*api.Response, string, error) {
	actx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, ep.URL(req.Path), body)
	if err != nil {
		return nil, "", &api.Error{Op: "send", Kind: api.ErrRequestFailed, Endpoint: ep, Err: err}
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", api.ContentTypeJSON)
	}
	hreq.Header.Set(api.RequestIDHeader, reqID)

	hresp, err := d.client.Do(hreq)
	if err != nil {
		return nil, "", d.unreachable(ctx, ep, err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(hresp.Body, d.maxBody+1))
	if err != nil {
		return nil, "", d.unreachable(ctx, ep, err)
	}
	if int64(len(respBody)) > d.maxBody {
		return nil, "", &api.Error{
			Op:       "send",
			Kind:     api.ErrResponseTooLarge,
			Endpoint: ep,
			Err:      fmt.Errorf("body exceeds %d bytes", d.maxBody),
		}
	}

	if hint, ok := notLeader(hresp.StatusCode, respBody); ok {
		return nil, hint, &api.Error{Op: "send", Kind: api.ErrNotLeader, Endpoint: ep}
	}

	return &api.Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       respBody,
		Endpoint:   ep,
	}, "", nil
}

// unreachable classifies a transport error. The caller's own cancellation is
// returned as is so that it is never retried.
func (d *Dispatcher) unreachable(ctx context.Context, ep api.Endpoint, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &api.Error{Op: "send", Kind: api.ErrUnreachable, Endpoint: ep, Err: err}
}

func (d *Dispatcher) resolveFailed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, api.ErrMalformedResponse) {
		return &api.Error{Op: "send", Kind: api.ErrMalformedResponse, Err: err}
	}
	return &api.Error{Op: "send", Kind: api.ErrClusterUnavailable, Err: err}
}

// forget drops ep as the believed leader, moving the belief to a
// registered hint when the rejection named one.
func (d *Dispatcher) forget(ep api.Endpoint, hint string) {
	if hint != "" {
		if next, ok := d.reg.Lookup(hint); ok && next != ep {
			d.cache.Redirect(ep, next)
			return
		}
	}
	d.cache.Invalidate(ep)
}

// notLeader reports whether a response is the not-leader rejection: status
// 403 with a JSON object whose "error" is exactly "not_leader". Any other 403
// belongs to the caller.
func notLeader(status int, body []byte) (hint string, ok bool) {
	if status != http.StatusForbidden {
		return "", false
	}
	var nl api.NotLeaderBody
	if err := json.Unmarshal(body, &nl); err != nil || nl.Error != api.NotLeaderError {
		return "", false
	}
	if nl.LeaderEndpoint != nil {
		hint = *nl.LeaderEndpoint
	}
	return hint, true
}
