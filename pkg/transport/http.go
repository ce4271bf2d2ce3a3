package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shrtyk/raft-router/api"
)

// maxLeaderInfoBody caps how much of a leader-info body is read.
const maxLeaderInfoBody = 64 << 10

var _ api.Prober = (*HTTPProber)(nil)

// HTTPProber asks GET <endpoint>/leader-info.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber returns a prober using client. Each probe is bounded by timeout
// when it is positive.
func NewHTTPProber(client *http.Client, timeout time.Duration) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client, timeout: timeout}
}

func (p *HTTPProber) Probe(ctx context.Context, ep api.Endpoint) (api.ProbeResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL(api.LeaderInfoPath), nil)
	if err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, err)
	}
	req.Header.Set("Accept", api.ContentTypeJSON)

	resp, err := p.client.Do(req)
	if err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLeaderInfoBody))
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLeaderInfoBody))
	if err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, err)
	}

	res, err := DecodeLeaderInfo(body)
	if err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrMalformedResponse, err)
	}
	return res, nil
}

// DecodeLeaderInfo parses a leader-info body. The isLeader field is required.
func DecodeLeaderInfo(body []byte) (api.ProbeResult, error) {
	var raw struct {
		IsLeader       *bool   `json:"isLeader"`
		LeaderEndpoint *string `json:"leaderEndpoint"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return api.ProbeResult{}, err
	}
	if raw.IsLeader == nil {
		return api.ProbeResult{}, fmt.Errorf("missing isLeader field")
	}

	res := api.ProbeResult{IsLeader: *raw.IsLeader}
	if !res.IsLeader && raw.LeaderEndpoint != nil {
		res.LeaderHint = *raw.LeaderEndpoint
	}
	return res, nil
}

func probeErr(ep api.Endpoint, kind, err error) error {
	return &api.Error{Op: "probe", Kind: kind, Endpoint: ep, Err: err}
}
