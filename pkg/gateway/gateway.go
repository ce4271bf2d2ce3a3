// Package gateway exposes the router over HTTP: business requests under
// /api/ are forwarded to the current leader, and /status and /health
// describe the router itself.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/router"
)

const (
	APIPrefix = "/api/"

	maxRequestBody = 8 << 20
)

// forwardedHeaders are copied from the incoming request to the backend.
var forwardedHeaders = []string{
	"Accept",
	"Accept-Language",
	"Authorization",
	"Content-Type",
	"Cookie",
}

// hopHeaders are never copied back from the backend response.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
}

// Backend is what the gateway needs from a router.
type Backend interface {
	api.Sender
	Status() router.Status
}

type Gateway struct {
	backend Backend
	logger  *slog.Logger
}

func New(b Backend, l *slog.Logger) *Gateway {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		backend: b,
		logger:  l.With(slog.String("component", "gateway")),
	}
}

// Handler returns the gateway's routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(APIPrefix, http.HandlerFunc(g.handleForward))
	mux.Handle("/status", &statusHandler{g: g})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (g *Gateway) handleForward(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "Request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Failed to read request body"})
			return
		}
	}

	opts := api.RequestOptions{
		Method:  r.Method,
		Headers: make(http.Header),
	}
	if len(body) > 0 {
		opts.Body = body
	}
	for _, h := range forwardedHeaders {
		for _, v := range r.Header.Values(h) {
			opts.Headers.Add(h, v)
		}
	}

	resp, err := g.backend.Send(r.Context(), r.URL.RequestURI(), opts)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	for k, vs := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		g.logger.Debug("failed to write response", logger.ErrAttr(err))
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if r.Context().Err() != nil {
			// The client is gone; nobody reads the answer.
			return
		}
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Detail: "Leader did not answer in time"})
	case errors.Is(err, api.ErrClusterUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "Leader not available"})
	case errors.Is(err, api.ErrResponseTooLarge):
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: "Response from leader too large"})
	case errors.Is(err, api.ErrMalformedResponse):
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: "Malformed response from replica"})
	case errors.Is(err, api.ErrRequestFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: "Request to leader failed"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Internal error"})
	}
	g.logger.Warn("request not forwarded",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.ErrAttr(err),
	)
}

type statusHandler struct {
	g *Gateway
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.g.backend.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", api.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
