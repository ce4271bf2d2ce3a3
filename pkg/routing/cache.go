// Package routing owns the leader belief shared by every in-flight request.
//
// All reads and writes of the belief go through Cache. Clearing is
// compare-and-clear, so a request that failed against an old leader cannot
// wipe a belief that a newer discovery already replaced. Discovery is
// single-flight: callers that need a leader while a pass is running wait for
// that pass instead of starting their own.
package routing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const discoveryKey = "discover-leader"

var _ api.LeaderCache = (*Cache)(nil)

type Cache struct {
	mu     sync.RWMutex
	leader api.Endpoint // "" means unknown

	resolver api.Resolver
	group    singleflight.Group
	passes   atomic.Int64

	logger *slog.Logger
}

func NewCache(resolver api.Resolver, l *slog.Logger) *Cache {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		resolver: resolver,
		logger:   l.With(slog.String("component", "routing")),
	}
}

func (c *Cache) Get() (api.Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leader, c.leader != ""
}

func (c *Cache) SetLeader(ep api.Endpoint) {
	c.mu.Lock()
	prev := c.leader
	c.leader = ep
	c.mu.Unlock()

	if prev != ep {
		c.logger.Info("leader belief updated",
			slog.String("from", prev.String()),
			slog.String("to", ep.String()),
		)
	}
}

func (c *Cache) Invalidate(expected api.Endpoint) bool {
	if expected == "" {
		return false
	}

	c.mu.Lock()
	if c.leader != expected {
		c.mu.Unlock()
		return false
	}
	c.leader = ""
	c.mu.Unlock()

	c.logger.Info("leader belief invalidated", slog.String("endpoint", expected.String()))
	return true
}

func (c *Cache) Redirect(expected, hint api.Endpoint) bool {
	if expected == "" || hint == "" {
		return false
	}

	c.mu.Lock()
	if c.leader != expected {
		c.mu.Unlock()
		return false
	}
	c.leader = hint
	c.mu.Unlock()

	c.logger.Info("leader belief redirected",
		slog.String("from", expected.String()),
		slog.String("to", hint.String()),
	)
	return true
}

// Resolve returns the believed leader, discovering one if needed.
//
// The discovery pass is shared by all concurrent callers and is not tied to
// any one caller's context: a caller whose ctx ends stops waiting and gets
// ctx.Err(), while the pass runs on for the others.
func (c *Cache) Resolve(ctx context.Context) (api.Endpoint, error) {
	if ep, ok := c.Get(); ok {
		return ep, nil
	}

	dctx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(discoveryKey, func() (any, error) {
		// A pass that finished just before this one started may have
		// already set the belief.
		if ep, ok := c.Get(); ok {
			return ep, nil
		}

		c.passes.Add(1)
		ep, err := c.resolver.DiscoverLeader(dctx)
		if err != nil {
			c.logger.Warn("leader discovery failed", logger.ErrAttr(err))
			return api.Endpoint(""), err
		}
		c.SetLeader(ep)
		return ep, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(api.Endpoint), nil
	}
}

// Passes returns how many discovery passes actually ran.
func (c *Cache) Passes() int64 {
	return c.passes.Load()
}
