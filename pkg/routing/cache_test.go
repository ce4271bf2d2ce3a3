package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/registry"
	"github.com/shrtyk/raft-router/pkg/resolver"
	testsim "github.com/shrtyk/raft-router/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	epA api.Endpoint = "http://a:1"
	epB api.Endpoint = "http://b:2"
	epC api.Endpoint = "http://c:3"
)

type countingResolver struct {
	calls atomic.Int64
	delay time.Duration
	fn    func(n int64) (api.Endpoint, error)
}

func (r *countingResolver) DiscoverLeader(ctx context.Context) (api.Endpoint, error) {
	n := r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.fn(n)
}

func fixed(ep api.Endpoint) *countingResolver {
	return &countingResolver{fn: func(int64) (api.Endpoint, error) { return ep, nil }}
}

func TestCacheBelief(t *testing.T) {
	c := NewCache(fixed(epA), nil)

	_, ok := c.Get()
	assert.False(t, ok, "belief starts unknown")

	c.SetLeader(epA)
	ep, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, epA, ep)

	t.Run("invalidate with a stale expectation keeps the belief", func(t *testing.T) {
		c.SetLeader(epB)
		assert.False(t, c.Invalidate(epA))
		ep, ok := c.Get()
		require.True(t, ok)
		assert.Equal(t, epB, ep)
	})

	t.Run("invalidate with the current belief clears it", func(t *testing.T) {
		c.SetLeader(epB)
		assert.True(t, c.Invalidate(epB))
		_, ok := c.Get()
		assert.False(t, ok)
		assert.False(t, c.Invalidate(epB), "second invalidate is a no-op")
	})

	t.Run("invalidate of the unknown endpoint is a no-op", func(t *testing.T) {
		assert.False(t, c.Invalidate(""))
	})

	t.Run("redirect is compare-and-swap", func(t *testing.T) {
		c.SetLeader(epA)
		assert.False(t, c.Redirect(epB, epC))
		ep, _ := c.Get()
		assert.Equal(t, epA, ep)

		assert.True(t, c.Redirect(epA, epC))
		ep, _ = c.Get()
		assert.Equal(t, epC, ep)

		assert.False(t, c.Redirect(epC, ""))
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("cached belief skips discovery", func(t *testing.T) {
		r := fixed(epA)
		c := NewCache(r, nil)
		c.SetLeader(epB)

		ep, err := c.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, epB, ep)
		assert.Zero(t, r.calls.Load())
	})

	t.Run("discovery sets the belief", func(t *testing.T) {
		r := fixed(epC)
		c := NewCache(r, nil)

		ep, err := c.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, epC, ep)

		got, ok := c.Get()
		require.True(t, ok)
		assert.Equal(t, epC, got)
		assert.EqualValues(t, 1, c.Passes())
	})

	t.Run("discovery failure leaves the belief unknown", func(t *testing.T) {
		boom := &api.Error{Op: "discover", Kind: api.ErrDiscoveryFailed}
		r := &countingResolver{fn: func(int64) (api.Endpoint, error) { return "", boom }}
		c := NewCache(r, nil)

		_, err := c.Resolve(ctx)
		require.ErrorIs(t, err, api.ErrDiscoveryFailed)
		_, ok := c.Get()
		assert.False(t, ok)

		_, err = c.Resolve(ctx)
		require.Error(t, err)
		assert.EqualValues(t, 2, r.calls.Load(), "failures are not cached")
	})

	t.Run("concurrent callers share one pass", func(t *testing.T) {
		r := fixed(epB)
		r.delay = 50 * time.Millisecond
		c := NewCache(r, nil)

		const callers = 32
		var wg sync.WaitGroup
		start := make(chan struct{})
		results := make([]api.Endpoint, callers)
		errs := make([]error, callers)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				results[i], errs[i] = c.Resolve(ctx)
			}()
		}
		close(start)
		wg.Wait()

		for i := range callers {
			require.NoError(t, errs[i])
			assert.Equal(t, epB, results[i])
		}
		assert.EqualValues(t, 1, r.calls.Load())
		assert.EqualValues(t, 1, c.Passes())
	})

	t.Run("caller cancellation does not abort the shared pass", func(t *testing.T) {
		r := fixed(epA)
		r.delay = 100 * time.Millisecond
		c := NewCache(r, nil)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		var wg sync.WaitGroup
		var patientErr error
		var patientEp api.Endpoint
		wg.Add(1)
		go func() {
			defer wg.Done()
			patientEp, patientErr = c.Resolve(ctx)
		}()

		_, err := c.Resolve(cctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		wg.Wait()
		require.NoError(t, patientErr)
		assert.Equal(t, epA, patientEp)
		assert.EqualValues(t, 1, r.calls.Load())
	})

	t.Run("concurrent callers against a replica set probe it once", func(t *testing.T) {
		reg, err := registry.New(epA, epB, epC)
		require.NoError(t, err)
		p := testsim.NewSimProber().Follower(epA, "").Follower(epB, "").Leader(epC)
		p.SetDelay(20 * time.Millisecond)
		c := NewCache(resolver.New(reg, p, nil), nil)

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ep, err := c.Resolve(ctx)
				assert.NoError(t, err)
				assert.Equal(t, epC, ep)
			}()
		}
		wg.Wait()

		assert.Equal(t, []api.Endpoint{epA, epB, epC}, p.Calls())
	})
}

func TestInvalidateRace(t *testing.T) {
	// A slow request against the old leader must not clear the belief a
	// newer discovery installed.
	r := &countingResolver{fn: func(n int64) (api.Endpoint, error) {
		return api.Endpoint(fmt.Sprintf("http://leader-%d", n)), nil
	}}
	c := NewCache(r, nil)

	old, err := c.Resolve(context.Background())
	require.NoError(t, err)

	require.True(t, c.Invalidate(old))
	fresh, err := c.Resolve(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, old, fresh)

	assert.False(t, c.Invalidate(old), "late invalidation of the old leader")
	ep, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, fresh, ep)
}
