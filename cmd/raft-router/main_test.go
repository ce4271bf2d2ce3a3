package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/router"
	testsim "github.com/shrtyk/raft-router/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, c *testsim.Cluster) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("listen: 127.0.0.1:0\nlog: {env: prod}\nretry: {max_attempts: 1}\nreplicas:\n")
	for _, r := range c.Replicas() {
		fmt.Fprintf(&b, "  - id: %s\n    address: %s\n", r.ID, r.Endpoint())
	}
	path := filepath.Join(t.TempDir(), "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestRunStopsOnContextDone(t *testing.T) {
	c := testsim.New(t, 3, testsim.WithLeader(2))
	path := writeConfig(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, path))
	assert.EqualValues(t, 3, c.TotalProbes(), "warm-up should have discovered the leader")
}

func TestRunWithoutLeaderStillServes(t *testing.T) {
	c := testsim.New(t, 2)
	path := writeConfig(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, path))
	assert.EqualValues(t, 2, c.TotalProbes())
}

func TestRunConfigErrors(t *testing.T) {
	ctx := context.Background()

	err := run(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicas: [{address: 'http://a'}]\nprobe: {transport: ftp}\n"), 0o600))
	assert.ErrorContains(t, run(ctx, path), "unknown probe transport")
}

func TestServeRequiresListenAddr(t *testing.T) {
	c := testsim.New(t, 1, testsim.WithLeader(0))
	_, log := logger.NewTestLogger()

	cfg := router.TestsConfig()
	cfg.ListenAddr = ""
	rt, err := router.NewBuilder(c.Registry()).WithConfig(cfg).WithLogger(log).Build()
	require.NoError(t, err)
	defer rt.Close()

	err = serve(context.Background(), cfg, rt.(*router.Router), log)
	assert.ErrorIs(t, err, errNoListenAddr)
	assert.Zero(t, c.TotalProbes(), "nothing is started without an address")
}
