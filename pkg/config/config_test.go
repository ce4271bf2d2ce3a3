package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replicasJSON = `{
  "replicas": [
    {"id": "replica1", "host": "127.0.0.1", "port": 50051},
    {"id": "replica2", "host": "127.0.0.1", "port": 50052},
    {"id": "replica3", "host": "127.0.0.1", "port": 50053}
  ]
}`

const fullYAML = `
listen: ":9000"
replicas:
  - id: a
    address: http://10.0.0.1:8080/
    host: 10.0.0.1
    port: 9090
  - address: http://10.0.0.2:8080
log:
  env: prod
  add_source: true
timings:
  probe: 750ms
  request: 3s
retry:
  max_attempts: 7
circuit_breaker:
  enabled: true
  reset_timeout: 10s
probe:
  transport: grpc
`

func baseConfig() *api.RouterConfig {
	return &api.RouterConfig{
		Log:     api.LoggerCfg{Env: logger.Dev},
		Timings: api.RouterTimings{ProbeTimeout: time.Second, RequestTimeout: time.Second, ShutdownTimeout: time.Second},
		Retry:   api.RetryCfg{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond},
		CBreaker: api.CircuitBreakerCfg{
			FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: 5 * time.Second,
		},
		Probe:      api.ProbeCfg{Transport: api.ProbeHTTP},
		ListenAddr: ":8000",
	}
}

func TestDecodeReplicasJSON(t *testing.T) {
	f, err := Decode(strings.NewReader(replicasJSON))
	require.NoError(t, err)

	reg, err := f.Registry()
	require.NoError(t, err)

	want := []api.Endpoint{"http://127.0.0.1:50051", "http://127.0.0.1:50052", "http://127.0.0.1:50053"}
	if diff := cmp.Diff(want, reg.AllEndpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}

	ep, ok := reg.Lookup("replica2")
	require.True(t, ok)
	assert.Equal(t, want[1], ep)

	targets := f.GRPCTargets(reg)
	assert.Equal(t, map[api.Endpoint]string{
		want[0]: "127.0.0.1:50051",
		want[1]: "127.0.0.1:50052",
		want[2]: "127.0.0.1:50053",
	}, targets)

	cfg, err := f.Apply(baseConfig())
	require.NoError(t, err)
	if diff := cmp.Diff(baseConfig(), cfg); diff != "" {
		t.Errorf("replica-only file changed settings (-want +got):\n%s", diff)
	}
}

func TestDecodeYAML(t *testing.T) {
	f, err := Decode(strings.NewReader(fullYAML))
	require.NoError(t, err)

	reg, err := f.Registry()
	require.NoError(t, err)
	assert.Equal(t, []api.Endpoint{"http://10.0.0.1:8080", "http://10.0.0.2:8080"}, reg.AllEndpoints())
	assert.Equal(t, "a", reg.ID("http://10.0.0.1:8080"))

	// Only the first replica names a gRPC service.
	assert.Equal(t, map[api.Endpoint]string{"http://10.0.0.1:8080": "10.0.0.1:9090"}, f.GRPCTargets(reg))

	cfg, err := f.Apply(baseConfig())
	require.NoError(t, err)

	want := baseConfig()
	want.Log = api.LoggerCfg{Env: logger.Prod, AddSource: true}
	want.Timings.ProbeTimeout = 750 * time.Millisecond
	want.Timings.RequestTimeout = 3 * time.Second
	want.Retry.MaxAttempts = 7
	want.CBreaker.Enabled = true
	want.CBreaker.ResetTimeout = 10 * time.Second
	want.Probe.Transport = api.ProbeGRPC
	want.ListenAddr = ":9000"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "empty document", doc: "", want: ErrNoReplicas},
		{name: "no replicas", doc: `{"replicas": []}`, want: ErrNoReplicas},
		{name: "listen only", doc: "listen: :1\n", want: ErrNoReplicas},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("bad duration", func(t *testing.T) {
		_, err := Decode(strings.NewReader("replicas: [{address: 'http://a'}]\ntimings: {probe: soon}\n"))
		assert.Error(t, err)
	})
}

func TestApplyRejectsUnknownValues(t *testing.T) {
	f, err := Decode(strings.NewReader("replicas: [{address: 'http://a'}]\nprobe: {transport: smtp}\n"))
	require.NoError(t, err)
	_, err = f.Apply(baseConfig())
	assert.ErrorContains(t, err, "unknown probe transport")

	f, err = Decode(strings.NewReader("replicas: [{address: 'http://a'}]\nlog: {env: moon}\n"))
	require.NoError(t, err)
	_, err = f.Apply(baseConfig())
	assert.ErrorContains(t, err, "unknown environment")
}

func TestRegistryRejectsIncompleteReplica(t *testing.T) {
	f, err := Decode(strings.NewReader(`{"replicas": [{"id": "x", "host": "127.0.0.1"}]}`))
	require.NoError(t, err)
	_, err = f.Registry()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o600))

	t.Run("explicit path", func(t *testing.T) {
		f, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", f.Listen)
		assert.Len(t, f.Replicas, 2)
	})

	t.Run("path from env", func(t *testing.T) {
		t.Setenv(EnvConfigPath, path)
		f, err := Load("")
		require.NoError(t, err)
		assert.Len(t, f.Replicas, 2)
	})

	t.Run("listen address from env", func(t *testing.T) {
		t.Setenv(EnvListenAddr, "127.0.0.1:7000")
		f, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", f.Listen)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
