// Package config loads the router's file configuration.
//
// Files are YAML. Since YAML is a superset of JSON, a plain replicas.json of
// the form {"replicas":[{"id":"replica1","host":"127.0.0.1","port":50051}]}
// is a valid config as well.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/pkg/registry"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "RAFT_ROUTER_CONFIG"
	EnvListenAddr = "RAFT_ROUTER_ADDR"

	DefaultPath = "replicas.json"
)

var ErrNoReplicas = errors.New("config: no replicas configured")

// Replica is one entry of the replica list.
//
// Address is the HTTP base URL of the replica. Host and Port name its gRPC
// leader-info service; when Address is empty it defaults to http://host:port.
type Replica struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

func (r Replica) endpoint() api.Endpoint {
	if r.Address != "" {
		return api.Endpoint(r.Address)
	}
	if r.grpcTarget() == "" {
		return ""
	}
	return api.Endpoint("http://" + r.grpcTarget())
}

func (r Replica) grpcTarget() string {
	if r.Host == "" || r.Port == 0 {
		return ""
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// File mirrors the on-disk layout. Zero values keep the defaults.
type File struct {
	Listen   string    `yaml:"listen"`
	Replicas []Replica `yaml:"replicas"`

	Log struct {
		Env       string `yaml:"env"`
		AddSource bool   `yaml:"add_source"`
	} `yaml:"log"`

	Timings struct {
		Probe    time.Duration `yaml:"probe"`
		Request  time.Duration `yaml:"request"`
		Shutdown time.Duration `yaml:"shutdown"`
	} `yaml:"timings"`

	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
	} `yaml:"retry"`

	CircuitBreaker struct {
		Enabled          bool          `yaml:"enabled"`
		FailureThreshold int           `yaml:"failure_threshold"`
		SuccessThreshold int           `yaml:"success_threshold"`
		ResetTimeout     time.Duration `yaml:"reset_timeout"`
	} `yaml:"circuit_breaker"`

	Probe struct {
		Transport string `yaml:"transport"`
	} `yaml:"probe"`
}

// Load reads the file at path. An empty path falls back to
// $RAFT_ROUTER_CONFIG and then to replicas.json.
func Load(path string) (*File, error) {
	if path == "" {
		path = getenv(EnvConfigPath, DefaultPath)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if addr := os.Getenv(EnvListenAddr); addr != "" {
		cfg.Listen = addr
	}
	return cfg, nil
}

// Decode parses a config document from r.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoReplicas
		}
		return nil, err
	}
	if len(f.Replicas) == 0 {
		return nil, ErrNoReplicas
	}
	return &f, nil
}

// Registry builds the replica set in file order.
func (f *File) Registry() (*registry.Registry, error) {
	reps := make([]registry.Replica, len(f.Replicas))
	for i, r := range f.Replicas {
		reps[i] = registry.Replica{ID: r.ID, Endpoint: r.endpoint()}
	}
	return registry.NewWithReplicas(reps)
}

// GRPCTargets returns the gRPC dial target of every replica that names one,
// keyed by the endpoint the registry will hold for it.
func (f *File) GRPCTargets(reg *registry.Registry) map[api.Endpoint]string {
	targets := make(map[api.Endpoint]string, len(f.Replicas))
	for _, r := range f.Replicas {
		target := r.grpcTarget()
		if target == "" {
			continue
		}
		if ep, ok := reg.Lookup(string(r.endpoint())); ok {
			targets[ep] = target
		}
	}
	return targets
}

// Apply overlays the non-zero file settings onto base.
func (f *File) Apply(base *api.RouterConfig) (*api.RouterConfig, error) {
	cfg := *base

	if f.Log.Env != "" {
		env, err := logger.ParseEnviroment(f.Log.Env)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg.Log.Env = env
	}
	cfg.Log.AddSource = cfg.Log.AddSource || f.Log.AddSource

	setIfPositive(&cfg.Timings.ProbeTimeout, f.Timings.Probe)
	setIfPositive(&cfg.Timings.RequestTimeout, f.Timings.Request)
	setIfPositive(&cfg.Timings.ShutdownTimeout, f.Timings.Shutdown)

	setIfPositive(&cfg.Retry.MaxAttempts, f.Retry.MaxAttempts)
	setIfPositive(&cfg.Retry.BaseDelay, f.Retry.BaseDelay)

	if f.CircuitBreaker.Enabled {
		cfg.CBreaker.Enabled = true
	}
	setIfPositive(&cfg.CBreaker.FailureThreshold, f.CircuitBreaker.FailureThreshold)
	setIfPositive(&cfg.CBreaker.SuccessThreshold, f.CircuitBreaker.SuccessThreshold)
	setIfPositive(&cfg.CBreaker.ResetTimeout, f.CircuitBreaker.ResetTimeout)

	switch t := api.ProbeTransport(f.Probe.Transport); t {
	case "":
	case api.ProbeHTTP, api.ProbeGRPC:
		cfg.Probe.Transport = t
	default:
		return nil, fmt.Errorf("config: unknown probe transport %q", t)
	}

	if f.Listen != "" {
		cfg.ListenAddr = f.Listen
	}
	return &cfg, nil
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
