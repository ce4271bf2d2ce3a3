package api

import (
	"time"

	"github.com/shrtyk/raft-router/pkg/logger"
)

type RouterConfig struct {
	Log      LoggerCfg
	Timings  RouterTimings
	Retry    RetryCfg
	CBreaker CircuitBreakerCfg
	Probe    ProbeCfg
	// ListenAddr is where the gateway serves. It must be set.
	ListenAddr string
}

type LoggerCfg struct {
	Env       logger.Enviroment
	AddSource bool
}

type RouterTimings struct {
	// ProbeTimeout bounds a single leader-info probe.
	ProbeTimeout time.Duration
	// RequestTimeout bounds a single dispatch attempt.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// RetryCfg drives the warm-up discovery performed before serving.
type RetryCfg struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type CircuitBreakerCfg struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// ProbeTransport selects how leader-info probes are sent.
type ProbeTransport string

const (
	ProbeHTTP ProbeTransport = "http"
	ProbeGRPC ProbeTransport = "grpc"
)

type ProbeCfg struct {
	Transport ProbeTransport
}
