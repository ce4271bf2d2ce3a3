package router

import (
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/logger"
)

const defaultListenAddr = ":8000"

func DefaultConfig() *api.RouterConfig {
	return &api.RouterConfig{
		Log: api.LoggerCfg{
			Env: logger.Dev,
		},
		Timings: api.RouterTimings{
			ProbeTimeout:    2 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Retry: api.RetryCfg{
			MaxAttempts: 5,
			BaseDelay:   150 * time.Millisecond,
		},
		CBreaker: api.CircuitBreakerCfg{
			Enabled:          false,
			FailureThreshold: 3,
			SuccessThreshold: 1,
			ResetTimeout:     5 * time.Second,
		},
		Probe: api.ProbeCfg{
			Transport: api.ProbeHTTP,
		},
		ListenAddr: defaultListenAddr,
	}
}

func TestsConfig() *api.RouterConfig {
	return &api.RouterConfig{
		Log: api.LoggerCfg{
			Env: logger.Dev,
		},
		Timings: api.RouterTimings{
			ProbeTimeout:    200 * time.Millisecond,
			RequestTimeout:  500 * time.Millisecond,
			ShutdownTimeout: time.Second,
		},
		Retry: api.RetryCfg{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Millisecond,
		},
		CBreaker: api.CircuitBreakerCfg{
			Enabled:          false,
			FailureThreshold: 2,
			SuccessThreshold: 1,
			ResetTimeout:     100 * time.Millisecond,
		},
		Probe: api.ProbeCfg{
			Transport: api.ProbeHTTP,
		},
	}
}
