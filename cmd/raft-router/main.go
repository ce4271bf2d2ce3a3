package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/config"
	"github.com/shrtyk/raft-router/pkg/gateway"
	"github.com/shrtyk/raft-router/pkg/logger"
	"github.com/shrtyk/raft-router/router"
)

func main() {
	path := flag.String("config", "", "path to the config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *path); err != nil {
		fmt.Fprintf(os.Stderr, "raft-router: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	file, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg, err := file.Apply(router.DefaultConfig())
	if err != nil {
		return err
	}
	reg, err := file.Registry()
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Log.Env, cfg.Log.AddSource)

	rt, err := router.NewBuilder(reg).
		WithConfig(cfg).
		WithLogger(log).
		WithGRPCTargets(file.GRPCTargets(reg)).
		Build()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("failed to close router", logger.ErrAttr(err))
		}
	}()

	return serve(ctx, cfg, rt.(*router.Router), log)
}

var errNoListenAddr = errors.New("no listen address configured")

func serve(ctx context.Context, cfg *api.RouterConfig, rt *router.Router, log *slog.Logger) error {
	if cfg.ListenAddr == "" {
		return errNoListenAddr
	}

	// Warm-up is best effort: the first request discovers the leader anyway.
	if err := rt.WarmUp(ctx); err != nil {
		log.Warn("no leader found during warm-up", logger.ErrAttr(err))
	} else if leader, ok := rt.Leader(); ok {
		log.Info("leader found", slog.String("leader", leader.String()))
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gateway.New(rt, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("router listening",
			slog.String("addr", cfg.ListenAddr),
			slog.Int("replicas", len(rt.Endpoints())),
			slog.String("probe", string(cfg.Probe.Transport)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timings.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("router stopped")
	return nil
}
