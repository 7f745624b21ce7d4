package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/runger/bikeshare/internal/intake"
	blog "github.com/runger/bikeshare/internal/log"
)

// shutdownTimeout bounds the metrics server drain.
const shutdownTimeout = 5 * time.Second

// Options configures Run.
type Options struct {
	Env     *Env
	Version string

	// Reload, when set, triggers a forced settings refresh on each receive.
	// Run wires SIGHUP to it when nil.
	Reload <-chan os.Signal
}

// Run starts the daemon and blocks until ctx is done or a component fails.
// It holds the PID lock for its whole lifetime.
func Run(ctx context.Context, opts Options) error {
	env := opts.Env
	cfg, paths, logger := env.Config, env.Paths, env.Logger

	pidLock := NewPIDLock(paths.PIDFile())
	if err := pidLock.Acquire(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Warn("failed to release PID lock", "error", err)
		}
	}()

	socketPath := cfg.SocketPath(paths)
	lis, err := intake.Listen(socketPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove socket", "path", socketPath, "error", err)
		}
	}()

	var metricsLis net.Listener
	if addr := cfg.Daemon.MetricsAddr; addr != "" {
		metricsLis, err = net.Listen("tcp", addr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to listen for metrics: %w", err)
		}
	}

	reload := opts.Reload
	if reload == nil {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		reload = hup
	}

	blog.LogStartup(logger, blog.StartupInfo{
		Version:      opts.Version,
		ConfigPath:   paths.ConfigFile(),
		DatabasePath: cfg.DBPath(paths),
		SocketPath:   socketPath,
		MetricsAddr:  cfg.Daemon.MetricsAddr,
		LockMode:     cfg.Lock.Mode,
		PID:          os.Getpid(),
	})

	g, gctx := errgroup.WithContext(ctx)

	srv := intake.NewServer(env.Orchestrator, logger)
	g.Go(func() error { return srv.Serve(gctx, lis) })

	if interval := cfg.AccrualInterval(); interval > 0 {
		g.Go(func() error { return env.accrualLoop(gctx, interval) })
	}
	if metricsLis != nil {
		g.Go(func() error { return serveMetrics(gctx, metricsLis) })
	}
	g.Go(func() error { return env.reloadLoop(gctx, reload) })

	err = g.Wait()
	reason := "context done"
	if err != nil {
		reason = err.Error()
	}
	blog.LogShutdown(logger, reason)
	return err
}

// accrualLoop runs one accrual pass per interval. A failed pass is logged
// and retried on the next tick.
func (e *Env) accrualLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Orchestrator.Accrue(ctx); err != nil && ctx.Err() == nil {
				e.Logger.Warn("accrual pass failed", "error", err)
			}
		}
	}
}

func (e *Env) reloadLoop(ctx context.Context, reload <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reload:
			snap, err := e.Settings.Refresh(ctx)
			if err != nil {
				e.Logger.Error("failed to reload settings", "error", err)
				continue
			}
			blog.LogSettingsReload(e.Logger, true, len(snap.Sections()), snap.Missing())
		}
	}
}

// serveMetrics exposes the Prometheus registry on lis until ctx is done.
func serveMetrics(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return <-errChan
	case err := <-errChan:
		return err
	}
}
