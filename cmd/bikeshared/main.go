// bikeshared is the bikeshare pipeline daemon. It serves form submissions
// and manual edits on a unix socket and runs usage accrual on a timer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runger/bikeshare/internal/config"
	"github.com/runger/bikeshare/internal/daemon"
	blog "github.com/runger/bikeshare/internal/log"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bikeshared: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paths := config.DefaultPaths()
	cfg, err := config.LoadFromFile(paths.ConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := blog.DefaultConfig()
	logCfg.Level = blog.ParseLevel(cfg.Daemon.LogLevel)
	logger := blog.New(logCfg)

	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	env, err := daemon.Open(cfg, paths, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run the daemon (blocks until shutdown)
	return daemon.Run(ctx, daemon.Options{Env: env, Version: Version})
}
