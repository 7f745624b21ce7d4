// Package daemon wires the pipeline to its store and runs the long-lived
// bikeshared process: the intake server, the accrual ticker and the
// metrics endpoint.
package daemon

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/runger/bikeshare/internal/config"
	"github.com/runger/bikeshare/internal/lock"
	"github.com/runger/bikeshare/internal/orchestrator"
	"github.com/runger/bikeshare/internal/settings"
	"github.com/runger/bikeshare/internal/sheet"
)

// ErrNoSQLite is returned by operations that need the SQLite driver.
var ErrNoSQLite = errors.New("store driver is not sqlite")

// Env is one wired pipeline instance.
type Env struct {
	Config       *config.Config
	Paths        *config.Paths
	Store        sheet.Store
	Settings     *settings.Cache
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	sqlite *sheet.SQLiteStore
}

// Open builds an Env from cfg. The caller must Close it.
func Open(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := &Env{Config: cfg, Paths: paths, Logger: logger}

	switch cfg.Store.Driver {
	case "memory":
		env.Store = sheet.NewMemoryStore()
	case "sqlite", "":
		s, err := sheet.OpenSQLite(cfg.DBPath(paths))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		env.sqlite = s
		env.Store = s
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}

	env.Settings = settings.New(env.Store, settings.Options{
		Sections: cfg.SettingsSections(),
		Logger:   logger,
	})
	env.Orchestrator = orchestrator.New(env.Store, env.Settings, orchestrator.Options{
		Locker:      newLocker(cfg, paths),
		LockTimeout: cfg.LockTimeout(),
		Logger:      logger,
	})
	return env, nil
}

func newLocker(cfg *config.Config, paths *config.Paths) lock.Locker {
	if cfg.Lock.Mode == "file" {
		return lock.NewFileLock(paths.LockFile(), cfg.LockRetryInterval())
	}
	return lock.NewMutex()
}

// SQLite returns the SQLite store when that driver is in use.
func (e *Env) SQLite() (*sheet.SQLiteStore, error) {
	if e.sqlite == nil {
		return nil, ErrNoSQLite
	}
	return e.sqlite, nil
}

// Close releases the store.
func (e *Env) Close() error {
	if e.sqlite != nil {
		return e.sqlite.Close()
	}
	return nil
}
