// Package settings caches the business configuration read from the settings
// tables. A snapshot is loaded lazily, shared process-wide, and replaced only
// on explicit refresh or invalidation; readers between invalidations may see
// a stale snapshot.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/runger/bikeshare/internal/metrics"
	"github.com/runger/bikeshare/internal/sheet"
)

// ConfigLoadError reports that the settings could not be loaded well enough
// to run the pipeline.
type ConfigLoadError struct {
	Reason  string
	Missing []string
	Err     error
}

func (e *ConfigLoadError) Error() string {
	var b strings.Builder
	b.WriteString("settings load failed: ")
	b.WriteString(e.Reason)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// Options configures a Cache.
type Options struct {
	// Sections overrides DefaultSections.
	Sections []Section

	// Logger is the structured logger (optional, uses slog.Default if nil).
	Logger *slog.Logger

	// Now overrides the clock used to stamp snapshots.
	Now func() time.Time
}

// Cache holds the current settings snapshot.
// It is safe for concurrent use.
type Cache struct {
	src      sheet.Reader
	sections []Section
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	snap *Snapshot
}

// New creates a Cache reading from src.
func New(src sheet.Reader, opts Options) *Cache {
	sections := opts.Sections
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{src: src, sections: sections, logger: logger, now: now}
}

// Snapshot returns the cached snapshot, loading it on a miss or when
// forceRefresh is set. A failed forced refresh drops the cached snapshot so
// the next call retries instead of serving data the caller asked to replace.
func (c *Cache) Snapshot(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && !forceRefresh {
		return c.snap, nil
	}

	snap, err := c.load(ctx)
	if err != nil {
		c.snap = nil
		metrics.SettingsReloads.WithLabelValues("error").Inc()
		c.logger.Error("settings load failed", "force", forceRefresh, "error", err)
		return nil, err
	}

	c.snap = snap
	metrics.SettingsReloads.WithLabelValues("ok").Inc()
	c.logger.Info("settings loaded",
		"force", forceRefresh,
		"sections", len(snap.sections),
		"missing", snap.missing,
	)
	return snap, nil
}

// Refresh forces a reload.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.Snapshot(ctx, true)
}

// Invalidate drops the cached snapshot; the next Snapshot call reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
	c.logger.Debug("settings invalidated")
}

// Cached reports whether a snapshot is currently held.
func (c *Cache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap != nil
}

// IsSettingsTable reports whether table backs one of the sections.
func (c *Cache) IsSettingsTable(table string) bool {
	for _, s := range c.sections {
		if s.Table == table {
			return true
		}
	}
	return false
}

func (c *Cache) load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		sections: make(map[string]map[string]any, len(c.sections)),
		loadedAt: c.now(),
	}
	var missingRequired []string

	for _, sec := range c.sections {
		rows, err := c.src.GetAllRows(ctx, sec.Table)
		if errors.Is(err, sheet.ErrTableNotFound) {
			snap.missing = append(snap.missing, sec.Name)
			if sec.Required {
				missingRequired = append(missingRequired, sec.Name)
			}
			continue
		}
		if err != nil {
			return nil, &ConfigLoadError{Reason: "reading " + sec.Table, Err: err}
		}

		values := make(map[string]any, len(rows))
		for i, row := range rows {
			if i < sheet.HeaderRow || len(row) == 0 {
				continue
			}
			key := normalizeKey(row[0])
			if key == "" {
				continue
			}
			var cell any
			if len(row) > 1 {
				cell = row[1]
			}
			v, err := convert(sec.Type, cell)
			if err != nil {
				c.logger.Warn("settings value skipped",
					"section", sec.Name, "key", key, "row", i+1, "error", err)
				continue
			}
			values[key] = v
		}
		snap.sections[sec.Name] = values
	}

	if len(snap.sections) == 0 {
		return nil, &ConfigLoadError{Reason: "no sections loaded", Missing: snap.missing}
	}
	if len(missingRequired) > 0 {
		return nil, &ConfigLoadError{Reason: "required section absent", Missing: missingRequired}
	}
	return snap, nil
}
