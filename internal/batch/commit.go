// Package batch commits the write descriptors of a pipeline run to the row
// store with as few calls as possible.
//
// Writes are grouped by table. Row updates for a table go out in a single
// BatchUpdate covering exactly the distinct rows touched, and appends are
// coalesced into a single AppendRows. When a table's batch call fails, that
// table alone falls back to one call per descriptor.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	blog "github.com/runger/bikeshare/internal/log"
	"github.com/runger/bikeshare/internal/metrics"
	"github.com/runger/bikeshare/internal/pipeline"
	"github.com/runger/bikeshare/internal/sheet"
)

// ErrPartialCommit is returned when at least one descriptor failed.
var ErrPartialCommit = errors.New("partial commit")

// Options configures the committer.
type Options struct {
	// Logger is the structured logger (optional, uses slog.Default if nil).
	Logger *slog.Logger
}

// Result is the outcome of one write descriptor, in descriptor order.
type Result struct {
	Write pipeline.Write
	// Fallback is set when the descriptor went out as a single-row call
	// after its table's batch call failed.
	Fallback bool
	Err      error
}

// OK reports whether the descriptor was persisted.
func (r Result) OK() bool { return r.Err == nil }

// Committer writes descriptors to a store. It is safe for concurrent use,
// although runs are already serialized by the pipeline lock.
type Committer struct {
	store  sheet.Store
	logger *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

// New creates a Committer.
func New(store sheet.Store, opts Options) *Committer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{store: store, logger: logger}
}

type tableWrites struct {
	table   string
	updates []int // descriptor indices with a row
	appends []int // descriptor indices to append
}

// Commit persists writes and reports per-descriptor results. The error is
// nil when every descriptor landed and wraps ErrPartialCommit otherwise.
func (c *Committer) Commit(ctx context.Context, writes []pipeline.Write) ([]Result, error) {
	results := make([]Result, len(writes))
	for i, w := range writes {
		results[i].Write = w
	}

	var order []*tableWrites
	byTable := make(map[string]*tableWrites)
	for i, w := range writes {
		tw, ok := byTable[w.Table]
		if !ok {
			tw = &tableWrites{table: w.Table}
			byTable[w.Table] = tw
			order = append(order, tw)
		}
		if w.IsAppend() {
			tw.appends = append(tw.appends, i)
		} else {
			tw.updates = append(tw.updates, i)
		}
	}

	for _, tw := range order {
		if len(tw.updates) > 0 {
			c.commitUpdates(ctx, tw.table, writes, tw.updates, results)
		}
		if len(tw.appends) > 0 {
			c.commitAppends(ctx, tw.table, writes, tw.appends, results)
		}
	}

	var failed []error
	for _, r := range results {
		label := "ok"
		if r.Err != nil {
			label = "error"
			failed = append(failed, fmt.Errorf("%s row %d: %w", r.Write.Table, r.Write.Row, r.Err))
		}
		metrics.BatchWrites.WithLabelValues(r.Write.Table, label).Inc()
	}

	c.mu.Lock()
	c.stats.Commits++
	c.stats.Written += int64(len(results) - len(failed))
	c.stats.Failed += int64(len(failed))
	c.mu.Unlock()

	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %d of %d writes failed: %w",
			ErrPartialCommit, len(failed), len(results), errors.Join(failed...))
	}
	return results, nil
}

// commitUpdates sends the row updates of one table. Descriptors hitting the
// same row are merged, the last one winning.
func (c *Committer) commitUpdates(ctx context.Context, table string, writes []pipeline.Write, idx []int, results []Result) {
	latest := make(map[int]int, len(idx)) // row -> descriptor index
	for _, i := range idx {
		latest[writes[i].Row] = i
	}
	rows := make([]int, 0, len(latest))
	for row := range latest {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	updates := make([]sheet.RowUpdate, len(rows))
	for k, row := range rows {
		updates[k] = sheet.RowUpdate{Row: row, Values: writes[latest[row]].Values}
	}

	err := c.store.BatchUpdate(ctx, table, updates)
	c.countBatch()
	if err == nil {
		return
	}

	blog.LogCommitFallback(c.logger, table, len(rows), err)
	metrics.BatchFallbacks.WithLabelValues(table).Inc()
	c.countFallback()

	rowErr := make(map[int]error, len(rows))
	for _, u := range updates {
		rowErr[u.Row] = c.store.WriteRow(ctx, table, u.Row, u.Values)
	}
	for _, i := range idx {
		results[i].Fallback = true
		results[i].Err = rowErr[writes[i].Row]
	}
}

// commitAppends sends the appends of one table as one contiguous range.
func (c *Committer) commitAppends(ctx context.Context, table string, writes []pipeline.Write, idx []int, results []Result) {
	rows := make([][]any, len(idx))
	for k, i := range idx {
		rows[k] = writes[i].Values
	}

	err := c.store.AppendRows(ctx, table, rows)
	c.countBatch()
	if err == nil {
		return
	}

	blog.LogCommitFallback(c.logger, table, len(rows), err)
	metrics.BatchFallbacks.WithLabelValues(table).Inc()
	c.countFallback()

	for _, i := range idx {
		results[i].Fallback = true
		results[i].Err = c.store.AppendRows(ctx, table, [][]any{writes[i].Values})
	}
}

func (c *Committer) countBatch() {
	c.mu.Lock()
	c.stats.BatchCalls++
	c.mu.Unlock()
}

func (c *Committer) countFallback() {
	c.mu.Lock()
	c.stats.Fallbacks++
	c.mu.Unlock()
}

// Stats reports committer activity.
type Stats struct {
	Commits    int64
	BatchCalls int64
	Fallbacks  int64
	Written    int64
	Failed     int64
}

// Stats returns the current committer statistics.
func (c *Committer) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Failed returns the results that did not land.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// FailedTables returns the distinct tables with a failed descriptor.
func FailedTables(results []Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range Failed(results) {
		if !seen[r.Write.Table] {
			seen[r.Write.Table] = true
			out = append(out, r.Write.Table)
		}
	}
	return out
}
