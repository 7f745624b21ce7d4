// Package orchestrator runs events through the pipeline under the global
// lock: acquire, load, validate, mutate, commit, notify, release.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/runger/bikeshare/internal/batch"
	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/lock"
	blog "github.com/runger/bikeshare/internal/log"
	"github.com/runger/bikeshare/internal/metrics"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/pipeline"
	"github.com/runger/bikeshare/internal/settings"
	"github.com/runger/bikeshare/internal/sheet"
	"github.com/runger/bikeshare/internal/state"
)

// Phase is a state of one run.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseLockAcquiring Phase = "lock_acquiring"
	PhaseLoading       Phase = "loading"
	PhaseValidating    Phase = "validating"
	PhaseMutating      Phase = "mutating"
	PhaseCommitting    Phase = "committing"
	PhaseNotifying     Phase = "notifying"
	PhaseReleased      Phase = "released"
	PhaseFailed        Phase = "failed"
	PhaseLockTimeout   Phase = "lock_timeout"
)

// Source-cell colors applied after a run.
const (
	ColorSuccess = "#b7e1cd"
	ColorFailure = "#f4c7c3"
)

// Options configures an Orchestrator.
type Options struct {
	// Locker serializes runs. Defaults to an in-process lock.Mutex.
	Locker lock.Locker

	// LockTimeout bounds the lock wait. Defaults to lock.DefaultTimeout.
	LockTimeout time.Duration

	// Router delivers intents. Defaults to DefaultRouter.
	Router *notify.Router

	// Logger is the structured logger (optional, uses slog.Default if nil).
	Logger *slog.Logger

	// Now is the clock used for submission defaults and accrual.
	Now func() time.Time

	// OnPhase, when set, is called as a run enters each phase.
	OnPhase func(runID string, p Phase)
}

// Orchestrator drives pipeline runs. It is safe for concurrent use; runs
// are serialized by the lock.
type Orchestrator struct {
	store     sheet.Store
	settings  *settings.Cache
	loader    *state.Loader
	committer *batch.Committer
	locker    lock.Locker
	timeout   time.Duration
	router    *notify.Router
	logger    *slog.Logger
	now       func() time.Time
	onPhase   func(string, Phase)
}

// DefaultRouter sends user, admin and developer intents to a log sink and
// sheet notes to the store.
func DefaultRouter(store sheet.Store, logger *slog.Logger) *notify.Router {
	logSink := notify.LogSink{Logger: logger}
	return notify.NewRouter(logger).
		Route(notify.ChannelUser, logSink).
		Route(notify.ChannelAdmin, logSink).
		Route(notify.ChannelDeveloper, logSink).
		Route(notify.ChannelSheetNote, notify.SheetNoteSink{Store: store})
}

// New creates an Orchestrator over store, reading settings through cache.
func New(store sheet.Store, cache *settings.Cache, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewMutex()
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = lock.DefaultTimeout
	}
	router := opts.Router
	if router == nil {
		router = DefaultRouter(store, logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:     store,
		settings:  cache,
		loader:    state.NewLoader(store, logger),
		committer: batch.New(store, batch.Options{Logger: logger}),
		locker:    locker,
		timeout:   timeout,
		router:    router,
		logger:    logger,
		now:       now,
		onPhase:   opts.OnPhase,
	}
}

// Committer exposes the batch committer, mainly for its statistics.
func (o *Orchestrator) Committer() *batch.Committer { return o.committer }

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Operation domain.Operation
	EventKey  string

	// Phase is terminal: PhaseReleased, PhaseFailed or PhaseLockTimeout.
	Phase Phase
	// Trace lists every phase entered, in order.
	Trace []Phase

	// Intent is the single notification produced by the run.
	Intent notify.Intent

	Writes []pipeline.Write
	Commit []batch.Result

	// Duration is wall time from the start of Handle to the terminal phase.
	Duration time.Duration

	// Err is the internal cause of a failure. It is never shown to users.
	Err error
}

// OK reports whether the run committed.
func (r *Result) OK() bool { return r.Phase == PhaseReleased && r.Err == nil }

// Code is the code of the run's intent.
func (r *Result) Code() string { return r.Intent.Code }

type run struct {
	o      *Orchestrator
	res    *Result
	logger *slog.Logger
	start  time.Time
}

func (r *run) enter(p Phase) {
	r.res.Phase = p
	r.res.Trace = append(r.res.Trace, p)
	if r.o.onPhase != nil {
		r.o.onPhase(r.res.RunID, p)
	}
}

// Handle runs one event to a terminal phase and returns the result. Once
// the lock is held the run ignores cancellation of ctx and finishes.
func (o *Orchestrator) Handle(ctx context.Context, raw domain.RawEvent) *Result {
	r := &run{
		o:     o,
		res:   &Result{RunID: uuid.NewString()},
		start: time.Now(),
	}
	r.logger = o.logger.With("run_id", r.res.RunID)
	r.enter(PhaseIdle)

	ev, err := domain.Parse(raw, o.now())
	if err != nil {
		r.res.Operation = domain.Operation(raw.Operation)
		r.fail(ctx, nil, notify.New(notify.CodeUnknownOperation, map[string]any{"operation": raw.Operation}), err)
		return r.res
	}
	r.res.Operation = ev.Op()
	r.res.EventKey = ev.Key()
	r.logger = r.logger.With("event_key", r.res.EventKey, "operation", ev.Op())

	r.enter(PhaseLockAcquiring)
	waitStart := time.Now()
	release, err := o.locker.Acquire(ctx, o.timeout)
	waited := time.Since(waitStart)
	metrics.LockWait.Observe(waited.Seconds())
	if err != nil {
		r.lockFailed(ctx, ev, waited, err)
		return r.res
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	r.enter(PhaseLoading)
	snap, err := o.settings.Snapshot(ctx, false)
	if err != nil {
		r.fail(ctx, nil, notify.New(notify.CodeConfigLoad, nil), err)
		r.markSource(ctx, ev, false)
		return r.res
	}
	st, err := o.loader.Load(ctx, state.TablesFrom(snap))
	if err != nil {
		r.fail(ctx, snap, notify.New(notify.CodeStateLoad, nil), err)
		r.markSource(ctx, ev, false)
		return r.res
	}

	pc := pipeline.NewContext(ev, st, snap)
	validators, transaction := pipeline.Chains(ev.Op())

	r.enter(PhaseValidating)
	if step, err := validators.Run(pc); err != nil {
		r.logger.Info("validation failed", "step", step, "code", pipeline.ErrorCode(err))
		r.fail(ctx, snap, failureIntent(ev, err, notify.CodeMutation), err)
		r.markSource(ctx, ev, false)
		return r.res
	}

	r.enter(PhaseMutating)
	if step, err := transaction.Run(pc); err != nil {
		r.logger.Error("business step failed", "step", step, "error", err)
		r.fail(ctx, snap, failureIntent(ev, err, notify.CodeMutation), err)
		r.markSource(ctx, ev, false)
		return r.res
	}
	r.res.Writes = pc.Writes

	r.enter(PhaseCommitting)
	results, err := o.committer.Commit(ctx, pc.Writes)
	r.res.Commit = results
	if err != nil {
		failedTables := batch.FailedTables(results)
		if critical := withoutTable(failedTables, st.Tables.Log); len(critical) > 0 {
			r.logger.Error("commit failed", "tables", failedTables, "error", err)
			r.fail(ctx, snap, notify.New(notify.CodeCommit, map[string]any{
				"operation": string(ev.Op()),
				"email":     ev.Submitter(),
				"bike":      pc.Bike.Name,
				"tables":    critical,
				"failed":    len(batch.Failed(results)),
			}), err)
			r.markSource(ctx, ev, false)
			return r.res
		}
		r.logger.Warn("log append failed; duplicate detection will miss this event", "error", err)
	}

	intent := notify.New(notify.CodeMutation, nil)
	if len(pc.Intents) > 0 {
		intent = pc.Intents[0]
	}
	r.res.Intent = intent
	r.enter(PhaseNotifying)
	r.dispatch(ctx, snap, intent)
	r.markSource(ctx, ev, true)

	r.enter(PhaseReleased)
	r.finish()
	return r.res
}

// lockFailed ends a run that never held the lock. No state was touched.
func (r *run) lockFailed(ctx context.Context, ev domain.Event, waited time.Duration, err error) {
	r.res.Err = err
	blog.LogLockTimeout(r.logger, string(ev.Op()), waited)
	r.res.Intent = notify.New(notify.CodeLockTimeout, map[string]any{
		"operation": string(ev.Op()),
		"email":     ev.Submitter(),
		"bike":      ev.BikeInput(),
		"waited_ms": waited.Milliseconds(),
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		r.enter(PhaseLockTimeout)
	} else {
		r.enter(PhaseFailed)
	}
	r.dispatch(context.WithoutCancel(ctx), r.cachedSettings(), r.res.Intent)
	r.finish()
}

func (r *run) fail(ctx context.Context, snap *settings.Snapshot, intent notify.Intent, err error) {
	r.res.Err = err
	r.res.Intent = intent
	r.enter(PhaseFailed)
	if snap == nil {
		snap = r.cachedSettings()
	}
	r.dispatch(ctx, snap, intent)
	r.finish()
}

// cachedSettings returns the cached snapshot without loading. It may be nil.
func (r *run) cachedSettings() *settings.Snapshot {
	if !r.o.settings.Cached() {
		return nil
	}
	snap, _ := r.o.settings.Snapshot(context.Background(), false)
	return snap
}

// dispatch resolves the intent's message into the result and delivers it.
func (r *run) dispatch(ctx context.Context, snap *settings.Snapshot, intent notify.Intent) {
	if intent.Message == "" {
		if m, ok := snap.Message(intent.Code); ok {
			intent.Message = m
		}
	}
	r.res.Intent = intent
	if err := r.o.router.Dispatch(ctx, snap, intent); err != nil {
		r.logger.Warn("notification not delivered", "code", intent.Code, "error", err)
	}
}

func (r *run) markSource(ctx context.Context, ev domain.Event, ok bool) {
	ref := ev.Source()
	if ref == "" {
		return
	}
	color := ColorFailure
	if ok {
		color = ColorSuccess
	}
	if err := r.o.store.MarkCell(ctx, ref, sheet.Mark{Color: color}); err != nil {
		r.logger.Warn("source mark failed", "ref", ref, "error", err)
	}
}

func (r *run) finish() {
	op := string(r.res.Operation)
	r.res.Duration = time.Since(r.start)
	metrics.PipelineRuns.WithLabelValues(op, string(r.res.Phase)).Inc()
	metrics.PipelineDuration.WithLabelValues(op).Observe(r.res.Duration.Seconds())
	r.logger.Info("pipeline run finished",
		"phase", r.res.Phase,
		"code", r.res.Intent.Code,
		"writes", len(r.res.Writes),
		"duration_ms", r.res.Duration.Milliseconds(),
	)
}

// failureIntent maps a step error to its intent. Validation fields are
// passed through; system errors only expose their code.
func failureIntent(ev domain.Event, err error, fallback string) notify.Intent {
	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		fields := make(map[string]any, len(ve.Fields)+1)
		for k, v := range ve.Fields {
			fields[k] = v
		}
		if _, ok := fields["email"]; !ok {
			fields["email"] = ev.Submitter()
		}
		return notify.New(ve.Code, fields)
	}
	code := pipeline.ErrorCode(err)
	if code == "" {
		code = fallback
	}
	return notify.New(code, map[string]any{
		"operation": string(ev.Op()),
		"email":     ev.Submitter(),
		"bike":      ev.BikeInput(),
	})
}

func withoutTable(tables []string, drop string) []string {
	var out []string
	for _, t := range tables {
		if t != drop {
			out = append(out, t)
		}
	}
	return out
}

// acquire takes the lock for maintenance work and loads fresh state.
func (o *Orchestrator) acquire(ctx context.Context) (lock.Release, *settings.Snapshot, *state.State, error) {
	waitStart := time.Now()
	release, err := o.locker.Acquire(ctx, o.timeout)
	metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		return nil, nil, nil, err
	}
	snap, err := o.settings.Snapshot(ctx, false)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	st, err := o.loader.Load(ctx, state.TablesFrom(snap))
	if err != nil {
		release()
		return nil, nil, nil, fmt.Errorf("load state: %w", err)
	}
	return release, snap, st, nil
}
