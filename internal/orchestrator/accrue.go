package orchestrator

import (
	"context"
	"fmt"

	"github.com/runger/bikeshare/internal/batch"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/pipeline"
)

// AccrualResult reports one accrual pass.
type AccrualResult struct {
	CheckedOut int
	Updated    int
	Overdue    []string
	Commit     []batch.Result
}

// Accrue refreshes the usage timer of every checked-out bike under the
// global lock, persisting only rows whose timer changed, and raises an
// admin notice for each bike held past the maximum checkout hours.
func (o *Orchestrator) Accrue(ctx context.Context) (*AccrualResult, error) {
	release, snap, st, err := o.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("accrue: %w", err)
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	now := o.now().UTC()
	maxHours := snap.MaxCheckoutHours()
	res := &AccrualResult{}
	var writes []pipeline.Write
	var intents []notify.Intent

	for _, b := range st.Bikes {
		if !b.IsCheckedOut() || b.LastCheckout.IsZero() {
			continue
		}
		res.CheckedOut++

		hours := 0.0
		if now.After(b.LastCheckout) {
			hours = pipeline.RoundHours(now.Sub(b.LastCheckout).Hours())
		}
		if hours != b.UsageTimerHours {
			b.UsageTimerHours = hours
			values, err := b.Values()
			if err != nil {
				return nil, fmt.Errorf("accrue %s: %w", b.Name, err)
			}
			writes = append(writes, pipeline.Write{Table: st.Tables.Bikes, Row: b.Row, Values: values})
		}
		if hours > maxHours {
			res.Overdue = append(res.Overdue, b.Name)
			intents = append(intents, notify.New(notify.CodeOverdue, map[string]any{
				"bike":        b.Name,
				"holder":      b.Holder(),
				"hours":       hours,
				"max_hours":   maxHours,
				"checked_out": b.LastCheckout,
			}))
		}
	}

	if len(writes) > 0 {
		results, err := o.committer.Commit(ctx, writes)
		res.Commit = results
		res.Updated = len(writes) - len(batch.Failed(results))
		if err != nil {
			o.logger.Error("accrual commit failed", "error", err)
			return res, fmt.Errorf("accrue: %w", err)
		}
	}

	if len(intents) > 0 {
		if err := o.router.Dispatch(ctx, snap, intents...); err != nil {
			o.logger.Warn("overdue notices not delivered", "error", err)
		}
	}
	o.logger.Info("accrual finished",
		"checked_out", res.CheckedOut,
		"updated", res.Updated,
		"overdue", len(res.Overdue),
	)
	return res, nil
}
