package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/runger/bikeshare/internal/batch"
	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/pipeline"
	"github.com/runger/bikeshare/internal/sheet"
	"github.com/runger/bikeshare/internal/state"
)

// Edit is a manual change made directly in a table. Row and Column are
// 1-based, matching sheet.CellRef.
type Edit struct {
	Table  string
	Row    int
	Column int
	Value  any
}

// EditAction names what HandleEdit did.
type EditAction string

const (
	EditIgnored             EditAction = "ignored"
	EditSettingsInvalidated EditAction = "settings_invalidated"
	EditIssueCleared        EditAction = "issue_cleared"
	EditManualReturn        EditAction = "manual_return"
)

// EditResult reports the reconciliation of one manual edit.
type EditResult struct {
	Action EditAction
	Commit []batch.Result
}

// HandleEdit reconciles a manual edit. Settings edits only invalidate the
// cache. Bike edits run under the same lock as pipeline runs so they never
// race an event on the same row.
func (o *Orchestrator) HandleEdit(ctx context.Context, e Edit) (*EditResult, error) {
	if o.settings.IsSettingsTable(e.Table) {
		o.settings.Invalidate()
		return &EditResult{Action: EditSettingsInvalidated}, nil
	}

	release, snap, st, err := o.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	logger := o.logger.With("table", e.Table, "row", e.Row, "column", e.Column)
	if e.Table != st.Tables.Bikes {
		return &EditResult{Action: EditIgnored}, nil
	}
	idx := st.BikeByRow(e.Row)
	if idx < 0 {
		return &EditResult{Action: EditIgnored}, nil
	}
	bike := st.Bikes[idx]
	value := strings.ToLower(strings.TrimSpace(sheet.ToString(e.Value)))

	switch {
	case e.Column == domain.BikeColMaintenance+1 && value == domain.MaintenanceOK:
		intent := notify.New(notify.CodeIssueCleared, map[string]any{
			notify.FieldRef:   sheet.CellRef(st.Tables.Bikes, bike.Row, domain.BikeColMaintenance+1),
			notify.FieldClear: true,
			"bike":            bike.Name,
		})
		if err := o.router.Dispatch(ctx, snap, intent); err != nil {
			return nil, fmt.Errorf("edit: clear issue note: %w", err)
		}
		logger.Info("issue note cleared", "bike", bike.Name)
		return &EditResult{Action: EditIssueCleared}, nil

	case e.Column == domain.BikeColAvailability+1 && value == domain.Available:
		return o.manualReturn(ctx, st, bike)
	}
	return &EditResult{Action: EditIgnored}, nil
}

// manualReturn settles a bike an operator marked available by hand: the
// timer stops and the holder no longer counts as having an unreturned bike.
func (o *Orchestrator) manualReturn(ctx context.Context, st *state.State, bike domain.Bike) (*EditResult, error) {
	var writes []pipeline.Write

	holder := bike.RecentUsers.Latest()
	if ui := st.UserIndex(holder); ui >= 0 {
		u := st.Users[ui]
		if u.HasUnreturned && strings.EqualFold(strings.TrimSpace(u.LastCheckoutName), strings.TrimSpace(bike.Name)) {
			u.HasUnreturned = false
			values, err := u.Values()
			if err != nil {
				return nil, fmt.Errorf("edit: %w", err)
			}
			writes = append(writes, pipeline.Write{Table: st.Tables.Users, Row: u.Row, Values: values})
		}
	}

	if len(writes) == 0 && bike.UsageTimerHours == 0 {
		return &EditResult{Action: EditIgnored}, nil
	}

	bike.Availability = domain.Available
	bike.UsageTimerHours = 0
	values, err := bike.Values()
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	writes = append([]pipeline.Write{{Table: st.Tables.Bikes, Row: bike.Row, Values: values}}, writes...)

	results, err := o.committer.Commit(ctx, writes)
	if err != nil {
		return &EditResult{Action: EditManualReturn, Commit: results}, fmt.Errorf("edit: %w", err)
	}
	o.logger.Info("manual return reconciled", "bike", bike.Name, "holder", holder)
	return &EditResult{Action: EditManualReturn, Commit: results}, nil
}
