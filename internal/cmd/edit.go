package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/daemon"
	"github.com/runger/bikeshare/internal/orchestrator"
	"github.com/runger/bikeshare/internal/sheet"
)

var editLocal bool

var editCmd = &cobra.Command{
	Use:   "edit <table> <row> <column> <value>",
	Short: "Edit a table cell and reconcile the change",
	Long: `Write a value into one cell, then reconcile it as a manual edit.

Row and column are 1-based; row 1 is the header. Setting a bike's
maintenance_status (column 4) to "ok" clears its issue note. Setting its
availability (column 5) to "available" settles the checkout by hand. Edits
to a settings table force the next run to reload settings.

Examples:
  bikeshare edit Bikes 2 5 available
  bikeshare edit Thresholds 3 2 0.25`,
	GroupID: groupPipeline,
	Args:    cobra.ExactArgs(4),
	RunE:    runEdit,
}

func init() {
	editCmd.Flags().BoolVar(&editLocal, "local", false, "reconcile in this process even when the daemon is up")
}

func runEdit(cmd *cobra.Command, args []string) error {
	e, err := parseEdit(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := applyCell(ctx, env.Store, e); err != nil {
		return err
	}

	action, err := reconcile(ctx, env, e)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", keyStyle.Render(sheet.CellRef(e.Table, e.Row, e.Column)), action)
	return nil
}

func parseEdit(args []string) (orchestrator.Edit, error) {
	row, err := strconv.Atoi(args[1])
	if err != nil || row < 1 {
		return orchestrator.Edit{}, fmt.Errorf("invalid row %q", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil || col < 1 {
		return orchestrator.Edit{}, fmt.Errorf("invalid column %q", args[2])
	}
	if row == sheet.HeaderRow {
		return orchestrator.Edit{}, fmt.Errorf("row %d is the header", row)
	}
	return orchestrator.Edit{Table: args[0], Row: row, Column: col, Value: args[3]}, nil
}

// applyCell writes e.Value into its cell. A row one past the end is
// appended.
func applyCell(ctx context.Context, store sheet.Store, e orchestrator.Edit) error {
	rows, err := store.GetAllRows(ctx, e.Table)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", e.Table, err)
	}

	var values []any
	appending := e.Row == len(rows)+1
	switch {
	case appending:
	case e.Row > len(rows):
		return fmt.Errorf("%s has %d rows", e.Table, len(rows))
	default:
		values = append(values, rows[e.Row-1]...)
	}
	for len(values) < e.Column {
		values = append(values, "")
	}
	values[e.Column-1] = e.Value

	if appending {
		err = store.AppendRows(ctx, e.Table, [][]any{values})
	} else {
		err = store.WriteRow(ctx, e.Table, e.Row, values)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", sheet.CellRef(e.Table, e.Row, e.Column), err)
	}
	return nil
}

// reconcile hands the edit to the daemon when it answers, so its settings
// cache sees the change, and runs it in process otherwise.
func reconcile(ctx context.Context, env *daemon.Env, e orchestrator.Edit) (orchestrator.EditAction, error) {
	if !editLocal {
		if c := dialDaemon(ctx, env.Config, env.Paths); c != nil {
			defer c.Close()
			return c.Edit(ctx, e)
		}
	}
	res, err := env.Orchestrator.HandleEdit(ctx, e)
	if err != nil {
		return "", err
	}
	return res.Action, nil
}
