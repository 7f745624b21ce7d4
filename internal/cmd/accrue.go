package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var accrueCmd = &cobra.Command{
	Use:   "accrue",
	Short: "Run one usage accrual pass now",
	Long: `Refresh the usage timer of every checked-out bike and report bikes
held past the maximum checkout hours.

The daemon runs this on a timer; this command runs one pass in process.

Examples:
  bikeshare accrue`,
	GroupID: groupPipeline,
	Args:    cobra.NoArgs,
	RunE:    runAccrue,
}

func runAccrue(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.Orchestrator.Accrue(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s\n", titleStyle.Render("Accrual"))
	fmt.Fprintf(w, "  %s %d\n", keyStyle.Render("checked out:"), res.CheckedOut)
	fmt.Fprintf(w, "  %s %d\n", keyStyle.Render("updated:    "), res.Updated)
	if len(res.Overdue) > 0 {
		fmt.Fprintf(w, "  %s %s\n", keyStyle.Render("overdue:    "), warnStyle.Render(strings.Join(res.Overdue, ", ")))
	}
	return nil
}
