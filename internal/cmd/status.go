package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/config"
	"github.com/runger/bikeshare/internal/daemon"
	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/state"
)

// maxNameWidth bounds the bike and holder columns.
const maxNameWidth = 24

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and fleet status",
	Long: `Show the current status of bikeshare, including:
- Daemon status (running/stopped)
- Configuration file location
- Database location
- Every bike with its availability and holder

Examples:
  bikeshare status`,
	GroupID: groupAdmin,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "%s\n", titleStyle.Render("bikeshare Status"))
	fmt.Fprintln(w, strings.Repeat("-", 40))

	fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Daemon:"))
	pid, held, _ := daemon.ReadHeldPID(paths.PIDFile())
	if held {
		fmt.Fprintf(w, "  Status:   %s\n", okStyle.Render("running"))
		fmt.Fprintf(w, "  PID:      %d\n", pid)
		healthy := false
		if c := dialDaemon(cmd.Context(), cfg, paths); c != nil {
			healthy = c.Healthy(cmd.Context())
			c.Close()
		}
		fmt.Fprintf(w, "  Serving:  %s\n", formatBool(healthy))
	} else {
		fmt.Fprintf(w, "  Status:   %s\n", dimStyle.Render("not running"))
	}
	fmt.Fprintf(w, "  Socket:   %s\n", cfg.SocketPath(paths))

	fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Configuration:"))
	if _, err := os.Stat(paths.ConfigFile()); err == nil {
		fmt.Fprintf(w, "  File:     %s\n", paths.ConfigFile())
	} else {
		fmt.Fprintf(w, "  File:     %s (not found, using defaults)\n", paths.ConfigFile())
	}
	fmt.Fprintf(w, "  Lock:     %s (%s timeout)\n", cfg.Lock.Mode, cfg.LockTimeout())

	fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Storage:"))
	fmt.Fprintf(w, "  Driver:   %s\n", cfg.Store.Driver)
	dbFile := cfg.DBPath(paths)
	info, err := os.Stat(dbFile)
	if err != nil {
		fmt.Fprintf(w, "  Database: %s (not created)\n", dbFile)
		return nil
	}
	fmt.Fprintf(w, "  Database: %s (%s)\n", dbFile, formatSize(info.Size()))

	return printFleet(cmd.Context(), w, cfg, paths)
}

func printFleet(ctx context.Context, w io.Writer, cfg *config.Config, paths *config.Paths) error {
	env, err := daemon.Open(cfg, paths, cliLogger())
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.Settings.Snapshot(ctx, false)
	if err != nil {
		fmt.Fprintf(w, "\n%s %v\n", warnStyle.Render("Settings unavailable:"), err)
		return nil
	}
	st, err := state.NewLoader(env.Store, env.Logger).Load(ctx, state.TablesFrom(snap))
	if err != nil {
		fmt.Fprintf(w, "\n%s %v\n", warnStyle.Render("Fleet unavailable:"), err)
		return nil
	}

	fmt.Fprintf(w, "\n%s system %s, %d bikes, %d users, %d events\n",
		titleStyle.Render("Fleet:"), formatActive(snap.SystemActive()), len(st.Bikes), len(st.Users), len(st.EventKeys))
	if len(st.Bikes) == 0 {
		return nil
	}
	fmt.Fprintln(w, fleetTable(st.Bikes))
	return nil
}

func formatActive(active bool) string {
	if active {
		return okStyle.Render("active")
	}
	return warnStyle.Render("inactive")
}

func fleetTable(bikes []domain.Bike) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("BIKE", "SIZE", "STATUS", "MAINTENANCE", "HOLDER", "TIMER H", "TOTAL H").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, b := range bikes {
		status := okStyle.Render(b.Availability)
		holder := ""
		if b.IsCheckedOut() {
			status = warnStyle.Render(b.Availability)
			holder = b.Holder()
		}
		maintenance := b.MaintenanceStatus
		if maintenance == domain.HasIssue {
			maintenance = errStyle.Render(maintenance)
		}
		t.Row(
			runewidth.Truncate(b.Name, maxNameWidth, "…"),
			b.Size,
			status,
			maintenance,
			runewidth.Truncate(holder, maxNameWidth, "…"),
			fmt.Sprintf("%.2f", b.UsageTimerHours),
			fmt.Sprintf("%.2f", b.TotalUsageHours),
		)
	}
	return t.Render()
}
