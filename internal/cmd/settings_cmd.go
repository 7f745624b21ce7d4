package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/daemon"
	"github.com/runger/bikeshare/internal/sheet"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Short:   "Inspect pipeline settings",
	GroupID: groupAdmin,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show [section]",
	Short: "Print the settings loaded from the settings tables",
	Long: `Load the settings tables and print their values.

Examples:
  bikeshare settings show
  bikeshare settings show thresholds`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettingsShow,
}

var settingsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running daemon to reload settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReload,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsReloadCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.Settings.Snapshot(cmd.Context(), true)
	if err != nil {
		return err
	}

	sections := snap.Sections()
	sort.Strings(sections)
	if len(args) == 1 {
		want := strings.ToLower(args[0])
		found := false
		for _, s := range sections {
			if s == want {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown settings section: %s", args[0])
		}
		sections = []string{want}
	}

	w := cmd.OutOrStdout()
	for _, section := range sections {
		fmt.Fprintf(w, "%s\n", headStyle.Render(section))
		values := snap.Values(section)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", keyStyle.Render(k), formatValue(values[k]))
		}
		fmt.Fprintln(w)
	}
	if missing := snap.Missing(); len(missing) > 0 {
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("Missing:"), strings.Join(missing, ", "))
	}
	return nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case bool:
		return formatBool(t)
	case []string:
		return strings.Join(t, ", ")
	}
	if s := sheet.ToString(v); s != "" {
		return s
	}
	return dimStyle.Render("(not set)")
}

func runSettingsReload(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	pid, held, err := daemon.ReadHeldPID(paths.PIDFile())
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("daemon is not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal daemon: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reload requested (pid %d)\n", pid)
	return nil
}
