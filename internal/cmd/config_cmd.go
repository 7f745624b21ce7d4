package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set bikeshare configuration values.

Without arguments, lists all configuration keys.
With one argument, shows the value of that key.
With two arguments, sets the key to the value.

Configuration is stored in ~/.config/bikeshare/config.yaml (XDG compliant).

Keys are in the format: section.key
Sections: store, lock, daemon, sheets

Examples:
  bikeshare config                         # List all keys
  bikeshare config lock.timeout_ms         # Get the lock timeout
  bikeshare config lock.timeout_ms 10000   # Wait at most 10s for the lock
  bikeshare config sheets.thresholds Limits`,
	GroupID: groupAdmin,
	Args:    cobra.MaximumNArgs(2),
	RunE:    runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	switch len(args) {
	case 0:
		return listConfig(w, cfg, paths)
	case 1:
		return getConfig(w, cfg, args[0])
	default:
		return setConfig(w, cfg, paths, args[0], args[1])
	}
}

func listConfig(w io.Writer, cfg *config.Config, paths *config.Paths) error {
	fmt.Fprintf(w, "%s\n", titleStyle.Render("Configuration Keys"))
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintln(w)

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}
		if value == "" {
			value = dimStyle.Render("(not set)")
		}
		fmt.Fprintf(w, "  %s = %s\n", keyStyle.Render(key), value)
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(w, "\n%s Failed to retrieve keys: %s\n", warnStyle.Render("Warning:"), strings.Join(failedKeys, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Config file: %s\n", paths.ConfigFile())
	return nil
}

func getConfig(w io.Writer, cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Fprintln(w, dimStyle.Render("(not set)"))
	} else {
		fmt.Fprintln(w, value)
	}
	return nil
}

func setConfig(w io.Writer, cfg *config.Config, paths *config.Paths, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := cfg.SaveToFile(paths.ConfigFile()); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s = %s\n", keyStyle.Render(key), value)
	fmt.Fprintf(w, "Saved to: %s\n", paths.ConfigFile())
	return nil
}
