package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/config"
	"github.com/runger/bikeshare/internal/daemon"
	blog "github.com/runger/bikeshare/internal/log"
)

const (
	groupPipeline = "pipeline"
	groupAdmin    = "admin"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "bikeshare",
	Short: "bike checkout and return pipeline",
	Long: `bikeshare - bike checkout and return pipeline
  - submit checkout and return form responses
  - reconcile manual table edits
  - inspect fleet status and settings`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyColorMode()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupPipeline, Title: "Pipeline Commands:"},
		&cobra.Group{ID: groupAdmin, Title: "Admin Commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize output: auto, always or never")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(accrueCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file, falling back to defaults when absent.
func loadConfig() (*config.Config, *config.Paths, error) {
	paths := config.DefaultPaths()
	cfg, err := config.LoadFromFile(paths.ConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, paths, nil
}

// cliLogger logs warnings to stderr, or everything with --verbose.
func cliLogger() *slog.Logger {
	cfg := blog.DefaultConfig()
	cfg.Output = os.Stderr
	cfg.Level = slog.LevelWarn
	cfg.Debug = verbose
	return blog.New(cfg)
}

// openEnv wires an in-process pipeline against the configured store.
func openEnv() (*daemon.Env, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return daemon.Open(cfg, paths, cliLogger())
}
