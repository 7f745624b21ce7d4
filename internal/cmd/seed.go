package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/sheet"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load tables from a YAML fixture",
	Long: `Create or replace tables in the database from a YAML fixture.

Each table is listed header row first. Tables the fixture does not name
are left alone.

Example fixture:
  tables:
    System:
      - [key, value]
      - [system_active, true]
    Bikes:
      - [name, hash, size, maintenance_status, availability]
      - [Trek100, BK-42, M, ok, available]

Examples:
  bikeshare seed fleet.yaml`,
	GroupID: groupAdmin,
	Args:    cobra.ExactArgs(1),
	RunE:    runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fixture, err := sheet.ReadFixture(f)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.SQLite()
	if err != nil {
		return fmt.Errorf("seed needs a persistent store: %w", err)
	}
	if err := fixture.Apply(cmd.Context(), db); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, name := range fixture.Names() {
		fmt.Fprintf(w, "  %s %d rows\n", keyStyle.Render(name), len(fixture.Tables[name])-1)
	}
	fmt.Fprintf(w, "Seeded %s\n", env.Config.DBPath(env.Paths))
	return nil
}
