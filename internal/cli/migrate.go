package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-timetable-api/internal/app"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
)

func (c *CLI) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(c.migrateStep("up", "Apply pending migrations", func(m *database.Migrator, cmd *cobra.Command) error {
		if err := m.Up(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), colorOK.Sprint("migrations applied"))
		return nil
	}))
	cmd.AddCommand(c.migrateStep("down", "Roll back the latest migration", func(m *database.Migrator, cmd *cobra.Command) error {
		if err := m.Down(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), colorOK.Sprint("rolled back one migration"))
		return nil
	}))
	cmd.AddCommand(c.migrateStep("version", "Print the schema version", func(m *database.Migrator, cmd *cobra.Command) error {
		version, err := m.Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	}))
	return cmd
}

func (c *CLI) migrateStep(use, short string, run func(*database.Migrator, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.Driver == config.DriverMemory {
				return fmt.Errorf("the memory store has no schema")
			}
			db, err := app.OpenDB(cmd.Context(), c.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			migrator, err := database.NewMigrator(db.DB, db.DriverName())
			if err != nil {
				return err
			}
			return run(migrator, cmd)
		},
	}
}
