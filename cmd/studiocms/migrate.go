package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/eringen/studiocms"
	"github.com/eringen/studiocms/backend"
)

var migrateTarget int64

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status|down]",
	Short:     "Manage the self-hosted database schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "status", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver == studiocms.DriverSupabase {
			return errors.New("migrations only apply to the sqlite and postgres drivers")
		}
		store, err := backend.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		m := backend.NewMigrator(store, logger)
		ctx := cmd.Context()
		switch args[0] {
		case "up":
			return m.Up(ctx)
		case "status":
			return m.Status(ctx)
		default:
			return m.Down(ctx, migrateTarget)
		}
	},
}

func init() {
	migrateCmd.Flags().Int64Var(&migrateTarget, "to", 0, "with down: roll back to this version instead of one step")
}
