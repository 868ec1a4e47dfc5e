package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"busybeaver/internal/platform/database"
)

var errNoDatabase = errors.New("BUSYBEAVER_DATABASE_URL is not set")

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database tables",
	}
	cmd.AddCommand(dbCreateCmd(), dbDropCmd())
	return cmd
}

func dbCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create every table; safe to rerun",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(db *database.DB) error {
				if err := db.CreateAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %v\n", database.TableNames())
				return nil
			})
		},
	}
}

func dbDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table and the data in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop tables without --yes")
			}
			return withDB(cmd, func(db *database.DB) error {
				if err := db.DropAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "dropped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping every table")
	return cmd
}

// withDB opens only the database; the queue and redis are not needed to
// manage tables.
func withDB(cmd *cobra.Command, fn func(db *database.DB) error) error {
	if cfg.Database.URL == "" {
		return errNoDatabase
	}
	db, err := database.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("close database", "error", err)
		}
	}()
	return fn(db)
}
