package cmd

import (
	"fmt"

	"musinotes/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  `Connect with the configured DB_DRIVER and auto-migrate the users and songs tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close(gormDB)

		if err := db.Migrate(gormDB); err != nil {
			return err
		}
		fmt.Printf("Schema is up to date (%s)\n", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
