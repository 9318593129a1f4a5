package main

import (
	"github.com/spf13/cobra"

	"github.com/legallyup/backend/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), "migrate")
			if err != nil {
				return err
			}
			defer a.close()
			return database.Migrate(cmd.Context(), a.db, a.log)
		},
	}
}
