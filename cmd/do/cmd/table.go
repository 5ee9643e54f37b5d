package cmd

import (
	"fmt"

	"github.com/robolist/robolist/internal/app"
	"github.com/robolist/robolist/internal/store"

	"github.com/spf13/cobra"
)

func TableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage the key-value store table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the table with its indexes, or run SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.Store) error {
				return s.EnsureTable(cmd.Context())
			})
		},
	})

	var confirm bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Drop the table and every row in it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to drop the table without --yes")
			}
			return withStore(cmd, func(s store.Store) error {
				return s.DropTable(cmd.Context())
			})
		},
	}
	deleteCmd.Flags().BoolVar(&confirm, "yes", false, "confirm dropping the table")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	cfg, flush := loadConfig()
	defer flush()

	s, err := app.NewStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	err = fn(s)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s done (%s)\n", cmd.Parent().Name(), cmd.Name(), cfg.StoreBackend)
	return nil
}
