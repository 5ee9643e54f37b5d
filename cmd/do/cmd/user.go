package cmd

import (
	"fmt"

	"github.com/robolist/robolist/internal/app"
	"github.com/robolist/robolist/internal/model"

	"github.com/spf13/cobra"
)

// operator stands in for an admin when permissions are changed from the CLI.
var operator = &model.User{ID: "cli", Permissions: []model.UserPermission{model.PermissionAdmin}}

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var admin, moderator, contentManager, revoke bool
	promote := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant (or with --revoke, remove) user permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var perms []model.UserPermission
			if admin {
				perms = append(perms, model.PermissionAdmin)
			}
			if moderator {
				perms = append(perms, model.PermissionMod)
			}
			if contentManager {
				perms = append(perms, model.PermissionContentManager)
			}
			if len(perms) == 0 {
				return fmt.Errorf("pass at least one of --admin, --moderator, --content-manager")
			}

			cfg, flush := loadConfig()
			defer flush()

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.UserService.ByEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, p := range perms {
				user, err = a.UserService.SetPermission(cmd.Context(), operator, user.ID, p, !revoke)
				if err != nil {
					return err
				}
			}
			fmt.Printf("%s (%s) permissions: %v\n", user.Email, user.ID, user.Permissions)
			return nil
		},
	}
	promote.Flags().BoolVar(&admin, "admin", false, "admin permission")
	promote.Flags().BoolVar(&moderator, "moderator", false, "moderator permission")
	promote.Flags().BoolVar(&contentManager, "content-manager", false, "content manager permission")
	promote.Flags().BoolVar(&revoke, "revoke", false, "remove the permissions instead")
	cmd.AddCommand(promote)

	return cmd
}
