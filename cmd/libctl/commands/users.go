package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlib/library-backend/internal/model"
	"github.com/openlib/library-backend/internal/service"
)

var userFlags struct {
	email     string
	username  string
	firstName string
	lastName  string
	role      string
	phone     string
	address   string
	active    bool
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an account (password prompted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			u, err := a.users.Create(ctx, service.CreateUserInput{
				Email:     userFlags.email,
				Username:  userFlags.username,
				FirstName: userFlags.firstName,
				LastName:  userFlags.lastName,
				Password:  password,
				Role:      model.Role(userFlags.role),
				Phone:     ptrIfSet(userFlags.phone),
				Address:   ptrIfSet(userFlags.address),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created user %d: %s (%s)\n", u.ID, u.Username, u.Role)
			return nil
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			users, err := a.users.List(ctx, model.Role(userFlags.role), skip, limit)
			if err != nil {
				return err
			}
			printUsers(users)
			return nil
		})
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			u, err := a.users.Get(ctx, id)
			if err != nil {
				return err
			}
			w := newTabWriter()
			fmt.Fprintf(w, "ID\t%d\n", u.ID)
			fmt.Fprintf(w, "Email\t%s\n", u.Email)
			fmt.Fprintf(w, "Username\t%s\n", u.Username)
			fmt.Fprintf(w, "Name\t%s\n", u.FullName())
			fmt.Fprintf(w, "Role\t%s\n", u.Role)
			fmt.Fprintf(w, "Active\t%v\n", u.IsActive)
			fmt.Fprintf(w, "Phone\t%s\n", strOrDash(u.Phone))
			fmt.Fprintf(w, "Address\t%s\n", strOrDash(u.Address))
			fmt.Fprintf(w, "Since\t%s\n", u.CreatedAt.Format("2006-01-02"))
			return w.Flush()
		})
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an account's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			u, err := a.users.Get(ctx, id)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("email") {
				u.Email = userFlags.email
			}
			if f.Changed("username") {
				u.Username = userFlags.username
			}
			if f.Changed("first-name") {
				u.FirstName = userFlags.firstName
			}
			if f.Changed("last-name") {
				u.LastName = userFlags.lastName
			}
			if f.Changed("role") {
				u.Role = model.Role(userFlags.role)
			}
			if f.Changed("phone") {
				u.Phone = ptrIfSet(userFlags.phone)
			}
			if f.Changed("address") {
				u.Address = ptrIfSet(userFlags.address)
			}
			if f.Changed("active") {
				u.IsActive = userFlags.active
			}
			if err := a.users.Update(ctx, &u); err != nil {
				return err
			}
			fmt.Printf("Updated user %d\n", u.ID)
			return nil
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account without unreturned loans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("Delete user %d?", id)) {
			return fmt.Errorf("cancelled")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.users.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted user %d\n", id)
			return nil
		})
	},
}

var usersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search by email, username or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			users, err := a.users.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printUsers(users)
			return nil
		})
	},
}

var usersChangePasswordCmd = &cobra.Command{
	Use:   "change-password <id>",
	Short: "Reset an account's password (prompted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		password, err := promptPassword("New password")
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			// Admin reset; the current password is not required.
			if err := a.users.ChangePassword(ctx, id, "", password, true); err != nil {
				return err
			}
			fmt.Printf("Password changed for user %d\n", id)
			return nil
		})
	},
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <id> <role>",
	Short: "Change an account's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.users.SetRole(ctx, id, model.Role(args[1])); err != nil {
				return err
			}
			fmt.Printf("User %d is now %s\n", id, args[1])
			return nil
		})
	},
}

var usersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show account statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.users.Statistics(ctx)
			if err != nil {
				return err
			}
			w := newTabWriter()
			fmt.Fprintf(w, "Total\t%d\n", s.TotalUsers)
			fmt.Fprintf(w, "Active\t%d\n", s.ActiveUsers)
			fmt.Fprintf(w, "Admins\t%d\n", s.AdminCount)
			fmt.Fprintf(w, "Librarians\t%d\n", s.LibrarianCount)
			fmt.Fprintf(w, "Members\t%d\n", s.MemberCount)
			return w.Flush()
		})
	},
}

func printUsers(users []model.User) {
	if len(users) == 0 {
		fmt.Println("No users found")
		return
	}
	w := newTabWriter()
	fmt.Fprintln(w, "ID\tEMAIL\tUSERNAME\tNAME\tROLE\tACTIVE")
	for i := range users {
		u := &users[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n",
			u.ID, u.Email, u.Username, u.FullName(), u.Role, u.IsActive)
	}
	w.Flush()
}

func init() {
	cr := usersCreateCmd.Flags()
	cr.StringVar(&userFlags.email, "email", "", "Email (required)")
	cr.StringVar(&userFlags.username, "username", "", "Username (required)")
	cr.StringVar(&userFlags.firstName, "first-name", "", "First name")
	cr.StringVar(&userFlags.lastName, "last-name", "", "Last name")
	cr.StringVar(&userFlags.role, "role", "member", "Role: admin, librarian or member")
	cr.StringVar(&userFlags.phone, "phone", "", "Phone")
	cr.StringVar(&userFlags.address, "address", "", "Address")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("username")

	upd := usersUpdateCmd.Flags()
	upd.StringVar(&userFlags.email, "email", "", "Email")
	upd.StringVar(&userFlags.username, "username", "", "Username")
	upd.StringVar(&userFlags.firstName, "first-name", "", "First name")
	upd.StringVar(&userFlags.lastName, "last-name", "", "Last name")
	upd.StringVar(&userFlags.role, "role", "", "Role")
	upd.StringVar(&userFlags.phone, "phone", "", "Phone")
	upd.StringVar(&userFlags.address, "address", "", "Address")
	upd.BoolVar(&userFlags.active, "active", true, "Active flag")

	usersListCmd.Flags().StringVar(&userFlags.role, "role", "", "Filter by role")

	usersCmd.AddCommand(usersCreateCmd, usersListCmd, usersShowCmd, usersUpdateCmd,
		usersDeleteCmd, usersSearchCmd, usersChangePasswordCmd, usersSetRoleCmd,
		usersStatsCmd)
	rootCmd.AddCommand(usersCmd)
}
