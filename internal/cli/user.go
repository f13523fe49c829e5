package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-sync/internal/model"
)

// NewUserCommand creates the user command group. Adding users needs the
// sqlite backend; listing works on both.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the user directory",
	}

	var email string
	add := &cobra.Command{
		Use:   "add <id> [display name]",
		Short: "Add or update a user in the local directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cfg.Backend.Kind != model.BackendSQLite {
				return fmt.Errorf("adding users needs the %s backend", model.BackendSQLite)
			}
			s, err := openLocalStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			defer s.Close()

			u := model.User{
				ID:          args[0],
				DisplayName: strings.Join(args[1:], " "),
				Email:       email,
			}
			return s.UpsertUser(cmd.Context(), u)
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the user directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			be, err := openBackend(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			defer be.Close()

			users, err := be.users.GetAll(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.DisplayName, u.Email)
			}
			return w.Flush()
		},
	})

	return cmd
}
