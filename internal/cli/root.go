// Package cli wires the inboxsync command tree.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-sync/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	UserID     string
	Backend    string
	Verbose    bool
}

// NewRootCommand creates the root command. Run without a subcommand it
// starts the terminal UI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "inboxsync",
		Short: "Notifications and direct messages in the terminal",
		Long: "inboxsync keeps a user's notifications and conversations in sync with\n" +
			"a local SQLite database or a remote inbox API.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.ToLower(strings.TrimSpace(opts.Backend))
			if kind != "" && kind != model.BackendSQLite && kind != model.BackendHTTP {
				return fmt.Errorf("invalid backend %q: must be %s or %s", opts.Backend, model.BackendSQLite, model.BackendHTTP)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", model.DefaultConfigPath(), "config file")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "user id to sync (overrides user_id)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "backend kind (sqlite|http)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies the flag overrides.
func loadConfig(opts *RootOptions) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if u := strings.TrimSpace(opts.UserID); u != "" {
		cfg.UserID = u
	}
	if k := strings.ToLower(strings.TrimSpace(opts.Backend)); k != "" {
		cfg.Backend.Kind = k
	}
	return cfg, nil
}
