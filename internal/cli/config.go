package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-sync/internal/model"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := model.SaveConfig(rootOpts.ConfigPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", rootOpts.ConfigPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user_id: %s\n", cfg.UserID)
			fmt.Fprintf(out, "backend.kind: %s\n", cfg.Backend.Kind)
			fmt.Fprintf(out, "backend.db_path: %s\n", cfg.Backend.DBPath)
			fmt.Fprintf(out, "backend.base_url: %s\n", cfg.Backend.BaseURL)
			fmt.Fprintf(out, "backend.poll_interval_sec: %d\n", cfg.Backend.PollIntervalSec)
			fmt.Fprintf(out, "backend.timeout_sec: %d\n", cfg.Backend.TimeoutSec)
			fmt.Fprintf(out, "display.theme: %s\n", cfg.Display.Theme)
			return nil
		},
	})

	return cmd
}
