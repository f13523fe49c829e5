package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/inbox-sync/internal/credential"
)

// NewTokenCommand creates the token command group managing the API token
// of the http backend.
func NewTokenCommand(_ *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API token stored in the system keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Read a token from stdin and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(cmd)
			if err != nil {
				return err
			}
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "token saved")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return credential.Delete(credential.TokenKey)
		},
	})

	return cmd
}

func readToken(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "API token: ")
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return "", errors.New("no token given")
	}
	token := strings.TrimSpace(sc.Text())
	if token == "" {
		return "", errors.New("no token given")
	}
	return token, nil
}
