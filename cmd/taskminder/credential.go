package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/taskminder/internal/credential"
)

func credentialCmd(openCreds func() (*credential.Resolver, error)) *cobra.Command {
	keys := strings.Join(credential.Keys(), ", ")

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store secrets in the OS keyring",
		Long: `Store secrets in the OS keyring instead of the configuration file.
They are read at startup when credentials.keyring is true.

Keys: ` + keys,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> [value]",
		Short: "Store a secret; the value is read from stdin when omitted",
		Long: `Store a secret in the keyring. Without a value argument the first
line of stdin is used, which keeps the secret out of shell history.

Examples:
  taskminder credential set auth.jwt_secret
  echo "$SMTP_PASSWORD" | taskminder credential set notify.smtp.password`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !credential.ValidKey(key) {
				return fmt.Errorf("unknown credential key %q (want one of %s)", key, keys)
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading value for %s from stdin: %w", key, err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", key)
			}

			creds, err := openCreds()
			if err != nil {
				return err
			}
			if err := creds.Set(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !credential.ValidKey(key) {
				return fmt.Errorf("unknown credential key %q (want one of %s)", key, keys)
			}

			creds, err := openCreds()
			if err != nil {
				return err
			}
			if err := creds.Delete(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
			return nil
		},
	})

	return cmd
}
