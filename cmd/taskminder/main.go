package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskminder/internal/credential"
)

var Version = "dev"

func main() {
	rootCmd := newRootCmd(func() (*credential.Resolver, error) {
		return credential.Open(true)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd assembles the command tree. openCreds opens the keyring used
// by the credential subcommands.
func newRootCmd(openCreds func() (*credential.Resolver, error)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskminder",
		Short:         "Personal task manager with hourly due-date reminders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/taskminder/config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(credentialCmd(openCreds))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
