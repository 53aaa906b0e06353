package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskminder/internal/model"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Long: `Write a configuration file holding every default setting, ready to edit.
An existing file is left alone unless --force is given.

Examples:
  taskminder config init
  taskminder --config ./taskminder.yaml config init --force`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config %s: %w", path, err)
	}

	cfg, err := model.DefaultConfig()
	if err != nil {
		return err
	}
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
