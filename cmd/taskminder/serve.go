package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/taskminder/internal/app"
	"github.com/nhle/taskminder/internal/logger"
	"github.com/nhle/taskminder/internal/model"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder schedule",
		Long: `Start the HTTP API and, unless reminder.enabled is false, the
reminder sweeper that runs at the top of every hour.

Examples:
  taskminder serve
  taskminder serve --addr :8080 --no-reminders`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("no-reminders", false, "disable the reminder sweeper")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if off, _ := cmd.Flags().GetBool("no-reminders"); off {
		cfg.Reminder.Enabled = false
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// configPath returns --config or the default location.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = model.DefaultConfigPath()
	}
	return path
}

// loadConfig reads the config named by --config and builds the logger.
func loadConfig(cmd *cobra.Command) (*model.AppConfig, *logrus.Logger, error) {
	path := configPath(cmd)

	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring logger: %w", err)
	}
	log.WithField("config", path).Debug("configuration loaded")
	return cfg, log, nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
