// Package app wires configuration, persistence, notification, the reminder
// sweeper and the HTTP server into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/taskminder/internal/auth"
	"github.com/nhle/taskminder/internal/credential"
	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/notify"
	"github.com/nhle/taskminder/internal/reminder"
	"github.com/nhle/taskminder/internal/server"
	"github.com/nhle/taskminder/internal/store"
	"github.com/nhle/taskminder/internal/tasks"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App is the assembled service.
type App struct {
	cfg     *model.AppConfig
	log     *logrus.Logger
	store   store.Store
	tasks   *tasks.Service
	sweeper *reminder.Sweeper
	http    *http.Server
}

// New builds every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *model.AppConfig, log *logrus.Logger) (*App, error) {
	creds, err := credential.Open(cfg.Credentials.Keyring)
	if err != nil {
		return nil, err
	}

	s, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	n, err := NewNotifier(cfg.Notify, creds, log)
	if err != nil {
		s.Close()
		return nil, err
	}

	secret, err := creds.Resolve(credential.KeyJWTSecret, cfg.Auth.JWTSecret)
	if err != nil {
		s.Close()
		return nil, err
	}
	authSvc, err := auth.NewService(s, secret, cfg.Auth.TokenTTL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("configuring auth: %w", err)
	}
	if cfg.Auth.GoogleClientID != "" {
		authSvc.UseGoogle(auth.NewGoogleVerifier(cfg.Auth.GoogleClientID))
	}

	taskSvc := tasks.NewService(s, log)
	sweeper := reminder.New(s, n, reminder.ConfigFrom(cfg.Reminder), log)

	srv := server.New(server.Options{
		Tasks:          taskSvc,
		Auth:           authSvc,
		Sweeper:        sweeper,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &App{
		cfg:     cfg,
		log:     log,
		store:   s,
		tasks:   taskSvc,
		sweeper: sweeper,
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// OpenStore opens the backend selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg model.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return s, nil
	case "sqlite", "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewNotifier builds the reminder transport selected by cfg.Driver.
// Secrets are looked up in creds first and fall back to cfg.
func NewNotifier(
	cfg model.NotifyConfig,
	creds *credential.Resolver,
	log *logrus.Logger,
) (notify.Notifier, error) {
	switch cfg.Driver {
	case "smtp":
		password, err := creds.Resolve(credential.KeySMTPPassword, cfg.SMTP.Password)
		if err != nil {
			return nil, err
		}
		n, err := notify.NewSMTPNotifier(cfg.SMTP, password)
		if err != nil {
			return nil, fmt.Errorf("configuring smtp: %w", err)
		}
		return n, nil
	case "telegram":
		token, err := creds.Resolve(credential.KeyTelegramToken, cfg.Telegram.Token)
		if err != nil {
			return nil, err
		}
		n, err := notify.NewTelegramNotifier(token, chatMap(cfg.Telegram.Chats))
		if err != nil {
			return nil, fmt.Errorf("configuring telegram: %w", err)
		}
		return n, nil
	case "log", "":
		return notify.NewLogNotifier(log), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

// chatMap indexes the configured Telegram chats by email. Later entries
// win over earlier ones for the same email.
func chatMap(chats []model.TelegramChat) map[string]int64 {
	m := make(map[string]int64, len(chats))
	for _, c := range chats {
		m[c.Email] = c.ChatID
	}
	return m
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

// Run serves HTTP and, when enabled, the reminder schedule until ctx is
// done, then shuts both down.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Reminder.Enabled {
		a.sweeper.Start(ctx)
		defer a.sweeper.Stop()
		a.log.WithField("interval", a.cfg.Reminder.Interval).Info("reminder sweeper scheduled")
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.http.Addr).Info("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http: %w", err)
	}
	return nil
}

// Sweep runs a single reminder sweep immediately.
func (a *App) Sweep(ctx context.Context) (reminder.Result, error) {
	return a.sweeper.RunOnce(ctx)
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
