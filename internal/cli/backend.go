package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/inbox-sync/internal/app"
	"github.com/nhle/inbox-sync/internal/credential"
	"github.com/nhle/inbox-sync/internal/model"
	"github.com/nhle/inbox-sync/internal/remote"
	"github.com/nhle/inbox-sync/internal/service"
	"github.com/nhle/inbox-sync/internal/store"
)

// backend bundles the service implementations selected by the config.
type backend struct {
	notifications service.NotificationService
	conversations service.ConversationService
	users         service.UserDirectory
	// local is set for the sqlite backend only.
	local *store.SQLiteStore
}

// directory returns the user writer of the backend, or nil.
func (b *backend) directory() app.DirectoryWriter {
	if b.local == nil {
		return nil
	}
	return b.local
}

func (b *backend) Close() error {
	if b.local == nil {
		return nil
	}
	return b.local.Close()
}

func openBackend(cfg *model.AppConfig, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend.Kind {
	case model.BackendHTTP:
		token, err := credential.Token()
		if err != nil {
			logger.Warn("reading api token failed, continuing without one", "error", err)
		}
		c := remote.NewClient(cfg.Backend.BaseURL, token,
			remote.WithTimeout(time.Duration(cfg.Backend.TimeoutSec)*time.Second),
			remote.WithLogger(logger),
		)
		return &backend{
			notifications: c.Notifications(),
			conversations: c.Conversations(),
			users:         c.Users(),
		}, nil

	default:
		s, err := openLocalStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			notifications: s.Notifications(),
			conversations: s.Conversations(),
			users:         s.Users(),
			local:         s,
		}, nil
	}
}

func openLocalStore(cfg *model.AppConfig, logger *slog.Logger) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Backend.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return store.NewSQLiteStore(cfg.Backend.DBPath,
		store.WithLogger(logger),
		store.WithPollInterval(time.Duration(cfg.Backend.PollIntervalSec)*time.Second),
	)
}

// openLogger writes structured logs to path so they do not corrupt the
// terminal UI.
func openLogger(path string, verbose bool) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler), func() { _ = f.Close() }, nil
}
