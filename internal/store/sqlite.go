package store

import (
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	appsync "github.com/nhle/inbox-sync/internal/sync"
)

// SQLiteStore is a local backend for the sync stores, persisting users,
// notifications and conversations in a SQLite database.
//
// It serves three roles through Notifications, Conversations and Users;
// each returns a view implementing the matching service interface.
type SQLiteStore struct {
	db           *sqlx.DB
	logger       *slog.Logger
	pollInterval time.Duration

	mu      gosync.Mutex
	pollers map[string]map[*appsync.Poller]struct{}
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used by notification pollers.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPollInterval sets how often subscriptions re-read notifications.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so deleting a conversation drops its messages.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		logger:       slog.Default(),
		pollInterval: appsync.DefaultPollInterval,
		pollers:      make(map[string]map[*appsync.Poller]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close stops every notification poller and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	var active []*appsync.Poller
	for _, set := range s.pollers {
		for p := range set {
			active = append(active, p)
		}
	}
	s.pollers = make(map[string]map[*appsync.Poller]struct{})
	s.mu.Unlock()

	for _, p := range active {
		_ = p.Cancel()
	}
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
