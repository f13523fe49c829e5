package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/inbox-sync/internal/store"
)

// NewTestStore creates a SQLiteStore in a temporary directory with all
// migrations applied and a short poll interval. It automatically closes
// the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "inbox.db")
	s, err := store.NewSQLiteStore(dbPath, store.WithPollInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
