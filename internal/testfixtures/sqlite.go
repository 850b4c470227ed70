package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/agenda/internal/persistence/sqlite"
)

// SQLiteHarness opens sibling SQLite contexts on one temporary database file.
type SQLiteHarness struct {
	Config sqlite.Config

	tb testing.TB
}

// NewSQLiteHarness prepares a harness on a fresh file in the test's temp
// directory. mutate may adjust the configuration before any context opens.
func NewSQLiteHarness(tb testing.TB, mutate func(*sqlite.Config)) *SQLiteHarness {
	tb.Helper()

	cfg := sqlite.TestConfig(filepath.Join(tb.TempDir(), "agenda.db"))
	if mutate != nil {
		mutate(&cfg)
	}
	return &SQLiteHarness{Config: cfg, tb: tb}
}

// Open returns a new migrated context. It is closed when the test ends.
func (h *SQLiteHarness) Open() *sqlite.Medium {
	h.tb.Helper()

	medium, err := sqlite.Open(context.Background(), h.Config)
	if err != nil {
		h.tb.Fatalf("failed to open sqlite context: %v", err)
	}
	h.tb.Cleanup(func() {
		_ = medium.Close()
	})
	return medium
}
