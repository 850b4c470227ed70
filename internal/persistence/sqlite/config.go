package sqlite

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds SQLite medium configuration.
type Config struct {
	// Path is the database file shared by sibling contexts.
	Path string

	// BusyTimeout sets how long to wait for database locks.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.).
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	// MaxPageCount caps the database size in pages. Zero leaves it unbounded.
	MaxPageCount int

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum lifetime of connections.
	ConnMaxLifetime time.Duration

	// PollInterval is how often a listening context checks the change log.
	PollInterval time.Duration

	// ChangeRetention is how many change log entries survive pruning.
	ChangeRetention int

	// MaxValueBytes rejects larger values with ErrQuotaExceeded. Zero
	// disables the check.
	MaxValueBytes int
}

// DefaultConfig returns a configuration suited to a long running process.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		PollInterval:    500 * time.Millisecond,
		ChangeRetention: 1000,
	}
}

// TestConfig returns a configuration for temporary test databases.
func TestConfig(path string) Config {
	cfg := DefaultConfig(path)
	cfg.Synchronous = "OFF"
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ConnMaxLifetime = time.Minute
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("sqlite: path cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{
		"DELETE":   true,
		"TRUNCATE": true,
		"PERSIST":  true,
		"MEMORY":   true,
		"WAL":      true,
		"OFF":      true,
	}
	if c.JournalMode != "" && !validJournalModes[c.JournalMode] {
		return fmt.Errorf("sqlite: invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{
		"OFF":    true,
		"NORMAL": true,
		"FULL":   true,
		"EXTRA":  true,
	}
	if c.Synchronous != "" && !validSyncModes[c.Synchronous] {
		return fmt.Errorf("sqlite: invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("sqlite: connection limits cannot be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("sqlite: PollInterval must be positive")
	}
	if c.ChangeRetention < 0 || c.MaxValueBytes < 0 || c.MaxPageCount < 0 {
		return fmt.Errorf("sqlite: limits cannot be negative")
	}
	return nil
}

// DSN renders the modernc.org/sqlite connection string. Pragmas travel in the
// DSN so that every pooled connection applies them.
func (c Config) DSN() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	if c.JournalMode != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", c.JournalMode))
	}
	if c.Synchronous != "" {
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", c.Synchronous))
	}
	if c.MaxPageCount > 0 {
		q.Add("_pragma", fmt.Sprintf("max_page_count(%d)", c.MaxPageCount))
	}
	q.Set("_txlock", "immediate")
	return "file:" + c.Path + "?" + q.Encode()
}
