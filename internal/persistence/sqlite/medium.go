// Package sqlite implements a durable storage scope on a SQLite file. Every
// Medium opened on the same file is a sibling context: writes are shared and
// each write is appended to a change log that listening siblings poll.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/agenda/internal/persistence"
)

// Medium is one context's handle on a SQLite storage scope. It implements
// persistence.Backend.
type Medium struct {
	db     *sqlx.DB
	cfg    Config
	id     string
	now    func() time.Time
	logger *slog.Logger

	listeners persistence.Listeners

	deliverMu sync.Mutex
	pollMu    sync.Mutex
	lastSeen  int64

	mu      sync.Mutex
	watcher *watcher
	closed  bool
}

var _ persistence.Backend = (*Medium)(nil)

// Option configures a Medium.
type Option func(*Medium)

// WithLogger sets the logger used for polling failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Medium) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the time source for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Medium) {
		if now != nil {
			m.now = now
		}
	}
}

// Open connects to the database at cfg.Path, applies migrations and returns
// a new context on it.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Medium, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	m := &Medium{
		db:     db,
		cfg:    cfg,
		id:     uuid.NewString(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "sqlite.Medium", "origin", m.id)
	return m, nil
}

// ID returns the context's origin identifier.
func (m *Medium) ID() string {
	return m.id
}

// Get returns the value stored under key.
func (m *Medium) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(err)
	}
	return value, true, nil
}

// Set stores value under key and appends the change to the log.
func (m *Medium) Set(ctx context.Context, key, value string) error {
	if m.cfg.MaxValueBytes > 0 && len(value) > m.cfg.MaxValueBytes {
		return fmt.Errorf("sqlite: value for %q is %d bytes, limit %d: %w", key, len(value), m.cfg.MaxValueBytes, persistence.ErrQuotaExceeded)
	}

	err := withTx(ctx, m.db, func(tx *sqlx.Tx) error {
		revision, err := m.appendChange(ctx, tx, key, sql.NullString{String: value, Valid: true})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv_store (key, value, origin, revision, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				origin = excluded.origin,
				revision = excluded.revision,
				updated_at = excluded.updated_at`,
			key, value, m.id, revision, m.timestamp(),
		)
		return err
	})
	return mapError(err)
}

// Delete removes key and appends a change without a value.
func (m *Medium) Delete(ctx context.Context, key string) error {
	err := withTx(ctx, m.db, func(tx *sqlx.Tx) error {
		if _, err := m.appendChange(ctx, tx, key, sql.NullString{}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
		return err
	})
	return mapError(err)
}

// Emit appends change to the log without touching stored values.
func (m *Medium) Emit(ctx context.Context, change persistence.Change) error {
	value := sql.NullString{String: change.Value, Valid: change.Present}
	err := withTx(ctx, m.db, func(tx *sqlx.Tx) error {
		_, err := m.appendChange(ctx, tx, change.Key, value)
		return err
	})
	return mapError(err)
}

func (m *Medium) appendChange(ctx context.Context, tx *sqlx.Tx, key string, value sql.NullString) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO kv_changes (key, value, origin, changed_at) VALUES (?, ?, ?, ?)`,
		key, value, m.id, m.timestamp(),
	)
	if err != nil {
		return 0, err
	}
	revision, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if m.cfg.ChangeRetention > 0 && revision > int64(m.cfg.ChangeRetention) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_changes WHERE revision <= ?`, revision-int64(m.cfg.ChangeRetention)); err != nil {
			return 0, err
		}
	}
	return revision, nil
}

// OnChange registers handler for changes to key made by sibling contexts.
// The first registration starts polling the change log from its current
// end; removing the last one stops it.
func (m *Medium) OnChange(key string, handler persistence.ChangeHandler) func() {
	cancel := m.listeners.Add(key, handler)
	if err := m.ensureWatching(); err != nil {
		m.logger.Error("failed to start change watcher", "error", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if m.listeners.Len() == 0 {
				m.stopWatching()
			}
		})
	}
}

// Poll delivers every sibling change logged since the previous poll.
func (m *Medium) Poll(ctx context.Context) error {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	rows, err := m.fetchChanges(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Origin == m.id {
			continue
		}
		m.listeners.Dispatch(persistence.Change{
			Key:     row.Key,
			Value:   row.Value.String,
			Present: row.Value.Valid,
			Origin:  row.Origin,
		})
	}
	return nil
}

func (m *Medium) fetchChanges(ctx context.Context) ([]changeRow, error) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	var rows []changeRow
	err := m.db.SelectContext(ctx, &rows,
		`SELECT revision, key, value, origin FROM kv_changes WHERE revision > ? ORDER BY revision ASC`,
		m.lastSeen,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if len(rows) > 0 {
		m.lastSeen = rows[len(rows)-1].Revision
	}
	return rows, nil
}

// Close stops polling and closes the database pool. It must not be called
// from a change handler.
func (m *Medium) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		w.stop()
	}
	return m.db.Close()
}

func (m *Medium) timestamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

type changeRow struct {
	Revision int64          `db:"revision"`
	Key      string         `db:"key"`
	Value    sql.NullString `db:"value"`
	Origin   string         `db:"origin"`
}
