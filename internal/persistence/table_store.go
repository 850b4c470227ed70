package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/calendar"
	"github.com/example/agenda/internal/logging"
)

// DefaultTableKey is the storage key holding the serialized booking table.
const DefaultTableKey = "agenda.bookings"

// ErrorFunc observes persistence failures that are absorbed instead of
// returned.
type ErrorFunc func(op string, err error)

// TableStore loads and saves the whole booking table as one blob under a
// single key. Failures never reach the caller: reads fall back to seed data
// and writes are logged and reported through the optional ErrorFunc.
type TableStore struct {
	medium  Medium
	key     string
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
	onError ErrorFunc
}

// TableStoreOption configures a TableStore.
type TableStoreOption func(*TableStore)

// WithTableKey overrides DefaultTableKey.
func WithTableKey(key string) TableStoreOption {
	return func(s *TableStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock sets the time source used to date the seed bookings.
func WithClock(now func() time.Time) TableStoreOption {
	return func(s *TableStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone whose calendar days the seed bookings use.
func WithLocation(loc *time.Location) TableStoreOption {
	return func(s *TableStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger for absorbed failures.
func WithLogger(logger *slog.Logger) TableStoreOption {
	return func(s *TableStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithErrorFunc registers a callback for absorbed failures.
func WithErrorFunc(fn ErrorFunc) TableStoreOption {
	return func(s *TableStore) {
		s.onError = fn
	}
}

// NewTableStore returns a store persisting through medium.
func NewTableStore(medium Medium, opts ...TableStoreOption) *TableStore {
	s := &TableStore{
		medium: medium,
		key:    DefaultTableKey,
		now:    time.Now,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key of the table.
func (s *TableStore) Key() string {
	return s.key
}

// Load reads the persisted table. When nothing usable is stored, it saves
// and returns the seed table instead. When the medium itself cannot be read,
// the seed is returned without being saved.
func (s *TableStore) Load(ctx context.Context) booking.Table {
	raw, ok, err := s.medium.Get(ctx, s.key)
	if err != nil {
		s.report(ctx, "load", err)
		return s.Seed()
	}
	if ok {
		table, decodeErr := Decode(raw)
		if decodeErr == nil {
			return table
		}
		s.loggerFor(ctx, "Load").WarnContext(ctx, "stored booking table is unreadable, reseeding", "error", decodeErr)
	}

	seed := s.Seed()
	s.Save(ctx, seed)
	return seed
}

// Save serializes table and writes it under the table key, replacing any
// prior value.
func (s *TableStore) Save(ctx context.Context, table booking.Table) {
	raw, err := Encode(table)
	if err != nil {
		s.report(ctx, "save", err)
		return
	}
	if err := s.medium.Set(ctx, s.key, raw); err != nil {
		s.report(ctx, "save", err)
		return
	}
	s.loggerFor(ctx, "Save").DebugContext(ctx, "booking table saved", "bytes", len(raw), "bookings", table.Count())
}

// Seed returns the example table used on first run: one booking two days
// out and one five days out.
func (s *TableStore) Seed() booking.Table {
	today := s.now().In(s.loc)
	return booking.Table{}.
		WithBooking(calendar.DateKey(today.AddDate(0, 0, 2)), "10:30", "Ana").
		WithBooking(calendar.DateKey(today.AddDate(0, 0, 5)), "09:00", "Sofia")
}

func (s *TableStore) report(ctx context.Context, op string, err error) {
	s.loggerFor(ctx, op).ErrorContext(ctx, "booking table persistence failed", "error", err)
	if s.onError != nil {
		s.onError(op, err)
	}
}

func (s *TableStore) loggerFor(ctx context.Context, operation string) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = s.logger
	}
	return logger.With("component", "TableStore", "operation", operation, "key", s.key)
}

// Encode serializes table.
func Encode(table booking.Table) (string, error) {
	if table == nil {
		table = booking.Table{}
	}
	raw, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("encode booking table: %w", err)
	}
	return string(raw), nil
}

// Decode parses a serialized table. Anything other than an object of
// objects of bookings is rejected with ErrCorruptValue.
func Decode(raw string) (booking.Table, error) {
	var table booking.Table
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
	}
	if table == nil {
		return nil, fmt.Errorf("%w: table is null", ErrCorruptValue)
	}
	for date, day := range table {
		if day == nil {
			delete(table, date)
		}
	}
	return table, nil
}
