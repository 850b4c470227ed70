package testfixtures

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/persistence"
	"github.com/example/agenda/internal/persistence/memory"
)

// StoreContext bundles one sibling context with the stores built on it.
type StoreContext struct {
	Backend *memory.Context
	Tables  *persistence.TableStore
	Store   *application.BookingStore
}

// StoreFactory opens booking stores on a shared in-memory scope with a
// deterministic clock, UTC days and no write latency.
type StoreFactory struct {
	Scope  *memory.Scope
	Clock  *Clock
	Logger *slog.Logger

	storeOpts []application.BookingStoreOption
}

// StoreFactoryOption configures a StoreFactory.
type StoreFactoryOption func(*StoreFactory)

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) StoreFactoryOption {
	return func(factory *StoreFactory) {
		factory.Clock = clock
	}
}

// WithScope shares an existing scope.
func WithScope(scope *memory.Scope) StoreFactoryOption {
	return func(factory *StoreFactory) {
		factory.Scope = scope
	}
}

// WithStoreOptions appends options applied to every BookingStore.
func WithStoreOptions(opts ...application.BookingStoreOption) StoreFactoryOption {
	return func(factory *StoreFactory) {
		factory.storeOpts = append(factory.storeOpts, opts...)
	}
}

// NewStoreFactory constructs a StoreFactory with defaults.
func NewStoreFactory(opts ...StoreFactoryOption) *StoreFactory {
	factory := &StoreFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Scope == nil {
		factory.Scope = memory.NewScope()
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.Logger == nil {
		factory.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return factory
}

// Open creates a new sibling context and its stores. The context is closed
// when the test ends.
func (f *StoreFactory) Open(tb testing.TB) *StoreContext {
	tb.Helper()

	backend := f.Scope.Open()
	tb.Cleanup(func() { _ = backend.Close() })

	tables := persistence.NewTableStore(backend,
		persistence.WithClock(f.Clock.NowFunc()),
		persistence.WithLocation(time.UTC),
		persistence.WithLogger(f.Logger),
	)
	opts := append([]application.BookingStoreOption{
		application.WithLatency(0),
		application.WithStoreLogger(f.Logger),
	}, f.storeOpts...)

	return &StoreContext{
		Backend: backend,
		Tables:  tables,
		Store:   application.NewBookingStore(tables, backend, opts...),
	}
}
