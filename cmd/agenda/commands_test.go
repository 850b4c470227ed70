package main

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/persistence"
	"github.com/example/agenda/internal/persistence/memory"
)

type countingSignal struct {
	*memory.Context
	registrations atomic.Int32
}

func (s *countingSignal) OnChange(key string, handler persistence.ChangeHandler) func() {
	s.registrations.Add(1)
	return s.Context.OnChange(key, handler)
}

func TestSnapshotReadsWithoutListening(t *testing.T) {
	backend := memory.NewScope().Open()
	t.Cleanup(func() { _ = backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signal := &countingSignal{Context: backend}
	tables := persistence.NewTableStore(backend, persistence.WithLocation(time.UTC), persistence.WithLogger(logger))
	a := &app{
		store:  application.NewBookingStore(tables, signal, application.WithLatency(0), application.WithStoreLogger(logger)),
		tables: tables,
		loc:    time.UTC,
		now:    time.Now,
		stdout: io.Discard,
		stderr: io.Discard,
		logger: logger,
	}

	if got := a.snapshot(context.Background()).Count(); got != 2 {
		t.Fatalf("expected the seeded table, got %d bookings", got)
	}
	if n := signal.registrations.Load(); n != 0 {
		t.Fatalf("expected no change listener, got %d registrations", n)
	}
	if a.store.Subscribed() {
		t.Fatal("snapshot must not leave a subscriber behind")
	}
}
