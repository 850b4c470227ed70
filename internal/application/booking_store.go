package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/persistence"
)

// DefaultWriteLatency is the simulated round trip applied before every write.
const DefaultWriteLatency = time.Second

// Subscriber receives the full booking table on every change.
type Subscriber func(booking.Table)

// BookingStore is the entry point for the presentation layer. It owns one
// subscriber slot, keeps it in sync with writes made here and in sibling
// contexts, and performs slot writes against the durable table.
//
// Writes load the latest persisted table immediately before merging. Two
// writes that interleave can still lose one update unless the store is built
// WithSerializedWrites; across contexts the race always remains.
type BookingStore struct {
	tables   *persistence.TableStore
	notifier *Notifier
	latency  time.Duration
	sleep    func(time.Duration)
	logger   *slog.Logger

	serialize bool
	writeMu   sync.Mutex

	mu         sync.Mutex
	subscriber Subscriber
	generation uint64

	// deliverMu keeps subscriber invocations from overlapping.
	deliverMu sync.Mutex
}

// BookingStoreOption configures a BookingStore.
type BookingStoreOption func(*BookingStore)

// WithLatency sets the delay applied before each write. Zero disables it.
func WithLatency(d time.Duration) BookingStoreOption {
	return func(s *BookingStore) {
		if d >= 0 {
			s.latency = d
		}
	}
}

// WithSleep replaces time.Sleep for the write delay.
func WithSleep(sleep func(time.Duration)) BookingStoreOption {
	return func(s *BookingStore) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithSerializedWrites makes the load, merge and save of a write a critical
// section within this store.
func WithSerializedWrites() BookingStoreOption {
	return func(s *BookingStore) {
		s.serialize = true
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(logger *slog.Logger) BookingStoreOption {
	return func(s *BookingStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBookingStore returns an unsubscribed store persisting through tables and
// listening for sibling writes on signal.
func NewBookingStore(tables *persistence.TableStore, signal persistence.ChangeSignal, opts ...BookingStoreOption) *BookingStore {
	s := &BookingStore{
		tables:  tables,
		latency: DefaultWriteLatency,
		sleep:   time.Sleep,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notifier = NewNotifier(signal, tables.Key(), s.deliver, s.logger)
	return s
}

func (s *BookingStore) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingStore", operation, attrs...)
}

// Subscribe makes callback the only subscriber, replacing any previous one,
// and invokes it with the current table before returning. The returned
// function unsubscribes; calling it again, or after callback has been
// replaced, does nothing.
//
// Callbacks never overlap and must not call back into the store
// synchronously.
func (s *BookingStore) Subscribe(ctx context.Context, callback Subscriber) (unsubscribe func()) {
	if s == nil || callback == nil {
		return func() {}
	}

	s.deliverMu.Lock()
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.subscriber = callback
	s.mu.Unlock()

	s.notifier.Arm()
	table := s.tables.Load(ctx)
	callback(table)
	s.deliverMu.Unlock()

	s.loggerWith(ctx, "Subscribe").DebugContext(ctx, "subscriber registered", "bookings", table.Count())

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			current := s.generation == gen
			if current {
				s.subscriber = nil
				s.generation++
			}
			s.mu.Unlock()

			if current {
				s.notifier.Disarm()
			}
		})
	}
}

// Subscribed reports whether a subscriber is registered.
func (s *BookingStore) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriber != nil
}

// WriteBooking waits for the write latency, then books slot on date for
// clientName: it loads the persisted table, derives the new one, saves it and
// hands it to the local subscriber. Sibling contexts learn of it through the
// medium's broadcast.
//
// The delay cannot be interrupted and cancelling ctx does not abort the
// write. clientName is stored as given. Persistence failures are logged, not
// returned; the only error is ErrNilStore.
func (s *BookingStore) WriteBooking(ctx context.Context, date, slot, clientName string) error {
	if s == nil {
		return ErrNilStore
	}
	ctx = context.WithoutCancel(ctx)

	if s.latency > 0 {
		s.sleep(s.latency)
	}

	if s.serialize {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	next := s.tables.Load(ctx).WithBooking(date, slot, clientName)

	// Saving under deliverMu makes local deliveries follow save order, so
	// the subscriber never ends on a table older than the stored one.
	s.deliverMu.Lock()
	s.tables.Save(ctx, next)
	s.deliverLocked(next)
	s.deliverMu.Unlock()

	s.loggerWith(ctx, "WriteBooking", "date", date, "slot", slot).
		InfoContext(ctx, "booking written", "bookings", next.Count())
	return nil
}

// WriteBookingAsync runs WriteBooking on its own goroutine. The returned
// channel yields its result once and is then closed.
func (s *BookingStore) WriteBookingAsync(ctx context.Context, date, slot, clientName string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.WriteBooking(ctx, date, slot, clientName)
	}()
	return done
}

func (s *BookingStore) deliver(table booking.Table) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.deliverLocked(table)
}

// deliverLocked hands table to the subscriber. The caller holds deliverMu.
func (s *BookingStore) deliverLocked(table booking.Table) {
	s.mu.Lock()
	callback := s.subscriber
	s.mu.Unlock()

	if callback != nil {
		callback(table)
	}
}
