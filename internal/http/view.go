package http

import (
	"context"
	"sync"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/booking"
)

type bookingStore interface {
	Subscribe(ctx context.Context, callback application.Subscriber) (unsubscribe func())
	WriteBooking(ctx context.Context, date, slot, clientName string) error
}

// View caches the latest table delivered to the store's subscriber so
// concurrent requests can read it without touching storage. A store has a
// single subscriber slot, so one View serves the whole server.
type View struct {
	mu      sync.RWMutex
	table   booking.Table
	updates uint64
	changed chan struct{}
}

// Attach subscribes the view to store. The view holds the current table once
// Attach returns. The returned function releases the subscription.
func (v *View) Attach(ctx context.Context, store bookingStore) (detach func()) {
	return store.Subscribe(ctx, v.update)
}

// Table returns the most recently delivered table. Tables are never mutated
// in place, so callers may read it without copying.
func (v *View) Table() booking.Table {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.table
}

// Updates counts the deliveries received since Attach.
func (v *View) Updates() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updates
}

// Changed returns a channel that is closed on the next delivery.
func (v *View) Changed() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.changed == nil {
		v.changed = make(chan struct{})
	}
	return v.changed
}

func (v *View) update(table booking.Table) {
	v.mu.Lock()
	v.table = table
	v.updates++
	if v.changed != nil {
		close(v.changed)
		v.changed = nil
	}
	v.mu.Unlock()
}
