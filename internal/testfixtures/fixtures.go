package testfixtures

import (
	"fmt"
	"sync/atomic"

	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/calendar"
)

var bookingCounter uint64

// BookingFixture is one deterministic occupied slot.
type BookingFixture struct {
	Date       string
	Slot       string
	ClientName string
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a booking on a day after ReferenceTime. Successive
// fixtures cycle through the slot template and move one day forward per
// full cycle, so they never collide.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	slots := calendar.TimeSlots()
	n := uint64(len(slots))
	fixture := BookingFixture{
		Date:       calendar.DateKey(referenceTime.AddDate(0, 0, 1+int((idx-1)/n))),
		Slot:       slots[(idx-1)%n],
		ClientName: fmt.Sprintf("Client %03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingDate overrides the generated date key.
func WithBookingDate(date string) BookingOption {
	return func(f *BookingFixture) {
		f.Date = date
	}
}

// WithBookingSlot overrides the generated slot label.
func WithBookingSlot(slot string) BookingOption {
	return func(f *BookingFixture) {
		f.Slot = slot
	}
}

// WithBookingClient overrides the generated client name.
func WithBookingClient(name string) BookingOption {
	return func(f *BookingFixture) {
		f.ClientName = name
	}
}

// Apply returns table with the fixture booked.
func (f BookingFixture) Apply(table booking.Table) booking.Table {
	return table.WithBooking(f.Date, f.Slot, f.ClientName)
}

// TableOf builds a table holding every fixture. Later fixtures overwrite
// earlier ones on the same slot.
func TableOf(fixtures ...BookingFixture) booking.Table {
	table := booking.Table{}
	for _, f := range fixtures {
		table = f.Apply(table)
	}
	return table
}
