// Package booking holds the booking table aggregate and the pure helpers the
// presentation layer derives its views from.
package booking

// Booking is one occupied slot.
type Booking struct {
	ClientName string `json:"clientName"`
}

// DailyBookings maps a time slot label to its occupant. A missing label is a
// free slot.
type DailyBookings map[string]Booking

// Table maps a DateKey to the bookings of that day. It is the whole durable
// state of the system.
type Table map[string]DailyBookings

// Clone returns a deep copy of the table. A nil table clones to an empty one.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for date, day := range t {
		out[date] = day.Clone()
	}
	return out
}

// Clone returns a copy of the day's bookings.
func (d DailyBookings) Clone() DailyBookings {
	out := make(DailyBookings, len(d))
	for slot, b := range d {
		out[slot] = b
	}
	return out
}

// WithBooking returns a new table equal to t except that slot on date is
// occupied by clientName. An existing occupant is replaced. The receiver is
// not modified.
func (t Table) WithBooking(date, slot, clientName string) Table {
	out := t.Clone()
	day, ok := out[date]
	if !ok || day == nil {
		day = make(DailyBookings, 1)
	}
	day[slot] = Booking{ClientName: clientName}
	out[date] = day
	return out
}

// Day returns the bookings recorded for date, or nil when there are none.
func (t Table) Day(date string) DailyBookings {
	return t[date]
}

// Count returns the number of occupied slots across all dates.
func (t Table) Count() int {
	total := 0
	for _, day := range t {
		total += len(day)
	}
	return total
}

// Equal reports whether both tables hold the same bookings. Empty days are
// equivalent to absent ones.
func (t Table) Equal(other Table) bool {
	if !t.contains(other) {
		return false
	}
	return other.contains(t)
}

func (t Table) contains(other Table) bool {
	for date, day := range other {
		mine := t[date]
		if len(mine) != len(day) {
			return false
		}
		for slot, b := range day {
			got, ok := mine[slot]
			if !ok || got != b {
				return false
			}
		}
	}
	return true
}
