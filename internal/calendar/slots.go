// Package calendar defines the bookable day template and the canonical
// day keys used to partition bookings.
package calendar

// timeSlots is the provider's daily schedule template in display order.
var timeSlots = []string{
	"08:00",
	"09:00",
	"10:30",
	"12:00",
	"13:30",
	"15:00",
	"16:00",
	"17:00",
}

// TimeSlots returns the ordered slot labels that make up a bookable day.
// The returned slice is a copy and may be modified by the caller.
func TimeSlots() []string {
	out := make([]string, len(timeSlots))
	copy(out, timeSlots)
	return out
}

// IsTimeSlot reports whether label belongs to the schedule template.
func IsTimeSlot(label string) bool {
	for _, slot := range timeSlots {
		if slot == label {
			return true
		}
	}
	return false
}
