package booking

import (
	"time"

	"github.com/example/agenda/internal/calendar"
)

// SlotState classifies one slot of a day for display.
type SlotState int

const (
	// SlotFree can be booked.
	SlotFree SlotState = iota
	// SlotTaken already has an occupant.
	SlotTaken
	// SlotUnavailable belongs to a past day.
	SlotUnavailable
)

// String returns a stable label for the state.
func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotTaken:
		return "taken"
	case SlotUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SlotStatus describes one slot of the template on a given day.
type SlotStatus struct {
	Label      string
	State      SlotState
	ClientName string
}

// DayAvailability is the derived view of one day.
type DayAvailability struct {
	Past      bool
	Vacancies int
	Slots     []SlotStatus
}

// Availability classifies every label in slots against day. On a past day
// every slot is unavailable and vacancies are zero regardless of occupancy.
// Bookings under labels that are not part of slots are ignored.
func Availability(day DailyBookings, slots []string, past bool) DayAvailability {
	result := DayAvailability{
		Past:  past,
		Slots: make([]SlotStatus, 0, len(slots)),
	}

	occupied := 0
	for _, label := range slots {
		status := SlotStatus{Label: label, State: SlotFree}
		b, taken := day[label]
		if taken {
			occupied++
			status.ClientName = b.ClientName
			status.State = SlotTaken
		}
		if past {
			status.State = SlotUnavailable
		}
		result.Slots = append(result.Slots, status)
	}

	if !past {
		result.Vacancies = len(slots) - occupied
	}
	return result
}

// ForDate derives the availability of date against the fixed schedule
// template, treating the day as past when it precedes the day of now.
func ForDate(table Table, date time.Time, now time.Time) DayAvailability {
	local := date.In(now.Location())
	return Availability(table.Day(calendar.DateKey(local)), calendar.TimeSlots(), calendar.IsPast(local, now))
}
