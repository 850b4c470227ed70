package booking

import "sort"

// Appointment is one booked slot in a summary.
type Appointment struct {
	Slot       string
	ClientName string
}

// DaySummary groups the appointments of one date.
type DaySummary struct {
	Date         string
	Appointments []Appointment
}

// Upcoming lists the days on or after today in chronological order, each with
// its appointments sorted by slot label. Days without appointments are
// omitted. today is a DateKey.
func Upcoming(table Table, today string) []DaySummary {
	dates := make([]string, 0, len(table))
	for date, day := range table {
		if date < today || len(day) == 0 {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)

	summaries := make([]DaySummary, 0, len(dates))
	for _, date := range dates {
		day := table[date]
		slots := make([]string, 0, len(day))
		for slot := range day {
			slots = append(slots, slot)
		}
		sort.Strings(slots)

		appointments := make([]Appointment, 0, len(slots))
		for _, slot := range slots {
			appointments = append(appointments, Appointment{Slot: slot, ClientName: day[slot].ClientName})
		}
		summaries = append(summaries, DaySummary{Date: date, Appointments: appointments})
	}
	return summaries
}
