package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/example/agenda/internal/calendar"
)

// ValidationError captures field level validation issues that callers can
// surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ValidateClientName trims name and rejects it when nothing is left. The
// store itself accepts any name; this check belongs to whoever collects it.
func ValidateClientName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		vErr := &ValidationError{}
		vErr.add("clientName", "client name is required")
		return "", vErr
	}
	return trimmed, nil
}

// Request is a booking as submitted by a visitor.
type Request struct {
	Date       string
	Slot       string
	ClientName string
}

// Validate checks the request the way the booking form does: the name must
// not be blank, the slot must belong to the template and the date must be a
// DateKey that is not before the day of now. It returns the request with the
// name trimmed.
func (r Request) Validate(loc *time.Location, now time.Time) (Request, error) {
	vErr := &ValidationError{}

	name, err := ValidateClientName(r.ClientName)
	if err != nil {
		vErr.add("clientName", "client name is required")
	}
	if !calendar.IsTimeSlot(r.Slot) {
		vErr.add("slot", "slot is not part of the schedule")
	}
	day, err := calendar.ParseDateKey(r.Date, loc)
	switch {
	case err != nil:
		vErr.add("date", "date must be YYYY-MM-DD")
	case calendar.IsPast(day, now.In(loc)):
		vErr.add("date", "past days cannot be booked")
	}

	if vErr.HasErrors() {
		return Request{}, vErr
	}
	r.ClientName = name
	return r, nil
}
