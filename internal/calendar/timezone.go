package calendar

import "time"

// DefaultTimezone is the provider's local zone.
const DefaultTimezone = "America/Sao_Paulo"

// IsValidTimezone reports whether tz names a loadable IANA location.
func IsValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Location resolves tz, falling back to DefaultTimezone and finally UTC when
// the zone database is unavailable.
func Location(tz string) *time.Location {
	if IsValidTimezone(tz) {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}
