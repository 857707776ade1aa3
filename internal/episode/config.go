package episode

import "time"

// Config toggles the cross-entity rules
type Config struct {
	// AutoCreateCheckIn creates a check-in when a reservation completes
	AutoCreateCheckIn bool
	// AutoCompleteReservation completes the matching reservation when a
	// check-in backed treatment completes
	AutoCompleteReservation bool
	// AutoCreateTreatmentOnCheckIn opens an outpatient treatment when a
	// check-in completes
	AutoCreateTreatmentOnCheckIn bool
	// Location defines calendar dates for same-day matching
	Location *time.Location
}

// DefaultConfig enables every rule and matches dates in UTC
func DefaultConfig() Config {
	return Config{
		AutoCreateCheckIn:            true,
		AutoCompleteReservation:      true,
		AutoCreateTreatmentOnCheckIn: true,
		Location:                     time.UTC,
	}
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// DayBounds returns [start of day, start of next day) for t in loc
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
