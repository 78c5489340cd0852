package pkg

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Weekdays is the fixed set of working hours keys, Monday first
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayKey returns the working hours key of a weekday
func WeekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// TimeOfDay is minutes since midnight, written as HH:MM
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24:00 allowed as end of day)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// NewTimeOfDay builds a TimeOfDay from hours and minutes
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// On returns the wall-clock time t on the date of day, in day's location.
// The instant is built from the calendar fields so DST changes keep the clock reading.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DayHours is the opening window of one weekday
type DayHours struct {
	Open   TimeOfDay `json:"open" yaml:"open"`
	Close  TimeOfDay `json:"close" yaml:"close"`
	Closed bool      `json:"closed,omitempty" yaml:"closed,omitempty"`
}

// IsOpen reports whether the window has any opening time
func (h DayHours) IsOpen() bool {
	return !h.Closed && h.Open < h.Close
}

// BusinessProfile is a read-only snapshot of a business's static facts
type BusinessProfile struct {
	ID           string              `json:"id" yaml:"id"`
	Name         string              `json:"name" yaml:"name"`
	Description  string              `json:"description" yaml:"description"`
	Services     []string            `json:"services" yaml:"services"`
	WorkingHours map[string]DayHours `json:"working_hours" yaml:"working_hours"`
	ContactEmail string              `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	ContactPhone string              `json:"contact_phone,omitempty" yaml:"contact_phone,omitempty"`
	Timezone     string              `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Validate checks weekday keys and opening windows
func (p *BusinessProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("business id is required")
	}
	for day, hours := range p.WorkingHours {
		if !isWeekday(day) {
			return fmt.Errorf("invalid weekday %q in working hours of %s", day, p.ID)
		}
		if hours.Closed {
			continue
		}
		if hours.Open < 0 || hours.Close > 24*60 || hours.Open > hours.Close {
			return fmt.Errorf("invalid hours %s-%s on %s for %s", hours.Open, hours.Close, day, p.ID)
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q for %s: %w", p.Timezone, p.ID, err)
		}
	}
	return nil
}

// HoursOn returns the opening window of a weekday, false when the business is closed
func (p *BusinessProfile) HoursOn(d time.Weekday) (DayHours, bool) {
	hours, ok := p.WorkingHours[WeekdayKey(d)]
	if !ok || !hours.IsOpen() {
		return DayHours{}, false
	}
	return hours, true
}

// Location returns the business's time zone, UTC when unset or unknown
func (p *BusinessProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OpenDays lists the open weekday keys in week order
func (p *BusinessProfile) OpenDays() []string {
	var days []string
	for _, d := range Weekdays {
		if h, ok := p.WorkingHours[d]; ok && h.IsOpen() {
			days = append(days, d)
		}
	}
	return days
}

// ServiceList returns the services in declared order with blanks removed
func (p *BusinessProfile) ServiceList() []string {
	out := make([]string, 0, len(p.Services))
	for _, s := range p.Services {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func isWeekday(day string) bool {
	return slices.Contains(Weekdays, day)
}
