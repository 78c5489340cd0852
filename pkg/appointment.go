package pkg

import (
	"fmt"
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// DateLayout is the wire format of appointment dates
const DateLayout = "2006-01-02"

// AppointmentRecord is a booked (or held) slot of a business
type AppointmentRecord struct {
	ID              string            `json:"id"`
	BusinessID      string            `json:"business_id"`
	ConversationID  string            `json:"conversation_id,omitempty"`
	CustomerName    string            `json:"customer_name"`
	CustomerContact string            `json:"customer_contact,omitempty"`
	Date            string            `json:"date"`
	Time            TimeOfDay         `json:"time"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	HoldExpiresAt   *time.Time        `json:"hold_expires_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// End returns the exclusive end of the appointment
func (a *AppointmentRecord) End() TimeOfDay {
	return a.Time + TimeOfDay(a.DurationMinutes)
}

// Blocks reports whether the record occupies its slot at the given instant.
// Confirmed records always do; pending holds only until they expire.
func (a *AppointmentRecord) Blocks(now time.Time) bool {
	switch a.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return a.HoldExpiresAt == nil || now.Before(*a.HoldExpiresAt)
	}
	return false
}

// Active reports whether the record is pending or confirmed
func (a *AppointmentRecord) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// StartIn returns the appointment start as an instant in loc
func (a *AppointmentRecord) StartIn(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment date %q: %w", a.Date, err)
	}
	return a.Time.On(day), nil
}

// EndIn returns the appointment end as an instant in loc
func (a *AppointmentRecord) EndIn(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment date %q: %w", a.Date, err)
	}
	return a.End().On(day), nil
}

// Describe renders the slot for replies, e.g. "Monday, January 6 at 10:00-10:30"
func (a *AppointmentRecord) Describe() string {
	day, err := time.Parse(DateLayout, a.Date)
	if err != nil {
		return fmt.Sprintf("%s at %s-%s", a.Date, a.Time, a.End())
	}
	return fmt.Sprintf("%s at %s-%s", day.Format("Monday, January 2"), a.Time, a.End())
}
