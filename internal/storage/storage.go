package storage

import (
	"context"
	"errors"
	"time"

	"bizassist/pkg"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
	ErrBusinessNotFound     = errors.New("business not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	// ErrSlotTaken is returned when a booking would overlap a blocking record
	ErrSlotTaken = errors.New("slot is no longer available")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids
	ErrInvalidTransition = errors.New("invalid appointment status change")
)

// ConversationStore persists conversation state. Append is atomic per call.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*pkg.ConversationState, error)
	Create(ctx context.Context, state *pkg.ConversationState) error
	Append(ctx context.Context, id string, update pkg.ConversationUpdate) (*pkg.ConversationState, error)
}

// ProfileStore looks up business profiles
type ProfileStore interface {
	GetProfile(ctx context.Context, businessID string) (*pkg.BusinessProfile, error)
}

// AppointmentStore keeps appointment records. Book, Confirm and Reschedule
// check for overlaps and write in one atomic step per (business, date), so two
// concurrent requests for the same slot cannot both succeed.
type AppointmentStore interface {
	Book(ctx context.Context, rec pkg.AppointmentRecord, now time.Time) (*pkg.AppointmentRecord, error)
	Get(ctx context.Context, businessID, id string) (*pkg.AppointmentRecord, error)
	ListByDay(ctx context.Context, businessID, date string) ([]pkg.AppointmentRecord, error)
	Confirm(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error)
	Cancel(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error)
	Reschedule(ctx context.Context, businessID, id, date string, start pkg.TimeOfDay, duration int, now time.Time) (*pkg.AppointmentRecord, error)
}

// LeadStore records prospective customers
type LeadStore interface {
	SaveLead(ctx context.Context, lead pkg.Lead) (bool, error)
	LoadLeads(ctx context.Context, businessID string) ([]pkg.Lead, error)
}

func dayKey(businessID, date string) string {
	return businessID + "|" + date
}
