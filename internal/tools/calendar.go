package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CalendarEvent is one appointment on the business calendar
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Attendee    string
}

// CalendarBackend maintains events on the business calendar
type CalendarBackend interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	CancelEvent(ctx context.Context, ev CalendarEvent) (string, error)
}

// EmailCalendar keeps the owner's calendar in sync by mailing iCalendar
// invitations to the calendar owner
type EmailCalendar struct {
	sender EmailSender
	owner  string
	domain string
}

// NewEmailCalendar creates a calendar that mails events to owner
func NewEmailCalendar(sender EmailSender, owner string) *EmailCalendar {
	domain := "bizassist.local"
	if _, d, ok := strings.Cut(owner, "@"); ok && d != "" {
		domain = d
	}
	return &EmailCalendar{sender: sender, owner: owner, domain: domain}
}

// CreateEvent sends a REQUEST invitation
func (c *EmailCalendar) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	return c.send(ctx, ev, "REQUEST", 0, "New appointment")
}

// UpdateEvent sends a REQUEST with a bumped sequence
func (c *EmailCalendar) UpdateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	return c.send(ctx, ev, "REQUEST", 1, "Appointment updated")
}

// CancelEvent sends a CANCEL for the event
func (c *EmailCalendar) CancelEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	return c.send(ctx, ev, "CANCEL", 2, "Appointment cancelled")
}

func (c *EmailCalendar) send(ctx context.Context, ev CalendarEvent, method string, sequence int, label string) (string, error) {
	if c.owner == "" {
		return "", fmt.Errorf("calendar owner: %w", ErrNotConfigured)
	}
	if ev.ID == "" {
		return "", fmt.Errorf("event id is required")
	}
	if method != "CANCEL" && !ev.End.After(ev.Start) {
		return "", fmt.Errorf("event end must be after start")
	}

	uid := fmt.Sprintf("%s@%s", ev.ID, c.domain)
	subject := fmt.Sprintf("[Calendar] %s: %s", label, ev.Title)

	var body strings.Builder
	body.WriteString(label + "\n")
	body.WriteString("Title: " + ev.Title + "\n")
	if !ev.Start.IsZero() {
		body.WriteString("Start: " + ev.Start.Format(time.RFC1123) + "\n")
		body.WriteString("End: " + ev.End.Format(time.RFC1123) + "\n")
	}
	if ev.Attendee != "" {
		body.WriteString("Attendee: " + ev.Attendee + "\n")
	}
	if ev.Description != "" {
		body.WriteString("\n" + ev.Description + "\n")
	}
	body.WriteString("\n")
	body.WriteString(BuildICS(ev, uid, method, sequence, c.owner, time.Now()))

	if _, err := c.sender.SendEmail(ctx, c.owner, subject, body.String()); err != nil {
		return "", err
	}
	return uid, nil
}

// BuildICS renders a single-event iCalendar object (RFC 5545)
func BuildICS(ev CalendarEvent, uid, method string, sequence int, organizer string, stamp time.Time) string {
	const layout = "20060102T150405Z"
	status := "CONFIRMED"
	if method == "CANCEL" {
		status = "CANCELLED"
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//bizassist//appointments//EN",
		"METHOD:" + method,
		"BEGIN:VEVENT",
		"UID:" + uid,
		fmt.Sprintf("SEQUENCE:%d", sequence),
		"DTSTAMP:" + stamp.UTC().Format(layout),
	}
	if !ev.Start.IsZero() {
		lines = append(lines,
			"DTSTART:"+ev.Start.UTC().Format(layout),
			"DTEND:"+ev.End.UTC().Format(layout),
		)
	}
	lines = append(lines, "SUMMARY:"+escapeICS(ev.Title))
	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeICS(ev.Description))
	}
	if ev.Location != "" {
		lines = append(lines, "LOCATION:"+escapeICS(ev.Location))
	}
	if organizer != "" {
		lines = append(lines, "ORGANIZER:mailto:"+organizer)
	}
	if isValidEmail(ev.Attendee) {
		lines = append(lines, "ATTENDEE;RSVP=FALSE:mailto:"+ev.Attendee)
	}
	lines = append(lines,
		"STATUS:"+status,
		"END:VEVENT",
		"END:VCALENDAR",
	)
	return strings.Join(lines, "\r\n") + "\r\n"
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`, "\r", `\n`)

func escapeICS(s string) string {
	return icsEscaper.Replace(s)
}
