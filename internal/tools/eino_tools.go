package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// Tool names
const (
	SendEmail           = "send_email"
	SendMessage         = "send_message"
	CreateCalendarEvent = "create_calendar_event"
	UpdateCalendarEvent = "update_calendar_event"
	CancelCalendarEvent = "cancel_calendar_event"
)

// EmailArgs are the parameters of send_email
type EmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MessageArgs are the parameters of send_message
type MessageArgs struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// CalendarArgs are the parameters of the calendar tools. Start and end are RFC 3339.
type CalendarArgs struct {
	EventID     string `json:"event_id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Attendee    string `json:"attendee"`
}

// Delivery is what every tool returns
type Delivery struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// EmailTool creates the send_email tool
func EmailTool(sender EmailSender, provider string) (tool.InvokableTool, error) {
	return utils.InferTool(SendEmail, "Send a plain-text email to one recipient",
		func(ctx context.Context, args EmailArgs) (Delivery, error) {
			if strings.TrimSpace(args.Body) == "" {
				return Delivery{}, fmt.Errorf("email body is empty")
			}
			id, err := sender.SendEmail(ctx, strings.TrimSpace(args.To), args.Subject, args.Body)
			if err != nil {
				return Delivery{}, err
			}
			return Delivery{ID: id, Provider: provider}, nil
		})
}

// MessageTool creates the send_message tool
func MessageTool(sender MessageSender, provider string) (tool.InvokableTool, error) {
	return utils.InferTool(SendMessage, "Send a short text message to a phone number",
		func(ctx context.Context, args MessageArgs) (Delivery, error) {
			if strings.TrimSpace(args.Body) == "" {
				return Delivery{}, fmt.Errorf("message body is empty")
			}
			id, err := sender.SendMessage(ctx, args.To, args.Body)
			if err != nil {
				return Delivery{}, err
			}
			return Delivery{ID: id, Provider: provider}, nil
		})
}

// CalendarTools creates create_calendar_event, update_calendar_event and cancel_calendar_event
func CalendarTools(backend CalendarBackend, provider string) ([]tool.InvokableTool, error) {
	specs := []struct {
		name string
		desc string
		run  func(context.Context, CalendarEvent) (string, error)
	}{
		{CreateCalendarEvent, "Add an appointment to the business calendar", backend.CreateEvent},
		{UpdateCalendarEvent, "Move an appointment on the business calendar", backend.UpdateEvent},
		{CancelCalendarEvent, "Remove an appointment from the business calendar", backend.CancelEvent},
	}

	out := make([]tool.InvokableTool, 0, len(specs))
	for _, s := range specs {
		requireTimes := s.name != CancelCalendarEvent
		run := s.run
		t, err := utils.InferTool(s.name, s.desc,
			func(ctx context.Context, args CalendarArgs) (Delivery, error) {
				ev, err := args.event(requireTimes)
				if err != nil {
					return Delivery{}, err
				}
				id, err := run(ctx, ev)
				if err != nil {
					return Delivery{}, err
				}
				return Delivery{ID: id, Provider: provider}, nil
			})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", s.name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (a CalendarArgs) event(requireTimes bool) (CalendarEvent, error) {
	ev := CalendarEvent{
		ID:          a.EventID,
		Title:       a.Title,
		Description: a.Description,
		Location:    a.Location,
		Attendee:    a.Attendee,
	}
	if a.EventID == "" {
		return ev, fmt.Errorf("event_id is required")
	}
	if a.Start == "" && a.End == "" && !requireTimes {
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, a.Start)
	if err != nil {
		return ev, fmt.Errorf("invalid start %q: %w", a.Start, err)
	}
	end, err := time.Parse(time.RFC3339, a.End)
	if err != nil {
		return ev, fmt.Errorf("invalid end %q: %w", a.End, err)
	}
	ev.Start, ev.End = start, end
	return ev, nil
}
