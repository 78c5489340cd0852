package nodes

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/core"
	"bizassist/internal/storage"
	"bizassist/internal/tools"
	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppointmentConfig() config.AppointmentConfig {
	return config.AppointmentConfig{
		DefaultDuration:     30,
		SlotStep:            30,
		MaxAlternatives:     3,
		SearchDays:          7,
		RequireConfirmation: true,
		HoldTTL:             15 * time.Minute,
	}
}

// bookingSession replays a conversation against the appointment node
type bookingSession struct {
	t       *testing.T
	node    *AppointmentNode
	conv    string
	now     time.Time
	ids     []string
	history []pkg.Turn
}

func newSession(t *testing.T, node *AppointmentNode, conv string) *bookingSession {
	return &bookingSession{t: t, node: node, conv: conv, now: testNow}
}

func (s *bookingSession) say(message string) core.NodeOutput {
	s.t.Helper()
	in := testInput(message)
	in.ConversationID = s.conv
	in.AppointmentIDs = slices.Clone(s.ids)
	in.History = slices.Clone(s.history)
	in.Now = s.now

	out, err := s.node.Execute(context.Background(), in)
	require.NoError(s.t, err)
	for _, id := range out.AppointmentIDs {
		if !slices.Contains(s.ids, id) {
			s.ids = append(s.ids, id)
		}
	}
	s.history = append(s.history,
		pkg.Turn{Role: pkg.RoleUser, Text: message},
		pkg.Turn{Role: pkg.RoleAssistant, Text: out.Reply})
	return out
}

func toolNames(reqs []pkg.ToolRequest) []string {
	names := make([]string, len(reqs))
	for i, r := range reqs {
		names[i] = r.ToolName
	}
	return names
}

func newTestAppointmentNode(cfg config.AppointmentConfig) (*AppointmentNode, *storage.MemoryAppointmentStore) {
	store := storage.NewMemoryAppointmentStore()
	return NewAppointmentNode(store, cfg, NewKeywordClassifier(testClassifierConfig())), store
}

func TestAppointmentHoldThenConfirm(t *testing.T) {
	node, store := newTestAppointmentNode(testAppointmentConfig())
	s := newSession(t, node, "conv-1")

	out := s.say("I'd like to book Monday at 10am for 30 minutes")
	assert.Contains(t, out.Reply, "Monday, January 6 at 10:00-10:30 is available")
	assert.Contains(t, out.Reply, "15 minutes")
	assert.Empty(t, out.ToolRequests)
	require.Len(t, out.AppointmentIDs, 1)
	id := out.AppointmentIDs[0]

	held, err := store.Get(context.Background(), "acme", id)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusPending, held.Status)
	assert.Equal(t, "conv-1", held.ConversationID)
	assert.Equal(t, "Ann", held.CustomerName)

	out = s.say("yes")
	assert.Contains(t, out.Reply, "confirmed for Monday, January 6 at 10:00-10:30")
	assert.Equal(t, []string{tools.CreateCalendarEvent, tools.SendEmail}, toolNames(out.ToolRequests))

	event := out.ToolRequests[0].Parameters
	assert.Equal(t, id, event["event_id"])
	assert.Equal(t, "2025-01-06T10:00:00Z", event["start"])
	assert.Equal(t, "2025-01-06T10:30:00Z", event["end"])
	assert.Equal(t, "front@acme.test", out.ToolRequests[1].Parameters["to"])

	confirmed, err := store.Get(context.Background(), "acme", id)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusConfirmed, confirmed.Status)

	out = s.say("ok")
	assert.Contains(t, out.Reply, "already confirmed")
	assert.Empty(t, out.ToolRequests)
}

func TestAppointmentHoldBlocksOtherCustomers(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())

	first := newSession(t, node, "conv-1").say("book Monday at 10am for 30 minutes")
	require.Len(t, first.AppointmentIDs, 1)

	second := newSession(t, node, "conv-2").say("book Monday at 10am for 30 minutes")
	assert.Empty(t, second.AppointmentIDs)
	assert.Contains(t, second.Reply, "already taken")
	assert.Contains(t, second.Reply, "Monday, January 6 at 09:30-10:00, Monday, January 6 at 10:30-11:00 or Monday, January 6 at 09:00-09:30")
}

func TestAppointmentUnavailableReasons(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())

	tests := []struct {
		message string
		reason  string
	}{
		{"book Sunday at 10am", "We're closed on Sunday."},
		{"book Monday at 8am", "outside our opening hours on Monday (09:00-17:00)"},
		{"book Monday at 4:45pm", "outside our opening hours"},
		{"book today at 8:30am", "already passed"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			out := newSession(t, node, "conv-"+tt.message).say(tt.message)
			assert.Contains(t, out.Reply, tt.reason)
			assert.Contains(t, out.Reply, "nearest available times")
			assert.NotContains(t, out.Reply, "Sunday, January 5 at")
			assert.Empty(t, out.AppointmentIDs)
		})
	}
}

func TestAppointmentListsDaySlots(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())

	out := newSession(t, node, "conv-1").say("Can I come in on Saturday?")
	assert.Equal(t, "On Saturday, January 4 we have free times at 10:00, 10:30, 11:00, 11:30, 12:00 and 12:30. Which time suits you?", out.Reply)
}

func TestAppointmentProposesNextSlots(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())

	out := newSession(t, node, "conv-1").say("I want to book an appointment")
	assert.Contains(t, out.Reply, "When would you like to come in?")
	assert.Contains(t, out.Reply, "Wednesday, January 1 at 09:00-09:30")
}

func TestAppointmentFollowUpTimeUsesEarlierDate(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())
	s := newSession(t, node, "conv-1")

	s.say("Can I come in on Friday for an hour?")
	out := s.say("11am please")
	assert.Contains(t, out.Reply, "Friday, January 3 at 11:00-12:00 is available")
}

func TestAppointmentImmediateBooking(t *testing.T) {
	cfg := testAppointmentConfig()
	cfg.RequireConfirmation = false
	node, store := newTestAppointmentNode(cfg)

	out := newSession(t, node, "conv-1").say("Book Tuesday at 2pm, my email is ann@example.com")
	assert.Contains(t, out.Reply, "You're booked for Tuesday, January 7 at 14:00-14:30")
	require.Len(t, out.AppointmentIDs, 1)
	assert.Equal(t, []string{tools.CreateCalendarEvent, tools.SendEmail, tools.SendEmail}, toolNames(out.ToolRequests))
	assert.Equal(t, "ann@example.com", out.ToolRequests[0].Parameters["attendee"])
	assert.Equal(t, "ann@example.com", out.ToolRequests[2].Parameters["to"])

	rec, err := store.Get(context.Background(), "acme", out.AppointmentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusConfirmed, rec.Status)
	assert.Equal(t, "ann@example.com", rec.CustomerContact)
}

func TestAppointmentCancelAndReschedule(t *testing.T) {
	node, store := newTestAppointmentNode(testAppointmentConfig())
	ctx := context.Background()
	s := newSession(t, node, "conv-1")

	s.say("book Monday at 10am")
	s.say("yes")
	id := s.ids[0]

	out := s.say("can we move it to 2pm?")
	assert.Contains(t, out.Reply, "moved to Monday, January 6 at 14:00-14:30")
	assert.Equal(t, []string{tools.UpdateCalendarEvent, tools.SendEmail}, toolNames(out.ToolRequests))
	assert.Equal(t, "2025-01-06T14:00:00Z", out.ToolRequests[0].Parameters["start"])

	day, err := store.ListByDay(ctx, "acme", "2025-01-06")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, pkg.NewTimeOfDay(14, 0), day[0].Time)

	out = s.say("when is my appointment?")
	assert.Equal(t, "Your bookings: Monday, January 6 at 14:00-14:30 (confirmed).", out.Reply)

	out = s.say("please cancel my appointment")
	assert.Contains(t, out.Reply, "has been cancelled")
	assert.Equal(t, []string{tools.CancelCalendarEvent, tools.SendEmail}, toolNames(out.ToolRequests))
	assert.Equal(t, id, out.ToolRequests[0].Parameters["event_id"])

	rec, err := store.Get(ctx, "acme", id)
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusCancelled, rec.Status)

	out = s.say("cancel it")
	assert.Contains(t, out.Reply, "couldn't find an active booking")
}

func TestAppointmentDeclineReleasesHold(t *testing.T) {
	node, store := newTestAppointmentNode(testAppointmentConfig())
	s := newSession(t, node, "conv-1")

	s.say("book Monday at 10am")
	out := s.say("no thanks")
	assert.Contains(t, out.Reply, "released")

	rec, err := store.Get(context.Background(), "acme", s.ids[0])
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusCancelled, rec.Status)

	other := newSession(t, node, "conv-2").say("book Monday at 10am")
	assert.Len(t, other.AppointmentIDs, 1)
}

func TestAppointmentRepeatedRequestKeepsHold(t *testing.T) {
	node, store := newTestAppointmentNode(testAppointmentConfig())
	s := newSession(t, node, "conv-1")

	first := s.say("book Monday at 10am")
	again := s.say("book Monday at 10am")
	assert.Equal(t, first.AppointmentIDs, again.AppointmentIDs)
	assert.Contains(t, again.Reply, "already holding")

	day, err := store.ListByDay(context.Background(), "acme", "2025-01-06")
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestAppointmentExpiredHoldTaken(t *testing.T) {
	node, _ := newTestAppointmentNode(testAppointmentConfig())

	slow := newSession(t, node, "conv-1")
	slow.say("book Monday at 10am")

	fast := newSession(t, node, "conv-2")
	fast.now = testNow.Add(20 * time.Minute)
	out := fast.say("book Monday at 10am")
	require.Len(t, out.AppointmentIDs, 1)

	slow.now = testNow.Add(25 * time.Minute)
	out = slow.say("yes")
	assert.Contains(t, out.Reply, "expired and the slot was taken")
	assert.Empty(t, out.ToolRequests)
}

func TestAppointmentConcurrentBookingsOneWinner(t *testing.T) {
	cfg := testAppointmentConfig()
	cfg.RequireConfirmation = false
	node, store := newTestAppointmentNode(cfg)

	const customers = 16
	var wg sync.WaitGroup
	wins := make(chan string, customers)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := testInput("book Monday at 10am for 30 minutes")
			in.ConversationID = string(rune('a' + i))
			out, err := node.Execute(context.Background(), in)
			if err == nil && len(out.AppointmentIDs) == 1 {
				wins <- out.AppointmentIDs[0]
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
	day, err := store.ListByDay(context.Background(), "acme", "2025-01-06")
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestCalendarParamsOnDSTDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	rec := &pkg.AppointmentRecord{
		ID:              "appt-1",
		Date:            "2025-03-30",
		Time:            pkg.NewTimeOfDay(10, 0),
		DurationMinutes: 45,
		CustomerName:    "Ann",
	}

	params := calendarParams(&pkg.BusinessProfile{Name: "Praxis"}, rec, berlin, "ann@example.test")
	assert.Equal(t, "2025-03-30T10:00:00+02:00", params["start"])
	assert.Equal(t, "2025-03-30T10:45:00+02:00", params["end"])
	assert.Equal(t, "ann@example.test", params["attendee"])
}
