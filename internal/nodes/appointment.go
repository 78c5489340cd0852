package nodes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/core"
	"bizassist/internal/logger"
	"bizassist/internal/metrics"
	"bizassist/internal/scheduling"
	"bizassist/internal/storage"
	"bizassist/internal/tools"
	"bizassist/pkg"
)

type appointmentAction string

const (
	actionBook       appointmentAction = "book"
	actionConfirm    appointmentAction = "confirm"
	actionDecline    appointmentAction = "decline"
	actionCancel     appointmentAction = "cancel"
	actionReschedule appointmentAction = "reschedule"
	actionStatus     appointmentAction = "status"
)

var (
	cancelPattern     = regexp.MustCompile(`\b(cancel|call off)\b`)
	reschedulePattern = regexp.MustCompile(`\b(reschedule|move|change|another time|different time|instead|postpone)\b`)
	statusPattern     = regexp.MustCompile(`\b(my (booking|appointment|reservation)s?|status|when is my|do i have)\b`)
	declineReplies    = map[string]bool{"no": true, "no thanks": true, "no thank you": true, "nope": true, "never mind": true, "nevermind": true}
)

// maxDaySlots bounds the slot list of a day without a requested time
const maxDaySlots = 6

// AppointmentNode checks availability and books, confirms, cancels and
// reschedules appointments of the conversation
type AppointmentNode struct {
	store               storage.AppointmentStore
	planner             scheduling.Planner
	defaultDuration     int
	requireConfirmation bool
	holdTTL             time.Duration
	classifier          *KeywordClassifier
}

// NewAppointmentNode creates the appointment responder. classifier supplies
// the confirmation vocabulary.
func NewAppointmentNode(store storage.AppointmentStore, cfg config.AppointmentConfig, classifier *KeywordClassifier) *AppointmentNode {
	planner := scheduling.DefaultPlanner()
	if cfg.SlotStep > 0 {
		planner.StepMinutes = cfg.SlotStep
	}
	if cfg.MaxAlternatives > 0 {
		planner.MaxAlternatives = cfg.MaxAlternatives
	}
	if cfg.SearchDays > 0 {
		planner.SearchDays = cfg.SearchDays
	}
	duration := cfg.DefaultDuration
	if duration <= 0 {
		duration = 30
	}
	return &AppointmentNode{
		store:               store,
		planner:             planner,
		defaultDuration:     duration,
		requireConfirmation: cfg.RequireConfirmation,
		holdTTL:             cfg.HoldTTL,
		classifier:          classifier,
	}
}

// appointmentTurn carries the per-turn values every action needs
type appointmentTurn struct {
	input   core.NodeInput
	profile *pkg.BusinessProfile
	loc     *time.Location
	now     time.Time
	records []pkg.AppointmentRecord
}

// Execute dispatches on the action the message asks for
func (a *AppointmentNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	if input.Profile == nil {
		return core.NodeOutput{}, fmt.Errorf("appointment responder requires a business profile")
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := input.Profile.Location()
	turn := &appointmentTurn{input: input, profile: input.Profile, loc: loc, now: now.In(loc)}

	records, err := a.conversationRecords(ctx, input)
	if err != nil {
		return core.NodeOutput{}, err
	}
	turn.records = records

	action := a.action(input.UserMessage, turn)
	logger.Debug().
		Str("business_id", input.BusinessID).
		Str("conversation_id", input.ConversationID).
		Str("action", string(action)).
		Msg("Appointment request")

	switch action {
	case actionConfirm:
		return a.confirm(ctx, turn)
	case actionDecline:
		return a.decline(ctx, turn)
	case actionCancel:
		return a.cancel(ctx, turn)
	case actionReschedule:
		return a.reschedule(ctx, turn)
	case actionStatus:
		return a.status(turn), nil
	}
	return a.book(ctx, turn)
}

// GetName returns the node name
func (a *AppointmentNode) GetName() string {
	return "appointment"
}

// GetType returns the node type
func (a *AppointmentNode) GetType() core.NodeType {
	return core.NodeTypeEvidence
}

func (a *AppointmentNode) action(message string, turn *appointmentTurn) appointmentAction {
	lower := strings.ToLower(message)
	pending := latest(turn.records, pkg.StatusPending, turn.now) != nil
	active := latestActive(turn.records, turn.now) != nil

	switch {
	case cancelPattern.MatchString(lower):
		return actionCancel
	case pending && a.classifier != nil && a.classifier.IsConfirmation(message):
		return actionConfirm
	case pending && declineReplies[normalizeReply(message)]:
		return actionDecline
	case active && reschedulePattern.MatchString(lower):
		return actionReschedule
	case statusPattern.MatchString(lower):
		return actionStatus
	case !pending && a.classifier != nil && a.classifier.IsConfirmation(message) && len(turn.records) > 0:
		return actionConfirm
	}
	return actionBook
}

// conversationRecords loads the appointments referenced by the conversation in order
func (a *AppointmentNode) conversationRecords(ctx context.Context, input core.NodeInput) ([]pkg.AppointmentRecord, error) {
	var records []pkg.AppointmentRecord
	for _, id := range input.AppointmentIDs {
		rec, err := a.store.Get(ctx, input.BusinessID, id)
		if errors.Is(err, storage.ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load appointment %s: %w", id, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// latest returns the newest record with status; pending holds must still be live
func latest(records []pkg.AppointmentRecord, status pkg.AppointmentStatus, now time.Time) *pkg.AppointmentRecord {
	for i := len(records) - 1; i >= 0; i-- {
		r := &records[i]
		if r.Status != status {
			continue
		}
		if status == pkg.StatusPending && !r.Blocks(now) {
			continue
		}
		return r
	}
	return nil
}

func latestActive(records []pkg.AppointmentRecord, now time.Time) *pkg.AppointmentRecord {
	for i := len(records) - 1; i >= 0; i-- {
		r := &records[i]
		if r.Status == pkg.StatusConfirmed || (r.Status == pkg.StatusPending && r.Blocks(now)) {
			return r
		}
	}
	return nil
}

// request is a parsed booking request; zero fields were not mentioned
type request struct {
	date     time.Time
	hasDate  bool
	start    pkg.TimeOfDay
	hasTime  bool
	duration int
}

// parseRequest reads date, time and duration from the message, taking a
// missing date or duration from earlier customer turns
func (a *AppointmentNode) parseRequest(turn *appointmentTurn, fallbackDuration int) request {
	msg := turn.input.UserMessage
	var req request
	req.date, req.hasDate = ParseDate(msg, turn.now)
	req.start, req.hasTime = ParseTimeOfDay(msg)
	duration, ok := ParseDurationMinutes(msg)

	for i := len(turn.input.History) - 1; i >= 0 && (!req.hasDate || !ok); i-- {
		t := turn.input.History[i]
		if t.Role != pkg.RoleUser {
			continue
		}
		if !req.hasDate && req.hasTime {
			req.date, req.hasDate = ParseDate(t.Text, turn.now)
		}
		if !ok {
			duration, ok = ParseDurationMinutes(t.Text)
		}
	}

	if !ok {
		duration = fallbackDuration
	}
	req.duration = duration
	if req.hasTime && !req.hasDate {
		req.date, req.hasDate = scheduling.Midnight(turn.now, turn.loc), true
	}
	return req
}

func (a *AppointmentNode) book(ctx context.Context, turn *appointmentTurn) (core.NodeOutput, error) {
	req := a.parseRequest(turn, a.defaultDuration)
	biz := turn.input.BusinessID

	if !req.hasDate {
		slots, err := a.planner.Nearest(ctx, turn.profile, turn.now, req.duration, turn.now, a.busyFunc(biz, turn.now, ""))
		if err != nil {
			return core.NodeOutput{}, err
		}
		if len(slots) == 0 {
			return core.NodeOutput{Reply: a.noSlotsReply("When would you like to come in?")}, nil
		}
		return core.NodeOutput{Reply: fmt.Sprintf("When would you like to come in? The next available times are %s.", describeSlots(slots))}, nil
	}

	if !req.hasTime {
		return a.listDay(ctx, turn, req, "")
	}

	slot := scheduling.Slot{Date: req.date, Start: req.start, End: req.start + pkg.TimeOfDay(req.duration)}

	// the same slot asked twice in one conversation returns the existing booking
	for i := len(turn.records) - 1; i >= 0; i-- {
		r := turn.records[i]
		if r.Date == slot.DateString() && r.Time == slot.Start && r.DurationMinutes == req.duration && (r.Status == pkg.StatusConfirmed || r.Blocks(turn.now)) {
			return core.NodeOutput{Reply: existingReply(&r), AppointmentIDs: []string{r.ID}}, nil
		}
	}

	busy, err := a.busyFunc(biz, turn.now, "")(ctx, slot.DateString())
	if err != nil {
		return core.NodeOutput{}, err
	}
	if !a.planner.IsFree(turn.profile, slot, busy, turn.now) {
		return a.alternatives(ctx, turn, slot, req.duration, "", a.unavailableReason(turn, slot))
	}

	contact := customerContact(turn)
	rec := pkg.AppointmentRecord{
		BusinessID:      biz,
		ConversationID:  turn.input.ConversationID,
		CustomerName:    turn.input.UserName,
		CustomerContact: contact,
		Date:            slot.DateString(),
		Time:            slot.Start,
		DurationMinutes: req.duration,
		Status:          pkg.StatusConfirmed,
	}
	if a.requireConfirmation {
		rec.Status = pkg.StatusPending
		if a.holdTTL > 0 {
			expires := turn.now.Add(a.holdTTL)
			rec.HoldExpiresAt = &expires
		}
	}

	booked, err := a.store.Book(ctx, rec, turn.now)
	if errors.Is(err, storage.ErrSlotTaken) {
		metrics.BookingConflicts.Inc()
		return a.alternatives(ctx, turn, slot, req.duration, "", "Sorry, that slot was just taken.")
	}
	if err != nil {
		return core.NodeOutput{}, fmt.Errorf("failed to book appointment: %w", err)
	}

	logger.Info().
		Str("business_id", biz).
		Str("appointment_id", booked.ID).
		Str("status", string(booked.Status)).
		Str("slot", booked.Describe()).
		Msg("Appointment booked")

	if booked.Status == pkg.StatusPending {
		reply := fmt.Sprintf("Good news, %s is available.", booked.Describe())
		if a.holdTTL > 0 {
			reply += fmt.Sprintf(" I'm holding it for you for %s.", humanDuration(a.holdTTL))
		}
		reply += ` Reply "yes" to confirm the booking.`
		return core.NodeOutput{Reply: reply, AppointmentIDs: []string{booked.ID}}, nil
	}
	return core.NodeOutput{
		Reply:          fmt.Sprintf("You're booked for %s.", booked.Describe()),
		AppointmentIDs: []string{booked.ID},
		ToolRequests:   a.confirmedRequests(turn, booked, contact),
	}, nil
}

// listDay proposes the free slots of the requested date
func (a *AppointmentNode) listDay(ctx context.Context, turn *appointmentTurn, req request, exclude string) (core.NodeOutput, error) {
	dayName := req.date.Weekday().String()
	if _, open := scheduling.OpenWindow(turn.profile, req.date); !open {
		return a.alternatives(ctx, turn, scheduling.Slot{Date: req.date}, req.duration, exclude, fmt.Sprintf("We're closed on %s.", dayName))
	}
	busy, err := a.busyFunc(turn.input.BusinessID, turn.now, exclude)(ctx, req.date.Format(pkg.DateLayout))
	if err != nil {
		return core.NodeOutput{}, err
	}
	slots := a.planner.DaySlots(turn.profile, req.date, busy, req.duration, turn.now)
	if len(slots) == 0 {
		return a.alternatives(ctx, turn, scheduling.Slot{Date: req.date}, req.duration, exclude,
			fmt.Sprintf("There are no free times left on %s.", req.date.Format("Monday, January 2")))
	}
	if len(slots) > maxDaySlots {
		slots = slots[:maxDaySlots]
	}
	starts := make([]string, len(slots))
	for i, s := range slots {
		starts[i] = s.Start.String()
	}
	return core.NodeOutput{Reply: fmt.Sprintf("On %s we have free times at %s. Which time suits you?",
		req.date.Format("Monday, January 2"), joinList(starts))}, nil
}

// alternatives explains why the slot cannot be booked and proposes the nearest free ones
func (a *AppointmentNode) alternatives(ctx context.Context, turn *appointmentTurn, slot scheduling.Slot, duration int, exclude, reason string) (core.NodeOutput, error) {
	requested := slot.StartTime()
	slots, err := a.planner.Nearest(ctx, turn.profile, requested, duration, turn.now, a.busyFunc(turn.input.BusinessID, turn.now, exclude))
	if err != nil {
		return core.NodeOutput{}, err
	}
	if len(slots) == 0 {
		return core.NodeOutput{Reply: a.noSlotsReply(reason)}, nil
	}
	return core.NodeOutput{Reply: fmt.Sprintf("%s The nearest available times are %s. Which one would you like?", reason, describeSlots(slots))}, nil
}

func (a *AppointmentNode) noSlotsReply(prefix string) string {
	return fmt.Sprintf("%s I couldn't find a free time in the next %d days, please contact us directly.", prefix, a.planner.SearchDays)
}

// unavailableReason tells the customer why a slot failed IsFree
func (a *AppointmentNode) unavailableReason(turn *appointmentTurn, slot scheduling.Slot) string {
	open, ok := scheduling.OpenWindow(turn.profile, slot.Date)
	switch {
	case !ok:
		return fmt.Sprintf("We're closed on %s.", slot.Date.Weekday())
	case slot.StartTime().Before(turn.now):
		return "That time has already passed."
	case int(slot.Start) < open.Start || int(slot.End) > open.End:
		return fmt.Sprintf("That time is outside our opening hours on %s (%s-%s).",
			slot.Date.Weekday(), pkg.TimeOfDay(open.Start), pkg.TimeOfDay(open.End))
	}
	return fmt.Sprintf("Sorry, %s is already taken.", slot)
}

func (a *AppointmentNode) confirm(ctx context.Context, turn *appointmentTurn) (core.NodeOutput, error) {
	pending := latest(turn.records, pkg.StatusPending, turn.now)
	if pending == nil {
		// an expired hold can still be confirmed while its slot is free
		for i := len(turn.records) - 1; i >= 0; i-- {
			if turn.records[i].Status == pkg.StatusPending {
				pending = &turn.records[i]
				break
			}
		}
	}
	if pending == nil {
		if c := latest(turn.records, pkg.StatusConfirmed, turn.now); c != nil {
			return core.NodeOutput{Reply: fmt.Sprintf("Your appointment on %s is already confirmed.", c.Describe())}, nil
		}
		return core.NodeOutput{Reply: "There is no booking waiting for confirmation. When would you like to come in?"}, nil
	}

	confirmed, err := a.store.Confirm(ctx, turn.input.BusinessID, pending.ID, turn.now)
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		metrics.BookingConflicts.Inc()
		slot := recordSlot(pending, turn.loc)
		return a.alternatives(ctx, turn, slot, pending.DurationMinutes, pending.ID,
			fmt.Sprintf("Sorry, the hold on %s expired and the slot was taken.", pending.Describe()))
	case errors.Is(err, storage.ErrInvalidTransition):
		return core.NodeOutput{Reply: "That booking was cancelled. Would you like to book a new time?"}, nil
	case err != nil:
		return core.NodeOutput{}, fmt.Errorf("failed to confirm appointment: %w", err)
	}

	contact := confirmed.CustomerContact
	if contact == "" {
		contact = customerContact(turn)
	}
	logger.Info().
		Str("business_id", confirmed.BusinessID).
		Str("appointment_id", confirmed.ID).
		Msg("Appointment confirmed")

	return core.NodeOutput{
		Reply:          fmt.Sprintf("Your appointment is confirmed for %s.", confirmed.Describe()),
		AppointmentIDs: []string{confirmed.ID},
		ToolRequests:   a.confirmedRequests(turn, confirmed, contact),
	}, nil
}

func (a *AppointmentNode) decline(ctx context.Context, turn *appointmentTurn) (core.NodeOutput, error) {
	pending := latest(turn.records, pkg.StatusPending, turn.now)
	if _, err := a.store.Cancel(ctx, turn.input.BusinessID, pending.ID, turn.now); err != nil {
		return core.NodeOutput{}, fmt.Errorf("failed to release hold: %w", err)
	}
	return core.NodeOutput{
		Reply:          "No problem, I've released that time. Let me know if another time works for you.",
		AppointmentIDs: []string{pending.ID},
	}, nil
}

func (a *AppointmentNode) cancel(ctx context.Context, turn *appointmentTurn) (core.NodeOutput, error) {
	rec := latestActive(turn.records, turn.now)
	if rec == nil {
		return core.NodeOutput{Reply: "I couldn't find an active booking in this conversation to cancel."}, nil
	}
	wasConfirmed := rec.Status == pkg.StatusConfirmed

	cancelled, err := a.store.Cancel(ctx, turn.input.BusinessID, rec.ID, turn.now)
	if err != nil {
		return core.NodeOutput{}, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	out := core.NodeOutput{
		Reply:          fmt.Sprintf("Your appointment on %s has been cancelled.", cancelled.Describe()),
		AppointmentIDs: []string{cancelled.ID},
	}
	if wasConfirmed {
		out.ToolRequests = append(out.ToolRequests, pkg.ToolRequest{
			ToolName:   tools.CancelCalendarEvent,
			Parameters: map[string]string{"event_id": cancelled.ID, "title": eventTitle(turn.profile, cancelled)},
		})
		if req, ok := businessNotice(turn.profile, "Cancelled booking: "+cancelled.Describe(), bookingSummary(cancelled)); ok {
			out.ToolRequests = append(out.ToolRequests, req)
		}
	}
	return out, nil
}

func (a *AppointmentNode) reschedule(ctx context.Context, turn *appointmentTurn) (core.NodeOutput, error) {
	rec := latestActive(turn.records, turn.now)
	req := a.parseRequest(turn, rec.DurationMinutes)
	if _, dated := ParseDate(turn.input.UserMessage, turn.now); !dated {
		// a bare time keeps the appointment's day
		day, err := time.ParseInLocation(pkg.DateLayout, rec.Date, turn.loc)
		if err != nil {
			return core.NodeOutput{}, fmt.Errorf("invalid appointment date %q: %w", rec.Date, err)
		}
		req.date, req.hasDate = day, req.hasTime
	}
	if !req.hasDate {
		return core.NodeOutput{Reply: fmt.Sprintf("Sure, when would you like to move your appointment on %s to?", rec.Describe())}, nil
	}
	if !req.hasTime {
		return a.listDay(ctx, turn, req, rec.ID)
	}

	slot := scheduling.Slot{Date: req.date, Start: req.start, End: req.start + pkg.TimeOfDay(req.duration)}
	busy, err := a.busyFunc(turn.input.BusinessID, turn.now, rec.ID)(ctx, slot.DateString())
	if err != nil {
		return core.NodeOutput{}, err
	}
	if !a.planner.IsFree(turn.profile, slot, busy, turn.now) {
		return a.alternatives(ctx, turn, slot, req.duration, rec.ID, a.unavailableReason(turn, slot))
	}

	moved, err := a.store.Reschedule(ctx, turn.input.BusinessID, rec.ID, slot.DateString(), slot.Start, req.duration, turn.now)
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		metrics.BookingConflicts.Inc()
		return a.alternatives(ctx, turn, slot, req.duration, rec.ID, "Sorry, that slot was just taken.")
	case errors.Is(err, storage.ErrInvalidTransition):
		return core.NodeOutput{Reply: "That booking can no longer be changed. Would you like to book a new time?"}, nil
	case err != nil:
		return core.NodeOutput{}, fmt.Errorf("failed to reschedule appointment: %w", err)
	}

	out := core.NodeOutput{
		Reply:          fmt.Sprintf("Your appointment has been moved to %s.", moved.Describe()),
		AppointmentIDs: []string{moved.ID},
	}
	if moved.Status == pkg.StatusPending {
		out.Reply += ` Reply "yes" to confirm it.`
		return out, nil
	}
	params := calendarParams(turn.profile, moved, turn.loc, moved.CustomerContact)
	out.ToolRequests = append(out.ToolRequests, pkg.ToolRequest{ToolName: tools.UpdateCalendarEvent, Parameters: params})
	if req, ok := businessNotice(turn.profile, "Rescheduled booking: "+moved.Describe(), bookingSummary(moved)); ok {
		out.ToolRequests = append(out.ToolRequests, req)
	}
	return out, nil
}

func (a *AppointmentNode) status(turn *appointmentTurn) core.NodeOutput {
	var lines []string
	for _, r := range turn.records {
		switch {
		case r.Status == pkg.StatusConfirmed:
			lines = append(lines, r.Describe()+" (confirmed)")
		case r.Status == pkg.StatusPending && r.Blocks(turn.now):
			lines = append(lines, r.Describe()+" (waiting for your confirmation)")
		}
	}
	if len(lines) == 0 {
		return core.NodeOutput{Reply: "You don't have any bookings in this conversation yet. Would you like to book a time?"}
	}
	return core.NodeOutput{Reply: "Your bookings: " + strings.Join(lines, "; ") + "."}
}

// busyFunc loads the blocking intervals of a date, ignoring exclude
func (a *AppointmentNode) busyFunc(businessID string, now time.Time, exclude string) scheduling.BusyFunc {
	return func(ctx context.Context, date string) ([]scheduling.Interval, error) {
		records, err := a.store.ListByDay(ctx, businessID, date)
		if err != nil {
			return nil, fmt.Errorf("failed to list appointments: %w", err)
		}
		return scheduling.BusyIntervals(records, now, exclude), nil
	}
}

// confirmedRequests are the side effects of a confirmed booking
func (a *AppointmentNode) confirmedRequests(turn *appointmentTurn, rec *pkg.AppointmentRecord, contact string) []pkg.ToolRequest {
	requests := []pkg.ToolRequest{{
		ToolName:   tools.CreateCalendarEvent,
		Parameters: calendarParams(turn.profile, rec, turn.loc, contact),
	}}
	if req, ok := businessNotice(turn.profile, "New booking: "+rec.Describe(), bookingSummary(rec)); ok {
		requests = append(requests, req)
	}
	if email, ok := ExtractEmail(contact); ok {
		requests = append(requests, pkg.ToolRequest{
			ToolName: tools.SendEmail,
			Parameters: map[string]string{
				"to":      email,
				"subject": fmt.Sprintf("Your appointment with %s", turn.profile.Name),
				"body":    fmt.Sprintf("Hello %s,\n\nyour appointment with %s is confirmed for %s.\n", rec.CustomerName, turn.profile.Name, rec.Describe()),
			},
		})
	} else if phone, ok := ExtractPhone(contact); ok {
		requests = append(requests, pkg.ToolRequest{
			ToolName: tools.SendMessage,
			Parameters: map[string]string{
				"to":   phone,
				"body": fmt.Sprintf("Your appointment with %s is confirmed for %s.", turn.profile.Name, rec.Describe()),
			},
		})
	}
	return requests
}

func calendarParams(profile *pkg.BusinessProfile, rec *pkg.AppointmentRecord, loc *time.Location, contact string) map[string]string {
	params := map[string]string{
		"event_id":    rec.ID,
		"title":       eventTitle(profile, rec),
		"description": bookingSummary(rec),
		"location":    profile.Name,
	}
	start, err := rec.StartIn(loc)
	if err == nil {
		params["start"] = start.Format(time.RFC3339)
	}
	if end, err := rec.EndIn(loc); err == nil {
		params["end"] = end.Format(time.RFC3339)
	}
	if email, ok := ExtractEmail(contact); ok {
		params["attendee"] = email
	}
	return params
}

// businessNotice emails the business contact, false when it has none
func businessNotice(profile *pkg.BusinessProfile, subject, body string) (pkg.ToolRequest, bool) {
	if profile.ContactEmail == "" {
		return pkg.ToolRequest{}, false
	}
	return pkg.ToolRequest{
		ToolName:   tools.SendEmail,
		Parameters: map[string]string{"to": profile.ContactEmail, "subject": subject, "body": body},
	}, true
}

func eventTitle(profile *pkg.BusinessProfile, rec *pkg.AppointmentRecord) string {
	if rec.CustomerName == "" {
		return "Appointment at " + profile.Name
	}
	return fmt.Sprintf("Appointment with %s", rec.CustomerName)
}

func bookingSummary(rec *pkg.AppointmentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", rec.CustomerName)
	if rec.CustomerContact != "" {
		fmt.Fprintf(&b, "Contact: %s\n", rec.CustomerContact)
	}
	fmt.Fprintf(&b, "When: %s (%d minutes)\n", rec.Describe(), rec.DurationMinutes)
	fmt.Fprintf(&b, "Reference: %s\n", rec.ID)
	return b.String()
}

func existingReply(rec *pkg.AppointmentRecord) string {
	if rec.Status == pkg.StatusConfirmed {
		return fmt.Sprintf("You're already booked for %s.", rec.Describe())
	}
	return fmt.Sprintf(`I'm already holding %s for you. Reply "yes" to confirm the booking.`, rec.Describe())
}

// customerContact finds an email address or phone number in the customer's turns
func customerContact(turn *appointmentTurn) string {
	texts := []string{turn.input.UserMessage}
	for i := len(turn.input.History) - 1; i >= 0; i-- {
		if turn.input.History[i].Role == pkg.RoleUser {
			texts = append(texts, turn.input.History[i].Text)
		}
	}
	for _, t := range texts {
		if email, ok := ExtractEmail(t); ok {
			return email
		}
		if phone, ok := ExtractPhone(t); ok {
			return phone
		}
	}
	return ""
}

func recordSlot(rec *pkg.AppointmentRecord, loc *time.Location) scheduling.Slot {
	day, err := time.ParseInLocation(pkg.DateLayout, rec.Date, loc)
	if err != nil {
		day = time.Now().In(loc)
	}
	return scheduling.Slot{Date: day, Start: rec.Time, End: rec.End()}
}

func describeSlots(slots []scheduling.Slot) string {
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.String()
	}
	if len(labels) == 1 {
		return labels[0]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " or " + labels[len(labels)-1]
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
