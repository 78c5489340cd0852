package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bizassist/pkg"
)

// Interval is a half-open range [Start, End) of minutes since midnight
type Interval struct {
	Start int
	End   int
}

// Len returns the interval length in minutes
func (i Interval) Len() int {
	return i.End - i.Start
}

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) share any minute.
// Touching intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// FreeIntervals subtracts busy intervals from the opening window
func FreeIntervals(open Interval, busy []Interval) []Interval {
	if open.Len() <= 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Len() > 0 && Overlaps(b, open) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var free []Interval
	cursor := open.Start
	for _, b := range sorted {
		if b.Start > cursor {
			free = append(free, Interval{Start: cursor, End: min(b.Start, open.End)})
		}
		if b.End > cursor {
			cursor = b.End
		}
		if cursor >= open.End {
			break
		}
	}
	if cursor < open.End {
		free = append(free, Interval{Start: cursor, End: open.End})
	}
	return free
}

// Candidates lists slot starts of the given duration inside the free intervals.
// Starts step from the beginning of each free interval; gaps shorter than the
// duration and starts before notBefore are dropped.
func Candidates(free []Interval, duration, step, notBefore int) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	var out []Interval
	for _, f := range free {
		if f.Len() < duration {
			continue
		}
		for s := f.Start; s+duration <= f.End; s += step {
			if s < notBefore {
				continue
			}
			out = append(out, Interval{Start: s, End: s + duration})
		}
	}
	return out
}

// Fits reports whether slot lies inside the opening window and overlaps no busy interval
func Fits(open, slot Interval, busy []Interval) bool {
	if slot.Len() <= 0 || slot.Start < open.Start || slot.End > open.End {
		return false
	}
	for _, b := range busy {
		if Overlaps(slot, b) {
			return false
		}
	}
	return true
}

// BusyIntervals converts the records blocking a day into intervals, skipping exclude
func BusyIntervals(records []pkg.AppointmentRecord, now time.Time, exclude string) []Interval {
	var busy []Interval
	for i := range records {
		r := &records[i]
		if r.ID == exclude || !r.Blocks(now) {
			continue
		}
		busy = append(busy, Interval{Start: int(r.Time), End: int(r.End())})
	}
	return busy
}

// Slot is a concrete proposal on a date
type Slot struct {
	Date  time.Time // midnight in the business location
	Start pkg.TimeOfDay
	End   pkg.TimeOfDay
}

// DateString returns the slot date as YYYY-MM-DD
func (s Slot) DateString() string {
	return s.Date.Format(pkg.DateLayout)
}

// StartTime returns the slot start instant
func (s Slot) StartTime() time.Time {
	return s.Start.On(s.Date)
}

func (s Slot) String() string {
	return fmt.Sprintf("%s at %s-%s", s.Date.Format("Monday, January 2"), s.Start, s.End)
}

// BusyFunc loads the busy intervals of a business date (YYYY-MM-DD)
type BusyFunc func(ctx context.Context, date string) ([]Interval, error)

// Planner computes free slots from working hours and existing bookings
type Planner struct {
	StepMinutes     int
	MaxAlternatives int
	SearchDays      int
}

// DefaultPlanner mirrors the configured defaults
func DefaultPlanner() Planner {
	return Planner{StepMinutes: 30, MaxAlternatives: 3, SearchDays: 7}
}

// Midnight truncates t to the start of its day in loc
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// OpenWindow returns the working window of a date, false when closed
func OpenWindow(profile *pkg.BusinessProfile, day time.Time) (Interval, bool) {
	hours, ok := profile.HoursOn(day.Weekday())
	if !ok {
		return Interval{}, false
	}
	return Interval{Start: int(hours.Open), End: int(hours.Close)}, true
}

// notBefore returns the earliest minute bookable on day given the current instant
func notBefore(day, now time.Time) (int, bool) {
	today := Midnight(now, day.Location())
	switch {
	case day.Before(today):
		return 0, false
	case day.Equal(today):
		local := now.In(day.Location())
		m := local.Hour()*60 + local.Minute()
		if local.Second() > 0 || local.Nanosecond() > 0 {
			m++
		}
		return m, true
	}
	return 0, true
}

// DaySlots lists the free slots of one date in chronological order
func (p Planner) DaySlots(profile *pkg.BusinessProfile, day time.Time, busy []Interval, duration int, now time.Time) []Slot {
	open, ok := OpenWindow(profile, day)
	if !ok {
		return nil
	}
	earliest, ok := notBefore(day, now)
	if !ok {
		return nil
	}
	var slots []Slot
	for _, c := range Candidates(FreeIntervals(open, busy), duration, p.StepMinutes, earliest) {
		slots = append(slots, Slot{Date: day, Start: pkg.TimeOfDay(c.Start), End: pkg.TimeOfDay(c.End)})
	}
	return slots
}

// IsFree reports whether the exact slot can be booked
func (p Planner) IsFree(profile *pkg.BusinessProfile, slot Slot, busy []Interval, now time.Time) bool {
	open, ok := OpenWindow(profile, slot.Date)
	if !ok {
		return false
	}
	earliest, ok := notBefore(slot.Date, now)
	if !ok || int(slot.Start) < earliest {
		return false
	}
	return Fits(open, Interval{Start: int(slot.Start), End: int(slot.End)}, busy)
}

// Nearest proposes up to MaxAlternatives free slots ordered by distance to requested,
// earlier first on ties. It searches from the requested date (never before today)
// forward over SearchDays days.
func (p Planner) Nearest(ctx context.Context, profile *pkg.BusinessProfile, requested time.Time, duration int, now time.Time, busyFn BusyFunc) ([]Slot, error) {
	loc := profile.Location()
	requested = requested.In(loc)
	day := Midnight(requested, loc)
	if today := Midnight(now, loc); day.Before(today) {
		day = today
	}

	var all []Slot
	for i := 0; i <= p.SearchDays; i++ {
		d := day.AddDate(0, 0, i)
		if _, open := OpenWindow(profile, d); !open {
			continue
		}
		busy, err := busyFn(ctx, d.Format(pkg.DateLayout))
		if err != nil {
			return nil, fmt.Errorf("failed to load bookings for %s: %w", d.Format(pkg.DateLayout), err)
		}
		all = append(all, p.DaySlots(profile, d, busy, duration, now)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		di := absDuration(all[i].StartTime().Sub(requested))
		dj := absDuration(all[j].StartTime().Sub(requested))
		if di != dj {
			return di < dj
		}
		return all[i].StartTime().Before(all[j].StartTime())
	})
	if len(all) > p.MaxAlternatives {
		all = all[:p.MaxAlternatives]
	}
	return all, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
