package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"bizassist/internal/lock"
	"bizassist/internal/scheduling"
	"bizassist/pkg"

	"github.com/google/uuid"
)

// MemoryAppointmentStore keeps appointments in memory. Writers hold the
// (business, date) lock for the whole check-and-write.
type MemoryAppointmentStore struct {
	days *lock.Keyed

	mu      sync.RWMutex
	records map[string]*pkg.AppointmentRecord
	byDay   map[string][]string
}

// NewMemoryAppointmentStore creates an empty store
func NewMemoryAppointmentStore() *MemoryAppointmentStore {
	return &MemoryAppointmentStore{
		days:    lock.NewKeyed(),
		records: make(map[string]*pkg.AppointmentRecord),
		byDay:   make(map[string][]string),
	}
}

// Book inserts rec unless its slot overlaps a blocking record
func (m *MemoryAppointmentStore) Book(ctx context.Context, rec pkg.AppointmentRecord, now time.Time) (*pkg.AppointmentRecord, error) {
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}

	unlock := m.days.Lock(dayKey(rec.BusinessID, rec.Date))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if conflicts(m.day(rec.BusinessID, rec.Date), &rec, now, "") {
		return nil, ErrSlotTaken
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = pkg.StatusConfirmed
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.records[rec.ID]; dup {
		return nil, fmt.Errorf("appointment %s already exists", rec.ID)
	}
	stored := rec
	m.records[rec.ID] = &stored
	key := dayKey(rec.BusinessID, rec.Date)
	m.byDay[key] = append(m.byDay[key], rec.ID)
	out := stored
	return &out, nil
}

// Get returns one appointment of a business
func (m *MemoryAppointmentStore) Get(ctx context.Context, businessID, id string) (*pkg.AppointmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.BusinessID != businessID {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	out := *rec
	return &out, nil
}

// ListByDay returns all records of a business date ordered by start time
func (m *MemoryAppointmentStore) ListByDay(ctx context.Context, businessID, date string) ([]pkg.AppointmentRecord, error) {
	return m.day(businessID, date), nil
}

// Confirm turns a pending hold into a confirmed appointment. An expired hold
// can still be confirmed while nobody else took the slot.
func (m *MemoryAppointmentStore) Confirm(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error) {
	unlock, err := m.lockRecordDay(ctx, businessID, id, "")
	if err != nil {
		return nil, err
	}
	defer unlock()

	return m.update(businessID, id, func(r *pkg.AppointmentRecord) error {
		switch r.Status {
		case pkg.StatusConfirmed:
			return nil
		case pkg.StatusCancelled:
			return fmt.Errorf("%w: %s is cancelled", ErrInvalidTransition, id)
		}
		if conflicts(m.day(businessID, r.Date), r, now, r.ID) {
			return ErrSlotTaken
		}
		r.Status = pkg.StatusConfirmed
		r.HoldExpiresAt = nil
		r.UpdatedAt = now
		return nil
	})
}

// Cancel releases an appointment; cancelling twice is a no-op
func (m *MemoryAppointmentStore) Cancel(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error) {
	unlock, err := m.lockRecordDay(ctx, businessID, id, "")
	if err != nil {
		return nil, err
	}
	defer unlock()

	return m.update(businessID, id, func(r *pkg.AppointmentRecord) error {
		if r.Status != pkg.StatusCancelled {
			r.Status = pkg.StatusCancelled
			r.HoldExpiresAt = nil
			r.UpdatedAt = now
		}
		return nil
	})
}

// Reschedule moves an active appointment, holding both day locks
func (m *MemoryAppointmentStore) Reschedule(ctx context.Context, businessID, id, date string, start pkg.TimeOfDay, duration int, now time.Time) (*pkg.AppointmentRecord, error) {
	unlock, err := m.lockRecordDay(ctx, businessID, id, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return m.update(businessID, id, func(r *pkg.AppointmentRecord) error {
		if !r.Active() {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, r.Status)
		}
		if duration <= 0 {
			duration = r.DurationMinutes
		}
		moved := *r
		moved.Date, moved.Time, moved.DurationMinutes = date, start, duration
		if err := validateRecord(&moved); err != nil {
			return err
		}
		if conflicts(m.day(businessID, date), &moved, now, r.ID) {
			return ErrSlotTaken
		}
		r.Date, r.Time, r.DurationMinutes = date, start, duration
		r.UpdatedAt = now
		return nil
	})
}

// lockRecordDay locks the record's current day (plus extra, when set) and
// re-checks that a concurrent reschedule did not move it meanwhile
func (m *MemoryAppointmentStore) lockRecordDay(ctx context.Context, businessID, id, extra string) (func(), error) {
	for {
		rec, err := m.Get(ctx, businessID, id)
		if err != nil {
			return nil, err
		}
		keys := []string{dayKey(businessID, rec.Date)}
		if extra != "" {
			keys = append(keys, dayKey(businessID, extra))
		}
		unlock := m.days.LockAll(keys...)

		current, err := m.Get(ctx, businessID, id)
		if err != nil {
			unlock()
			return nil, err
		}
		if current.Date == rec.Date {
			return unlock, nil
		}
		unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// update applies fn to the stored record under the data lock
func (m *MemoryAppointmentStore) update(businessID, id string, fn func(*pkg.AppointmentRecord) error) (*pkg.AppointmentRecord, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	if !ok || rec.BusinessID != businessID {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	working := *rec
	m.mu.RUnlock()

	// the day lock held by the caller keeps other writers of this record out
	if err := fn(&working); err != nil {
		return nil, err
	}

	m.mu.Lock()
	stored := m.records[id]
	if stored.Date != working.Date {
		oldKey := dayKey(businessID, stored.Date)
		m.byDay[oldKey] = slices.DeleteFunc(m.byDay[oldKey], func(v string) bool { return v == id })
		newKey := dayKey(businessID, working.Date)
		m.byDay[newKey] = append(m.byDay[newKey], id)
	}
	*stored = working
	m.mu.Unlock()

	out := working
	return &out, nil
}

func (m *MemoryAppointmentStore) day(businessID, date string) []pkg.AppointmentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byDay[dayKey(businessID, date)]
	out := make([]pkg.AppointmentRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok && rec.Date == date {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// conflicts reports whether rec overlaps a record that blocks at now
func conflicts(day []pkg.AppointmentRecord, rec *pkg.AppointmentRecord, now time.Time, exclude string) bool {
	want := scheduling.Interval{Start: int(rec.Time), End: int(rec.End())}
	for _, busy := range scheduling.BusyIntervals(day, now, exclude) {
		if scheduling.Overlaps(want, busy) {
			return true
		}
	}
	return false
}

func validateRecord(rec *pkg.AppointmentRecord) error {
	if rec.BusinessID == "" {
		return fmt.Errorf("business id is required")
	}
	if _, err := time.Parse(pkg.DateLayout, rec.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", rec.Date, err)
	}
	if rec.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if rec.Time < 0 || int(rec.End()) > 24*60 {
		return fmt.Errorf("slot %s+%dm is outside the day", rec.Time, rec.DurationMinutes)
	}
	return nil
}
