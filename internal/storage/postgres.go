package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bizassist/pkg"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresSchema creates the tables used by the Postgres stores
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS business_profiles (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	services      JSONB NOT NULL DEFAULT '[]',
	working_hours JSONB NOT NULL DEFAULT '{}',
	contact_email TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	timezone      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS appointments (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL,
	conversation_id  TEXT NOT NULL DEFAULT '',
	customer_name    TEXT NOT NULL,
	customer_contact TEXT NOT NULL DEFAULT '',
	date             TEXT NOT NULL,
	start_minute     INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	status           TEXT NOT NULL,
	hold_expires_at  TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS appointments_day_idx ON appointments (business_id, date);
`

// OpenPostgres opens a lib/pq connection pool and pings it
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// MigratePostgres creates missing tables
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

const appointmentColumns = `id, business_id, conversation_id, customer_name, customer_contact, date,
	start_minute, duration_minutes, status, hold_expires_at, created_at, updated_at`

// PostgresAppointmentStore serializes writers of one (business, date) with a
// transaction-scoped advisory lock
type PostgresAppointmentStore struct {
	db *sql.DB
}

// NewPostgresAppointmentStore wraps an open database handle
func NewPostgresAppointmentStore(db *sql.DB) *PostgresAppointmentStore {
	return &PostgresAppointmentStore{db: db}
}

// Book inserts rec unless its slot overlaps a blocking record
func (p *PostgresAppointmentStore) Book(ctx context.Context, rec pkg.AppointmentRecord, now time.Time) (*pkg.AppointmentRecord, error) {
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = pkg.StatusConfirmed
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := p.inDayTx(ctx, rec.BusinessID, []string{rec.Date}, func(tx *sql.Tx) error {
		day, err := listDay(ctx, tx, rec.BusinessID, rec.Date)
		if err != nil {
			return err
		}
		if conflicts(day, &rec, now, "") {
			return ErrSlotTaken
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO appointments (`+appointmentColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, rec.BusinessID, rec.ConversationID, rec.CustomerName, rec.CustomerContact, rec.Date,
			int(rec.Time), rec.DurationMinutes, string(rec.Status), nullTime(rec.HoldExpiresAt), rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns one appointment of a business
func (p *PostgresAppointmentStore) Get(ctx context.Context, businessID, id string) (*pkg.AppointmentRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE business_id = $1 AND id = $2`, businessID, id)
	rec, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByDay returns all records of a business date ordered by start time
func (p *PostgresAppointmentStore) ListByDay(ctx context.Context, businessID, date string) ([]pkg.AppointmentRecord, error) {
	return listDay(ctx, p.db, businessID, date)
}

// Confirm turns a pending hold into a confirmed appointment
func (p *PostgresAppointmentStore) Confirm(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error) {
	return p.change(ctx, businessID, id, "", func(tx *sql.Tx, r *pkg.AppointmentRecord) error {
		switch r.Status {
		case pkg.StatusConfirmed:
			return nil
		case pkg.StatusCancelled:
			return fmt.Errorf("%w: %s is cancelled", ErrInvalidTransition, id)
		}
		day, err := listDay(ctx, tx, businessID, r.Date)
		if err != nil {
			return err
		}
		if conflicts(day, r, now, r.ID) {
			return ErrSlotTaken
		}
		r.Status = pkg.StatusConfirmed
		r.HoldExpiresAt = nil
		r.UpdatedAt = now
		return nil
	})
}

// Cancel releases an appointment; cancelling twice is a no-op
func (p *PostgresAppointmentStore) Cancel(ctx context.Context, businessID, id string, now time.Time) (*pkg.AppointmentRecord, error) {
	return p.change(ctx, businessID, id, "", func(tx *sql.Tx, r *pkg.AppointmentRecord) error {
		if r.Status != pkg.StatusCancelled {
			r.Status = pkg.StatusCancelled
			r.HoldExpiresAt = nil
			r.UpdatedAt = now
		}
		return nil
	})
}

// Reschedule moves an active appointment under both day locks
func (p *PostgresAppointmentStore) Reschedule(ctx context.Context, businessID, id, date string, start pkg.TimeOfDay, duration int, now time.Time) (*pkg.AppointmentRecord, error) {
	return p.change(ctx, businessID, id, date, func(tx *sql.Tx, r *pkg.AppointmentRecord) error {
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
		day, err := listDay(ctx, tx, businessID, date)
		if err != nil {
			return err
		}
		if conflicts(day, &moved, now, r.ID) {
			return ErrSlotTaken
		}
		*r = moved
		r.UpdatedAt = now
		return nil
	})
}

// change loads a record, locks its day (and extraDate) and writes back fn's result
func (p *PostgresAppointmentStore) change(ctx context.Context, businessID, id, extraDate string, fn func(*sql.Tx, *pkg.AppointmentRecord) error) (*pkg.AppointmentRecord, error) {
	current, err := p.Get(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	dates := []string{current.Date}
	if extraDate != "" && extraDate != current.Date {
		dates = append(dates, extraDate)
	}

	var out *pkg.AppointmentRecord
	err = p.inDayTx(ctx, businessID, dates, func(tx *sql.Tx) error {
		// FOR UPDATE also waits out a concurrent reschedule of this row
		row := tx.QueryRowContext(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			businessID, id)
		rec, err := scanAppointment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
		}
		if err != nil {
			return err
		}
		if rec.Date != current.Date {
			return fmt.Errorf("appointment %s moved concurrently, try again", id)
		}
		if err := fn(tx, rec); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE appointments SET date = $3, start_minute = $4, duration_minutes = $5, status = $6,
			 hold_expires_at = $7, updated_at = $8 WHERE business_id = $1 AND id = $2`,
			businessID, id, rec.Date, int(rec.Time), rec.DurationMinutes, string(rec.Status),
			nullTime(rec.HoldExpiresAt), rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update appointment: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// inDayTx runs fn in a transaction holding the advisory locks of the given dates
func (p *PostgresAppointmentStore) inDayTx(ctx context.Context, businessID string, dates []string, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(dates) == 2 && dates[1] < dates[0] {
		dates = []string{dates[1], dates[0]}
	}
	for _, d := range dates {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, dayKey(businessID, d)); err != nil {
			return fmt.Errorf("failed to lock %s: %w", d, err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func listDay(ctx context.Context, q querier, businessID, date string) ([]pkg.AppointmentRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE business_id = $1 AND date = $2 ORDER BY start_minute, id`, businessID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []pkg.AppointmentRecord
	for rows.Next() {
		rec, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}
	return out, nil
}

func scanAppointment(row rowScanner) (*pkg.AppointmentRecord, error) {
	var (
		rec    pkg.AppointmentRecord
		start  int
		status string
		hold   sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.BusinessID, &rec.ConversationID, &rec.CustomerName, &rec.CustomerContact,
		&rec.Date, &start, &rec.DurationMinutes, &status, &hold, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	rec.Time = pkg.TimeOfDay(start)
	rec.Status = pkg.AppointmentStatus(status)
	if hold.Valid {
		t := hold.Time
		rec.HoldExpiresAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgresProfileStore reads business profiles from the business_profiles table
type PostgresProfileStore struct {
	db *sql.DB
}

// NewPostgresProfileStore wraps an open database handle
func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

// GetProfile loads and validates a profile
func (p *PostgresProfileStore) GetProfile(ctx context.Context, businessID string) (*pkg.BusinessProfile, error) {
	var (
		profile  pkg.BusinessProfile
		services string
		hours    string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, description, services, working_hours, contact_email, contact_phone, timezone
		 FROM business_profiles WHERE id = $1`, businessID).
		Scan(&profile.ID, &profile.Name, &profile.Description, &services, &hours,
			&profile.ContactEmail, &profile.ContactPhone, &profile.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBusinessNotFound, businessID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", businessID, err)
	}

	if err := sonic.UnmarshalString(services, &profile.Services); err != nil {
		return nil, fmt.Errorf("invalid services of %s: %w", businessID, err)
	}
	if err := sonic.UnmarshalString(hours, &profile.WorkingHours); err != nil {
		return nil, fmt.Errorf("invalid working hours of %s: %w", businessID, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile inserts or replaces a profile
func (p *PostgresProfileStore) SaveProfile(ctx context.Context, profile *pkg.BusinessProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	services, err := sonic.MarshalString(profile.Services)
	if err != nil {
		return fmt.Errorf("failed to encode services: %w", err)
	}
	hours, err := sonic.MarshalString(profile.WorkingHours)
	if err != nil {
		return fmt.Errorf("failed to encode working hours: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO business_profiles (id, name, description, services, working_hours, contact_email, contact_phone, timezone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		 services = EXCLUDED.services, working_hours = EXCLUDED.working_hours,
		 contact_email = EXCLUDED.contact_email, contact_phone = EXCLUDED.contact_phone, timezone = EXCLUDED.timezone`,
		profile.ID, profile.Name, profile.Description, services, hours,
		profile.ContactEmail, profile.ContactPhone, profile.Timezone)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.ID, err)
	}
	return nil
}
