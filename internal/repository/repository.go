// Package repository implements the Postgres persistence mirror. The
// in-memory engine is authoritative; the mirror receives write-behind
// copies of users, conferences and booking state for reporting and
// post-restart inspection. It uses pgx directly (no ORM).
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/confbook/confbook/internal/ledger"
	"github.com/confbook/confbook/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive is the Postgres-backed implementation of service.Archive.
type Archive struct {
	db *pgxpool.Pool
}

// NewArchive constructs an Archive.
func NewArchive(db *pgxpool.Pool) *Archive {
	return &Archive{db: db}
}

// EnsureSchema creates the mirror tables if they do not exist.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY,
			user_id    TEXT UNIQUE NOT NULL,
			topics     TEXT[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS conferences (
			id              UUID PRIMARY KEY,
			name            TEXT UNIQUE NOT NULL,
			location        TEXT NOT NULL,
			start_timestamp TIMESTAMPTZ NOT NULL,
			end_timestamp   TIMESTAMPTZ NOT NULL,
			total_slots     INT NOT NULL,
			topics          TEXT[] NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS bookings (
			booking_id            BIGINT PRIMARY KEY,
			user_id               TEXT NOT NULL,
			conference_name       TEXT NOT NULL,
			status                TEXT NOT NULL,
			created_at            TIMESTAMPTZ NOT NULL,
			confirmation_deadline TIMESTAMPTZ,
			canceled_at           TIMESTAMPTZ,
			updated_at            TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveUser mirrors a registered user. Users are immutable, so a replay of
// the same user is a no-op.
func (a *Archive) SaveUser(ctx context.Context, u model.User) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO users (id, user_id, topics, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), u.ID, u.Topics, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SaveConference mirrors a registered conference.
func (a *Archive) SaveConference(ctx context.Context, c model.Conference) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO conferences (id, name, location, start_timestamp, end_timestamp, total_slots, topics, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO NOTHING`,
		uuid.New().String(), c.Name, c.Location, c.Start, c.End, c.Slots, c.Topics, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert conference: %w", err)
	}
	return nil
}

// SaveBooking upserts the current state of a booking. Later snapshots of
// the same booking overwrite earlier ones.
func (a *Archive) SaveBooking(ctx context.Context, s ledger.Snapshot) error {
	_, err := a.db.Exec(ctx,
		`INSERT INTO bookings (booking_id, user_id, conference_name, status, created_at, confirmation_deadline, canceled_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (booking_id) DO UPDATE SET
			status                = EXCLUDED.status,
			confirmation_deadline = EXCLUDED.confirmation_deadline,
			canceled_at           = EXCLUDED.canceled_at,
			updated_at            = EXCLUDED.updated_at`,
		s.ID, s.UserID, s.Conference, string(s.Status), s.CreatedAt,
		s.ConfirmationDeadline, s.CanceledAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert booking: %w", err)
	}
	return nil
}

// ConferenceBookings reads back the mirrored bookings for a conference,
// ordered by booking id.
func (a *Archive) ConferenceBookings(ctx context.Context, conferenceName string) ([]ledger.Snapshot, error) {
	rows, err := a.db.Query(ctx,
		`SELECT booking_id, user_id, conference_name, status, created_at, confirmation_deadline, canceled_at
		 FROM bookings
		 WHERE conference_name = $1
		 ORDER BY booking_id ASC`,
		conferenceName,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var snaps []ledger.Snapshot
	for rows.Next() {
		var s ledger.Snapshot
		var status string
		if err := rows.Scan(&s.ID, &s.UserID, &s.Conference, &status, &s.CreatedAt, &s.ConfirmationDeadline, &s.CanceledAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		s.Status = model.Status(status)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
