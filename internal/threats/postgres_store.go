package threats

import (
	"context"
	"database/sql"
	"time"

	"github.com/kavachapp/kavach/internal/idgen"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed signal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the threat_events table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS threat_events (
			id          VARCHAR(40) PRIMARY KEY,
			user_id     VARCHAR(64) NOT NULL,
			modality    VARCHAR(10) NOT NULL,
			score       DOUBLE PRECISION NOT NULL,
			ts          TIMESTAMPTZ NOT NULL,
			latitude    DOUBLE PRECISION,
			longitude   DOUBLE PRECISION,
			accuracy    DOUBLE PRECISION,
			details     JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_threat_events_user_ts ON threat_events(user_id, ts DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = idgen.WithPrefix("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	details := event.Details
	if details == "" {
		details = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threat_events (id, user_id, modality, score, ts, latitude, longitude, accuracy, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::JSONB, $10)
	`, event.ID, event.UserID, event.Modality, event.Score, event.Timestamp,
		event.Latitude, event.Longitude, event.Accuracy, details, event.CreatedAt)
	return err
}

func (s *PostgresStore) RecentForUser(ctx context.Context, userID string, since time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, modality, score, ts, latitude, longitude, accuracy, details::TEXT, created_at
		FROM threat_events
		WHERE user_id = $1 AND ts >= $2
		ORDER BY ts ASC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Modality, &e.Score, &e.Timestamp,
			&e.Latitude, &e.Longitude, &e.Accuracy, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) UsersSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM threat_events WHERE ts >= $1 ORDER BY user_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM threat_events WHERE user_id = $1
	`, userID).Scan(&n)
	return n, err
}
