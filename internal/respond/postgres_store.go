package respond

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed emergency event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the emergency_events table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS emergency_events (
			id           VARCHAR(40) PRIMARY KEY,
			user_id      VARCHAR(64) NOT NULL,
			risk_level   VARCHAR(10) NOT NULL,
			risk_score   DOUBLE PRECISION NOT NULL,
			trigger_type VARCHAR(20) NOT NULL,
			ts           TIMESTAMPTZ NOT NULL,
			actions      TEXT[] NOT NULL DEFAULT '{}',
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_emergency_events_user ON emergency_events(user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emergency_events (id, user_id, risk_level, risk_score, trigger_type, ts, actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.UserID, event.RiskLevel, event.RiskScore, event.TriggerType,
		event.Timestamp, pq.Array(event.Actions), event.CreatedAt)
	return err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, risk_level, risk_score, trigger_type, ts, actions, created_at
		FROM emergency_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var actions pq.StringArray
		if err := rows.Scan(&e.ID, &e.UserID, &e.RiskLevel, &e.RiskScore,
			&e.TriggerType, &e.Timestamp, &actions, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Actions = []string(actions)
		events = append(events, e)
	}
	return events, rows.Err()
}

// PostgresEvidenceStore implements EvidenceStore using PostgreSQL.
type PostgresEvidenceStore struct {
	db *sql.DB
}

// NewPostgresEvidenceStore creates a new PostgreSQL-backed evidence store.
func NewPostgresEvidenceStore(db *sql.DB) *PostgresEvidenceStore {
	return &PostgresEvidenceStore{db: db}
}

// Migrate creates the evidence_records table.
func (s *PostgresEvidenceStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evidence_records (
			id         VARCHAR(40) PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL,
			kind       VARCHAR(40) NOT NULL,
			content    JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_evidence_records_user ON evidence_records(user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresEvidenceStore) Record(ctx context.Context, record *EvidenceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_records (id, user_id, kind, content, created_at)
		VALUES ($1, $2, $3, $4::JSONB, $5)
	`, record.ID, record.UserID, record.Kind, record.Content, record.CreatedAt)
	return err
}

func (s *PostgresEvidenceStore) ListByUser(ctx context.Context, userID string, limit int) ([]*EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, content::TEXT, created_at
		FROM evidence_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*EvidenceRecord
	for rows.Next() {
		r := &EvidenceRecord{}
		if err := rows.Scan(&r.ID, &r.UserID, &r.Kind, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
