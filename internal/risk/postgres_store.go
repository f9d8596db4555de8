package risk

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id                  VARCHAR(40) PRIMARY KEY,
			user_id             VARCHAR(64) NOT NULL,
			score               DOUBLE PRECISION NOT NULL,
			level               VARCHAR(10) NOT NULL,
			components          JSONB NOT NULL DEFAULT '{}',
			trigger_modality    VARCHAR(10) NOT NULL,
			trigger_ts          TIMESTAMPTZ NOT NULL,
			emergency_triggered BOOLEAN NOT NULL DEFAULT FALSE,
			degraded            TEXT[] NOT NULL DEFAULT '{}',
			evaluated_at        TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_user ON risk_assessments(user_id, evaluated_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, assessment *Assessment) error {
	components, err := json.Marshal(assessment.Components)
	if err != nil {
		return err
	}
	degraded := assessment.Degraded
	if degraded == nil {
		degraded = []string{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, user_id, score, level, components, trigger_modality, trigger_ts, emergency_triggered, degraded, evaluated_at)
		VALUES ($1, $2, $3, $4, $5::JSONB, $6, $7, $8, $9, $10)
	`, assessment.ID, assessment.UserID, assessment.Score, string(assessment.Level),
		components, assessment.TriggerModality, assessment.TriggerTimestamp,
		assessment.EmergencyTriggered, pq.Array(degraded), assessment.EvaluatedAt)
	return err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, score, level, components::TEXT, trigger_modality, trigger_ts, emergency_triggered, degraded, evaluated_at
		FROM risk_assessments
		WHERE user_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		a := &Assessment{}
		var level, components string
		var degraded pq.StringArray
		if err := rows.Scan(&a.ID, &a.UserID, &a.Score, &level, &components,
			&a.TriggerModality, &a.TriggerTimestamp, &a.EmergencyTriggered,
			&degraded, &a.EvaluatedAt); err != nil {
			return nil, err
		}
		a.Level = Level(level)
		if err := json.Unmarshal([]byte(components), &a.Components); err != nil {
			return nil, err
		}
		if len(degraded) > 0 {
			a.Degraded = []string(degraded)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
