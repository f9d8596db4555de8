package pattern

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed baseline store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the pattern_baselines table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pattern_baselines (
			user_id       VARCHAR(64) PRIMARY KEY,
			hourly_mean   DOUBLE PRECISION NOT NULL,
			hourly_stddev DOUBLE PRECISION NOT NULL,
			sample_hours  INTEGER NOT NULL,
			last_updated  TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) SaveBatch(ctx context.Context, baselines []*Baseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range baselines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pattern_baselines (user_id, hourly_mean, hourly_stddev, sample_hours, last_updated)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				hourly_mean = EXCLUDED.hourly_mean,
				hourly_stddev = EXCLUDED.hourly_stddev,
				sample_hours = EXCLUDED.sample_hours,
				last_updated = NOW()
		`, b.UserID, b.HourlyMean, b.HourlyStddev, b.SampleHours); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Baseline, error) {
	b := &Baseline{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT hourly_mean, hourly_stddev, sample_hours, last_updated
		FROM pattern_baselines WHERE user_id = $1
	`, userID).Scan(&b.HourlyMean, &b.HourlyStddev, &b.SampleHours, &b.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
