package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore implements Store using PostgreSQL. Contacts and high-risk
// areas are stored as JSONB documents; the profile row is the unit of update.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the user_profiles table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id            VARCHAR(64) PRIMARY KEY,
			contacts           JSONB NOT NULL DEFAULT '[]',
			high_risk_areas    JSONB NOT NULL DEFAULT '[]',
			notify_authorities BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{UserID: userID}
	var contacts, areas []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT contacts, high_risk_areas, notify_authorities, created_at, updated_at
		FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&contacts, &areas, &p.NotifyAuthorities, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contacts, &p.Contacts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(areas, &p.HighRiskAreas); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) Put(ctx context.Context, profile *Profile) error {
	contacts, err := json.Marshal(profile.Contacts)
	if err != nil {
		return err
	}
	areas, err := json.Marshal(profile.HighRiskAreas)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, contacts, high_risk_areas, notify_authorities, created_at, updated_at)
		VALUES ($1, $2::JSONB, $3::JSONB, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			contacts = EXCLUDED.contacts,
			high_risk_areas = EXCLUDED.high_risk_areas,
			notify_authorities = EXCLUDED.notify_authorities,
			updated_at = NOW()
	`, profile.UserID, contacts, areas, profile.NotifyAuthorities)
	if err == nil {
		profile.UpdatedAt = time.Now()
	}
	return err
}
