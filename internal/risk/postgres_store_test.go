//go:build integration

package risk

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		db.ExecContext(context.Background(), "DELETE FROM risk_assessments")
		db.Close()
	}
	return store, cleanup
}

func TestPostgres_RecordAndList(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	a := &Assessment{
		ID:     "asmt_pg_test_1",
		UserID: "pg-user",
		Score:  0.55,
		Level:  LevelMedium,
		Components: map[string]float64{
			ComponentBase:       0.5,
			ComponentEscalation: 1.0,
			ComponentContext:    0.2,
			ComponentPattern:    0.1,
		},
		TriggerModality:  "text",
		TriggerTimestamp: now,
		Degraded:         []string{DegradedHistory},
		EvaluatedAt:      now,
	}
	if err := store.Record(ctx, a); err != nil {
		t.Fatalf("Record: %v", err)
	}

	list, err := store.ListByUser(ctx, "pg-user", 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(list))
	}
	got := list[0]
	if got.Score != 0.55 || got.Level != LevelMedium {
		t.Errorf("round-trip mismatch: %v %s", got.Score, got.Level)
	}
	if got.Components[ComponentEscalation] != 1.0 {
		t.Errorf("components did not round-trip: %v", got.Components)
	}
	if len(got.Degraded) != 1 || got.Degraded[0] != DegradedHistory {
		t.Errorf("degraded did not round-trip: %v", got.Degraded)
	}
}
