package threats

import (
	"context"
	"testing"
	"time"
)

func TestValidModality(t *testing.T) {
	for _, m := range []string{ModalityAudio, ModalityMotion, ModalityText} {
		if !ValidModality(m) {
			t.Errorf("expected %q to be valid", m)
		}
	}
	for _, m := range []string{"", "video", "AUDIO"} {
		if ValidModality(m) {
			t.Errorf("expected %q to be invalid", m)
		}
	}
}

func TestMemoryStoreRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	for i, ts := range []time.Time{now.Add(-40 * time.Minute), now.Add(-10 * time.Minute), now.Add(-5 * time.Minute)} {
		ev := &Event{
			UserID:    "user-1",
			Modality:  ModalityAudio,
			Score:     0.5 + float64(i)*0.1,
			Timestamp: ts,
		}
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if ev.ID == "" {
			t.Error("expected generated event ID")
		}
	}
	// Different user, should not appear.
	if err := store.Record(ctx, &Event{UserID: "user-2", Modality: ModalityText, Score: 0.9, Timestamp: now}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := store.RecentForUser(ctx, "user-1", now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("RecentForUser: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(recent))
	}
	if recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Error("expected events ordered oldest first")
	}

	n, err := store.CountForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountForUser: %v", err)
	}
	if n != 3 {
		t.Errorf("CountForUser = %d, want 3", n)
	}
}

func TestMemoryStoreWindowBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	since := time.Unix(1_700_000_000, 0)

	// Exactly at the boundary is inside the window.
	if err := store.Record(ctx, &Event{UserID: "u-boundary", Modality: ModalityMotion, Score: 0.8, Timestamp: since}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, &Event{UserID: "u-boundary", Modality: ModalityMotion, Score: 0.8, Timestamp: since.Add(-time.Second)}); err != nil {
		t.Fatal(err)
	}

	recent, err := store.RecentForUser(ctx, "u-boundary", since)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 event at window boundary, got %d", len(recent))
	}
}

func TestEventHasLocation(t *testing.T) {
	lat, lng := 12.97, 77.59
	e := &Event{Latitude: &lat, Longitude: &lng}
	if !e.HasLocation() {
		t.Error("expected HasLocation true")
	}
	e = &Event{Latitude: &lat}
	if e.HasLocation() {
		t.Error("expected HasLocation false with missing longitude")
	}
	if (&Event{}).HasLocation() {
		t.Error("expected HasLocation false with no fix")
	}
}
