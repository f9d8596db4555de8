// Package threats stores scored threat signals reported by device analyzers.
//
// Each signal carries a modality (audio, motion, or text), a normalized
// score in [0,1], and an optional location fix. Signals are the raw input
// to risk assessment: the aggregator reads the recent window per user and
// combines it with the triggering signal.
package threats

import (
	"context"
	"time"
)

// Signal modalities.
const (
	ModalityAudio  = "audio"
	ModalityMotion = "motion"
	ModalityText   = "text"
)

// ValidModality reports whether m is a known signal modality.
func ValidModality(m string) bool {
	switch m {
	case ModalityAudio, ModalityMotion, ModalityText:
		return true
	}
	return false
}

// Event is a single scored threat signal.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Modality  string    `json:"modality"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"` // meters, GPS confidence
	Details   string    `json:"details,omitempty"`  // analyzer output as JSON
	CreatedAt time.Time `json:"createdAt"`
}

// HasLocation reports whether the signal carries a location fix.
func (e *Event) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Store persists and queries threat signals.
type Store interface {
	Record(ctx context.Context, event *Event) error
	// RecentForUser returns the user's signals with Timestamp >= since,
	// oldest first.
	RecentForUser(ctx context.Context, userID string, since time.Time) ([]*Event, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	// UsersSince lists the users with at least one signal since the cutoff.
	UsersSince(ctx context.Context, since time.Time) ([]string, error)
}
