// Package pattern derives a longer-horizon risk signal from per-user
// behavioral baselines. An hourly worker aggregates each user's signal
// rate over a 7-day window into a mean/stddev baseline; the provider
// scores the current rate's deviation from that baseline.
//
// The baseline path is optional. When no baseline exists for a user the
// provider falls back to the fixed default, so enabling the worker never
// changes scores for users without enough history.
package pattern

import (
	"context"
	"errors"
	"time"
)

const (
	// MinSampleHours is the minimum distinct active hours required before
	// a baseline is trusted.
	MinSampleHours = 24
	// HistoryDays is the lookback window for baseline computation.
	HistoryDays = 7
)

// ErrNoBaseline is returned when a user has no computed baseline.
var ErrNoBaseline = errors.New("no baseline for user")

// Baseline is a per-user signal-rate profile.
type Baseline struct {
	UserID       string    `json:"userId"`
	HourlyMean   float64   `json:"hourlyMean"`
	HourlyStddev float64   `json:"hourlyStddev"`
	SampleHours  int       `json:"sampleHours"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// Store persists computed baselines.
type Store interface {
	SaveBatch(ctx context.Context, baselines []*Baseline) error
	// Get returns the user's baseline or ErrNoBaseline.
	Get(ctx context.Context, userID string) (*Baseline, error)
}
