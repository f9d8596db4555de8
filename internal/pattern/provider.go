package pattern

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kavachapp/kavach/internal/threats"
)

// zWeight scales how much one standard deviation above baseline adds to
// the pattern score.
const zWeight = 0.05

// Provider scores a user's current signal rate against their baseline.
// It satisfies the aggregator's pattern-function contract.
type Provider struct {
	store        Store
	signals      threats.Store
	defaultScore float64
	logger       *slog.Logger
}

// NewProvider creates a baseline-backed pattern provider. defaultScore
// applies when a user has no baseline yet.
func NewProvider(store Store, signals threats.Store, defaultScore float64, logger *slog.Logger) *Provider {
	return &Provider{
		store:        store,
		signals:      signals,
		defaultScore: defaultScore,
		logger:       logger,
	}
}

// Score returns the pattern component for a user at a point in time:
// the default plus a bump proportional to how far the current hour's
// signal rate sits above the user's baseline, clamped to [0,1].
func (p *Provider) Score(ctx context.Context, userID string, at time.Time) (float64, error) {
	baseline, err := p.store.Get(ctx, userID)
	if errors.Is(err, ErrNoBaseline) {
		return p.defaultScore, nil
	}
	if err != nil {
		return 0, err
	}

	hourStart := at.Truncate(time.Hour)
	events, err := p.signals.RecentForUser(ctx, userID, hourStart)
	if err != nil {
		return 0, err
	}
	current := 0
	for _, e := range events {
		if !e.Timestamp.After(at) {
			current++
		}
	}

	if baseline.HourlyStddev == 0 {
		if float64(current) <= baseline.HourlyMean {
			return p.defaultScore, nil
		}
		// Any excess over a zero-variance baseline is maximally anomalous.
		return 1.0, nil
	}

	z := (float64(current) - baseline.HourlyMean) / baseline.HourlyStddev
	score := p.defaultScore
	if z > 0 {
		score += z * zWeight
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}
