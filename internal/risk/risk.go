// Package risk implements the multi-signal risk aggregation engine.
//
// A single triggering threat signal is combined with the user's recent
// signal history, contextual factors (time of day, proximity to flagged
// areas), and a longer-horizon pattern signal into one weighted score.
// Scores range from 0.0 (safe) to 1.0 (high risk); assessments at or
// above the escalation threshold hand off to the emergency responder.
package risk

import (
	"context"
	"time"
)

// Level is the categorical bucket derived from the final score.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
	LevelMinimal  Level = "MINIMAL"
)

// Component names, used as keys in Assessment.Components.
const (
	ComponentBase       = "base"
	ComponentEscalation = "escalation"
	ComponentContext    = "context"
	ComponentPattern    = "pattern"
)

// Degradation causes recorded on an assessment produced without full inputs.
const (
	DegradedProfile = "profile"
	DegradedHistory = "history"
)

// Params holds every knob of the aggregation algorithm. Callers pass it
// explicitly so alternate parameter sets are testable without touching
// process state.
type Params struct {
	Window time.Duration // recent-history window

	// Escalation bonuses, independently additive then clamped to [0,1].
	MultiModalityBonus float64 // recent set spans >= 2 modalities
	EventCountBonus    float64 // recent count >= EventCountMin
	EventCountMin      int
	SeverityBonus      float64 // any recent score >= SeverityFloor
	SeverityFloor      float64

	// Context bonuses, independently additive then clamped to [0,1].
	NightBonus        float64 // trigger hour in [22,24) or [0,6)
	GeofenceBonus     float64 // trigger inside a flagged area's box
	ProximityDegrees  float64 // box half-width in degrees
	IsolationBonus    float64 // low-confidence location fix
	IsolationEnabled  bool
	IsolationAccuracy float64 // meters; accuracy above this is low confidence

	// Component weights. Not renormalized; the reference set sums to 1.
	BaseWeight       float64
	EscalationWeight float64
	ContextWeight    float64
	PatternWeight    float64

	// Level breakpoints, inclusive lower bounds, strictly descending.
	CriticalFloor float64
	HighFloor     float64
	MediumFloor   float64
	LowFloor      float64

	// EscalationThreshold is independent of the classification floors.
	// Crossing it (inclusive) triggers the emergency responder.
	EscalationThreshold float64

	// DefaultPatternScore applies when no pattern provider is wired.
	DefaultPatternScore float64
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		Window:              1800 * time.Second,
		MultiModalityBonus:  0.4,
		EventCountBonus:     0.3,
		EventCountMin:       3,
		SeverityBonus:       0.3,
		SeverityFloor:       0.6,
		NightBonus:          0.2,
		GeofenceBonus:       0.3,
		ProximityDegrees:    0.01,
		IsolationBonus:      0.1,
		IsolationEnabled:    false,
		IsolationAccuracy:   100.0,
		BaseWeight:          0.4,
		EscalationWeight:    0.3,
		ContextWeight:       0.2,
		PatternWeight:       0.1,
		CriticalFloor:       0.9,
		HighFloor:           0.7,
		MediumFloor:         0.5,
		LowFloor:            0.3,
		EscalationThreshold: 0.8,
		DefaultPatternScore: 0.1,
	}
}

// Classify maps a final score to its level by descending inclusive floors.
func (p Params) Classify(score float64) Level {
	switch {
	case score >= p.CriticalFloor:
		return LevelCritical
	case score >= p.HighFloor:
		return LevelHigh
	case score >= p.MediumFloor:
		return LevelMedium
	case score >= p.LowFloor:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// Assessment is the result of aggregating one trigger signal.
type Assessment struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	Score              float64            `json:"score"`
	Level              Level              `json:"level"`
	Components         map[string]float64 `json:"components"`
	TriggerModality    string             `json:"triggerModality"`
	TriggerTimestamp   time.Time          `json:"triggerTimestamp"`
	EmergencyTriggered bool               `json:"emergencyTriggered"`
	Degraded           []string           `json:"degraded,omitempty"`
	EvaluatedAt        time.Time          `json:"evaluatedAt"`
}

// Store persists assessments as a per-user audit trail.
type Store interface {
	Record(ctx context.Context, assessment *Assessment) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Assessment, error)
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
