package risk

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/kavachapp/kavach/internal/idgen"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/profiles"
	"github.com/kavachapp/kavach/internal/threats"
	"github.com/kavachapp/kavach/internal/traces"
)

// ErrInvalidTrigger is returned when a trigger signal is missing required fields.
var ErrInvalidTrigger = errors.New("invalid trigger signal")

// PatternFunc supplies the longer-horizon pattern component for a user at a
// point in time. Any error yields a pattern score of 0.
type PatternFunc func(ctx context.Context, userID string, at time.Time) (float64, error)

// EscalationRequest is the hand-off payload to the emergency responder.
type EscalationRequest struct {
	UserID            string
	RiskLevel         Level
	FinalScore        float64
	TriggerType       string // modality suffixed with "_analysis"
	Timestamp         time.Time
	Latitude          *float64
	Longitude         *float64
	Contacts          []profiles.Contact
	NotifyAuthorities bool
}

// Escalator executes an emergency response plan. Invoked fire-and-forget;
// its outcome never affects the assessment.
type Escalator interface {
	Escalate(ctx context.Context, req *EscalationRequest)
}

// Broadcaster pushes finished assessments to live monitoring clients.
// Implementations must not block.
type Broadcaster interface {
	BroadcastAssessment(a *Assessment)
}

// Aggregator combines a trigger signal with recent history, context, and
// pattern adjustments into a persisted assessment. Each Assess call is an
// independent stateless unit of work; concurrent calls for the same user
// each read their own history snapshot.
type Aggregator struct {
	params      Params
	threats     threats.Store
	profiles    profiles.Store
	store       Store
	pattern     PatternFunc // nil = fixed default
	escalator   Escalator   // nil = escalation decision only, no hand-off
	broadcaster Broadcaster // nil = no live stream
	logger      *slog.Logger
	loc         *time.Location
}

// NewAggregator creates a risk aggregator. loc determines the local hour
// for the night bonus; nil means UTC.
func NewAggregator(params Params, ts threats.Store, ps profiles.Store, rs Store, logger *slog.Logger, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		params:   params,
		threats:  ts,
		profiles: ps,
		store:    rs,
		logger:   logger,
		loc:      loc,
	}
}

// WithPattern sets the pattern provider.
func (a *Aggregator) WithPattern(fn PatternFunc) *Aggregator {
	a.pattern = fn
	return a
}

// WithEscalator sets the emergency responder hand-off.
func (a *Aggregator) WithEscalator(e Escalator) *Aggregator {
	a.escalator = e
	return a
}

// WithBroadcaster sets the live assessment stream.
func (a *Aggregator) WithBroadcaster(b Broadcaster) *Aggregator {
	a.broadcaster = b
	return a
}

// Assess produces and persists an assessment for one trigger signal.
func (a *Aggregator) Assess(ctx context.Context, trigger *threats.Event) (*Assessment, error) {
	if trigger == nil || trigger.UserID == "" || !threats.ValidModality(trigger.Modality) || trigger.Timestamp.IsZero() {
		return nil, ErrInvalidTrigger
	}

	ctx, span := traces.StartSpan(ctx, "risk.assess",
		traces.UserID(trigger.UserID), traces.Modality(trigger.Modality))
	defer span.End()

	// Producers pre-clamp; clamp again so a misbehaving producer cannot
	// push a component outside [0,1].
	base := clamp01(trigger.Score)

	var degraded []string

	profile, err := a.profiles.Get(ctx, trigger.UserID)
	if err != nil {
		// Degraded: base component only, and nobody to notify.
		if !errors.Is(err, profiles.ErrNotFound) {
			a.logger.Error("profile lookup failed, degrading assessment",
				"user_id", trigger.UserID, "error", err)
		} else {
			a.logger.Warn("no profile for user, degrading assessment",
				"user_id", trigger.UserID)
		}
		metrics.DegradedAssessmentsTotal.WithLabelValues(DegradedProfile).Inc()
		assessment := a.finish(ctx, trigger, round3(clamp01(base*a.params.BaseWeight)), map[string]float64{
			ComponentBase:       base,
			ComponentEscalation: 0,
			ComponentContext:    0,
			ComponentPattern:    0,
		}, []string{DegradedProfile}, false)
		return assessment, nil
	}

	since := trigger.Timestamp.Add(-a.params.Window)
	recent, err := a.threats.RecentForUser(ctx, trigger.UserID, since)
	escalation := 0.0
	if err != nil {
		// Fail open on the score, not on availability.
		a.logger.Error("history query failed, escalation score zeroed",
			"user_id", trigger.UserID, "error", err)
		metrics.DegradedAssessmentsTotal.WithLabelValues(DegradedHistory).Inc()
		degraded = append(degraded, DegradedHistory)
	} else {
		escalation = a.escalationScore(mergeTrigger(recent, trigger))
	}

	contextScore := a.contextScore(trigger, profile)

	pattern := a.params.DefaultPatternScore
	if a.pattern != nil {
		v, perr := a.pattern(ctx, trigger.UserID, trigger.Timestamp)
		if perr != nil {
			a.logger.Warn("pattern provider failed, pattern score zeroed",
				"user_id", trigger.UserID, "error", perr)
			pattern = 0.0
		} else {
			pattern = clamp01(v)
		}
	}

	final := round3(clamp01(
		base*a.params.BaseWeight +
			escalation*a.params.EscalationWeight +
			contextScore*a.params.ContextWeight +
			pattern*a.params.PatternWeight))

	escalate := final >= a.params.EscalationThreshold

	assessment := a.finish(ctx, trigger, final, map[string]float64{
		ComponentBase:       base,
		ComponentEscalation: escalation,
		ComponentContext:    contextScore,
		ComponentPattern:    pattern,
	}, degraded, escalate)

	span.SetAttributes(traces.RiskScore(final), traces.RiskLevel(string(assessment.Level)))

	if escalate {
		metrics.EscalationsTotal.Inc()
		a.logger.Warn("risk threshold crossed, escalating",
			"user_id", trigger.UserID, "score", final, "level", assessment.Level)
		if a.escalator != nil {
			req := &EscalationRequest{
				UserID:            trigger.UserID,
				RiskLevel:         assessment.Level,
				FinalScore:        final,
				TriggerType:       trigger.Modality + "_analysis",
				Timestamp:         trigger.Timestamp,
				Latitude:          trigger.Latitude,
				Longitude:         trigger.Longitude,
				Contacts:          profile.Contacts,
				NotifyAuthorities: profile.NotifyAuthorities,
			}
			// Fire-and-forget: the responder's outcome never reaches the caller.
			go a.escalator.Escalate(context.WithoutCancel(ctx), req)
		}
	}

	return assessment, nil
}

// finish stamps identity fields, persists best-effort, and records metrics.
func (a *Aggregator) finish(ctx context.Context, trigger *threats.Event, score float64, components map[string]float64, degraded []string, escalate bool) *Assessment {
	assessment := &Assessment{
		ID:                 idgen.WithPrefix("asmt"),
		UserID:             trigger.UserID,
		Score:              score,
		Level:              a.params.Classify(score),
		Components:         components,
		TriggerModality:    trigger.Modality,
		TriggerTimestamp:   trigger.Timestamp,
		EmergencyTriggered: escalate,
		Degraded:           degraded,
		EvaluatedAt:        time.Now(),
	}
	metrics.AssessmentsTotal.WithLabelValues(string(assessment.Level)).Inc()
	if a.broadcaster != nil {
		a.broadcaster.BroadcastAssessment(assessment)
	}
	if err := a.store.Record(ctx, assessment); err != nil {
		// The audit write and the synchronous answer are deliberately not
		// transactional.
		a.logger.Error("failed to persist assessment",
			"user_id", assessment.UserID, "assessment_id", assessment.ID, "error", err)
	}
	return assessment
}

// mergeTrigger returns recent with the trigger added unless an identical
// signal (same modality and timestamp) is already stored.
func mergeTrigger(recent []*threats.Event, trigger *threats.Event) []*threats.Event {
	for _, e := range recent {
		if e.Modality == trigger.Modality && e.Timestamp.Equal(trigger.Timestamp) {
			return recent
		}
	}
	return append(recent, trigger)
}

// escalationScore sums the independent bonuses over the merged recent set.
func (a *Aggregator) escalationScore(events []*threats.Event) float64 {
	score := 0.0

	modalities := make(map[string]bool)
	for _, e := range events {
		modalities[e.Modality] = true
	}
	if len(modalities) >= 2 {
		score += a.params.MultiModalityBonus
	}

	if len(events) >= a.params.EventCountMin {
		score += a.params.EventCountBonus
	}

	for _, e := range events {
		if e.Score >= a.params.SeverityFloor {
			score += a.params.SeverityBonus
			break
		}
	}

	return clamp01(score)
}

// contextScore sums the night, geofence, and isolation bonuses. The hour
// is taken from the trigger timestamp, never the wall clock, so re-running
// the same trigger yields the same score.
func (a *Aggregator) contextScore(trigger *threats.Event, profile *profiles.Profile) float64 {
	score := 0.0

	hour := trigger.Timestamp.In(a.loc).Hour()
	if hour >= 22 || hour < 6 {
		score += a.params.NightBonus
	}

	if trigger.HasLocation() && a.insideAnyArea(*trigger.Latitude, *trigger.Longitude, profile.HighRiskAreas) {
		score += a.params.GeofenceBonus
	}

	if a.params.IsolationEnabled && trigger.Accuracy != nil && *trigger.Accuracy > a.params.IsolationAccuracy {
		score += a.params.IsolationBonus
	}

	return clamp01(score)
}

// insideAnyArea is an axis-aligned box test with half-width ProximityDegrees
// around each area center. The per-area radius is display metadata and does
// not affect containment.
func (a *Aggregator) insideAnyArea(lat, lng float64, areas []profiles.Area) bool {
	for _, area := range areas {
		if math.Abs(lat-area.Latitude) <= a.params.ProximityDegrees &&
			math.Abs(lng-area.Longitude) <= a.params.ProximityDegrees {
			return true
		}
	}
	return false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
