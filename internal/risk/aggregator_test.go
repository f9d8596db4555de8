package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kavachapp/kavach/internal/logging"
	"github.com/kavachapp/kavach/internal/profiles"
	"github.com/kavachapp/kavach/internal/threats"
)

// 23:00 UTC on a fixed date, inside the night window.
var nightTime = time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)

// 14:00 UTC, outside the night window.
var dayTime = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T) (*Aggregator, *threats.MemoryStore, *profiles.MemoryStore, *MemoryStore) {
	t.Helper()
	ts := threats.NewMemoryStore()
	ps := profiles.NewMemoryStore()
	rs := NewMemoryStore()
	agg := NewAggregator(DefaultParams(), ts, ps, rs, logging.New("error", "text"), nil)
	return agg, ts, ps, rs
}

func seedProfile(t *testing.T, ps *profiles.MemoryStore, userID string, areas ...profiles.Area) {
	t.Helper()
	p := profiles.Default(userID)
	p.HighRiskAreas = areas
	p.Contacts = []profiles.Contact{{Name: "Asha", Method: profiles.MethodSMS, Value: "+919900112233"}}
	if err := ps.Put(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func TestNoProfileDegradesToBaseOnly(t *testing.T) {
	agg, _, _, rs := newTestAggregator(t)

	a, err := agg.Assess(context.Background(), &threats.Event{
		UserID: "u-nobody", Modality: threats.ModalityAudio, Score: 0.9, Timestamp: dayTime,
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if a.Score != 0.36 {
		t.Errorf("degraded score = %v, want 0.36", a.Score)
	}
	if a.Level != LevelLow {
		t.Errorf("level = %s, want LOW", a.Level)
	}
	if a.EmergencyTriggered {
		t.Error("degraded assessment must not escalate")
	}
	if len(a.Degraded) != 1 || a.Degraded[0] != DegradedProfile {
		t.Errorf("degraded = %v, want [profile]", a.Degraded)
	}
	if a.Components[ComponentEscalation] != 0 || a.Components[ComponentContext] != 0 || a.Components[ComponentPattern] != 0 {
		t.Errorf("degraded components = %v, want base only", a.Components)
	}

	// The degraded assessment is still part of the audit trail.
	stored, _ := rs.ListByUser(context.Background(), "u-nobody", 10)
	if len(stored) != 1 {
		t.Errorf("expected 1 stored assessment, got %d", len(stored))
	}
}

func TestNightMultiSignalScenario(t *testing.T) {
	agg, ts, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-night")

	// Two prior signals inside the 30-minute window: audio 0.65, motion 0.7.
	ctx := context.Background()
	for _, ev := range []*threats.Event{
		{UserID: "u-night", Modality: threats.ModalityAudio, Score: 0.65, Timestamp: nightTime.Add(-10 * time.Minute)},
		{UserID: "u-night", Modality: threats.ModalityMotion, Score: 0.7, Timestamp: nightTime.Add(-20 * time.Minute)},
	} {
		if err := ts.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	a, err := agg.Assess(ctx, &threats.Event{
		UserID: "u-night", Modality: threats.ModalityText, Score: 0.5, Timestamp: nightTime,
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// escalation: multi-modality 0.4 + count 0.3 (3 events with trigger merged)
	// + severity 0.3 (0.65 and 0.7 >= 0.6), clamped to 1.0.
	if got := a.Components[ComponentEscalation]; got != 1.0 {
		t.Errorf("escalation = %v, want 1.0", got)
	}
	if got := a.Components[ComponentContext]; got != 0.2 {
		t.Errorf("context = %v, want 0.2 (night only)", got)
	}
	// 0.5*0.4 + 1.0*0.3 + 0.2*0.2 + 0.1*0.1 = 0.55
	if a.Score != 0.55 {
		t.Errorf("score = %v, want 0.55", a.Score)
	}
	if a.Level != LevelMedium {
		t.Errorf("level = %s, want MEDIUM", a.Level)
	}
	if a.EmergencyTriggered {
		t.Error("0.55 must not escalate")
	}
}

func TestClassifyBoundaries(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		score float64
		want  Level
	}{
		{1.0, LevelCritical},
		{0.9, LevelCritical},
		{0.899, LevelHigh},
		{0.7, LevelHigh},
		{0.699, LevelMedium},
		{0.5, LevelMedium},
		{0.499, LevelLow},
		{0.3, LevelLow},
		{0.299, LevelMinimal},
		{0.0, LevelMinimal},
	}
	for _, tt := range tests {
		if got := p.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestGeofenceBoxBoundary(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t)
	area := profiles.Area{Latitude: 12.9716, Longitude: 77.5946, Radius: 500}
	prox := agg.params.ProximityDegrees

	if !agg.insideAnyArea(area.Latitude, area.Longitude, []profiles.Area{area}) {
		t.Error("point at area center must be inside")
	}
	if !agg.insideAnyArea(area.Latitude+prox, area.Longitude, []profiles.Area{area}) {
		t.Error("point at exactly the box edge must be inside")
	}
	if agg.insideAnyArea(area.Latitude+prox+1e-6, area.Longitude, []profiles.Area{area}) {
		t.Error("point past the box edge in latitude must be outside")
	}
	if agg.insideAnyArea(area.Latitude, area.Longitude-prox-1e-6, []profiles.Area{area}) {
		t.Error("point past the box edge in longitude must be outside")
	}
	if agg.insideAnyArea(0, 0, nil) {
		t.Error("no areas means no containment")
	}
}

func TestEscalationBonusesIndependentlyAdditive(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t)
	base := func(events []*threats.Event) float64 { return agg.escalationScore(events) }
	at := dayTime

	// Single low signal: no bonuses.
	single := []*threats.Event{{Modality: threats.ModalityAudio, Score: 0.2, Timestamp: at}}
	if got := base(single); got != 0 {
		t.Fatalf("no-bonus set scored %v", got)
	}

	// Severity alone.
	severe := []*threats.Event{{Modality: threats.ModalityAudio, Score: 0.6, Timestamp: at}}
	if got := base(severe); got != agg.params.SeverityBonus {
		t.Errorf("severity-only = %v, want %v", got, agg.params.SeverityBonus)
	}

	// Multi-modality alone.
	multi := []*threats.Event{
		{Modality: threats.ModalityAudio, Score: 0.2, Timestamp: at},
		{Modality: threats.ModalityText, Score: 0.2, Timestamp: at},
	}
	if got := base(multi); got != agg.params.MultiModalityBonus {
		t.Errorf("multi-only = %v, want %v", got, agg.params.MultiModalityBonus)
	}

	// Count alone (3 same-modality low signals).
	var many []*threats.Event
	for i := 0; i < 3; i++ {
		many = append(many, &threats.Event{Modality: threats.ModalityAudio, Score: 0.2, Timestamp: at.Add(time.Duration(i) * time.Minute)})
	}
	if got := base(many); got != agg.params.EventCountBonus {
		t.Errorf("count-only = %v, want %v", got, agg.params.EventCountBonus)
	}

	// Adding severity to the count set raises the score by exactly its bonus.
	withSeverity := append(append([]*threats.Event{}, many[:2]...),
		&threats.Event{Modality: threats.ModalityAudio, Score: 0.9, Timestamp: at})
	want := agg.params.EventCountBonus + agg.params.SeverityBonus
	if got := base(withSeverity); got != want {
		t.Errorf("count+severity = %v, want %v", got, want)
	}

	// All three fire and the sum clamps at 1.0.
	all := append(append([]*threats.Event{}, many...),
		&threats.Event{Modality: threats.ModalityMotion, Score: 0.9, Timestamp: at})
	if got := base(all); got != 1.0 {
		t.Errorf("all bonuses = %v, want 1.0 after clamp", got)
	}
}

func TestIdempotentForSameTriggerAndHistory(t *testing.T) {
	agg, ts, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-idem", profiles.Area{Latitude: 10, Longitude: 20})

	ctx := context.Background()
	if err := ts.Record(ctx, &threats.Event{UserID: "u-idem", Modality: threats.ModalityMotion, Score: 0.7, Timestamp: nightTime.Add(-5 * time.Minute)}); err != nil {
		t.Fatal(err)
	}

	lat, lng := 10.005, 20.001
	trigger := func() *threats.Event {
		return &threats.Event{
			UserID: "u-idem", Modality: threats.ModalityAudio, Score: 0.62,
			Timestamp: nightTime, Latitude: &lat, Longitude: &lng,
		}
	}

	first, err := agg.Assess(ctx, trigger())
	if err != nil {
		t.Fatal(err)
	}
	second, err := agg.Assess(ctx, trigger())
	if err != nil {
		t.Fatal(err)
	}

	if first.Score != second.Score || first.Level != second.Level {
		t.Errorf("re-run diverged: %v/%s vs %v/%s", first.Score, first.Level, second.Score, second.Level)
	}
	for _, k := range []string{ComponentBase, ComponentEscalation, ComponentContext, ComponentPattern} {
		if first.Components[k] != second.Components[k] {
			t.Errorf("component %s diverged: %v vs %v", k, first.Components[k], second.Components[k])
		}
	}
}

func TestMalformedTriggerRejectedWithoutWrites(t *testing.T) {
	agg, _, ps, rs := newTestAggregator(t)
	seedProfile(t, ps, "u-bad")

	cases := []*threats.Event{
		nil,
		{UserID: "", Modality: threats.ModalityAudio, Score: 0.5, Timestamp: dayTime},
		{UserID: "u-bad", Modality: "video", Score: 0.5, Timestamp: dayTime},
		{UserID: "u-bad", Modality: threats.ModalityAudio, Score: 0.5}, // missing timestamp
	}
	for i, trigger := range cases {
		if _, err := agg.Assess(context.Background(), trigger); !errors.Is(err, ErrInvalidTrigger) {
			t.Errorf("case %d: err = %v, want ErrInvalidTrigger", i, err)
		}
	}

	stored, _ := rs.ListByUser(context.Background(), "u-bad", 10)
	if len(stored) != 0 {
		t.Errorf("malformed triggers wrote %d assessments", len(stored))
	}
}

type captureEscalator struct {
	ch chan *EscalationRequest
}

func (e *captureEscalator) Escalate(_ context.Context, req *EscalationRequest) {
	e.ch <- req
}

func TestEscalationThresholdInclusive(t *testing.T) {
	agg, ts, ps, _ := newTestAggregator(t)
	area := profiles.Area{Latitude: 12.9716, Longitude: 77.5946}
	seedProfile(t, ps, "u-edge", area)

	esc := &captureEscalator{ch: make(chan *EscalationRequest, 1)}
	// Pattern pinned to 0 so the total lands exactly on the threshold:
	// 1.0*0.4 + 1.0*0.3 + (0.2+0.3)*0.2 + 0.0*0.1 = 0.8.
	agg.WithEscalator(esc).WithPattern(func(context.Context, string, time.Time) (float64, error) {
		return 0, nil
	})

	ctx := context.Background()
	for _, ev := range []*threats.Event{
		{UserID: "u-edge", Modality: threats.ModalityAudio, Score: 0.9, Timestamp: nightTime.Add(-2 * time.Minute)},
		{UserID: "u-edge", Modality: threats.ModalityText, Score: 0.9, Timestamp: nightTime.Add(-4 * time.Minute)},
	} {
		if err := ts.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	a, err := agg.Assess(ctx, &threats.Event{
		UserID: "u-edge", Modality: threats.ModalityMotion, Score: 1.0,
		Timestamp: nightTime, Latitude: &area.Latitude, Longitude: &area.Longitude,
	})
	if err != nil {
		t.Fatal(err)
	}

	if a.Score != 0.8 {
		t.Fatalf("score = %v, want exactly 0.8", a.Score)
	}
	if !a.EmergencyTriggered {
		t.Error("score exactly at the threshold must escalate")
	}

	select {
	case req := <-esc.ch:
		if req.UserID != "u-edge" {
			t.Errorf("escalation user = %q", req.UserID)
		}
		if req.TriggerType != "motion_analysis" {
			t.Errorf("trigger type = %q", req.TriggerType)
		}
		if len(req.Contacts) != 1 {
			t.Errorf("expected contacts handed off, got %v", req.Contacts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("escalator was not invoked")
	}
}

type failingThreatStore struct{}

func (failingThreatStore) Record(context.Context, *threats.Event) error { return nil }
func (failingThreatStore) RecentForUser(context.Context, string, time.Time) ([]*threats.Event, error) {
	return nil, errors.New("store unreachable")
}
func (failingThreatStore) CountForUser(context.Context, string) (int, error) {
	return 0, errors.New("store unreachable")
}
func (failingThreatStore) UsersSince(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("store unreachable")
}

func TestHistoryFailureZeroesEscalation(t *testing.T) {
	ps := profiles.NewMemoryStore()
	rs := NewMemoryStore()
	seedProfile(t, ps, "u-hist")
	agg := NewAggregator(DefaultParams(), failingThreatStore{}, ps, rs, logging.New("error", "text"), nil)

	a, err := agg.Assess(context.Background(), &threats.Event{
		UserID: "u-hist", Modality: threats.ModalityAudio, Score: 0.9, Timestamp: dayTime,
	})
	if err != nil {
		t.Fatalf("history outage must not fail the assessment: %v", err)
	}
	if a.Components[ComponentEscalation] != 0 {
		t.Errorf("escalation = %v, want 0 on history failure", a.Components[ComponentEscalation])
	}
	if len(a.Degraded) != 1 || a.Degraded[0] != DegradedHistory {
		t.Errorf("degraded = %v, want [history]", a.Degraded)
	}
	// base 0.9*0.4 + context 0 + pattern 0.1*0.1 = 0.37
	if a.Score != 0.37 {
		t.Errorf("score = %v, want 0.37", a.Score)
	}
}

func TestPatternErrorZeroesComponent(t *testing.T) {
	agg, _, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-pat")
	agg.WithPattern(func(context.Context, string, time.Time) (float64, error) {
		return 0.9, errors.New("baseline unavailable")
	})

	a, err := agg.Assess(context.Background(), &threats.Event{
		UserID: "u-pat", Modality: threats.ModalityText, Score: 0.4, Timestamp: dayTime,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Components[ComponentPattern] != 0 {
		t.Errorf("pattern = %v, want 0 on provider error", a.Components[ComponentPattern])
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	agg, ts, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-range", profiles.Area{Latitude: 0, Longitude: 0})

	ctx := context.Background()
	lat, lng := 0.0, 0.0
	for i := 0; i < 5; i++ {
		if err := ts.Record(ctx, &threats.Event{
			UserID: "u-range", Modality: threats.ModalityAudio, Score: 1.0,
			Timestamp: nightTime.Add(-time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	for _, score := range []float64{0, 0.5, 1.0, 1.7, -0.3} {
		a, err := agg.Assess(ctx, &threats.Event{
			UserID: "u-range", Modality: threats.ModalityMotion, Score: score,
			Timestamp: nightTime, Latitude: &lat, Longitude: &lng,
		})
		if err != nil {
			t.Fatal(err)
		}
		if a.Score < 0 || a.Score > 1 {
			t.Errorf("score %v out of range for input %v", a.Score, score)
		}
		if a.Components[ComponentBase] < 0 || a.Components[ComponentBase] > 1 {
			t.Errorf("base %v not clamped for input %v", a.Components[ComponentBase], score)
		}
	}
}

func TestNightWindowBoundaries(t *testing.T) {
	agg, _, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-hours")

	tests := []struct {
		hour  int
		night bool
	}{
		{21, false},
		{22, true},
		{23, true},
		{0, true},
		{5, true},
		{6, false},
		{12, false},
	}
	for _, tt := range tests {
		at := time.Date(2025, 3, 10, tt.hour, 30, 0, 0, time.UTC)
		a, err := agg.Assess(context.Background(), &threats.Event{
			UserID: "u-hours", Modality: threats.ModalityText, Score: 0.1, Timestamp: at,
		})
		if err != nil {
			t.Fatal(err)
		}
		want := 0.0
		if tt.night {
			want = agg.params.NightBonus
		}
		if got := a.Components[ComponentContext]; got != want {
			t.Errorf("hour %d: context = %v, want %v", tt.hour, got, want)
		}
	}
}

func TestIsolationBonusDisabledByDefault(t *testing.T) {
	agg, _, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-iso")

	lat, lng, acc := 1.0, 1.0, 500.0
	a, err := agg.Assess(context.Background(), &threats.Event{
		UserID: "u-iso", Modality: threats.ModalityMotion, Score: 0.2,
		Timestamp: dayTime, Latitude: &lat, Longitude: &lng, Accuracy: &acc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Components[ComponentContext] != 0 {
		t.Errorf("context = %v, want 0 with isolation disabled", a.Components[ComponentContext])
	}

	agg.params.IsolationEnabled = true
	a, err = agg.Assess(context.Background(), &threats.Event{
		UserID: "u-iso", Modality: threats.ModalityMotion, Score: 0.2,
		Timestamp: dayTime, Latitude: &lat, Longitude: &lng, Accuracy: &acc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Components[ComponentContext] != agg.params.IsolationBonus {
		t.Errorf("context = %v, want %v with isolation enabled", a.Components[ComponentContext], agg.params.IsolationBonus)
	}
}

func TestTriggerNotDoubleCountedWhenStored(t *testing.T) {
	agg, ts, ps, _ := newTestAggregator(t)
	seedProfile(t, ps, "u-dedup")

	ctx := context.Background()
	trigger := &threats.Event{
		UserID: "u-dedup", Modality: threats.ModalityAudio, Score: 0.2, Timestamp: dayTime,
	}
	// Producer path: signal is stored before aggregation runs.
	if err := ts.Record(ctx, trigger); err != nil {
		t.Fatal(err)
	}
	if err := ts.Record(ctx, &threats.Event{UserID: "u-dedup", Modality: threats.ModalityText, Score: 0.2, Timestamp: dayTime.Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}

	a, err := agg.Assess(ctx, trigger)
	if err != nil {
		t.Fatal(err)
	}
	// Two distinct events only: multi-modality fires, count (needs 3) must not.
	if got := a.Components[ComponentEscalation]; got != agg.params.MultiModalityBonus {
		t.Errorf("escalation = %v, want %v (trigger deduplicated)", got, agg.params.MultiModalityBonus)
	}
}
