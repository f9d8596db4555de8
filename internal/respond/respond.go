// Package respond executes the emergency response plan for escalated
// risk assessments: contact alerts, evidence capture, location tracking,
// optional authority notification, and enhanced monitoring.
//
// Every step is best-effort. A failed step is logged and counted but
// never aborts the remaining steps, and nothing here propagates back to
// the assessment that triggered it.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kavachapp/kavach/internal/idgen"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/notify"
	"github.com/kavachapp/kavach/internal/profiles"
	"github.com/kavachapp/kavach/internal/risk"
	"github.com/kavachapp/kavach/internal/traces"
)

// Response plan actions recorded on the audit event.
const (
	ActionContactsAlerted     = "contacts_alerted"
	ActionEvidenceRecorded    = "evidence_recorded"
	ActionLocationTracking    = "location_tracking_started"
	ActionAuthoritiesNotified = "authorities_notified"
	ActionMonitoringEnhanced  = "monitoring_enhanced"
)

// Event is one entry in the per-user emergency audit trail.
type Event struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	RiskLevel   string    `json:"riskLevel"`
	RiskScore   float64   `json:"riskScore"`
	TriggerType string    `json:"triggerType"`
	Timestamp   time.Time `json:"timestamp"`
	Actions     []string  `json:"actions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists emergency audit events.
type Store interface {
	Record(ctx context.Context, event *Event) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Event, error)
}

// EvidenceRecord preserves material tied to an escalation or a
// high-scoring signal.
type EvidenceRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`    // escalation_snapshot, message_text, ...
	Content   string    `json:"content"` // JSON
	CreatedAt time.Time `json:"createdAt"`
}

// EvidenceStore persists evidence records.
type EvidenceStore interface {
	Record(ctx context.Context, record *EvidenceRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*EvidenceRecord, error)
}

// Broadcaster pushes emergency notices to live monitoring clients.
type Broadcaster interface {
	BroadcastEmergency(event *Event)
}

// Responder executes response plans. It satisfies the aggregator's
// escalation hand-off contract.
type Responder struct {
	store       Store
	evidence    EvidenceStore
	dispatcher  *notify.Dispatcher
	broadcaster Broadcaster // nil = no live feed
	logger      *slog.Logger
}

// NewResponder creates an emergency responder.
func NewResponder(store Store, evidence EvidenceStore, dispatcher *notify.Dispatcher, logger *slog.Logger) *Responder {
	return &Responder{
		store:      store,
		evidence:   evidence,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// WithBroadcaster sets the live monitoring feed.
func (r *Responder) WithBroadcaster(b Broadcaster) *Responder {
	r.broadcaster = b
	return r
}

// Escalate runs the full response plan for one escalated assessment.
func (r *Responder) Escalate(ctx context.Context, req *risk.EscalationRequest) {
	timer := prometheus.NewTimer(metrics.EmergencyDuration)
	defer timer.ObserveDuration()

	ctx, span := traces.StartSpan(ctx, "respond.execute",
		traces.UserID(req.UserID), traces.RiskLevel(string(req.RiskLevel)))
	defer span.End()

	event := &Event{
		ID:          idgen.WithPrefix("emg"),
		UserID:      req.UserID,
		RiskLevel:   string(req.RiskLevel),
		RiskScore:   req.FinalScore,
		TriggerType: req.TriggerType,
		Timestamp:   req.Timestamp,
		CreatedAt:   time.Now(),
	}
	span.SetAttributes(traces.EmergencyID(event.ID))

	alerted := r.alertContacts(ctx, req)
	event.Actions = append(event.Actions, fmt.Sprintf("%s:%d", ActionContactsAlerted, alerted))

	if r.recordEvidence(ctx, req, event.ID) {
		event.Actions = append(event.Actions, ActionEvidenceRecorded)
	}

	if req.Latitude != nil && req.Longitude != nil {
		r.logger.Info("emergency location tracking started",
			"user_id", req.UserID, "emergency_id", event.ID,
			"lat", *req.Latitude, "lng", *req.Longitude)
		event.Actions = append(event.Actions, ActionLocationTracking)
	}

	if req.NotifyAuthorities {
		r.logger.Warn("authority notification requested",
			"user_id", req.UserID, "emergency_id", event.ID, "level", req.RiskLevel)
		event.Actions = append(event.Actions, ActionAuthoritiesNotified)
	}

	event.Actions = append(event.Actions, ActionMonitoringEnhanced)
	if r.broadcaster != nil {
		r.broadcaster.BroadcastEmergency(event)
	}

	if err := r.store.Record(ctx, event); err != nil {
		r.logger.Error("failed to record emergency event",
			"user_id", req.UserID, "emergency_id", event.ID, "error", err)
	}

	r.logger.Warn("emergency response executed",
		"user_id", req.UserID, "emergency_id", event.ID,
		"level", req.RiskLevel, "contacts_alerted", alerted)
}

// alertContacts notifies every emergency contact, returning how many
// deliveries succeeded.
func (r *Responder) alertContacts(ctx context.Context, req *risk.EscalationRequest) int {
	msg := alertMessage(req)
	alerted := 0
	for _, contact := range req.Contacts {
		channel := notify.ChannelSMS
		if contact.Method == profiles.MethodEmail {
			channel = notify.ChannelEmail
		}
		alert := &notify.Alert{
			UserID:        req.UserID,
			RiskLevel:     string(req.RiskLevel),
			RiskScore:     req.FinalScore,
			TriggerType:   req.TriggerType,
			Timestamp:     req.Timestamp,
			RecipientName: contact.Name,
			Recipient:     contact.Value,
			Message:       msg,
		}
		if err := r.dispatcher.Send(ctx, channel, alert); err != nil {
			continue
		}
		alerted++
	}
	return alerted
}

// recordEvidence snapshots the escalation hand-off.
func (r *Responder) recordEvidence(ctx context.Context, req *risk.EscalationRequest, emergencyID string) bool {
	content, err := json.Marshal(map[string]interface{}{
		"emergencyId": emergencyID,
		"riskLevel":   req.RiskLevel,
		"finalScore":  req.FinalScore,
		"triggerType": req.TriggerType,
		"timestamp":   req.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false
	}
	record := &EvidenceRecord{
		ID:        idgen.WithPrefix("evd"),
		UserID:    req.UserID,
		Kind:      "escalation_snapshot",
		Content:   string(content),
		CreatedAt: time.Now(),
	}
	if err := r.evidence.Record(ctx, record); err != nil {
		r.logger.Error("failed to record evidence",
			"user_id", req.UserID, "emergency_id", emergencyID, "error", err)
		return false
	}
	return true
}

func alertMessage(req *risk.EscalationRequest) string {
	msg := fmt.Sprintf("Safety alert for %s: %s risk detected at %s. Please check in with them now.",
		req.UserID, req.RiskLevel, req.Timestamp.UTC().Format(time.RFC3339))
	if req.Latitude != nil && req.Longitude != nil {
		msg += fmt.Sprintf(" Last known location: %.5f,%.5f.", *req.Latitude, *req.Longitude)
	}
	return msg
}
