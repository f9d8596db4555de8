package text

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavachapp/kavach/internal/idgen"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/respond"
	"github.com/kavachapp/kavach/internal/risk"
	"github.com/kavachapp/kavach/internal/threats"
	"github.com/kavachapp/kavach/internal/validation"
)

// Assessor runs a risk assessment for a trigger signal.
type Assessor interface {
	Assess(ctx context.Context, trigger *threats.Event) (*risk.Assessment, error)
}

// Handler ingests text signals.
type Handler struct {
	threats   threats.Store
	evidence  respond.EvidenceStore
	assessor  Assessor
	threshold float64
	logger    *slog.Logger
}

// NewHandler creates a new text signal handler. threshold is the score
// at or above which an assessment is triggered.
func NewHandler(ts threats.Store, es respond.EvidenceStore, assessor Assessor, threshold float64, logger *slog.Logger) *Handler {
	return &Handler{threats: ts, evidence: es, assessor: assessor, threshold: threshold, logger: logger}
}

// RegisterRoutes sets up text signal routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signals/text", h.Ingest)
}

type ingestRequest struct {
	UserID      string            `json:"user_id"`
	Text        string            `json:"text"`
	MessageType string            `json:"message_type"` // defaults to sms
	Timestamp   *int64            `json:"timestamp"`    // epoch seconds
	SenderInfo  map[string]string `json:"sender_info,omitempty"`
	Location    *locationPayload  `json:"location,omitempty"`
}

type locationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type ingestResponse struct {
	ThreatScore         float64 `json:"threat_score"`
	AnalysisComplete    bool    `json:"analysis_complete"`
	AssessmentTriggered bool    `json:"assessment_triggered"`
}

// Ingest handles POST /signals/text: score one message and record it
// as a threat signal. Assessment runs asynchronously when the score
// reaches the trigger threshold.
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}
	if req.MessageType == "" {
		req.MessageType = MessageTypeSMS
	}

	errs := validation.Validate(
		validation.Required("user_id", req.UserID),
		validation.ValidUserID("user_id", req.UserID),
		validation.Required("text", req.Text),
		validation.PositiveTimestamp("timestamp", req.Timestamp),
	)
	if !ValidMessageType(req.MessageType) {
		errs = append(errs, validation.ValidationError{
			Field: "message_type", Message: "must be sms, call, chat, or repeated_sms",
		})
	}
	if req.Location != nil {
		errs = append(errs, validation.Validate(
			validation.ValidLatitude("location.latitude", req.Location.Latitude),
			validation.ValidLongitude("location.longitude", req.Location.Longitude),
		)...)
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	res := Analyze(req.Text, req.MessageType)

	// The raw message never goes into the signal log, only its shape.
	details, _ := json.Marshal(res)
	event := &threats.Event{
		UserID:    req.UserID,
		Modality:  threats.ModalityText,
		Score:     res.Score,
		Timestamp: time.Unix(*req.Timestamp, 0).UTC(),
		Details:   string(details),
	}
	if req.Location != nil {
		event.Latitude = &req.Location.Latitude
		event.Longitude = &req.Location.Longitude
		event.Accuracy = req.Location.Accuracy
	}

	if err := h.threats.Record(c.Request.Context(), event); err != nil {
		h.logger.Error("failed to record text signal", "user_id", req.UserID, "error", err)
	} else {
		metrics.SignalsTotal.WithLabelValues(threats.ModalityText).Inc()
	}

	if res.Score > EvidenceThreshold && h.evidence != nil {
		h.recordEvidence(c.Request.Context(), &req, res.Score)
	}

	triggered := res.Score >= h.threshold
	if triggered && h.assessor != nil {
		go h.runAssessment(context.WithoutCancel(c.Request.Context()), event)
	}

	c.JSON(http.StatusOK, ingestResponse{
		ThreatScore:         res.Score,
		AnalysisComplete:    true,
		AssessmentTriggered: triggered,
	})
}

// recordEvidence preserves the message text for high-scoring signals.
func (h *Handler) recordEvidence(ctx context.Context, req *ingestRequest, score float64) {
	content, _ := json.Marshal(map[string]any{
		"text":         req.Text,
		"message_type": req.MessageType,
		"sender_info":  req.SenderInfo,
		"threat_score": score,
		"timestamp":    *req.Timestamp,
	})
	record := &respond.EvidenceRecord{
		ID:        idgen.WithPrefix("evd"),
		UserID:    req.UserID,
		Kind:      "message_text",
		Content:   string(content),
		CreatedAt: time.Now(),
	}
	if err := h.evidence.Record(ctx, record); err != nil {
		h.logger.Error("failed to record message evidence", "user_id", req.UserID, "error", err)
	}
}

func (h *Handler) runAssessment(ctx context.Context, trigger *threats.Event) {
	if _, err := h.assessor.Assess(ctx, trigger); err != nil {
		h.logger.Error("triggered assessment failed",
			"user_id", trigger.UserID, "modality", trigger.Modality, "error", err)
	}
}
