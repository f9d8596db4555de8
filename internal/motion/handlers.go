package motion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/risk"
	"github.com/kavachapp/kavach/internal/threats"
	"github.com/kavachapp/kavach/internal/validation"
)

// Assessor runs a risk assessment for a trigger signal.
type Assessor interface {
	Assess(ctx context.Context, trigger *threats.Event) (*risk.Assessment, error)
}

// Handler ingests motion signals.
type Handler struct {
	threats   threats.Store
	assessor  Assessor
	threshold float64
	logger    *slog.Logger
}

// NewHandler creates a new motion signal handler. threshold is the
// score at or above which an assessment is triggered.
func NewHandler(ts threats.Store, assessor Assessor, threshold float64, logger *slog.Logger) *Handler {
	return &Handler{threats: ts, assessor: assessor, threshold: threshold, logger: logger}
}

// RegisterRoutes sets up motion signal routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signals/motion", h.Ingest)
}

type ingestRequest struct {
	UserID     string           `json:"user_id"`
	MotionData []Sample         `json:"motion_data"`
	Timestamp  *int64           `json:"timestamp"` // epoch seconds
	Location   *locationPayload `json:"location,omitempty"`
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

// Ingest handles POST /signals/motion: score one sensor window and
// record it as a threat signal. Assessment runs asynchronously when
// the score reaches the trigger threshold.
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	errs := validation.Validate(
		validation.Required("user_id", req.UserID),
		validation.ValidUserID("user_id", req.UserID),
		validation.PositiveTimestamp("timestamp", req.Timestamp),
	)
	if len(req.MotionData) == 0 {
		errs = append(errs, validation.ValidationError{
			Field: "motion_data", Message: "is required",
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

	res := Analyze(req.MotionData)

	details, _ := json.Marshal(res)
	event := &threats.Event{
		UserID:    req.UserID,
		Modality:  threats.ModalityMotion,
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
		h.logger.Error("failed to record motion signal", "user_id", req.UserID, "error", err)
	} else {
		metrics.SignalsTotal.WithLabelValues(threats.ModalityMotion).Inc()
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

func (h *Handler) runAssessment(ctx context.Context, trigger *threats.Event) {
	if _, err := h.assessor.Assess(ctx, trigger); err != nil {
		h.logger.Error("triggered assessment failed",
			"user_id", trigger.UserID, "modality", trigger.Modality, "error", err)
	}
}
