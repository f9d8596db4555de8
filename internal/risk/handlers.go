package risk

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/threats"
	"github.com/kavachapp/kavach/internal/validation"
)

// Handler provides HTTP endpoints for risk assessment
type Handler struct {
	aggregator *Aggregator
	threats    threats.Store
	store      Store
	logger     *slog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(aggregator *Aggregator, ts threats.Store, rs Store, logger *slog.Logger) *Handler {
	return &Handler{aggregator: aggregator, threats: ts, store: rs, logger: logger}
}

// RegisterRoutes sets up risk routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/assess", h.Assess)
	r.GET("/users/:userId/assessments", h.ListAssessments)
}

type locationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type assessContext struct {
	Location *locationPayload `json:"location,omitempty"`
}

type assessRequest struct {
	UserID      string         `json:"user_id"`
	TriggerType string         `json:"trigger_type"` // audio_analysis | motion_analysis | text_analysis
	Timestamp   *int64         `json:"timestamp"`    // epoch seconds
	ThreatScore *float64       `json:"threat_score"`
	Context     *assessContext `json:"context,omitempty"`
}

type assessResponse struct {
	RiskScore          float64 `json:"risk_score"`
	RiskLevel          string  `json:"risk_level"`
	EmergencyTriggered bool    `json:"emergency_triggered"`
}

// Assess handles POST /assess: score one externally-produced trigger signal.
// The trigger is recorded to the signal log before aggregation so later
// assessments see it as history.
func (h *Handler) Assess(c *gin.Context) {
	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	modality := strings.TrimSuffix(req.TriggerType, "_analysis")
	errs := validation.Validate(
		validation.Required("user_id", req.UserID),
		validation.ValidUserID("user_id", req.UserID),
		validation.Required("trigger_type", req.TriggerType),
		validation.PositiveTimestamp("timestamp", req.Timestamp),
		validation.ScoreSupplied("threat_score", req.ThreatScore),
	)
	if req.TriggerType != "" && !threats.ValidModality(modality) {
		errs = append(errs, validation.ValidationError{
			Field: "trigger_type", Message: "must be audio_analysis, motion_analysis, or text_analysis",
		})
	}
	if req.Context != nil && req.Context.Location != nil {
		errs = append(errs, validation.Validate(
			validation.ValidLatitude("context.location.latitude", req.Context.Location.Latitude),
			validation.ValidLongitude("context.location.longitude", req.Context.Location.Longitude),
		)...)
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	trigger := &threats.Event{
		UserID:    req.UserID,
		Modality:  modality,
		Score:     clamp01(*req.ThreatScore), // defensive: producers pre-clamp
		Timestamp: time.Unix(*req.Timestamp, 0).UTC(),
	}
	if req.Context != nil && req.Context.Location != nil {
		loc := req.Context.Location
		trigger.Latitude = &loc.Latitude
		trigger.Longitude = &loc.Longitude
		trigger.Accuracy = loc.Accuracy
	}

	if err := h.threats.Record(c.Request.Context(), trigger); err != nil {
		h.logger.Error("failed to record trigger signal", "user_id", trigger.UserID, "error", err)
		// Aggregation still runs; the trigger is merged into the recent set.
	} else {
		metrics.SignalsTotal.WithLabelValues(trigger.Modality).Inc()
	}

	assessment, err := h.aggregator.Assess(c.Request.Context(), trigger)
	if errors.Is(err, ErrInvalidTrigger) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_trigger",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		h.logger.Error("assessment failed", "user_id", trigger.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "assessment_error",
			"message": "Failed to compute risk assessment",
		})
		return
	}

	c.JSON(http.StatusOK, assessResponse{
		RiskScore:          assessment.Score,
		RiskLevel:          string(assessment.Level),
		EmergencyTriggered: assessment.EmergencyTriggered,
	})
}

// ListAssessments handles GET /users/:userId/assessments
func (h *Handler) ListAssessments(c *gin.Context) {
	userID := c.Param("userId")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	assessments, err := h.store.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list assessments", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "assessment_error",
			"message": "Failed to retrieve assessments",
		})
		return
	}
	if assessments == nil {
		assessments = []*Assessment{}
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": assessments,
		"count":       len(assessments),
	})
}
