package profiles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kavachapp/kavach/internal/validation"
)

const maxContacts = 10
const maxHighRiskAreas = 20

// Handler provides HTTP endpoints for profile management
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new profile handler
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes sets up profile routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:userId/profile", h.GetProfile)
	r.PUT("/users/:userId/profile", h.PutProfile)
}

// GetProfile handles GET /users/:userId/profile.
// A user who has never configured a profile gets an empty default; it is
// persisted so later reads and assessments see the same document.
func (h *Handler) GetProfile(c *gin.Context) {
	userID := c.Param("userId")

	profile, err := h.store.Get(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		profile = Default(userID)
		if err := h.store.Put(c.Request.Context(), profile); err != nil {
			h.logger.Error("failed to create default profile", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "profile_error",
				"message": "Failed to create profile",
			})
			return
		}
	} else if err != nil {
		h.logger.Error("failed to load profile", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "profile_error",
			"message": "Failed to retrieve profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

type putProfileRequest struct {
	Contacts          []Contact `json:"contacts"`
	HighRiskAreas         []Area    `json:"highRiskAreas"`
	NotifyAuthorities bool      `json:"notifyAuthorities"`
}

// PutProfile handles PUT /users/:userId/profile
func (h *Handler) PutProfile(c *gin.Context) {
	userID := c.Param("userId")

	var req putProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	if len(req.Contacts) > maxContacts {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_contacts",
			"message": "A profile may list at most 10 contacts",
		})
		return
	}
	if len(req.HighRiskAreas) > maxHighRiskAreas {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_areas",
			"message": "A profile may list at most 20 high-risk areas",
		})
		return
	}

	var errs validation.ValidationErrors
	for i := range req.Contacts {
		ct := &req.Contacts[i]
		ct.Name = validation.SanitizeString(ct.Name, 100)
		ct.Value = validation.SanitizeString(ct.Value, 255)
		if !ValidMethod(ct.Method) {
			errs = append(errs, validation.ValidationError{
				Field: "contacts.method", Message: "must be sms or email",
			})
		}
		if ct.Value == "" {
			errs = append(errs, validation.ValidationError{
				Field: "contacts.value", Message: "is required",
			})
		}
	}
	for i := range req.HighRiskAreas {
		a := &req.HighRiskAreas[i]
		a.Label = validation.SanitizeString(a.Label, 100)
		errs = append(errs, validation.Validate(
			validation.ValidLatitude("highRiskAreas.latitude", a.Latitude),
			validation.ValidLongitude("highRiskAreas.longitude", a.Longitude),
		)...)
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	profile := &Profile{
		UserID:            userID,
		Contacts:          req.Contacts,
		HighRiskAreas:         req.HighRiskAreas,
		NotifyAuthorities: req.NotifyAuthorities,
	}
	if profile.Contacts == nil {
		profile.Contacts = []Contact{}
	}
	if profile.HighRiskAreas == nil {
		profile.HighRiskAreas = []Area{}
	}

	if err := h.store.Put(c.Request.Context(), profile); err != nil {
		h.logger.Error("failed to save profile", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "profile_error",
			"message": "Failed to save profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}
