// Package validation provides input validation for the signal ingestion API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (4MB — audio payloads
// arrive base64-encoded and dominate everything else).
const MaxRequestSize = 4 << 20

// MaxTextLength caps analyzed message bodies.
const MaxTextLength = 10000

// userIDRegex validates user identifiers: 3-64 chars of [A-Za-z0-9._-].
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUserID checks if a string is an acceptable user identifier
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// SanitizeString trims whitespace, strips null bytes, and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidUserID checks if a field is a well-formed user identifier
func ValidUserID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidUserID(value) {
			return &ValidationError{Field: field, Message: "must be 3-64 characters of letters, digits, '.', '_' or '-'"}
		}
		return nil
	}
}

// ScoreSupplied checks that a pointer-valued score field was present.
// Out-of-range values are accepted here; the consumer clamps to [0,1]
// so a misbehaving producer degrades to a saturated score, not a 400.
func ScoreSupplied(field string, value *float64) func() *ValidationError {
	return func() *ValidationError {
		if value == nil {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// PositiveTimestamp checks that an epoch-seconds field was supplied and is positive
func PositiveTimestamp(field string, value *int64) func() *ValidationError {
	return func() *ValidationError {
		if value == nil {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if *value <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive epoch-seconds value"}
		}
		return nil
	}
}

// ValidLatitude checks an optional latitude value
func ValidLatitude(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value < -90 || value > 90 {
			return &ValidationError{Field: field, Message: "must be between -90 and 90"}
		}
		return nil
	}
}

// ValidLongitude checks an optional longitude value
func ValidLongitude(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value < -180 || value > 180 {
			return &ValidationError{Field: field, Message: "must be between -180 and 180"}
		}
		return nil
	}
}

// UserIDParamMiddleware validates the :userId URL parameter on routes that use it.
func UserIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		if id != "" && !IsValidUserID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user_id",
				"message": "user id must be 3-64 characters of letters, digits, '.', '_' or '-'",
			})
			return
		}
		c.Next()
	}
}
