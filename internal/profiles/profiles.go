// Package profiles manages per-user safety profiles: emergency contacts,
// known high-risk areas, and response preferences.
package profiles

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no profile exists for a user.
var ErrNotFound = errors.New("profile not found")

// Contact alert delivery methods.
const (
	MethodSMS   = "sms"
	MethodEmail = "email"
)

// Contact is an emergency contact to alert on escalation.
type Contact struct {
	Name   string `json:"name"`
	Method string `json:"method"` // sms or email
	Value  string `json:"value"`  // phone number or email address
}

// Area is a location the user has flagged as high risk. A point counts
// as inside when it falls within an axis-aligned box around the center;
// Radius is kept for clients that render the area but does not affect
// containment.
type Area struct {
	Label     string  `json:"label,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius,omitempty"` // meters, display only
}

// Profile holds a user's safety configuration.
type Profile struct {
	UserID            string    `json:"userId"`
	Contacts          []Contact `json:"contacts"`
	HighRiskAreas     []Area    `json:"highRiskAreas"`
	NotifyAuthorities bool      `json:"notifyAuthorities"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Default returns a new profile with no contacts or areas.
func Default(userID string) *Profile {
	now := time.Now()
	return &Profile{
		UserID:        userID,
		Contacts:      []Contact{},
		HighRiskAreas: []Area{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Store persists user safety profiles.
type Store interface {
	// Get returns the user's profile or ErrNotFound.
	Get(ctx context.Context, userID string) (*Profile, error)
	// Put creates or replaces the user's profile.
	Put(ctx context.Context, profile *Profile) error
}

// ValidMethod reports whether m is a supported contact method.
func ValidMethod(m string) bool {
	return m == MethodSMS || m == MethodEmail
}
