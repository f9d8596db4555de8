// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Aggregation window
	WindowSeconds int64 // recent-history lookback for escalation analysis

	// Escalation bonuses
	MultiModalityBonus float64 // added when recent events span >= 2 modalities
	EventCountBonus    float64 // added when recent event count >= EventCountMin
	EventCountMin      int
	SeverityBonus      float64 // added when any recent event scores >= SeverityFloor
	SeverityFloor      float64

	// Context bonuses
	NightBonus        float64
	GeofenceBonus     float64
	ProximityDegrees  float64 // half-width of the high-risk-area bounding box
	IsolationBonus    float64 // low-confidence location bonus (off unless enabled)
	IsolationEnabled  bool
	IsolationAccuracy float64 // meters; accuracy above this counts as low confidence

	// Score weights
	BaseWeight       float64
	EscalationWeight float64
	ContextWeight    float64
	PatternWeight    float64

	// Risk level breakpoints (inclusive lower bounds)
	CriticalFloor float64
	HighFloor     float64
	MediumFloor   float64
	LowFloor      float64

	// Emergency escalation
	EscalationThreshold float64 // final score at or above this triggers response

	// Pattern baselines
	PatternDefault         float64 // fixed pattern score when baselines are disabled
	PatternBaselineEnabled bool

	// Modality trigger thresholds (analyzer score at/above which assessment runs)
	AudioTriggerThreshold  float64
	MotionTriggerThreshold float64
	TextTriggerThreshold   float64

	// Alert delivery
	SMSGatewayURL   string // outbound SMS gateway endpoint (optional)
	EmailGatewayURL string // outbound email gateway endpoint (optional)
	AlertSecret     string // HMAC secret for signing outbound alerts

	// Time zone used to derive the hour-of-day from event timestamps
	Timezone string

	// Security
	RateLimitRPM int
}

// Reference defaults for the scoring pipeline.
const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultWindowSeconds = 1800 // 30 minutes

	DefaultMultiModalityBonus = 0.4
	DefaultEventCountBonus    = 0.3
	DefaultEventCountMin      = 3
	DefaultSeverityBonus      = 0.3
	DefaultSeverityFloor      = 0.6

	DefaultNightBonus        = 0.2
	DefaultGeofenceBonus     = 0.3
	DefaultProximityDegrees  = 0.01
	DefaultIsolationBonus    = 0.1
	DefaultIsolationAccuracy = 100.0

	DefaultBaseWeight       = 0.4
	DefaultEscalationWeight = 0.3
	DefaultContextWeight    = 0.2
	DefaultPatternWeight    = 0.1

	DefaultCriticalFloor = 0.9
	DefaultHighFloor     = 0.7
	DefaultMediumFloor   = 0.5
	DefaultLowFloor      = 0.3

	DefaultEscalationThreshold = 0.8
	DefaultPatternScore        = 0.1

	DefaultAudioTrigger  = 0.7
	DefaultMotionTrigger = 0.8
	DefaultTextTrigger   = 0.6

	DefaultRateLimit = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		WindowSeconds: getEnvInt64("WINDOW_SECONDS", DefaultWindowSeconds),

		MultiModalityBonus: getEnvFloat("MULTI_MODALITY_BONUS", DefaultMultiModalityBonus),
		EventCountBonus:    getEnvFloat("EVENT_COUNT_BONUS", DefaultEventCountBonus),
		EventCountMin:      int(getEnvInt64("EVENT_COUNT_MIN", DefaultEventCountMin)),
		SeverityBonus:      getEnvFloat("SEVERITY_BONUS", DefaultSeverityBonus),
		SeverityFloor:      getEnvFloat("SEVERITY_FLOOR", DefaultSeverityFloor),

		NightBonus:        getEnvFloat("NIGHT_BONUS", DefaultNightBonus),
		GeofenceBonus:     getEnvFloat("GEOFENCE_BONUS", DefaultGeofenceBonus),
		ProximityDegrees:  getEnvFloat("PROXIMITY_DEGREES", DefaultProximityDegrees),
		IsolationBonus:    getEnvFloat("ISOLATION_BONUS", DefaultIsolationBonus),
		IsolationEnabled:  getEnvBool("ISOLATION_ENABLED", false),
		IsolationAccuracy: getEnvFloat("ISOLATION_ACCURACY_METERS", DefaultIsolationAccuracy),

		BaseWeight:       getEnvFloat("BASE_WEIGHT", DefaultBaseWeight),
		EscalationWeight: getEnvFloat("ESCALATION_WEIGHT", DefaultEscalationWeight),
		ContextWeight:    getEnvFloat("CONTEXT_WEIGHT", DefaultContextWeight),
		PatternWeight:    getEnvFloat("PATTERN_WEIGHT", DefaultPatternWeight),

		CriticalFloor: getEnvFloat("CRITICAL_FLOOR", DefaultCriticalFloor),
		HighFloor:     getEnvFloat("HIGH_FLOOR", DefaultHighFloor),
		MediumFloor:   getEnvFloat("MEDIUM_FLOOR", DefaultMediumFloor),
		LowFloor:      getEnvFloat("LOW_FLOOR", DefaultLowFloor),

		EscalationThreshold: getEnvFloat("ESCALATION_THRESHOLD", DefaultEscalationThreshold),

		PatternDefault:         getEnvFloat("PATTERN_DEFAULT", DefaultPatternScore),
		PatternBaselineEnabled: getEnvBool("PATTERN_BASELINE_ENABLED", false),

		AudioTriggerThreshold:  getEnvFloat("AUDIO_TRIGGER_THRESHOLD", DefaultAudioTrigger),
		MotionTriggerThreshold: getEnvFloat("MOTION_TRIGGER_THRESHOLD", DefaultMotionTrigger),
		TextTriggerThreshold:   getEnvFloat("TEXT_TRIGGER_THRESHOLD", DefaultTextTrigger),

		SMSGatewayURL:   os.Getenv("SMS_GATEWAY_URL"),
		EmailGatewayURL: os.Getenv("EMAIL_GATEWAY_URL"),
		AlertSecret:     os.Getenv("ALERT_SECRET"),

		Timezone: getEnv("TIMEZONE", "UTC"),

		RateLimitRPM: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("WINDOW_SECONDS must be positive")
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"BASE_WEIGHT", c.BaseWeight},
		{"ESCALATION_WEIGHT", c.EscalationWeight},
		{"CONTEXT_WEIGHT", c.ContextWeight},
		{"PATTERN_WEIGHT", c.PatternWeight},
	} {
		if w.value < 0 {
			return fmt.Errorf("%s must not be negative", w.name)
		}
	}

	if c.EscalationThreshold < 0 || c.EscalationThreshold > 1 {
		return fmt.Errorf("ESCALATION_THRESHOLD must be in [0,1]")
	}

	// Breakpoints must descend so classification is unambiguous
	if !(c.CriticalFloor > c.HighFloor && c.HighFloor > c.MediumFloor && c.MediumFloor > c.LowFloor) {
		return fmt.Errorf("risk level floors must strictly descend (CRITICAL > HIGH > MEDIUM > LOW)")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.Timezone, err)
	}

	return nil
}

// Location returns the configured time zone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
