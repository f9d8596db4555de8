package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, int64(DefaultWindowSeconds), cfg.WindowSeconds)
	assert.Equal(t, DefaultMultiModalityBonus, cfg.MultiModalityBonus)
	assert.Equal(t, DefaultEscalationThreshold, cfg.EscalationThreshold)
	assert.Equal(t, DefaultPatternScore, cfg.PatternDefault)
	assert.False(t, cfg.IsolationEnabled)
	assert.False(t, cfg.PatternBaselineEnabled)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "WINDOW_SECONDS", "600")
	setEnv(t, "ESCALATION_THRESHOLD", "0.75")
	setEnv(t, "MULTI_MODALITY_BONUS", "0.5")
	setEnv(t, "ISOLATION_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(600), cfg.WindowSeconds)
	assert.Equal(t, 0.75, cfg.EscalationThreshold)
	assert.Equal(t, 0.5, cfg.MultiModalityBonus)
	assert.True(t, cfg.IsolationEnabled)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			WindowSeconds:       1800,
			EscalationThreshold: 0.8,
			CriticalFloor:       0.9,
			HighFloor:           0.7,
			MediumFloor:         0.5,
			LowFloor:            0.3,
			Timezone:            "UTC",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: ""},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.WindowSeconds = 0 },
			wantErr: "WINDOW_SECONDS",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.BaseWeight = -0.1 },
			wantErr: "BASE_WEIGHT",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.EscalationThreshold = 1.5 },
			wantErr: "ESCALATION_THRESHOLD",
		},
		{
			name:    "non-descending floors",
			mutate:  func(c *Config) { c.HighFloor = 0.95 },
			wantErr: "strictly descend",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "TIMEZONE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 0.42, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 0.9, getEnvFloat("NONEXISTENT_VAR", 0.9))
	assert.Equal(t, 0.9, getEnvFloat("TEST_INVALID", 0.9)) // Falls back on parse error
}

func TestGetEnvBool(t *testing.T) {
	setEnv(t, "TEST_BOOL", "true")
	setEnv(t, "TEST_INVALID_BOOL", "maybe")

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("NONEXISTENT_VAR", true))
	assert.False(t, getEnvBool("TEST_INVALID_BOOL", false))
}
