package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := New(level, "text")
		assert.NotNil(t, logger, "level %s", level)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	logger := New("info", "json")
	assert.NotNil(t, logger)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	assert.Equal(t, slog.Default(), logger)
}

func TestFromContext_Stored(t *testing.T) {
	custom := New("debug", "text")
	ctx := WithLogger(context.Background(), custom)
	assert.Equal(t, custom, FromContext(ctx))
}

func TestL_IncludesRequestID(t *testing.T) {
	ctx := WithLogger(context.Background(), New("info", "text"))
	ctx = WithRequestID(ctx, "req-456")

	logger := L(ctx)
	assert.NotNil(t, logger)
}
