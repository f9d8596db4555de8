// Package notify delivers emergency contact alerts through external
// SMS and email gateways.
//
// Delivery is at-most-once and best-effort: payloads are signed, sent
// with a bounded retry, and guarded by a per-channel circuit breaker so
// a dead gateway cannot stall an emergency response.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kavachapp/kavach/internal/circuitbreaker"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/retry"
)

// Delivery channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// ErrCircuitOpen is returned when a channel's circuit breaker is open.
var ErrCircuitOpen = errors.New("alert channel circuit open")

// ErrChannelNotConfigured is returned when no gateway URL is set for a channel.
var ErrChannelNotConfigured = errors.New("alert channel not configured")

// Alert is one outbound contact notification.
type Alert struct {
	UserID        string    `json:"userId"`
	RiskLevel     string    `json:"riskLevel"`
	RiskScore     float64   `json:"riskScore"`
	TriggerType   string    `json:"triggerType"`
	Timestamp     time.Time `json:"timestamp"`
	RecipientName string    `json:"recipientName"`
	Recipient     string    `json:"recipient"` // phone number or email address
	Message       string    `json:"message"`
}

// Dispatcher sends alerts to per-channel gateway endpoints.
type Dispatcher struct {
	gateways map[string]string // channel → URL
	secret   string
	client   *http.Client
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// NewDispatcher creates an alert dispatcher. Channels with an empty URL
// are treated as unconfigured and their alerts are dropped with a log line.
func NewDispatcher(smsURL, emailURL, secret string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		gateways: map[string]string{
			ChannelSMS:   smsURL,
			ChannelEmail: emailURL,
		},
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// Send delivers one alert on the given channel.
func (d *Dispatcher) Send(ctx context.Context, channel string, alert *Alert) error {
	url := d.gateways[channel]
	if url == "" {
		metrics.AlertDeliveriesTotal.WithLabelValues(channel, "unconfigured").Inc()
		d.logger.Warn("alert dropped, channel not configured",
			"channel", channel, "user_id", alert.UserID)
		return ErrChannelNotConfigured
	}

	if !d.breaker.Allow(channel) {
		metrics.AlertDeliveriesTotal.WithLabelValues(channel, "circuit_open").Inc()
		d.logger.Warn("alert dropped, circuit open",
			"channel", channel, "user_id", alert.UserID)
		return ErrCircuitOpen
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return retry.Permanent(err)
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		return d.post(ctx, url, payload)
	})
	if err != nil {
		d.breaker.RecordFailure(channel)
		metrics.AlertDeliveriesTotal.WithLabelValues(channel, "error").Inc()
		d.logger.Error("alert delivery failed",
			"channel", channel, "user_id", alert.UserID, "error", err)
		return err
	}

	d.breaker.RecordSuccess(channel)
	metrics.AlertDeliveriesTotal.WithLabelValues(channel, "success").Inc()
	return nil
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Kavach-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if d.secret != "" {
		req.Header.Set("X-Kavach-Signature", sign(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// The gateway rejected the payload; retrying cannot help.
		return retry.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	return fmt.Errorf("gateway status %d", resp.StatusCode)
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
