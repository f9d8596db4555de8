package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3, time.Minute)
	if !b.Allow("sms") {
		t.Error("new breaker should allow requests")
	}
	if b.State("sms") != StateClosed {
		t.Errorf("expected closed, got %s", b.State("sms"))
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure("sms")
	b.RecordFailure("sms")
	if b.State("sms") != StateClosed {
		t.Fatal("should still be closed below threshold")
	}

	b.RecordFailure("sms")
	if b.State("sms") != StateOpen {
		t.Fatal("should open at threshold")
	}
	if b.Allow("sms") {
		t.Error("open circuit should reject")
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("sms")

	if b.Allow("sms") {
		t.Error("sms circuit should be open")
	}
	if !b.Allow("email") {
		t.Error("email circuit should be unaffected")
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("sms")

	time.Sleep(20 * time.Millisecond)

	if !b.Allow("sms") {
		t.Fatal("should allow one probe after open duration")
	}
	if b.State("sms") != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State("sms"))
	}
	if b.Allow("sms") {
		t.Error("second request during probe should be rejected")
	}

	b.RecordSuccess("sms")
	if b.State("sms") != StateClosed {
		t.Errorf("successful probe should close circuit, got %s", b.State("sms"))
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("email")

	time.Sleep(20 * time.Millisecond)
	if !b.Allow("email") {
		t.Fatal("should allow probe")
	}

	b.RecordFailure("email")
	if b.State("email") != StateOpen {
		t.Errorf("failed probe should reopen circuit, got %s", b.State("email"))
	}
}
