package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

func TestDBChecker(t *testing.T) {
	check := DBChecker("database", &fakePinger{})
	st := check(context.Background())
	if !st.Healthy {
		t.Error("expected healthy when ping succeeds")
	}
	if st.Name != "database" {
		t.Errorf("expected name preserved, got %q", st.Name)
	}

	check = DBChecker("database", &fakePinger{err: errors.New("connection refused")})
	st = check(context.Background())
	if st.Healthy {
		t.Error("expected unhealthy when ping fails")
	}
	if st.Detail != "connection refused" {
		t.Errorf("expected ping error as detail, got %q", st.Detail)
	}
}

func TestCheckAll_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should report healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}

func TestCheckAll_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status {
		return Status{Name: "database", Healthy: true}
	})
	r.Register("alert_gateway", func(ctx context.Context) Status {
		return Status{Name: "alert_gateway", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("expected healthy")
	}
	if len(statuses) != 2 {
		t.Errorf("expected 2 statuses, got %d", len(statuses))
	}
}

func TestCheckAll_OneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status {
		return Status{Name: "database", Healthy: true}
	})
	r.Register("alert_gateway", func(ctx context.Context) Status {
		return Status{Name: "alert_gateway", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("expected unhealthy when one checker fails")
	}
	if statuses[1].Detail != "connection refused" {
		t.Errorf("expected detail preserved, got %q", statuses[1].Detail)
	}
}
