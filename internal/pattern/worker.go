package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/kavachapp/kavach/internal/threats"
)

// Worker periodically recomputes per-user baselines from the signal log.
type Worker struct {
	store    Store
	signals  threats.Store
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewWorker creates a new hourly baseline computation worker.
func NewWorker(store Store, signals threats.Store, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		signals:  signals,
		logger:   logger,
		interval: 1 * time.Hour,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the worker loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start computes baselines immediately, then recomputes hourly.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	w.safeDoWork(ctx, w.compute)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safeDoWork(ctx, w.compute)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) safeDoWork(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in baseline worker", "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}

// compute recomputes baselines for all users with recent signals.
func (w *Worker) compute(ctx context.Context) {
	since := time.Now().Add(-HistoryDays * 24 * time.Hour)
	users, err := w.signals.UsersSince(ctx, since)
	if err != nil {
		w.logger.Error("baseline compute: failed to list users", "error", err)
		return
	}

	var batch []*Baseline
	for _, userID := range users {
		events, err := w.signals.RecentForUser(ctx, userID, since)
		if err != nil {
			w.logger.Warn("baseline compute: failed to load signals",
				"user_id", userID, "error", err)
			continue
		}

		counts := hourlyCounts(events)
		if len(counts) < MinSampleHours {
			continue
		}

		mean, stddev := meanStddev(counts)
		batch = append(batch, &Baseline{
			UserID:       userID,
			HourlyMean:   mean,
			HourlyStddev: stddev,
			SampleHours:  len(counts),
			LastUpdated:  time.Now(),
		})
	}

	if len(batch) == 0 {
		return
	}

	if err := w.store.SaveBatch(ctx, batch); err != nil {
		w.logger.Error("baseline compute: failed to save batch", "error", err)
		return
	}
	w.logger.Info("baselines recomputed", "users", len(batch))
}

// hourlyCounts buckets signals by the hour they occurred in. Only active
// hours contribute samples; a user dark for a week produces no baseline.
func hourlyCounts(events []*threats.Event) map[time.Time]int {
	counts := make(map[time.Time]int)
	for _, e := range events {
		counts[e.Timestamp.Truncate(time.Hour)]++
	}
	return counts
}

// meanStddev computes the mean and population standard deviation of the
// hourly counts.
func meanStddev(counts map[time.Time]int) (mean, stddev float64) {
	n := float64(len(counts))
	if n == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, c := range counts {
		sum += float64(c)
	}
	mean = sum / n

	varianceSum := 0.0
	for _, c := range counts {
		diff := float64(c) - mean
		varianceSum += diff * diff
	}
	stddev = math.Sqrt(varianceSum / n)

	return mean, stddev
}
