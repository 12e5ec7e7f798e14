package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
	"github.com/roadpulse/highway-etl/internal/observability"
	"github.com/roadpulse/highway-etl/internal/retry"
)

const congestionWorkerName = "congestion"

// CongestionFeed reads the national section and toll-station rankings.
type CongestionFeed interface {
	FetchSections(ctx context.Context) ([]domain.SectionCongestion, error)
	FetchStations(ctx context.Context) ([]domain.StationCongestion, error)
}

// CongestionStore is the persistence surface of the congestion worker.
type CongestionStore interface {
	InsertSections(ctx context.Context, rows []domain.SectionCongestion) (domain.WriteResult, error)
	InsertStations(ctx context.Context, rows []domain.StationCongestion) (domain.WriteResult, error)
}

// CongestionRunner polls both ranking feeds each tick. The two feeds are
// independent; one failing does not block the other.
type CongestionRunner struct {
	feed      CongestionFeed
	store     CongestionStore
	snapshots *Snapshots
	retry     retry.Policy
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	ran atomic.Bool
}

func NewCongestionRunner(cfg config.CongestionConfig, feed CongestionFeed, store CongestionStore, snapshots *Snapshots, logger *slog.Logger, metrics *observability.Metrics) *CongestionRunner {
	return &CongestionRunner{
		feed:      feed,
		store:     store,
		snapshots: snapshots,
		retry: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Delay:       cfg.RetryDelay.Std(),
		},
		interval: cfg.Interval.Std(),
		logger:   logger,
		metrics:  metrics,
	}
}

func (c *CongestionRunner) Name() string { return congestionWorkerName }
func (c *CongestionRunner) Ready() bool  { return c.ran.Load() }

// Loop runs immediately, then once per interval, until the context is done.
func (c *CongestionRunner) Loop(ctx context.Context) {
	c.logger.Info("worker started", "source", congestionWorkerName, "interval", c.interval)
	c.metrics.WorkersRunning.Inc()
	defer c.metrics.WorkersRunning.Dec()

	for {
		c.RunOnce(ctx)
		if !sleepWithContext(ctx, c.interval) {
			c.logger.Info("worker stopping", "source", congestionWorkerName, "reason", ctx.Err())
			return
		}
	}
}

// RunOnce polls and persists both rankings.
func (c *CongestionRunner) RunOnce(ctx context.Context) {
	start := time.Now()

	sectionsOK := c.runSections(ctx)
	stationsOK := c.runStations(ctx)
	if !sectionsOK && !stationsOK {
		c.metrics.RunsTotal.WithLabelValues(congestionWorkerName, "failed").Inc()
		return
	}

	c.metrics.RunsTotal.WithLabelValues(congestionWorkerName, "ok").Inc()
	c.metrics.RunDuration.WithLabelValues(congestionWorkerName).Observe(time.Since(start).Seconds())
	c.ran.Store(true)
}

func (c *CongestionRunner) runSections(ctx context.Context) bool {
	var rows []domain.SectionCongestion
	err := retry.Do(ctx, domain.Clock(), c.retry, func(ctx context.Context) error {
		var fetchErr error
		rows, fetchErr = c.feed.FetchSections(ctx)
		return fetchErr
	})
	if err != nil {
		c.logger.Error("section fetch failed", "error", err)
		return false
	}
	c.metrics.RecordsFetched.WithLabelValues("section").Add(float64(len(rows)))
	if len(rows) == 0 {
		return true
	}

	if _, err := c.snapshots.Save("section", rows); err != nil {
		c.logger.Warn("snapshot failed", "source", "section", "error", err)
	}
	result, err := c.store.InsertSections(ctx, rows)
	if err != nil {
		c.logger.Error("section insert failed", "error", err)
		return false
	}
	c.metrics.EventsWritten.WithLabelValues("section").Add(float64(result.Written))
	c.metrics.WriteFailures.WithLabelValues("section").Add(float64(result.Failed))
	c.logger.Info("run complete", "source", "section", "written", result.Written, "failed", result.Failed)
	return true
}

func (c *CongestionRunner) runStations(ctx context.Context) bool {
	var rows []domain.StationCongestion
	err := retry.Do(ctx, domain.Clock(), c.retry, func(ctx context.Context) error {
		var fetchErr error
		rows, fetchErr = c.feed.FetchStations(ctx)
		return fetchErr
	})
	if err != nil {
		c.logger.Error("station fetch failed", "error", err)
		return false
	}
	c.metrics.RecordsFetched.WithLabelValues("station").Add(float64(len(rows)))
	if len(rows) == 0 {
		return true
	}

	if _, err := c.snapshots.Save("station", rows); err != nil {
		c.logger.Warn("snapshot failed", "source", "station", "error", err)
	}
	result, err := c.store.InsertStations(ctx, rows)
	if err != nil {
		c.logger.Error("station insert failed", "error", err)
		return false
	}
	c.metrics.EventsWritten.WithLabelValues("station").Add(float64(result.Written))
	c.metrics.WriteFailures.WithLabelValues("station").Add(float64(result.Failed))
	c.logger.Info("run complete", "source", "station", "written", result.Written, "failed", result.Failed)
	return true
}
