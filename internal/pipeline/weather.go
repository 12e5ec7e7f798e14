package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roadpulse/highway-etl/internal/classifier"
	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
	"github.com/roadpulse/highway-etl/internal/observability"
)

const weatherWorkerName = "weather"

// AlertFeed lists the current meteorological alerts and fetches their
// detail pages.
type AlertFeed interface {
	AlarmURLs(ctx context.Context) ([]string, error)
	AlarmDetail(ctx context.Context, url string) (domain.WeatherAlert, error)
}

// WeatherExtractor turns an alert title into structured region and severity
// fields.
type WeatherExtractor interface {
	ExtractWeather(ctx context.Context, title string) (classifier.WeatherFields, error)
}

// WeatherStore is the persistence surface of the weather worker.
type WeatherStore interface {
	WeatherExists(ctx context.Context, id string) (bool, error)
	TodayWeatherIDs(ctx context.Context) ([]string, error)
	InsertWeather(ctx context.Context, w domain.WeatherWarning) (bool, error)
	InsertRegion(ctx context.Context, province, city, area string) error
}

// WeatherRunner polls the alert feed, gates each alert on its content hash,
// and enriches new alerts through the extraction workflow before storing
// them. The seen cache keeps 5-minute cycles from re-querying the database
// for alerts that stay on the feed all day.
type WeatherRunner struct {
	feed      AlertFeed
	extractor WeatherExtractor
	store     WeatherStore
	seen      *seenCache
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	ran atomic.Bool
}

func NewWeatherRunner(cfg config.WeatherConfig, feed AlertFeed, extractor WeatherExtractor, store WeatherStore, logger *slog.Logger, metrics *observability.Metrics) *WeatherRunner {
	return &WeatherRunner{
		feed:      feed,
		extractor: extractor,
		store:     store,
		seen:      newSeenCache(cfg.CacheSize),
		interval:  cfg.Interval.Std(),
		logger:    logger,
		metrics:   metrics,
	}
}

func (w *WeatherRunner) Name() string { return weatherWorkerName }
func (w *WeatherRunner) Ready() bool  { return w.ran.Load() }

// WarmCache preloads the hashes of warnings already stored today, so a
// restart does not re-run the extraction workflow for alerts still on the
// feed.
func (w *WeatherRunner) WarmCache(ctx context.Context) error {
	ids, err := w.store.TodayWeatherIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		w.seen.Add(id)
	}
	w.logger.Info("weather cache warmed", "entries", len(ids))
	return nil
}

// Loop runs immediately, then once per interval, until the context is done.
func (w *WeatherRunner) Loop(ctx context.Context) {
	w.logger.Info("worker started", "source", weatherWorkerName, "interval", w.interval)
	w.metrics.WorkersRunning.Inc()
	defer w.metrics.WorkersRunning.Dec()

	for {
		w.RunOnce(ctx)
		if !sleepWithContext(ctx, w.interval) {
			w.logger.Info("worker stopping", "source", weatherWorkerName, "reason", ctx.Err())
			return
		}
	}
}

// RunOnce processes the current alert list. Per-alert failures are logged
// and skipped; only a failed list fetch fails the run.
func (w *WeatherRunner) RunOnce(ctx context.Context) {
	start := time.Now()

	urls, err := w.feed.AlarmURLs(ctx)
	if err != nil {
		w.logger.Error("run failed", "source", weatherWorkerName, "state", "fetching", "error", err)
		w.metrics.RunsTotal.WithLabelValues(weatherWorkerName, "failed").Inc()
		return
	}
	w.metrics.RecordsFetched.WithLabelValues(weatherWorkerName).Add(float64(len(urls)))

	var written int
	for _, url := range urls {
		if ctx.Err() != nil {
			return
		}
		if w.processAlert(ctx, url) {
			written++
		}
	}

	w.metrics.RunsTotal.WithLabelValues(weatherWorkerName, "ok").Inc()
	w.metrics.RunDuration.WithLabelValues(weatherWorkerName).Observe(time.Since(start).Seconds())
	w.ran.Store(true)
	w.logger.Info("run complete", "source", weatherWorkerName, "alerts", len(urls), "written", written)
}

func (w *WeatherRunner) processAlert(ctx context.Context, url string) bool {
	alert, err := w.feed.AlarmDetail(ctx, url)
	if err != nil {
		w.logger.Warn("alert dropped", "url", url, "error", err)
		w.metrics.NormalizeErrors.WithLabelValues(weatherWorkerName).Inc()
		return false
	}

	id := domain.HashID(alert.Content)
	if w.seen.Contains(id) {
		w.metrics.EventsSkipped.WithLabelValues(weatherWorkerName).Inc()
		return false
	}
	stored, err := w.store.WeatherExists(ctx, id)
	if err != nil {
		w.logger.Error("existence check failed", "id", id, "error", err)
		return false
	}
	if stored {
		w.seen.Add(id)
		w.metrics.EventsSkipped.WithLabelValues(weatherWorkerName).Inc()
		return false
	}

	fields, err := w.extractor.ExtractWeather(ctx, alert.Title)
	if err != nil {
		w.logger.Warn("extraction failed", "title", alert.Title, "error", err)
		w.metrics.ClassifyFailures.Inc()
		return false
	}

	warning := domain.WeatherWarning{
		ID:             id,
		Province:       fields.Province,
		City:           fields.City,
		Area:           fields.Area,
		Title:          alert.Title,
		WarningLevel:   fields.Grade,
		WarningType:    fields.Type,
		WarningContent: alert.Content,
		PublishTime:    alert.PublishTime,
	}
	inserted, err := w.store.InsertWeather(ctx, warning)
	if err != nil {
		w.logger.Error("insert warning failed", "id", id, "error", err)
		w.metrics.WriteFailures.WithLabelValues(weatherWorkerName).Inc()
		return false
	}
	if err := w.store.InsertRegion(ctx, fields.Province, fields.City, fields.Area); err != nil {
		w.logger.Warn("insert region failed", "province", fields.Province, "error", err)
	}

	w.seen.Add(id)
	if inserted {
		w.metrics.EventsWritten.WithLabelValues(weatherWorkerName).Inc()
	}
	return inserted
}
