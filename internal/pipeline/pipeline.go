// Package pipeline orchestrates the per-feed run loop: fetch with retry,
// normalize, dedup-gate, classify, resolve policy, snapshot, persist, mirror.
// A run failure is logged and counted; the loop carries on at the next tick.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
	"github.com/roadpulse/highway-etl/internal/observability"
	"github.com/roadpulse/highway-etl/internal/retry"
	"github.com/roadpulse/highway-etl/internal/source"
)

// State names the stage a run is in, for failure logs.
type State uint8

const (
	StateFetching State = iota
	StateNormalizing
	StateDeduping
	StateClassifying
	StateResolving
	StatePersisting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateDeduping:
		return "deduping"
	case StateClassifying:
		return "classifying"
	case StateResolving:
		return "resolving"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Classifier enriches a batch of events with type, category, road, and times.
type Classifier interface {
	Classify(ctx context.Context, events []domain.CanonicalEvent) ([]domain.CanonicalEvent, error)
}

// EventStore is the persistence surface a feed runner needs.
type EventStore interface {
	EventExists(ctx context.Context, province string, publishTime time.Time) (bool, error)
	InsertEvents(ctx context.Context, events []domain.CanonicalEvent) (domain.WriteResult, error)
}

// Mirror forwards persisted events to a secondary destination. Mirror
// failures never fail the run.
type Mirror interface {
	Publish(ctx context.Context, events []domain.CanonicalEvent) error
}

// RunnerDeps carries the shared collaborators of every feed runner.
type RunnerDeps struct {
	Classifier Classifier
	Store      EventStore
	Mirror     Mirror
	Snapshots  *Snapshots
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Runner drives one provincial feed through the run states.
type Runner struct {
	name      string
	src       source.Source
	mapping   domain.FieldMapping
	rules     domain.Rules
	classify  bool
	dedupGate bool
	retry     retry.Policy
	interval  time.Duration

	classifier Classifier
	store      EventStore
	mirror     Mirror
	snapshots  *Snapshots
	logger     *slog.Logger
	metrics    *observability.Metrics

	ran atomic.Bool
}

// NewRunner builds the runner for one configured source.
func NewRunner(cfg config.SourceConfig, src source.Source, deps RunnerDeps) (*Runner, error) {
	if cfg.Classify && deps.Classifier == nil {
		return nil, errors.New("source " + cfg.Name + " requires a classifier")
	}

	rules := domain.Rules{NoIncidentKeyword: cfg.NoIncidentKeyword}
	switch cfg.CategoryRule {
	case "heuristic":
		rules.UseDateHeuristic = true
	case "realtime":
		rules.DefaultRealtime = true
	}

	return &Runner{
		name:      cfg.Name,
		src:       src,
		mapping:   src.Mapping(),
		rules:     rules,
		classify:  cfg.Classify,
		dedupGate: cfg.DedupGate,
		retry: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Delay:       cfg.RetryDelay.Std(),
		},
		interval:   cfg.Interval.Std(),
		classifier: deps.Classifier,
		store:      deps.Store,
		mirror:     deps.Mirror,
		snapshots:  deps.Snapshots,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}, nil
}

// Name identifies the runner in readiness reports.
func (r *Runner) Name() string { return r.name }

// Ready reports whether at least one run completed successfully.
func (r *Runner) Ready() bool { return r.ran.Load() }

// Loop runs immediately, then once per interval, until the context is done.
func (r *Runner) Loop(ctx context.Context) {
	r.logger.Info("worker started", "source", r.name, "interval", r.interval)
	r.metrics.WorkersRunning.Inc()
	defer r.metrics.WorkersRunning.Dec()

	for {
		r.RunOnce(ctx)
		if !sleepWithContext(ctx, r.interval) {
			r.logger.Info("worker stopping", "source", r.name, "reason", ctx.Err())
			return
		}
	}
}

// RunOnce executes one full run. All failures, including panics from a
// misbehaving adapter, are contained here.
func (r *Runner) RunOnce(ctx context.Context) {
	start := time.Now()
	state := StateFetching

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("run panicked", "source", r.name, "state", state.String(), "panic", p)
			r.metrics.RunsTotal.WithLabelValues(r.name, "failed").Inc()
		}
	}()

	if err := r.run(ctx, &state); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("run failed", "source", r.name, "state", state.String(), "error", err)
		r.metrics.RunsTotal.WithLabelValues(r.name, "failed").Inc()
		return
	}

	r.metrics.RunsTotal.WithLabelValues(r.name, "ok").Inc()
	r.metrics.RunDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	r.ran.Store(true)
}

func (r *Runner) run(ctx context.Context, state *State) error {
	var records []domain.RawRecord
	err := retry.Do(ctx, domain.Clock(), r.retry, func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = r.src.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return err
	}
	r.metrics.RecordsFetched.WithLabelValues(r.name).Add(float64(len(records)))

	*state = StateNormalizing
	events := make([]domain.CanonicalEvent, 0, len(records))
	for _, record := range records {
		event, err := domain.Normalize(record, r.src.Province(), r.mapping)
		if err != nil {
			r.metrics.NormalizeErrors.WithLabelValues(r.name).Inc()
			r.logger.Warn("record dropped", "source", r.name, "error", err)
			continue
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		r.logger.Info("no events this run", "source", r.name, "fetched", len(records))
		return nil
	}

	if r.dedupGate {
		*state = StateDeduping
		events, err = r.applyGate(ctx, events)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			r.logger.Info("all events already stored", "source", r.name)
			return nil
		}
	}

	if r.classify {
		*state = StateClassifying
		r.metrics.ClassifyBatches.Inc()
		events, err = r.classifier.Classify(ctx, events)
		if err != nil {
			r.metrics.ClassifyFailures.Inc()
			return err
		}
	}

	*state = StateResolving
	events = domain.Resolve(events, r.rules)
	events = r.dropIncomplete(events)
	if len(events) == 0 {
		r.logger.Info("no events left after policy rules", "source", r.name)
		return nil
	}

	*state = StatePersisting
	if path, err := r.snapshots.Save(r.name, events); err != nil {
		r.logger.Warn("snapshot failed", "source", r.name, "error", err)
	} else if path != "" {
		r.logger.Debug("snapshot written", "source", r.name, "path", path)
	}

	result, err := r.store.InsertEvents(ctx, events)
	if err != nil {
		return err
	}
	r.metrics.EventsWritten.WithLabelValues(r.name).Add(float64(result.Written))
	r.metrics.WriteFailures.WithLabelValues(r.name).Add(float64(result.Failed))

	if r.mirror != nil {
		if err := r.mirror.Publish(ctx, events); err != nil {
			r.logger.Error("mirror publish failed", "source", r.name, "error", err)
		}
	}

	*state = StateDone
	r.logger.Info("run complete",
		"source", r.name,
		"fetched", len(records),
		"written", result.Written,
		"failed", result.Failed,
	)
	return nil
}

// applyGate drops events whose (province, publish_time) pair is already
// stored. Times repeat within a batch, so each distinct value is checked once.
func (r *Runner) applyGate(ctx context.Context, events []domain.CanonicalEvent) ([]domain.CanonicalEvent, error) {
	exists := make(map[time.Time]bool)
	kept := make([]domain.CanonicalEvent, 0, len(events))
	for _, event := range events {
		stored, checked := exists[event.PublishTime]
		if !checked {
			var err error
			stored, err = r.store.EventExists(ctx, event.Province, event.PublishTime)
			if err != nil {
				return nil, err
			}
			exists[event.PublishTime] = stored
		}
		if stored {
			r.metrics.EventsSkipped.WithLabelValues(r.name).Inc()
			continue
		}
		kept = append(kept, event)
	}
	return kept, nil
}

// dropIncomplete removes events that still lack a type or category after
// resolution. Persisting them would write empty strings into NOT NULL
// columns, so they are dropped and counted like any other bad record.
func (r *Runner) dropIncomplete(events []domain.CanonicalEvent) []domain.CanonicalEvent {
	kept := make([]domain.CanonicalEvent, 0, len(events))
	for _, event := range events {
		if !event.ClassificationComplete() {
			r.metrics.EventsIncomplete.WithLabelValues(r.name).Inc()
			r.logger.Warn("event dropped, classification incomplete",
				"source", r.name,
				"id", event.ID,
				"event_type", event.EventTypeName,
			)
			continue
		}
		kept = append(kept, event)
	}
	return kept
}

// sleepWithContext sleeps d on the injected clock, returning false when the
// context is cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := domain.Clock().NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
