package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	adapterhttp "github.com/roadpulse/highway-etl/internal/adapter/http"
	"github.com/roadpulse/highway-etl/internal/classifier"
	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/observability"
	"github.com/roadpulse/highway-etl/internal/pipeline"
	"github.com/roadpulse/highway-etl/internal/sink"
	"github.com/roadpulse/highway-etl/internal/source"
	"github.com/roadpulse/highway-etl/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	var workflow *classifier.Client
	if cfg.Workflow.BaseURL != "" {
		workflow = classifier.NewClient(cfg.Workflow.BaseURL, cfg.Workflow.User, cfg.Workflow.Timeout.Std(), logger)
	}
	if cfg.Weather.Enabled && workflow == nil {
		logger.Error("weather worker requires workflow.base_url")
		os.Exit(1)
	}

	var mirror pipeline.Mirror
	var kafkaWriter *sink.Writer
	if cfg.Kafka.Enabled() {
		kafkaWriter = sink.NewWriter(cfg.Kafka, logger)
		mirror = kafkaWriter
		logger.Info("kafka mirror enabled", "topic", cfg.Kafka.Topic)
	}

	snapshots := pipeline.NewSnapshots(cfg.SnapshotDir)
	group := pipeline.NewGroup()

	var wg sync.WaitGroup
	start := func(loop func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	for _, srcCfg := range cfg.Sources {
		deps := source.Deps{Logger: logger, Checker: store}
		if workflow != nil {
			deps.Analyzer = classifier.ClientAnalyzer{Client: workflow, APIKey: cfg.Workflow.AnalyzeAPIKey}
		}
		src, err := source.New(srcCfg, deps)
		if err != nil {
			logger.Error("source init failed", "source", srcCfg.Name, "error", err)
			os.Exit(1)
		}

		runnerDeps := pipeline.RunnerDeps{
			Store:     store,
			Mirror:    mirror,
			Snapshots: snapshots,
			Logger:    logger,
			Metrics:   metrics,
		}
		if srcCfg.Classify {
			runnerDeps.Classifier = classifier.NewBridge(
				classifier.ClientRunner{Client: workflow, APIKey: cfg.Workflow.ClassifyAPIKey},
				srcCfg.BatchSize, logger,
			)
		}
		runner, err := pipeline.NewRunner(srcCfg, src, runnerDeps)
		if err != nil {
			logger.Error("runner init failed", "source", srcCfg.Name, "error", err)
			os.Exit(1)
		}
		group.Add(runner)
		start(runner.Loop)
	}

	if cfg.Weather.Enabled {
		feed := source.NewWeatherClient(cfg.Weather, logger)
		extractor := classifier.ClientWeatherExtractor{Client: workflow, APIKey: cfg.Workflow.WeatherAPIKey}
		weather := pipeline.NewWeatherRunner(cfg.Weather, feed, extractor, store, logger, metrics)
		if err := weather.WarmCache(ctx); err != nil {
			logger.Warn("weather cache warm failed", "error", err)
		}
		group.Add(weather)
		start(weather.Loop)
	}

	if cfg.Congestion.Enabled {
		feed := source.NewBaiduClient(cfg.Congestion)
		congestion := pipeline.NewCongestionRunner(cfg.Congestion, feed, store, snapshots, logger, metrics)
		group.Add(congestion)
		start(congestion.Loop)
	}

	srv := adapterhttp.NewServer(cfg.HTTPAddr, group, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
}
