// Package source implements the per-province feed adapters. Each adapter
// knows one upstream API: its URL shape, auth, response envelope, and which
// raw fields carry the canonical values. Adapters return loosely-typed
// records; the normalizer does the mapping using the adapter's FieldMapping.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Source is one provincial traffic feed.
type Source interface {
	Name() string
	Province() string
	// Mapping declares how this source's raw fields map onto CanonicalEvent.
	Mapping() domain.FieldMapping
	Fetch(ctx context.Context) ([]domain.RawRecord, error)
}

// ExistenceChecker gates bulletin sources on records already stored.
type ExistenceChecker interface {
	EventExists(ctx context.Context, province string, publishTime time.Time) (bool, error)
}

// Analyzer splits a free-text bulletin into individual incident lines.
type Analyzer interface {
	Analyze(ctx context.Context, content string) ([]string, error)
}

// Deps carries the shared dependencies a source may need. Most sources use
// none of them.
type Deps struct {
	Logger   *slog.Logger
	Checker  ExistenceChecker
	Analyzer Analyzer
}

// New constructs the source adapter for cfg.Type.
func New(cfg config.SourceConfig, deps Deps) (Source, error) {
	switch cfg.Type {
	case "shandong":
		return NewShandong(cfg), nil
	case "hebei":
		return NewHebei(cfg), nil
	case "zhejiang":
		return NewZhejiang(cfg), nil
	case "xinjiang":
		return NewXinjiang(cfg), nil
	case "guangxi":
		return NewGuangxi(cfg), nil
	case "anhui":
		if deps.Checker == nil || deps.Analyzer == nil {
			return nil, fmt.Errorf("source %q needs the store and the analysis workflow", cfg.Name)
		}
		return NewAnhui(cfg, deps.Checker, deps.Analyzer, deps.Logger), nil
	case "file":
		return NewFile(cfg), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
