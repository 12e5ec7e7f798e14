package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// File replays a snapshot written by an earlier run. Useful for backfills
// and for exercising the pipeline without reaching any upstream.
type File struct {
	name     string
	province string
	path     string
}

func NewFile(cfg config.SourceConfig) *File {
	return &File{
		name:     cfg.Name,
		province: cfg.Province,
		path:     cfg.Path,
	}
}

func (f *File) Name() string     { return f.name }
func (f *File) Province() string { return f.province }

func (f *File) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:      "publish_content",
		RoadCodeKey:     "road_code",
		RoadNameKey:     "road_name",
		StartKey:        "start_time",
		EndKey:          "end_time",
		PublishTime:     []domain.TimeRule{{Key: "publish_time"}},
		TypeKeys:        []string{"event_type_name"},
		DefaultCategory: domain.CategoryRealtime,
	}
}

func (f *File) Fetch(_ context.Context) ([]domain.RawRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var records []domain.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", f.path, err)
	}
	return records, nil
}
