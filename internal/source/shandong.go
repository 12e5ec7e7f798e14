package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Shandong reads the provincial event endpoint, which returns a bare JSON
// array. Publish time comes from occurTime/ctime epoch millis, with the
// 14-digit eventId prefix as the last resort.
type Shandong struct {
	name     string
	province string
	url      string
	hc       *http.Client
}

func NewShandong(cfg config.SourceConfig) *Shandong {
	return &Shandong{
		name:     cfg.Name,
		province: cfg.Province,
		url:      cfg.URL,
		hc:       newHTTPClient(),
	}
}

func (s *Shandong) Name() string     { return s.name }
func (s *Shandong) Province() string { return s.province }

func (s *Shandong) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:  "content",
		RoadCodeKey: "roadCode",
		RoadNameKey: "roadName",
		PublishTime: []domain.TimeRule{
			{Key: "occurTime", Kind: domain.TimeEpochMillis},
			{Key: "ctime", Kind: domain.TimeEpochMillis},
			{Key: "eventId", Kind: domain.TimeIDPrefix},
		},
		TypeKeys: []string{"eventTypeName", "controlEventTypeName"},

		// Road fields are inconsistent across the feed's upstream systems.
		RoadFromContent: true,
		DefaultCategory: domain.CategoryRealtime,
	}
}

func (s *Shandong) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	var records []domain.RawRecord
	if err := doJSON(ctx, s.hc, http.MethodGet, s.url, nil, nil, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty event list")
	}
	return records, nil
}
