package source

import (
	"context"
	"net/http"
	"strings"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Xinjiang reads the roadblock list endpoint. Records carry explicit start
// and expected-end times; planned construction is flagged by the parent
// block-reason field.
type Xinjiang struct {
	name     string
	province string
	url      string
	hc       *http.Client
}

func NewXinjiang(cfg config.SourceConfig) *Xinjiang {
	url := cfg.URL
	if !strings.Contains(url, "?") {
		url += "?limit=20&page=1"
	}
	return &Xinjiang{
		name:     cfg.Name,
		province: cfg.Province,
		url:      url,
		hc:       newHTTPClient(),
	}
}

func (x *Xinjiang) Name() string     { return x.name }
func (x *Xinjiang) Province() string { return x.province }

func (x *Xinjiang) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:  "blockdesc",
		RoadCodeKey: "roadcode",
		RoadNameKey: "roadname",
		StartKey:    "blockstarttime",
		EndKey:      "blockexpecttime",
		PublishTime: []domain.TimeRule{{Key: "pubtime"}},
		TypeKeys:    []string{"blockreasonParent", "blockreasonChild"},

		PlanKey:         "blockreasonParent",
		PlanValue:       "计划性施工",
		DefaultCategory: domain.CategoryRealtime,
	}
}

func (x *Xinjiang) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	var envelope struct {
		Page struct {
			List []domain.RawRecord `json:"list"`
		} `json:"page"`
	}
	if err := doJSON(ctx, x.hc, http.MethodGet, x.url, nil, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Page.List, nil
}
