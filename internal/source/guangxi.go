package source

import (
	"context"
	"net/http"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Guangxi posts a block-reason filter to the incident-list endpoint.
// Records carry discover and expected-end times; the category is left
// pending for the date-range heuristic.
type Guangxi struct {
	name     string
	province string
	url      string
	hc       *http.Client
}

// temporary incidents; planned closures live under a different root id
const guangxiTempRootID = `{"blockReasonRootId": 3}`

func NewGuangxi(cfg config.SourceConfig) *Guangxi {
	return &Guangxi{
		name:     cfg.Name,
		province: cfg.Province,
		url:      cfg.URL,
		hc:       newHTTPClient(),
	}
}

func (g *Guangxi) Name() string     { return g.name }
func (g *Guangxi) Province() string { return g.province }

func (g *Guangxi) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:  "description",
		RoadCodeKey: "roadNo",
		RoadNameKey: "roadName",
		StartKey:    "discoverTime",
		EndKey:      "estiTime",
		PublishTime: []domain.TimeRule{{Key: "fillTime"}},
		TypeKeys:    []string{"blockReasonParentId"},
	}
}

func (g *Guangxi) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	var envelope struct {
		Data []domain.RawRecord `json:"data"`
	}
	err := doJSON(ctx, g.hc, http.MethodPost, g.url, nil, []byte(guangxiTempRootID), &envelope)
	if err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
