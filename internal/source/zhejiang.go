package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Zhejiang reads the all-events endpoint behind a bearer token; success is
// signalled by code 100000. The feed has no separate type field, so the
// content itself is keyword-classified.
type Zhejiang struct {
	name     string
	province string
	url      string
	token    string
	hc       *http.Client
}

func NewZhejiang(cfg config.SourceConfig) *Zhejiang {
	return &Zhejiang{
		name:     cfg.Name,
		province: cfg.Province,
		url:      cfg.URL,
		token:    cfg.Token,
		hc:       newHTTPClient(),
	}
}

func (z *Zhejiang) Name() string     { return z.name }
func (z *Zhejiang) Province() string { return z.province }

func (z *Zhejiang) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:      "content",
		RoadCodeKey:     "hwid",
		RoadNameKey:     "hwname",
		PublishTime:     []domain.TimeRule{{Key: "occurTime"}},
		TypeKeys:        []string{"content"},
		DefaultCategory: domain.CategoryRealtime,
	}
}

func (z *Zhejiang) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	headers := map[string]string{"Authorization": "Bearer " + z.token}

	var envelope struct {
		Code int                `json:"code"`
		Msg  string             `json:"msg"`
		Data []domain.RawRecord `json:"data"`
	}
	if err := doJSON(ctx, z.hc, http.MethodGet, z.url, headers, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != 100000 {
		return nil, fmt.Errorf("upstream error: code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}
