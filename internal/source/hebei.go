package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// Hebei reads the road-code traffic endpoint. The API wants a session
// cookie, an XHR marker, and a cache-busting millisecond query parameter;
// success is signalled by code "20000".
type Hebei struct {
	name     string
	province string
	url      string
	cookie   string
	hc       *http.Client
}

func NewHebei(cfg config.SourceConfig) *Hebei {
	return &Hebei{
		name:     cfg.Name,
		province: cfg.Province,
		url:      cfg.URL,
		cookie:   cfg.Cookie,
		hc:       newHTTPClient(),
	}
}

func (h *Hebei) Name() string     { return h.name }
func (h *Hebei) Province() string { return h.province }

func (h *Hebei) Mapping() domain.FieldMapping {
	return domain.FieldMapping{
		ContentKey:  "actionResult",
		RoadCodeKey: "roadId",
		RoadNameKey: "roadName",
		PublishTime: []domain.TimeRule{{Key: "startDate"}},
		TypeKeys:    []string{"reason"},

		// roadName arrives as "京港澳高速（石安段）" and similar.
		CleanRoadName:   true,
		DefaultCategory: domain.CategoryRealtime,
	}
}

func (h *Hebei) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	url := fmt.Sprintf("%s?_=%d", h.url, domain.Now().UnixMilli())
	headers := map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Cookie":           "SESSION=" + h.cookie,
	}

	var envelope struct {
		Code   string             `json:"code"`
		Msg    string             `json:"msg"`
		Result []domain.RawRecord `json:"result"`
	}
	if err := doJSON(ctx, h.hc, http.MethodGet, url, headers, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != "20000" {
		return nil, fmt.Errorf("upstream error: code=%s msg=%s", envelope.Code, envelope.Msg)
	}
	if len(envelope.Result) == 0 {
		return nil, fmt.Errorf("empty result: code=%s", envelope.Code)
	}
	return envelope.Result, nil
}
