package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// BaiduClient reads the national congestion rankings: congested highway
// sections and congested toll stations. Rank is positional in the response;
// every fetch is stamped with a batch number so rows from one poll can be
// queried together.
type BaiduClient struct {
	sectionURL string
	stationURL string
	hc         *http.Client
}

func NewBaiduClient(cfg config.CongestionConfig) *BaiduClient {
	return &BaiduClient{
		sectionURL: cfg.SectionURL,
		stationURL: cfg.StationURL,
		hc:         newHTTPClient(),
	}
}

// flexFloat tolerates numbers that arrive quoted.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString tolerates strings that arrive as bare numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	v := strings.Trim(string(data), `"`)
	if v == "null" {
		v = ""
	}
	*s = flexString(v)
	return nil
}

// parseFeedTime decodes the feed's 12-digit yyyymmddHHMM stamp, falling back
// to the poll time when the field is absent or malformed.
func parseFeedTime(raw flexString) time.Time {
	if len(raw) == 12 {
		if t, err := time.ParseInLocation("200601021504", string(raw), time.Local); err == nil {
			return t
		}
	}
	return domain.Now()
}

// FetchSections returns the current congested-section ranking.
func (c *BaiduClient) FetchSections(ctx context.Context) ([]domain.SectionCongestion, error) {
	var envelope struct {
		Status int `json:"status"`
		Data   []struct {
			Time          flexString `json:"time"`
			ProvinceName  string     `json:"provinceName"`
			RoadName      string     `json:"roadName"`
			CongestLength flexFloat  `json:"congestLength"`
			AvgSpeed      flexFloat  `json:"avgSpeed"`
			Semantic      string     `json:"semantic"`
		} `json:"data"`
	}
	if err := doJSON(ctx, c.hc, http.MethodGet, c.sectionURL, nil, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != 0 {
		return nil, fmt.Errorf("upstream error: status=%d", envelope.Status)
	}

	batch := domain.Now().Format("20060102150405")
	rows := make([]domain.SectionCongestion, 0, len(envelope.Data))
	for i, item := range envelope.Data {
		rows = append(rows, domain.SectionCongestion{
			ID:            uuid.NewString(),
			PublishTime:   parseFeedTime(item.Time),
			ProvinceName:  item.ProvinceName,
			RoadName:      item.RoadName,
			SectionRank:   i + 1,
			CongestLength: float64(item.CongestLength),
			AvgSpeed:      float64(item.AvgSpeed),
			BatchNum:      batch,
			Semantic:      item.Semantic,
		})
	}
	return rows, nil
}

// FetchStations returns the current congested toll-station ranking.
// Station names are suffixed with the direction when the feed marks one.
func (c *BaiduClient) FetchStations(ctx context.Context) ([]domain.StationCongestion, error) {
	var envelope struct {
		Status int `json:"status"`
		Data   []struct {
			DataTime      flexString `json:"dataTime"`
			ProvinceName  string     `json:"provinceName"`
			CityName      string     `json:"cityName"`
			RoadName      string     `json:"roadName"`
			Name          string     `json:"name"`
			InOut         int        `json:"inOut"`
			CongestLength flexFloat  `json:"congestLengthInarow34"`
			AvgSpeed      flexFloat  `json:"avgSpeed"`
		} `json:"data"`
	}
	if err := doJSON(ctx, c.hc, http.MethodGet, c.stationURL, nil, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != 0 {
		return nil, fmt.Errorf("upstream error: status=%d", envelope.Status)
	}

	batch := domain.Now().Format("20060102150405")
	rows := make([]domain.StationCongestion, 0, len(envelope.Data))
	for i, item := range envelope.Data {
		name := item.Name
		switch item.InOut {
		case 1:
			name += "(入口)"
		case 2:
			name += "(出口)"
		}
		rows = append(rows, domain.StationCongestion{
			ID:            uuid.NewString(),
			PublishTime:   parseFeedTime(item.DataTime),
			ProvinceName:  item.ProvinceName,
			CityName:      item.CityName,
			RoadName:      item.RoadName,
			StationName:   name,
			StationRank:   i + 1,
			CongestLength: float64(item.CongestLength),
			AvgSpeed:      float64(item.AvgSpeed),
			BatchNum:      batch,
		})
	}
	return rows, nil
}
