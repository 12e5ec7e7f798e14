package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

var (
	weatherTitleRe   = regexp.MustCompile(`(?s)id="title"[^>]*>(.*?)</`)
	weatherContentRe = regexp.MustCompile(`(?s)id="alarmtext"[^>]*>(.*?)</div>`)
	weatherPubRe     = regexp.MustCompile(`(\d{4})年(\d{2})月(\d{2})日(\d{2})时(\d{2})分`)
)

// WeatherClient reads the national meteorological alert feed: a JSON list of
// alert URLs, each pointing at an HTML detail page.
type WeatherClient struct {
	listURL string
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

func NewWeatherClient(cfg config.WeatherConfig, logger *slog.Logger) *WeatherClient {
	return &WeatherClient{
		listURL: cfg.ListURL,
		baseURL: cfg.BaseURL,
		hc:      newHTTPClient(),
		logger:  logger,
	}
}

// AlarmURLs returns the absolute detail-page URLs of the current alerts.
func (c *WeatherClient) AlarmURLs(ctx context.Context) ([]string, error) {
	var envelope struct {
		Data struct {
			Page struct {
				List []struct {
					URL string `json:"url"`
				} `json:"list"`
			} `json:"page"`
		} `json:"data"`
	}
	headers := map[string]string{"X-Requested-With": "XMLHttpRequest"}
	if err := doJSON(ctx, c.hc, http.MethodGet, c.listURL, headers, nil, &envelope); err != nil {
		return nil, err
	}

	var urls []string
	for _, item := range envelope.Data.Page.List {
		if item.URL == "" {
			c.logger.Warn("alert entry without url, skipping")
			continue
		}
		urls = append(urls, c.baseURL+item.URL)
	}
	return urls, nil
}

// AlarmDetail fetches and parses one alert page. The publish time is
// optional; title and content are required.
func (c *WeatherClient) AlarmDetail(ctx context.Context, url string) (domain.WeatherAlert, error) {
	page, err := doText(ctx, c.hc, url, nil)
	if err != nil {
		return domain.WeatherAlert{}, err
	}

	titleMatch := weatherTitleRe.FindStringSubmatch(page)
	if titleMatch == nil {
		return domain.WeatherAlert{}, fmt.Errorf("no title on %s", url)
	}
	title := stripTags(titleMatch[1])
	if title == "" {
		return domain.WeatherAlert{}, fmt.Errorf("empty title on %s", url)
	}

	var content string
	for _, m := range weatherContentRe.FindAllStringSubmatch(page, -1) {
		part := stripTags(m[1])
		if part == "" {
			continue
		}
		if content != "" {
			content += "\n"
		}
		content += part
	}
	if content == "" {
		return domain.WeatherAlert{}, fmt.Errorf("no alert body on %s", url)
	}

	alert := domain.WeatherAlert{Title: title, Content: content}
	if m := weatherPubRe.FindStringSubmatch(page); m != nil {
		stamp := fmt.Sprintf("%s-%s-%s %s:%s", m[1], m[2], m[3], m[4], m[5])
		if t, err := time.ParseInLocation("2006-01-02 15:04", stamp, time.Local); err == nil {
			alert.PublishTime = &t
		}
	}
	return alert, nil
}
