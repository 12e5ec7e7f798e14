package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// anhuiMaxBulletins bounds how many bulletins one run crawls; the feed page
// lists them newest first.
const anhuiMaxBulletins = 2

var (
	anhuiLinkRe    = regexp.MustCompile(`<li[^>]*>\s*<a[^>]+href="([^"]+)"`)
	anhuiDateRe    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2})`)
	anhuiContentRe = regexp.MustCompile(`(?s)<div[^>]+class="[^"]*wzcon[^"]*"[^>]*>(.*?)</div>`)
)

// Anhui crawls the provincial bulletin pages. Each bulletin is a free-text
// announcement covering many incidents, so the adapter splits it through the
// analysis workflow before handing records to the pipeline. Bulletins whose
// publish time is already stored are skipped without calling the workflow.
type Anhui struct {
	name     string
	province string
	listURL  string
	hc       *http.Client
	checker  ExistenceChecker
	analyzer Analyzer
	logger   *slog.Logger
}

func NewAnhui(cfg config.SourceConfig, checker ExistenceChecker, analyzer Analyzer, logger *slog.Logger) *Anhui {
	return &Anhui{
		name:     cfg.Name,
		province: cfg.Province,
		listURL:  cfg.URL,
		hc:       newHTTPClient(),
		checker:  checker,
		analyzer: analyzer,
		logger:   logger,
	}
}

func (a *Anhui) Name() string     { return a.name }
func (a *Anhui) Province() string { return a.province }

func (a *Anhui) Mapping() domain.FieldMapping {
	// Records come out of the analysis workflow pre-split; type and
	// category are filled in later by the classification bridge.
	return domain.FieldMapping{
		ContentKey:  "publish_content",
		PublishTime: []domain.TimeRule{{Key: "publish_time"}},
	}
}

func (a *Anhui) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	links, err := a.bulletinLinks(ctx)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("no bulletin links on %s", a.listURL)
	}
	if len(links) > anhuiMaxBulletins {
		links = links[:anhuiMaxBulletins]
	}

	var records []domain.RawRecord
	for _, link := range links {
		publishTime, content, err := a.bulletin(ctx, link)
		if err != nil {
			a.logger.Error("bulletin parse failed", "source", a.name, "url", link, "error", err)
			continue
		}

		exists, err := a.checker.EventExists(ctx, a.province, publishTime)
		if err != nil {
			return nil, fmt.Errorf("existence check: %w", err)
		}
		if exists {
			a.logger.Info("bulletin already stored, skipping",
				"source", a.name, "publish_time", publishTime.Format(domain.TimestampLayout))
			continue
		}

		incidents, err := a.analyzer.Analyze(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("analyze bulletin: %w", err)
		}
		for _, incident := range incidents {
			records = append(records, domain.RawRecord{
				"publish_content": incident,
				"publish_time":    publishTime.Format(domain.TimestampLayout),
			})
		}
	}
	return records, nil
}

func (a *Anhui) bulletinLinks(ctx context.Context) ([]string, error) {
	page, err := doText(ctx, a.hc, a.listURL, nil)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(a.listURL)
	if err != nil {
		return nil, fmt.Errorf("parse list url: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	for _, m := range anhuiLinkRe.FindAllStringSubmatch(page, -1) {
		ref, err := url.Parse(m[1])
		if err != nil {
			continue
		}
		link := base.ResolveReference(ref).String()
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links, nil
}

func (a *Anhui) bulletin(ctx context.Context, link string) (time.Time, string, error) {
	page, err := doText(ctx, a.hc, link, nil)
	if err != nil {
		return time.Time{}, "", err
	}

	dateMatch := anhuiDateRe.FindStringSubmatch(page)
	if dateMatch == nil {
		return time.Time{}, "", fmt.Errorf("no publish date on %s", link)
	}
	publishTime, err := time.ParseInLocation("2006-01-02 15:04", dateMatch[1], time.Local)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse publish date %q: %w", dateMatch[1], err)
	}

	contentMatch := anhuiContentRe.FindStringSubmatch(page)
	if contentMatch == nil {
		return time.Time{}, "", fmt.Errorf("no bulletin body on %s", link)
	}
	content := stripTags(contentMatch[1])
	if content == "" {
		return time.Time{}, "", fmt.Errorf("empty bulletin body on %s", link)
	}
	return publishTime, content, nil
}
