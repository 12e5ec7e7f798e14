package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/highway-etl/internal/classifier"
	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
	"github.com/roadpulse/highway-etl/internal/observability"
	"github.com/roadpulse/highway-etl/internal/pipeline"
)

type stubAlertFeed struct {
	urls    []string
	details map[string]domain.WeatherAlert
	listErr error
}

func (f *stubAlertFeed) AlarmURLs(_ context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.urls, nil
}

func (f *stubAlertFeed) AlarmDetail(_ context.Context, url string) (domain.WeatherAlert, error) {
	detail, ok := f.details[url]
	if !ok {
		return domain.WeatherAlert{}, errors.New("page not found")
	}
	return detail, nil
}

type stubExtractor struct {
	calls int
}

func (e *stubExtractor) ExtractWeather(_ context.Context, _ string) (classifier.WeatherFields, error) {
	e.calls++
	return classifier.WeatherFields{
		Province: "山东", City: "济南", Area: "历下区", Grade: "橙色", Type: "暴雨",
	}, nil
}

type mockWeatherStore struct {
	existing map[string]bool
	today    []string
	warnings []domain.WeatherWarning
	regions  [][3]string
}

func newMockWeatherStore() *mockWeatherStore {
	return &mockWeatherStore{existing: make(map[string]bool)}
}

func (m *mockWeatherStore) WeatherExists(_ context.Context, id string) (bool, error) {
	return m.existing[id], nil
}

func (m *mockWeatherStore) TodayWeatherIDs(_ context.Context) ([]string, error) {
	return m.today, nil
}

func (m *mockWeatherStore) InsertWeather(_ context.Context, w domain.WeatherWarning) (bool, error) {
	m.warnings = append(m.warnings, w)
	return true, nil
}

func (m *mockWeatherStore) InsertRegion(_ context.Context, province, city, area string) error {
	m.regions = append(m.regions, [3]string{province, city, area})
	return nil
}

func weatherAlert(content string) domain.WeatherAlert {
	published := time.Date(2025, 5, 29, 10, 30, 0, 0, time.Local)
	return domain.WeatherAlert{
		Title:       "济南市气象台发布暴雨橙色预警",
		Content:     content,
		PublishTime: &published,
	}
}

func TestWeatherRunOnce(t *testing.T) {
	feed := &stubAlertFeed{
		urls: []string{"/a", "/b"},
		details: map[string]domain.WeatherAlert{
			"/a": weatherAlert("预计未来3小时强降水"),
			"/b": weatherAlert("大风蓝色预警内容"),
		},
	}
	extractor := &stubExtractor{}
	store := newMockWeatherStore()
	runner := pipeline.NewWeatherRunner(config.WeatherConfig{}, feed, extractor, store,
		testLogger(), observability.NewMetricsForTesting())

	runner.RunOnce(context.Background())

	require.Len(t, store.warnings, 2)
	warning := store.warnings[0]
	assert.Equal(t, domain.HashID("预计未来3小时强降水"), warning.ID, "identity is the content hash")
	assert.Equal(t, "山东", warning.Province)
	assert.Equal(t, "橙色", warning.WarningLevel)
	assert.Equal(t, "暴雨", warning.WarningType)
	require.Len(t, store.regions, 2)
	assert.Equal(t, [3]string{"山东", "济南", "历下区"}, store.regions[0])
	assert.True(t, runner.Ready())

	// Second cycle: both alerts still on the feed, nothing re-extracted.
	runner.RunOnce(context.Background())
	assert.Equal(t, 2, extractor.calls, "seen cache short-circuits repeat alerts")
	assert.Len(t, store.warnings, 2)
}

func TestWeatherRunOnce_StoredAlertSkipsExtraction(t *testing.T) {
	content := "已入库的预警内容"
	feed := &stubAlertFeed{
		urls:    []string{"/a"},
		details: map[string]domain.WeatherAlert{"/a": weatherAlert(content)},
	}
	extractor := &stubExtractor{}
	store := newMockWeatherStore()
	store.existing[domain.HashID(content)] = true

	runner := pipeline.NewWeatherRunner(config.WeatherConfig{}, feed, extractor, store,
		testLogger(), observability.NewMetricsForTesting())
	runner.RunOnce(context.Background())

	assert.Zero(t, extractor.calls, "extraction is gated behind the existence check")
	assert.Empty(t, store.warnings)
}

func TestWeatherWarmCache(t *testing.T) {
	content := "昨夜已入库的预警"
	id := domain.HashID(content)
	feed := &stubAlertFeed{
		urls:    []string{"/a"},
		details: map[string]domain.WeatherAlert{"/a": weatherAlert(content)},
	}
	extractor := &stubExtractor{}
	store := newMockWeatherStore()
	store.today = []string{id}

	runner := pipeline.NewWeatherRunner(config.WeatherConfig{}, feed, extractor, store,
		testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, runner.WarmCache(context.Background()))

	runner.RunOnce(context.Background())
	assert.Zero(t, extractor.calls)
	assert.Empty(t, store.warnings, "warmed hashes skip the database entirely")
}

func TestWeatherRunOnce_BadDetailIsolated(t *testing.T) {
	feed := &stubAlertFeed{
		urls: []string{"/broken", "/ok"},
		details: map[string]domain.WeatherAlert{
			"/ok": weatherAlert("正常的预警内容"),
		},
	}
	store := newMockWeatherStore()
	runner := pipeline.NewWeatherRunner(config.WeatherConfig{}, feed, &stubExtractor{}, store,
		testLogger(), observability.NewMetricsForTesting())

	runner.RunOnce(context.Background())

	require.Len(t, store.warnings, 1)
	assert.True(t, runner.Ready(), "one broken page does not fail the run")
}

type stubCongestionFeed struct {
	sections    []domain.SectionCongestion
	stations    []domain.StationCongestion
	sectionErr  error
	stationErr  error
	sectionHits int
}

func (f *stubCongestionFeed) FetchSections(_ context.Context) ([]domain.SectionCongestion, error) {
	f.sectionHits++
	if f.sectionErr != nil {
		return nil, f.sectionErr
	}
	return f.sections, nil
}

func (f *stubCongestionFeed) FetchStations(_ context.Context) ([]domain.StationCongestion, error) {
	if f.stationErr != nil {
		return nil, f.stationErr
	}
	return f.stations, nil
}

type mockCongestionStore struct {
	sections []domain.SectionCongestion
	stations []domain.StationCongestion
}

func (m *mockCongestionStore) InsertSections(_ context.Context, rows []domain.SectionCongestion) (domain.WriteResult, error) {
	m.sections = append(m.sections, rows...)
	return domain.WriteResult{Written: len(rows)}, nil
}

func (m *mockCongestionStore) InsertStations(_ context.Context, rows []domain.StationCongestion) (domain.WriteResult, error) {
	m.stations = append(m.stations, rows...)
	return domain.WriteResult{Written: len(rows)}, nil
}

func TestCongestionRunOnce(t *testing.T) {
	feed := &stubCongestionFeed{
		sections: []domain.SectionCongestion{{ID: "s1", ProvinceName: "安徽", RoadName: "京台高速", SectionRank: 1}},
		stations: []domain.StationCongestion{{ID: "t1", ProvinceName: "安徽", StationName: "金寨路(入口)", StationRank: 1}},
	}
	store := &mockCongestionStore{}
	runner := pipeline.NewCongestionRunner(config.CongestionConfig{MaxRetries: 1}, feed, store,
		pipeline.NewSnapshots(""), testLogger(), observability.NewMetricsForTesting())

	runner.RunOnce(context.Background())

	assert.Len(t, store.sections, 1)
	assert.Len(t, store.stations, 1)
	assert.True(t, runner.Ready())
}

func TestCongestionRunOnce_FeedsAreIndependent(t *testing.T) {
	feed := &stubCongestionFeed{
		sectionErr: errors.New("rank feed down"),
		stations:   []domain.StationCongestion{{ID: "t1", StationName: "金寨路(入口)", StationRank: 1}},
	}
	store := &mockCongestionStore{}
	runner := pipeline.NewCongestionRunner(config.CongestionConfig{MaxRetries: 2}, feed, store,
		pipeline.NewSnapshots(""), testLogger(), observability.NewMetricsForTesting())

	runner.RunOnce(context.Background())

	assert.Equal(t, 2, feed.sectionHits, "section fetch retried to its budget")
	assert.Empty(t, store.sections)
	assert.Len(t, store.stations, 1, "station ranking persists despite the section failure")
	assert.True(t, runner.Ready())
}
