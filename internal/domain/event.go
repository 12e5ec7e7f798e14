package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// TimestampLayout is the second-precision format used everywhere: in the
// relational store, in snapshots, and in classifier output parsing.
const TimestampLayout = "2006-01-02 15:04:05"

// RawRecord is one loosely-typed row as returned by a source adapter.
// The shape varies per source; the normalizer maps it onto CanonicalEvent.
type RawRecord map[string]any

// EventType is the fixed taxonomy for highway incidents.
type EventType uint8

const (
	EventOther EventType = iota
	EventMaintenance
	EventAccident
	EventControl
	EventWeather
)

// Label returns the display name stored in the event_type_name column.
func (t EventType) Label() string {
	switch t {
	case EventMaintenance:
		return "施工养护"
	case EventAccident:
		return "交通事故"
	case EventControl:
		return "交通管制"
	case EventWeather:
		return "异常天气"
	default:
		return "其他事件"
	}
}

// eventTypeKeywords drives the fuzzy classification of source-supplied
// free-text categories. First matching type wins; order matters because
// e.g. "车辆故障" must hit Accident before the Control keywords are tried.
var eventTypeKeywords = []struct {
	typ      EventType
	keywords []string
}{
	{EventMaintenance, []string{"施工", "养护", "维修", "养路"}},
	{EventAccident, []string{"事故", "碰撞", "追尾", "刮擦", "车辆故障"}},
	{EventControl, []string{"管制", "封闭", "限制", "交通管制", "管控", "车流量", "封道"}},
	{EventWeather, []string{"天气", "雨", "雪", "雾", "冰", "风"}},
}

// ClassifyEventType maps a source-supplied free-text category onto the fixed
// taxonomy: keyword fuzzy match first, then exact label match, Other as the
// fallback. Used by bypass sources that never go through the workflow service.
func ClassifyEventType(raw string) EventType {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EventOther
	}
	for _, group := range eventTypeKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(raw, kw) {
				return group.typ
			}
		}
	}
	for _, t := range []EventType{EventMaintenance, EventAccident, EventControl, EventWeather, EventOther} {
		if t.Label() == raw {
			return t
		}
	}
	return EventOther
}

// EventCategory distinguishes unplanned incidents from scheduled disruptions.
// CategoryNone means "pending classification".
type EventCategory uint8

const (
	CategoryNone EventCategory = iota
	CategoryRealtime
	CategoryPlan
)

// Label returns the display name stored in the event_category column,
// or "" when the category is still pending.
func (c EventCategory) Label() string {
	switch c {
	case CategoryRealtime:
		return "实时事件"
	case CategoryPlan:
		return "计划事件"
	default:
		return ""
	}
}

// ParseCategory maps a classifier output label back onto the taxonomy.
func ParseCategory(label string) (EventCategory, bool) {
	switch strings.TrimSpace(label) {
	case CategoryRealtime.Label():
		return CategoryRealtime, true
	case CategoryPlan.Label():
		return CategoryPlan, true
	default:
		return CategoryNone, false
	}
}

// MarshalJSON writes the display label so snapshots match the stored form.
func (c EventCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Label())
}

// UnmarshalJSON accepts a display label or null.
func (c *EventCategory) UnmarshalJSON(data []byte) error {
	var label *string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	if label == nil {
		*c = CategoryNone
		return nil
	}
	parsed, _ := ParseCategory(*label)
	*c = parsed
	return nil
}

// CanonicalEvent is the common traffic-condition record every source
// normalizes into. Optional fields are pointers; absent is nil, never "".
type CanonicalEvent struct {
	ID             string        `json:"id"`
	Province       string        `json:"province"`
	RoadCode       *string       `json:"road_code"`
	RoadName       *string       `json:"road_name"`
	PublishContent string        `json:"publish_content"`
	PublishTime    time.Time     `json:"publish_time"`
	StartTime      *time.Time    `json:"start_time"`
	EndTime        *time.Time    `json:"end_time"`
	EventTypeName  string        `json:"event_type_name"`
	Category       EventCategory `json:"event_category"`
}

// ClassificationComplete reports whether the event carries both a type name
// and a category and may therefore be forwarded to persistence.
func (e CanonicalEvent) ClassificationComplete() bool {
	return e.EventTypeName != "" && e.Category != CategoryNone
}

// ContentID derives the deterministic identity key for a traffic event from
// its publish time and content. Reprocessing the same record always yields
// the same ID, so persistence can rely on ON CONFLICT DO NOTHING.
func (e CanonicalEvent) ContentID() string {
	return HashID(e.PublishTime.Format(TimestampLayout) + e.PublishContent)
}

// HashID returns the hex digest used as a content-addressed primary key.
func HashID(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}

// WeatherWarning is a parsed and enriched meteorological alert.
// Identity is content-addressed: ID = HashID(WarningContent).
type WeatherWarning struct {
	ID             string     `json:"id"`
	Province       string     `json:"province"`
	City           string     `json:"city"`
	Area           string     `json:"area"`
	Title          string     `json:"title"`
	WarningLevel   string     `json:"warning_level"`
	WarningType    string     `json:"warning_type"`
	WarningContent string     `json:"warning_content"`
	PublishTime    *time.Time `json:"publish_time"`
}

// WeatherAlert is the intermediate form produced by the alert-detail parser,
// before the extraction workflow fills in province/city/area/level/type.
type WeatherAlert struct {
	Title       string
	Content     string
	PublishTime *time.Time
}

// SectionCongestion is one row of the national congested-section ranking.
type SectionCongestion struct {
	ID            string    `json:"id"`
	PublishTime   time.Time `json:"publish_time"`
	ProvinceName  string    `json:"province_name"`
	RoadName      string    `json:"road_name"`
	SectionRank   int       `json:"section_rank"`
	CongestLength float64   `json:"congest_length"`
	AvgSpeed      float64   `json:"avg_speed"`
	BatchNum      string    `json:"batch_num"`
	Semantic      string    `json:"semantic"`
}

// StationCongestion is one row of the congested toll-station ranking.
type StationCongestion struct {
	ID            string    `json:"id"`
	PublishTime   time.Time `json:"publish_time"`
	ProvinceName  string    `json:"province_name"`
	CityName      string    `json:"city_name"`
	RoadName      string    `json:"road_name"`
	StationName   string    `json:"station_name"`
	StationRank   int       `json:"station_rank"`
	CongestLength float64   `json:"congest_length"`
	AvgSpeed      float64   `json:"avg_speed"`
	BatchNum      string    `json:"batch_num"`
}

// WriteResult reports how a persistence batch went. Per-row failures are
// counted, never fatal to the batch.
type WriteResult struct {
	Written int
	Failed  int
}

// ParseTimestamp parses a classifier- or source-supplied timestamp string.
// ISO "T" separators are accepted and normalized; an empty string yields nil.
func ParseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "T", " "))
	if s == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range []string{TimestampLayout, "2006-01-02 15:04", "2006-01-02"} {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
