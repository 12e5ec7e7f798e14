package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// highwayRe matches the first highway reference in free text,
	// e.g. "S11烟海高速" or "G2001济南绕城高速" -> code "G2001", name "济南绕城高速".
	highwayRe = regexp.MustCompile(`([GS]\d+)([\p{Han}]+高速)`)

	// highwayNameRe extracts a bare highway name from a noisy road_name field,
	// e.g. "京港澳高速（石安段）" -> "京港澳高速".
	highwayNameRe = regexp.MustCompile(`([\p{Han}]+高速)`)
)

// ExtractFirstHighway scans free text for the first [GS]<digits><name>高速
// substring. Both return values are "" when nothing matches.
func ExtractFirstHighway(content string) (code, name string) {
	m := highwayRe.FindStringSubmatch(content)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// TimeRuleKind selects how a publish-time candidate field is decoded.
type TimeRuleKind uint8

const (
	// TimeLayout parses the field as a timestamp string with Layout.
	TimeLayout TimeRuleKind = iota
	// TimeEpochMillis parses the field as milliseconds since the epoch.
	TimeEpochMillis
	// TimeIDPrefix parses the first 14 digits of an identifier field
	// as yyyymmddHHMMSS.
	TimeIDPrefix
)

// TimeRule is one publish-time derivation candidate. Rules are tried in
// declaration order; the first field that is present and decodes wins.
type TimeRule struct {
	Key    string
	Kind   TimeRuleKind
	Layout string // for TimeLayout; defaults to TimestampLayout
}

// FieldMapping declares how one source's raw records map onto the canonical
// shape. It replaces per-source normalization code with a table.
type FieldMapping struct {
	ContentKey  string     // required free-text field
	RoadCodeKey string     // optional
	RoadNameKey string     // optional
	StartKey    string     // optional, TimestampLayout string
	EndKey      string     // optional, TimestampLayout string
	PublishTime []TimeRule // tried in priority order

	// TypeKeys are tried in order for the raw event-type text fed to the
	// keyword classifier. Empty means the content itself is classified.
	TypeKeys []string

	// RoadFromContent enables the highway-regex fallback when the mapped
	// road fields are absent or empty.
	RoadFromContent bool

	// CleanRoadName reduces a noisy road_name value to the bare highway name.
	CleanRoadName bool

	// PlanKey/PlanValue mark records as Plan when the raw field equals the
	// value; everything else gets Category per DefaultCategory.
	PlanKey   string
	PlanValue string

	// DefaultCategory is assigned when no classifier run will follow
	// (bypass sources). CategoryNone leaves the event pending.
	DefaultCategory EventCategory
}

// Normalize maps one raw record onto a CanonicalEvent. A returned error
// means this record only; callers collect it and continue with the batch.
func Normalize(raw RawRecord, province string, m FieldMapping) (CanonicalEvent, error) {
	content := strings.TrimSpace(stringField(raw, m.ContentKey))
	if content == "" {
		return CanonicalEvent{}, fmt.Errorf("missing %q field", m.ContentKey)
	}

	publishTime, err := derivePublishTime(raw, m)
	if err != nil {
		return CanonicalEvent{}, err
	}

	event := CanonicalEvent{
		Province:       province,
		PublishContent: content,
		PublishTime:    publishTime,
		RoadCode:       optional(stringField(raw, m.RoadCodeKey)),
		RoadName:       optional(stringField(raw, m.RoadNameKey)),
	}

	if m.CleanRoadName && event.RoadName != nil {
		if name := highwayNameRe.FindString(*event.RoadName); name != "" {
			event.RoadName = &name
		}
	}

	if m.RoadFromContent && (event.RoadCode == nil || event.RoadName == nil) {
		code, name := ExtractFirstHighway(content)
		event.RoadCode = optional(code)
		event.RoadName = optional(name)
	}

	if m.StartKey != "" {
		if event.StartTime, err = ParseTimestamp(stringField(raw, m.StartKey)); err != nil {
			return CanonicalEvent{}, fmt.Errorf("parse %q: %w", m.StartKey, err)
		}
	}
	if m.EndKey != "" {
		if event.EndTime, err = ParseTimestamp(stringField(raw, m.EndKey)); err != nil {
			return CanonicalEvent{}, fmt.Errorf("parse %q: %w", m.EndKey, err)
		}
	}

	if len(m.TypeKeys) > 0 {
		event.EventTypeName = ClassifyEventType(firstPresent(raw, m.TypeKeys)).Label()
	}

	event.Category = m.DefaultCategory
	if m.PlanKey != "" {
		if stringField(raw, m.PlanKey) == m.PlanValue {
			event.Category = CategoryPlan
		} else {
			event.Category = CategoryRealtime
		}
	}

	event.ID = event.ContentID()
	return event, nil
}

func derivePublishTime(raw RawRecord, m FieldMapping) (time.Time, error) {
	for _, rule := range m.PublishTime {
		value, ok := raw[rule.Key]
		if !ok || value == nil {
			continue
		}
		switch rule.Kind {
		case TimeEpochMillis:
			millis, ok := asInt64(value)
			if !ok {
				continue
			}
			return time.UnixMilli(millis).Truncate(time.Second), nil
		case TimeIDPrefix:
			s := stringField(raw, rule.Key)
			if len(s) < 14 {
				return time.Time{}, fmt.Errorf("identifier %q too short for a timestamp prefix", s)
			}
			t, err := time.ParseInLocation("20060102150405", s[:14], time.Local)
			if err != nil {
				return time.Time{}, fmt.Errorf("identifier time prefix %q: %w", s[:14], err)
			}
			return t, nil
		default:
			layout := rule.Layout
			if layout == "" {
				layout = TimestampLayout
			}
			s := strings.TrimSpace(stringField(raw, rule.Key))
			if s == "" {
				continue
			}
			t, err := time.ParseInLocation(layout, strings.ReplaceAll(s, "T", " "), time.Local)
			if err != nil {
				return time.Time{}, fmt.Errorf("parse %q: %w", rule.Key, err)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no usable publish-time field among %v", timeRuleKeys(m.PublishTime))
}

func timeRuleKeys(rules []TimeRule) []string {
	keys := make([]string, len(rules))
	for i, r := range rules {
		keys[i] = r.Key
	}
	return keys
}

// stringField reads a raw field as a string, tolerating numeric JSON values.
func stringField(raw RawRecord, key string) string {
	if key == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; IDs and codes must not grow exponents.
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstPresent(raw RawRecord, keys []string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(stringField(raw, key)); s != "" {
			return s
		}
	}
	return ""
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// optional converts an upstream string to the nullable representation:
// empty or whitespace-only becomes nil, never "".
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
