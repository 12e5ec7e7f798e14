package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFirstHighway(t *testing.T) {
	t.Run("ring road with long code", func(t *testing.T) {
		code, name := ExtractFirstHighway("G2001济南绕城高速K0+000至K25+200因养护施工封闭")
		assert.Equal(t, "G2001", code)
		assert.Equal(t, "济南绕城高速", name)
	})

	t.Run("provincial road", func(t *testing.T) {
		code, name := ExtractFirstHighway("S11烟海高速烟台方向因大雾临时管制")
		assert.Equal(t, "S11", code)
		assert.Equal(t, "烟海高速", name)
	})

	t.Run("first of several wins", func(t *testing.T) {
		code, name := ExtractFirstHighway("G18荣乌高速与S19龙青高速交汇处事故")
		assert.Equal(t, "G18", code)
		assert.Equal(t, "荣乌高速", name)
	})

	t.Run("no highway reference", func(t *testing.T) {
		code, name := ExtractFirstHighway("全路网通行正常")
		assert.Empty(t, code)
		assert.Empty(t, name)
	})
}

func TestNormalize(t *testing.T) {
	mapping := FieldMapping{
		ContentKey:  "content",
		RoadCodeKey: "roadCode",
		RoadNameKey: "roadName",
		PublishTime: []TimeRule{
			{Key: "occurTime", Kind: TimeEpochMillis},
			{Key: "ctime", Kind: TimeEpochMillis},
			{Key: "eventId", Kind: TimeIDPrefix},
		},
		TypeKeys:        []string{"eventTypeName", "controlEventTypeName"},
		RoadFromContent: true,
		DefaultCategory: CategoryRealtime,
	}

	t.Run("explicit timestamp has priority", func(t *testing.T) {
		raw := RawRecord{
			"content":       "G35济广高速事故处理中",
			"occurTime":     float64(1746057600000),
			"eventId":       "20200101000000XYZ",
			"eventTypeName": "交通事故",
			"roadCode":      "G35",
			"roadName":      "济广高速",
		}
		event, err := Normalize(raw, "山东", mapping)
		require.NoError(t, err)
		assert.Equal(t, time.UnixMilli(1746057600000).Truncate(time.Second), event.PublishTime)
		assert.Equal(t, "山东", event.Province)
		assert.Equal(t, EventAccident.Label(), event.EventTypeName)
		assert.Equal(t, CategoryRealtime, event.Category)
		assert.NotEmpty(t, event.ID)
	})

	t.Run("identifier prefix fallback", func(t *testing.T) {
		raw := RawRecord{
			"content": "G20青银高速施工养护",
			"eventId": "20250501083000001",
		}
		event, err := Normalize(raw, "山东", mapping)
		require.NoError(t, err)
		assert.Equal(t,
			time.Date(2025, 5, 1, 8, 30, 0, 0, time.Local),
			event.PublishTime)
	})

	t.Run("numeric identifier prefix", func(t *testing.T) {
		// JSON numbers decode as float64; the prefix must not render in
		// scientific notation.
		raw := RawRecord{
			"content": "G20青银高速施工养护",
			"eventId": float64(20250501083000),
		}
		event, err := Normalize(raw, "山东", mapping)
		require.NoError(t, err)
		assert.Equal(t,
			time.Date(2025, 5, 1, 8, 30, 0, 0, time.Local),
			event.PublishTime)
	})

	t.Run("road fields recovered from content", func(t *testing.T) {
		raw := RawRecord{
			"content":   "G2001济南绕城高速K0+000至K25+200养护施工",
			"occurTime": float64(1746057600000),
		}
		event, err := Normalize(raw, "山东", mapping)
		require.NoError(t, err)
		require.NotNil(t, event.RoadCode)
		require.NotNil(t, event.RoadName)
		assert.Equal(t, "G2001", *event.RoadCode)
		assert.Equal(t, "济南绕城高速", *event.RoadName)
	})

	t.Run("empty strings normalize to nil", func(t *testing.T) {
		raw := RawRecord{
			"content":   "匝道封闭，请绕行",
			"occurTime": float64(1746057600000),
			"roadCode":  "",
			"roadName":  "  ",
		}
		event, err := Normalize(raw, "山东", mapping)
		require.NoError(t, err)
		assert.Nil(t, event.RoadCode)
		assert.Nil(t, event.RoadName)
	})

	t.Run("missing content is a per-record error", func(t *testing.T) {
		raw := RawRecord{"occurTime": float64(1746057600000)}
		_, err := Normalize(raw, "山东", mapping)
		assert.Error(t, err)
	})

	t.Run("no usable time field is a per-record error", func(t *testing.T) {
		raw := RawRecord{"content": "封闭施工"}
		_, err := Normalize(raw, "山东", mapping)
		assert.Error(t, err)
	})
}

func TestNormalize_RenameStyleMapping(t *testing.T) {
	// Mirrors a rename-map source: different key names, string timestamp,
	// noisy road names reduced to the bare highway name.
	mapping := FieldMapping{
		ContentKey:  "actionResult",
		RoadCodeKey: "roadId",
		RoadNameKey: "roadName",
		PublishTime: []TimeRule{{Key: "startDate", Kind: TimeLayout}},
		TypeKeys:    []string{"reason"},

		CleanRoadName:   true,
		DefaultCategory: CategoryRealtime,
	}

	raw := RawRecord{
		"actionResult": "因车流量大，站口采取临时管控措施",
		"startDate":    "2025-05-01 08:00:00",
		"roadId":       "G4",
		"roadName":     "京港澳高速（京石段）",
		"reason":       "车流量大",
	}

	event, err := Normalize(raw, "河北", mapping)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 1, 8, 0, 0, 0, time.Local), event.PublishTime)
	require.NotNil(t, event.RoadName)
	assert.Equal(t, "京港澳高速", *event.RoadName)
	assert.Equal(t, EventControl.Label(), event.EventTypeName)
}

func TestNormalize_PlanMarkerField(t *testing.T) {
	mapping := FieldMapping{
		ContentKey:  "blockdesc",
		RoadCodeKey: "roadcode",
		RoadNameKey: "roadname",
		StartKey:    "blockstarttime",
		EndKey:      "blockexpecttime",
		PublishTime: []TimeRule{{Key: "pubtime", Kind: TimeLayout}},
		TypeKeys:    []string{"blockreasonParent"},
		PlanKey:     "blockreasonParent",
		PlanValue:   "计划性施工",
	}

	t.Run("planned work is Plan", func(t *testing.T) {
		raw := RawRecord{
			"blockdesc":         "计划性养护施工，占用超车道",
			"pubtime":           "2025-05-01 08:00:00",
			"blockstarttime":    "2025-05-02 07:00:00",
			"blockexpecttime":   "2025-05-02 19:00:00",
			"blockreasonParent": "计划性施工",
		}
		event, err := Normalize(raw, "新疆", mapping)
		require.NoError(t, err)
		assert.Equal(t, CategoryPlan, event.Category)
		require.NotNil(t, event.StartTime)
		assert.Equal(t, time.Date(2025, 5, 2, 7, 0, 0, 0, time.Local), *event.StartTime)
	})

	t.Run("anything else is Realtime", func(t *testing.T) {
		raw := RawRecord{
			"blockdesc":         "交通事故占道",
			"pubtime":           "2025-05-01 08:00:00",
			"blockreasonParent": "交通事故",
		}
		event, err := Normalize(raw, "新疆", mapping)
		require.NoError(t, err)
		assert.Equal(t, CategoryRealtime, event.Category)
	})
}

func TestClassifyEventType(t *testing.T) {
	cases := []struct {
		raw  string
		want EventType
	}{
		{"道路施工", EventMaintenance},
		{"养护作业", EventMaintenance},
		{"追尾事故", EventAccident},
		{"车辆故障", EventAccident},
		{"交通管制", EventControl},
		{"入口封道", EventControl},
		{"团雾", EventWeather},
		{"道路结冰", EventWeather},
		{"交通事故", EventAccident}, // exact label
		{"不知道是什么", EventOther},
		{"", EventOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyEventType(tc.raw), "raw=%q", tc.raw)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Run("iso separator normalized", func(t *testing.T) {
		got, err := ParseTimestamp("2025-05-01T08:00:00")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 5, 1, 8, 0, 0, 0, time.Local), *got)
	})

	t.Run("empty yields nil", func(t *testing.T) {
		got, err := ParseTimestamp("  ")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("minute precision padded", func(t *testing.T) {
		got, err := ParseTimestamp("2025-05-01 08:00")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 5, 1, 8, 0, 0, 0, time.Local), *got)
	})

	t.Run("garbage is an error", func(t *testing.T) {
		_, err := ParseTimestamp("next tuesday")
		assert.Error(t, err)
	})
}
