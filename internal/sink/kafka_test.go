package sink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/highway-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	road := "京台高速"
	code := "G3"
	event := domain.CanonicalEvent{
		Province:       "安徽",
		RoadCode:       &code,
		RoadName:       &road,
		PublishContent: "合肥往徐州方向封闭施工",
		PublishTime:    time.Date(2025, 5, 29, 8, 0, 0, 0, time.Local),
		EventTypeName:  domain.EventMaintenance.Label(),
		Category:       domain.CategoryPlan,
	}
	event.ID = event.ContentID()

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(event.ID), msg.Key)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "安徽", headers["province"])
	assert.Equal(t, "施工养护", headers["event_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "计划事件", decoded["event_category"], "category serializes as its display label")
	assert.Equal(t, "G3", decoded["road_code"])
}

func TestSerializeToMessage_NullOptionalFields(t *testing.T) {
	event := domain.CanonicalEvent{
		Province:       "山东",
		PublishContent: "G35济广高速施工",
		PublishTime:    time.Date(2025, 5, 29, 8, 0, 0, 0, time.Local),
		EventTypeName:  domain.EventMaintenance.Label(),
		Category:       domain.CategoryRealtime,
	}
	event.ID = event.ContentID()

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Nil(t, decoded["road_code"], "absent optionals stay null, never empty strings")
	assert.Nil(t, decoded["start_time"])
}
