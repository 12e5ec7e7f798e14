package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID_Deterministic(t *testing.T) {
	event := CanonicalEvent{
		PublishTime:    time.Date(2025, 5, 1, 8, 0, 0, 0, time.Local),
		PublishContent: "G18荣乌高速施工封闭",
	}
	other := event

	assert.Equal(t, event.ContentID(), other.ContentID())
	assert.Len(t, event.ContentID(), 32)

	other.PublishContent = "G18荣乌高速施工结束"
	assert.NotEqual(t, event.ContentID(), other.ContentID())

	other = event
	other.PublishTime = other.PublishTime.Add(time.Second)
	assert.NotEqual(t, event.ContentID(), other.ContentID())
}

func TestClassificationComplete(t *testing.T) {
	event := CanonicalEvent{}
	assert.False(t, event.ClassificationComplete())

	event.EventTypeName = EventControl.Label()
	assert.False(t, event.ClassificationComplete())

	event.Category = CategoryRealtime
	assert.True(t, event.ClassificationComplete())
}

func TestEventCategoryJSON(t *testing.T) {
	t.Run("labels round-trip", func(t *testing.T) {
		for _, c := range []EventCategory{CategoryRealtime, CategoryPlan} {
			data, err := json.Marshal(c)
			require.NoError(t, err)

			var back EventCategory
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, c, back)
		}
	})

	t.Run("null means pending", func(t *testing.T) {
		var c EventCategory
		require.NoError(t, json.Unmarshal([]byte(`null`), &c))
		assert.Equal(t, CategoryNone, c)
	})
}

func TestParseCategory(t *testing.T) {
	got, ok := ParseCategory("实时事件")
	assert.True(t, ok)
	assert.Equal(t, CategoryRealtime, got)

	got, ok = ParseCategory(" 计划事件 ")
	assert.True(t, ok)
	assert.Equal(t, CategoryPlan, got)

	_, ok = ParseCategory("既不实时也不计划")
	assert.False(t, ok)
}
