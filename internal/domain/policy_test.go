package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(value string) time.Time {
	t, err := time.ParseInLocation(TimestampLayout, value, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(value string) *time.Time {
	t := ts(value)
	return &t
}

func TestResolve_PlanInheritsPublishTime(t *testing.T) {
	events := []CanonicalEvent{{
		Province:       "安徽",
		PublishContent: "合徐高速挂篮拆除施工，徐州方向封闭",
		PublishTime:    ts("2025-05-01 08:00:00"),
		Category:       CategoryPlan,
	}}

	resolved := Resolve(events, Rules{})
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].StartTime)
	assert.Equal(t, ts("2025-05-01 08:00:00"), *resolved[0].StartTime)
}

func TestResolve_PlanWithStartTimeUntouched(t *testing.T) {
	events := []CanonicalEvent{{
		PublishTime: ts("2025-05-01 08:00:00"),
		Category:    CategoryPlan,
		StartTime:   tsp("2025-05-03 07:00:00"),
	}}

	resolved := Resolve(events, Rules{})
	require.Len(t, resolved, 1)
	assert.Equal(t, ts("2025-05-03 07:00:00"), *resolved[0].StartTime)
}

func TestResolve_NoIncidentKeywordDropsEvent(t *testing.T) {
	events := []CanonicalEvent{
		{PublishContent: "全线通行畅通", PublishTime: ts("2025-05-01 08:00:00"), Category: CategoryRealtime},
		{PublishContent: "K120处追尾事故", PublishTime: ts("2025-05-01 08:00:00"), Category: CategoryRealtime},
	}

	resolved := Resolve(events, Rules{NoIncidentKeyword: "畅通"})
	require.Len(t, resolved, 1)
	assert.Equal(t, "K120处追尾事故", resolved[0].PublishContent)
}

func TestResolve_DateRangeHeuristic(t *testing.T) {
	rules := Rules{UseDateHeuristic: true}

	t.Run("underway and ends same day is Realtime", func(t *testing.T) {
		events := []CanonicalEvent{{
			PublishTime: ts("2025-05-01 10:00:00"),
			StartTime:   tsp("2025-05-01 08:00:00"),
			EndTime:     tsp("2025-05-01 18:00:00"),
		}}
		resolved := Resolve(events, rules)
		require.Len(t, resolved, 1)
		assert.Equal(t, CategoryRealtime, resolved[0].Category)
	})

	t.Run("ends after publish day is Plan", func(t *testing.T) {
		events := []CanonicalEvent{{
			PublishTime: ts("2025-05-01 10:00:00"),
			StartTime:   tsp("2025-05-01 08:00:00"),
			EndTime:     tsp("2025-05-02 18:00:00"),
		}}
		resolved := Resolve(events, rules)
		require.Len(t, resolved, 1)
		assert.Equal(t, CategoryPlan, resolved[0].Category)
	})

	t.Run("future start is Plan", func(t *testing.T) {
		events := []CanonicalEvent{{
			PublishTime: ts("2025-05-01 10:00:00"),
			StartTime:   tsp("2025-05-02 08:00:00"),
			EndTime:     tsp("2025-05-02 18:00:00"),
		}}
		resolved := Resolve(events, rules)
		require.Len(t, resolved, 1)
		assert.Equal(t, CategoryPlan, resolved[0].Category)
	})

	t.Run("missing times is Plan", func(t *testing.T) {
		events := []CanonicalEvent{{PublishTime: ts("2025-05-01 10:00:00")}}
		resolved := Resolve(events, rules)
		require.Len(t, resolved, 1)
		assert.Equal(t, CategoryPlan, resolved[0].Category)
	})
}

func TestResolve_DefaultRealtime(t *testing.T) {
	events := []CanonicalEvent{{
		PublishContent: "入口临时关闭",
		PublishTime:    ts("2025-05-01 10:00:00"),
	}}

	resolved := Resolve(events, Rules{DefaultRealtime: true})
	require.Len(t, resolved, 1)
	assert.Equal(t, CategoryRealtime, resolved[0].Category)
}

func TestResolve_Idempotent(t *testing.T) {
	rules := Rules{NoIncidentKeyword: "畅通", UseDateHeuristic: true, DefaultRealtime: true}
	events := []CanonicalEvent{
		{
			PublishContent: "施工公告",
			PublishTime:    ts("2025-05-01 08:00:00"),
			StartTime:      tsp("2025-04-30 07:00:00"),
			EndTime:        tsp("2025-05-01 19:00:00"),
			Category:       CategoryPlan,
		},
		{PublishContent: "匝道封闭", PublishTime: ts("2025-05-01 08:00:00")},
	}

	once := Resolve(events, rules)
	twice := Resolve(once, rules)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("Resolve is not idempotent (-once +twice):\n%s", diff)
	}
}
