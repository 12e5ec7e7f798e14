package domain

import (
	"strings"
	"time"
)

// Rules is the per-source policy configuration applied after classification.
// The original feeds disagree on how Realtime vs Plan is decided, so the
// choice is explicit per source instead of a single global rule.
type Rules struct {
	// NoIncidentKeyword drops events whose content reports free-flowing
	// traffic (e.g. "畅通"). Empty disables the rule.
	NoIncidentKeyword string

	// UseDateHeuristic derives the category from publish/start/end dates
	// for sources that do not trust the classifier for it.
	UseDateHeuristic bool

	// DefaultRealtime assigns Realtime to events that end the rule chain
	// with no category and no start/end signal.
	DefaultRealtime bool
}

// Resolve applies the post-classification business rules, in order:
//
//  1. a Plan event with no start time inherits its publish time
//  2. events carrying the no-incident keyword are dropped
//  3. the date-range heuristic assigns Realtime/Plan where configured
//  4. events with no time signal default to Realtime
//
// Each rule is independent and idempotent. Resolve is pure: it returns a new
// slice and never performs I/O.
func Resolve(events []CanonicalEvent, rules Rules) []CanonicalEvent {
	resolved := make([]CanonicalEvent, 0, len(events))
	for _, event := range events {
		if event.Category == CategoryPlan && event.StartTime == nil {
			start := event.PublishTime
			event.StartTime = &start
		}

		if rules.NoIncidentKeyword != "" && strings.Contains(event.PublishContent, rules.NoIncidentKeyword) {
			continue
		}

		if rules.UseDateHeuristic {
			event.Category = dateRangeCategory(event)
		}

		if rules.DefaultRealtime && event.Category == CategoryNone && event.StartTime == nil && event.EndTime == nil {
			event.Category = CategoryRealtime
		}

		resolved = append(resolved, event)
	}
	return resolved
}

// dateRangeCategory compares publish/start/end: an event already underway
// (publish after start) that ends within the publish calendar day is a
// Realtime incident; everything else is a Plan.
func dateRangeCategory(event CanonicalEvent) EventCategory {
	if event.StartTime == nil {
		return CategoryPlan
	}
	if !event.PublishTime.After(*event.StartTime) {
		return CategoryPlan
	}
	if event.EndTime == nil {
		return CategoryPlan
	}
	if event.EndTime.After(endOfDay(event.PublishTime)) {
		return CategoryPlan
	}
	return CategoryRealtime
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
