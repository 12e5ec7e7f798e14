// Command validate performs integrity checks on persisted snapshot batches
// written by the ingest pipeline. It verifies content-addressed identity,
// classification completeness, time consistency, and field shape, so a batch
// can be audited offline before replaying it through a file source.
//
// Usage:
//
//	go run ./cmd/validate -snapshot files/shandong_202505290800.json
//	go run ./cmd/validate -snapshot files/hebei_202505290830.json -province 河北
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/roadpulse/highway-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	snapshot := flag.String("snapshot", "", "path to a snapshot JSON batch")
	province := flag.String("province", "", "optional: assert every record belongs to this province")
	flag.Parse()

	if *snapshot == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*snapshot, *province); code != 0 {
		os.Exit(code)
	}
}

func run(snapshotPath, province string) int {
	fmt.Println("=== Snapshot Batch Integrity Validation ===")
	fmt.Println()

	events, err := loadJSON[domain.CanonicalEvent](snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load snapshot: %v\n", err)
		return 1
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: snapshot contains no records")
		return 1
	}

	phases := []*phase{
		validateIdentity(events),
		validateClassification(events),
		validateTimes(events),
		validateFieldShape(events, province),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d\n", len(events))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Identity ──
// Every ID must be the sha256-derived content ID recomputed from the record's
// publish time and content. Duplicate IDs are reported as a note, not an
// error, since the database upsert discards them on conflict.

var hexIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

func validateIdentity(events []domain.CanonicalEvent) *phase {
	p := &phase{name: "Phase 1: Identity (content hashing)"}

	seen := map[string]int{}
	var dupeCount int
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			p.errorf("record %d: missing ID", i)
			continue
		}
		if !hexIDRe.MatchString(e.ID) {
			p.errorf("record %d: ID %q is not 32 lowercase hex characters", i, e.ID)
		}
		if expected := e.ContentID(); e.ID != expected {
			p.errorf("record %d: ID %q does not match recomputed content ID %q", i, e.ID, expected)
		}
		if _, ok := seen[e.ID]; ok {
			dupeCount++
			continue
		}
		seen[e.ID] = i
	}

	if dupeCount > 0 {
		fmt.Printf("  Note: %d duplicate ID(s) found (discarded by DB upsert on conflict)\n", dupeCount)
	}
	return p
}

// ── Phase 2: Classification ──
// Persisted records carry a complete classification: a type label from the
// event taxonomy and a resolved realtime/plan category.

func validateClassification(events []domain.CanonicalEvent) *phase {
	p := &phase{name: "Phase 2: Classification (taxonomy)"}

	validTypes := map[string]bool{}
	for _, t := range []domain.EventType{
		domain.EventMaintenance, domain.EventAccident, domain.EventControl,
		domain.EventWeather, domain.EventOther,
	} {
		validTypes[t.Label()] = true
	}

	for i := range events {
		e := &events[i]
		if !e.ClassificationComplete() {
			p.errorf("record %d (ID %s): classification incomplete (type=%q, category=%q)",
				i, e.ID, e.EventTypeName, e.Category.Label())
			continue
		}
		if !validTypes[e.EventTypeName] {
			p.errorf("record %d (ID %s): event_type_name %q not in taxonomy", i, e.ID, e.EventTypeName)
		}
		if _, ok := domain.ParseCategory(e.Category.Label()); !ok {
			p.errorf("record %d (ID %s): invalid event_category", i, e.ID)
		}
	}
	return p
}

// ── Phase 3: Time Consistency ──

func validateTimes(events []domain.CanonicalEvent) *phase {
	p := &phase{name: "Phase 3: Time Consistency"}

	for i := range events {
		e := &events[i]
		if e.PublishTime.IsZero() {
			p.errorf("record %d (ID %s): publish_time is zero", i, e.ID)
		}
		if e.StartTime != nil && e.EndTime != nil && e.EndTime.Before(*e.StartTime) {
			p.errorf("record %d (ID %s): end_time %s is before start_time %s",
				i, e.ID, e.EndTime.Format(domain.TimestampLayout), e.StartTime.Format(domain.TimestampLayout))
		}
		if e.Category == domain.CategoryPlan && e.StartTime == nil {
			p.errorf("record %d (ID %s): plan event has no start_time", i, e.ID)
		}
	}
	return p
}

// ── Phase 4: Field Shape ──
// Optional fields are null or non-empty, never empty strings; road codes
// follow the national numbering scheme.

var roadCodeRe = regexp.MustCompile(`^[GS]\d+`)

func validateFieldShape(events []domain.CanonicalEvent, province string) *phase {
	p := &phase{name: "Phase 4: Field Shape"}

	for i := range events {
		e := &events[i]
		if e.Province == "" {
			p.errorf("record %d (ID %s): province is empty", i, e.ID)
		} else if province != "" && e.Province != province {
			p.errorf("record %d (ID %s): province %q, expected %q", i, e.ID, e.Province, province)
		}
		if strings.TrimSpace(e.PublishContent) == "" {
			p.errorf("record %d (ID %s): publish_content is empty", i, e.ID)
		}
		if e.RoadCode != nil {
			if *e.RoadCode == "" {
				p.errorf("record %d (ID %s): road_code is an empty string (should be null)", i, e.ID)
			} else if !roadCodeRe.MatchString(*e.RoadCode) {
				p.errorf("record %d (ID %s): road_code %q does not match national numbering", i, e.ID, *e.RoadCode)
			}
		}
		if e.RoadName != nil && *e.RoadName == "" {
			p.errorf("record %d (ID %s): road_name is an empty string (should be null)", i, e.ID)
		}
	}
	return p
}
