package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roadpulse/highway-etl/internal/domain"
)

// ErrAlignment marks a classification response whose shape cannot be mapped
// back onto the input batch: wrong array lengths, or a null where a required
// value must be. Positional corruption cannot be repaired locally, so callers
// treat it as fatal for the run.
var ErrAlignment = errors.New("classification output misaligned")

// DefaultMaxBatchLines is the provider-imposed batch cap observed in
// production workflows.
const DefaultMaxBatchLines = 15

// BatchRunner runs one classification batch. *Client satisfies it via a
// bound API key; tests substitute a stub.
type BatchRunner interface {
	ClassifyBatch(ctx context.Context, batch string) (Outputs, error)
}

// ClientRunner adapts Client to BatchRunner by fixing the workflow API key.
type ClientRunner struct {
	Client *Client
	APIKey string
}

func (r ClientRunner) ClassifyBatch(ctx context.Context, batch string) (Outputs, error) {
	return r.Client.ClassifyBatch(ctx, r.APIKey, batch)
}

// ClientAnalyzer adapts Client to the bulletin-splitting dependency by fixing
// the analysis workflow's API key.
type ClientAnalyzer struct {
	Client *Client
	APIKey string
}

func (a ClientAnalyzer) Analyze(ctx context.Context, content string) ([]string, error) {
	return a.Client.Analyze(ctx, a.APIKey, content)
}

// ClientWeatherExtractor adapts Client to the weather-field extraction
// dependency by fixing that workflow's API key.
type ClientWeatherExtractor struct {
	Client *Client
	APIKey string
}

func (e ClientWeatherExtractor) ExtractWeather(ctx context.Context, title string) (WeatherFields, error) {
	return e.Client.ExtractWeather(ctx, e.APIKey, title)
}

// Bridge assembles events into line-delimited batches, invokes the workflow
// once per batch, and merges the positional outputs back onto the events.
type Bridge struct {
	runner   BatchRunner
	maxLines int
	logger   *slog.Logger
}

// NewBridge creates a Bridge. maxLines <= 0 falls back to
// DefaultMaxBatchLines.
func NewBridge(runner BatchRunner, maxLines int, logger *slog.Logger) *Bridge {
	if maxLines <= 0 {
		maxLines = DefaultMaxBatchLines
	}
	return &Bridge{runner: runner, maxLines: maxLines, logger: logger}
}

// Classify enriches events with the workflow's type, category, road, and
// time outputs. The result has the same length and order as the input; any
// batch whose response cannot be aligned aborts the whole call.
func (b *Bridge) Classify(ctx context.Context, events []domain.CanonicalEvent) ([]domain.CanonicalEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	lines, err := batchLines(events)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CanonicalEvent, len(events))
	copy(out, events)

	chunks := chunkLines(lines, b.maxLines)
	offset := 0
	for i, chunk := range chunks {
		b.logger.Info("classifying batch",
			"batch", i+1,
			"batches", len(chunks),
			"lines", len(chunk),
		)

		outputs, err := b.runner.ClassifyBatch(ctx, strings.Join(chunk, "\n"))
		if err != nil {
			return nil, fmt.Errorf("classify batch %d/%d: %w", i+1, len(chunks), err)
		}

		if err := mergeOutputs(out[offset:offset+len(chunk)], outputs, offset); err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(chunks), err)
		}
		offset += len(chunk)
	}

	return out, nil
}

// batchLines extracts each event's content with embedded newlines collapsed
// to single spaces. The newline is the batch's only record separator; a line
// that still contains one would shift every later index, so this is checked,
// not assumed.
func batchLines(events []domain.CanonicalEvent) ([]string, error) {
	lines := make([]string, len(events))
	for i, event := range events {
		line := strings.ReplaceAll(event.PublishContent, "\r\n", " ")
		line = strings.ReplaceAll(line, "\n", " ")
		line = strings.ReplaceAll(line, "\r", " ")
		line = strings.TrimSpace(line)
		if strings.ContainsAny(line, "\n\r") {
			return nil, fmt.Errorf("%w: event %d content still contains a line break after collapsing", ErrAlignment, i)
		}
		if line == "" {
			return nil, fmt.Errorf("%w: event %d has empty content", ErrAlignment, i)
		}
		lines[i] = line
	}
	return lines, nil
}

// chunkLines partitions lines into consecutive chunks of at most maxLines.
func chunkLines(lines []string, maxLines int) [][]string {
	var chunks [][]string
	for start := 0; start < len(lines); start += maxLines {
		end := start + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, lines[start:end])
	}
	return chunks
}

// mergeOutputs writes one chunk's parallel arrays onto the corresponding
// events. globalOffset is only used to report absolute indexes in errors.
func mergeOutputs(events []domain.CanonicalEvent, outputs Outputs, globalOffset int) error {
	fields := []struct {
		name   string
		values []*string
	}{
		{"class_name", outputs.ClassNames},
		{"CategoryList", outputs.Categories},
		{"road_name", outputs.RoadNames},
		{"road_code", outputs.RoadCodes},
		{"StartTimeList", outputs.StartTimes},
		{"EndTimeList", outputs.EndTimes},
	}
	for _, f := range fields {
		if len(f.values) != len(events) {
			return fmt.Errorf("%w: %s has %d entries for %d input lines", ErrAlignment, f.name, len(f.values), len(events))
		}
		for i, v := range f.values {
			if v == nil {
				return fmt.Errorf("%w: %s is null at index %d", ErrAlignment, f.name, globalOffset+i)
			}
		}
	}

	for i := range events {
		event := &events[i]

		event.EventTypeName = strings.TrimSpace(*outputs.ClassNames[i])
		if event.EventTypeName == "" {
			return fmt.Errorf("%w: class_name is empty at index %d", ErrAlignment, globalOffset+i)
		}

		category, ok := domain.ParseCategory(*outputs.Categories[i])
		if !ok {
			return fmt.Errorf("%w: unknown category %q at index %d", ErrAlignment, *outputs.Categories[i], globalOffset+i)
		}
		event.Category = category

		event.RoadName = optional(*outputs.RoadNames[i])
		event.RoadCode = optional(*outputs.RoadCodes[i])

		start, err := domain.ParseTimestamp(*outputs.StartTimes[i])
		if err != nil {
			return fmt.Errorf("start time at index %d: %w", globalOffset+i, err)
		}
		event.StartTime = start

		end, err := domain.ParseTimestamp(*outputs.EndTimes[i])
		if err != nil {
			return fmt.Errorf("end time at index %d: %w", globalOffset+i, err)
		}
		event.EndTime = end
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
