package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/highway-etl/internal/classifier"
	"github.com/roadpulse/highway-etl/internal/domain"
)

// stubRunner echoes deterministic outputs for every input line and records
// the batches it received.
type stubRunner struct {
	batches []string
	err     error
	mutate  func(lines int, out *classifier.Outputs)
}

func (s *stubRunner) ClassifyBatch(_ context.Context, batch string) (classifier.Outputs, error) {
	s.batches = append(s.batches, batch)
	if s.err != nil {
		return classifier.Outputs{}, s.err
	}

	lines := strings.Split(batch, "\n")
	out := classifier.Outputs{}
	for i, line := range lines {
		out.ClassNames = append(out.ClassNames, ptr("交通管制"))
		out.Categories = append(out.Categories, ptr("计划事件"))
		out.RoadNames = append(out.RoadNames, ptr(fmt.Sprintf("高速%d", i)))
		out.RoadCodes = append(out.RoadCodes, ptr("G"+line[:1]))
		out.StartTimes = append(out.StartTimes, ptr("2025-05-01 08:00:00"))
		out.EndTimes = append(out.EndTimes, ptr(""))
	}
	if s.mutate != nil {
		s.mutate(len(lines), &out)
	}
	return out, nil
}

func ptr(s string) *string { return &s }

func makeEvents(n int) []domain.CanonicalEvent {
	events := make([]domain.CanonicalEvent, n)
	for i := range events {
		events[i] = domain.CanonicalEvent{
			Province:       "安徽",
			PublishContent: fmt.Sprintf("%d号公告：匝道封闭", i),
			PublishTime:    time.Date(2025, 5, 1, 7, 0, 0, 0, time.Local),
		}
	}
	return events
}

func TestClassify_AlignmentAcrossBatchSizes(t *testing.T) {
	const maxLines = 5
	for n := 1; n <= maxLines*2+1; n++ {
		t.Run(fmt.Sprintf("%d events", n), func(t *testing.T) {
			runner := &stubRunner{}
			bridge := classifier.NewBridge(runner, maxLines, slog.Default())

			events := makeEvents(n)
			got, err := bridge.Classify(context.Background(), events)
			require.NoError(t, err)
			require.Len(t, got, n)

			for i := range got {
				// Output i corresponds to input i's original content.
				assert.Equal(t, events[i].PublishContent, got[i].PublishContent, "index %d", i)
				assert.Equal(t, "交通管制", got[i].EventTypeName)
				assert.Equal(t, domain.CategoryPlan, got[i].Category)
				assert.Nil(t, got[i].EndTime, "empty output normalizes to nil")
				require.NotNil(t, got[i].StartTime)
			}
		})
	}
}

func TestClassify_ChunkSizes(t *testing.T) {
	runner := &stubRunner{}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	_, err := bridge.Classify(context.Background(), makeEvents(47))
	require.NoError(t, err)

	require.Len(t, runner.batches, 4)
	wantSizes := []int{15, 15, 15, 2}
	for i, batch := range runner.batches {
		assert.Len(t, strings.Split(batch, "\n"), wantSizes[i], "batch %d", i)
	}
}

func TestClassify_CollapsesEmbeddedNewlines(t *testing.T) {
	runner := &stubRunner{}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	events := makeEvents(2)
	events[0].PublishContent = "第一行\n第二行\r\n第三行"

	_, err := bridge.Classify(context.Background(), events)
	require.NoError(t, err)

	require.Len(t, runner.batches, 1)
	lines := strings.Split(runner.batches[0], "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "第一行 第二行 第三行", lines[0])
}

func TestClassify_NullOutputIsFatal(t *testing.T) {
	runner := &stubRunner{
		mutate: func(lines int, out *classifier.Outputs) {
			if lines > 3 {
				out.ClassNames[3] = nil
			}
		},
	}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	_, err := bridge.Classify(context.Background(), makeEvents(6))
	require.Error(t, err)
	assert.ErrorIs(t, err, classifier.ErrAlignment)
	assert.Contains(t, err.Error(), "index 3")
}

func TestClassify_LengthMismatchIsFatal(t *testing.T) {
	runner := &stubRunner{
		mutate: func(_ int, out *classifier.Outputs) {
			out.RoadCodes = out.RoadCodes[:len(out.RoadCodes)-1]
		},
	}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	_, err := bridge.Classify(context.Background(), makeEvents(4))
	assert.ErrorIs(t, err, classifier.ErrAlignment)
}

func TestClassify_UnknownCategoryIsFatal(t *testing.T) {
	runner := &stubRunner{
		mutate: func(_ int, out *classifier.Outputs) {
			out.Categories[0] = ptr("临时事件")
		},
	}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	_, err := bridge.Classify(context.Background(), makeEvents(1))
	assert.ErrorIs(t, err, classifier.ErrAlignment)
}

func TestClassify_RunnerErrorPropagates(t *testing.T) {
	boom := errors.New("service unavailable")
	runner := &stubRunner{err: boom}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	_, err := bridge.Classify(context.Background(), makeEvents(2))
	assert.ErrorIs(t, err, boom)
}

func TestClassify_EmptyInput(t *testing.T) {
	runner := &stubRunner{}
	bridge := classifier.NewBridge(runner, 15, slog.Default())

	got, err := bridge.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, runner.batches, "no workflow call for an empty batch")
}
