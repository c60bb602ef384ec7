package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/stats"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

func scenarioSummary(t *testing.T) *stats.Summary {
	t.Helper()
	a := stats.NewAggregator(stats.AbsoluteThreshold(10 * time.Millisecond))
	fold := func(code op.Code, elapsed time.Duration, class tracelog.ErrorClass) {
		a.Fold(tracelog.EventRecord(tracelog.Event{Opcode: code, Elapsed: elapsed, Err: class}))
	}
	fold(op.Add, 2*time.Millisecond, tracelog.ErrNone)
	fold(op.Add, 50*time.Millisecond, tracelog.ErrDivideByZero)
	fold(op.Sub, time.Millisecond, tracelog.ErrNone)
	return a.Summary()
}

func TestDocumentContent(t *testing.T) {
	doc := New(scenarioSummary(t), 2)

	require.Equal(t, int64(3), doc.Events)
	require.Equal(t, 0.01, doc.ThresholdSeconds)
	require.Equal(t, 2, doc.ParseWarnings)
	require.Nil(t, doc.RunSeconds)

	require.Len(t, doc.Summary, 2)
	require.Equal(t, "ADD", doc.Summary[0].Name)
	require.InDelta(t, 0.026, doc.Summary[0].MeanSeconds, 1e-9)
	require.Equal(t, int64(1), doc.Summary[0].Errors)

	require.Len(t, doc.Slowness, 2)
	require.Equal(t, "ADD", doc.Slowness[0].Name)
	require.Equal(t, 0.5, doc.Slowness[0].PSlow)
	require.Equal(t, "SUB", doc.Slowness[1].Name)
	require.InDelta(t, 1.0/3.0, doc.Slowness[1].PSlow, 1e-12)

	require.Len(t, doc.Errors, 1)
	require.Equal(t, "ADD", doc.Errors[0].Name)
	require.Equal(t, "divide-by-zero", doc.Errors[0].ClassTag)
	require.Equal(t, 0.5, doc.Errors[0].PError)
}

func TestRenderSectionsInOrder(t *testing.T) {
	doc := New(scenarioSummary(t), 1)

	var buf bytes.Buffer
	require.Nil(t, Render(&buf, doc, Options{}))
	out := buf.String()

	summary := strings.Index(out, "Diagnostic Summary")
	times := strings.Index(out, "Bayesian Analysis of Execution Times")
	errors := strings.Index(out, "Bayesian Analysis of Error Probabilities")
	require.True(t, summary >= 0)
	require.True(t, times > summary)
	require.True(t, errors > times)

	require.Contains(t, out, "events: 3")
	require.Contains(t, out, "slow threshold: 0.010000 s")
	require.Contains(t, out, "note: 1 malformed line(s) skipped")
	require.Contains(t, out, "0.026000")
	require.Contains(t, out, "0.5000")
	require.Contains(t, out, "0.3333")
	require.Contains(t, out, "divide-by-zero")

	// ADD ranks above SUB in the execution-time section.
	section := out[times:]
	require.True(t, strings.Index(section, "ADD") < strings.Index(section, "SUB"))
}

func TestRenderIdempotent(t *testing.T) {
	summary := scenarioSummary(t)

	var first, second bytes.Buffer
	require.Nil(t, Render(&first, New(summary, 0), Options{}))
	require.Nil(t, Render(&second, New(summary, 0), Options{}))
	require.Equal(t, first.String(), second.String())
}

func TestRenderNoData(t *testing.T) {
	summary := stats.NewAggregator(stats.AbsoluteThreshold(time.Millisecond)).Summary()
	doc := New(summary, 3)

	var buf bytes.Buffer
	require.Nil(t, Render(&buf, doc, Options{}))
	out := buf.String()

	require.Contains(t, out, "no data: no well-formed events were decoded")
	require.Contains(t, out, "note: 3 malformed line(s) skipped")
	require.NotContains(t, out, "Diagnostic Summary")
}

func TestRenderNoErrorsNotice(t *testing.T) {
	a := stats.NewAggregator(stats.AbsoluteThreshold(time.Millisecond))
	a.Fold(tracelog.EventRecord(tracelog.Event{Opcode: op.Add, Elapsed: time.Microsecond}))

	var buf bytes.Buffer
	require.Nil(t, Render(&buf, New(a.Summary(), 0), Options{}))
	require.Contains(t, buf.String(), "no errors observed")
}

func TestRenderRunTime(t *testing.T) {
	a := stats.NewAggregator(stats.AbsoluteThreshold(time.Millisecond))
	a.Fold(tracelog.MarkerRecord(tracelog.RunMarker{Kind: tracelog.RunStart, Time: time.Unix(10, 0)}))
	a.Fold(tracelog.EventRecord(tracelog.Event{Opcode: op.Add, Elapsed: time.Microsecond}))
	a.Fold(tracelog.MarkerRecord(tracelog.RunMarker{Kind: tracelog.RunEnd, Time: time.Unix(12, 500000000)}))

	var buf bytes.Buffer
	require.Nil(t, Render(&buf, New(a.Summary(), 0), Options{}))
	require.Contains(t, buf.String(), "run time: 2.500000 s")
}
