package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/optrace/recorder"
	"github.com/deepnoodle-ai/optrace/report"
	"github.com/deepnoodle-ai/optrace/stats"
	"github.com/deepnoodle-ai/optrace/tracelog"
	"github.com/deepnoodle-ai/optrace/vm"
)

func TestAnalyzeReader(t *testing.T) {
	log := strings.Join([]string{
		"op 20 0.002000000 0",
		"op 20 0.050000000 1",
		"op 21 0.001000000 0",
	}, "\n")

	doc, warnings, err := analyzeReader(strings.NewReader(log), stats.AbsoluteThreshold(10*time.Millisecond))
	require.Nil(t, err)
	require.Len(t, warnings, 0)
	require.Equal(t, int64(3), doc.Events)

	require.Len(t, doc.Slowness, 2)
	require.Equal(t, "ADD", doc.Slowness[0].Name)
	require.Equal(t, 0.5, doc.Slowness[0].PSlow)
	require.Equal(t, "SUB", doc.Slowness[1].Name)
	require.InDelta(t, 1.0/3.0, doc.Slowness[1].PSlow, 1e-12)

	require.Len(t, doc.Errors, 1)
	require.Equal(t, 0.5, doc.Errors[0].PError)
}

func TestAnalyzeReaderEmptyInput(t *testing.T) {
	doc, warnings, err := analyzeReader(strings.NewReader(""), stats.AbsoluteThreshold(time.Millisecond))
	require.Nil(t, err)
	require.Len(t, warnings, 0)
	require.Equal(t, int64(0), doc.Events)

	var buf bytes.Buffer
	require.Nil(t, report.Render(&buf, doc, report.Options{}))
	require.Contains(t, buf.String(), "no data")
}

func TestAnalyzeReaderCountsWarnings(t *testing.T) {
	log := "op 20 0.001000000 0\nnot a record\nop 999 0.001 0\n"
	doc, warnings, err := analyzeReader(strings.NewReader(log), stats.AbsoluteThreshold(time.Millisecond))
	require.Nil(t, err)
	require.Len(t, warnings, 2)
	require.Equal(t, int64(1), doc.Events)
	require.Equal(t, 2, doc.ParseWarnings)
}

// End to end: run an instrumented program, then analyze the log it emitted.
func TestRunThenAnalyze(t *testing.T) {
	prog, err := vm.Parse(`
	push 6
	push 7
	mul
	print
	push 1
	push 0
	div
	halt
	`)
	require.Nil(t, err)

	var log bytes.Buffer
	w := tracelog.NewWriter(&log)
	rec := recorder.New(recorder.WithSink(w))
	m := vm.New(rec)

	require.Nil(t, rec.StartRun())
	require.Nil(t, m.Run(prog))
	require.Nil(t, rec.EndRun())
	require.Nil(t, w.Flush())

	doc, warnings, err := analyzeReader(&log, stats.AbsoluteThreshold(10*time.Millisecond))
	require.Nil(t, err)
	require.Len(t, warnings, 0)
	require.Equal(t, m.Executed(), doc.Events)
	require.NotNil(t, doc.RunSeconds)

	// The DIV error surfaced in the error-probability section.
	require.Len(t, doc.Errors, 1)
	require.Equal(t, "DIV", doc.Errors[0].Name)
	require.Equal(t, "divide-by-zero", doc.Errors[0].ClassTag)

	var buf bytes.Buffer
	require.Nil(t, report.Render(&buf, doc, report.Options{}))
	require.Contains(t, buf.String(), "Bayesian Analysis of Error Probabilities")
}

func TestExitCodes(t *testing.T) {
	require.Equal(t, ExitFailure, exitCodeFor(bytes.ErrTooLarge))
	require.Equal(t, ExitSourceUnavailable, exitCodeFor(&exitError{code: ExitSourceUnavailable, err: bytes.ErrTooLarge}))
	require.Equal(t, ExitNoData, exitCodeFor(&exitError{code: ExitNoData, err: bytes.ErrTooLarge}))
}
