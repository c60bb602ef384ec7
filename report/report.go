// Package report renders the offline analysis result for human consumption:
// a Diagnostic Summary followed by the two Bayesian Analysis sections. The
// text output is byte-deterministic for a given log, so re-running an
// analysis yields an identical report.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/optrace/bayes"
	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/stats"
)

// SummaryRow is one Diagnostic Summary line.
type SummaryRow struct {
	Opcode      uint16  `json:"opcode"`
	Name        string  `json:"name"`
	Count       int64   `json:"count"`
	MeanSeconds float64 `json:"mean_seconds"`
	Errors      int64   `json:"errors"`
}

// SlownessRow is one execution-time analysis line.
type SlownessRow struct {
	Opcode      uint16  `json:"opcode"`
	Name        string  `json:"name"`
	Count       int64   `json:"count"`
	SlowCount   int64   `json:"slow_count"`
	MeanSeconds float64 `json:"mean_seconds"`
	PSlow       float64 `json:"p_slow"`
}

// ErrorRow is one error-probability analysis line.
type ErrorRow struct {
	Opcode   uint16  `json:"opcode"`
	Name     string  `json:"name"`
	Class    uint8   `json:"class"`
	ClassTag string  `json:"class_name"`
	Observed int64   `json:"observed"`
	Count    int64   `json:"count"`
	PError   float64 `json:"p_error"`
}

// Document is the complete report content. It renders to text via Render and
// marshals directly to JSON for machine consumption.
type Document struct {
	Events           int64         `json:"events"`
	ThresholdSeconds float64       `json:"slow_threshold_seconds"`
	ParseWarnings    int           `json:"parse_warnings"`
	RunSeconds       *float64      `json:"run_seconds,omitempty"`
	Summary          []SummaryRow  `json:"diagnostic_summary"`
	Slowness         []SlownessRow `json:"execution_time_analysis"`
	Errors           []ErrorRow    `json:"error_probability_analysis"`
}

// New builds a Document from an aggregation summary. The warning count is
// reported as a structured notice so malformed input is never silently
// truncated.
func New(s *stats.Summary, warnings int) *Document {
	doc := &Document{
		Events:           s.Events,
		ThresholdSeconds: s.Threshold.Seconds(),
		ParseWarnings:    warnings,
	}
	if elapsed, ok := s.RunElapsed(); ok {
		seconds := elapsed.Seconds()
		doc.RunSeconds = &seconds
	}
	for _, code := range s.Opcodes() {
		agg := s.PerOp[code]
		doc.Summary = append(doc.Summary, SummaryRow{
			Opcode:      uint16(code),
			Name:        op.Name(code),
			Count:       agg.Count,
			MeanSeconds: agg.Mean().Seconds(),
			Errors:      agg.ErrorCount,
		})
	}
	for _, entry := range bayes.SlownessRanking(s) {
		doc.Slowness = append(doc.Slowness, SlownessRow{
			Opcode:      uint16(entry.Opcode),
			Name:        op.Name(entry.Opcode),
			Count:       entry.Count,
			SlowCount:   entry.PSlow.K,
			MeanSeconds: entry.MeanTime.Seconds(),
			PSlow:       entry.PSlow.Mean(),
		})
	}
	for _, entry := range bayes.ErrorRanking(s) {
		doc.Errors = append(doc.Errors, ErrorRow{
			Opcode:   uint16(entry.Opcode),
			Name:     op.Name(entry.Opcode),
			Class:    uint8(entry.Class),
			ClassTag: entry.Class.String(),
			Observed: entry.Observed,
			Count:    entry.Count,
			PError:   entry.PError.Mean(),
		})
	}
	return doc
}

// Options controls text rendering.
type Options struct {
	// Color enables ANSI styling of section headings.
	Color bool
}

// Render writes the three report sections to w in fixed order.
func Render(w io.Writer, doc *Document, opts Options) error {
	heading := func(s string) string { return s }
	notice := func(s string) string { return s }
	if opts.Color {
		headingColor := color.New(color.FgYellow, color.Bold)
		noticeColor := color.New(color.FgCyan)
		heading = func(s string) string { return headingColor.Sprint(s) }
		notice = func(s string) string { return noticeColor.Sprint(s) }
	}

	fmt.Fprintf(w, "events: %d\n", doc.Events)
	fmt.Fprintf(w, "slow threshold: %.6f s\n", doc.ThresholdSeconds)
	if doc.RunSeconds != nil {
		fmt.Fprintf(w, "run time: %.6f s\n", *doc.RunSeconds)
	}
	if doc.ParseWarnings > 0 {
		fmt.Fprintf(w, "%s\n", notice(fmt.Sprintf("note: %d malformed line(s) skipped", doc.ParseWarnings)))
	}
	fmt.Fprintln(w)

	if doc.Events == 0 {
		fmt.Fprintf(w, "%s\n", notice("no data: no well-formed events were decoded"))
		return nil
	}

	fmt.Fprintf(w, "%s\n", heading("Diagnostic Summary"))
	fmt.Fprintln(w, "------------------")
	fmt.Fprintf(w, "%6s  %-8s  %7s  %10s  %7s\n", "OPCODE", "NAME", "COUNT", "MEAN(S)", "ERRORS")
	for _, row := range doc.Summary {
		fmt.Fprintf(w, "%6d  %-8s  %7d  %10.6f  %7d\n",
			row.Opcode, row.Name, row.Count, row.MeanSeconds, row.Errors)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s\n", heading("Bayesian Analysis of Execution Times"))
	fmt.Fprintln(w, "------------------------------------")
	fmt.Fprintf(w, "%6s  %-8s  %7s  %10s  %8s\n", "OPCODE", "NAME", "COUNT", "MEAN(S)", "P(SLOW)")
	for _, row := range doc.Slowness {
		fmt.Fprintf(w, "%6d  %-8s  %7d  %10.6f  %8.4f\n",
			row.Opcode, row.Name, row.Count, row.MeanSeconds, row.PSlow)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s\n", heading("Bayesian Analysis of Error Probabilities"))
	fmt.Fprintln(w, "----------------------------------------")
	if len(doc.Errors) == 0 {
		fmt.Fprintf(w, "%s\n", notice("no errors observed"))
		return nil
	}
	fmt.Fprintf(w, "%6s  %-8s  %5s  %-16s  %8s  %9s\n",
		"OPCODE", "NAME", "CLASS", "DESCRIPTION", "OBSERVED", "P(ERROR)")
	for _, row := range doc.Errors {
		fmt.Fprintf(w, "%6d  %-8s  %5d  %-16s  %8d  %9.4f\n",
			row.Opcode, row.Name, row.Class, row.ClassTag, row.Observed, row.PError)
	}
	return nil
}
