// Package stats reduces a decoded event stream into per-opcode aggregates.
// The fold is commutative and associative over the multiset of events, so a
// log may be split arbitrarily, folded in parts, and merged without changing
// the result.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

// Aggregate holds the per-opcode reduction of the event stream. Aggregates
// are created lazily, one per opcode actually observed, and are never reset
// mid-analysis.
type Aggregate struct {
	// Count is the number of events observed for the opcode.
	Count int64

	// Total is the cumulative elapsed duration across all events.
	Total time.Duration

	// SlowCount is the number of events exceeding the slowness threshold.
	SlowCount int64

	// ErrorCount is the number of events with a non-zero error class.
	ErrorCount int64

	// Errors counts events per observed error class. A class with no
	// observed events has no entry, which is distinct from an entry of zero.
	Errors map[tracelog.ErrorClass]int64
}

// Mean returns the mean elapsed duration, or zero when no events were
// observed.
func (a *Aggregate) Mean() time.Duration {
	if a.Count == 0 {
		return 0
	}
	return a.Total / time.Duration(a.Count)
}

// ThresholdPolicy decides the slowness boundary used at fold time. The
// policy is a parameter so the same log can be re-analyzed under different
// slowness definitions.
type ThresholdPolicy interface {
	// Describe returns a human-readable description for the report.
	Describe() string
}

var (
	_ ThresholdPolicy = AbsoluteThreshold(0)
	_ ThresholdPolicy = MeanMultiple(0)
)

// AbsoluteThreshold classifies events with an elapsed duration strictly
// greater than the boundary as slow.
type AbsoluteThreshold time.Duration

// Describe implements ThresholdPolicy.
func (t AbsoluteThreshold) Describe() string {
	return fmt.Sprintf("absolute %s", tracelog.FormatSeconds(time.Duration(t)))
}

// MeanMultiple derives the slowness boundary as a multiple of the global
// mean event duration. It must be resolved against the totals of a complete
// pre-scan before folding, since the mean is not known up front.
type MeanMultiple float64

// Resolve derives an AbsoluteThreshold from the global totals.
func (m MeanMultiple) Resolve(total time.Duration, count int64) AbsoluteThreshold {
	if count == 0 {
		return 0
	}
	mean := float64(total) / float64(count)
	return AbsoluteThreshold(time.Duration(mean * float64(m)))
}

// Describe implements ThresholdPolicy.
func (m MeanMultiple) Describe() string {
	return fmt.Sprintf("%gx global mean", float64(m))
}

// Aggregator folds records into per-opcode aggregates. Memory is
// proportional to the number of opcodes actually seen, not the opcode space.
type Aggregator struct {
	threshold AbsoluteThreshold
	perOp     map[op.Code]*Aggregate
	events    int64

	runStart time.Time
	runEnd   time.Time
	hasStart bool
	hasEnd   bool
}

// NewAggregator creates an Aggregator that classifies slowness against the
// given threshold.
func NewAggregator(threshold AbsoluteThreshold) *Aggregator {
	return &Aggregator{
		threshold: threshold,
		perOp:     map[op.Code]*Aggregate{},
	}
}

// Threshold returns the slowness boundary in effect.
func (a *Aggregator) Threshold() time.Duration {
	return time.Duration(a.threshold)
}

// Fold consumes one decoded record. Run markers update the run span; events
// update the opcode's aggregate.
func (a *Aggregator) Fold(rec tracelog.Record) {
	if rec.Kind == tracelog.KindMarker {
		a.foldMarker(rec.Marker)
		return
	}
	e := rec.Event
	agg, ok := a.perOp[e.Opcode]
	if !ok {
		agg = &Aggregate{Errors: map[tracelog.ErrorClass]int64{}}
		a.perOp[e.Opcode] = agg
	}
	agg.Count++
	agg.Total += e.Elapsed
	if e.Elapsed > time.Duration(a.threshold) {
		agg.SlowCount++
	}
	if e.Err != tracelog.ErrNone {
		agg.ErrorCount++
		agg.Errors[e.Err]++
	}
	a.events++
}

func (a *Aggregator) foldMarker(m tracelog.RunMarker) {
	switch m.Kind {
	case tracelog.RunStart:
		// Earliest start wins so concatenated logs report the full span.
		if !a.hasStart || m.Time.Before(a.runStart) {
			a.runStart = m.Time
			a.hasStart = true
		}
	case tracelog.RunEnd:
		if !a.hasEnd || m.Time.After(a.runEnd) {
			a.runEnd = m.Time
			a.hasEnd = true
		}
	}
}

// Merge combines another Aggregator into this one. Both must use the same
// slowness threshold, otherwise the merged slow counts would be meaningless.
func (a *Aggregator) Merge(other *Aggregator) error {
	if a.threshold != other.threshold {
		return fmt.Errorf("threshold mismatch: %s vs %s",
			a.threshold.Describe(), other.threshold.Describe())
	}
	for code, src := range other.perOp {
		dst, ok := a.perOp[code]
		if !ok {
			dst = &Aggregate{Errors: map[tracelog.ErrorClass]int64{}}
			a.perOp[code] = dst
		}
		dst.Count += src.Count
		dst.Total += src.Total
		dst.SlowCount += src.SlowCount
		dst.ErrorCount += src.ErrorCount
		for class, n := range src.Errors {
			dst.Errors[class] += n
		}
	}
	a.events += other.events
	if other.hasStart {
		a.foldMarker(tracelog.RunMarker{Kind: tracelog.RunStart, Time: other.runStart})
	}
	if other.hasEnd {
		a.foldMarker(tracelog.RunMarker{Kind: tracelog.RunEnd, Time: other.runEnd})
	}
	return nil
}

// Summary returns the read-only result of the aggregation.
func (a *Aggregator) Summary() *Summary {
	return &Summary{
		PerOp:     a.perOp,
		Events:    a.events,
		Threshold: time.Duration(a.threshold),
		runStart:  a.runStart,
		runEnd:    a.runEnd,
		hasSpan:   a.hasStart && a.hasEnd,
	}
}

// Summary is the aggregation result consumed by the estimator and renderer.
type Summary struct {
	// PerOp maps each observed opcode to its aggregate.
	PerOp map[op.Code]*Aggregate

	// Events is the total number of events folded. It always equals the sum
	// of the per-opcode counts.
	Events int64

	// Threshold is the slowness boundary the aggregation used.
	Threshold time.Duration

	runStart time.Time
	runEnd   time.Time
	hasSpan  bool
}

// Opcodes returns the observed opcodes in ascending id order.
func (s *Summary) Opcodes() []op.Code {
	codes := make([]op.Code, 0, len(s.PerOp))
	for code := range s.PerOp {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// RunElapsed returns the overall run duration when both run markers were
// observed.
func (s *Summary) RunElapsed() (time.Duration, bool) {
	if !s.hasSpan {
		return 0, false
	}
	return s.runEnd.Sub(s.runStart), true
}
