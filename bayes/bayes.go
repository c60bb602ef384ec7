// Package bayes computes posterior probability estimates over the aggregated
// event counts using a Beta–Bernoulli conjugate model. Under the uniform
// Beta(1,1) prior the posterior mean is the Laplace-smoothed proportion
// (1+k)/(2+n), which stays well-defined at n == 0 and strictly inside (0,1),
// so reporting code never needs ad hoc zero guards.
package bayes

import (
	"sort"
	"time"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/stats"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

// Estimate is a Beta–Bernoulli posterior over a probability, derived from k
// observed successes in n trials under a Beta(1,1) prior. Estimates are
// recomputed fresh each analysis and never persisted.
type Estimate struct {
	// K is the number of observed successes (slow events, or errors of one
	// class).
	K int64

	// N is the number of trials (all events for the opcode).
	N int64
}

// Mean returns the posterior mean (1+k)/(2+n). With no evidence this is 0.5:
// unknown, assume even odds.
func (e Estimate) Mean() float64 {
	return float64(1+e.K) / float64(2+e.N)
}

// Alpha returns the posterior Beta alpha parameter.
func (e Estimate) Alpha() float64 {
	return float64(1 + e.K)
}

// Beta returns the posterior Beta beta parameter.
func (e Estimate) Beta() float64 {
	return float64(1 + e.N - e.K)
}

// Slowness is the per-opcode slowness estimate.
type Slowness struct {
	Opcode   op.Code
	Count    int64
	MeanTime time.Duration
	PSlow    Estimate
}

// ErrorRate is the estimate for one (opcode, error class) pair. Pairs that
// were never observed have no entry at all, which is distinct from an
// observed probability near zero.
type ErrorRate struct {
	Opcode   op.Code
	Class    tracelog.ErrorClass
	Observed int64
	Count    int64
	PError   Estimate
}

// SlownessRanking returns one entry per observed opcode, ordered by
// descending posterior P(slow); ties break by descending event count, then
// ascending opcode id, so the output is deterministic.
func SlownessRanking(s *stats.Summary) []Slowness {
	out := make([]Slowness, 0, len(s.PerOp))
	for _, code := range s.Opcodes() {
		agg := s.PerOp[code]
		out = append(out, Slowness{
			Opcode:   code,
			Count:    agg.Count,
			MeanTime: agg.Mean(),
			PSlow:    Estimate{K: agg.SlowCount, N: agg.Count},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PSlow.Mean() != b.PSlow.Mean() {
			return a.PSlow.Mean() > b.PSlow.Mean()
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Opcode < b.Opcode
	})
	return out
}

// ErrorRanking returns one entry per (opcode, error class) pair observed,
// ordered by descending posterior P(error) with the same tie-break rule as
// the slowness ranking, plus ascending class id as the final tie-break.
func ErrorRanking(s *stats.Summary) []ErrorRate {
	var out []ErrorRate
	for _, code := range s.Opcodes() {
		agg := s.PerOp[code]
		classes := make([]tracelog.ErrorClass, 0, len(agg.Errors))
		for class := range agg.Errors {
			classes = append(classes, class)
		}
		sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
		for _, class := range classes {
			out = append(out, ErrorRate{
				Opcode:   code,
				Class:    class,
				Observed: agg.Errors[class],
				Count:    agg.Count,
				PError:   Estimate{K: agg.Errors[class], N: agg.Count},
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PError.Mean() != b.PError.Mean() {
			return a.PError.Mean() > b.PError.Mean()
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Opcode != b.Opcode {
			return a.Opcode < b.Opcode
		}
		return a.Class < b.Class
	})
	return out
}
