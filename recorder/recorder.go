// Package recorder implements the in-process instrumentation half of the
// optrace pipeline. A Recorder is owned by exactly one execution stream: the
// host brackets every instruction dispatch with Start and Stop, and the
// Recorder accumulates per-opcode counts and cumulative time while emitting
// one event per completed operation to its sink.
//
// Start and Stop are O(1), allocation-free on the hot path, and never panic:
// recording problems are counted and reported, not allowed to crash the host.
// Hosts running multiple independent execution streams must give each stream
// its own Recorder and concatenate the resulting logs for analysis.
package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

var (
	// ErrInvalidOpcode indicates an opcode outside the valid id range.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrUnmatchedStop indicates a Stop with no pending Start for the opcode.
	ErrUnmatchedStop = errors.New("unmatched stop")
)

// Sink receives one record per completed operation and per run marker.
// *tracelog.Writer satisfies this interface.
type Sink interface {
	Write(tracelog.Record) error
}

// Conditions counts the recoverable recording-time conditions observed.
type Conditions struct {
	// InvalidOpcode counts Start/Stop calls with an out-of-range opcode.
	InvalidOpcode int64

	// UnmatchedStop counts Stop calls with no pending Start.
	UnmatchedStop int64

	// ReentrantStart counts Start calls that overwrote a pending Start
	// for the same opcode.
	ReentrantStart int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink sets the sink that receives completed events and run markers.
// Without a sink the Recorder only accumulates in-memory state.
func WithSink(sink Sink) Option {
	return func(r *Recorder) {
		r.sink = sink
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder accumulates per-opcode timing state for a single execution
// stream. The zero number of opcodes bounds all internal state, so Start and
// Stop never allocate.
type Recorder struct {
	sink Sink
	now  func() time.Time

	pending    [op.MaxCode + 1]time.Time
	hasPending [op.MaxCode + 1]bool
	counts     [op.MaxCode + 1]int64
	total      [op.MaxCode + 1]time.Duration
	errCounts  [op.MaxCode + 1]int64

	cond Conditions

	runID    uuid.UUID
	runStart time.Time
	runEnd   time.Time
}

// New creates a Recorder for one execution stream.
func New(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start records a pending start timestamp for the opcode. A second Start for
// the same opcode before its Stop overwrites the pending timestamp
// (last-write-wins) and is counted as a ReentrantStart condition, so the
// elapsed time reported is always for the most recent dispatch.
func (r *Recorder) Start(code op.Code) error {
	if !op.Valid(code) {
		r.cond.InvalidOpcode++
		return fmt.Errorf("%w: %d", ErrInvalidOpcode, code)
	}
	if r.hasPending[code] {
		r.cond.ReentrantStart++
	}
	r.pending[code] = r.now()
	r.hasPending[code] = true
	return nil
}

// Stop completes the pending operation for the opcode without an error class.
func (r *Recorder) Stop(code op.Code) error {
	return r.StopWithError(code, tracelog.ErrNone)
}

// StopWithError completes the pending operation for the opcode, attributing
// the elapsed time to it and tagging it with the given error class. A Stop
// with no pending Start is counted and ignored for accounting purposes.
func (r *Recorder) StopWithError(code op.Code, class tracelog.ErrorClass) error {
	if !op.Valid(code) {
		r.cond.InvalidOpcode++
		return fmt.Errorf("%w: %d", ErrInvalidOpcode, code)
	}
	if !r.hasPending[code] {
		r.cond.UnmatchedStop++
		return fmt.Errorf("%w: %s", ErrUnmatchedStop, op.Name(code))
	}
	elapsed := r.now().Sub(r.pending[code])
	if elapsed < 0 {
		elapsed = 0
	}
	r.hasPending[code] = false
	r.counts[code]++
	r.total[code] += elapsed
	if class != tracelog.ErrNone {
		r.errCounts[code]++
	}
	if r.sink != nil {
		event := tracelog.Event{Opcode: code, Elapsed: elapsed, Err: class}
		if err := r.sink.Write(tracelog.EventRecord(event)); err != nil {
			return fmt.Errorf("emit event: %w", err)
		}
	}
	return nil
}

// StartRun records the wall-clock start of the traced run and emits a run
// start marker. Calling StartRun again overwrites the previous span.
func (r *Recorder) StartRun() error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	r.runID = id
	r.runStart = r.now()
	r.runEnd = time.Time{}
	if r.sink != nil {
		marker := tracelog.RunMarker{Kind: tracelog.RunStart, ID: r.runID, Time: r.runStart}
		if err := r.sink.Write(tracelog.MarkerRecord(marker)); err != nil {
			return fmt.Errorf("emit run start: %w", err)
		}
	}
	return nil
}

// EndRun records the wall-clock end of the traced run and emits a run end
// marker. Calling EndRun again overwrites the previous end time.
func (r *Recorder) EndRun() error {
	r.runEnd = r.now()
	if r.sink != nil {
		marker := tracelog.RunMarker{Kind: tracelog.RunEnd, ID: r.runID, Time: r.runEnd}
		if err := r.sink.Write(tracelog.MarkerRecord(marker)); err != nil {
			return fmt.Errorf("emit run end: %w", err)
		}
	}
	return nil
}

// Count returns the number of completed operations recorded for the opcode.
func (r *Recorder) Count(code op.Code) int64 {
	if !op.Valid(code) {
		return 0
	}
	return r.counts[code]
}

// TotalTime returns the cumulative elapsed time recorded for the opcode.
func (r *Recorder) TotalTime(code op.Code) time.Duration {
	if !op.Valid(code) {
		return 0
	}
	return r.total[code]
}

// ErrorCount returns the number of errored operations recorded for the opcode.
func (r *Recorder) ErrorCount(code op.Code) int64 {
	if !op.Valid(code) {
		return 0
	}
	return r.errCounts[code]
}

// Conditions returns the recoverable condition counts observed so far.
func (r *Recorder) Conditions() Conditions {
	return r.cond
}

// RunID returns the id assigned by the most recent StartRun.
func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// RunSpan returns the recorded wall-clock start and end of the run. The end
// time is zero until EndRun is called.
func (r *Recorder) RunSpan() (start, end time.Time) {
	return r.runStart, r.runEnd
}
