// Package tracelog defines the line-oriented execution log that connects the
// in-process recorder to the offline analysis pipeline. The log is the sole
// contract between the two: the recorder side appends records through a
// Writer, and the analysis side decodes them with a Scanner.
//
// Each record is one UTF-8 line. Lines are independent and self-describing,
// so a single pass with O(opcode-space) memory decodes the whole log:
//
//	run start <uuid> <unix-nanoseconds>
//	op <code> <seconds> <errclass>
//	run end <uuid> <unix-nanoseconds>
//
// "run" is the reserved marker token that separates run-level lines from
// per-operation lines. <seconds> is fixed-point decimal with nine fractional
// digits. <errclass> is 0 when the operation completed without error.
package tracelog

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/deepnoodle-ai/optrace/op"
)

// ErrorClass identifies a class of operation failure. Zero means the
// operation completed without error.
type ErrorClass uint8

const (
	ErrNone           ErrorClass = 0
	ErrDivideByZero   ErrorClass = 1
	ErrStackUnderflow ErrorClass = 2
	ErrStackOverflow  ErrorClass = 3
)

// String returns the string representation of the error class.
func (c ErrorClass) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrDivideByZero:
		return "divide-by-zero"
	case ErrStackUnderflow:
		return "stack-underflow"
	case ErrStackOverflow:
		return "stack-overflow"
	default:
		return "unknown"
	}
}

// Event is one completed, timed execution of an opcode. Events are immutable
// once emitted and the log preserves their execution order.
type Event struct {
	Opcode  op.Code
	Elapsed time.Duration
	Err     ErrorClass
}

// MarkerKind distinguishes the start and end run markers.
type MarkerKind uint8

const (
	RunStart MarkerKind = iota
	RunEnd
)

// RunMarker is a run-level record carrying the run id and a wall-clock
// timestamp. Markers bound the overall elapsed time of a traced run; they do
// not contribute to per-opcode statistics.
type RunMarker struct {
	Kind MarkerKind
	ID   uuid.UUID
	Time time.Time
}

// RecordKind indicates which variant a Record holds.
type RecordKind uint8

const (
	KindEvent RecordKind = iota
	KindMarker
)

// Record is a decoded log line: either an Event or a RunMarker.
type Record struct {
	Kind   RecordKind
	Event  Event
	Marker RunMarker
}

// EventRecord wraps an Event as a Record.
func EventRecord(e Event) Record {
	return Record{Kind: KindEvent, Event: e}
}

// MarkerRecord wraps a RunMarker as a Record.
func MarkerRecord(m RunMarker) Record {
	return Record{Kind: KindMarker, Marker: m}
}
