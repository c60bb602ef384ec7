package tracelog

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/optrace/op"
)

// LineError describes one malformed log line. Malformed lines are skipped,
// never fatal: decoding continues with the next line.
type LineError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Scanner decodes a trace log from a reader in a single pass. It is a finite
// iterator and is not restartable without re-reading the source.
type Scanner struct {
	s        *bufio.Scanner
	line     int
	events   int
	markers  int
	warnings *multierror.Error
}

// NewScanner returns a Scanner that decodes records from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{s: bufio.NewScanner(r)}
}

// Next returns the next well-formed record. The second return value is false
// when the input is exhausted. Malformed lines are skipped and recorded as
// warnings; blank lines are ignored silently.
func (s *Scanner) Next() (Record, bool) {
	for s.s.Scan() {
		s.line++
		text := strings.TrimSpace(s.s.Text())
		if text == "" {
			continue
		}
		rec, lerr := parseLine(text, s.line)
		if lerr != nil {
			s.warnings = multierror.Append(s.warnings, lerr)
			continue
		}
		if rec.Kind == KindEvent {
			s.events++
		} else {
			s.markers++
		}
		return rec, true
	}
	return Record{}, false
}

// Err returns the error encountered while reading the source, if any. Line
// decoding problems are reported through Warnings, not here.
func (s *Scanner) Err() error {
	return s.s.Err()
}

// Warnings returns one error per malformed line encountered so far.
func (s *Scanner) Warnings() []error {
	if s.warnings == nil {
		return nil
	}
	return s.warnings.Errors
}

// WarningCount returns the number of malformed lines encountered so far.
func (s *Scanner) WarningCount() int {
	return len(s.Warnings())
}

// Events returns the number of well-formed event lines decoded so far.
func (s *Scanner) Events() int {
	return s.events
}

func parseLine(text string, line int) (Record, *LineError) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "op":
		return parseEventLine(fields, line)
	case "run":
		return parseMarkerLine(fields, line)
	default:
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("unknown record token %q", fields[0])}
	}
}

func parseEventLine(fields []string, line int) (Record, *LineError) {
	if len(fields) != 4 {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("op line has %d fields, want 4", len(fields))}
	}
	code, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil || !op.Valid(op.Code(code)) {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("opcode %q out of range", fields[1])}
	}
	seconds, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("invalid duration %q", fields[2])}
	}
	class, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("invalid error class %q", fields[3])}
	}
	return EventRecord(Event{
		Opcode:  op.Code(code),
		Elapsed: time.Duration(math.Round(seconds * float64(time.Second))),
		Err:     ErrorClass(class),
	}), nil
}

func parseMarkerLine(fields []string, line int) (Record, *LineError) {
	if len(fields) != 4 {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("run line has %d fields, want 4", len(fields))}
	}
	var kind MarkerKind
	switch fields[1] {
	case "start":
		kind = RunStart
	case "end":
		kind = RunEnd
	default:
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("unknown run marker %q", fields[1])}
	}
	id, err := uuid.FromString(fields[2])
	if err != nil {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("invalid run id %q", fields[2])}
	}
	nanos, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Record{}, &LineError{Line: line, Reason: fmt.Sprintf("invalid timestamp %q", fields[3])}
	}
	return MarkerRecord(RunMarker{Kind: kind, ID: id, Time: time.Unix(0, nanos)}), nil
}
