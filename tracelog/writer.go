package tracelog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
)

// Writer emits trace log records, one line per record. Output is buffered;
// call Flush (or Close) before discarding the Writer.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer that emits records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits a single record.
func (w *Writer) Write(rec Record) error {
	switch rec.Kind {
	case KindEvent:
		return w.WriteEvent(rec.Event)
	case KindMarker:
		return w.WriteMarker(rec.Marker)
	default:
		return fmt.Errorf("unknown record kind: %d", rec.Kind)
	}
}

// WriteEvent emits one completed operation.
func (w *Writer) WriteEvent(e Event) error {
	_, err := fmt.Fprintf(w.w, "op %d %s %d\n",
		e.Opcode, FormatSeconds(e.Elapsed), e.Err)
	return err
}

// WriteMarker emits a run-level start or end line.
func (w *Writer) WriteMarker(m RunMarker) error {
	kind := "start"
	if m.Kind == RunEnd {
		kind = "end"
	}
	_, err := fmt.Fprintf(w.w, "run %s %s %d\n", kind, m.ID, m.Time.UnixNano())
	return err
}

// WriteRunStart emits a run start marker.
func (w *Writer) WriteRunStart(id uuid.UUID, t time.Time) error {
	return w.WriteMarker(RunMarker{Kind: RunStart, ID: id, Time: t})
}

// WriteRunEnd emits a run end marker.
func (w *Writer) WriteRunEnd(id uuid.UUID, t time.Time) error {
	return w.WriteMarker(RunMarker{Kind: RunEnd, ID: id, Time: t})
}

// Flush writes any buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// FormatSeconds renders a duration as fixed-point seconds with nine
// fractional digits, the form used by op lines.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 9, 64)
}
