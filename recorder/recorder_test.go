package recorder

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

// fakeClock returns a clock that advances by step on every reading.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestStartStopAccumulates(t *testing.T) {
	r := New(WithClock(fakeClock(time.Unix(0, 0), 2*time.Millisecond)))

	require.Nil(t, r.Start(op.Add))
	require.Nil(t, r.Stop(op.Add))
	require.Nil(t, r.Start(op.Add))
	require.Nil(t, r.Stop(op.Add))

	require.Equal(t, int64(2), r.Count(op.Add))
	require.Equal(t, 4*time.Millisecond, r.TotalTime(op.Add))
	require.Equal(t, int64(0), r.ErrorCount(op.Add))
	require.Equal(t, Conditions{}, r.Conditions())
}

func TestStopWithErrorCountsError(t *testing.T) {
	r := New(WithClock(fakeClock(time.Unix(0, 0), time.Millisecond)))

	require.Nil(t, r.Start(op.Div))
	require.Nil(t, r.StopWithError(op.Div, tracelog.ErrDivideByZero))

	require.Equal(t, int64(1), r.Count(op.Div))
	require.Equal(t, int64(1), r.ErrorCount(op.Div))
}

func TestInvalidOpcode(t *testing.T) {
	r := New()

	err := r.Start(op.MaxCode + 1)
	require.NotNil(t, err)
	require.ErrorIs(t, err, ErrInvalidOpcode)

	err = r.Stop(op.MaxCode + 1)
	require.ErrorIs(t, err, ErrInvalidOpcode)

	require.Equal(t, int64(2), r.Conditions().InvalidOpcode)
	require.Equal(t, int64(0), r.Count(op.MaxCode+1))
}

func TestUnmatchedStop(t *testing.T) {
	r := New()

	err := r.Stop(op.Add)
	require.ErrorIs(t, err, ErrUnmatchedStop)
	require.Equal(t, int64(1), r.Conditions().UnmatchedStop)
	require.Equal(t, int64(0), r.Count(op.Add))
	require.Equal(t, time.Duration(0), r.TotalTime(op.Add))
}

func TestReentrantStartOverwrites(t *testing.T) {
	// Clock readings: first Start t=0, second Start t=5ms, Stop t=10ms.
	// The second Start wins, so elapsed is 5ms, not 10ms.
	r := New(WithClock(fakeClock(time.Unix(0, 0), 5*time.Millisecond)))

	require.Nil(t, r.Start(op.Mul))
	require.Nil(t, r.Start(op.Mul))
	require.Nil(t, r.Stop(op.Mul))

	require.Equal(t, int64(1), r.Count(op.Mul))
	require.Equal(t, 5*time.Millisecond, r.TotalTime(op.Mul))
	require.Equal(t, int64(1), r.Conditions().ReentrantStart)
}

func TestRunSpan(t *testing.T) {
	r := New(WithClock(fakeClock(time.Unix(100, 0), time.Second)))

	require.Nil(t, r.StartRun())
	require.Nil(t, r.EndRun())

	start, end := r.RunSpan()
	require.Equal(t, time.Unix(100, 0), start)
	require.Equal(t, time.Unix(101, 0), end)
	require.NotEqual(t, "", r.RunID().String())

	// Last-write-wins on a second StartRun.
	require.Nil(t, r.StartRun())
	start, end = r.RunSpan()
	require.Equal(t, time.Unix(102, 0), start)
	require.True(t, end.IsZero())
}

func TestEventsEmittedToSink(t *testing.T) {
	var buf bytes.Buffer
	w := tracelog.NewWriter(&buf)
	r := New(
		WithSink(w),
		WithClock(fakeClock(time.Unix(0, 0), 3*time.Millisecond)),
	)

	require.Nil(t, r.StartRun())
	require.Nil(t, r.Start(op.Add))
	require.Nil(t, r.Stop(op.Add))
	require.Nil(t, r.Start(op.Div))
	require.Nil(t, r.StopWithError(op.Div, tracelog.ErrDivideByZero))
	require.Nil(t, r.EndRun())
	require.Nil(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "run start "))
	require.Equal(t, "op 20 0.003000000 0", lines[1])
	require.Equal(t, "op 23 0.003000000 1", lines[2])
	require.True(t, strings.HasPrefix(lines[3], "run end "))

	// The emitted log decodes back to the same events, in order.
	s := tracelog.NewScanner(&buf)
	var kinds []tracelog.RecordKind
	for {
		rec, ok := s.Next()
		if !ok {
			break
		}
		kinds = append(kinds, rec.Kind)
	}
	require.Equal(t, []tracelog.RecordKind{
		tracelog.KindMarker,
		tracelog.KindEvent,
		tracelog.KindEvent,
		tracelog.KindMarker,
	}, kinds)
	require.Equal(t, 0, s.WarningCount())
}
