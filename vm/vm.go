// Package vm implements the minimal stack machine that hosts the optrace
// recorder. The machine exists to be measured: every instruction dispatch is
// bracketed with recorder Start/Stop calls, and operational failures map to
// the error classes carried in the trace log. Its little arithmetic language
// is not the subject of the pipeline.
package vm

import (
	"fmt"
	"io"

	"github.com/deepnoodle-ai/optrace/op"
	"github.com/deepnoodle-ai/optrace/recorder"
	"github.com/deepnoodle-ai/optrace/tracelog"
)

// MaxStackDepth bounds the value stack.
const MaxStackDepth = 1024

// Instruction is one decoded program instruction.
type Instruction struct {
	Op      op.Code
	Operand int64
	Line    int
}

// Option configures a Machine.
type Option func(*Machine)

// WithOutput sets the writer that PRINT instructions write to. Defaults to
// io.Discard so program output never interleaves with a log on stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) {
		m.out = w
	}
}

// Machine executes instructions on a bounded value stack, reporting every
// dispatch to its Recorder. Recording problems never interrupt execution.
type Machine struct {
	stack    [MaxStackDepth]int64
	sp       int
	rec      *recorder.Recorder
	out      io.Writer
	halted   bool
	executed int64
}

// New creates a Machine instrumented by the given Recorder. A nil Recorder
// runs the machine unmeasured.
func New(rec *recorder.Recorder, opts ...Option) *Machine {
	m := &Machine{sp: -1, rec: rec, out: io.Discard}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Executed returns the number of instructions dispatched so far.
func (m *Machine) Executed() int64 {
	return m.executed
}

// Run executes the program until it ends or a HALT instruction executes.
// Operational failures (divide by zero, stack underflow, stack overflow) are
// recorded against the failing instruction and execution continues with the
// next instruction.
func (m *Machine) Run(prog []Instruction) error {
	for _, instr := range prog {
		if m.halted {
			break
		}
		if m.rec != nil {
			// Recording conditions are counted by the recorder; they must
			// not crash the interpreted program.
			_ = m.rec.Start(instr.Op)
		}
		class := m.exec(instr)
		m.executed++
		if m.rec != nil {
			if class == tracelog.ErrNone {
				_ = m.rec.Stop(instr.Op)
			} else {
				_ = m.rec.StopWithError(instr.Op, class)
			}
		}
	}
	return nil
}

func (m *Machine) exec(instr Instruction) tracelog.ErrorClass {
	switch instr.Op {
	case op.Nop:
		return tracelog.ErrNone
	case op.Halt:
		m.halted = true
		return tracelog.ErrNone
	case op.Push:
		if m.sp+1 >= MaxStackDepth {
			return tracelog.ErrStackOverflow
		}
		m.sp++
		m.stack[m.sp] = instr.Operand
		return tracelog.ErrNone
	case op.Pop:
		if m.sp < 0 {
			return tracelog.ErrStackUnderflow
		}
		m.sp--
		return tracelog.ErrNone
	case op.Dup:
		if m.sp < 0 {
			return tracelog.ErrStackUnderflow
		}
		if m.sp+1 >= MaxStackDepth {
			return tracelog.ErrStackOverflow
		}
		m.sp++
		m.stack[m.sp] = m.stack[m.sp-1]
		return tracelog.ErrNone
	case op.Swap:
		if m.sp < 1 {
			return tracelog.ErrStackUnderflow
		}
		m.stack[m.sp], m.stack[m.sp-1] = m.stack[m.sp-1], m.stack[m.sp]
		return tracelog.ErrNone
	case op.Add, op.Sub, op.Mul, op.Div, op.Mod:
		return m.binaryOp(instr.Op)
	case op.Neg:
		if m.sp < 0 {
			return tracelog.ErrStackUnderflow
		}
		m.stack[m.sp] = -m.stack[m.sp]
		return tracelog.ErrNone
	case op.Print:
		if m.sp < 0 {
			return tracelog.ErrStackUnderflow
		}
		fmt.Fprintln(m.out, m.stack[m.sp])
		m.sp--
		return tracelog.ErrNone
	default:
		return tracelog.ErrNone
	}
}

// binaryOp pops two operands and pushes the result. On divide-by-zero the
// operands are consumed and nothing is pushed.
func (m *Machine) binaryOp(code op.Code) tracelog.ErrorClass {
	if m.sp < 1 {
		return tracelog.ErrStackUnderflow
	}
	b := m.stack[m.sp]
	a := m.stack[m.sp-1]
	m.sp -= 2
	var result int64
	switch code {
	case op.Add:
		result = a + b
	case op.Sub:
		result = a - b
	case op.Mul:
		result = a * b
	case op.Div:
		if b == 0 {
			return tracelog.ErrDivideByZero
		}
		result = a / b
	case op.Mod:
		if b == 0 {
			return tracelog.ErrDivideByZero
		}
		result = a % b
	}
	m.sp++
	m.stack[m.sp] = result
	return tracelog.ErrNone
}
