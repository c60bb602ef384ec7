// Package op defines the opcodes measured by the optrace recorder and
// executed by the host machine.
package op

import "fmt"

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

// MaxCode is the largest valid opcode id. The recorder and the log parser
// reject anything above it.
const MaxCode Code = 255

const (
	Invalid Code = 0

	// Execution
	Nop  Code = 1
	Halt Code = 2

	// Stack
	Push Code = 10
	Pop  Code = 11
	Dup  Code = 12
	Swap Code = 13

	// Arithmetic
	Add Code = 20
	Sub Code = 21
	Mul Code = 22
	Div Code = 23
	Mod Code = 24
	Neg Code = 25

	// Output
	Print Code = 30
)

// Valid indicates whether the given opcode is within the measurable id range.
func Valid(code Code) bool {
	return code <= MaxCode
}

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, MaxCode+1)

var byName = map[string]Code{}

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{Add, "ADD", 0},
		{Div, "DIV", 0},
		{Dup, "DUP", 0},
		{Halt, "HALT", 0},
		{Mod, "MOD", 0},
		{Mul, "MUL", 0},
		{Neg, "NEG", 0},
		{Nop, "NOP", 0},
		{Pop, "POP", 0},
		{Print, "PRINT", 0},
		{Push, "PUSH", 1},
		{Sub, "SUB", 0},
		{Swap, "SWAP", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
		byName[o.name] = o.op
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(code Code) Info {
	if !Valid(code) {
		return Info{Code: code}
	}
	return infos[code]
}

// Name returns the mnemonic for the given opcode. Valid opcodes without a
// registered mnemonic render as "OP_<id>" so they are never dropped from
// reports unaccounted.
func Name(code Code) string {
	if Valid(code) {
		if name := infos[code].Name; name != "" {
			return name
		}
	}
	return fmt.Sprintf("OP_%d", code)
}

// Lookup resolves a mnemonic to its opcode.
func Lookup(name string) (Code, bool) {
	code, ok := byName[name]
	return code, ok
}
