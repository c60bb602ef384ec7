package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/optrace/op"
)

// Parse decodes program text into instructions. Programs are line-oriented:
// one mnemonic per line with an optional integer operand, and "#" starts a
// comment.
//
//	push 6
//	push 7
//	mul     # 42
//	print
//	halt
func Parse(src string) ([]Instruction, error) {
	var prog []Instruction
	for i, line := range strings.Split(src, "\n") {
		lineNum := i + 1
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		code, ok := op.Lookup(strings.ToUpper(fields[0]))
		if !ok {
			return nil, fmt.Errorf("line %d: unknown instruction %q", lineNum, fields[0])
		}
		info := op.GetInfo(code)
		if len(fields) != 1+info.OperandCount {
			return nil, fmt.Errorf("line %d: %s takes %d operand(s), got %d",
				lineNum, info.Name, info.OperandCount, len(fields)-1)
		}
		instr := Instruction{Op: code, Line: lineNum}
		if info.OperandCount == 1 {
			operand, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid operand %q", lineNum, fields[1])
			}
			instr.Operand = operand
		}
		prog = append(prog, instr)
	}
	return prog, nil
}
