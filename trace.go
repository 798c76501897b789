package lirjit

import (
	"fmt"
	"io"
	"os"
	"strings"

	"lirjit/arch"
)

// traceWriter is the verbose-trace sink (spec §6 "Verbose trace format"),
// gated by a per-Compiler switch rather than wired through a logging
// library, the same way the teacher gates debug output with a plain
// VerboseMode bool and fmt.Fprintf to an io.Writer instead of reaching for a
// structured logger.
type traceWriter struct {
	w io.Writer
}

// SetTrace enables or disables verbose tracing for c, writing one line per
// emitted LIR instruction to w. Passing a nil w disables tracing.
func (c *Compiler) SetTrace(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w == nil {
		c.verbose = false
		c.trace = nil
		return
	}
	c.verbose = true
	c.trace = &traceWriter{w: w}
}

// SetTraceStderr is a convenience wrapper around SetTrace(os.Stderr).
func (c *Compiler) SetTraceStderr() { c.SetTrace(os.Stderr) }

var op1Names = map[arch.Op]string{
	arch.Mov: "mov", arch.MovUB: "mov.ub", arch.MovSB: "mov.sb",
	arch.MovUH: "mov.uh", arch.MovSH: "mov.sh", arch.MovUI: "mov.ui",
	arch.MovSI: "mov.si", arch.MovP: "mov.p",
	arch.MovuB: "movu.b", arch.MovuUB: "movu.ub", arch.MovuSB: "movu.sb",
	arch.MovuUH: "movu.uh", arch.MovuSH: "movu.sh", arch.MovuUI: "movu.ui",
	arch.MovuSI: "movu.si", arch.MovuP: "movu.p",
	arch.Not: "not", arch.Neg: "neg", arch.Clz: "clz",
}

var op2Names = map[arch.Op]string{
	arch.Add: "add", arch.Addc: "addc", arch.Sub: "sub", arch.Subc: "subc",
	arch.Mul: "mul", arch.And: "and", arch.Or: "or", arch.Xor: "xor",
	arch.Shl: "shl", arch.Lshr: "lshr", arch.Ashr: "ashr",
}

var fop1Names = map[arch.Op]string{
	arch.FMov: "fmov", arch.FConvD2S: "fconv.d2s", arch.FConvS2D: "fconv.s2d",
	arch.FConvW2D: "fconv.w2d", arch.FConvD2W: "fconv.d2w",
	arch.FCmp: "fcmp", arch.FNeg: "fneg", arch.FAbs: "fabs",
}

var fop2Names = map[arch.Op]string{
	arch.FAdd: "fadd", arch.FSub: "fsub", arch.FMul: "fmul", arch.FDiv: "fdiv",
}

var op0Names = map[arch.Op]string{
	arch.Breakpoint: "breakpoint", arch.Nop: "nop",
	arch.LMulSigned: "lmul.s", arch.LMulUnsigned: "lmul.u",
	arch.LDivSigned: "ldiv.s", arch.LDivUnsigned: "ldiv.u",
}

// mnemonic renders op's base opcode plus the suffix letters spec §6
// specifies for each modifier bit present (.e .u .s .o .c .k).
func mnemonic(names map[arch.Op]string, op arch.Op) string {
	base := op.Base()
	name, ok := names[base]
	if !ok {
		name = fmt.Sprintf("op(%d)", base)
	}
	var suffix strings.Builder
	if op.Has(arch.SetE) {
		suffix.WriteString(".e")
	}
	if op.Has(arch.SetU) {
		suffix.WriteString(".u")
	}
	if op.Has(arch.SetS) {
		suffix.WriteString(".s")
	}
	if op.Has(arch.SetO) {
		suffix.WriteString(".o")
	}
	if op.Has(arch.SetC) {
		suffix.WriteString(".c")
	}
	if op.Has(arch.KeepFlags) {
		suffix.WriteString(".k")
	}
	return name + suffix.String()
}

// renderOperand formats op per spec §6: #imm, rN, sN (scratch vs saved named
// the same rN here since this module keeps one flat virtual register space;
// a more elaborate printer could split at NumScratchRegs), or
// [base + index*2^shift + imm].
func renderOperand(op Operand) string {
	switch op.Kind {
	case arch.KindUnused:
		return "_"
	case arch.KindImm:
		return fmt.Sprintf("#%d", op.Imm)
	case arch.KindReg:
		return fmt.Sprintf("r%d", op.Reg)
	case arch.KindFReg:
		return fmt.Sprintf("f%d", op.Reg)
	case arch.KindMem:
		if op.Imm == 0 {
			return fmt.Sprintf("[r%d]", op.Reg)
		}
		return fmt.Sprintf("[r%d + %d]", op.Reg, op.Imm)
	case arch.KindMemIndexed:
		return fmt.Sprintf("[r%d + r%d*%d]", op.Reg, op.Index, int(1)<<op.Shift)
	default:
		return "?"
	}
}

func (c *Compiler) emitTrace(names map[arch.Op]string, op arch.Op, operands ...Operand) {
	if !c.verbose || c.trace == nil {
		return
	}
	parts := make([]string, len(operands))
	for i, o := range operands {
		parts[i] = renderOperand(o)
	}
	line := mnemonic(names, op)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	fmt.Fprintln(c.trace.w, line)
}

func (c *Compiler) traceOp0(op arch.Op)                       { c.emitTrace(op0Names, op) }
func (c *Compiler) traceOp1(op arch.Op, dst, src Operand)     { c.emitTrace(op1Names, op, dst, src) }
func (c *Compiler) traceOp2(op arch.Op, dst, a, b Operand)    { c.emitTrace(op2Names, op, dst, a, b) }
func (c *Compiler) traceFop1(op arch.Op, dst, src Operand)    { c.emitTrace(fop1Names, op, dst, src) }
func (c *Compiler) traceFop2(op arch.Op, dst, a, b Operand)   { c.emitTrace(fop2Names, op, dst, a, b) }
