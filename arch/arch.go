// Package arch defines the polymorphic back-end capability set (spec §9
// "Architecture dispatch"): a Backend interface every supported CPU family
// implements, the shared LIR data types (Register, Operand, Op), and the
// Platform Descriptor each Backend is paired with.
//
// A language-neutral implementation, per the spec's own design note, "may
// instead expose all back-ends as siblings behind a polymorphic emitter
// capability set" rather than picking one at build time the way the original
// C library does; this package is that capability set.
package arch

import "fmt"

// Register is a virtual register index, 1..Descriptor.NumRegs (spec §3).
// Index 0 is reserved for Unused. FP registers use the same type against a
// separate namespace (Descriptor.NumFRegs).
type Register uint8

// OperandKind discriminates the tagged-variant Operand representation spec
// §9 endorses as an alternative to the bit-packed integer encoding, provided
// the documented bit layout is preserved at the trace/validate boundary
// (see trace.go / validate.go in the root package).
type OperandKind uint8

const (
	KindUnused OperandKind = iota
	KindImm
	KindReg
	KindFReg
	KindMem
	KindMemIndexed
)

// Operand is the source/destination encoding of spec §3/§4.2: an immediate,
// a register, or a memory reference in base or base+index<<shift form.
type Operand struct {
	Kind  OperandKind
	Reg   Register // base register (Mem/MemIndexed) or the operand register (Reg/FReg)
	Index Register // index register, MemIndexed only
	Shift uint8     // 0..3; scale = 1<<Shift
	Imm   int64     // immediate value, or the [reg+imm] offset
}

// IsUnused reports whether this is the sentinel "discard" operand (spec §3).
func (o Operand) IsUnused() bool { return o.Kind == KindUnused }

// Imm builds an immediate operand.
func Imm(v int64) Operand { return Operand{Kind: KindImm, Imm: v} }

// Reg builds a general-purpose register operand.
func Reg(r Register) Operand { return Operand{Kind: KindReg, Reg: r} }

// FReg builds a floating-point register operand.
func FReg(r Register) Operand { return Operand{Kind: KindFReg, Reg: r} }

// Mem builds a [base+imm] memory operand.
func Mem(base Register, offset int32) Operand {
	return Operand{Kind: KindMem, Reg: base, Imm: int64(offset)}
}

// MemIndexed builds a [base + index<<shift] memory operand. shift must be in
// [0,3] (spec §4.2).
func MemIndexed(base, index Register, shift uint8) Operand {
	return Operand{Kind: KindMemIndexed, Reg: base, Index: index, Shift: shift}
}

// Unused is the sentinel destination meaning "discard the result".
var Unused = Operand{Kind: KindUnused}

// Op is an LIR opcode combined with its modifier bits. The group base offsets
// and modifier bit positions are preserved from the original C library
// (sljitLir.h's SLJIT_OP1_BASE/SLJIT_OP2_BASE/SLJIT_INT_OP/SLJIT_SET_* family)
// so that the bit layout spec §9 references is stable and documented.
type Op uint16

const (
	Op0Base  Op = 0
	Op1Base  Op = 32
	Op2Base  Op = 64
	Fop1Base Op = 96
	Fop2Base Op = 128

	opMask Op = 0x00FF
)

// Modifier bits, OR'd onto a base opcode. IntOp and SingleOp share a bit
// position (spec §4.1): IntOp narrows an integer op to 32-bit semantics on a
// 64-bit machine, SingleOp narrows a float op to single precision.
const (
	IntOp     Op = 0x0100
	SingleOp  Op = 0x0100
	SetE      Op = 0x0200
	SetU      Op = 0x0400
	SetS      Op = 0x0800
	SetO      Op = 0x1000
	SetC      Op = 0x2000
	KeepFlags Op = 0x4000
)

// Base strips modifier bits, returning the bare opcode.
func (o Op) Base() Op { return o & opMask }

// Has reports whether every bit in mod is set on o.
func (o Op) Has(mod Op) bool { return o&mod == mod }

// op0: no operands (implicit R0/R1 for long multiply/divide results).
const (
	Breakpoint Op = Op0Base + iota
	Nop
	LMulSigned
	LMulUnsigned
	LDivSigned
	LDivUnsigned
)

// op1: dst, src.
const (
	Mov Op = Op1Base + iota
	MovUB
	MovSB
	MovUH
	MovSH
	MovUI
	MovSI
	MovP
	MovuB  // pre-update variants (spec §4.1 MOVU*)
	MovuUB
	MovuSB
	MovuUH
	MovuSH
	MovuUI
	MovuSI
	MovuP
	Not
	Neg
	Clz
)

// op2: dst, src1, src2.
const (
	Add Op = Op2Base + iota
	Addc
	Sub
	Subc
	Mul
	And
	Or
	Xor
	Shl
	Lshr
	Ashr
)

// fop1: fdst, fsrc.
const (
	FMov Op = Fop1Base + iota
	FConvD2S
	FConvS2D
	FConvW2D // signed integer word -> double
	FConvD2W // double -> signed integer word, truncating
	FCmp
	FNeg
	FAbs
)

// fop2: fdst, fsrc1, fsrc2.
const (
	FAdd Op = Fop2Base + iota
	FSub
	FMul
	FDiv
)

// Comparison/jump types, shared by Jump/Cmp/Ijump (spec §4.5/§6). Values
// preserved from the original library's SLJIT_EQUAL..SLJIT_NOT_OVERFLOW
// ordering so cond^1 toggles EQUAL<->NOT_EQUAL etc. the same way.
type Cond uint8

const (
	Equal Cond = iota
	NotEqual
	Less
	GreaterEqual
	Greater
	LessEqual
	SigLess
	SigGreaterEqual
	SigGreater
	SigLessEqual
	Overflow
	NotOverflow
	MulOverflow
	MulNotOverflow
	// Floating point
	FEqual
	FNotEqual
	FLess
	FGreaterEqual
	FGreater
	FLessEqual
	FUnordered
	FOrdered
	// Unconditional
	JumpAlways
	// Calls (ijump target kinds)
	Call0
	Call1
	Call2
	Call3
)

// FlagLegality reports which SET_* modifiers a base opcode accepts (spec
// §4.1's per-opcode flag-legality table). KeepFlags is never itself listed:
// it is legal exactly when no SET_* bit is requested at all.
func FlagLegality(base Op) Op {
	switch base {
	case Not, And, Or, Xor, Shl, Lshr, Ashr, Clz:
		return SetE
	case Add:
		return SetE | SetO | SetC
	case Sub:
		return SetE | SetS | SetO | SetC
	case Addc, Subc:
		return SetC
	case Mul:
		return SetO
	case Neg:
		return SetE | SetS | SetO | SetC
	default:
		return 0
	}
}

func (c Cond) String() string {
	names := [...]string{
		"e", "ne", "less", "ge", "greater", "le",
		"sig_less", "sig_ge", "sig_greater", "sig_le",
		"o", "no", "mulo", "mulno",
		"f_e", "f_ne", "f_less", "f_ge", "f_greater", "f_le", "f_un", "f_ord",
		"jump", "call0", "call1", "call2", "call3",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("cond(%d)", c)
}
