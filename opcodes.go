package lirjit

import "lirjit/arch"

// Op is an LIR opcode combined with its modifier bits (spec §4.1). The group
// base offsets and modifier bit positions are preserved from the original C
// library so the bit layout spec §9 references is stable and documented.
type Op = arch.Op

// Cond is a comparison/jump/call kind, shared by Jump/Cmp/Ijump (spec
// §4.5/§6).
type Cond = arch.Cond

// Modifier bits, OR'd onto a base opcode. IntOp and SingleOp share a bit
// position: IntOp narrows an integer op to 32-bit semantics on a 64-bit
// machine, SingleOp narrows a float op to single precision.
const (
	IntOp     = arch.IntOp
	SingleOp  = arch.SingleOp
	SetE      = arch.SetE
	SetU      = arch.SetU
	SetS      = arch.SetS
	SetO      = arch.SetO
	SetC      = arch.SetC
	KeepFlags = arch.KeepFlags
)

// op0: no operands (implicit R0/R1 for long multiply/divide results).
const (
	Breakpoint = arch.Breakpoint
	Nop        = arch.Nop
	LMulSigned = arch.LMulSigned
	LMulUnsigned = arch.LMulUnsigned
	LDivSigned   = arch.LDivSigned
	LDivUnsigned = arch.LDivUnsigned
)

// op1: dst, src.
const (
	Mov    = arch.Mov
	MovUB  = arch.MovUB
	MovSB  = arch.MovSB
	MovUH  = arch.MovUH
	MovSH  = arch.MovSH
	MovUI  = arch.MovUI
	MovSI  = arch.MovSI
	MovP   = arch.MovP
	MovuB  = arch.MovuB
	MovuUB = arch.MovuUB
	MovuSB = arch.MovuSB
	MovuUH = arch.MovuUH
	MovuSH = arch.MovuSH
	MovuUI = arch.MovuUI
	MovuSI = arch.MovuSI
	MovuP  = arch.MovuP
	Not    = arch.Not
	Neg    = arch.Neg
	Clz    = arch.Clz
)

// op2: dst, src1, src2.
const (
	Add  = arch.Add
	Addc = arch.Addc
	Sub  = arch.Sub
	Subc = arch.Subc
	Mul  = arch.Mul
	And  = arch.And
	Or   = arch.Or
	Xor  = arch.Xor
	Shl  = arch.Shl
	Lshr = arch.Lshr
	Ashr = arch.Ashr
)

// fop1: fdst, fsrc.
const (
	FMov     = arch.FMov
	FConvD2S = arch.FConvD2S
	FConvS2D = arch.FConvS2D
	FConvW2D = arch.FConvW2D
	FConvD2W = arch.FConvD2W
	FCmp     = arch.FCmp
	FNeg     = arch.FNeg
	FAbs     = arch.FAbs
)

// fop2: fdst, fsrc1, fsrc2.
const (
	FAdd = arch.FAdd
	FSub = arch.FSub
	FMul = arch.FMul
	FDiv = arch.FDiv
)

// Comparison/jump/call kinds. Values preserved from the original library's
// ordering so cond^1 toggles EQUAL<->NOT_EQUAL etc. the same way.
const (
	Equal           = arch.Equal
	NotEqual        = arch.NotEqual
	Less            = arch.Less
	GreaterEqual    = arch.GreaterEqual
	Greater         = arch.Greater
	LessEqual       = arch.LessEqual
	SigLess         = arch.SigLess
	SigGreaterEqual = arch.SigGreaterEqual
	SigGreater      = arch.SigGreater
	SigLessEqual    = arch.SigLessEqual
	Overflow        = arch.Overflow
	NotOverflow     = arch.NotOverflow
	MulOverflow     = arch.MulOverflow
	MulNotOverflow  = arch.MulNotOverflow
	FEqual          = arch.FEqual
	FNotEqual       = arch.FNotEqual
	FLess           = arch.FLess
	FGreaterEqual   = arch.FGreaterEqual
	FGreater        = arch.FGreater
	FLessEqual      = arch.FLessEqual
	FUnordered      = arch.FUnordered
	FOrdered        = arch.FOrdered
	JumpAlways      = arch.JumpAlways
	Call0           = arch.Call0
	Call1           = arch.Call1
	Call2           = arch.Call2
	Call3           = arch.Call3
)

// FlagLegality reports which SET_* modifiers a base opcode accepts (spec
// §4.1's per-opcode flag-legality table).
func FlagLegality(base Op) Op { return arch.FlagLegality(base) }
