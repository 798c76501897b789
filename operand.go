package lirjit

import "lirjit/arch"

// Register is a virtual register index, 1..Descriptor.NumRegs (spec §3).
// Index 0 is reserved for Unused. The floating-point namespace reuses the
// same type against Descriptor.NumFRegs.
type Register = arch.Register

// Operand is the source/destination encoding of spec §3/§4.2: an immediate,
// a register, or a memory reference in base or base+index<<shift form. This
// module represents it as a tagged-variant struct rather than the packed
// integer spec §9 also sanctions; trace.go and validate.go are where the
// documented bit layout is reconstructed when it matters.
type Operand = arch.Operand

// Imm builds an immediate operand.
func Imm(v int64) Operand { return arch.Imm(v) }

// Reg builds a general-purpose register operand.
func Reg(r Register) Operand { return arch.Reg(r) }

// FReg builds a floating-point register operand.
func FReg(r Register) Operand { return arch.FReg(r) }

// Mem builds a [base+imm] memory operand.
func Mem(base Register, offset int32) Operand { return arch.Mem(base, offset) }

// MemIndexed builds a [base + index<<shift] memory operand. shift must be in
// [0,3] (spec §4.2).
func MemIndexed(base, index Register, shift uint8) Operand {
	return arch.MemIndexed(base, index, shift)
}

// Unused is the sentinel destination meaning "discard the result".
var Unused = arch.Unused
