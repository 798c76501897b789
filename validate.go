package lirjit

import "lirjit/arch"

// validateEnterOptions checks the Bounds spec §6 lists for enter/set_context:
// args∈[0,3], scratches+saveds≤NUM_REGS, args≤saveds, local_size∈[0,65536].
func validateEnterOptions(d arch.Descriptor, opts EnterOptions) ErrCode {
	switch {
	case opts.Args < 0 || opts.Args > 3:
		return ErrBadArgument
	case opts.Scratches < 0 || opts.Saveds < 0:
		return ErrBadArgument
	case opts.Scratches+opts.Saveds > d.NumRegs:
		return ErrBadArgument
	case opts.Args > opts.Saveds:
		return ErrBadArgument
	case opts.FScratches < 0 || opts.FSaveds < 0 || opts.FScratches+opts.FSaveds > d.NumFRegs:
		return ErrBadArgument
	case opts.LocalSize < 0 || opts.LocalSize > 65536:
		return ErrBadArgument
	default:
		return Ok
	}
}

// validateOpCustomSize checks the per-target op_custom size bound spec §6
// lists: {2,4} on Thumb-2, {4} on the other RISC targets, {1..15} on x86.
func validateOpCustomSize(target Target, size int) ErrCode {
	switch target {
	case arch.Thumb2:
		if size == 2 || size == 4 {
			return Ok
		}
	case arch.AMD64, arch.X86:
		if size >= 1 && size <= 15 {
			return Ok
		}
	default:
		if size == 4 {
			return Ok
		}
	}
	return ErrBadArgument
}

// validateOperand checks the Operand invariants spec §3 lists that this
// module's tagged-variant representation can still violate: indexed mode
// needs both a base and an index register, and on a virtual-register target
// (x86-32) neither the base nor the index of a memory operand may name a
// register with no physical home (spec §4.6: "forbidden in addressing
// expressions"). backend.GetRegIndex returning <0 is how a concrete backend
// reports "this virtual register has no physical home" (see arch/x86's
// spillSlot sentinel), so this check stays backend-agnostic rather than
// hard-coding x86-32's register map here.
func (c *Compiler) validateOperand(op Operand) ErrCode {
	switch op.Kind {
	case arch.KindMemIndexed:
		if op.Reg == 0 || op.Index == 0 {
			return ErrBadArgument
		}
		if op.Shift > 3 {
			return ErrBadArgument
		}
		if c.descr.HasVirtualRegs {
			if c.backend.GetRegIndex(op.Reg, false) < 0 || c.backend.GetRegIndex(op.Index, false) < 0 {
				return ErrBadArgument
			}
		}
	case arch.KindMem:
		if c.descr.HasVirtualRegs && op.Reg != c.descr.SPReg {
			if c.backend.GetRegIndex(op.Reg, false) < 0 {
				return ErrBadArgument
			}
		}
	}
	return Ok
}
