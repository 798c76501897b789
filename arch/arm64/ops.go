package arm64

import "lirjit/arch"

var savedFP = []int{x19, x20, x21, x22, x23}
var savedD = []int{8, 9, 10, 11} // D8-D11, matches fpMap's FR5-FR8

func align16(n int32) int32 { return (n + 15) &^ 15 }

// pairPartner returns the second register of the STP/LDP pair starting at
// index i within a quota-bounded table: the next register, or i itself again
// when quota is odd and i is its last (unpaired) element.
func pairPartner(table []int, i, quota int) int {
	if i+1 < quota {
		return table[i+1]
	}
	return table[i]
}

// lastPairStart returns the index of the final (possibly duplicated) pair
// pushed for a given quota, for use as an epilogue loop's starting index.
func lastPairStart(quota int) int {
	if quota <= 0 {
		return -1
	}
	return ((quota - 1) / 2) * 2
}

func (b *Backend) frameSize(opts arch.EnterOptions) int32 {
	return align16(opts.LocalSize)
}

func (b *Backend) Enter(s *arch.Session, opts arch.EnterOptions) arch.ErrCode {
	if opts.Args < 0 || opts.Args > 3 || opts.Args > opts.Saveds {
		return arch.ErrBadArgument
	}
	if opts.Scratches+opts.Saveds > Descriptor().NumRegs-1 {
		return arch.ErrBadArgument
	}
	s.Opts = opts

	if err := emit32(s, stpPre64(x29, x30, spReg, -16)); err != nil { // stp x29,x30,[sp,#-16]!
		return arch.ErrAlloc
	}
	// mov x29, sp: add x29, sp, #0
	if err := emit32(s, addSubImm(opADDImm, x29, spReg, 0)); err != nil {
		return arch.ErrAlloc
	}

	// Saved GPRs/float-regs are always pushed as STP pairs to keep sp
	// 16-byte aligned throughout the prologue; an odd quota pairs its last
	// register with itself (the duplicate slot is simply never read back
	// beyond its own restore).
	for i := 0; i < opts.Saveds && i < len(savedFP); i += 2 {
		lo, hi := savedFP[i], pairPartner(savedFP, i, opts.Saveds)
		if err := emit32(s, stpPre64(lo, hi, spReg, -16)); err != nil {
			return arch.ErrAlloc
		}
	}
	for i := 0; i < opts.FSaveds && i < len(savedD); i += 2 {
		lo, hi := savedD[i], pairPartner(savedD, i, opts.FSaveds)
		if err := emit32(s, fstpPre64(lo, hi, spReg, -16)); err != nil {
			return arch.ErrAlloc
		}
	}

	frame := b.frameSize(opts)
	if frame > 0 {
		if err := emitAddSubImmOrMaterialize(s, opSUBImm, opSUBReg, spReg, spReg, frame); err != nil {
			return arch.ErrAlloc
		}
	}
	return arch.Ok
}

func (b *Backend) SetContext(s *arch.Session, opts arch.EnterOptions) arch.ErrCode {
	if opts.Args < 0 || opts.Args > 3 || opts.Args > opts.Saveds {
		return arch.ErrBadArgument
	}
	s.Opts = opts
	return arch.Ok
}

func (b *Backend) epilogue(s *arch.Session) error {
	frame := b.frameSize(s.Opts)
	if frame > 0 {
		if err := emitAddSubImmOrMaterialize(s, opADDImm, opADDReg, spReg, spReg, frame); err != nil {
			return err
		}
	}
	for i := lastPairStart(s.Opts.FSaveds); i >= 0; i -= 2 {
		lo, hi := savedD[i], pairPartner(savedD, i, s.Opts.FSaveds)
		if err := emit32(s, fldpPost64(lo, hi, spReg, 16)); err != nil {
			return err
		}
	}
	for i := lastPairStart(s.Opts.Saveds); i >= 0; i -= 2 {
		lo, hi := savedFP[i], pairPartner(savedFP, i, s.Opts.Saveds)
		if err := emit32(s, ldpPost64(lo, hi, spReg, 16)); err != nil {
			return err
		}
	}
	return emit32(s, ldpPost64(x29, x30, spReg, 16))
}

func retOp() uint32 { return 0xD65F0000 | (uint32(x30) << 5) }

func (b *Backend) Return(s *arch.Session, op arch.Op, src arch.Operand) arch.ErrCode {
	if op.Base() == arch.Mov && !src.IsUnused() {
		if src.Kind == arch.KindReg && physGP(src.Reg) != x0 {
			if err := emit32(s, regForm(opADDReg, x0, physGP(src.Reg), 31)); err != nil { // mov x0, src (add x0, src, xzr)
				return arch.ErrAlloc
			}
		} else if src.Kind == arch.KindImm {
			if err := loadImm64(s, x0, src.Imm); err != nil {
				return arch.ErrAlloc
			}
		}
	}
	if err := b.epilogue(s); err != nil {
		return arch.ErrAlloc
	}
	if err := emit32(s, retOp()); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) FastEnter(s *arch.Session, dst arch.Operand) arch.ErrCode {
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	// mov dst, x30 (the link register already holds the return address; no
	// frame has been built yet, matching spec §6's "preserve caller stack
	// frame" fast path).
	if err := emit32(s, regForm(opADDReg, physGP(dst.Reg), x30, 31)); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) FastReturn(s *arch.Session, src arch.Operand) arch.ErrCode {
	if src.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	// br src
	if err := emit32(s, 0xD61F0000|(uint32(physGP(src.Reg))<<5)); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

// --- op0/op1/op2 ---------------------------------------------------------

func (b *Backend) Op0(s *arch.Session, op arch.Op) arch.ErrCode {
	switch op.Base() {
	case arch.Nop:
		return errOk(emit32(s, 0xD503201F))
	case arch.Breakpoint:
		return errOk(emit32(s, 0xD4200000)) // brk #0
	case arch.LMulUnsigned:
		// R2 = low 64 of R1*R2 (MUL), R1 = high 64 (UMULH). The high half
		// goes through x16 first, since MUL overwrites R2.
		umulh := uint32(0x9BC07C00) | (uint32(physGP(2)) << 16) | (uint32(physGP(1)) << 5) | uint32(x16)
		if err := emit32(s, umulh); err != nil {
			return arch.ErrAlloc
		}
		if err := emit32(s, regForm(opMADD, physGP(2), physGP(1), physGP(2))|uint32(31)<<10); err != nil {
			return arch.ErrAlloc
		}
		return errOk(emit32(s, regForm(opADDReg, physGP(1), x16, 31))) // mov R1, x16
	case arch.LMulSigned:
		smulh := uint32(0x9B407C00) | (uint32(physGP(2)) << 16) | (uint32(physGP(1)) << 5) | uint32(x16)
		if err := emit32(s, smulh); err != nil {
			return arch.ErrAlloc
		}
		if err := emit32(s, regForm(opMADD, physGP(2), physGP(1), physGP(2))|uint32(31)<<10); err != nil {
			return arch.ErrAlloc
		}
		return errOk(emit32(s, regForm(opADDReg, physGP(1), x16, 31))) // mov R1, x16
	case arch.LDivUnsigned:
		return errOk(emit32(s, regForm(opUDIV, physGP(1), physGP(1), physGP(2))))
	case arch.LDivSigned:
		return errOk(emit32(s, regForm(opSDIV, physGP(1), physGP(1), physGP(2))))
	default:
		return arch.ErrBadArgument
	}
}

func errOk(err error) arch.ErrCode {
	if err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) Op1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	base := op.Base()
	switch base {
	case arch.Mov, arch.MovP, arch.MovuB, arch.MovuP:
		if err := b.movPlain(s, dst, src); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovUB, arch.MovuUB:
		if err := b.movExt(s, dst, src, 1, false); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovSB, arch.MovuSB:
		if err := b.movExt(s, dst, src, 1, true); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovUH, arch.MovuUH:
		if err := b.movExt(s, dst, src, 2, false); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovSH, arch.MovuSH:
		if err := b.movExt(s, dst, src, 2, true); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovUI, arch.MovuUI:
		if err := b.movExt(s, dst, src, 4, false); err != nil {
			return arch.ErrAlloc
		}
	case arch.MovSI, arch.MovuSI:
		if err := b.movExt(s, dst, src, 4, true); err != nil {
			return arch.ErrAlloc
		}
	case arch.Not:
		if err := emit32(s, opORRReg|0x00200000|(uint32(physGP(src.Reg))<<16)|(31<<5)|uint32(physGP(dst.Reg))); err != nil { // orn dst, xzr, src
			return arch.ErrAlloc
		}
	case arch.Neg:
		if err := emit32(s, regForm(opSUBReg, physGP(dst.Reg), 31, physGP(src.Reg))); err != nil { // sub dst, xzr, src
			return arch.ErrAlloc
		}
	case arch.Clz:
		if err := emit32(s, 0xDAC01000|(uint32(physGP(src.Reg))<<5)|uint32(physGP(dst.Reg))); err != nil {
			return arch.ErrAlloc
		}
	default:
		return arch.ErrBadArgument
	}

	if base == arch.MovuB || base == arch.MovuUB || base == arch.MovuSB || base == arch.MovuUH ||
		base == arch.MovuSH || base == arch.MovuUI || base == arch.MovuSI || base == arch.MovuP {
		if err := b.postUpdate(s, dst, src); err != nil {
			return arch.ErrAlloc
		}
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) movPlain(s *arch.Session, dst, src arch.Operand) error {
	switch {
	case dst.Kind == arch.KindReg && src.Kind == arch.KindReg:
		return emit32(s, regForm(opADDReg, physGP(dst.Reg), physGP(src.Reg), 31)) // mov dst, src
	case dst.Kind == arch.KindReg && src.Kind == arch.KindImm:
		return loadImm64(s, physGP(dst.Reg), src.Imm)
	case dst.Kind == arch.KindReg && (src.Kind == arch.KindMem || src.Kind == arch.KindMemIndexed):
		return b.loadMem(s, physGP(dst.Reg), src, 8, false)
	case (dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed) && src.Kind == arch.KindReg:
		return b.storeMem(s, physGP(src.Reg), dst, 8)
	default:
		return errUnsupportedShape
	}
}

func (b *Backend) movExt(s *arch.Session, dst, src arch.Operand, width int, signed bool) error {
	if dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed {
		return b.storeMem(s, physGP(src.Reg), dst, width)
	}
	return b.loadMem(s, physGP(dst.Reg), src, width, signed)
}

func (b *Backend) loadMem(s *arch.Session, rt int, mem arch.Operand, size int, signed bool) error {
	base := physGP(mem.Reg)
	if mem.Kind == arch.KindMemIndexed {
		return emit32(s, 0xF8606800|(uint32(physGP(mem.Index))<<16)|(uint32(mem.Shift)<<12)|(uint32(base)<<5)|uint32(rt))
	}
	return emit32(s, ldrImm(rt, base, int32(mem.Imm), size, signed))
}

func (b *Backend) storeMem(s *arch.Session, rt int, mem arch.Operand, size int) error {
	base := physGP(mem.Reg)
	if mem.Kind == arch.KindMemIndexed {
		return emit32(s, 0xF8206800|(uint32(physGP(mem.Index))<<16)|(uint32(mem.Shift)<<12)|(uint32(base)<<5)|uint32(rt))
	}
	return emit32(s, strImm(rt, base, int32(mem.Imm), size))
}

func (b *Backend) postUpdate(s *arch.Session, dst, src arch.Operand) error {
	mem := dst
	if dst.Kind != arch.KindMem {
		mem = src
	}
	if mem.Kind != arch.KindMem || mem.Imm == 0 {
		return nil
	}
	return emitAddSubImmOrMaterialize(s, opADDImm, opADDReg, physGP(mem.Reg), physGP(mem.Reg), int32(mem.Imm))
}

type shapeError struct{}

func (shapeError) Error() string { return "arm64: unsupported operand shape" }

var errUnsupportedShape = shapeError{}

func (b *Backend) Op2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	base := op.Base()
	d, a := physGP(dst.Reg), physGP(src1.Reg)

	switch base {
	case arch.Add:
		if src2.Kind == arch.KindImm {
			if err := emitAddSubImmOrMaterialize(s, opADDImm, opADDReg, d, a, int32(src2.Imm)); err != nil {
				return arch.ErrAlloc
			}
		} else if err := emit32(s, regForm(opADDReg, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Sub:
		if src2.Kind == arch.KindImm {
			if err := emitAddSubImmOrMaterialize(s, opSUBImm, opSUBReg, d, a, int32(src2.Imm)); err != nil {
				return arch.ErrAlloc
			}
		} else if err := emit32(s, regForm(opSUBReg, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Addc:
		if err := emit32(s, 0x9A000000|(uint32(physGP(src2.Reg))<<16)|(uint32(a)<<5)|uint32(d)); err != nil { // adc
			return arch.ErrAlloc
		}
	case arch.Subc:
		if err := emit32(s, 0xDA000000|(uint32(physGP(src2.Reg))<<16)|(uint32(a)<<5)|uint32(d)); err != nil { // sbc
			return arch.ErrAlloc
		}
	case arch.Mul:
		if err := emit32(s, regForm(opMADD, d, a, physGP(src2.Reg))|uint32(31)<<10); err != nil {
			return arch.ErrAlloc
		}
	case arch.And:
		if err := emit32(s, regForm(opANDReg, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Or:
		if err := emit32(s, regForm(opORRReg, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Xor:
		if err := emit32(s, regForm(opEORReg, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Shl:
		if err := emit32(s, regForm(opLSLV, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Lshr:
		if err := emit32(s, regForm(opLSRV, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Ashr:
		if err := emit32(s, regForm(opASRV, d, a, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
	default:
		return arch.ErrBadArgument
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) OpCustom(s *arch.Session, raw []byte) arch.ErrCode {
	if len(raw) != 4 {
		return arch.ErrBadArgument
	}
	word := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	if err := emit32(s, word); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) LocalBase(s *arch.Session, dst arch.Operand, offset int32) arch.ErrCode {
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	if err := emitAddSubImmOrMaterialize(s, opADDImm, opADDReg, physGP(dst.Reg), spReg, offset); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}
