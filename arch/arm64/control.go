package arm64

import (
	"encoding/binary"

	"lirjit/arch"
)

// --- floating point ------------------------------------------------------

func fopBase(double uint32, single uint32, isSingle bool) uint32 {
	if isSingle {
		return single
	}
	return double
}

func (b *Backend) Fop1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	single := op.Has(arch.SingleOp)
	d, r := physFP(dst.Reg), physFP(src.Reg)
	var word uint32
	switch op.Base() {
	case arch.FMov:
		word = fopBase(0x1E604000, 0x1E204000, single) | (uint32(r) << 5) | uint32(d)
	case arch.FNeg:
		word = fopBase(0x1E614000, 0x1E214000, single) | (uint32(r) << 5) | uint32(d)
	case arch.FAbs:
		word = fopBase(0x1E60C000, 0x1E20C000, single) | (uint32(r) << 5) | uint32(d)
	case arch.FCmp:
		word = fopBase(0x1E602000, 0x1E202000, single) | (uint32(physFP(src.Reg)) << 16) | (uint32(physFP(dst.Reg)) << 5)
	case arch.FConvD2S:
		word = 0x1E624000 | (uint32(r) << 5) | uint32(d)
	case arch.FConvS2D:
		word = 0x1E22C000 | (uint32(r) << 5) | uint32(d)
	case arch.FConvW2D:
		word = 0x1E620000 | (uint32(physGP(src.Reg)) << 5) | uint32(d)
	case arch.FConvD2W:
		word = 0x1E780000 | (uint32(r) << 5) | uint32(physGP(dst.Reg))
	default:
		return arch.ErrBadArgument
	}
	if err := emit32(s, word); err != nil {
		return arch.ErrAlloc
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) Fop2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	single := op.Has(arch.SingleOp)
	var base uint32
	switch op.Base() {
	case arch.FAdd:
		base = fopBase(0x1E602800, 0x1E202800, single)
	case arch.FSub:
		base = fopBase(0x1E603800, 0x1E203800, single)
	case arch.FMul:
		base = fopBase(0x1E600800, 0x1E200800, single)
	case arch.FDiv:
		base = fopBase(0x1E601800, 0x1E201800, single)
	default:
		return arch.ErrBadArgument
	}
	word := base | (uint32(physFP(src2.Reg)) << 16) | (uint32(physFP(src1.Reg)) << 5) | uint32(physFP(dst.Reg))
	if err := emit32(s, word); err != nil {
		return arch.ErrAlloc
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

// --- control flow ---------------------------------------------------------

var condCode = map[arch.Cond]uint32{
	arch.Equal:           0x0,
	arch.NotEqual:        0x1,
	arch.Less:            0x3, // unsigned <, CC/LO
	arch.GreaterEqual:    0x2, // unsigned >=, CS/HS
	arch.Greater:         0x8, // unsigned >, HI
	arch.LessEqual:       0x9, // unsigned <=, LS
	arch.SigLess:         0xb, // LT
	arch.SigGreaterEqual: 0xa, // GE
	arch.SigGreater:      0xc, // GT
	arch.SigLessEqual:    0xd, // LE
	arch.Overflow:        0x6, // VS
	arch.NotOverflow:     0x7, // VC
	arch.MulOverflow:     0x6,
	arch.MulNotOverflow:  0x7,
	arch.FEqual:          0x0,
	arch.FNotEqual:       0x1,
	arch.FLess:           0xb,
	arch.FGreaterEqual:   0xa,
	arch.FGreater:        0xc,
	arch.FLessEqual:      0xd,
	arch.FUnordered:      0x3,
	arch.FOrdered:        0x2,
}

func (b *Backend) EmitLabel(s *arch.Session) *arch.Label {
	l := &arch.Label{Size: s.Code.Size()}
	s.AppendLabel(l)
	return l
}

// EmitJump reserves a 4-byte unconditional/conditional/call branch site with
// a zero placeholder offset, patched by the assembler pass once every
// label's final address is known.
func (b *Backend) EmitJump(s *arch.Session, cond arch.Cond, rewritable bool) (*arch.Jump, arch.ErrCode) {
	j := &arch.Jump{Cond: cond}
	flags := arch.ToAddr
	if rewritable {
		flags |= arch.Rewritable
	}
	j.Flags = flags
	j.Addr = uintptr(s.Code.Size())

	switch cond {
	case arch.JumpAlways:
		if err := emit32(s, 0x14000000); err != nil {
			return nil, arch.ErrAlloc
		}
	case arch.Call0, arch.Call1, arch.Call2, arch.Call3:
		if err := emit32(s, 0x94000000); err != nil {
			return nil, arch.ErrAlloc
		}
	default:
		cc, ok := condCode[cond]
		if !ok {
			return nil, arch.ErrBadArgument
		}
		if err := emit32(s, 0x54000000|cc); err != nil {
			return nil, arch.ErrAlloc
		}
	}
	s.AppendJump(j)
	return j, arch.Ok
}

// EmitCmp fuses a compare with the following conditional branch (spec §4.5).
// When either operand is a literal zero, this degrades to a plain Bcond over
// a CMP rather than the CBZ/CBNZ single-instruction fusion, which only
// applies to Equal/NotEqual against literal zero — handled as a fast path
// below. src1 is normalized to never be an immediate first, the same way
// amd64/x86 mirror operands for cmp's reg,imm-only encoding.
func (b *Backend) EmitCmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	if src1.Kind == arch.KindImm && src2.Kind != arch.KindImm {
		src1, src2 = src2, src1
		cond = mirrorCond(cond)
	}
	if (cond == arch.Equal || cond == arch.NotEqual) && src2.Kind == arch.KindImm && src2.Imm == 0 {
		return b.emitCbz(s, cond, src1, rewritable)
	}
	if src2.Kind == arch.KindImm {
		if err := emit32(s, addSubImm(opSUBSImm, 31, physGP(src1.Reg), int32(src2.Imm))); err != nil { // cmp src1, #imm
			return nil, arch.ErrAlloc
		}
	} else {
		if err := emit32(s, regForm(opSUBSReg, 31, physGP(src1.Reg), physGP(src2.Reg))); err != nil { // cmp src1, src2
			return nil, arch.ErrAlloc
		}
	}
	return b.EmitJump(s, cond, rewritable)
}

// mirrorCond swaps a comparison condition to match swapped operand order,
// the same table amd64/x86 use (spec §4.5's "mirror" on reorder).
func mirrorCond(c arch.Cond) arch.Cond {
	switch c {
	case arch.Less:
		return arch.Greater
	case arch.Greater:
		return arch.Less
	case arch.GreaterEqual:
		return arch.LessEqual
	case arch.LessEqual:
		return arch.GreaterEqual
	case arch.SigLess:
		return arch.SigGreater
	case arch.SigGreater:
		return arch.SigLess
	case arch.SigGreaterEqual:
		return arch.SigLessEqual
	case arch.SigLessEqual:
		return arch.SigGreaterEqual
	default:
		return c
	}
}

// emitCbz emits CBZ/CBNZ src1, label -- a single fused compare-and-branch
// against zero, avoiding a separate CMP the way spec §4.5 describes.
func (b *Backend) emitCbz(s *arch.Session, cond arch.Cond, src1 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	j := &arch.Jump{Cond: cond}
	flags := arch.ToAddr
	if rewritable {
		flags |= arch.Rewritable
	}
	j.Flags = flags
	j.Addr = uintptr(s.Code.Size())
	base := uint32(0xB4000000) // CBZ
	if cond == arch.NotEqual {
		base = 0xB5000000 // CBNZ
	}
	if err := emit32(s, base|uint32(physGP(src1.Reg))); err != nil {
		return nil, arch.ErrAlloc
	}
	s.AppendJump(j)
	return j, arch.Ok
}

func (b *Backend) EmitFcmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	word := uint32(0x1E602000) | (uint32(physFP(src2.Reg)) << 16) | (uint32(physFP(src1.Reg)) << 5)
	if err := emit32(s, word); err != nil {
		return nil, arch.ErrAlloc
	}
	return b.EmitJump(s, cond, rewritable)
}

func (b *Backend) EmitIjump(s *arch.Session, cond arch.Cond, src arch.Operand) arch.ErrCode {
	if src.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	reg := physGP(src.Reg)
	if cond == arch.Call0 || cond == arch.Call1 || cond == arch.Call2 || cond == arch.Call3 {
		return errOk(emit32(s, 0xD63F0000|(uint32(reg)<<5))) // blr
	}
	return errOk(emit32(s, 0xD61F0000|(uint32(reg)<<5))) // br
}

// OpFlags materializes a condition as 0/1 (cset) or folds it into dst via
// and/orr/eor against src.
func (b *Backend) OpFlags(s *arch.Session, op arch.Op, dst, src arch.Operand, cond arch.Cond) arch.ErrCode {
	cc, ok := condCode[cond]
	if !ok {
		return arch.ErrBadArgument
	}
	invCC := cc ^ 1
	d := physGP(dst.Reg)
	// cset dst, cond == csinc dst, xzr, xzr, invert(cond)
	if err := emit32(s, 0x9A9F07E0|(invCC<<12)|uint32(d)); err != nil {
		return arch.ErrAlloc
	}
	switch op.Base() {
	case arch.Mov:
	case arch.And:
		if err := emit32(s, regForm(opANDReg, d, d, physGP(src.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Or:
		if err := emit32(s, regForm(opORRReg, d, d, physGP(src.Reg))); err != nil {
			return arch.ErrAlloc
		}
	case arch.Xor:
		if err := emit32(s, regForm(opEORReg, d, d, physGP(src.Reg))); err != nil {
			return arch.ErrAlloc
		}
	default:
		return arch.ErrBadArgument
	}
	return arch.Ok
}

// EmitConst reserves a rewritable MOVZ/MOVK×4 sequence (16 bytes), the
// self-modifying-code target for the public SetConst API (spec §4.8).
func (b *Backend) EmitConst(s *arch.Session, dst arch.Operand, init int64) (*arch.Const, arch.ErrCode) {
	if dst.Kind != arch.KindReg {
		return nil, arch.ErrBadArgument
	}
	c := &arch.Const{Addr: uintptr(s.Code.Size())}
	rd := physGP(dst.Reg)
	u := uint64(init)
	for hw := 0; hw < 4; hw++ {
		half := uint16(u >> (16 * hw))
		var word uint32
		if hw == 0 {
			word = movz(rd, half, 0)
		} else {
			word = movk(rd, half, uint8(hw))
		}
		if err := emit32(s, word); err != nil {
			return nil, arch.ErrAlloc
		}
	}
	s.AppendConst(c)
	return c, arch.Ok
}

func (b *Backend) LabelAddr(s *arch.Session, dst arch.Operand, lbl *arch.Label) arch.ErrCode {
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	c, code := b.EmitConst(s, dst, 0)
	if code != arch.Ok {
		return code
	}
	c.TargetLabel = lbl
	return arch.Ok
}

// --- assembler-pass / self-modifying-code patching ----------------------

func (b *Backend) PatchJump(code []byte, j *arch.Jump, targetAddr uintptr) error {
	word := binary.LittleEndian.Uint32(code[j.Addr:])
	rel := int64(targetAddr) - int64(j.Addr)
	if rel%4 != 0 {
		return errMisaligned
	}
	words := rel / 4

	switch {
	case word&0xFC000000 == 0x14000000 || word&0xFC000000 == 0x94000000: // B/BL, imm26
		if words < -(1<<25) || words >= (1<<25) {
			return errRelocOutOfRange
		}
		word = (word &^ 0x03FFFFFF) | (uint32(words) & 0x03FFFFFF)
	case word&0xFF000010 == 0x54000000: // Bcond, imm19 at bits[23:5]
		if words < -(1<<18) || words >= (1<<18) {
			return errRelocOutOfRange
		}
		word = (word &^ (0x7FFFF << 5)) | ((uint32(words) & 0x7FFFF) << 5)
	case word&0x7E000000 == 0x34000000: // CBZ/CBNZ, imm19 at bits[23:5]
		if words < -(1<<18) || words >= (1<<18) {
			return errRelocOutOfRange
		}
		word = (word &^ (0x7FFFF << 5)) | ((uint32(words) & 0x7FFFF) << 5)
	default:
		return errUnknownJumpForm
	}
	binary.LittleEndian.PutUint32(code[j.Addr:], word)
	return nil
}

func (b *Backend) PatchConst(code []byte, c *arch.Const, value int64) error {
	u := uint64(value)
	base := code[c.Addr : c.Addr+16]
	for hw := 0; hw < 4; hw++ {
		word := binary.LittleEndian.Uint32(base[hw*4:])
		half := uint16(u >> (16 * hw))
		word = (word &^ (0xFFFF << 5)) | (uint32(half) << 5)
		binary.LittleEndian.PutUint32(base[hw*4:], word)
	}
	return nil
}

type relocError struct{ msg string }

func (e relocError) Error() string { return e.msg }

var (
	errRelocOutOfRange  = relocError{"arm64: relative branch target out of range"}
	errMisaligned       = relocError{"arm64: branch target not 4-byte aligned"}
	errUnknownJumpForm  = relocError{"arm64: patch site is not a recognized branch encoding"}
)
