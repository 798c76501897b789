package x86

import (
	"encoding/binary"
	"math"

	"lirjit/arch"
)

// --- floating point (SSE2 scalar, registers always < 8 so no REX needed) --

func emitSSE(s *arch.Session, prefix byte, opcode []byte, reg, rm int) error {
	if err := emit(s, prefix); err != nil {
		return err
	}
	if err := emit(s, opcode...); err != nil {
		return err
	}
	return emit(s, modrm(3, reg, rm))
}

func (b *Backend) Fop1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	single := op.Has(arch.SingleOp)
	d, r := physFP(dst.Reg), physFP(src.Reg)
	var err error
	switch op.Base() {
	case arch.FMov:
		pfx := byte(0xf2)
		if single {
			pfx = 0xf3
		}
		err = emitSSE(s, pfx, []byte{0x0f, 0x10}, d, r)
	case arch.FConvD2S:
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x5a}, d, r)
	case arch.FConvS2D:
		err = emitSSE(s, 0xf3, []byte{0x0f, 0x5a}, d, r)
	case arch.FConvW2D:
		srcPhys, lerr := loadSpill(s, src.Reg, edx)
		if lerr != nil {
			return arch.ErrAlloc
		}
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x2a}, d, srcPhys) // cvtsi2sd
	case arch.FConvD2W:
		target := physGP(dst.Reg)
		if isSpilled(dst.Reg) {
			target = edx
		}
		if err = emitSSE(s, 0xf2, []byte{0x0f, 0x2c}, target, r); err == nil { // cvttsd2si
			err = storeSpill(s, dst.Reg, target)
		}
	case arch.FCmp:
		err = emitSSE(s, 0x66, []byte{0x0f, 0x2e}, d, r)
	case arch.FNeg:
		if err = emitSSE(s, 0x66, []byte{0x0f, 0x57}, d, d); err == nil {
			err = emitSSE(s, 0xf2, []byte{0x0f, 0x5c}, d, r)
		}
	case arch.FAbs:
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x54}, d, r)
	default:
		return arch.ErrBadArgument
	}
	if err != nil {
		return arch.ErrAlloc
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) Fop2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	single := op.Has(arch.SingleOp)
	d, s2 := physFP(dst.Reg), physFP(src2.Reg)
	if !(src1.Kind == arch.KindFReg && src1.Reg == dst.Reg) {
		pfx := byte(0xf2)
		if single {
			pfx = 0xf3
		}
		if err := emitSSE(s, pfx, []byte{0x0f, 0x10}, d, physFP(src1.Reg)); err != nil {
			return arch.ErrAlloc
		}
	}
	pfx := byte(0xf2)
	if single {
		pfx = 0xf3
	}
	var opc []byte
	switch op.Base() {
	case arch.FAdd:
		opc = []byte{0x0f, 0x58}
	case arch.FSub:
		opc = []byte{0x0f, 0x5c}
	case arch.FMul:
		opc = []byte{0x0f, 0x59}
	case arch.FDiv:
		opc = []byte{0x0f, 0x5e}
	default:
		return arch.ErrBadArgument
	}
	if err := emitSSE(s, pfx, opc, d, s2); err != nil {
		return arch.ErrAlloc
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

// --- control flow --------------------------------------------------------

var condTTTN = map[arch.Cond]byte{
	arch.Equal:           0x4,
	arch.NotEqual:        0x5,
	arch.Less:            0x2,
	arch.GreaterEqual:    0x3,
	arch.Greater:         0x7,
	arch.LessEqual:       0x6,
	arch.SigLess:         0xc,
	arch.SigGreaterEqual: 0xd,
	arch.SigGreater:      0xf,
	arch.SigLessEqual:    0xe,
	arch.Overflow:        0x0,
	arch.NotOverflow:     0x1,
	arch.MulOverflow:     0x0,
	arch.MulNotOverflow:  0x1,
	arch.FEqual:          0x4,
	arch.FNotEqual:       0x5,
	arch.FLess:           0x2,
	arch.FGreaterEqual:   0x3,
	arch.FGreater:        0x7,
	arch.FLessEqual:      0x6,
	arch.FUnordered:      0xa,
	arch.FOrdered:        0xb,
}

func (b *Backend) EmitLabel(s *arch.Session) *arch.Label {
	l := &arch.Label{Size: s.Code.Size()}
	s.AppendLabel(l)
	return l
}

// EmitJump always reserves the worst-case rel32 form, same tradeoff amd64
// makes: no rel8 shrink-to-fit pass.
func (b *Backend) EmitJump(s *arch.Session, cond arch.Cond, rewritable bool) (*arch.Jump, arch.ErrCode) {
	j := &arch.Jump{Cond: cond}
	flags := arch.ToAddr
	if rewritable {
		flags |= arch.Rewritable
	}
	j.Flags = flags

	if cond == arch.JumpAlways {
		if err := emit(s, 0xe9); err != nil {
			return nil, arch.ErrAlloc
		}
	} else if cond == arch.Call0 || cond == arch.Call1 || cond == arch.Call2 || cond == arch.Call3 {
		if err := emit(s, 0xe8); err != nil {
			return nil, arch.ErrAlloc
		}
	} else {
		tttn, ok := condTTTN[cond]
		if !ok {
			return nil, arch.ErrBadArgument
		}
		if err := emit(s, 0x0f, 0x80|tttn); err != nil {
			return nil, arch.ErrAlloc
		}
	}
	j.Addr = uintptr(s.Code.Size())
	if err := emit(s, 0, 0, 0, 0); err != nil {
		return nil, arch.ErrAlloc
	}
	s.AppendJump(j)
	return j, arch.Ok
}

func (b *Backend) EmitCmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	if src1.Kind == arch.KindImm && src2.Kind != arch.KindImm {
		src1, src2 = src2, src1
		cond = mirrorCond(cond)
	}
	p1, err := loadSpill(s, src1.Reg, edx)
	if src1.Kind == arch.KindReg {
		if err != nil {
			return nil, arch.ErrAlloc
		}
	}
	switch {
	case src1.Kind == arch.KindReg && src2.Kind == arch.KindImm:
		if err := emitModRMReg(s, []byte{0x81}, 7, p1); err != nil {
			return nil, arch.ErrAlloc
		}
		if err := emit(s, le32(int32(src2.Imm))...); err != nil {
			return nil, arch.ErrAlloc
		}
	case src1.Kind == arch.KindReg && src2.Kind == arch.KindReg:
		p2, err := loadSpill(s, src2.Reg, ecx)
		if err != nil {
			return nil, arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0x39}, p2, p1); err != nil {
			return nil, arch.ErrAlloc
		}
	case src1.Kind == arch.KindReg && (src2.Kind == arch.KindMem || src2.Kind == arch.KindMemIndexed):
		base, index, hasIndex := memParts(src2)
		if err := emitMem(s, []byte{0x3b}, p1, base, index, hasIndex, src2.Shift, int32(src2.Imm)); err != nil {
			return nil, arch.ErrAlloc
		}
	default:
		return nil, arch.ErrBadArgument
	}
	return b.EmitJump(s, cond, rewritable)
}

func (b *Backend) EmitFcmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	if err := emitSSE(s, 0x66, []byte{0x0f, 0x2e}, physFP(src1.Reg), physFP(src2.Reg)); err != nil {
		return nil, arch.ErrAlloc
	}
	return b.EmitJump(s, cond, rewritable)
}

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

func (b *Backend) EmitIjump(s *arch.Session, cond arch.Cond, src arch.Operand) arch.ErrCode {
	digit := 4 // jmp
	if cond == arch.Call0 || cond == arch.Call1 || cond == arch.Call2 || cond == arch.Call3 {
		digit = 2 // call
	}
	switch src.Kind {
	case arch.KindReg:
		p, err := loadSpill(s, src.Reg, edx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0xff}, digit, p); err != nil {
			return arch.ErrAlloc
		}
	case arch.KindMem, arch.KindMemIndexed:
		base, index, hasIndex := memParts(src)
		if err := emitMem(s, []byte{0xff}, digit, base, index, hasIndex, src.Shift, int32(src.Imm)); err != nil {
			return arch.ErrAlloc
		}
	default:
		return arch.ErrBadArgument
	}
	return arch.Ok
}

// OpFlags: setcc al; movzx dst, al; optional and/or/xor fold against src.
func (b *Backend) OpFlags(s *arch.Session, op arch.Op, dst, src arch.Operand, cond arch.Cond) arch.ErrCode {
	tttn, ok := condTTTN[cond]
	if !ok {
		return arch.ErrBadArgument
	}
	if err := emit(s, 0x0f, 0x90|tttn, modrm(3, 0, eax)); err != nil { // setcc al
		return arch.ErrAlloc
	}
	target := physGP(dst.Reg)
	if isSpilled(dst.Reg) {
		target = edx
	}
	if err := emit(s, 0x0f, 0xb6, modrm(3, target, eax)); err != nil { // movzx target, al
		return arch.ErrAlloc
	}
	switch op.Base() {
	case arch.Mov:
	case arch.And, arch.Or, arch.Xor:
		enc := op2Opcode[op.Base()]
		if src.Kind == arch.KindReg {
			sp, err := loadSpill(s, src.Reg, ecx)
			if err != nil {
				return arch.ErrAlloc
			}
			if err := emitModRMReg(s, []byte{enc.regOp}, sp, target); err != nil {
				return arch.ErrAlloc
			}
		}
	default:
		return arch.ErrBadArgument
	}
	return errOk(storeSpill(s, dst.Reg, target))
}

// EmitConst reserves a rewritable 4-byte immediate load, the self-modifying
// target for the public SetConst API.
func (b *Backend) EmitConst(s *arch.Session, dst arch.Operand, init int64) (*arch.Const, arch.ErrCode) {
	if dst.Kind != arch.KindReg {
		return nil, arch.ErrBadArgument
	}
	target := physGP(dst.Reg)
	spilled := isSpilled(dst.Reg)
	if spilled {
		target = edx
	}
	if err := emit(s, 0xb8+byte(target&7)); err != nil {
		return nil, arch.ErrAlloc
	}
	c := &arch.Const{Addr: uintptr(s.Code.Size())}
	if err := emit(s, le32(int32(init))...); err != nil {
		return nil, arch.ErrAlloc
	}
	s.AppendConst(c)
	if spilled {
		if err := storeSpill(s, dst.Reg, target); err != nil {
			return nil, arch.ErrAlloc
		}
	}
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

// --- assembler-pass / self-modifying-code patching ------------------------

func (b *Backend) PatchJump(code []byte, j *arch.Jump, targetAddr uintptr) error {
	site := j.Addr
	pc := site + 4
	rel := int64(targetAddr) - int64(pc)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return errRelocOutOfRange
	}
	binary.LittleEndian.PutUint32(code[site:], uint32(int32(rel)))
	return nil
}

func (b *Backend) PatchConst(code []byte, c *arch.Const, value int64) error {
	binary.LittleEndian.PutUint32(code[c.Addr:], uint32(int32(value)))
	return nil
}

type relocRangeError struct{}

func (relocRangeError) Error() string { return "x86: relative branch target out of rel32 range" }

var errRelocOutOfRange = relocRangeError{}
