package amd64

import (
	"encoding/binary"
	"math"

	"lirjit/arch"
)

// --- floating point --------------------------------------------------

func physXMMOperand(o arch.Operand) int { return physXMM(o.Reg) }

func emitSSE(s *arch.Session, prefix byte, opcode []byte, reg, rm int) error {
	if err := emit(s, prefix); err != nil {
		return err
	}
	if reg >= 8 || rm >= 8 {
		if err := emit(s, rex(false, reg, 0, rm)); err != nil {
			return err
		}
	}
	if err := emit(s, opcode...); err != nil {
		return err
	}
	return emit(s, modrm(3, reg, rm))
}

func (b *Backend) Fop1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	single := op.Has(arch.SingleOp)
	d, r := physXMMOperand(dst), physXMMOperand(src)
	var err error
	switch op.Base() {
	case arch.FMov:
		pfx := byte(0xf2)
		if single {
			pfx = 0xf3
		}
		err = emitSSE(s, pfx, []byte{0x0f, 0x10}, d, r)
	case arch.FConvD2S:
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x5a}, d, r) // cvtsd2ss
	case arch.FConvS2D:
		err = emitSSE(s, 0xf3, []byte{0x0f, 0x5a}, d, r) // cvtss2sd
	case arch.FConvW2D:
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x2a}, d, physGP(src.Reg)) // cvtsi2sd
	case arch.FConvD2W:
		err = emitSSE(s, 0xf2, []byte{0x0f, 0x2c}, physGP(dst.Reg), r) // cvttsd2si
	case arch.FCmp:
		err = emitSSE(s, 0x66, []byte{0x0f, 0x2e}, d, r) // ucomisd
	case arch.FNeg:
		// xorpd dst, dst then subsd dst, src (no dedicated negate opcode).
		if err = emitSSE(s, 0x66, []byte{0x0f, 0x57}, d, d); err == nil {
			err = emitSSE(s, 0xf2, []byte{0x0f, 0x5c}, d, r)
		}
	case arch.FAbs:
		// |src| = max(src, 0 - src), with no mask constant: xmm8, which no
		// virtual float register maps to, holds the negated copy.
		pfx := byte(0xf2)
		if single {
			pfx = 0xf3
		}
		if err = emitSSE(s, 0x66, []byte{0x0f, 0x57}, 8, 8); err == nil { // xorpd xmm8, xmm8
			err = emitSSE(s, pfx, []byte{0x0f, 0x5c}, 8, r) // subsd xmm8, src
		}
		if err == nil && d != r {
			err = emitSSE(s, pfx, []byte{0x0f, 0x10}, d, r) // movsd dst, src
		}
		if err == nil {
			err = emitSSE(s, pfx, []byte{0x0f, 0x5f}, d, 8) // maxsd dst, xmm8
		}
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
	d, s2 := physXMMOperand(dst), physXMMOperand(src2)
	if !(src1.Kind == arch.KindFReg && src1.Reg == dst.Reg) {
		pfx := byte(0xf2)
		if single {
			pfx = 0xf3
		}
		if err := emitSSE(s, pfx, []byte{0x0f, 0x10}, d, physXMMOperand(src1)); err != nil {
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

// --- control flow ------------------------------------------------------

// condTTTN maps a Cond to the Jcc tttn field used by both the two-byte
// (0F 8x) near-jump encoding and the byte-compare SETcc encoding (0F 9x).
var condTTTN = map[arch.Cond]byte{
	arch.Equal:           0x4,
	arch.NotEqual:        0x5,
	arch.Less:            0x2, // unsigned <, CF=1
	arch.GreaterEqual:    0x3, // unsigned >=, CF=0
	arch.Greater:         0x7, // unsigned >
	arch.LessEqual:       0x6, // unsigned <=
	arch.SigLess:         0xc, // signed <
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

// EmitJump reserves a worst-case rel32 near jump/call site (5 bytes, or 6 for
// a conditional jcc) and records it for the assembler pass to patch once
// every label's final address is known. This module always emits the
// worst-case form: it does not attempt the rel8 shrink-to-fit optimization a
// production x86 assembler performs.
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

// EmitCmp fuses a compare with the following conditional branch (spec §4.5):
// cmp src1, src2 followed by the same Jcc EmitJump would produce.
func (b *Backend) EmitCmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	// Normalize so an immediate never appears as the first operand: cmp's
	// encoding only offers reg/mem,imm or reg,reg/mem forms.
	if src1.Kind == arch.KindImm && src2.Kind != arch.KindImm {
		src1, src2 = src2, src1
		cond = mirrorCond(cond)
	}
	switch {
	case src1.Kind == arch.KindReg && src2.Kind == arch.KindImm:
		if err := emit(s, rex(true, 0, 0, physGP(src1.Reg)), 0x81, modrm(3, 7, physGP(src1.Reg))); err != nil {
			return nil, arch.ErrAlloc
		}
		if err := emit(s, le32(int32(src2.Imm))...); err != nil {
			return nil, arch.ErrAlloc
		}
	case src1.Kind == arch.KindReg && src2.Kind == arch.KindReg:
		if err := emitModRMReg(s, true, []byte{0x39}, physGP(src2.Reg), physGP(src1.Reg)); err != nil {
			return nil, arch.ErrAlloc
		}
	case src1.Kind == arch.KindReg && (src2.Kind == arch.KindMem || src2.Kind == arch.KindMemIndexed):
		if err := emitMem(s, true, []byte{0x3b}, physGP(src1.Reg), src2); err != nil {
			return nil, arch.ErrAlloc
		}
	default:
		return nil, arch.ErrBadArgument
	}
	return b.EmitJump(s, cond, rewritable)
}

func (b *Backend) EmitFcmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	if err := emitSSE(s, 0x66, []byte{0x0f, 0x2e}, physXMMOperand(src1), physXMMOperand(src2)); err != nil {
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
	var opc byte = 0xff
	digit := 4 // jmp
	if cond == arch.Call0 || cond == arch.Call1 || cond == arch.Call2 || cond == arch.Call3 {
		digit = 2 // call
	}
	switch src.Kind {
	case arch.KindReg:
		if err := emitModRMReg(s, true, []byte{opc}, digit, physGP(src.Reg)); err != nil {
			return arch.ErrAlloc
		}
	case arch.KindMem, arch.KindMemIndexed:
		if err := emitMem(s, true, []byte{opc}, digit, src); err != nil {
			return arch.ErrAlloc
		}
	default:
		return arch.ErrBadArgument
	}
	return arch.Ok
}

// OpFlags materializes a condition as 0/1 (Mov) or folds it into dst via
// and/or/xor (spec §4.5 "OpFlags" component): setcc al; movzx dst, al; then
// the requested combine op against src.
func (b *Backend) OpFlags(s *arch.Session, op arch.Op, dst, src arch.Operand, cond arch.Cond) arch.ErrCode {
	tttn, ok := condTTTN[cond]
	if !ok {
		return arch.ErrBadArgument
	}
	if err := emit(s, 0x0f, 0x90|tttn, modrm(3, 0, rax)); err != nil { // setcc al
		return arch.ErrAlloc
	}
	if err := emitModRMReg(s, false, []byte{0x0f, 0xb6}, physGP(dst.Reg), rax); err != nil { // movzx
		return arch.ErrAlloc
	}
	switch op.Base() {
	case arch.Mov:
		// dst already holds the 0/1 result.
	case arch.And, arch.Or, arch.Xor:
		enc := op2Opcode[op.Base()]
		if src.Kind == arch.KindReg {
			if err := emitModRMReg(s, true, []byte{enc.regOp}, physGP(src.Reg), physGP(dst.Reg)); err != nil {
				return arch.ErrAlloc
			}
		}
	default:
		return arch.ErrBadArgument
	}
	return arch.Ok
}

// EmitConst reserves a rewritable 8-byte immediate load (movabs-style), the
// self-modifying-code target for the public SetConst API (spec §4.8).
func (b *Backend) EmitConst(s *arch.Session, dst arch.Operand, init int64) (*arch.Const, arch.ErrCode) {
	if dst.Kind != arch.KindReg {
		return nil, arch.ErrBadArgument
	}
	if err := emit(s, rex(true, 0, 0, physGP(dst.Reg)), 0xb8+byte(physGP(dst.Reg)&7)); err != nil {
		return nil, arch.ErrAlloc
	}
	c := &arch.Const{Addr: uintptr(s.Code.Size())}
	if err := emit(s, le64(init)...); err != nil {
		return nil, arch.ErrAlloc
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
	site := j.Addr
	var pc uintptr
	if j.Cond == arch.JumpAlways || j.Cond == arch.Call0 || j.Cond == arch.Call1 || j.Cond == arch.Call2 || j.Cond == arch.Call3 {
		pc = site + 4
	} else {
		pc = site + 4
	}
	rel := int64(targetAddr) - int64(pc)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return errRelocOutOfRange
	}
	binary.LittleEndian.PutUint32(code[site:], uint32(int32(rel)))
	return nil
}

func (b *Backend) PatchConst(code []byte, c *arch.Const, value int64) error {
	binary.LittleEndian.PutUint64(code[c.Addr:], uint64(value))
	return nil
}

type relocRangeError struct{}

func (relocRangeError) Error() string { return "amd64: relative branch target out of rel32 range" }

var errRelocOutOfRange = relocRangeError{}
