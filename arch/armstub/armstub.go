// Package armstub registers Platform Descriptors for the three 32-bit ARM
// targets this module does not carry a full encoder for (ARMv5, ARMv7,
// Thumb-2): dispatch and descriptor introspection work end to end, but every
// emission method returns arch.ErrUnsupported, per SPEC_FULL.md's
// "Reduced-but-complete architecture coverage" — arm64 is the one ARM family
// with a real backend (see arch/arm64).
package armstub

import (
	"lirjit/arch"
)

// Backend is a stub implementation of arch.Backend: every emission method
// returns arch.ErrUnsupported without touching the Session.
type Backend struct {
	descr arch.Descriptor
}

// NewARMv5 returns a stub Backend for 32-bit ARMv5 (the one target with a
// literal-pool constant mechanism instead of inline rewritable immediates).
func NewARMv5() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.ARMv5, WordSize: 4, BigEndian: false, UnalignedOK: false,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 4, HasConstPool: true, Supported: false,
	}}
}

// NewARMv7 returns a stub Backend for 32-bit ARMv7 (VFP/NEON-era ARM, no
// literal-pool requirement).
func NewARMv7() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.ARMv7, WordSize: 4, BigEndian: false, UnalignedOK: true,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 4, Supported: false,
	}}
}

// NewThumb2 returns a stub Backend for the Thumb-2 instruction encoding
// (CodePtr.Entry would carry its low address bit set on a real backend).
func NewThumb2() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.Thumb2, WordSize: 4, BigEndian: false, UnalignedOK: true,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 4, Supported: false,
	}}
}

func (b *Backend) Descriptor() arch.Descriptor { return b.descr }

func (b *Backend) CacheFlush(addr uintptr, size int) {}

func (b *Backend) GetRegIndex(vreg arch.Register, float bool) int { return -1 }

func (b *Backend) Enter(s *arch.Session, opts arch.EnterOptions) arch.ErrCode      { return arch.ErrUnsupported }
func (b *Backend) SetContext(s *arch.Session, opts arch.EnterOptions) arch.ErrCode { return arch.ErrUnsupported }
func (b *Backend) Return(s *arch.Session, op arch.Op, src arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) FastEnter(s *arch.Session, dst arch.Operand) arch.ErrCode  { return arch.ErrUnsupported }
func (b *Backend) FastReturn(s *arch.Session, src arch.Operand) arch.ErrCode { return arch.ErrUnsupported }

func (b *Backend) Op0(s *arch.Session, op arch.Op) arch.ErrCode { return arch.ErrUnsupported }
func (b *Backend) Op1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) Op2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) Fop1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) Fop2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}

func (b *Backend) EmitLabel(s *arch.Session) *arch.Label { return nil }
func (b *Backend) EmitJump(s *arch.Session, cond arch.Cond, rewritable bool) (*arch.Jump, arch.ErrCode) {
	return nil, arch.ErrUnsupported
}
func (b *Backend) EmitCmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	return nil, arch.ErrUnsupported
}
func (b *Backend) EmitFcmp(s *arch.Session, cond arch.Cond, src1, src2 arch.Operand, rewritable bool) (*arch.Jump, arch.ErrCode) {
	return nil, arch.ErrUnsupported
}
func (b *Backend) EmitIjump(s *arch.Session, cond arch.Cond, src arch.Operand) arch.ErrCode {
	return arch.ErrUnsupported
}

func (b *Backend) OpFlags(s *arch.Session, op arch.Op, dst, src arch.Operand, cond arch.Cond) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) LocalBase(s *arch.Session, dst arch.Operand, offset int32) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) EmitConst(s *arch.Session, dst arch.Operand, init int64) (*arch.Const, arch.ErrCode) {
	return nil, arch.ErrUnsupported
}
func (b *Backend) LabelAddr(s *arch.Session, dst arch.Operand, lbl *arch.Label) arch.ErrCode {
	return arch.ErrUnsupported
}
func (b *Backend) OpCustom(s *arch.Session, raw []byte) arch.ErrCode { return arch.ErrUnsupported }

func (b *Backend) PatchJump(code []byte, j *arch.Jump, targetAddr uintptr) error {
	return arch.ErrUnsupported
}
func (b *Backend) PatchConst(code []byte, c *arch.Const, value int64) error {
	return arch.ErrUnsupported
}
