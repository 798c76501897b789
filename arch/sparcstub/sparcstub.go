// Package sparcstub registers the Platform Descriptor for SPARC-32:
// dispatch and descriptor introspection work end to end, but every emission
// method returns arch.ErrUnsupported, per SPEC_FULL.md's "Reduced-but-complete
// architecture coverage". SPARC-32 sets HasDelaySlot like MIPS.
package sparcstub

import (
	"lirjit/arch"
)

type Backend struct {
	descr arch.Descriptor
}

func New() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.SPARC32, WordSize: 4, BigEndian: true, UnalignedOK: false,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 8, HasDelaySlot: true, Supported: false,
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
