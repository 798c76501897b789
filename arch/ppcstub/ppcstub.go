// Package ppcstub registers Platform Descriptors for PPC-32 and PPC-64:
// dispatch and descriptor introspection work end to end, but every emission
// method returns arch.ErrUnsupported, per SPEC_FULL.md's "Reduced-but-complete
// architecture coverage". PPC-64 BE (and AIX PPC-32) additionally set
// IndirectCallABI, since a real backend there would return a function
// descriptor rather than a direct entry pointer from GenerateCode.
package ppcstub

import (
	"lirjit/arch"
)

type Backend struct {
	descr arch.Descriptor
}

func NewPPC32() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.PPC32, WordSize: 4, BigEndian: true, UnalignedOK: false,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 4, IndirectCallABI: true, Supported: false,
	}}
}

func NewPPC64() *Backend {
	return &Backend{descr: arch.Descriptor{
		Target: arch.PPC64, WordSize: 8, BigEndian: true, UnalignedOK: false,
		NumRegs: 12, NumScratchRegs: 6, NumSavedRegs: 5, NumFRegs: 8,
		SPReg: 12, ReturnAddrOffset: 8, IndirectCallABI: true, Supported: false,
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
