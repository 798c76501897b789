package amd64

import (
	"fmt"

	"lirjit/arch"
)

// savedPhys lists the callee-saved physical registers in the order Enter
// pushes them / Return pops them, corresponding to virtual R7..R11.
var savedPhys = [...]int{rbx, r12, r13, r14, r15}

func align16(n int32) int32 {
	return (n + 15) &^ 15
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

	_ = emit(s, 0x55)                 // push rbp
	_ = emit(s, rex(true, 0, 0, 0))   // REX.W
	_ = emit(s, 0x89, modrm(3, rsp, rbp)) // mov rbp, rsp

	for i := 0; i < opts.Saveds && i < len(savedPhys); i++ {
		phys := savedPhys[i]
		if phys >= 8 {
			_ = emit(s, rex(false, 0, 0, phys))
		}
		_ = emit(s, byte(0x50+(phys&7)))
	}

	frame := b.frameSize(opts)
	if frame > 0 {
		if err := emitModRMReg(s, true, []byte{0x81}, 5, rsp); err != nil {
			return arch.ErrAlloc
		}
		if err := emit(s, le32(frame)...); err != nil {
			return arch.ErrAlloc
		}
	}

	// Marshal SysV argument registers (rdi, rsi, rdx) into the virtual
	// argument slots R1/R2/R3 (rax, rcx, rdx). R3's physical home already
	// matches the incoming rdx, so only the first two need a move.
	if opts.Args >= 1 {
		if err := emitModRMReg(s, true, []byte{0x89}, rdi, rax); err != nil {
			return arch.ErrAlloc
		}
	}
	if opts.Args >= 2 {
		if err := emitModRMReg(s, true, []byte{0x89}, rsi, rcx); err != nil {
			return arch.ErrAlloc
		}
	}

	return arch.Ok
}

func (b *Backend) SetContext(s *arch.Session, opts arch.EnterOptions) arch.ErrCode {
	// Same quota bookkeeping as Enter but emits no prologue: the caller has
	// already built (or will build) an equivalent frame by hand.
	if opts.Args < 0 || opts.Args > 3 || opts.Args > opts.Saveds {
		return arch.ErrBadArgument
	}
	s.Opts = opts
	return arch.Ok
}

func (b *Backend) epilogue(s *arch.Session) error {
	frame := b.frameSize(s.Opts)
	if frame > 0 {
		if err := emitModRMReg(s, true, []byte{0x81}, 0, rsp); err != nil {
			return err
		}
		if err := emit(s, le32(frame)...); err != nil {
			return err
		}
	}
	for i := s.Opts.Saveds - 1; i >= 0 && i < len(savedPhys); i-- {
		phys := savedPhys[i]
		if phys >= 8 {
			if err := emit(s, rex(false, 0, 0, phys)); err != nil {
				return err
			}
		}
		if err := emit(s, byte(0x58+(phys&7))); err != nil {
			return err
		}
	}
	if err := emit(s, 0x5d); err != nil { // pop rbp
		return err
	}
	return emit(s, 0xc3) // ret
}

func (b *Backend) Return(s *arch.Session, op arch.Op, src arch.Operand) arch.ErrCode {
	if op.Base() == arch.Mov && !src.IsUnused() {
		if src.Kind == arch.KindReg && physGP(src.Reg) != rax {
			if err := emitModRMReg(s, true, []byte{0x89}, physGP(src.Reg), rax); err != nil {
				return arch.ErrAlloc
			}
		} else if src.Kind == arch.KindImm {
			if err := emit(s, rex(true, 0, 0, rax), 0xb8+byte(rax)); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, le64(src.Imm)...); err != nil {
				return arch.ErrAlloc
			}
		}
	}
	if err := b.epilogue(s); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) FastEnter(s *arch.Session, dst arch.Operand) arch.ErrCode {
	// Copy the return address off the top of the stack without popping it,
	// the way a tail-callable leaf routine observes its caller per spec §6
	// "preserve caller stack frame". rsp is the physical stack pointer, never
	// a virtual register, so this is encoded directly rather than through
	// emitMem's virtual-register addressing path.
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	reg := physGP(dst.Reg)
	if err := emit(s, rex(true, reg, 0, rsp)); err != nil {
		return arch.ErrAlloc
	}
	if err := emit(s, 0x8b, modrm(0, reg, 4), 0x24); err != nil { // mov reg, [rsp]
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) FastReturn(s *arch.Session, src arch.Operand) arch.ErrCode {
	if src.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	phys := physGP(src.Reg)
	if err := emit(s, rex(false, 0, 0, phys), 0xff, modrm(3, 4, phys)); err != nil { // jmp rm64
		return arch.ErrAlloc
	}
	return arch.Ok
}

// --- op0/op1/op2 ---------------------------------------------------------

func (b *Backend) Op0(s *arch.Session, op arch.Op) arch.ErrCode {
	switch op.Base() {
	case arch.Nop:
		_ = emit(s, 0x90)
	case arch.Breakpoint:
		_ = emit(s, 0xcc)
	case arch.LMulUnsigned, arch.LMulSigned:
		opc := byte(0xf7)
		regField := 4 // MUL
		if op.Base() == arch.LMulSigned {
			regField = 5 // IMUL
		}
		_ = emit(s, rex(true, 0, 0, rcx), opc, modrm(3, regField, rcx))
	case arch.LDivUnsigned:
		_ = emit(s, rex(true, 0, 0, rdx)) // xor edx,edx via separate path below
		_ = emit(s, 0x31, modrm(3, rdx, rdx))
		_ = emit(s, rex(true, 0, 0, rcx), 0xf7, modrm(3, 6, rcx))
	case arch.LDivSigned:
		_ = emit(s, rex(true, 0, 0, 0), 0x99) // cqo: sign-extend rax into rdx
		_ = emit(s, rex(true, 0, 0, rcx), 0xf7, modrm(3, 7, rcx))
	default:
		return arch.ErrBadArgument
	}
	return arch.Ok
}

func (b *Backend) Op1(s *arch.Session, op arch.Op, dst, src arch.Operand) arch.ErrCode {
	base := op.Base()
	width := 8
	if op.Has(arch.IntOp) {
		width = 4
	}

	switch base {
	case arch.Mov, arch.MovP, arch.MovuB, arch.MovuP:
		if err := b.movPlain(s, width, dst, src); err != nil {
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
		if err := emitModRMReg(s, width == 8, []byte{0xf7}, 2, physGP(dst.Reg)); err != nil {
			return arch.ErrAlloc
		}
	case arch.Neg:
		if err := emitModRMReg(s, width == 8, []byte{0xf7}, 3, physGP(dst.Reg)); err != nil {
			return arch.ErrAlloc
		}
	case arch.Clz:
		// lzcnt dst, src (F3 0F BD /r); falls back to bsr semantics on CPUs
		// without the extension, which this module does not probe for.
		if err := emit(s, 0xf3); err != nil {
			return arch.ErrAlloc
		}
		if err := emit(s, rex(width == 8, physGP(dst.Reg), 0, physGP(src.Reg))); err != nil {
			return arch.ErrAlloc
		}
		if err := emit(s, 0x0f, 0xbd, modrm(3, physGP(dst.Reg), physGP(src.Reg))); err != nil {
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

// movPlain handles the common dst/src shapes for a full-width (word/pointer)
// move: reg<-reg, reg<-imm, reg<-mem, mem<-reg, mem<-imm.
func (b *Backend) movPlain(s *arch.Session, width int, dst, src arch.Operand) error {
	w := width == 8
	switch {
	case dst.Kind == arch.KindReg && src.Kind == arch.KindReg:
		return emitModRMReg(s, w, []byte{0x89}, physGP(src.Reg), physGP(dst.Reg))
	case dst.Kind == arch.KindReg && src.Kind == arch.KindImm:
		if err := emit(s, rex(w, 0, 0, physGP(dst.Reg)), 0xb8+byte(physGP(dst.Reg)&7)); err != nil {
			return err
		}
		return emit(s, le64(src.Imm)...)
	case dst.Kind == arch.KindReg && (src.Kind == arch.KindMem || src.Kind == arch.KindMemIndexed):
		return emitMem(s, w, []byte{0x8b}, physGP(dst.Reg), src)
	case (dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed) && src.Kind == arch.KindReg:
		return emitMem(s, w, []byte{0x89}, physGP(src.Reg), dst)
	default:
		return fmt.Errorf("amd64: unsupported mov shape dst=%v src=%v", dst.Kind, src.Kind)
	}
}

// movExt handles the sign/zero-extending load variants (byte/half/int),
// which only make sense with a memory or register source into a register
// destination (a store narrows instead, using the plain store opcode sized
// to width).
func (b *Backend) movExt(s *arch.Session, dst, src arch.Operand, width int, signed bool) error {
	if dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed {
		// Narrowing store: mov [dst], src_low_width
		opc := byte(0x89)
		if width == 1 {
			opc = 0x88
		}
		prefix := width == 2
		if prefix {
			_ = emit(s, 0x66)
		}
		return emitMem(s, width == 8, []byte{opc}, physGP(src.Reg), dst)
	}
	var opc []byte
	switch {
	case width == 1 && !signed:
		opc = []byte{0x0f, 0xb6} // movzx
	case width == 1 && signed:
		opc = []byte{0x0f, 0xbe} // movsx
	case width == 2 && !signed:
		opc = []byte{0x0f, 0xb7}
	case width == 2 && signed:
		opc = []byte{0x0f, 0xbf}
	case width == 4 && !signed:
		// mov r32, r/m32 zero-extends the top 32 bits implicitly.
		if src.Kind == arch.KindReg {
			return emitModRMReg(s, false, []byte{0x8b}, physGP(dst.Reg), physGP(src.Reg))
		}
		return emitMem(s, false, []byte{0x8b}, physGP(dst.Reg), src)
	case width == 4 && signed:
		if src.Kind == arch.KindReg {
			return emitModRMReg(s, true, []byte{0x63}, physGP(dst.Reg), physGP(src.Reg))
		}
		return emitMem(s, true, []byte{0x63}, physGP(dst.Reg), src)
	}
	if src.Kind == arch.KindReg {
		return emitModRMReg(s, true, opc, physGP(dst.Reg), physGP(src.Reg))
	}
	return emitMem(s, true, opc, physGP(dst.Reg), src)
}

// postUpdate applies the MOVU* side effect (spec §4.1): whichever operand is
// a memory reference with a register base gets that base incremented by the
// offset actually used.
func (b *Backend) postUpdate(s *arch.Session, dst, src arch.Operand) error {
	mem := dst
	if dst.Kind != arch.KindMem {
		mem = src
	}
	if mem.Kind != arch.KindMem || mem.Imm == 0 {
		return nil
	}
	// add base, imm
	if err := emit(s, rex(true, 0, 0, physGP(mem.Reg)), 0x81, modrm(3, 0, physGP(mem.Reg))); err != nil {
		return err
	}
	return emit(s, le32(int32(mem.Imm))...)
}

var op2Opcode = map[arch.Op]struct {
	regOp byte // reg,reg form: op dst(also src1), src2 — 0x01-family
	immEx byte // /digit for 0x81 immediate form
}{
	arch.Add: {0x01, 0},
	arch.Sub: {0x29, 5},
	arch.And: {0x21, 4},
	arch.Or:  {0x09, 1},
	arch.Xor: {0x31, 6},
}

func (b *Backend) Op2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	base := op.Base()
	w := !op.Has(arch.IntOp)

	// Normalize to a two-address form: dst must end up holding src1 op src2.
	// When dst != src1 we materialize src1 into dst first (mov), matching
	// every other backend's three-address LIR surface over x86's native
	// two-address instructions.
	if dst.Kind == arch.KindReg && !(src1.Kind == arch.KindReg && src1.Reg == dst.Reg) {
		if err := b.movPlain(s, 8, dst, src1); err != nil {
			return arch.ErrAlloc
		}
	}

	switch base {
	case arch.Add, arch.Sub, arch.And, arch.Or, arch.Xor:
		enc := op2Opcode[base]
		if src2.Kind == arch.KindImm {
			if err := emitModRMReg(s, w, []byte{0x81}, int(enc.immEx), physGP(dst.Reg)); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, le32(int32(src2.Imm))...); err != nil {
				return arch.ErrAlloc
			}
		} else if src2.Kind == arch.KindMem || src2.Kind == arch.KindMemIndexed {
			// op r, r/m is the op r/m, r opcode + 2.
			if err := emitMem(s, w, []byte{enc.regOp + 2}, physGP(dst.Reg), src2); err != nil {
				return arch.ErrAlloc
			}
		} else {
			if err := emitModRMReg(s, w, []byte{enc.regOp}, physGP(src2.Reg), physGP(dst.Reg)); err != nil {
				return arch.ErrAlloc
			}
		}
	case arch.Addc:
		if err := emitModRMReg(s, w, []byte{0x11}, physGP(src2.Reg), physGP(dst.Reg)); err != nil { // adc
			return arch.ErrAlloc
		}
	case arch.Subc:
		if err := emitModRMReg(s, w, []byte{0x19}, physGP(src2.Reg), physGP(dst.Reg)); err != nil { // sbb
			return arch.ErrAlloc
		}
	case arch.Mul:
		if err := emit(s, rex(w, physGP(dst.Reg), 0, physGP(src2.Reg))); err != nil {
			return arch.ErrAlloc
		}
		if err := emit(s, 0x0f, 0xaf, modrm(3, physGP(dst.Reg), physGP(src2.Reg))); err != nil { // imul
			return arch.ErrAlloc
		}
	case arch.Shl, arch.Lshr, arch.Ashr:
		digit := map[arch.Op]int{arch.Shl: 4, arch.Lshr: 5, arch.Ashr: 7}[base]
		if src2.Kind == arch.KindImm {
			if err := emitModRMReg(s, w, []byte{0xc1}, digit, physGP(dst.Reg)); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, byte(src2.Imm)); err != nil {
				return arch.ErrAlloc
			}
		} else {
			// shift count must be in CL.
			if physGP(src2.Reg) != rcx {
				if err := emitModRMReg(s, true, []byte{0x89}, physGP(src2.Reg), rcx); err != nil {
					return arch.ErrAlloc
				}
			}
			if err := emitModRMReg(s, w, []byte{0xd3}, digit, physGP(dst.Reg)); err != nil {
				return arch.ErrAlloc
			}
		}
	default:
		return arch.ErrBadArgument
	}

	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) OpCustom(s *arch.Session, raw []byte) arch.ErrCode {
	if len(raw) == 0 || len(raw) > 15 {
		return arch.ErrBadArgument
	}
	if err := emit(s, raw...); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) LocalBase(s *arch.Session, dst arch.Operand, offset int32) arch.ErrCode {
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	// lea dst, [rsp+offset]
	if err := emit(s, rex(true, physGP(dst.Reg), 0, rsp)); err != nil {
		return arch.ErrAlloc
	}
	if err := emit(s, 0x8d); err != nil {
		return arch.ErrAlloc
	}
	if err := emit(s, modrm(2, physGP(dst.Reg), 4), 0x24); err != nil { // SIB: no index, base=rsp
		return arch.ErrAlloc
	}
	if err := emit(s, le32(offset)...); err != nil {
		return arch.ErrAlloc
	}
	return arch.Ok
}
