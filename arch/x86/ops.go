package x86

import (
	"fmt"

	"lirjit/arch"
)

var savedPhys = [...]int{ebx, esi, edi}

func align4(n int32) int32 { return (n + 3) &^ 3 }

func (b *Backend) frameSize(opts arch.EnterOptions) int32 {
	return align4(opts.LocalSize) + spillAreaSize
}

func (b *Backend) Enter(s *arch.Session, opts arch.EnterOptions) arch.ErrCode {
	if opts.Args < 0 || opts.Args > 3 || opts.Args > opts.Saveds {
		return arch.ErrBadArgument
	}
	s.Opts = opts

	if err := emit(s, 0x55); err != nil { // push ebp
		return arch.ErrAlloc
	}
	if err := emitModRMReg(s, []byte{0x89}, esp, ebp); err != nil { // mov ebp, esp
		return arch.ErrAlloc
	}
	for i := 0; i < opts.Saveds && i < len(savedPhys); i++ {
		if err := emit(s, byte(0x50+savedPhys[i])); err != nil { // push reg
			return arch.ErrAlloc
		}
	}
	frame := b.frameSize(opts)
	if frame > 0 {
		if err := emitModRMReg(s, []byte{0x81}, 5, esp); err != nil { // sub esp, frame
			return arch.ErrAlloc
		}
		if err := emit(s, le32(frame)...); err != nil {
			return arch.ErrAlloc
		}
	}

	// Marshal cdecl stack arguments ([ebp+8], [ebp+12], [ebp+16]) into the
	// virtual argument slots R1/R2/R3.
	if opts.Args >= 1 {
		if err := emitMem(s, []byte{0x8b}, eax, ebp, 0, false, 0, 8); err != nil {
			return arch.ErrAlloc
		}
	}
	if opts.Args >= 2 {
		if err := emitMem(s, []byte{0x8b}, ecx, ebp, 0, false, 0, 12); err != nil {
			return arch.ErrAlloc
		}
	}
	if opts.Args >= 3 {
		if err := emitMem(s, []byte{0x8b}, edx, ebp, 0, false, 0, 16); err != nil { // load into edx
			return arch.ErrAlloc
		}
		if err := storeSpill(s, 3, edx); err != nil { // R3's spill slot = arg2
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
		if err := emitModRMReg(s, []byte{0x81}, 0, esp); err != nil { // add esp, frame
			return err
		}
		if err := emit(s, le32(frame)...); err != nil {
			return err
		}
	}
	for i := s.Opts.Saveds - 1; i >= 0 && i < len(savedPhys); i-- {
		if err := emit(s, byte(0x58+savedPhys[i])); err != nil { // pop reg
			return err
		}
	}
	if err := emit(s, 0x5d); err != nil { // pop ebp
		return err
	}
	return emit(s, 0xc3) // ret
}

func (b *Backend) Return(s *arch.Session, op arch.Op, src arch.Operand) arch.ErrCode {
	if op.Base() == arch.Mov && !src.IsUnused() {
		if src.Kind == arch.KindReg {
			phys, err := loadSpill(s, src.Reg, edx)
			if err != nil {
				return arch.ErrAlloc
			}
			if phys != eax {
				if err := emitModRMReg(s, []byte{0x89}, phys, eax); err != nil {
					return arch.ErrAlloc
				}
			}
		} else if src.Kind == arch.KindImm {
			if err := emit(s, 0xb8); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, le32(int32(src.Imm))...); err != nil {
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
	if dst.Kind != arch.KindReg || isSpilled(dst.Reg) {
		return arch.ErrBadArgument
	}
	if err := emitMem(s, []byte{0x8b}, physGP(dst.Reg), esp, 0, false, 0, 0); err != nil { // mov dst, [esp]
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) FastReturn(s *arch.Session, src arch.Operand) arch.ErrCode {
	if src.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	phys, err := loadSpill(s, src.Reg, edx)
	if err != nil {
		return arch.ErrAlloc
	}
	if err := emitModRMReg(s, []byte{0xff}, 4, phys); err != nil { // jmp reg
		return arch.ErrAlloc
	}
	return arch.Ok
}

func (b *Backend) Op0(s *arch.Session, op arch.Op) arch.ErrCode {
	switch op.Base() {
	case arch.Nop:
		return errOk(emit(s, 0x90))
	case arch.Breakpoint:
		return errOk(emit(s, 0xcc))
	case arch.LMulUnsigned, arch.LMulSigned:
		digit := 4
		if op.Base() == arch.LMulSigned {
			digit = 5
		}
		return errOk(emitModRMReg(s, []byte{0xf7}, digit, ecx))
	case arch.LDivUnsigned:
		if err := emit(s, 0x31, modrm(3, edx, edx)); err != nil { // xor edx,edx
			return arch.ErrAlloc
		}
		return errOk(emitModRMReg(s, []byte{0xf7}, 6, ecx))
	case arch.LDivSigned:
		if err := emit(s, 0x99); err != nil { // cdq
			return arch.ErrAlloc
		}
		return errOk(emitModRMReg(s, []byte{0xf7}, 7, ecx))
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
	case arch.MovUI, arch.MovSI, arch.MovuUI, arch.MovuSI:
		if err := b.movPlain(s, dst, src); err != nil { // x86-32 has no native word wider than 32 bits
			return arch.ErrAlloc
		}
	case arch.Not:
		phys, err := loadSpill(s, dst.Reg, edx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0xf7}, 2, phys); err != nil {
			return arch.ErrAlloc
		}
		if err := storeSpill(s, dst.Reg, phys); err != nil {
			return arch.ErrAlloc
		}
	case arch.Neg:
		phys, err := loadSpill(s, dst.Reg, edx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0xf7}, 3, phys); err != nil {
			return arch.ErrAlloc
		}
		if err := storeSpill(s, dst.Reg, phys); err != nil {
			return arch.ErrAlloc
		}
	case arch.Clz:
		// lzcnt dst, src (F3 0F BD /r), matching the amd64 backend's choice;
		// this module does not probe for the extension at runtime.
		srcPhys, err := loadSpill(s, src.Reg, edx)
		if err != nil {
			return arch.ErrAlloc
		}
		target := physGP(dst.Reg)
		if isSpilled(dst.Reg) {
			target = ecx
		}
		if err := emit(s, 0xf3, 0x0f, 0xbd, modrm(3, target, srcPhys)); err != nil {
			return arch.ErrAlloc
		}
		if err := storeSpill(s, dst.Reg, target); err != nil {
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

// movPlain is spill-aware: a spilled source is first loaded into edx, a
// spilled destination is written back from edx after the move.
func (b *Backend) movPlain(s *arch.Session, dst, src arch.Operand) error {
	switch {
	case dst.Kind == arch.KindReg && src.Kind == arch.KindReg:
		sp, err := loadSpill(s, src.Reg, edx)
		if err != nil {
			return err
		}
		if isSpilled(dst.Reg) {
			return storeSpill(s, dst.Reg, sp)
		}
		return emitModRMReg(s, []byte{0x89}, sp, physGP(dst.Reg))
	case dst.Kind == arch.KindReg && src.Kind == arch.KindImm:
		if isSpilled(dst.Reg) {
			if err := emit(s, 0xb8+byte(edx&7)); err != nil {
				return err
			}
			if err := emit(s, le32(int32(src.Imm))...); err != nil {
				return err
			}
			return storeSpill(s, dst.Reg, edx)
		}
		if err := emit(s, 0xb8+byte(physGP(dst.Reg)&7)); err != nil {
			return err
		}
		return emit(s, le32(int32(src.Imm))...)
	case dst.Kind == arch.KindReg && (src.Kind == arch.KindMem || src.Kind == arch.KindMemIndexed):
		target := physGP(dst.Reg)
		if isSpilled(dst.Reg) {
			target = edx
		}
		if err := b.loadMem(s, target, src); err != nil {
			return err
		}
		return storeSpill(s, dst.Reg, target)
	case (dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed) && src.Kind == arch.KindReg:
		sp, err := loadSpill(s, src.Reg, edx)
		if err != nil {
			return err
		}
		return b.storeMem(s, sp, dst)
	default:
		return fmt.Errorf("x86: unsupported mov shape dst=%v src=%v", dst.Kind, src.Kind)
	}
}

func (b *Backend) loadMem(s *arch.Session, reg int, mem arch.Operand) error {
	base, index, hasIndex := memParts(mem)
	return emitMem(s, []byte{0x8b}, reg, base, index, hasIndex, mem.Shift, int32(mem.Imm))
}

func (b *Backend) storeMem(s *arch.Session, reg int, mem arch.Operand) error {
	base, index, hasIndex := memParts(mem)
	return emitMem(s, []byte{0x89}, reg, base, index, hasIndex, mem.Shift, int32(mem.Imm))
}

// memParts resolves a Mem/MemIndexed operand's base (and index, if any) to
// physical registers, forbidding a spilled base per spec §4.6 — callers are
// expected never to construct such an operand, but this module fails
// loud (ErrBadArgument via the caller) rather than addressing garbage.
func memParts(mem arch.Operand) (base, index int, hasIndex bool) {
	base = physGP(mem.Reg)
	hasIndex = mem.Kind == arch.KindMemIndexed
	if hasIndex {
		index = physGP(mem.Index)
	}
	return
}

func (b *Backend) movExt(s *arch.Session, dst, src arch.Operand, width int, signed bool) error {
	if dst.Kind == arch.KindMem || dst.Kind == arch.KindMemIndexed {
		sp, err := loadSpill(s, src.Reg, edx)
		if err != nil {
			return err
		}
		opc := byte(0x89)
		if width == 1 {
			opc = 0x88
		}
		base, index, hasIndex := memParts(dst)
		return emitMem(s, []byte{opc}, sp, base, index, hasIndex, dst.Shift, int32(dst.Imm))
	}
	var opc []byte
	switch {
	case width == 1 && !signed:
		opc = []byte{0x0f, 0xb6}
	case width == 1 && signed:
		opc = []byte{0x0f, 0xbe}
	default:
		if !signed {
			opc = []byte{0x0f, 0xb7}
		} else {
			opc = []byte{0x0f, 0xbf}
		}
	}
	target := physGP(dst.Reg)
	if isSpilled(dst.Reg) {
		target = edx
	}
	if src.Kind == arch.KindReg {
		sp, err := loadSpill(s, src.Reg, ecx)
		if err != nil {
			return err
		}
		if err := emitModRMReg(s, opc, target, sp); err != nil {
			return err
		}
	} else {
		base, index, hasIndex := memParts(src)
		if err := emitMem(s, opc, target, base, index, hasIndex, src.Shift, int32(src.Imm)); err != nil {
			return err
		}
	}
	return storeSpill(s, dst.Reg, target)
}

func (b *Backend) postUpdate(s *arch.Session, dst, src arch.Operand) error {
	mem := dst
	if dst.Kind != arch.KindMem {
		mem = src
	}
	if mem.Kind != arch.KindMem || mem.Imm == 0 {
		return nil
	}
	base := physGP(mem.Reg)
	if err := emitModRMReg(s, []byte{0x81}, 0, base); err != nil { // add base, imm
		return err
	}
	return emit(s, le32(int32(mem.Imm))...)
}

var op2Opcode = map[arch.Op]struct {
	regOp byte
	immEx byte
}{
	arch.Add: {0x01, 0},
	arch.Sub: {0x29, 5},
	arch.And: {0x21, 4},
	arch.Or:  {0x09, 1},
	arch.Xor: {0x31, 6},
}

// Op2 materializes any spilled operand into a work register around the
// instruction. The work register is never ecx: register shifts need CL for
// the count and every other form uses ecx as src2's scratch, so if dst's
// physical home is ecx itself, the accumulation happens in edx instead and
// gets copied into ecx only at the very end.
func (b *Backend) Op2(s *arch.Session, op arch.Op, dst, src1, src2 arch.Operand) arch.ErrCode {
	base := op.Base()

	d := edx
	physDst := physGP(dst.Reg)
	spilled := isSpilled(dst.Reg)
	if !spilled && physDst != ecx {
		d = physDst
	}

	if !(src1.Kind == arch.KindReg && src1.Reg == dst.Reg && d == physDst && !spilled) {
		s1, err := loadSpill(s, src1.Reg, d)
		if err != nil {
			return arch.ErrAlloc
		}
		if s1 != d {
			if err := emitModRMReg(s, []byte{0x89}, s1, d); err != nil {
				return arch.ErrAlloc
			}
		}
	}

	switch base {
	case arch.Add, arch.Sub, arch.And, arch.Or, arch.Xor:
		enc := op2Opcode[base]
		if src2.Kind == arch.KindImm {
			if err := emitModRMReg(s, []byte{0x81}, int(enc.immEx), d); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, le32(int32(src2.Imm))...); err != nil {
				return arch.ErrAlloc
			}
		} else {
			s2, err := loadSpill(s, src2.Reg, ecx)
			if err != nil {
				return arch.ErrAlloc
			}
			if err := emitModRMReg(s, []byte{enc.regOp}, s2, d); err != nil {
				return arch.ErrAlloc
			}
		}
	case arch.Addc:
		s2, err := loadSpill(s, src2.Reg, ecx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0x11}, s2, d); err != nil {
			return arch.ErrAlloc
		}
	case arch.Subc:
		s2, err := loadSpill(s, src2.Reg, ecx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emitModRMReg(s, []byte{0x19}, s2, d); err != nil {
			return arch.ErrAlloc
		}
	case arch.Mul:
		s2, err := loadSpill(s, src2.Reg, ecx)
		if err != nil {
			return arch.ErrAlloc
		}
		if err := emit(s, 0x0f, 0xaf, modrm(3, d, s2)); err != nil {
			return arch.ErrAlloc
		}
	case arch.Shl, arch.Lshr, arch.Ashr:
		digit := map[arch.Op]int{arch.Shl: 4, arch.Lshr: 5, arch.Ashr: 7}[base]
		if src2.Kind == arch.KindImm {
			if err := emitModRMReg(s, []byte{0xc1}, digit, d); err != nil {
				return arch.ErrAlloc
			}
			if err := emit(s, byte(src2.Imm)); err != nil {
				return arch.ErrAlloc
			}
		} else {
			s2, err := loadSpill(s, src2.Reg, ecx)
			if err != nil {
				return arch.ErrAlloc
			}
			if s2 != ecx {
				if err := emitModRMReg(s, []byte{0x89}, s2, ecx); err != nil {
					return arch.ErrAlloc
				}
			}
			if err := emitModRMReg(s, []byte{0xd3}, digit, d); err != nil {
				return arch.ErrAlloc
			}
		}
	default:
		return arch.ErrBadArgument
	}

	if spilled {
		if err := storeSpill(s, dst.Reg, d); err != nil {
			return arch.ErrAlloc
		}
	} else if d != physDst {
		if err := emitModRMReg(s, []byte{0x89}, d, physDst); err != nil {
			return arch.ErrAlloc
		}
	}
	s.LastOp = op
	s.LastDst = dst
	return arch.Ok
}

func (b *Backend) OpCustom(s *arch.Session, raw []byte) arch.ErrCode {
	if len(raw) == 0 || len(raw) > 15 {
		return arch.ErrBadArgument
	}
	return errOk(emit(s, raw...))
}

func (b *Backend) LocalBase(s *arch.Session, dst arch.Operand, offset int32) arch.ErrCode {
	if dst.Kind != arch.KindReg {
		return arch.ErrBadArgument
	}
	target := physGP(dst.Reg)
	if isSpilled(dst.Reg) {
		target = edx
	}
	if err := emit(s, 0x8d); err != nil { // lea
		return arch.ErrAlloc
	}
	if err := emit(s, modrm(2, target, 4), 0x24); err != nil { // SIB: base=esp, no index
		return arch.ErrAlloc
	}
	if err := emit(s, le32(offset)...); err != nil {
		return arch.ErrAlloc
	}
	return errOk(storeSpill(s, dst.Reg, target))
}
