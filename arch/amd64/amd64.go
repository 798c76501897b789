// Package amd64 implements the x86-64 System V back end. It is the fullest
// of the three real encoders in this module and the one against which the
// shared emission protocol in the root package was worked out first.
//
// Register model (spec §3): virtual registers 1..11 are physical GPRs, 12 is
// the reserved stack-pointer alias. 1-6 are caller-saved (scratch), 7-11 are
// callee-saved (saved); RSP/RBP are never exposed as virtual registers since
// RBP anchors the frame this package's prologue builds.
package amd64

import (
	"lirjit/arch"
	"lirjit/internal/cacheflush"
)

// Descriptor returns the Platform Descriptor for x86-64 SysV.
func Descriptor() arch.Descriptor {
	return arch.Descriptor{
		Target:           arch.AMD64,
		WordSize:         8,
		BigEndian:        false,
		UnalignedOK:      true,
		NumRegs:          12,
		NumScratchRegs:   6,
		NumSavedRegs:     5,
		NumFRegs:         8,
		SPReg:            12,
		LocalsOffset:     0,
		ReturnAddrOffset: 8,
		Supported:        true,
	}
}

// physical GPR encodings (3-bit field + REX.B/.R/.X extension bit folded in
// as values 8-15).
const (
	rax = 0
	rcx = 1
	rdx = 2
	rbx = 3
	rsp = 4
	rbp = 5
	rsi = 6
	rdi = 7
	r8  = 8
	r9  = 9
	r10 = 10
	r11 = 11
	r12 = 12
	r13 = 13
	r14 = 14
	r15 = 15
)

// gpMap maps virtual register 1..12 to a physical encoding; index 12 (SP)
// maps to rsp, so a [SP+imm] operand addresses the local frame.
var gpMap = [...]int{0, rax, rcx, rdx, rsi, rdi, r8, rbx, r12, r13, r14, r15, rsp}

func physGP(v arch.Register) int {
	if int(v) < len(gpMap) {
		return gpMap[v]
	}
	return rax
}

func physXMM(v arch.Register) int { return int(v) - 1 } // FR1..FR8 -> xmm0..xmm7

// Backend implements arch.Backend for x86-64.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Descriptor() arch.Descriptor { return Descriptor() }

func (b *Backend) CacheFlush(addr uintptr, size int) { cacheflush.Flush(addr, size) }

func (b *Backend) GetRegIndex(vreg arch.Register, float bool) int {
	if float {
		return physXMM(vreg)
	}
	return physGP(vreg)
}

// --- encoding helpers -------------------------------------------------

func emit(s *arch.Session, bytes ...byte) error {
	dst, err := s.Code.Ensure(len(bytes))
	if err != nil {
		return err
	}
	copy(dst, bytes)
	return nil
}

func rex(w bool, r, x, bb int) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r&8 != 0 {
		v |= 0x04
	}
	if x&8 != 0 {
		v |= 0x02
	}
	if bb&8 != 0 {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6) | byte((reg&7)<<3) | byte(rm&7)
}

func le32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func le64(v int64) []byte {
	out := make([]byte, 8)
	for i := range out {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// emitModRMReg emits REX+opcode+ModRM for a register-register form: op reg, rm.
func emitModRMReg(s *arch.Session, w bool, opcode []byte, reg, rm int) error {
	if err := emit(s, rex(w, reg, 0, rm)); err != nil {
		return err
	}
	if err := emit(s, opcode...); err != nil {
		return err
	}
	return emit(s, modrm(3, reg, rm))
}

// emitMem emits REX+opcode+ModRM/SIB/disp for [base+disp32] or
// [base+index<<shift+disp32], reg is the non-memory operand's encoding.
func emitMem(s *arch.Session, w bool, opcode []byte, reg int, mem arch.Operand) error {
	base := physGP(mem.Reg)
	hasIndex := mem.Kind == arch.KindMemIndexed
	var index int
	if hasIndex {
		index = physGP(mem.Index)
	}
	if err := emit(s, rex(w, reg, index, base)); err != nil {
		return err
	}
	if err := emit(s, opcode...); err != nil {
		return err
	}
	disp := int32(mem.Imm)
	needSIB := hasIndex || base&7 == rsp
	modBits := 2 // disp32 always, simplest correct encoding
	if disp == 0 && base&7 != rbp {
		modBits = 0
	}
	rm := base & 7
	if needSIB {
		rm = 4
	}
	if err := emit(s, modrm(modBits, reg, rm)); err != nil {
		return err
	}
	if needSIB {
		scale := mem.Shift
		idx := 4 // no index
		if hasIndex {
			idx = index & 7
		}
		if err := emit(s, byte(scale<<6)|byte((idx&7)<<3)|byte(base&7)); err != nil {
			return err
		}
	}
	if modBits == 2 {
		return emit(s, le32(disp)...)
	}
	return nil
}
