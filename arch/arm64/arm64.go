// Package arm64 implements the AArch64 back end. Prologue/epilogue shape and
// the base instruction-word constants are adapted from this module's
// predecessor ARM64 code generator; the compare/branch fusion, virtual
// register marshaling, and the full op1/op2/fop tables are new, built against
// the same AAPCS64 register conventions.
package arm64

import (
	"lirjit/arch"
	"lirjit/internal/cacheflush"
)

// Descriptor returns the Platform Descriptor for AArch64 (AAPCS64).
func Descriptor() arch.Descriptor {
	return arch.Descriptor{
		Target:           arch.ARM64,
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

// physical GPR encodings, 0-31 (31 is SP in load/store base position, XZR
// elsewhere depending on instruction class).
const (
	x0  = 0
	x1  = 1
	x2  = 2
	x3  = 3
	x4  = 4
	x5  = 5
	x16 = 16 // reserved scratch for large-immediate materialization (IP0)
	x19 = 19
	x20 = 20
	x21 = 21
	x22 = 22
	x23 = 23
	x29 = 29 // frame pointer
	x30 = 30 // link register
	spReg = 31
)

// gpMap maps virtual register 1..11 to its physical Xn; arg registers X0-X2
// coincide with AAPCS64's first three argument registers, so Enter needs no
// marshaling moves the way amd64's does.
var gpMap = [...]int{0, x0, x1, x2, x3, x4, x5, x19, x20, x21, x22, x23}

func physGP(v arch.Register) int {
	if int(v) < len(gpMap) {
		return gpMap[v]
	}
	return x0
}

// fpMap maps virtual float register 1..8 to its physical Dn; FR1-FR4 are
// caller-saved scratch (D0-D3), FR5-FR8 are callee-saved (D8-D11) and must be
// stacked in the prologue whenever Opts.FSaveds names them (spec's
// independent float-saved quota).
var fpMap = [...]int{0, 0, 1, 2, 3, 8, 9, 10, 11}

func physFP(v arch.Register) int {
	if int(v) < len(fpMap) {
		return fpMap[v]
	}
	return 0
}

// Backend implements arch.Backend for AArch64.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Descriptor() arch.Descriptor { return Descriptor() }

func (b *Backend) CacheFlush(addr uintptr, size int) { cacheflush.Flush(addr, size) }

func (b *Backend) GetRegIndex(vreg arch.Register, float bool) int {
	if float {
		return physFP(vreg)
	}
	return physGP(vreg)
}

// --- encoding helpers ---------------------------------------------------

func emit32(s *arch.Session, word uint32) error {
	dst, err := s.Code.Ensure(4)
	if err != nil {
		return err
	}
	dst[0] = byte(word)
	dst[1] = byte(word >> 8)
	dst[2] = byte(word >> 16)
	dst[3] = byte(word >> 24)
	return nil
}

func movz(rd int, imm16 uint16, hw uint8) uint32 {
	return 0xD2800000 | (uint32(hw) << 21) | (uint32(imm16) << 5) | uint32(rd)
}
func movk(rd int, imm16 uint16, hw uint8) uint32 {
	return 0xF2800000 | (uint32(hw) << 21) | (uint32(imm16) << 5) | uint32(rd)
}

// loadImm64 materializes an arbitrary 64-bit immediate into rd via up to four
// MOVZ/MOVK instructions, skipping all-zero halfwords after the first.
func loadImm64(s *arch.Session, rd int, v int64) error {
	u := uint64(v)
	first := true
	for hw := 0; hw < 4; hw++ {
		half := uint16(u >> (16 * hw))
		if half == 0 && hw != 0 {
			continue
		}
		var word uint32
		if first {
			word = movz(rd, half, uint8(hw))
			first = false
		} else {
			word = movk(rd, half, uint8(hw))
		}
		if err := emit32(s, word); err != nil {
			return err
		}
	}
	if first { // v == 0
		return emit32(s, movz(rd, 0, 0))
	}
	return nil
}

func addSubImm(op uint32, rd, rn int, imm int32) uint32 {
	return op | (uint32(imm&0xFFF) << 10) | (uint32(rn) << 5) | uint32(rd)
}

const (
	opADDImm = 0x91000000
	opSUBImm = 0xD1000000
	opADDReg = 0x8B000000
	opSUBReg = 0xCB000000
	opANDReg = 0x8A000000
	opORRReg = 0xAA000000
	opEORReg = 0xCA000000
	opMADD   = 0x9B000000
	opSDIV   = 0x9AC00C00
	opUDIV   = 0x9AC00800
	opLSLV   = 0x9AC02000
	opLSRV   = 0x9AC02400
	opASRV   = 0x9AC02800
	opSUBSReg = 0xEB000000 // CMP alias when Rd=XZR
	opADDSReg = 0xAB000000
	opSUBSImm = 0xF1000000
	opADDSImm = 0xB1000000
)

func regForm(op uint32, rd, rn, rm int) uint32 {
	return op | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}

// emitAddSubImmOrMaterialize emits an ADD/SUB-immediate when imm fits 12
// bits, or materializes imm into x16 and falls back to the register form.
func emitAddSubImmOrMaterialize(s *arch.Session, immOp, regOp uint32, rd, rn int, imm int32) error {
	if imm >= 0 && imm <= 0xFFF {
		return emit32(s, addSubImm(immOp, rd, rn, imm))
	}
	if err := loadImm64(s, x16, int64(imm)); err != nil {
		return err
	}
	return emit32(s, regForm(regOp, rd, rn, x16))
}

func stpPre64(rt, rt2, rn int, offset int32) uint32 {
	imm7 := uint32(offset/8) & 0x7F
	return 0xA9800000 | (imm7 << 15) | (uint32(rt2) << 10) | (uint32(rn) << 5) | uint32(rt)
}
func ldpPost64(rt, rt2, rn int, offset int32) uint32 {
	imm7 := uint32(offset/8) & 0x7F
	return 0xA8C00000 | (imm7 << 15) | (uint32(rt2) << 10) | (uint32(rn) << 5) | uint32(rt)
}
// fstpPre64/fldpPost64 are the SIMD&FP (D-register) counterparts of
// stpPre64/ldpPost64, used to save/restore callee-saved float registers
// D8-D15 (spec's independent float-saved quota).
func fstpPre64(vt, vt2, rn int, offset int32) uint32 {
	imm7 := uint32(offset/8) & 0x7F
	return 0x6D800000 | (imm7 << 15) | (uint32(vt2) << 10) | (uint32(rn) << 5) | uint32(vt)
}
func fldpPost64(vt, vt2, rn int, offset int32) uint32 {
	imm7 := uint32(offset/8) & 0x7F
	return 0x6CC00000 | (imm7 << 15) | (uint32(vt2) << 10) | (uint32(rn) << 5) | uint32(vt)
}

// str/ldr unsigned-offset immediate forms, sized 1/2/4/8 bytes.
func strImm(rt, rn int, offset int32, size int) uint32 {
	base, scale := sizeBases(size)
	return base | ((uint32(offset/int32(scale)) & 0xFFF) << 10) | (uint32(rn) << 5) | uint32(rt)
}
// ldrImm encodes an unsigned-offset LDR/LDRB/LDRH/LDRSB/LDRSH/LDRSW into a
// 64-bit destination register.
func ldrImm(rt, rn int, offset int32, size int, signed bool) uint32 {
	var base uint32
	var scale int
	switch {
	case size == 1 && !signed:
		base, scale = 0x39400000, 1
	case size == 1 && signed:
		base, scale = 0x39800000, 1
	case size == 2 && !signed:
		base, scale = 0x79400000, 2
	case size == 2 && signed:
		base, scale = 0x79800000, 2
	case size == 4 && !signed:
		base, scale = 0xB9400000, 4 // 32-bit dest; caller zero-extends by convention
	case size == 4 && signed:
		base, scale = 0xB9800000, 4 // LDRSW, 64-bit dest
	default:
		base, scale = 0xF9400000, 8
	}
	return base | ((uint32(offset/int32(scale)) & 0xFFF) << 10) | (uint32(rn) << 5) | uint32(rt)
}
func sizeBases(size int) (uint32, int) {
	switch size {
	case 1:
		return 0x39000000, 1
	case 2:
		return 0x79000000, 2
	case 4:
		return 0xB9000000, 4
	default:
		return 0xF9000000, 8
	}
}
