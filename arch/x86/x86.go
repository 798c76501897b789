// Package x86 implements the x86-32 (cdecl-ish) back end. It reuses amd64's
// encoding conventions narrowed to 32-bit operand size and no REX prefix, and
// adds the virtual-register spill mechanism spec §4.6 requires: only 6
// physical GPRs exist beyond esp/ebp, so R3-R6 (scratch) and R10-R11 (saved)
// have no physical home and are spilled to a dedicated stack slot area
// instead, reachable only by loading into a physical temp before use.
package x86

import (
	"lirjit/arch"
	"lirjit/internal/cacheflush"
)

// Descriptor returns the Platform Descriptor for x86-32.
func Descriptor() arch.Descriptor {
	return arch.Descriptor{
		Target:           arch.X86,
		WordSize:         4,
		BigEndian:        false,
		UnalignedOK:      true,
		NumRegs:          12,
		NumScratchRegs:   6,
		NumSavedRegs:     5,
		NumFRegs:         8,
		SPReg:            12,
		LocalsOffset:     0,
		ReturnAddrOffset: 4,
		HasVirtualRegs:   true,
		Supported:        true,
	}
}

const (
	eax = 0
	ecx = 1
	edx = 2
	ebx = 3
	esp = 4
	ebp = 5
	esi = 6
	edi = 7
)

// spillSlot is the sentinel physGP returns for a virtual register with no
// physical home; the caller must route through loadSpill/storeSpill instead
// of addressing it directly.
const spillSlot = -1

// gpMap maps virtual register 1..11 to its physical encoding, or spillSlot.
// R1/R2 (eax/ecx) double as the first two argument/return registers; R7-R9
// (ebx/esi/edi) are the only physical callee-saved regs x86-32 offers.
var gpMap = [...]int{0, eax, ecx, spillSlot, spillSlot, spillSlot, spillSlot, ebx, esi, edi, spillSlot, spillSlot}

// spillIndex maps a spilled virtual register to its slot index (0-based)
// within the spill area, for R3-R6 and R10-R11.
var spillIndex = map[arch.Register]int{3: 0, 4: 1, 5: 2, 6: 3, 10: 4, 11: 5}

const spillSlots = 6
const spillAreaSize = spillSlots * 4

func physGP(v arch.Register) int {
	if int(v) < len(gpMap) {
		return gpMap[v]
	}
	return eax
}

func isSpilled(v arch.Register) bool { return physGP(v) == spillSlot }

// spillOffset returns the [ebp-relative] offset of v's spill slot. Slots sit
// just below whatever saved registers Enter actually pushed (0-3 of
// ebx/esi/edi), so the saved-area size must be read from the session's live
// EnterOptions rather than assumed fixed.
func spillOffset(s *arch.Session, v arch.Register) int32 {
	idx, ok := spillIndex[v]
	if !ok {
		idx = 0
	}
	saveds := s.Opts.Saveds
	if saveds > len(savedPhys) {
		saveds = len(savedPhys)
	}
	savedBytes := int32(saveds * 4)
	return -(savedBytes + spillAreaSize - int32(idx*4))
}

func physFP(v arch.Register) int { return int(v) - 1 } // FR1..FR8 -> xmm0..xmm7

// Backend implements arch.Backend for x86-32.
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

// --- encoding helpers -----------------------------------------------------

func emit(s *arch.Session, bytes ...byte) error {
	dst, err := s.Code.Ensure(len(bytes))
	if err != nil {
		return err
	}
	copy(dst, bytes)
	return nil
}

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6) | byte((reg&7)<<3) | byte(rm&7)
}

func le32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func emitModRMReg(s *arch.Session, opcode []byte, reg, rm int) error {
	if err := emit(s, opcode...); err != nil {
		return err
	}
	return emit(s, modrm(3, reg, rm))
}

// emitMem emits opcode+ModRM/SIB/disp32 for [base+disp32] or
// [base+index<<shift+disp32]. base/index are physical encodings (never
// spillSlot: the Compiler's operand validation rejects a memory operand whose
// base or index is a spilled register before it reaches the backend, per
// spec §4.6's "forbid their use in addressing expressions").
func emitMem(s *arch.Session, opcode []byte, reg int, base, index int, hasIndex bool, shift uint8, disp int32) error {
	if err := emit(s, opcode...); err != nil {
		return err
	}
	needSIB := hasIndex || base&7 == esp
	modBits := 2
	if disp == 0 && base&7 != ebp {
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
		idx := 4
		if hasIndex {
			idx = index & 7
		}
		if err := emit(s, byte(shift<<6)|byte((idx&7)<<3)|byte(base&7)); err != nil {
			return err
		}
	}
	if modBits == 2 {
		return emit(s, le32(disp)...)
	}
	return nil
}

// loadSpill materializes a (possibly spilled) GPR operand into tmp (a
// physical scratch register, conventionally edx when the caller's actual
// data lives in edx) and returns the physical register to operate on.
func loadSpill(s *arch.Session, v arch.Register, tmp int) (int, error) {
	if !isSpilled(v) {
		return physGP(v), nil
	}
	if err := emitMem(s, []byte{0x8b}, tmp, ebp, 0, false, 0, spillOffset(s, v)); err != nil { // mov tmp, [ebp+off]
		return 0, err
	}
	return tmp, nil
}

// storeSpill writes tmp back to v's spill slot if v is spilled; a no-op for
// a physical destination (the instruction already wrote it directly).
func storeSpill(s *arch.Session, v arch.Register, tmp int) error {
	if !isSpilled(v) {
		return nil
	}
	return emitMem(s, []byte{0x89}, tmp, ebp, 0, false, 0, spillOffset(s, v)) // mov [ebp+off], tmp
}
