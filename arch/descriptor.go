package arch

// Target names one of the eleven CPU families spec §1 lists.
type Target uint8

const (
	AMD64 Target = iota
	X86
	ARM64
	ARMv5
	ARMv7
	Thumb2
	PPC32
	PPC64
	MIPS32
	MIPS64
	SPARC32
)

func (t Target) String() string {
	names := [...]string{
		"amd64", "x86", "arm64", "armv5", "armv7", "thumb2",
		"ppc32", "ppc64", "mips32", "mips64", "sparc32",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// Descriptor is the Platform Descriptor (spec §2.1): compile-time constants
// describing one target, independent of whether that target has a full
// encoder or is a documented stub (see Supported).
type Descriptor struct {
	Target Target

	WordSize    int // 4 or 8
	BigEndian   bool
	UnalignedOK bool

	NumRegs        int
	NumScratchRegs int // max caller-saved quota, aliasing the first indices
	NumSavedRegs   int // max callee-saved quota, aliasing the last indices
	NumFRegs       int
	SPReg          Register // reserved index denoting the stack pointer

	LocalsOffset     int32 // added to [SP+imm] operands (spec §4.4 step 3)
	ReturnAddrOffset int32

	HasDelaySlot    bool // MIPS/SPARC-32
	HasConstPool    bool // ARM v5
	IndirectCallABI bool // PPC-64 BE / AIX PPC-32 function-context descriptors
	HasVirtualRegs  bool // x86-32: R3..R6 and R10..R11 are spilled, not physical

	// Supported is false for the eight stub targets (ARMv5, ARMv7, Thumb-2,
	// PPC-32/64, MIPS-32/64, SPARC-32): their Backend is registered so
	// dispatch and descriptor introspection work end to end, but every
	// emission method returns ErrUnsupported (spec §7's "stub platform" error
	// kind), per SPEC_FULL.md's "Reduced-but-complete architecture coverage".
	Supported bool
}
