package lirjit

import (
	"lirjit/arch"
	"lirjit/arch/amd64"
	"lirjit/arch/arm64"
	"lirjit/arch/armstub"
	"lirjit/arch/mipsstub"
	"lirjit/arch/ppcstub"
	"lirjit/arch/sparcstub"
	"lirjit/arch/x86"
)

// Target names one of the eleven CPU families spec §1 lists. A Compiler
// picks one concrete arch.Backend at New time (spec §9 "Architecture
// dispatch": "a language-neutral implementation may instead expose all
// back-ends as siblings behind a polymorphic emitter capability set").
type Target = arch.Target

const (
	AMD64   = arch.AMD64
	X86     = arch.X86
	ARM64   = arch.ARM64
	ARMv5   = arch.ARMv5
	ARMv7   = arch.ARMv7
	Thumb2  = arch.Thumb2
	PPC32   = arch.PPC32
	PPC64   = arch.PPC64
	MIPS32  = arch.MIPS32
	MIPS64  = arch.MIPS64
	SPARC32 = arch.SPARC32
)

// selectBackend maps a Target to its concrete arch.Backend. The three
// real targets (amd64, x86, arm64) carry a full instruction encoder; the
// remaining eight are documented stubs whose Descriptor().Supported is
// false and whose emission methods all return arch.ErrUnsupported.
func selectBackend(target Target) (arch.Backend, bool) {
	switch target {
	case arch.AMD64:
		return amd64.New(), true
	case arch.X86:
		return x86.New(), true
	case arch.ARM64:
		return arm64.New(), true
	case arch.ARMv5:
		return armstub.NewARMv5(), true
	case arch.ARMv7:
		return armstub.NewARMv7(), true
	case arch.Thumb2:
		return armstub.NewThumb2(), true
	case arch.PPC32:
		return ppcstub.NewPPC32(), true
	case arch.PPC64:
		return ppcstub.NewPPC64(), true
	case arch.MIPS32:
		return mipsstub.NewMIPS32(), true
	case arch.MIPS64:
		return mipsstub.NewMIPS64(), true
	case arch.SPARC32:
		return sparcstub.New(), true
	default:
		return nil, false
	}
}
