package arch

import "unsafe"

// Backend is the polymorphic emitter capability set spec §9 describes as the
// language-neutral alternative to single-build-tag architecture dispatch.
// Every method that can fail returns ErrCode rather than a Go error, matching
// the emission API's calling convention (spec §7: "emission returns code;
// helpers returning a pointer return null").
type Backend interface {
	Descriptor() Descriptor

	Enter(s *Session, opts EnterOptions) ErrCode
	SetContext(s *Session, opts EnterOptions) ErrCode
	Return(s *Session, op Op, src Operand) ErrCode
	FastEnter(s *Session, dst Operand) ErrCode
	FastReturn(s *Session, src Operand) ErrCode

	Op0(s *Session, op Op) ErrCode
	Op1(s *Session, op Op, dst, src Operand) ErrCode
	Op2(s *Session, op Op, dst, src1, src2 Operand) ErrCode
	Fop1(s *Session, op Op, dst, src Operand) ErrCode
	Fop2(s *Session, op Op, dst, src1, src2 Operand) ErrCode

	EmitLabel(s *Session) *Label
	EmitJump(s *Session, cond Cond, rewritable bool) (*Jump, ErrCode)
	EmitCmp(s *Session, cond Cond, src1, src2 Operand, rewritable bool) (*Jump, ErrCode)
	EmitFcmp(s *Session, cond Cond, src1, src2 Operand, rewritable bool) (*Jump, ErrCode)
	EmitIjump(s *Session, cond Cond, src Operand) ErrCode

	OpFlags(s *Session, op Op, dst, src Operand, cond Cond) ErrCode
	LocalBase(s *Session, dst Operand, offset int32) ErrCode
	EmitConst(s *Session, dst Operand, init int64) (*Const, ErrCode)
	LabelAddr(s *Session, dst Operand, lbl *Label) ErrCode
	OpCustom(s *Session, raw []byte) ErrCode

	GetRegIndex(vreg Register, float bool) int

	// PatchJump/PatchConst are invoked during the assembler pass (spec §4.7)
	// and again by the self-modifying-code APIs (set_jump_addr/set_const).
	// code is the full generated-code byte slice; j.Addr/c.Addr are offsets
	// into it.
	PatchJump(code []byte, j *Jump, targetAddr uintptr) error
	PatchConst(code []byte, c *Const, value int64) error

	// CacheFlush is the Platform Descriptor's cache-flush routine (spec
	// §2.1), delegated to internal/cacheflush by every concrete backend.
	CacheFlush(addr uintptr, size int)
}

// CodePtr is the entry pointer GenerateCode returns (spec §4.7(k)): on
// Thumb-2 it has its low bit set, on PPC-indirect-call ABIs it is a
// descriptor pointer rather than a direct entry. Call exists for
// architectures (amd64/x86/arm64) where this module can safely cast the
// pointer to a Go function value and invoke it directly, the same technique
// jit/arm64_call.go used and documented as a simulation of what a real
// assembly trampoline would do.
type CodePtr struct {
	entry    uintptr
	Region   []byte // backing memory, kept alive by the Go GC via this slice
	Indirect bool   // true on PPC-64 BE / AIX PPC-32: entry is a descriptor pointer
}

// NewCodePtr builds the CodePtr GenerateCode returns: entry is the region's
// entry address, or the descriptor address when indirect is set.
func NewCodePtr(entry uintptr, region []byte, indirect bool) CodePtr {
	return CodePtr{entry: entry, Region: region, Indirect: indirect}
}

// Entry returns the callable entry address. On an indirect-call ABI (PPC-64
// BE / AIX PPC-32) it dereferences the function-context descriptor first, the
// same step Call performs before casting; callers that only need the address
// (not a call) use this instead of duplicating that dereference.
func (c CodePtr) Entry() uintptr {
	if c.Indirect {
		return *(*uintptr)(unsafe.Pointer(c.entry))
	}
	return c.entry
}

// Descriptor reads the three-word PPC-style function-context descriptor at
// c.entry (spec §4.6): the real entry point, the TOC/r2 word, and the
// environment/r11 word. Only meaningful when Indirect is set.
func (c CodePtr) Descriptor() (entry, r2, r11 uintptr) {
	words := (*[3]uintptr)(unsafe.Pointer(c.entry))
	return words[0], words[1], words[2]
}

// Call invokes the generated function with up to three integer arguments
// (spec §6 bound args∈[0,3]), returning its single integer result. Indirect
// dereferences the function-context descriptor (spec §4.6) to find the real
// entry address first. This would normally be the job of a hand-written
// assembly trampoline per calling convention; casting the entry address to a
// locally-declared Go func type of the right arity and calling it directly
// simulates that trampoline, relying on the host's ABI agreeing with Go's own
// integer-argument registers for amd64/x86/arm64.
func (c CodePtr) Call(args ...int64) int64 {
	entry := c.entry
	if c.Indirect {
		entry = *(*uintptr)(unsafe.Pointer(entry))
	}
	ep := &entry // a Go func value points at a word holding the code address
	switch len(args) {
	case 0:
		fn := *(*func() int64)(unsafe.Pointer(&ep))
		return fn()
	case 1:
		fn := *(*func(int64) int64)(unsafe.Pointer(&ep))
		return fn(args[0])
	case 2:
		fn := *(*func(int64, int64) int64)(unsafe.Pointer(&ep))
		return fn(args[0], args[1])
	case 3:
		fn := *(*func(int64, int64, int64) int64)(unsafe.Pointer(&ep))
		return fn(args[0], args[1], args[2])
	default:
		panic("arch: Call supports at most 3 arguments")
	}
}
