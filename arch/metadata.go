package arch

import "lirjit/internal/fragbuf"

// FragPool is the Fragment Buffer pool type (spec §4.3), re-exported from
// internal/fragbuf so Session and Backend implementations share one type
// without every backend package importing the internal path directly.
type FragPool = fragbuf.Pool

// Label is spec §3's Label entity: during emission Size holds the running
// instruction-byte position at the label's point in the stream; after the
// assembler pass Addr holds the final absolute address.
type Label struct {
	next *Label
	Addr uintptr
	Size int
}

// JumpFlag is the Jump.Flags bit-set (spec §3). Exactly one of ToLabel/ToAddr
// must be set before GenerateCode; PatchKind is architecture-specific and
// occupies the bits above patchKindShift.
type JumpFlag uint16

const (
	ToLabel JumpFlag = 1 << iota
	ToAddr
	Rewritable

	patchKindShift = 4
)

// PatchKind returns the architecture-specific encoding tag a backend stored
// in the high bits of Flags (spec §4.6: "a branch-patch kind set stored in
// Jump.flags").
func (f JumpFlag) PatchKind() uint16 { return uint16(f) >> patchKindShift }

// WithPatchKind returns f with its patch-kind bits replaced by kind.
func (f JumpFlag) WithPatchKind(kind uint16) JumpFlag {
	const lowMask = JumpFlag(1<<patchKindShift) - 1
	return f&lowMask | JumpFlag(kind)<<patchKindShift
}

// Jump is spec §3's Jump entity. Addr is the byte offset of the patch site
// within the instruction stream; GenerateCode leaves it unchanged, so after
// generation it is the site's offset from the start of the code region.
type Jump struct {
	next   *Jump
	Addr   uintptr
	Flags  JumpFlag
	Label  *Label
	Target uintptr
	Cond   Cond
}

// Const is spec §3's Const entity: an embedded immediate whose encoded
// location is recorded for later runtime rewrite via SetConst. TargetLabel is
// set only by LabelAddr sites: the value embedded at emission time is a zero
// placeholder, and GenerateCode's assembler pass rewrites it to TargetLabel's
// final absolute address once every Label is resolved, the same way a Jump's
// site is patched against its Label.
type Const struct {
	next        *Const
	Addr        uintptr
	TargetLabel *Label
}

// EnterOptions bundles the parameters shared by Enter/SetContext (spec §6).
type EnterOptions struct {
	Args       int // 0..3
	Scratches  int
	Saveds     int
	FScratches int
	FSaveds    int
	LocalSize  int32 // 0..65536
}

// Session is the mutable per-compilation state a Backend operates on: the two
// Fragment Buffers (spec §4.3) plus the label/jump/const lists (spec
// component 4, "head/tail pointers for label/jump/const lists"). Go's garbage
// collector already gives every *Label/*Jump/*Const a stable address for the
// lifetime of the Session, so unlike the original C library these are plain
// heap values rather than records carved out of the auxiliary Fragment Pool;
// the auxiliary Pool (Aux) remains available for backends that want
// fixed-capacity scratch (e.g. constant-pool staging) without growing the Go
// heap per entry.
type Session struct {
	Code *FragPool
	Aux  *FragPool

	Target   Target
	Opts     EnterOptions
	Descr    Descriptor

	labelsHead, labelsTail *Label
	jumpsHead, jumpsTail   *Jump
	constsHead, constsTail *Const

	// LastOp/LastDst track the most recently emitted instruction so a
	// delay-slot-capable backend (MIPS, SPARC-32) can decide whether it is
	// movable into the slot immediately following a branch (spec §4.6).
	LastOp  Op
	LastDst Operand

	// Scratch is backend-private state threaded through a Session: the ARM
	// v5 pending constant pool, the SPARC flags_saved bit, PPC TOC-descriptor
	// bookkeeping, and so on. Concrete backends type-assert it to their own
	// struct on first use.
	Scratch any
}

// NewSession creates a Session over fresh Fragment Buffers.
func NewSession(target Target, d Descriptor, opts EnterOptions) *Session {
	return &Session{
		Code:   &FragPool{},
		Aux:    &FragPool{},
		Target: target,
		Opts:   opts,
		Descr:  d,
	}
}

// AppendLabel adds l to the tail of the label list, preserving emission order.
func (s *Session) AppendLabel(l *Label) {
	if s.labelsHead == nil {
		s.labelsHead = l
	} else {
		s.labelsTail.next = l
	}
	s.labelsTail = l
}

// AppendJump adds j to the tail of the jump list.
func (s *Session) AppendJump(j *Jump) {
	if s.jumpsHead == nil {
		s.jumpsHead = j
	} else {
		s.jumpsTail.next = j
	}
	s.jumpsTail = j
}

// AppendConst adds c to the tail of the const list.
func (s *Session) AppendConst(c *Const) {
	if s.constsHead == nil {
		s.constsHead = c
	} else {
		s.constsTail.next = c
	}
	s.constsTail = c
}

// Labels, Jumps, Consts expose the metadata lists for the assembler pass.
func (s *Session) Labels() []*Label {
	return collectLabels(s.labelsHead)
}
func (s *Session) Jumps() []*Jump {
	return collectJumps(s.jumpsHead)
}
func (s *Session) Consts() []*Const {
	return collectConsts(s.constsHead)
}

func collectLabels(h *Label) []*Label {
	var out []*Label
	for l := h; l != nil; l = l.next {
		out = append(out, l)
	}
	return out
}
func collectJumps(h *Jump) []*Jump {
	var out []*Jump
	for j := h; j != nil; j = j.next {
		out = append(out, j)
	}
	return out
}
func collectConsts(h *Const) []*Const {
	var out []*Const
	for c := h; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}
