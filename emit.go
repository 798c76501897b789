package lirjit

import (
	"lirjit/arch"
	"lirjit/internal/exec"
)

// adjustLocal applies the local-offset adjustment spec §4.4 step 3
// describes: a [SP+imm] operand gets the architecture's LocalsOffset added
// to imm so the user-visible local frame starts at logical zero, regardless
// of where a given backend's prologue actually parks the frame pointer.
func (c *Compiler) adjustLocal(op Operand) Operand {
	if op.Kind == arch.KindMem && op.Reg == c.descr.SPReg {
		op.Imm += int64(c.descr.LocalsOffset)
	}
	return op
}

// enter runs Enter or SetContext, sharing the validation and session setup
// the two calls both need (spec §6: set_context takes "the same parameters,
// no prologue emission").
func (c *Compiler) enter(opts EnterOptions, emitPrologue bool) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	if ec := validateEnterOptions(c.descr, opts); ec != Ok {
		return c.fail(ec)
	}
	if c.session == nil {
		c.session = arch.NewSession(c.target, c.descr, opts)
	} else {
		c.session.Opts = opts
	}
	var ec ErrCode
	if emitPrologue {
		ec = c.backend.Enter(c.session, opts)
	} else {
		ec = c.backend.SetContext(c.session, opts)
	}
	if ec != Ok {
		return c.fail(ec)
	}
	c.state = stateConfigured
	return Ok
}

// Enter configures the Compiler's register/frame layout and emits the
// function prologue (spec §6 enter).
func (c *Compiler) Enter(args, scratches, saveds, fscratches, fsaveds int, localSize int32) ErrCode {
	return c.enter(EnterOptions{
		Args: args, Scratches: scratches, Saveds: saveds,
		FScratches: fscratches, FSaveds: fsaveds, LocalSize: localSize,
	}, true)
}

// SetContext configures the same quotas as Enter without emitting a
// prologue, for code whose entry sequence is supplied by the caller.
func (c *Compiler) SetContext(args, scratches, saveds, fscratches, fsaveds int, localSize int32) ErrCode {
	return c.enter(EnterOptions{
		Args: args, Scratches: scratches, Saveds: saveds,
		FScratches: fscratches, FSaveds: fsaveds, LocalSize: localSize,
	}, false)
}

// Return emits the function epilogue returning src (spec §6 return). Only
// op Mov with a register or immediate src loads the return register; for any
// other op, or a memory src, the backends emit the epilogue alone and src is
// neither moved nor transformed.
func (c *Compiler) Return(op Op, src Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(src); ec != Ok {
		return c.fail(ec)
	}
	src = c.adjustLocal(src)
	c.traceOp1(op, Unused, src)
	if ec := c.backend.Return(s, op, src); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// FastEnter captures the return address into dst without building a full
// stack frame (spec §6 fast_enter), for leaf functions that preserve the
// caller's frame.
func (c *Compiler) FastEnter(dst Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(dst); ec != Ok {
		return c.fail(ec)
	}
	dst = c.adjustLocal(dst)
	if ec := c.backend.FastEnter(s, dst); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// FastReturn is FastEnter's counterpart: jumps to the address in src without
// running a full epilogue (spec §6 fast_return).
func (c *Compiler) FastReturn(src Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(src); ec != Ok {
		return c.fail(ec)
	}
	src = c.adjustLocal(src)
	if ec := c.backend.FastReturn(s, src); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Op0 emits a no-operand instruction (breakpoint, nop, long mul/div against
// the implicit R0/R1 pair).
func (c *Compiler) Op0(op Op) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	c.traceOp0(op)
	if ec := c.backend.Op0(s, op); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Op1 emits dst = op(src).
func (c *Compiler) Op1(op Op, dst, src Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(dst); ec != Ok {
		return c.fail(ec)
	}
	if ec := c.validateOperand(src); ec != Ok {
		return c.fail(ec)
	}
	dst = c.adjustLocal(dst)
	src = c.adjustLocal(src)
	c.traceOp1(op, dst, src)
	if ec := c.backend.Op1(s, op, dst, src); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Op2 emits dst = op(src1, src2).
func (c *Compiler) Op2(op Op, dst, src1, src2 Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	for _, o := range [...]Operand{dst, src1, src2} {
		if ec := c.validateOperand(o); ec != Ok {
			return c.fail(ec)
		}
	}
	dst = c.adjustLocal(dst)
	src1 = c.adjustLocal(src1)
	src2 = c.adjustLocal(src2)
	c.traceOp2(op, dst, src1, src2)
	if ec := c.backend.Op2(s, op, dst, src1, src2); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Fop1 emits fdst = op(fsrc).
func (c *Compiler) Fop1(op Op, fdst, fsrc Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(fdst); ec != Ok {
		return c.fail(ec)
	}
	if ec := c.validateOperand(fsrc); ec != Ok {
		return c.fail(ec)
	}
	fdst = c.adjustLocal(fdst)
	fsrc = c.adjustLocal(fsrc)
	c.traceFop1(op, fdst, fsrc)
	if ec := c.backend.Fop1(s, op, fdst, fsrc); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Fop2 emits fdst = op(fsrc1, fsrc2).
func (c *Compiler) Fop2(op Op, fdst, fsrc1, fsrc2 Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	for _, o := range [...]Operand{fdst, fsrc1, fsrc2} {
		if ec := c.validateOperand(o); ec != Ok {
			return c.fail(ec)
		}
	}
	fdst = c.adjustLocal(fdst)
	fsrc1 = c.adjustLocal(fsrc1)
	fsrc2 = c.adjustLocal(fsrc2)
	c.traceFop2(op, fdst, fsrc1, fsrc2)
	if ec := c.backend.Fop2(s, op, fdst, fsrc1, fsrc2); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// Label marks the current position in the instruction stream (spec §6
// label). Returns nil if an error is already latched.
func (c *Compiler) Label() *Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return nil
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return nil
	}
	l := c.backend.EmitLabel(s)
	if l == nil {
		c.fail(ErrAlloc)
		return nil
	}
	c.state = stateEmitting
	return l
}

// Jump emits an unconditional or conditional branch with a placeholder
// worst-case encoding (spec §4.5), to be resolved later with SetLabel or
// SetTarget. rewritable marks the site for later set_jump_addr use.
func (c *Compiler) Jump(cond Cond, rewritable bool) *Jump {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return nil
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return nil
	}
	j, bec := c.backend.EmitJump(s, cond, rewritable)
	if bec != Ok {
		c.fail(bec)
		return nil
	}
	c.state = stateEmitting
	return j
}

// Cmp fuses a comparison and branch (spec §4.5): lowers to a subtract
// against an unused destination with the matching flag-set modifier,
// followed by a conditional jump, reordering operands so an immediate
// becomes the second source.
func (c *Compiler) Cmp(cond Cond, src1, src2 Operand, rewritable bool) *Jump {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return nil
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return nil
	}
	if ec := c.validateOperand(src1); ec != Ok {
		c.fail(ec)
		return nil
	}
	if ec := c.validateOperand(src2); ec != Ok {
		c.fail(ec)
		return nil
	}
	src1 = c.adjustLocal(src1)
	src2 = c.adjustLocal(src2)
	j, bec := c.backend.EmitCmp(s, cond, src1, src2, rewritable)
	if bec != Ok {
		c.fail(bec)
		return nil
	}
	c.state = stateEmitting
	return j
}

// Fcmp is Cmp's floating-point counterpart.
func (c *Compiler) Fcmp(cond Cond, fsrc1, fsrc2 Operand, rewritable bool) *Jump {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return nil
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return nil
	}
	if ec := c.validateOperand(fsrc1); ec != Ok {
		c.fail(ec)
		return nil
	}
	if ec := c.validateOperand(fsrc2); ec != Ok {
		c.fail(ec)
		return nil
	}
	j, bec := c.backend.EmitFcmp(s, cond, fsrc1, fsrc2, rewritable)
	if bec != Ok {
		c.fail(bec)
		return nil
	}
	c.state = stateEmitting
	return j
}

// SetLabel resolves jump to target label (spec §6 set_label). Exactly one of
// SetLabel/SetTarget must be called per Jump before GenerateCode.
func (c *Compiler) SetLabel(jump *Jump, label *Label) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	if jump == nil || label == nil {
		return c.fail(ErrBadArgument)
	}
	jump.Label = label
	jump.Flags |= ToLabel
	jump.Flags &^= ToAddr
	return Ok
}

// SetTarget resolves jump to an absolute address (spec §6 set_target),
// typically used for calls into code this module did not generate.
func (c *Compiler) SetTarget(jump *Jump, abs uintptr) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	if jump == nil {
		return c.fail(ErrBadArgument)
	}
	jump.Target = abs
	jump.Flags |= ToAddr
	jump.Flags &^= ToLabel
	return Ok
}

// Ijump emits an indirect jump or call through src (spec §6 ijump), cond
// selecting Jump/Call0/Call1/Call2/Call3.
func (c *Compiler) Ijump(cond Cond, src Operand) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(src); ec != Ok {
		return c.fail(ec)
	}
	src = c.adjustLocal(src)
	if ec := c.backend.EmitIjump(s, cond, src); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// OpFlags materializes cond as a 0/1 value written to dst, optionally
// folding it into dst = dst <op> src when op is And/Or/Xor (spec §6
// op_flags).
func (c *Compiler) OpFlags(op Op, dst, src Operand, cond Cond) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(dst); ec != Ok {
		return c.fail(ec)
	}
	if ec := c.validateOperand(src); ec != Ok {
		return c.fail(ec)
	}
	dst = c.adjustLocal(dst)
	src = c.adjustLocal(src)
	if ec := c.backend.OpFlags(s, op, dst, src, cond); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// LocalBase writes the address of the local frame slot at offset into dst
// (spec §6 local_base); offset is adjusted by LocalsOffset the same way a
// [SP+imm] operand would be.
func (c *Compiler) LocalBase(dst Operand, offset int32) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := c.validateOperand(dst); ec != Ok {
		return c.fail(ec)
	}
	dst = c.adjustLocal(dst)
	if ec := c.backend.LocalBase(s, dst, offset+c.descr.LocalsOffset); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// EmitConst embeds init as a rewritable immediate loaded into dst (spec §6
// emit_const), returning a Const handle for later SetConst calls.
func (c *Compiler) EmitConst(dst Operand, init int64) *Const {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return nil
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return nil
	}
	if ec := c.validateOperand(dst); ec != Ok {
		c.fail(ec)
		return nil
	}
	dst = c.adjustLocal(dst)
	k, bec := c.backend.EmitConst(s, dst, init)
	if bec != Ok {
		c.fail(bec)
		return nil
	}
	c.state = stateEmitting
	return k
}

// LabelAddr materializes lbl's final absolute address into dst (loading it
// the same constant-pool/absolute-load sequence EmitConst uses), resolved at
// GenerateCode time once lbl's position is fixed, for building jump tables or
// other data that needs a code address as a value.
func (c *Compiler) LabelAddr(dst Register, lbl *Label) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if lbl == nil {
		return c.fail(ErrBadArgument)
	}
	if ec := c.backend.LabelAddr(s, Reg(dst), lbl); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// GetRegIndex returns the physical register index backing vreg, or -1 if
// vreg is a virtual (spilled) register with no physical home (spec §6
// get_reg_index).
func (c *Compiler) GetRegIndex(vreg Register, float bool) int {
	return c.backend.GetRegIndex(vreg, float)
}

// OpCustom inserts raw architecture-specific bytes directly into the
// instruction stream (spec §6 op_custom), bypassing the LIR model entirely.
func (c *Compiler) OpCustom(raw []byte) ErrCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return ec
	}
	if ec := validateOpCustomSize(c.target, len(raw)); ec != Ok {
		return c.fail(ec)
	}
	if ec := c.backend.OpCustom(s, raw); ec != Ok {
		return c.fail(ec)
	}
	c.state = stateEmitting
	return Ok
}

// GenerateCode runs the Assembler Pass (spec §4.7): validates every Jump is
// resolved, reverses the fragment lists into emission order, allocates
// executable memory, copies code in, patches label/jump sites, flushes the
// cache, and latches the Compiler to already-compiled so further emission
// fails loudly.
func (c *Compiler) GenerateCode() (CodePtr, ErrCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited() {
		return CodePtr{}, c.err
	}
	s, ec := c.requireSession()
	if ec != Ok {
		return CodePtr{}, ec
	}

	// (a) every Jump must have exactly one of ToLabel/ToAddr set.
	for _, j := range s.Jumps() {
		hasLabel := j.Flags&ToLabel != 0
		hasAddr := j.Flags&ToAddr != 0
		if hasLabel == hasAddr {
			return CodePtr{}, c.fail(ErrBadArgument)
		}
	}

	// (b) reverse both fragment lists so traversal order matches emission
	// order (spec §4.3/§4.7(b)).
	s.Code.Reverse()
	s.Aux.Reverse()

	// (c) total instruction-byte size.
	size := s.Code.Size()

	// (d) allocate executable memory.
	region, err := exec.Alloc(size)
	if err != nil {
		return CodePtr{}, c.fail(ErrExecAlloc)
	}
	region.Used = size

	// (e) copy fragments into the region.
	s.Code.Bytes(region.Ptr[:size])

	baseAddr := region.Addr()

	// (f) walk the Label list, assigning absolute addresses.
	for _, l := range s.Labels() {
		l.Addr = baseAddr + uintptr(l.Size)
	}

	// (g) walk the Jump list, computing the target and patching the site.
	// Each backend's PatchJump indexes code[] with j.Addr directly (the
	// offset it recorded at emission time) and derives its own notion of PC
	// from that same offset, so the target passed in must live in the same
	// region-relative coordinate space: baseAddr cancels out of the eventual
	// relative-displacement subtraction as long as both sides are shifted by
	// it consistently, which is why j.Addr is deliberately left as the
	// emission-time offset rather than rewritten to an absolute address here.
	for _, j := range s.Jumps() {
		var targetAbs uintptr
		if j.Flags&ToLabel != 0 {
			targetAbs = j.Label.Addr
		} else {
			targetAbs = j.Target
		}
		targetRel := targetAbs - baseAddr
		if err := c.backend.PatchJump(region.Ptr[:size], j, targetRel); err != nil {
			exec.Free(region)
			return CodePtr{}, c.fail(ErrAlloc)
		}
	}

	// (h) walk the Const list. A plain emit_const site already has its value
	// embedded at emission time, so there is nothing left to do for it here.
	// A label_addr site (LabelAddr) instead embedded a zero placeholder and
	// carries a TargetLabel back-reference, resolved now that every Label's
	// absolute address is known from step (f) above — the same dependency
	// order a Jump's ToLabel resolution in step (g) relies on.
	for _, k := range s.Consts() {
		if k.TargetLabel == nil {
			continue
		}
		if err := c.backend.PatchConst(region.Ptr[:size], k, int64(k.TargetLabel.Addr)); err != nil {
			exec.Free(region)
			return CodePtr{}, c.fail(ErrAlloc)
		}
	}

	// (i) flush the instruction cache over the region.
	if err := exec.Finalize(region, c.backend.CacheFlush); err != nil {
		exec.Free(region)
		return CodePtr{}, c.fail(ErrExecAlloc)
	}

	c.region = region
	c.codeSize = size
	// (j) latch already-compiled so further emission fails loudly.
	c.state = stateGenerated
	c.err = ErrAlreadyCompiled

	// (k) return the entry pointer.
	return arch.NewCodePtr(baseAddr, region.Ptr, c.descr.IndirectCallABI), Ok
}

// CodeSize returns the byte size of the most recently generated code (spec's
// sljit_get_generated_code_size), valid once GenerateCode has succeeded.
func (c *Compiler) CodeSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeSize
}

// SetJumpAddr rewrites a previously generated jump's target in place (spec
// §6 set_jump_addr), bracketing the patch with the W^X transition the
// Executable Allocator requires.
func (c *Compiler) SetJumpAddr(jump *Jump, newTarget uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.region == nil || jump == nil {
		return errBadSite
	}
	jump.Target = newTarget
	jump.Flags |= ToAddr
	jump.Flags &^= ToLabel
	if err := exec.MakeWritable(c.region); err != nil {
		return err
	}
	targetRel := newTarget - c.region.Addr()
	perr := c.backend.PatchJump(c.region.Ptr[:c.region.Used], jump, targetRel)
	if ferr := exec.Finalize(c.region, c.backend.CacheFlush); ferr != nil && perr == nil {
		perr = ferr
	}
	return perr
}

// SetConst rewrites a previously generated constant in place (spec §6
// set_const). value is embedded as-is: PatchConst writes an absolute
// immediate at the region-relative offset EmitConst recorded, with no
// displacement math involved, so no relative/absolute conversion is needed
// here (unlike SetJumpAddr's target, which PatchJump does subtract a PC
// from).
func (c *Compiler) SetConst(k *Const, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.region == nil || k == nil {
		return errBadSite
	}
	if err := exec.MakeWritable(c.region); err != nil {
		return err
	}
	perr := c.backend.PatchConst(c.region.Ptr[:c.region.Used], k, value)
	if ferr := exec.Finalize(c.region, c.backend.CacheFlush); ferr != nil && perr == nil {
		perr = ferr
	}
	return perr
}

var errBadSite = siteError("lirjit: patch site not available (code not generated)")

type siteError string

func (e siteError) Error() string { return string(e) }
