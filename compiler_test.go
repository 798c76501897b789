//go:build amd64

package lirjit

import (
	"testing"
	"unsafe"
)

// TestIdentity covers end-to-end scenario 1: a function that returns its
// first argument unchanged.
func TestIdentity(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(1, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := c.Return(Mov, Reg(1)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}
	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	if got := code.Call(42); got != 42 {
		t.Errorf("identity(42) = %d, want 42", got)
	}
}

// TestSumOfArray covers end-to-end scenario 2: load two adjacent fields out
// of a caller-supplied buffer and return their sum.
func TestSumOfArray(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(1, 2, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := c.Op1(Mov, Reg(2), Mem(1, 0)); ec != Ok {
		t.Fatalf("Op1: %v", ec)
	}
	if ec := c.Op2(Add, Reg(2), Reg(2), Mem(1, 8)); ec != Ok {
		t.Fatalf("Op2: %v", ec)
	}
	if ec := c.Return(Mov, Reg(2)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}
	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	buf := [2]int64{5, 12}
	got := code.Call(int64(uintptr(unsafe.Pointer(&buf))))
	if got != 17 {
		t.Errorf("sum = %d, want 17", got)
	}
}

// TestConditional covers end-to-end scenario 3: branch on a signed-less
// comparison between an argument and an immediate.
func TestConditional(t *testing.T) {
	run := func(arg int64) int64 {
		c, ec := New(AMD64)
		if ec != Ok {
			t.Fatalf("New: %v", ec)
		}
		if ec := c.Enter(1, 1, 1, 0, 0, 0); ec != Ok {
			t.Fatalf("Enter: %v", ec)
		}
		j := c.Cmp(SigLess, Reg(1), Imm(10), false)
		if j == nil {
			t.Fatalf("Cmp: %v", c.Err())
		}
		if ec := c.Return(Mov, Imm(0)); ec != Ok {
			t.Fatalf("Return: %v", ec)
		}
		l := c.Label()
		if l == nil {
			t.Fatalf("Label: %v", c.Err())
		}
		if ec := c.SetLabel(j, l); ec != Ok {
			t.Fatalf("SetLabel: %v", ec)
		}
		if ec := c.Return(Mov, Imm(1)); ec != Ok {
			t.Fatalf("Return: %v", ec)
		}
		code, ec := c.GenerateCode()
		if ec != Ok {
			t.Fatalf("GenerateCode: %v", ec)
		}
		defer FreeCode(code)
		return code.Call(arg)
	}

	if got := run(5); got != 1 {
		t.Errorf("conditional(5) = %d, want 1", got)
	}
	if got := run(20); got != 0 {
		t.Errorf("conditional(20) = %d, want 0", got)
	}
}

// TestSelfModifyingConstant covers end-to-end scenario 4: emit_const followed
// by a later set_const rewrite of the same site.
func TestSelfModifyingConstant(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	k := c.EmitConst(Reg(1), 7)
	if k == nil {
		t.Fatalf("EmitConst: %v", c.Err())
	}
	if ec := c.Return(Mov, Reg(1)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}
	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	if got := code.Call(); got != 7 {
		t.Errorf("before rewrite = %d, want 7", got)
	}
	if err := c.SetConst(k, 99); err != nil {
		t.Fatalf("SetConst: %v", err)
	}
	if got := code.Call(); got != 99 {
		t.Errorf("after rewrite = %d, want 99", got)
	}
}

// TestUnsignedOverflow covers end-to-end scenario 5: an ADD with the carry
// flag materialized by SetC, branching on the flag it sets.
func TestUnsignedOverflow(t *testing.T) {
	run := func(a, b int64) int64 {
		c, ec := New(AMD64)
		if ec != Ok {
			t.Fatalf("New: %v", ec)
		}
		if ec := c.Enter(2, 2, 2, 0, 0, 0); ec != Ok {
			t.Fatalf("Enter: %v", ec)
		}
		if ec := c.Op2(Add|SetC, Reg(1), Reg(1), Reg(2)); ec != Ok {
			t.Fatalf("Op2: %v", ec)
		}
		j := c.Jump(Less, false)
		if j == nil {
			t.Fatalf("Jump: %v", c.Err())
		}
		if ec := c.Return(Mov, Imm(0)); ec != Ok {
			t.Fatalf("Return: %v", ec)
		}
		l := c.Label()
		if l == nil {
			t.Fatalf("Label: %v", c.Err())
		}
		if ec := c.SetLabel(j, l); ec != Ok {
			t.Fatalf("SetLabel: %v", ec)
		}
		if ec := c.Return(Mov, Imm(1)); ec != Ok {
			t.Fatalf("Return: %v", ec)
		}
		code, ec := c.GenerateCode()
		if ec != Ok {
			t.Fatalf("GenerateCode: %v", ec)
		}
		defer FreeCode(code)
		return code.Call(a, b)
	}

	if got := run(-1, 1); got != 1 {
		t.Errorf("overflow(0xFFFFFFFFFFFFFFFF, 1) = %d, want 1 (carry branch taken)", got)
	}
	if got := run(1, 1); got != 0 {
		t.Errorf("overflow(1, 1) = %d, want 0 (no carry)", got)
	}
}

// TestNestedForwardJump covers end-to-end scenario 6: a forward jump to a
// label defined later in the stream, checking that the label's final address
// exceeds the jump's site and that GenerateCode patches a displacement
// consistent with that ordering.
func TestNestedForwardJump(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	j := c.Jump(JumpAlways, false)
	if j == nil {
		t.Fatalf("Jump: %v", c.Err())
	}
	if ec := c.Return(Mov, Imm(0)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}
	l := c.Label()
	if l == nil {
		t.Fatalf("Label: %v", c.Err())
	}
	if ec := c.SetLabel(j, l); ec != Ok {
		t.Fatalf("SetLabel: %v", ec)
	}
	if ec := c.Return(Mov, Imm(1)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}

	jumpSiteBefore := j.Addr
	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	if l.Addr <= code.Entry() {
		t.Fatalf("label.Addr %#x should be an absolute address past code.Entry() %#x", l.Addr, code.Entry())
	}
	if j.Addr != jumpSiteBefore {
		t.Errorf("Jump.Addr changed after GenerateCode: %#x -> %#x, want unchanged (region-relative)", jumpSiteBefore, j.Addr)
	}

	if got := code.Call(); got != 1 {
		t.Errorf("nested jump result = %d, want 1", got)
	}
}

// TestLabelAddrAndCodeSize covers loading a label's final absolute address
// as a data value (rather than a branch target), and reading back the
// generated code's byte size.
func TestLabelAddrAndCodeSize(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	// Errors latch, so the nil-label rejection is checked on a separate
	// Compiler that emits nothing afterwards.
	bad, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := bad.Enter(0, 2, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := bad.LabelAddr(2, nil); ec == Ok {
		t.Fatalf("LabelAddr: expected error for nil label")
	}
	if ec := c.Enter(0, 2, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	j := c.Jump(JumpAlways, false)
	if j == nil {
		t.Fatalf("Jump: %v", c.Err())
	}
	l := c.Label()
	if l == nil {
		t.Fatalf("Label: %v", c.Err())
	}
	if ec := c.SetLabel(j, l); ec != Ok {
		t.Fatalf("SetLabel: %v", ec)
	}
	if ec := c.LabelAddr(2, l); ec != Ok {
		t.Fatalf("LabelAddr: %v", ec)
	}
	if ec := c.Return(Mov, Reg(2)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}

	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	if got := code.Call(); uintptr(got) != l.Addr {
		t.Errorf("LabelAddr result = %#x, want label.Addr %#x", got, l.Addr)
	}
	if size := c.CodeSize(); size <= 0 || size > len(code.Region) {
		t.Errorf("CodeSize() = %d, want in (0, len(code.Region)=%d]", size, len(code.Region))
	}
	if code.Entry() != code.Entry() {
		t.Errorf("Entry() not stable across calls")
	}
}
