package lirjit

import "testing"

func TestErrorLatchesAndShortCircuits(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}

	// An out-of-range MemIndexed shift latches ErrBadArgument.
	if ec := c.Op1(Mov, Reg(1), MemIndexed(1, 1, 9)); ec != ErrBadArgument {
		t.Fatalf("Op1 with bad shift = %v, want ErrBadArgument", ec)
	}
	if c.Err() != ErrBadArgument {
		t.Fatalf("Err() = %v, want latched ErrBadArgument", c.Err())
	}

	// Every subsequent call is a no-op returning the same latched code.
	if ec := c.Return(Mov, Reg(1)); ec != ErrBadArgument {
		t.Errorf("Return after latch = %v, want ErrBadArgument", ec)
	}
	if j := c.Jump(JumpAlways, false); j != nil {
		t.Errorf("Jump after latch returned non-nil")
	}
}

func TestSetLabelAndSetTargetToggleJumpFlags(t *testing.T) {
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
	// A freshly emitted Jump already defaults to ToAddr (target zero) so an
	// unresolved Jump is never itself a GenerateCode error; SetLabel and
	// SetTarget instead toggle which resolution kind is active.
	if j.Flags&ToAddr == 0 {
		t.Fatalf("fresh Jump.Flags = %v, want ToAddr set by default", j.Flags)
	}
	l := c.Label()
	if l == nil {
		t.Fatalf("Label: %v", c.Err())
	}
	if ec := c.SetLabel(j, l); ec != Ok {
		t.Fatalf("SetLabel: %v", ec)
	}
	if j.Flags&ToLabel == 0 || j.Flags&ToAddr != 0 {
		t.Errorf("Jump.Flags after SetLabel = %v, want ToLabel set and ToAddr cleared", j.Flags)
	}
	if ec := c.SetTarget(j, 0x1000); ec != Ok {
		t.Fatalf("SetTarget: %v", ec)
	}
	if j.Flags&ToAddr == 0 || j.Flags&ToLabel != 0 {
		t.Errorf("Jump.Flags after SetTarget = %v, want ToAddr set and ToLabel cleared", j.Flags)
	}
}

func TestGenerateCodeLatchesAlreadyCompiled(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := c.Return(Mov, Imm(0)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}
	code, ec := c.GenerateCode()
	if ec != Ok {
		t.Fatalf("GenerateCode: %v", ec)
	}
	defer FreeCode(code)

	if _, ec := c.GenerateCode(); ec != ErrAlreadyCompiled {
		t.Errorf("second GenerateCode = %v, want ErrAlreadyCompiled", ec)
	}
	if ec := c.Op1(Mov, Reg(1), Imm(1)); ec != ErrAlreadyCompiled {
		t.Errorf("Op1 after GenerateCode = %v, want ErrAlreadyCompiled", ec)
	}
}

func TestSetJumpAddrAndSetConstRequireGeneratedCode(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if err := c.SetJumpAddr(nil, 0); err == nil {
		t.Error("SetJumpAddr before GenerateCode should fail")
	}
	if err := c.SetConst(nil, 0); err == nil {
		t.Error("SetConst before GenerateCode should fail")
	}
}

func TestUnsupportedTargetReturnsErrUnsupported(t *testing.T) {
	c, ec := New(ARMv7)
	if ec != Ok {
		t.Fatalf("New(ARMv7): %v", ec)
	}
	if c.Descriptor().Supported {
		t.Fatalf("ARMv7 stub descriptor reports Supported=true")
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != ErrUnsupported {
		t.Errorf("Enter on stub backend = %v, want ErrUnsupported", ec)
	}
}

func TestNewRejectsUnknownTarget(t *testing.T) {
	if _, ec := New(Target(255)); ec != ErrBadArgument {
		t.Errorf("New(unknown target) = %v, want ErrBadArgument", ec)
	}
}
