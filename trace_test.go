package lirjit

import (
	"strings"
	"testing"
)

func TestTraceEmitsOneLinePerInstruction(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	var buf strings.Builder
	c.SetTrace(&buf)

	if ec := c.Enter(1, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := c.Op1(Mov, Reg(1), Imm(3)); ec != Ok {
		t.Fatalf("Op1: %v", ec)
	}
	if ec := c.Return(Mov, Reg(1)); ec != Ok {
		t.Fatalf("Return: %v", ec)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d trace lines, want 2 (Enter isn't traced, Op1 and Return are): %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "mov ") {
		t.Errorf("trace line = %q, want mov-prefixed", lines[0])
	}
}

func TestTraceDisabledByDefault(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	// Should not panic with no trace sink configured.
	if ec := c.Op1(Mov, Reg(1), Imm(1)); ec != Ok {
		t.Fatalf("Op1: %v", ec)
	}
}

func TestTraceNilWriterDisables(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	var buf strings.Builder
	c.SetTrace(&buf)
	c.SetTrace(nil)

	if ec := c.Enter(0, 1, 1, 0, 0, 0); ec != Ok {
		t.Fatalf("Enter: %v", ec)
	}
	if ec := c.Op1(Mov, Reg(1), Imm(1)); ec != Ok {
		t.Fatalf("Op1: %v", ec)
	}
	if buf.Len() != 0 {
		t.Errorf("trace buffer = %q, want empty after SetTrace(nil)", buf.String())
	}
}

func TestMnemonicSuffixes(t *testing.T) {
	got := mnemonic(op2Names, Add|SetC|SetS)
	want := "add.s.c"
	if got != want {
		t.Errorf("mnemonic(Add|SetC|SetS) = %q, want %q", got, want)
	}
}

func TestRenderOperand(t *testing.T) {
	cases := []struct {
		op   Operand
		want string
	}{
		{Imm(5), "#5"},
		{Reg(2), "r2"},
		{FReg(1), "f1"},
		{Mem(3, 0), "[r3]"},
		{Mem(3, 8), "[r3 + 8]"},
		{MemIndexed(3, 4, 2), "[r3 + r4*4]"},
		{Unused, "_"},
	}
	for _, tc := range cases {
		if got := renderOperand(tc.op); got != tc.want {
			t.Errorf("renderOperand(%+v) = %q, want %q", tc.op, got, tc.want)
		}
	}
}
