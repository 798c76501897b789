package lirjit

import (
	"testing"

	"lirjit/arch"
)

func TestValidateEnterOptionsBounds(t *testing.T) {
	d := descriptorFor(t, AMD64)

	cases := []struct {
		name string
		opts EnterOptions
		want ErrCode
	}{
		{"ok", EnterOptions{Args: 1, Scratches: 2, Saveds: 2}, Ok},
		{"too many args", EnterOptions{Args: 4, Saveds: 4}, ErrBadArgument},
		{"args exceed saveds", EnterOptions{Args: 2, Saveds: 1}, ErrBadArgument},
		{"negative scratches", EnterOptions{Scratches: -1}, ErrBadArgument},
		{"regs over budget", EnterOptions{Scratches: d.NumRegs, Saveds: d.NumRegs}, ErrBadArgument},
		{"local size too big", EnterOptions{LocalSize: 70000}, ErrBadArgument},
		{"local size negative", EnterOptions{LocalSize: -1}, ErrBadArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validateEnterOptions(d, tc.opts); got != tc.want {
				t.Errorf("validateEnterOptions(%+v) = %v, want %v", tc.opts, got, tc.want)
			}
		})
	}
}

func TestValidateOpCustomSize(t *testing.T) {
	cases := []struct {
		target Target
		size   int
		want   ErrCode
	}{
		{Thumb2, 2, Ok},
		{Thumb2, 3, ErrBadArgument},
		{AMD64, 15, Ok},
		{AMD64, 16, ErrBadArgument},
		{X86, 0, ErrBadArgument},
		{ARM64, 4, Ok},
		{ARM64, 3, ErrBadArgument},
	}
	for _, tc := range cases {
		if got := validateOpCustomSize(tc.target, tc.size); got != tc.want {
			t.Errorf("validateOpCustomSize(%v, %d) = %v, want %v", tc.target, tc.size, got, tc.want)
		}
	}
}

func TestValidateOperandMemIndexedNeedsBaseAndIndex(t *testing.T) {
	c, ec := New(AMD64)
	if ec != Ok {
		t.Fatalf("New: %v", ec)
	}
	bad := MemIndexed(0, 2, 1)
	if got := c.validateOperand(bad); got != ErrBadArgument {
		t.Errorf("validateOperand(zero base) = %v, want ErrBadArgument", got)
	}
	good := MemIndexed(1, 2, 1)
	if got := c.validateOperand(good); got != Ok {
		t.Errorf("validateOperand(valid indexed) = %v, want Ok", got)
	}
}

func descriptorFor(t *testing.T, target Target) arch.Descriptor {
	t.Helper()
	c, ec := New(target)
	if ec != Ok {
		t.Fatalf("New(%v): %v", target, ec)
	}
	return c.Descriptor()
}
