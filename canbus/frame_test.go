package canbus

import (
	"testing"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true, Len: 0},
			wantStr: "1ABCDEFF [0] RTR",
		},
		{
			name:    "extended by threshold",
			frame:   MustFrame(0x18FF50E5, []byte{1}),
			wantStr: "18FF50E5 [1] 01",
		},
	}

	for _, tc := range cases {
		if err := tc.frame.Validate(); err != nil {
			t.Fatalf("%s: Validate() error = %v", tc.name, err)
		}
		b, err := tc.frame.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary() error = %v", tc.name, err)
		}
		var g Frame
		if err := g.UnmarshalBinary(b); err != nil {
			t.Fatalf("%s: UnmarshalBinary() error = %v", tc.name, err)
		}
		if g != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, g, tc.frame)
		}
		if got := g.String(); got != tc.wantStr {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.wantStr)
		}
	}
}

func TestFrame_Invalid(t *testing.T) {
	if err := (Frame{ID: 0x800}).Validate(); err != ErrInvalidID {
		t.Fatalf("standard 0x800: got %v", err)
	}
	if err := (Frame{ID: 0x20000000, Extended: true}).Validate(); err != ErrInvalidID {
		t.Fatalf("extended 0x20000000: got %v", err)
	}
	if err := (Frame{ID: 0x1, Len: 9}).Validate(); err != ErrInvalidLen {
		t.Fatalf("len 9: got %v", err)
	}
	if err := new(Frame).UnmarshalBinary(make([]byte, 4)); err == nil {
		t.Fatalf("short buffer should fail")
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustFrame should panic for len>8")
		}
	}()
	_ = MustFrame(0x123, make([]byte, 9))
}

func TestNewFrame_ClassifiesByThreshold(t *testing.T) {
	data := [8]byte{1, 2, 3}
	if f := NewFrame(0x7FF, 3, data); f.Extended {
		t.Fatalf("0x7FF must be standard")
	}
	f := NewFrame(0x800, 3, data)
	if !f.Extended {
		t.Fatalf("0x800 must be extended")
	}
	if got := f.Payload(); len(got) != 3 || got[2] != 3 {
		t.Fatalf("payload: %v", got)
	}
}
