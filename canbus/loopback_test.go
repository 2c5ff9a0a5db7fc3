package canbus

import (
	"bytes"
	"fmt"
	"testing"
)

func TestLoopbackBus_SendReceive_MultiEndpoint(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	c := bus.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	send := MustFrame(0x321, []byte("hello"))
	if err := a.Send(send); err != nil {
		t.Fatalf("send: %v", err)
	}

	for name, ep := range map[string]Bus{"b": b, "c": c} {
		got, ok, err := ep.TryReceive()
		if err != nil || !ok {
			t.Fatalf("receive %s: ok=%v err=%v", name, ok, err)
		}
		if got.ID != send.ID || !bytes.Equal(got.Payload(), send.Payload()) {
			t.Fatalf("%s mismatch: got %+v want %+v", name, got, send)
		}
	}
	// Sender does not hear itself.
	if _, ok, err := a.TryReceive(); ok || err != nil {
		t.Fatalf("sender should be empty: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := b.TryReceive(); ok {
		t.Fatalf("b should be drained")
	}
}

func TestLoopbackBus_Overrun(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()
	tx := bus.Open()
	rx := bus.OpenQueue(2)

	for i := 0; i < 3; i++ {
		if err := tx.Send(MustFrame(0x100+uint32(i), nil)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		f, ok, err := rx.TryReceive()
		if !ok || err != nil || f.ID != 0x100+uint32(i) {
			t.Fatalf("frame %d: %+v ok=%v err=%v", i, f, ok, err)
		}
	}
	if _, ok, err := rx.TryReceive(); ok || err != ErrRxOverrun {
		t.Fatalf("want overrun, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := rx.TryReceive(); ok || err != nil {
		t.Fatalf("overrun reported once, got ok=%v err=%v", ok, err)
	}
}

func TestLoopbackBus_CloseBehavior(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()

	_ = a.Close()
	if _, _, err := a.TryReceive(); err != ErrClosed {
		t.Fatalf("closed endpoint should error on TryReceive, got %v", err)
	}
	if err := a.Send(MustFrame(0x1, nil)); err != ErrClosed {
		t.Fatalf("closed endpoint should error on Send, got %v", err)
	}

	_ = bus.Close()
	if _, _, err := b.TryReceive(); err != ErrClosed {
		t.Fatalf("endpoint should error after bus close, got %v", err)
	}
	if err := b.Send(MustFrame(0x1, nil)); err != ErrClosed {
		t.Fatalf("endpoint should error on Send after bus close, got %v", err)
	}
	if _, _, err := bus.Open().TryReceive(); err != ErrClosed {
		t.Fatalf("endpoint opened on closed bus should be closed, got %v", err)
	}
}

func TestLoopbackBus_RejectsInvalidFrame(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()
	a := bus.Open()
	if err := a.Send(Frame{ID: 0x800}); err != ErrInvalidID {
		t.Fatalf("got %v", err)
	}
}

func ExampleLoopbackBus() {
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	_ = a.Send(MustFrame(0x123, []byte("hi")))
	f, _, _ := b.TryReceive()
	fmt.Printf("ID=%03X LEN=%d DATA=%x\n", f.ID, f.Len, f.Payload())
	// Output: ID=123 LEN=2 DATA=6869
}
