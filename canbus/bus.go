package canbus

import "errors"

// Bus is a non-blocking CAN transport. Both directions return immediately:
// the hardware it models has fixed-capacity FIFOs that signal full or empty
// instead of waiting.
type Bus interface {
	// Send queues a frame for transmission. It returns ErrTxFull when the
	// transmit queue has no room.
	Send(frame Frame) error

	// TryReceive pops the next pending frame. ok is false when nothing is
	// pending. A non-nil error reports a receive-side fault (e.g. overrun);
	// the bus stays usable afterwards.
	TryReceive() (frame Frame, ok bool, err error)

	// Close releases resources. Further Send/TryReceive return ErrClosed.
	Close() error
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrTxFull indicates the transmit queue is full.
	ErrTxFull = errors.New("canbus: transmit queue full")
	// ErrRxOverrun indicates received frames were lost because the receive
	// queue was full.
	ErrRxOverrun = errors.New("canbus: receive overrun")
	// ErrUnsupported is returned by drivers unavailable on this platform.
	ErrUnsupported = errors.New("canbus: not supported on this platform")
)
