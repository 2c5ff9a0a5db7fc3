package canbus

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueLen is the receive queue capacity of endpoints opened with Open.
const DefaultQueueLen = 64

// LoopbackBus is an in-memory CAN bus for tests and simulations.
// Multiple endpoints opened from the same bus can exchange frames. Each
// endpoint has a fixed-capacity receive queue; frames arriving at a full
// queue are dropped and reported as ErrRxOverrun on the receiver.
type LoopbackBus struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopbackBus creates a new loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open creates a new endpoint attached to the bus.
func (b *LoopbackBus) Open() Bus {
	return b.OpenQueue(DefaultQueueLen)
}

// OpenQueue creates a new endpoint whose receive queue holds n frames.
func (b *LoopbackBus) OpenQueue(n int) Bus {
	if n < 1 {
		n = 1
	}
	ep := &loopEndpoint{
		bus: b,
		ch:  make(chan Frame, n),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.dead.Store(true)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close closes the bus and detaches all endpoints.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.dead.Store(true)
	}
	b.endpoints = nil
	return nil
}

type loopEndpoint struct {
	bus     *LoopbackBus
	ch      chan Frame
	dead    atomic.Bool
	overrun atomic.Bool
}

// Send broadcasts the frame to all other endpoints on the same bus. It never
// waits: a receiver with a full queue loses the frame.
func (e *loopEndpoint) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if e.dead.Load() {
		return ErrClosed
	}
	e.bus.mu.RLock()
	defer e.bus.mu.RUnlock()
	if e.bus.closed {
		return ErrClosed
	}
	for ep := range e.bus.endpoints {
		if ep == e {
			continue
		}
		select {
		case ep.ch <- frame:
		default:
			ep.overrun.Store(true)
		}
	}
	return nil
}

// TryReceive pops the next queued frame without waiting. Pending frames are
// returned before a recorded overrun is reported.
func (e *loopEndpoint) TryReceive() (Frame, bool, error) {
	if e.dead.Load() {
		return Frame{}, false, ErrClosed
	}
	select {
	case f := <-e.ch:
		return f, true, nil
	default:
	}
	if e.overrun.Swap(false) {
		return Frame{}, false, ErrRxOverrun
	}
	return Frame{}, false, nil
}

// Close detaches the endpoint from the bus.
func (e *loopEndpoint) Close() error {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	e.dead.Store(true)
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	return nil
}
