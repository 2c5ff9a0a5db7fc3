package vcucan

import (
	"time"

	"github.com/notnil/vcucan/canbus"
)

// Inbox holds the most recent payload received for one identifier plus its
// recency and timeout state. Inboxes are allocated by the caller and live as
// long as the registry that references them.
//
// State machine: fresh (IsRecent, Age reset) on every receive; Age grows by
// each tick's dt; once Age exceeds a non-zero TimeoutLimit the inbox is timed
// out (IsTimedOut set, IsRecent cleared) until the next receive.
type Inbox struct {
	IsRecent bool
	Len      uint8 // 0..8
	Data     [8]byte
	// Age is the time since the last receive.
	Age time.Duration
	// TimeoutLimit of zero disables timeout checking.
	TimeoutLimit time.Duration
	IsTimedOut   bool
	// Received counts accepted frames.
	Received uint64
}

// Bytes returns the valid part of Data.
func (in *Inbox) Bytes() []byte {
	n := in.Len
	if n > 8 {
		n = 8
	}
	return in.Data[:n]
}

func (in *Inbox) deliver(f canbus.Frame) {
	in.Data = [8]byte{}
	copy(in.Data[:], f.Payload())
	in.Len = uint8(len(f.Payload()))
	in.IsRecent = true
	in.Age = 0
	in.IsTimedOut = false
	in.Received++
}

// age advances Age by dt and reports whether the inbox timed out on this
// call.
func (in *Inbox) age(dt time.Duration) bool {
	in.Age += dt
	if in.TimeoutLimit == 0 || in.Age <= in.TimeoutLimit {
		return false
	}
	was := in.IsTimedOut
	in.IsTimedOut = true
	in.IsRecent = false
	return !was
}

// Outbox holds the payload transmitted periodically for one identifier.
// The application writes Data and Len; the scheduler owns Phase.
type Outbox struct {
	Len  uint8 // 0..8
	Data [8]byte
	// Period between transmissions. Zero means the outbox is only sent on
	// demand (Driver.Send).
	Period time.Duration
	// Phase accumulates elapsed time; the outbox is due once it reaches
	// Period. The residual is kept on fire so irregular ticks do not drift.
	Phase time.Duration
	// Sent counts successful transmissions.
	Sent uint64
}

// Set copies up to 8 bytes of p into Data and sets Len.
func (o *Outbox) Set(p []byte) {
	o.Data = [8]byte{}
	o.Len = uint8(copy(o.Data[:], p))
}

// advance adds dt to the phase and reports whether the outbox is due. At most
// one period is consumed per call.
func (o *Outbox) advance(dt time.Duration) bool {
	if o.Period <= 0 {
		return false
	}
	o.Phase += dt
	if o.Phase < o.Period {
		return false
	}
	o.Phase %= o.Period
	return true
}

func (o *Outbox) frame(id uint32) canbus.Frame {
	return canbus.NewFrame(id, o.Len, o.Data)
}
