package vcucan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/vcucan/canbus"
	"github.com/notnil/vcucan/fault"
)

// Transport is the part of a CAN bus the driver needs. canbus.Bus
// implementations satisfy it.
type Transport interface {
	Send(canbus.Frame) error
	TryReceive() (canbus.Frame, bool, error)
}

// Stats counts driver activity since construction.
type Stats struct {
	Ticks uint64 `json:"ticks"`
	// Received counts frames delivered to an inbox, Dropped those with no
	// registered inbox.
	Received    uint64 `json:"received"`
	Dropped     uint64 `json:"dropped"`
	Transmitted uint64 `json:"transmitted"`
	TxErrors    uint64 `json:"tx_errors"`
	RxErrors    uint64 `json:"rx_errors"`
	// Timeouts counts inbox transitions into timed out.
	Timeouts uint64 `json:"timeouts"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFaultSink reports transport failures as fault.CANBadTx and
// fault.CANBadRx.
func WithFaultSink(s fault.Sink) Option {
	return func(d *Driver) { d.faults = s }
}

// WithErrorPolicy selects how a tick proceeds after a transport failure.
// The default is ContinueOnError.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(d *Driver) { d.policy = p }
}

// WithRxBudget bounds the number of frames drained per tick. Zero, the
// default, drains until the transport reports empty.
func WithRxBudget(n int) Option {
	return func(d *Driver) { d.rxBudget = n }
}

// WithLocker makes Run hold l for the duration of every tick, so other
// goroutines holding l may read mailboxes safely.
func WithLocker(l sync.Locker) Option {
	return func(d *Driver) { d.locker = l }
}

// Driver runs the periodic CAN tick: it drains received frames into inboxes,
// transmits due outboxes and ages inboxes. It is not safe for concurrent use.
type Driver struct {
	reg     *Registry
	tr      Transport
	sched   *Scheduler
	tracker *Tracker

	logger   *slog.Logger
	faults   fault.Sink
	policy   ErrorPolicy
	rxBudget int
	locker   sync.Locker
	now      func() time.Time

	stats Stats
}

// NewDriver returns a driver moving frames between tr and the mailboxes of
// reg.
func NewDriver(reg *Registry, tr Transport, opts ...Option) *Driver {
	d := &Driver{
		reg:    reg,
		tr:     tr,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.sched = NewScheduler(reg, d.policy)
	d.tracker = NewTracker(reg)
	return d
}

// Registry returns the registry the driver serves.
func (d *Driver) Registry() *Registry { return d.reg }

// Stats returns a copy of the activity counters.
func (d *Driver) Stats() Stats { return d.stats }

// Tick runs one cycle with dt elapsed since the previous one:
//
//  1. drain pending frames into their inboxes, dropping unregistered ones
//  2. transmit outboxes that came due
//  3. age inboxes and flag timeouts
//
// It returns the first transport error from steps 1 or 2. Under
// AbortOnError it returns at that error unless the transmit queue was full;
// under ContinueOnError every step still runs. A negative dt counts as zero.
func (d *Driver) Tick(dt time.Duration) error {
	if dt < 0 {
		dt = 0
	}
	d.stats.Ticks++

	first := d.drain()
	if first != nil && d.policy.aborts(first) {
		return first
	}
	if err := d.sched.Tick(dt, driverSender{d}); err != nil {
		if d.policy.aborts(err) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	d.tracker.Tick(dt, d.onTimeout)
	return first
}

// Send transmits the outbox registered for id immediately, independent of
// its period and without touching its phase.
func (d *Driver) Send(id uint32) error {
	out, ok := d.reg.Outbox(id)
	if !ok {
		return fmt.Errorf("%w: 0x%X", ErrUnknownID, id)
	}
	return sendOutbox(driverSender{d}, id, out)
}

func (d *Driver) drain() error {
	for n := 0; d.rxBudget <= 0 || n < d.rxBudget; n++ {
		f, ok, err := d.tr.TryReceive()
		if err != nil {
			d.stats.RxErrors++
			d.raise(fault.CANBadRx)
			d.logger.Error("vcucan receive failed", "error", err)
			return fmt.Errorf("vcucan: receive: %w", err)
		}
		if !ok {
			return nil
		}
		in, found := d.reg.Inbox(f.ID)
		if !found {
			d.stats.Dropped++
			d.logger.Debug("vcucan drop unregistered frame", "id", f.ID, "len", int(f.Len))
			continue
		}
		in.deliver(f)
		d.stats.Received++
	}
	return nil
}

func (d *Driver) onTimeout(id uint32, in *Inbox) {
	d.stats.Timeouts++
	d.logger.Warn("vcucan inbox timed out",
		"id", id,
		"age", in.Age,
		"limit", in.TimeoutLimit,
	)
}

func (d *Driver) raise(f fault.Fault) {
	if d.faults != nil {
		d.faults.Set(f)
	}
}

// driverSender routes scheduler transmissions through the driver's
// accounting.
type driverSender struct{ d *Driver }

func (s driverSender) Send(f canbus.Frame) error {
	d := s.d
	if err := d.tr.Send(f); err != nil {
		d.stats.TxErrors++
		d.raise(fault.CANBadTx)
		d.logger.Error("vcucan transmit failed", "id", f.ID, "error", err)
		return err
	}
	d.stats.Transmitted++
	return nil
}

// Run ticks the driver every interval until ctx is done, passing the
// measured time since the previous tick as dt. Tick errors go to onError
// (if not nil) and do not stop the loop. Run returns ctx.Err().
func (d *Driver) Run(ctx context.Context, interval time.Duration, onError func(error)) error {
	if interval <= 0 {
		return errors.New("vcucan: run interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := d.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := d.now()
			dt := now.Sub(last)
			last = now
			if err := d.lockedTick(dt); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

func (d *Driver) lockedTick(dt time.Duration) error {
	if d.locker != nil {
		d.locker.Lock()
		defer d.locker.Unlock()
	}
	return d.Tick(dt)
}
