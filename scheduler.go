package vcucan

import (
	"errors"
	"fmt"
	"time"

	"github.com/notnil/vcucan/canbus"
)

// ErrorPolicy decides what a tick does after a transport failure.
type ErrorPolicy uint8

const (
	// ContinueOnError keeps processing the remaining outboxes (and the rest
	// of the tick) after a failure and reports the first error.
	ContinueOnError ErrorPolicy = iota
	// AbortOnError returns on the first failure, skipping the remaining
	// outboxes and inbox aging for that tick. A full transmit queue is the
	// exception: it is reported like under ContinueOnError and the tick goes on.
	AbortOnError
)

// aborts reports whether err ends the tick under p.
func (p ErrorPolicy) aborts(err error) bool {
	return p == AbortOnError && !errors.Is(err, canbus.ErrTxFull)
}

func (p ErrorPolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case AbortOnError:
		return "abort"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", uint8(p))
	}
}

// ParseErrorPolicy maps "continue" / "abort" to a policy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnError, nil
	case "abort":
		return AbortOnError, nil
	}
	return 0, fmt.Errorf("vcucan: unknown error policy %q", s)
}

// Sender transmits one frame without blocking.
type Sender interface {
	Send(canbus.Frame) error
}

// Scheduler fires registered outboxes whose phase reached their period.
type Scheduler struct {
	reg    *Registry
	policy ErrorPolicy
}

// NewScheduler returns a scheduler over the outboxes of reg.
func NewScheduler(reg *Registry, policy ErrorPolicy) *Scheduler {
	return &Scheduler{reg: reg, policy: policy}
}

// Tick advances every periodic outbox by dt and transmits the ones that came
// due, in registration order. An outbox fires at most once per tick; its
// phase wraps modulo the period whether or not the transmission succeeds.
// The returned error is the first transport failure, wrapped with the
// identifier.
func (s *Scheduler) Tick(dt time.Duration, tx Sender) error {
	var first error
	for _, id := range s.reg.outOrder {
		out := s.reg.outboxes[id]
		if !out.advance(dt) {
			continue
		}
		if err := sendOutbox(tx, id, out); err != nil {
			if s.policy.aborts(err) {
				return err
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func sendOutbox(tx Sender, id uint32, out *Outbox) error {
	if err := tx.Send(out.frame(id)); err != nil {
		return fmt.Errorf("vcucan: send 0x%X: %w", id, err)
	}
	out.Sent++
	return nil
}
