package vcucan

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/notnil/vcucan/canbus"
)

var (
	// ErrRangeMismatch is returned when an identifier range is inverted or
	// has more identifiers than mailboxes.
	ErrRangeMismatch = errors.New("vcucan: identifier range does not match mailboxes")
	// ErrNilMailbox is returned when registering a nil Inbox or Outbox.
	ErrNilMailbox = errors.New("vcucan: nil mailbox")
	// ErrNegativeDuration is returned for a negative period or timeout.
	ErrNegativeDuration = errors.New("vcucan: negative duration")
	// ErrUnknownID is returned by Driver.Send for an unregistered outbox.
	ErrUnknownID = errors.New("vcucan: identifier not registered")
)

// Registry maps message identifiers to caller-owned mailboxes, one map per
// direction. It never allocates or frees mailboxes; it only remembers where
// they are. The first registration of an identifier wins and later ones are
// ignored, so initialization code may run more than once.
//
// Iteration (scheduling, aging, snapshots) follows registration order.
type Registry struct {
	inboxes  map[uint32]*Inbox
	inOrder  []uint32
	outboxes map[uint32]*Outbox
	outOrder []uint32
}

// NewRegistry returns an empty registry. The zero Registry is also usable.
func NewRegistry() *Registry {
	return &Registry{
		inboxes:  make(map[uint32]*Inbox),
		outboxes: make(map[uint32]*Outbox),
	}
}

func checkID(id uint32) error {
	if id > canbus.MaxExtID {
		return fmt.Errorf("%w: 0x%X", canbus.ErrInvalidID, id)
	}
	return nil
}

// rangeLen validates [lo, hi] against n mailboxes and returns the number of
// identifiers in the range.
func rangeLen(lo, hi uint32, n int) (int, error) {
	if hi < lo {
		return 0, fmt.Errorf("%w: 0x%X > 0x%X", ErrRangeMismatch, lo, hi)
	}
	if err := checkID(hi); err != nil {
		return 0, err
	}
	count := uint64(hi-lo) + 1
	if uint64(n) < count {
		return 0, fmt.Errorf("%w: %d identifiers, %d mailboxes", ErrRangeMismatch, count, n)
	}
	return int(count), nil
}

// AddInbox copies every received frame with identifier id into in. A
// timeout of zero disables timeout tracking for this inbox.
func (r *Registry) AddInbox(id uint32, in *Inbox, timeout time.Duration) error {
	if in == nil {
		return ErrNilMailbox
	}
	if timeout < 0 {
		return ErrNegativeDuration
	}
	if err := checkID(id); err != nil {
		return err
	}
	if _, dup := r.inboxes[id]; dup {
		return nil
	}
	if r.inboxes == nil {
		r.inboxes = make(map[uint32]*Inbox)
	}
	in.TimeoutLimit = timeout
	r.inboxes[id] = in
	r.inOrder = append(r.inOrder, id)
	return nil
}

// AddInboxRange registers identifiers lo..hi, pairing the i-th identifier with
// inboxes[i]. All share the same timeout. Used for blocks of identical
// messages such as per-segment cell voltages.
func (r *Registry) AddInboxRange(lo, hi uint32, inboxes []Inbox, timeout time.Duration) error {
	if timeout < 0 {
		return ErrNegativeDuration
	}
	n, err := rangeLen(lo, hi, len(inboxes))
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := r.AddInbox(lo+uint32(i), &inboxes[i], timeout); err != nil {
			return err
		}
	}
	return nil
}

// AddOutbox schedules out for transmission every period under identifier
// id. A zero period registers the outbox for on-demand sends only. The
// outbox's current Phase is kept as its starting phase.
func (r *Registry) AddOutbox(id uint32, period time.Duration, out *Outbox) error {
	if out == nil {
		return ErrNilMailbox
	}
	if period < 0 {
		return ErrNegativeDuration
	}
	if err := checkID(id); err != nil {
		return err
	}
	if _, dup := r.outboxes[id]; dup {
		return nil
	}
	if r.outboxes == nil {
		r.outboxes = make(map[uint32]*Outbox)
	}
	out.Period = period
	r.outboxes[id] = out
	r.outOrder = append(r.outOrder, id)
	return nil
}

// AddOutboxRange registers identifiers lo..hi with outboxes[i] for the i-th
// identifier, all with the same period. Initial phases are staggered evenly:
// the k-th of n outboxes starts at k*period/n, so a large block spreads its
// transmissions over the period instead of bursting on one tick.
func (r *Registry) AddOutboxRange(lo, hi uint32, period time.Duration, outboxes []Outbox) error {
	if period < 0 {
		return ErrNegativeDuration
	}
	n, err := rangeLen(lo, hi, len(outboxes))
	if err != nil {
		return err
	}
	for k := 0; k < n; k++ {
		id := lo + uint32(k)
		if _, dup := r.outboxes[id]; dup {
			continue
		}
		outboxes[k].Phase = stagger(period, k, n)
		if err := r.AddOutbox(id, period, &outboxes[k]); err != nil {
			return err
		}
	}
	return nil
}

// stagger returns k*period/n without overflowing the intermediate product.
func stagger(period time.Duration, k, n int) time.Duration {
	hi, lo := bits.Mul64(uint64(period), uint64(k))
	q, _ := bits.Div64(hi, lo, uint64(n))
	return time.Duration(q)
}

// Inbox returns the inbox registered for id.
func (r *Registry) Inbox(id uint32) (*Inbox, bool) {
	in, ok := r.inboxes[id]
	return in, ok
}

// Outbox returns the outbox registered for id.
func (r *Registry) Outbox(id uint32) (*Outbox, bool) {
	out, ok := r.outboxes[id]
	return out, ok
}

// InboxIDs returns the registered inbound identifiers in registration order.
func (r *Registry) InboxIDs() []uint32 { return append([]uint32(nil), r.inOrder...) }

// OutboxIDs returns the registered outbound identifiers in registration order.
func (r *Registry) OutboxIDs() []uint32 { return append([]uint32(nil), r.outOrder...) }

// ClearRecent clears IsRecent on every inbox, letting the application tell
// which messages arrived since it last looked.
func (r *Registry) ClearRecent() {
	for _, id := range r.inOrder {
		r.inboxes[id].IsRecent = false
	}
}

// InboxEntry is a copy of one inbox taken by Snapshot.
type InboxEntry struct {
	ID uint32
	Inbox
}

// OutboxEntry is a copy of one outbox taken by Snapshot.
type OutboxEntry struct {
	ID uint32
	Outbox
}

// Snapshot copies every mailbox, in registration order.
func (r *Registry) Snapshot() ([]InboxEntry, []OutboxEntry) {
	ins := make([]InboxEntry, 0, len(r.inOrder))
	for _, id := range r.inOrder {
		ins = append(ins, InboxEntry{ID: id, Inbox: *r.inboxes[id]})
	}
	outs := make([]OutboxEntry, 0, len(r.outOrder))
	for _, id := range r.outOrder {
		outs = append(outs, OutboxEntry{ID: id, Outbox: *r.outboxes[id]})
	}
	return ins, outs
}
