package vcucan

import "time"

// Tracker ages registered inboxes and flags receive timeouts.
type Tracker struct {
	reg *Registry
}

// NewTracker returns a tracker over the inboxes of reg.
func NewTracker(reg *Registry) *Tracker {
	return &Tracker{reg: reg}
}

// Tick adds dt to every inbox's age. Inboxes with a non-zero TimeoutLimit
// whose age now strictly exceeds it become timed out; onTimeout, if not nil,
// is called once per inbox on that transition.
func (t *Tracker) Tick(dt time.Duration, onTimeout func(id uint32, in *Inbox)) {
	for _, id := range t.reg.inOrder {
		in := t.reg.inboxes[id]
		if in.age(dt) && onTimeout != nil {
			onTimeout(id, in)
		}
	}
}
