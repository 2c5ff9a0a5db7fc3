package canbus

// FrameFilter decides whether a frame is of interest. A nil FrameFilter
// matches everything.
type FrameFilter func(Frame) bool

// Match applies the filter, treating nil as match-all.
func (ff FrameFilter) Match(f Frame) bool {
	return ff == nil || ff(f)
}

// ByID matches frames with the exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByIDs matches any of the provided identifiers.
func ByIDs(ids ...uint32) FrameFilter {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(f Frame) bool {
		_, ok := set[f.ID]
		return ok
	}
}

// ByRange matches frames whose ID is within [lo, hi], inclusive. Bounds may be
// given in either order.
func ByRange(lo, hi uint32) FrameFilter {
	if hi < lo {
		lo, hi = hi, lo
	}
	return func(f Frame) bool { return f.ID >= lo && f.ID <= hi }
}

// ByMask matches when (frame.ID & mask) == (id & mask), the acceptance rule
// used by CAN controller filter banks.
func ByMask(id, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return f.ID&mask == want }
}

// StandardOnly matches 11-bit identifiers.
func StandardOnly() FrameFilter {
	return func(f Frame) bool { return !f.Extended }
}

// ExtendedOnly matches 29-bit identifiers.
func ExtendedOnly() FrameFilter {
	return func(f Frame) bool { return f.Extended }
}

// DataOnly matches non-RTR frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// RTROnly matches remote transmission requests.
func RTROnly() FrameFilter {
	return func(f Frame) bool { return f.RTR }
}

// LenAtMost matches frames carrying at most n bytes.
func LenAtMost(n uint8) FrameFilter {
	return func(f Frame) bool { return f.Len <= n }
}

// LenExactly matches frames carrying exactly n bytes.
func LenExactly(n uint8) FrameFilter {
	return func(f Frame) bool { return f.Len == n }
}

// And matches when both filters match.
func And(a, b FrameFilter) FrameFilter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(f Frame) bool { return a(f) && b(f) }
}

// Or matches when either filter matches. A nil operand matches everything, so
// the result does too.
func Or(a, b FrameFilter) FrameFilter {
	if a == nil || b == nil {
		return nil
	}
	return func(f Frame) bool { return a(f) || b(f) }
}

// Not inverts a filter. Not(nil) matches nothing.
func Not(a FrameFilter) FrameFilter {
	if a == nil {
		return func(Frame) bool { return false }
	}
	return func(f Frame) bool { return !a(f) }
}
