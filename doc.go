// Package vcucan is the message-scheduling core of the vehicle control unit's
// CAN layer.
//
// It includes:
//   - A Registry associating message identifiers with caller-owned Inbox and
//     Outbox buffers
//   - A Scheduler transmitting outboxes periodically, with phase staggering
//     for identifier ranges
//   - A Tracker aging inboxes and flagging receive timeouts
//   - A Driver that runs one poll-driven tick: drain receives, schedule
//     transmissions, age inboxes
//
// The transport, fault vector and byte-field codec live in the canbus, fault
// and codec subpackages.
//
// Nothing here is safe for concurrent use. Tick runs to completion on one
// goroutine; callers that inspect mailboxes from elsewhere must serialize
// with it (see WithLocker).
package vcucan
