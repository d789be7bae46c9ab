// Package epoch tracks the payout interval counter and the fund snapshot
// taken at each rollover.
package epoch

import (
	"time"

	"github.com/bitfsorg/royalty-go/config"
)

// Snapshot is the live interval state. Exactly one exists per tracker.
type Snapshot struct {
	Interval      uint64
	LastBalance   uint64    // funds on hand at the most recent rollover or deposit
	LastTimestamp time.Time // time of the most recent rollover
}

// Change describes an interval transition, as published to listeners.
type Change struct {
	DidChange       bool
	Automated       bool
	SnapshotBalance uint64
	Timestamp       time.Time
	WindowLength    time.Duration
	Interval        uint64
}

// Tracker owns the interval counter and snapshot. It reads interval and
// window lengths from the shared settings on every call.
//
// Tracker is not safe for concurrent use; callers serialise access.
type Tracker struct {
	settings *config.Settings
	snap     Snapshot
}

// NewTracker creates a tracker starting from snap.
func NewTracker(settings *config.Settings, snap Snapshot) *Tracker {
	return &Tracker{settings: settings, snap: snap}
}

// Snapshot returns a copy of the live snapshot.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Restore replaces the live snapshot. It exists to undo the effects of an
// operation that was rejected after touching the tracker.
func (t *Tracker) Restore(s Snapshot) { t.snap = s }

// NeedsRollover reports whether the snapshot is older than the interval length.
func (t *Tracker) NeedsRollover(now time.Time) bool {
	return now.Sub(t.snap.LastTimestamp) > t.settings.IntervalLength
}

// IsWithinWindow reports whether now falls inside the payout window that
// follows the last rollover.
func (t *Tracker) IsWithinWindow(now time.Time) bool {
	return now.Sub(t.snap.LastTimestamp) < t.settings.PayoutWindow
}

// Rollover starts a new interval at now with balance as its snapshot, if
// NeedsRollover(now) holds. Otherwise it does nothing and returns false.
func (t *Tracker) Rollover(now time.Time, balance uint64) (Change, bool) {
	if !t.NeedsRollover(now) {
		return Change{}, false
	}
	t.snap.LastTimestamp = now
	t.snap.LastBalance = balance
	t.snap.Interval++
	return t.change(), true
}

// ForceRollover increments the interval without touching balance or timestamp.
func (t *Tracker) ForceRollover() Change {
	t.snap.Interval++
	return t.change()
}

// Restart increments the interval and restamps it at now, keeping the balance.
func (t *Tracker) Restart(now time.Time) Change {
	t.snap.LastTimestamp = now
	t.snap.Interval++
	return t.change()
}

// SetBalance refreshes the snapshot balance without starting a new interval.
func (t *Tracker) SetBalance(balance uint64) {
	t.snap.LastBalance = balance
}

func (t *Tracker) change() Change {
	return Change{
		DidChange:       true,
		Automated:       t.settings.Automated,
		SnapshotBalance: t.snap.LastBalance,
		Timestamp:       t.snap.LastTimestamp,
		WindowLength:    t.settings.PayoutWindow,
		Interval:        t.snap.Interval,
	}
}
