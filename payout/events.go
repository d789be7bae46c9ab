package payout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bitfsorg/royalty-go/epoch"
)

// Event is a notification published after a successful operation.
type Event interface {
	Name() string
}

// PayoutMade is published after every successful claim, including zero-value ones.
type PayoutMade struct {
	Recipient   string
	TotalPayout uint64 // accumulator after this call
	Amount      uint64 // paid by this call
}

// Name implements Event.
func (PayoutMade) Name() string { return "PayoutMade" }

// IntervalChanged is published whenever a new interval starts.
type IntervalChanged struct {
	DidChange       bool
	Automated       bool
	SnapshotBalance uint64
	Timestamp       time.Time
	WindowLength    time.Duration
	Interval        uint64
}

// Name implements Event.
func (IntervalChanged) Name() string { return "IntervalChanged" }

func intervalChanged(ch epoch.Change) IntervalChanged {
	return IntervalChanged(ch)
}

// Sink receives published events. Publish is called with the distributor
// lock held and must not call back into the distributor.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Publish implements Sink.
func (f SinkFunc) Publish(e Event) { f(e) }

// Sinks fans events out to several sinks in order.
type Sinks []Sink

// Publish implements Sink.
func (s Sinks) Publish(e Event) {
	for _, sink := range s {
		sink.Publish(e)
	}
}

// Recorder is a Sink that keeps every event, for tests and inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Publish implements Sink.
func (s LogSink) Publish(e Event) {
	switch ev := e.(type) {
	case PayoutMade:
		s.Logger.Info("event", "name", ev.Name(), "recipient", ev.Recipient,
			"amount", ev.Amount, "total_payout", ev.TotalPayout)
	case IntervalChanged:
		s.Logger.Info("event", "name", ev.Name(), "interval", ev.Interval,
			"automated", ev.Automated, "snapshot_balance", ev.SnapshotBalance,
			"timestamp", ev.Timestamp, "window", ev.WindowLength)
	default:
		s.Logger.Info("event", "name", e.Name())
	}
}
