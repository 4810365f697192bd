// Package msgstore implements the broadcast-plus-bounded-history fan-out at
// the center of a session: every LogMsg pushed during a session's lifetime is
// retained (up to a byte budget) and replayed to late subscribers, who then
// continue seamlessly onto the live tail.
package msgstore

import (
	"context"
	"iter"
	"sync"

	"github.com/ashureev/relaybroker/internal/logmsg"
)

// DefaultHistoryBudget is the default per-session history byte ceiling.
const DefaultHistoryBudget = 100 * 1024 * 1024

// liveChannelCapacity bounds each subscriber's mailbox. A slow subscriber
// that falls this far behind starts silently missing live messages; history
// replay on reconnect is the recovery path, not a resend.
const liveChannelCapacity = 10_000

// MsgStore is a durable, byte-bounded FIFO of every LogMsg appended during a
// session, with real-time fan-out to an unbounded number of subscribers.
//
// The zero value is not usable; construct with New.
type MsgStore struct {
	historyMu  sync.Mutex
	history    []logmsg.LogMsg
	totalBytes int
	budget     int

	subsMu  sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

type subscriber struct {
	ch     chan logmsg.LogMsg
	closed bool
}

// New creates a MsgStore with the default history budget.
func New() *MsgStore {
	return NewWithBudget(DefaultHistoryBudget)
}

// NewWithBudget creates a MsgStore with an explicit history byte budget.
func NewWithBudget(budget int) *MsgStore {
	return &MsgStore{
		budget: budget,
		subs:   make(map[int]*subscriber),
	}
}

// Push appends msg to history and delivers it to every live subscriber.
// Before appending, entries are evicted from the front, oldest first, until
// the running total plus msg's cost fits the budget. If a single message
// exceeds the budget on its own, history ends empty and only that message is
// retained — Push never rejects a message. Push is infallible and never
// blocks on a subscriber.
func (s *MsgStore) Push(msg logmsg.LogMsg) {
	cost := msg.ApproxBytes()

	s.historyMu.Lock()
	for len(s.history) > 0 && s.totalBytes+cost > s.budget {
		evicted := s.history[0]
		s.history = s.history[1:]
		s.totalBytes -= evicted.ApproxBytes()
	}
	s.history = append(s.history, msg)
	s.totalBytes += cost
	s.historyMu.Unlock()

	s.broadcast(msg)
}

func (s *MsgStore) broadcast(msg logmsg.LogMsg) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, sub := range s.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Mailbox full: this subscriber silently misses the live copy.
		}
	}
}

// Subscribe registers a live receiver that observes every message pushed
// after this call returns. The returned cancel func must be called when the
// subscriber is done; it is safe to call more than once.
func (s *MsgStore) Subscribe() (<-chan logmsg.LogMsg, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &subscriber{ch: make(chan logmsg.LogMsg, liveChannelCapacity)}
	s.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if existing, ok := s.subs[id]; ok {
				existing.closed = true
				close(existing.ch)
				delete(s.subs, id)
			}
		})
	}
	return sub.ch, cancel
}

// Snapshot returns a point-in-time copy of current history, oldest first.
func (s *MsgStore) Snapshot() []logmsg.LogMsg {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	out := make([]logmsg.LogMsg, len(s.history))
	copy(out, s.history)
	return out
}

// TotalBytes returns the current running cost of retained history.
func (s *MsgStore) TotalBytes() int {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return s.totalBytes
}

// HistoryPlusStream atomically captures a live receiver and a history
// snapshot — in that order — then yields the snapshot followed by the live
// tail. Acquiring the receiver before the snapshot means a message pushed in
// the gap between the two calls can appear at most once, duplicated at the
// seam; it can never be lost, since it is already queued on the receiver
// before the snapshot is taken. LogMsg is idempotent for a consuming UI, so
// the at-most-one duplicate is accepted rather than filtered.
//
// The returned sequence ends when ctx is cancelled or the subscription is
// otherwise torn down; it does not stop on its own at Finished — callers
// that want that behavior should use StdoutChunkedStream, StderrChunkedStream,
// or check IsFinished themselves.
func (s *MsgStore) HistoryPlusStream(ctx context.Context) iter.Seq[logmsg.LogMsg] {
	return func(yield func(logmsg.LogMsg) bool) {
		live, cancel := s.Subscribe()
		defer cancel()

		snapshot := s.Snapshot()
		for _, msg := range snapshot {
			if !yield(msg) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-live:
				if !ok {
					return
				}
				if !yield(msg) {
					return
				}
			}
		}
	}
}

// StdoutChunkedStream yields the string payload of every Stdout event and
// terminates as soon as a Finished event is observed.
func (s *MsgStore) StdoutChunkedStream(ctx context.Context) iter.Seq[string] {
	return chunkedStream(s.HistoryPlusStream(ctx), logmsg.KindStdout)
}

// StderrChunkedStream yields the string payload of every Stderr event and
// terminates as soon as a Finished event is observed.
func (s *MsgStore) StderrChunkedStream(ctx context.Context) iter.Seq[string] {
	return chunkedStream(s.HistoryPlusStream(ctx), logmsg.KindStderr)
}

func chunkedStream(src iter.Seq[logmsg.LogMsg], kind logmsg.Kind) iter.Seq[string] {
	return func(yield func(string) bool) {
		for msg := range src {
			if msg.IsFinished() {
				return
			}
			if msg.Kind != kind {
				continue
			}
			if !yield(msg.Text) {
				return
			}
		}
	}
}

// Forward consumes an external (LogMsg, error) sequence, pushing successes
// verbatim and converting errors to a Stderr event with a fixed prefix. It
// returns when the source sequence ends; cancel ctx to abandon early without
// waiting for the source to finish.
func (s *MsgStore) Forward(ctx context.Context, src iter.Seq2[logmsg.LogMsg, error]) {
	for msg, err := range src {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Push(logmsg.Stderr("stream error: " + err.Error()))
			continue
		}
		s.Push(msg)
	}
}
