// Package ledger is the append-only record of every trade and order
// lifecycle transition, and the sole read surface for consumers outside
// the matching core.
package ledger

import (
	"sync"
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
)

// EventType classifies a ledger entry.
type EventType int8

const (
	EventAck EventType = iota
	EventReject
	EventFill
	EventPartialFill
	EventCancelAck
	EventCancelReject
)

func (t EventType) String() string {
	switch t {
	case EventAck:
		return "ack"
	case EventReject:
		return "reject"
	case EventFill:
		return "fill"
	case EventPartialFill:
		return "partial_fill"
	case EventCancelAck:
		return "cancel_ack"
	case EventCancelReject:
		return "cancel_reject"
	}
	return "unknown"
}

// Entry is one order lifecycle event. Remaining carries the order's open
// quantity after the event (leaves quantity), so consumers can track
// liveness without reading book internals.
type Entry struct {
	Seq           uint64        `json:"seq"`
	Time          time.Duration `json:"time"`
	Type          EventType     `json:"type"`
	OrderID       string        `json:"order_id"`
	AgentID       string        `json:"agent_id"`
	ClientOrderID string        `json:"client_order_id,omitempty"`
	Price         int64         `json:"price,omitempty"`
	Quantity      int64         `json:"quantity,omitempty"`
	Remaining     int64         `json:"remaining"`
	TradeID       string        `json:"trade_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// Final reports whether the entry terminates its order.
func (e Entry) Final() bool {
	switch e.Type {
	case EventReject, EventFill:
		return true
	case EventCancelAck:
		return e.Remaining == 0
	}
	return false
}

// Ledger appends entries and trades in a single strictly increasing
// sequence. The matching engine is the only writer; appends happen inside
// the scheduler's dispatch cycle. Reads may come from other goroutines
// (API, exporters), hence the lock — it guards the read surface, never
// the book.
type Ledger struct {
	mu      sync.RWMutex
	seq     *Sequencer
	entries []Entry
	trades  []book.Trade
	subs    []func(Entry)
}

func New() *Ledger {
	return &Ledger{seq: NewSequencer(0)}
}

// Append assigns the next sequence number, stores the entry and notifies
// subscribers. The stored entry is returned.
func (l *Ledger) Append(e Entry) Entry {
	l.mu.Lock()
	e.Seq = l.seq.Next()
	l.entries = append(l.entries, e)
	subs := l.subs
	l.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
	return e
}

// RecordTrade assigns the trade its sequence number and stores it.
func (l *Ledger) RecordTrade(t book.Trade) book.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.Seq = l.seq.Next()
	l.trades = append(l.trades, t)
	return t
}

// OnEntry registers a subscriber invoked synchronously, in sequence
// order, for every appended entry. Register before the run starts.
func (l *Ledger) OnEntry(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

// LastSeq returns the most recently issued sequence number.
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq.Current()
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of all entries appended so far.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Trades returns a copy of all trades recorded so far.
func (l *Ledger) Trades() []book.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]book.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Replay returns a restartable iterator over the consistent prefix of
// entries with Seq > from. Entries appended after Replay is called are
// not observed; call Replay again with the iterator's last sequence to
// resume.
func (l *Ledger) Replay(from uint64) *Iterator {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Entries are ordered by Seq; find the first one past from.
	start := 0
	for start < len(l.entries) && l.entries[start].Seq <= from {
		start++
	}
	snapshot := make([]Entry, len(l.entries)-start)
	copy(snapshot, l.entries[start:])
	return &Iterator{entries: snapshot}
}

// Iterator walks a fixed snapshot of ledger entries in sequence order.
type Iterator struct {
	entries []Entry
	pos     int
}

// Next returns the next entry; ok is false when the snapshot is drained.
func (it *Iterator) Next() (Entry, bool) {
	if it.pos >= len(it.entries) {
		return Entry{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true
}

// LastSeq returns the sequence of the last entry returned by Next, or 0.
func (it *Iterator) LastSeq() uint64 {
	if it.pos == 0 {
		return 0
	}
	return it.entries[it.pos-1].Seq
}
