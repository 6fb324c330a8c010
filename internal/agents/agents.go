// Package agents provides the built-in strategy agents. They are pull
// driven: the scheduler wakes them, they answer with intents, and they
// learn about their own orders only through ledger feedback and about the
// market only through the public tape.
package agents

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

// Agent mirrors the scheduler's participant contract.
type Agent interface {
	ID() string
	OnWake(now time.Duration) ([]gateway.Intent, time.Duration)
	OnFeedback(now time.Duration, entries []ledger.Entry) []gateway.Intent
	OnIntentError(now time.Duration, in gateway.Intent, err error)
}

// Config describes one configured agent instance.
type Config struct {
	ID       string
	Strategy string // "noise", "maker" or "momentum"
	Seed     int64  // run seed; the agent derives its own stream from it

	Interval    time.Duration // wake cadence
	RefPrice    int64         // starting reference price
	Quantity    int64         // base order size
	Spread      int64         // maker quote width
	MaxPosition int64         // momentum position cap
	TickSize    int64
}

// New builds an agent for the configured strategy.
func New(cfg Config) (Agent, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("agent config: id required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 10
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = 1
	}

	switch cfg.Strategy {
	case "noise":
		return NewNoise(cfg), nil
	case "maker":
		return NewMaker(cfg), nil
	case "momentum":
		return NewMomentum(cfg), nil
	}
	return nil, fmt.Errorf("unknown agent strategy %q", cfg.Strategy)
}

// orderState is the agent's view of one of its live orders, built purely
// from ledger feedback.
type orderState struct {
	side      book.Side
	price     int64
	remaining int64
}

// base carries the bookkeeping every strategy shares: a derived rng
// stream, live-order tracking keyed off client order ids, position, and
// the last tape price.
type base struct {
	id       string
	rng      *rand.Rand
	interval time.Duration
	tick     int64

	clientSeq uint64
	pending   map[string]book.Side  // client order id -> side, pre-ack
	active    map[string]orderState // order id -> state
	activeIDs []string              // insertion order, for deterministic picks

	position int64
	last     int64 // last traded price seen on the tape
}

func newBase(cfg Config) base {
	return base{
		id:       cfg.ID,
		rng:      rand.New(rand.NewSource(agentSeed(cfg.Seed, cfg.ID))),
		interval: cfg.Interval,
		tick:     cfg.TickSize,
		pending:  make(map[string]book.Side),
		active:   make(map[string]orderState),
		last:     cfg.RefPrice,
	}
}

// agentSeed derives an independent per-agent stream from the run seed.
func agentSeed(seed int64, id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return seed ^ int64(h.Sum64())
}

func (b *base) ID() string { return b.id }

func (b *base) Position() int64 { return b.position }

// nextClientID tags an intent so the agent can recognize its order in the
// feedback stream before it learns the assigned order id.
func (b *base) nextClientID() string {
	b.clientSeq++
	return fmt.Sprintf("%s-%d", b.id, b.clientSeq)
}

func (b *base) limit(side book.Side, price, qty int64) gateway.Intent {
	cid := b.nextClientID()
	b.pending[cid] = side
	return gateway.Intent{
		AgentID: b.id, Action: gateway.SubmitLimit,
		Side: side, Price: b.align(price), Quantity: qty,
		ClientOrderID: cid,
	}
}

func (b *base) market(side book.Side, qty int64) gateway.Intent {
	cid := b.nextClientID()
	b.pending[cid] = side
	return gateway.Intent{
		AgentID: b.id, Action: gateway.SubmitMarket,
		Side: side, Quantity: qty,
		ClientOrderID: cid,
	}
}

func (b *base) cancel(orderID string) gateway.Intent {
	return gateway.Intent{AgentID: b.id, Action: gateway.Cancel, TargetOrderID: orderID}
}

func (b *base) align(price int64) int64 {
	if price < b.tick {
		return b.tick
	}
	return price - price%b.tick
}

// OnFeedback folds the agent's own ledger entries into its order and
// position state. Strategies that react to feedback override this and
// call it first.
func (b *base) OnFeedback(now time.Duration, entries []ledger.Entry) []gateway.Intent {
	for _, e := range entries {
		b.observe(e)
	}
	return nil
}

func (b *base) observe(e ledger.Entry) {
	switch e.Type {
	case ledger.EventAck:
		side, ok := b.pending[e.ClientOrderID]
		if !ok {
			return
		}
		delete(b.pending, e.ClientOrderID)
		b.active[e.OrderID] = orderState{side: side, price: e.Price, remaining: e.Remaining}
		b.activeIDs = append(b.activeIDs, e.OrderID)

	case ledger.EventFill, ledger.EventPartialFill:
		st, ok := b.active[e.OrderID]
		if !ok {
			return
		}
		if st.side == book.Buy {
			b.position += e.Quantity
		} else {
			b.position -= e.Quantity
		}
		st.remaining = e.Remaining
		b.active[e.OrderID] = st
		if e.Final() {
			b.drop(e.OrderID)
		}

	case ledger.EventReject:
		delete(b.pending, e.ClientOrderID)
		b.drop(e.OrderID)

	case ledger.EventCancelAck:
		if st, ok := b.active[e.OrderID]; ok {
			st.remaining = e.Remaining
			b.active[e.OrderID] = st
		}
		if e.Final() {
			b.drop(e.OrderID)
		}
	}
}

func (b *base) drop(orderID string) {
	if _, ok := b.active[orderID]; !ok {
		return
	}
	delete(b.active, orderID)
	for i, id := range b.activeIDs {
		if id == orderID {
			b.activeIDs = append(b.activeIDs[:i], b.activeIDs[i+1:]...)
			break
		}
	}
}

func (b *base) OnIntentError(now time.Duration, in gateway.Intent, err error) {
	delete(b.pending, in.ClientOrderID)
}

// OnTrade tracks the public tape.
func (b *base) OnTrade(t book.Trade) {
	b.last = t.Price
}
