// Package gateway validates agent intents and stamps them with effective
// arrival times. Invalid intents fail synchronously to the submitter and
// never enter the event stream.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/latency"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

// ErrValidation is the base error for malformed intents. It is local and
// non-fatal: reported only to the submitting agent.
var ErrValidation = errors.New("invalid intent")

// Action is what an agent wants done.
type Action int8

const (
	SubmitLimit Action = iota
	SubmitMarket
	Cancel
)

func (a Action) String() string {
	switch a {
	case SubmitLimit:
		return "submit_limit"
	case SubmitMarket:
		return "submit_market"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

// Intent is a raw order instruction from an agent, taken at decision time.
type Intent struct {
	AgentID       string
	Action        Action
	Side          book.Side
	Price         int64
	Quantity      int64
	ClientOrderID string
	TargetOrderID string // cancels only
	DecisionTime  time.Duration
}

// RequestKind discriminates the two scheduled arrival types.
type RequestKind int8

const (
	RequestOrder RequestKind = iota
	RequestCancel
)

// Request is a validated, latency-stamped intent ready for scheduling.
type Request struct {
	Kind    RequestKind
	Arrival time.Duration

	// RequestOrder
	Order *book.Order

	// RequestCancel
	AgentID  string
	TargetID string
	Quantity int64 // 0 cancels the full remaining quantity
}

// Gateway owns intent validation and arrival stamping for one instrument.
type Gateway struct {
	instrument book.Instrument
	model      *latency.Model
	ids        *book.IDSource

	// live tracks orders this gateway has admitted that it has not yet
	// seen terminate, keyed by order id. Used to validate cancels at
	// decision time; the engine remains the authority at arrival time.
	live map[string]string
}

func New(instrument book.Instrument, model *latency.Model, ids *book.IDSource) *Gateway {
	return &Gateway{
		instrument: instrument,
		model:      model,
		ids:        ids,
		live:       make(map[string]string),
	}
}

// Submit validates an intent and converts it into a schedulable request.
// The returned error wraps ErrValidation or book.ErrOrderNotFound and is
// for the submitting agent only.
func (g *Gateway) Submit(in Intent) (*Request, error) {
	switch in.Action {
	case SubmitLimit, SubmitMarket:
		return g.submitOrder(in)
	case Cancel:
		return g.submitCancel(in)
	}
	return nil, fmt.Errorf("%w: unknown action %d", ErrValidation, in.Action)
}

func (g *Gateway) submitOrder(in Intent) (*Request, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d must be positive", ErrValidation, in.Quantity)
	}
	if lot := g.instrument.LotSize; lot > 1 && in.Quantity%lot != 0 {
		return nil, fmt.Errorf("%w: quantity %d not aligned to lot size %d", ErrValidation, in.Quantity, lot)
	}

	typ := book.Market
	if in.Action == SubmitLimit {
		typ = book.Limit
		if in.Price <= 0 {
			return nil, fmt.Errorf("%w: limit price %d must be positive", ErrValidation, in.Price)
		}
		if tick := g.instrument.TickSize; tick > 1 && in.Price%tick != 0 {
			return nil, fmt.Errorf("%w: price %d not aligned to tick size %d", ErrValidation, in.Price, tick)
		}
	} else if in.Price != 0 {
		return nil, fmt.Errorf("%w: market orders carry no price", ErrValidation)
	}

	order := &book.Order{
		ID:            g.ids.Next(),
		AgentID:       in.AgentID,
		ClientOrderID: in.ClientOrderID,
		Symbol:        g.instrument.Symbol,
		Side:          in.Side,
		Type:          typ,
		Price:         in.Price,
		Quantity:      in.Quantity,
		Status:        book.StatusPending,
		SubmitTime:    in.DecisionTime,
		ArrivalTime:   g.model.Sample(in.AgentID, in.DecisionTime),
	}
	g.live[order.ID] = in.AgentID

	return &Request{Kind: RequestOrder, Arrival: order.ArrivalTime, Order: order}, nil
}

func (g *Gateway) submitCancel(in Intent) (*Request, error) {
	if in.TargetOrderID == "" {
		return nil, fmt.Errorf("%w: cancel requires a target order id", ErrValidation)
	}
	owner, ok := g.live[in.TargetOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", book.ErrOrderNotFound, in.TargetOrderID)
	}
	if owner != in.AgentID {
		return nil, fmt.Errorf("%w: order %s not owned by %s", book.ErrOrderNotFound, in.TargetOrderID, in.AgentID)
	}
	if in.Quantity < 0 {
		return nil, fmt.Errorf("%w: cancel quantity %d must not be negative", ErrValidation, in.Quantity)
	}

	return &Request{
		Kind:     RequestCancel,
		Arrival:  g.model.Sample(in.AgentID, in.DecisionTime),
		AgentID:  in.AgentID,
		TargetID: in.TargetOrderID,
		Quantity: in.Quantity,
	}, nil
}

// Observe updates the gateway's liveness view from a ledger entry. The
// scheduler feeds it every appended entry.
func (g *Gateway) Observe(e ledger.Entry) {
	if e.Final() {
		delete(g.live, e.OrderID)
	}
}

// LiveCount returns the number of orders the gateway believes are live.
func (g *Gateway) LiveCount() int {
	return len(g.live)
}
