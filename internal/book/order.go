package book

import (
	"time"
)

// Side of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType int8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Limit {
		return "limit"
	}
	return "market"
}

// OrderStatus tracks an order through its lifecycle.
type OrderStatus int8

const (
	StatusPending OrderStatus = iota
	StatusResting
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (st OrderStatus) String() string {
	switch st {
	case StatusPending:
		return "pending"
	case StatusResting:
		return "resting"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// Terminal reports whether the order can no longer trade or be cancelled.
func (st OrderStatus) Terminal() bool {
	return st == StatusFilled || st == StatusCancelled || st == StatusRejected
}

// Instrument describes a tradeable contract. Immutable after creation.
type Instrument struct {
	Symbol   string `json:"symbol"`
	TickSize int64  `json:"tick_size"` // minimum price increment, in cents
	LotSize  int64  `json:"lot_size"`  // minimum quantity increment
}

// Order is a single order in the simulation. Prices are int64 cents to
// avoid float issues. Once the book accepts an order it is owned by the
// book and mutated only through the matching engine.
type Order struct {
	ID            string      `json:"id"`
	AgentID       string      `json:"agent_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Price         int64       `json:"price"` // zero for market orders
	Quantity      int64       `json:"quantity"`
	Filled        int64       `json:"filled"`
	Status        OrderStatus `json:"status"`

	// SubmitTime is the agent's decision time; ArrivalTime is the submit
	// time plus the sampled network delay. Both are sim time, measured
	// from the start of the run.
	SubmitTime  time.Duration `json:"submit_time"`
	ArrivalTime time.Duration `json:"arrival_time"`

	// Seq is the arrival sequence assigned when the engine processes the
	// order, not when the agent submitted it.
	Seq uint64 `json:"seq"`
}

func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

func (o *Order) IsFilled() bool {
	return o.Filled >= o.Quantity
}

// Trade is an executed match between two orders. Immutable once created.
// The trade executes at the resting order's price.
type Trade struct {
	ID          string        `json:"id"`
	Symbol      string        `json:"symbol"`
	Price       int64         `json:"price"`
	Quantity    int64         `json:"quantity"`
	BuyOrderID  string        `json:"buy_order_id"`
	SellOrderID string        `json:"sell_order_id"`
	BuyerID     string        `json:"buyer_id"`
	SellerID    string        `json:"seller_id"`
	Seq         uint64        `json:"seq"`
	Time        time.Duration `json:"time"`
}
