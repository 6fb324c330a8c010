package book

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned for cancels or lookups that reference an
	// unknown or already terminal order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrIntegrity signals a corrupted book: a crossed book that persists
	// after an event, or a price level whose cached quantity disagrees with
	// its members. It indicates an engine bug and must halt the run.
	ErrIntegrity = errors.New("order book integrity violation")
)

// PriceLevel holds the FIFO queue of resting orders at a single price.
// Quantity caches the sum of member orders' remaining quantities and must
// equal that sum at all times.
type PriceLevel struct {
	Price    int64
	Orders   []*Order
	Quantity int64
}

// OrderBook is the per-instrument bid/ask ladder. It is exclusively owned
// by the matching engine: all mutation happens inside the scheduler's
// single-threaded dispatch cycle, so the book carries no locks. External
// consumers observe the ledger, never the book.
type OrderBook struct {
	Symbol string

	bids   []*PriceLevel // sorted descending by price (best bid first)
	asks   []*PriceLevel // sorted ascending by price (best ask first)
	orders map[string]*Order
}

func New(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   make([]*PriceLevel, 0),
		asks:   make([]*PriceLevel, 0),
		orders: make(map[string]*Order),
	}
}

// Rest places an order (or its unfilled remainder) at the tail of the
// queue at its limit price, creating the level if needed.
func (ob *OrderBook) Rest(order *Order) {
	ob.orders[order.ID] = order

	if order.Side == Buy {
		ob.bids = insertOrder(ob.bids, order, func(level, limit int64) bool { return level < limit })
	} else {
		ob.asks = insertOrder(ob.asks, order, func(level, limit int64) bool { return level > limit })
	}
}

// insertOrder appends the order to its price level, inserting a new level
// at the first position where worse reports the existing level ranks
// behind the order's price.
func insertOrder(levels []*PriceLevel, order *Order, worse func(level, limit int64) bool) []*PriceLevel {
	for i, level := range levels {
		if level.Price == order.Price {
			level.Orders = append(level.Orders, order)
			level.Quantity += order.Remaining()
			return levels
		}
		if worse(level.Price, order.Price) {
			newLevel := &PriceLevel{Price: order.Price, Orders: []*Order{order}, Quantity: order.Remaining()}
			return append(levels[:i], append([]*PriceLevel{newLevel}, levels[i:]...)...)
		}
	}
	return append(levels, &PriceLevel{Price: order.Price, Orders: []*Order{order}, Quantity: order.Remaining()})
}

// PeekBest returns the oldest resting order at the best price on the given
// side, or nil if that side is empty.
func (ob *OrderBook) PeekBest(side Side) *Order {
	levels := ob.levels(side)
	if len(levels) == 0 {
		return nil
	}
	return levels[0].Orders[0]
}

// Fill decrements a resting order by qty. The caller guarantees the order
// is the head of the best level on its side and qty <= Remaining(). Fully
// filled orders are dequeued and empty levels pruned immediately.
func (ob *OrderBook) Fill(resting *Order, qty int64) {
	resting.Filled += qty

	levels := ob.levels(resting.Side)
	level := levels[0]
	level.Quantity -= qty

	if resting.IsFilled() {
		level.Orders = level.Orders[1:]
		delete(ob.orders, resting.ID)
		if len(level.Orders) == 0 {
			ob.setLevels(resting.Side, levels[1:])
		}
	}
}

// Remove takes an order out of the book entirely (full cancel).
func (ob *OrderBook) Remove(orderID string) (*Order, error) {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	delete(ob.orders, orderID)

	levels := ob.levels(order.Side)
	for i, level := range levels {
		if level.Price != order.Price {
			continue
		}
		for j, o := range level.Orders {
			if o.ID == order.ID {
				level.Orders = append(level.Orders[:j], level.Orders[j+1:]...)
				level.Quantity -= o.Remaining()
				break
			}
		}
		if len(level.Orders) == 0 {
			ob.setLevels(order.Side, append(levels[:i], levels[i+1:]...))
		}
		break
	}
	return order, nil
}

// Reduce shrinks a resting order's open quantity by qty without touching
// its queue position (partial cancel). qty must be positive and smaller
// than the remaining quantity; use Remove for a full cancel.
func (ob *OrderBook) Reduce(orderID string, qty int64) (*Order, error) {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if qty <= 0 || qty >= order.Remaining() {
		return nil, fmt.Errorf("reduce quantity %d out of range for order %s", qty, orderID)
	}

	order.Quantity -= qty
	for _, level := range ob.levels(order.Side) {
		if level.Price == order.Price {
			level.Quantity -= qty
			break
		}
	}
	return order, nil
}

// Order returns a resting order by ID.
func (ob *OrderBook) Order(orderID string) (*Order, bool) {
	order, exists := ob.orders[orderID]
	return order, exists
}

// OrdersByAgent returns all resting orders belonging to an agent.
func (ob *OrderBook) OrdersByAgent(agentID string) []*Order {
	var result []*Order
	for _, levels := range [][]*PriceLevel{ob.bids, ob.asks} {
		for _, level := range levels {
			for _, o := range level.Orders {
				if o.AgentID == agentID {
					result = append(result, o)
				}
			}
		}
	}
	return result
}

// BestBid returns the highest bid price; ok is false if there are no bids.
func (ob *OrderBook) BestBid() (int64, bool) {
	if len(ob.bids) == 0 {
		return 0, false
	}
	return ob.bids[0].Price, true
}

// BestAsk returns the lowest ask price; ok is false if there are no asks.
func (ob *OrderBook) BestAsk() (int64, bool) {
	if len(ob.asks) == 0 {
		return 0, false
	}
	return ob.asks[0].Price, true
}

// HasLevel reports whether a price level already exists on one side.
func (ob *OrderBook) HasLevel(side Side, price int64) bool {
	for _, level := range ob.levels(side) {
		if level.Price == price {
			return true
		}
	}
	return false
}

// Depth returns the number of price levels on one side.
func (ob *OrderBook) Depth(side Side) int {
	return len(ob.levels(side))
}

func (ob *OrderBook) levels(side Side) []*PriceLevel {
	if side == Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) setLevels(side Side, levels []*PriceLevel) {
	if side == Buy {
		ob.bids = levels
	} else {
		ob.asks = levels
	}
}

// CheckIntegrity verifies the two core invariants after an event has been
// fully applied: no persisted crossed book, and every level's cached
// quantity equals the sum of its members' remaining quantities. A non-nil
// error wraps ErrIntegrity and is fatal to the run.
func (ob *OrderBook) CheckIntegrity() error {
	if len(ob.bids) > 0 && len(ob.asks) > 0 && ob.bids[0].Price >= ob.asks[0].Price {
		return fmt.Errorf("%w: crossed book, best bid %d >= best ask %d",
			ErrIntegrity, ob.bids[0].Price, ob.asks[0].Price)
	}
	for _, levels := range [][]*PriceLevel{ob.bids, ob.asks} {
		for _, level := range levels {
			if len(level.Orders) == 0 {
				return fmt.Errorf("%w: empty level at price %d not pruned", ErrIntegrity, level.Price)
			}
			var sum int64
			for _, o := range level.Orders {
				sum += o.Remaining()
			}
			if sum != level.Quantity {
				return fmt.Errorf("%w: level %d aggregate %d != member sum %d",
					ErrIntegrity, level.Price, level.Quantity, sum)
			}
		}
	}
	return nil
}

// BookSnapshot is a read-only view of aggregate depth.
type BookSnapshot struct {
	Symbol string          `json:"symbol"`
	Bids   []LevelSnapshot `json:"bids"`
	Asks   []LevelSnapshot `json:"asks"`
}

type LevelSnapshot struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

func (ob *OrderBook) Snapshot() BookSnapshot {
	snap := BookSnapshot{
		Symbol: ob.Symbol,
		Bids:   make([]LevelSnapshot, len(ob.bids)),
		Asks:   make([]LevelSnapshot, len(ob.asks)),
	}
	for i, level := range ob.bids {
		snap.Bids[i] = LevelSnapshot{Price: level.Price, Quantity: level.Quantity, Orders: len(level.Orders)}
	}
	for i, level := range ob.asks {
		snap.Asks[i] = LevelSnapshot{Price: level.Price, Quantity: level.Quantity, Orders: len(level.Orders)}
	}
	return snap
}
