// Package engine applies arrival events to the order book. It is the only
// writer of book state; every event is applied atomically and recorded in
// the ledger before the next event is dispatched.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

const (
	reasonOpenOrderLimit = "capacity exceeded: open order limit"
	reasonBookDepthLimit = "capacity exceeded: book depth limit"
	reasonSelfMatch      = "self-match prevention"
	reasonNoLiquidity    = "market order residual cancelled"
	reasonOrderNotFound  = "order not found"
)

// Stats are the engine's running counters, in the spirit of a venue's
// session statistics.
type Stats struct {
	OrdersProcessed uint64            `json:"orders_processed"`
	OrdersRejected  uint64            `json:"orders_rejected"`
	OrdersCancelled uint64            `json:"orders_cancelled"`
	CancelsRejected uint64            `json:"cancels_rejected"`
	Trades          uint64            `json:"trades"`
	Volume          int64             `json:"volume"`
	FillsByAgent    map[string]uint64 `json:"fills_by_agent"`
}

// Engine is the matching core for a single instrument.
type Engine struct {
	book *book.OrderBook
	led  *ledger.Ledger
	ids  *book.IDSource
	cfg  Config
	log  *zap.Logger

	open  map[string]int // resting orders per agent
	stats Stats
}

func New(b *book.OrderBook, led *ledger.Ledger, ids *book.IDSource, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		book: b,
		led:  led,
		ids:  ids,
		cfg:  cfg,
		log:  log,
		open: make(map[string]int),
		stats: Stats{
			FillsByAgent: make(map[string]uint64),
		},
	}
}

// Book exposes the engine-owned book for snapshotting between events.
// Callers must only touch it from the scheduler's dispatch cycle.
func (e *Engine) Book() *book.OrderBook {
	return e.book
}

// Stats returns a copy of the running counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.FillsByAgent = make(map[string]uint64, len(e.stats.FillsByAgent))
	for k, v := range e.stats.FillsByAgent {
		s.FillsByAgent[k] = v
	}
	return s
}

// ProcessOrder applies one order arrival. It returns the ledger entries
// and trades the event produced. A non-nil error wraps book.ErrIntegrity
// and must halt the run.
func (e *Engine) ProcessOrder(o *book.Order, now time.Duration) ([]ledger.Entry, []book.Trade, error) {
	e.stats.OrdersProcessed++

	if e.cfg.MaxOpenOrders > 0 && o.Type == book.Limit && e.open[o.AgentID] >= e.cfg.MaxOpenOrders {
		o.Status = book.StatusRejected
		e.stats.OrdersRejected++
		entry := e.append(ledger.Entry{
			Time: now, Type: ledger.EventReject,
			OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
			Quantity: o.Quantity, Remaining: 0, Reason: reasonOpenOrderLimit,
		})
		return []ledger.Entry{entry}, nil, e.check()
	}

	ack := e.append(ledger.Entry{
		Time: now, Type: ledger.EventAck,
		OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
		Price: o.Price, Quantity: o.Quantity, Remaining: o.Quantity,
	})
	o.Seq = ack.Seq
	entries := []ledger.Entry{ack}

	var trades []book.Trade
	var lastPrice int64
	selfMatch := false

	for o.Remaining() > 0 {
		resting := e.book.PeekBest(o.Side.Opposite())
		if resting == nil {
			break
		}
		if o.Type == book.Limit && !crosses(o.Side, o.Price, resting.Price) {
			break
		}
		if resting.AgentID == o.AgentID && e.cfg.SelfMatch == SelfMatchCancelAggressor {
			selfMatch = true
			break
		}

		qty := min(o.Remaining(), resting.Remaining())
		price := resting.Price // price improvement favors the resting side
		e.book.Fill(resting, qty)
		o.Filled += qty
		lastPrice = price

		if resting.IsFilled() {
			resting.Status = book.StatusFilled
			e.open[resting.AgentID]--
		} else {
			resting.Status = book.StatusPartiallyFilled
		}

		trade := e.recordTrade(o, resting, price, qty, now)
		trades = append(trades, trade)

		entries = append(entries,
			e.fillEntry(resting, trade, qty, now),
			e.fillEntry(o, trade, qty, now),
		)
	}

	switch {
	case selfMatch:
		remainder := o.Remaining()
		o.Status = book.StatusCancelled
		e.stats.OrdersCancelled++
		entries = append(entries, e.append(ledger.Entry{
			Time: now, Type: ledger.EventReject,
			OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
			Quantity: remainder, Remaining: 0, Reason: reasonSelfMatch,
		}))

	case o.IsFilled():
		o.Status = book.StatusFilled

	case o.Type == book.Limit:
		if e.cfg.MaxDepth > 0 && e.book.Depth(o.Side) >= e.cfg.MaxDepth && !e.book.HasLevel(o.Side, o.Price) {
			entries = append(entries, e.rejectRemainder(o, now, reasonBookDepthLimit))
		} else {
			e.rest(o)
		}

	default: // market order with an unfilled remainder
		if e.cfg.MarketResidual == ResidualRest && o.Filled > 0 {
			o.Type = book.Limit
			o.Price = lastPrice
			e.rest(o)
		} else {
			remainder := o.Remaining()
			o.Status = book.StatusCancelled
			e.stats.OrdersCancelled++
			entries = append(entries, e.append(ledger.Entry{
				Time: now, Type: ledger.EventReject,
				OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
				Quantity: remainder, Remaining: 0, Reason: reasonNoLiquidity,
			}))
		}
	}

	return entries, trades, e.check()
}

// ProcessCancel applies one cancel arrival. qty == 0 cancels the full
// remaining quantity; a positive qty below the remainder cancels only
// that much and keeps the order's queue position.
func (e *Engine) ProcessCancel(agentID, targetID string, qty int64, now time.Duration) ([]ledger.Entry, error) {
	order, ok := e.book.Order(targetID)
	if !ok || order.Status.Terminal() || order.AgentID != agentID {
		e.stats.CancelsRejected++
		entry := e.append(ledger.Entry{
			Time: now, Type: ledger.EventCancelReject,
			OrderID: targetID, AgentID: agentID, Reason: reasonOrderNotFound,
		})
		return []ledger.Entry{entry}, e.check()
	}

	if qty > 0 && qty < order.Remaining() {
		if _, err := e.book.Reduce(targetID, qty); err != nil {
			return nil, fmt.Errorf("reduce %s: %w", targetID, err)
		}
		entry := e.append(ledger.Entry{
			Time: now, Type: ledger.EventCancelAck,
			OrderID: order.ID, AgentID: order.AgentID, ClientOrderID: order.ClientOrderID,
			Price: order.Price, Quantity: qty, Remaining: order.Remaining(),
		})
		return []ledger.Entry{entry}, e.check()
	}

	removed, err := e.book.Remove(targetID)
	if err != nil {
		return nil, fmt.Errorf("remove %s: %w", targetID, err)
	}
	remainder := removed.Remaining()
	removed.Status = book.StatusCancelled
	e.open[removed.AgentID]--
	e.stats.OrdersCancelled++

	entry := e.append(ledger.Entry{
		Time: now, Type: ledger.EventCancelAck,
		OrderID: removed.ID, AgentID: removed.AgentID, ClientOrderID: removed.ClientOrderID,
		Price: removed.Price, Quantity: remainder, Remaining: 0,
	})
	return []ledger.Entry{entry}, e.check()
}

func (e *Engine) rest(o *book.Order) {
	if o.Filled > 0 {
		o.Status = book.StatusPartiallyFilled
	} else {
		o.Status = book.StatusResting
	}
	e.book.Rest(o)
	e.open[o.AgentID]++
}

func (e *Engine) rejectRemainder(o *book.Order, now time.Duration, reason string) ledger.Entry {
	remainder := o.Remaining()
	if o.Filled > 0 {
		o.Status = book.StatusCancelled
		e.stats.OrdersCancelled++
	} else {
		o.Status = book.StatusRejected
		e.stats.OrdersRejected++
	}
	return e.append(ledger.Entry{
		Time: now, Type: ledger.EventReject,
		OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
		Quantity: remainder, Remaining: 0, Reason: reason,
	})
}

func (e *Engine) recordTrade(incoming, resting *book.Order, price, qty int64, now time.Duration) book.Trade {
	buy, sell := incoming, resting
	if incoming.Side == book.Sell {
		buy, sell = resting, incoming
	}
	trade := e.led.RecordTrade(book.Trade{
		ID:          e.ids.Next(),
		Symbol:      e.book.Symbol,
		Price:       price,
		Quantity:    qty,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.AgentID,
		SellerID:    sell.AgentID,
		Time:        now,
	})

	e.stats.Trades++
	e.stats.Volume += qty
	e.stats.FillsByAgent[buy.AgentID]++
	e.stats.FillsByAgent[sell.AgentID]++

	e.log.Debug("trade",
		zap.Uint64("seq", trade.Seq),
		zap.Int64("price", price),
		zap.Int64("qty", qty),
		zap.String("buyer", buy.AgentID),
		zap.String("seller", sell.AgentID),
	)
	return trade
}

func (e *Engine) fillEntry(o *book.Order, trade book.Trade, qty int64, now time.Duration) ledger.Entry {
	typ := ledger.EventPartialFill
	if o.IsFilled() {
		typ = ledger.EventFill
	}
	return e.append(ledger.Entry{
		Time: now, Type: typ,
		OrderID: o.ID, AgentID: o.AgentID, ClientOrderID: o.ClientOrderID,
		Price: trade.Price, Quantity: qty, Remaining: o.Remaining(),
		TradeID: trade.ID,
	})
}

func (e *Engine) append(entry ledger.Entry) ledger.Entry {
	return e.led.Append(entry)
}

// check verifies book integrity after a fully applied event. Violations
// are fatal: the scheduler halts the run with the ledger preserved.
func (e *Engine) check() error {
	if err := e.book.CheckIntegrity(); err != nil {
		e.log.Error("book integrity violation", zap.Error(err))
		return err
	}
	return nil
}

func crosses(side book.Side, limit, resting int64) bool {
	if side == book.Buy {
		return limit >= resting
	}
	return limit <= resting
}
