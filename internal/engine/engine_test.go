package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	return New(book.New("SIM"), ledger.New(), book.NewIDSource(7), cfg, zap.NewNop())
}

func limit(id, agent string, side book.Side, price, qty int64) *book.Order {
	return &book.Order{
		ID: id, AgentID: agent, Symbol: "SIM",
		Side: side, Type: book.Limit, Price: price, Quantity: qty,
		Status: book.StatusPending,
	}
}

func market(id, agent string, side book.Side, qty int64) *book.Order {
	return &book.Order{
		ID: id, AgentID: agent, Symbol: "SIM",
		Side: side, Type: book.Market, Quantity: qty,
		Status: book.StatusPending,
	}
}

func mustProcess(t *testing.T, e *Engine, o *book.Order, now time.Duration) ([]ledger.Entry, []book.Trade) {
	t.Helper()
	entries, trades, err := e.ProcessOrder(o, now)
	require.NoError(t, err)
	return entries, trades
}

func TestPriceTimePriority(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	first := limit("s1", "maker1", book.Sell, 10000, 50)
	second := limit("s2", "maker2", book.Sell, 10000, 50)
	mustProcess(t, e, first, 0)
	mustProcess(t, e, second, 0)

	// A market buy for 70 fills the older order completely and the newer
	// one partially.
	_, trades := mustProcess(t, e, market("b1", "taker", book.Buy, 70), time.Millisecond)

	require.Len(t, trades, 2)
	assert.Equal(t, "s1", trades[0].SellOrderID)
	assert.Equal(t, int64(50), trades[0].Quantity)
	assert.Equal(t, "s2", trades[1].SellOrderID)
	assert.Equal(t, int64(20), trades[1].Quantity)

	assert.Equal(t, book.StatusFilled, first.Status)
	assert.Equal(t, book.StatusPartiallyFilled, second.Status)
	assert.Equal(t, int64(30), second.Remaining())
}

func TestTradesAtRestingPrice(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	mustProcess(t, e, limit("s1", "maker", book.Sell, 10000, 10), 0)

	// An aggressive buy at 10100 executes at the resting 10000.
	_, trades := mustProcess(t, e, limit("b1", "taker", book.Buy, 10100, 10), 0)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10000), trades[0].Price)
}

func TestQuantityConservation(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	mustProcess(t, e, limit("s1", "maker", book.Sell, 10000, 30), 0)
	mustProcess(t, e, limit("s2", "maker", book.Sell, 10100, 30), 0)
	_, trades := mustProcess(t, e, limit("b1", "taker", book.Buy, 10100, 100), 0)

	var traded int64
	for _, tr := range trades {
		traded += tr.Quantity
	}
	assert.Equal(t, int64(60), traded)

	// The 40 that could not trade rests on the bid side.
	bid, ok := e.Book().BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10100), bid)
	snap := e.Book().Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(40), snap.Bids[0].Quantity)

	// traded + resting + cancelled == submitted, per order.
	taker, ok := e.Book().Order("b1")
	require.True(t, ok)
	assert.Equal(t, taker.Quantity, taker.Filled+taker.Remaining())
}

func TestMarketOrderEmptyBookRejected(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	o := market("m1", "taker", book.Buy, 10)
	entries, trades := mustProcess(t, e, o, 0)

	assert.Empty(t, trades)
	assert.Equal(t, book.StatusCancelled, o.Status)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EventAck, entries[0].Type)
	assert.Equal(t, ledger.EventReject, entries[1].Type)
	assert.Equal(t, int64(0), entries[1].Remaining)
}

func TestMarketResidualRests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MarketResidual = ResidualRest
	e := newEngine(t, cfg)

	mustProcess(t, e, limit("s1", "maker", book.Sell, 10000, 10), 0)
	o := market("m1", "taker", book.Buy, 25)
	_, trades := mustProcess(t, e, o, 0)

	require.Len(t, trades, 1)
	assert.Equal(t, book.StatusPartiallyFilled, o.Status)
	assert.Equal(t, book.Limit, o.Type)
	assert.Equal(t, int64(10000), o.Price) // last fill price
	bid, ok := e.Book().BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10000), bid)
}

func TestSelfMatchAllowed(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	mustProcess(t, e, limit("s1", "a1", book.Sell, 10000, 10), 0)
	_, trades := mustProcess(t, e, limit("b1", "a1", book.Buy, 10000, 10), 0)

	require.Len(t, trades, 1)
	assert.Equal(t, "a1", trades[0].BuyerID)
	assert.Equal(t, "a1", trades[0].SellerID)
}

func TestSelfMatchCancelAggressor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfMatch = SelfMatchCancelAggressor
	e := newEngine(t, cfg)

	resting := limit("s1", "a1", book.Sell, 10000, 10)
	mustProcess(t, e, resting, 0)

	incoming := limit("b1", "a1", book.Buy, 10000, 10)
	entries, trades := mustProcess(t, e, incoming, 0)

	assert.Empty(t, trades)
	assert.Equal(t, book.StatusCancelled, incoming.Status)
	assert.Equal(t, book.StatusResting, resting.Status)
	assert.Equal(t, ledger.EventReject, entries[len(entries)-1].Type)

	// The resting order is untouched and still tradeable by others.
	_, trades = mustProcess(t, e, limit("b2", "a2", book.Buy, 10000, 10), 0)
	require.Len(t, trades, 1)
}

func TestCancelFullAndIdempotence(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	o := limit("s1", "a1", book.Sell, 10000, 10)
	mustProcess(t, e, o, 0)

	entries, err := e.ProcessCancel("a1", "s1", 0, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventCancelAck, entries[0].Type)
	assert.Equal(t, int64(0), entries[0].Remaining)
	assert.Equal(t, book.StatusCancelled, o.Status)

	// A second cancel of the same order is rejected, not an error.
	entries, err = e.ProcessCancel("a1", "s1", 0, 2*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventCancelReject, entries[0].Type)
}

func TestCancelPartialKeepsQueuePosition(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	first := limit("s1", "a1", book.Sell, 10000, 50)
	second := limit("s2", "a2", book.Sell, 10000, 50)
	mustProcess(t, e, first, 0)
	mustProcess(t, e, second, 0)

	entries, err := e.ProcessCancel("a1", "s1", 30, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventCancelAck, entries[0].Type)
	assert.Equal(t, int64(30), entries[0].Quantity)
	assert.Equal(t, int64(20), entries[0].Remaining)

	// s1 still trades first.
	_, trades := mustProcess(t, e, market("b1", "taker", book.Buy, 20), 0)
	require.Len(t, trades, 1)
	assert.Equal(t, "s1", trades[0].SellOrderID)
}

func TestCancelWrongOwnerRejected(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	mustProcess(t, e, limit("s1", "a1", book.Sell, 10000, 10), 0)

	entries, err := e.ProcessCancel("a2", "s1", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventCancelReject, entries[0].Type)

	// The order is still live.
	_, ok := e.Book().Order("s1")
	assert.True(t, ok)
}

func TestMaxOpenOrdersRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenOrders = 2
	e := newEngine(t, cfg)

	mustProcess(t, e, limit("s1", "a1", book.Sell, 10000, 10), 0)
	mustProcess(t, e, limit("s2", "a1", book.Sell, 10100, 10), 0)

	third := limit("s3", "a1", book.Sell, 10200, 10)
	entries, _ := mustProcess(t, e, third, 0)

	assert.Equal(t, book.StatusRejected, third.Status)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventReject, entries[0].Type)

	// Cancelling one frees capacity.
	_, err := e.ProcessCancel("a1", "s1", 0, 0)
	require.NoError(t, err)
	again := limit("s4", "a1", book.Sell, 10200, 10)
	mustProcess(t, e, again, 0)
	assert.Equal(t, book.StatusResting, again.Status)
}

func TestMaxDepthRejectsNewLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	e := newEngine(t, cfg)

	mustProcess(t, e, limit("s1", "a1", book.Sell, 10000, 10), 0)
	mustProcess(t, e, limit("s2", "a1", book.Sell, 10100, 10), 0)

	// A third price level is rejected.
	o := limit("s3", "a1", book.Sell, 10200, 10)
	entries, _ := mustProcess(t, e, o, 0)
	assert.Equal(t, book.StatusRejected, o.Status)
	assert.Equal(t, ledger.EventReject, entries[len(entries)-1].Type)

	// Joining an existing level is fine.
	join := limit("s4", "a1", book.Sell, 10100, 10)
	mustProcess(t, e, join, 0)
	assert.Equal(t, book.StatusResting, join.Status)
}

func TestIntegrityViolationIsFatal(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	mustProcess(t, e, limit("s1", "a1", book.Sell, 10000, 10), 0)

	// Corrupt the level aggregate behind the engine's back.
	snap := e.Book().Snapshot()
	require.Len(t, snap.Asks, 1)
	e.Book().PeekBest(book.Sell).Filled = 3 // aggregate no longer matches

	_, _, err := e.ProcessOrder(limit("b1", "a2", book.Buy, 9000, 10), 0)
	require.ErrorIs(t, err, book.ErrIntegrity)
}

func TestLedgerCarriesFullLifecycle(t *testing.T) {
	led := ledger.New()
	e := New(book.New("SIM"), led, book.NewIDSource(7), DefaultConfig(), zap.NewNop())

	mustProcess(t, e, limit("s1", "maker", book.Sell, 10000, 10), 0)
	mustProcess(t, e, limit("b1", "taker", book.Buy, 10000, 10), 0)

	var types []ledger.EventType
	for _, en := range led.Entries() {
		types = append(types, en.Type)
	}
	assert.Equal(t, []ledger.EventType{
		ledger.EventAck,  // s1 accepted
		ledger.EventAck,  // b1 accepted
		ledger.EventFill, // maker side
		ledger.EventFill, // taker side
	}, types)

	// Sequence numbers are strictly increasing across entries and trades.
	entries := led.Entries()
	trades := led.Trades()
	require.Len(t, trades, 1)
	assert.Greater(t, trades[0].Seq, entries[1].Seq)
	assert.Greater(t, entries[2].Seq, trades[0].Seq)

	s := e.Stats()
	assert.Equal(t, uint64(2), s.OrdersProcessed)
	assert.Equal(t, uint64(1), s.Trades)
	assert.Equal(t, int64(10), s.Volume)
}
