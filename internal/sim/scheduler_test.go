package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/engine"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
	"github.com/Rhea-Shah23/HFT-Arena/internal/latency"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

type stack struct {
	sched *Scheduler
	eng   *engine.Engine
	led   *ledger.Ledger
}

func newStack(t *testing.T, params Params) *stack {
	t.Helper()
	model := latency.NewModel(params.Seed)
	ids := book.NewIDSource(params.Seed)
	gw := gateway.New(book.Instrument{Symbol: "SIM", TickSize: 1, LotSize: 1}, model, ids)
	led := ledger.New()
	eng := engine.New(book.New("SIM"), led, ids, engine.DefaultConfig(), zap.NewNop())
	return &stack{
		sched: New(gw, eng, led, params, zap.NewNop()),
		eng:   eng,
		led:   led,
	}
}

// scriptedAgent plays a fixed sequence of turns, one per wake.
type scriptedAgent struct {
	id    string
	turns [][]gateway.Intent
	every time.Duration
	step  int

	got  []ledger.Entry
	tape []book.Trade
	errs []error
}

func (a *scriptedAgent) ID() string { return a.id }

func (a *scriptedAgent) OnWake(now time.Duration) ([]gateway.Intent, time.Duration) {
	if a.step >= len(a.turns) {
		return nil, 0
	}
	intents := a.turns[a.step]
	a.step++
	if a.step >= len(a.turns) {
		return intents, 0
	}
	return intents, a.every
}

func (a *scriptedAgent) OnFeedback(now time.Duration, entries []ledger.Entry) []gateway.Intent {
	a.got = append(a.got, entries...)
	return nil
}

func (a *scriptedAgent) OnIntentError(now time.Duration, in gateway.Intent, err error) {
	a.errs = append(a.errs, err)
}

func (a *scriptedAgent) OnTrade(t book.Trade) { a.tape = append(a.tape, t) }

// tickerAgent wakes forever and never trades.
type tickerAgent struct {
	id    string
	every time.Duration
}

func (a *tickerAgent) ID() string { return a.id }
func (a *tickerAgent) OnWake(now time.Duration) ([]gateway.Intent, time.Duration) {
	return nil, a.every
}
func (a *tickerAgent) OnFeedback(time.Duration, []ledger.Entry) []gateway.Intent { return nil }
func (a *tickerAgent) OnIntentError(time.Duration, gateway.Intent, error)        {}

func sell(agent string, price, qty int64) gateway.Intent {
	return gateway.Intent{AgentID: agent, Action: gateway.SubmitLimit, Side: book.Sell, Price: price, Quantity: qty}
}

func buy(agent string, price, qty int64) gateway.Intent {
	return gateway.Intent{AgentID: agent, Action: gateway.SubmitLimit, Side: book.Buy, Price: price, Quantity: qty}
}

func TestRunMatchesCrossingOrders(t *testing.T) {
	st := newStack(t, Params{Seed: 1})

	maker := &scriptedAgent{id: "maker", turns: [][]gateway.Intent{{sell("maker", 100, 10)}}}
	taker := &scriptedAgent{id: "taker", every: time.Millisecond, turns: [][]gateway.Intent{
		nil, // let the maker's order arrive first
		{buy("taker", 100, 10)},
	}}
	st.sched.AddAgent(maker)
	st.sched.AddAgent(taker)

	res, err := st.sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Trades)

	// Both sides saw their ack and fill.
	require.Len(t, maker.got, 2)
	assert.Equal(t, ledger.EventAck, maker.got[0].Type)
	assert.Equal(t, ledger.EventFill, maker.got[1].Type)
	require.Len(t, taker.got, 2)
	assert.Equal(t, ledger.EventFill, taker.got[1].Type)

	// The tape reached every observer.
	require.Len(t, maker.tape, 1)
	require.Len(t, taker.tape, 1)
	assert.Equal(t, maker.tape[0].ID, taker.tape[0].ID)
}

func TestClockNeverMovesBackwards(t *testing.T) {
	st := newStack(t, Params{Seed: 3})
	st.sched.AddAgent(&scriptedAgent{id: "a1", every: time.Millisecond, turns: [][]gateway.Intent{
		{sell("a1", 105, 5)},
		{sell("a1", 104, 5)},
		{buy("a1", 90, 5)},
	}})

	var stamps []time.Duration
	st.sched.OnStep(func(now time.Duration) { stamps = append(stamps, now) })

	_, err := st.sched.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, stamps)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i], stamps[i-1])
	}
}

func TestDeterministicReplay(t *testing.T) {
	run := func() *ledger.Ledger {
		st := newStack(t, Params{Seed: 99})
		st.sched.AddAgent(&scriptedAgent{id: "maker", every: time.Millisecond, turns: [][]gateway.Intent{
			{sell("maker", 101, 10), buy("maker", 99, 10)},
			{sell("maker", 102, 10)},
			{buy("maker", 98, 10)},
		}})
		st.sched.AddAgent(&scriptedAgent{id: "taker", every: 2 * time.Millisecond, turns: [][]gateway.Intent{
			nil,
			{buy("taker", 101, 5)},
			{buy("taker", 102, 15)},
		}})
		_, err := st.sched.Run(context.Background())
		require.NoError(t, err)
		return st.led
	}

	first := run()
	second := run()

	assert.Equal(t, first.Entries(), second.Entries())
	assert.Equal(t, first.Trades(), second.Trades())
}

func TestEventBudget(t *testing.T) {
	st := newStack(t, Params{Seed: 5, MaxEvents: 10})
	st.sched.AddAgent(&tickerAgent{id: "tick", every: time.Millisecond})

	res, err := st.sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Events)
}

func TestTimeBudget(t *testing.T) {
	st := newStack(t, Params{Seed: 5, MaxTime: 5 * time.Millisecond})
	st.sched.AddAgent(&tickerAgent{id: "tick", every: time.Millisecond})

	res, err := st.sched.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, res.EndTime, 5*time.Millisecond)
	assert.NotZero(t, res.Events)
}

func TestValidationErrorStaysLocal(t *testing.T) {
	st := newStack(t, Params{Seed: 7})
	bad := &scriptedAgent{id: "bad", turns: [][]gateway.Intent{
		{sell("bad", -1, 10)}, // invalid price, rejected at the gateway
	}}
	st.sched.AddAgent(bad)

	_, err := st.sched.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, bad.errs, 1)
	assert.ErrorIs(t, bad.errs[0], gateway.ErrValidation)
	assert.Zero(t, st.led.Len())
}

func TestHaltPreservesTrace(t *testing.T) {
	st := newStack(t, Params{Seed: 11})

	// Seed a resting order directly, then corrupt its level aggregate so
	// the first dispatched arrival trips the integrity check.
	resting := &book.Order{ID: "x1", AgentID: "ghost", Symbol: "SIM", Side: book.Sell, Price: 200, Quantity: 10, Type: book.Limit}
	_, _, err := st.eng.ProcessOrder(resting, 0)
	require.NoError(t, err)
	resting.Filled = 3

	st.sched.AddAgent(&scriptedAgent{id: "a1", turns: [][]gateway.Intent{
		{buy("a1", 100, 5), buy("a1", 99, 5)},
	}})

	_, err = st.sched.Run(context.Background())
	require.ErrorIs(t, err, book.ErrIntegrity)

	// The second arrival never ran and is visible in the trace; the ledger
	// keeps everything appended before the halt.
	trace := st.sched.PendingTrace()
	require.Len(t, trace, 1)
	assert.Equal(t, "order", trace[0].Kind)
	assert.Equal(t, "a1", trace[0].AgentID)
	assert.NotZero(t, st.led.Len())
}

func TestContextCancelStopsRun(t *testing.T) {
	st := newStack(t, Params{Seed: 13})
	st.sched.AddAgent(&tickerAgent{id: "tick", every: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	st.sched.OnStep(func(time.Duration) { cancel() })

	res, err := st.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Events)
}
