// Package sim runs the discrete-event loop: a single logical clock, an
// event heap and one dispatch goroutine. Everything the matching core does
// happens inside Run, one event at a time.
package sim

import (
	"container/heap"
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/engine"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

// Params bound a run. Zero values mean unlimited; a run with no budgets
// ends when the event queue drains.
type Params struct {
	Seed      int64
	MaxEvents uint64
	MaxTime   time.Duration
}

// Result summarizes a finished run.
type Result struct {
	Events  uint64        `json:"events"`
	EndTime time.Duration `json:"end_time"`
	Trades  uint64        `json:"trades"`
}

// Scheduler owns the event heap and the logical clock. The clock only
// moves forward: it advances to each popped event's time and never beyond
// the next pending event.
type Scheduler struct {
	gw  *gateway.Gateway
	eng *engine.Engine
	led *ledger.Ledger
	log *zap.Logger

	agents    []Agent
	byID      map[string]Agent
	observers []TradeObserver

	queue  eventHeap
	clock  time.Duration
	subSeq uint64
	jitter *rand.Rand

	params Params
	events uint64
	onStep []func(now time.Duration)
}

func New(gw *gateway.Gateway, eng *engine.Engine, led *ledger.Ledger, params Params, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		gw:     gw,
		eng:    eng,
		led:    led,
		log:    log,
		byID:   make(map[string]Agent),
		jitter: rand.New(rand.NewSource(params.Seed ^ 0x5eed)),
		params: params,
	}
	heap.Init(&s.queue)
	// The gateway tracks order liveness off the ledger stream.
	led.OnEntry(gw.Observe)
	return s
}

// AddAgent registers an agent before the run starts. Registration order is
// the deterministic iteration order for turns and tape delivery.
func (s *Scheduler) AddAgent(a Agent) {
	s.agents = append(s.agents, a)
	s.byID[a.ID()] = a
	if obs, ok := a.(TradeObserver); ok {
		s.observers = append(s.observers, obs)
	}
}

// OnStep registers a callback invoked after every fully applied event,
// from the dispatch goroutine. Consumers use it to refresh cached views.
func (s *Scheduler) OnStep(fn func(now time.Duration)) {
	s.onStep = append(s.onStep, fn)
}

// Clock returns the current logical time.
func (s *Scheduler) Clock() time.Duration {
	return s.clock
}

// Submit validates an intent through the gateway and schedules its
// arrival. Validation failures go back to the submitting agent and are
// returned; they never enter the event stream.
func (s *Scheduler) Submit(in gateway.Intent) error {
	in.DecisionTime = s.clock
	req, err := s.gw.Submit(in)
	if err != nil {
		if a, ok := s.byID[in.AgentID]; ok {
			a.OnIntentError(s.clock, in, err)
		}
		return err
	}
	s.push(&event{Kind: eventArrival, Time: req.Arrival, Req: req})
	return nil
}

// Run drives the loop to completion. It returns the run summary and a
// non-nil error only for a fatal book integrity violation; the ledger and
// the pending-event trace stay intact for inspection either way.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	for _, a := range s.agents {
		s.push(&event{Kind: eventWake, Time: s.clock, Agent: a})
	}

	for s.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			s.log.Info("run cancelled", zap.Duration("clock", s.clock))
			break
		}
		if s.params.MaxEvents > 0 && s.events >= s.params.MaxEvents {
			s.log.Info("event budget reached", zap.Uint64("events", s.events))
			break
		}

		next := s.queue[0]
		if s.params.MaxTime > 0 && next.Time > s.params.MaxTime {
			s.log.Info("time budget reached", zap.Duration("clock", s.clock))
			break
		}

		ev := heap.Pop(&s.queue).(*event)
		if ev.Time > s.clock {
			s.clock = ev.Time
		}
		s.events++

		if err := s.dispatch(ev); err != nil {
			s.log.Error("run halted",
				zap.Error(err),
				zap.Duration("clock", s.clock),
				zap.Int("pending", s.queue.Len()),
			)
			return s.result(), err
		}

		for _, fn := range s.onStep {
			fn(s.clock)
		}
	}

	return s.result(), nil
}

func (s *Scheduler) dispatch(ev *event) error {
	switch ev.Kind {
	case eventWake:
		intents, delay := ev.Agent.OnWake(s.clock)
		s.submitAll(intents)
		if delay > 0 {
			s.push(&event{Kind: eventWake, Time: s.clock + delay, Agent: ev.Agent})
		}
		return nil

	case eventArrival:
		return s.arrive(ev.Req)
	}
	return nil
}

func (s *Scheduler) arrive(req *gateway.Request) error {
	var (
		entries []ledger.Entry
		trades  []book.Trade
		err     error
	)
	switch req.Kind {
	case gateway.RequestOrder:
		entries, trades, err = s.eng.ProcessOrder(req.Order, s.clock)
	case gateway.RequestCancel:
		entries, err = s.eng.ProcessCancel(req.AgentID, req.TargetID, req.Quantity, s.clock)
	}
	if err != nil && errors.Is(err, book.ErrIntegrity) {
		return err
	}
	if err != nil {
		// Stale cancels surface as cancel_reject entries, not errors; any
		// other engine error is unexpected.
		s.log.Warn("engine error", zap.Error(err))
		return nil
	}

	for _, t := range trades {
		for _, obs := range s.observers {
			obs.OnTrade(t)
		}
	}
	s.feedback(entries)
	return nil
}

// feedback routes each applied event's entries to the agents they belong
// to and schedules the follow-on intents those agents produce.
func (s *Scheduler) feedback(entries []ledger.Entry) {
	if len(entries) == 0 {
		return
	}

	byAgent := make(map[string][]ledger.Entry)
	var order []string
	for _, e := range entries {
		if _, seen := byAgent[e.AgentID]; !seen {
			order = append(order, e.AgentID)
		}
		byAgent[e.AgentID] = append(byAgent[e.AgentID], e)
	}

	for _, agentID := range order {
		a, ok := s.byID[agentID]
		if !ok {
			continue
		}
		s.submitAll(a.OnFeedback(s.clock, byAgent[agentID]))
	}
}

func (s *Scheduler) submitAll(intents []gateway.Intent) {
	for _, in := range intents {
		// Errors already went back to the agent via OnIntentError.
		_ = s.Submit(in)
	}
}

func (s *Scheduler) push(ev *event) {
	s.subSeq++
	ev.Seq = s.subSeq
	ev.Jitter = uint64(s.jitter.Int63())
	heap.Push(&s.queue, ev)
}

// PendingTrace returns the unprocessed events in dispatch order, for
// post-mortem inspection after a halted run.
func (s *Scheduler) PendingTrace() []TraceEvent {
	snapshot := make(eventHeap, len(s.queue))
	copy(snapshot, s.queue)
	heap.Init(&snapshot)

	trace := make([]TraceEvent, 0, len(snapshot))
	for snapshot.Len() > 0 {
		ev := heap.Pop(&snapshot).(*event)
		te := TraceEvent{Time: ev.Time, Seq: ev.Seq}
		switch ev.Kind {
		case eventWake:
			te.Kind = "wake"
			te.AgentID = ev.Agent.ID()
		case eventArrival:
			if ev.Req.Kind == gateway.RequestCancel {
				te.Kind = "cancel"
				te.AgentID = ev.Req.AgentID
				te.OrderID = ev.Req.TargetID
			} else {
				te.Kind = "order"
				te.AgentID = ev.Req.Order.AgentID
				te.OrderID = ev.Req.Order.ID
			}
		}
		trace = append(trace, te)
	}
	return trace
}

// TraceEvent is one pending event in a halted run's trace.
type TraceEvent struct {
	Time    time.Duration `json:"time"`
	Seq     uint64        `json:"seq"`
	Kind    string        `json:"kind"`
	AgentID string        `json:"agent_id"`
	OrderID string        `json:"order_id,omitempty"`
}

func (s *Scheduler) result() Result {
	return Result{
		Events:  s.events,
		EndTime: s.clock,
		Trades:  s.eng.Stats().Trades,
	}
}
