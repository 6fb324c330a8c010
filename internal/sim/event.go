package sim

import (
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
)

type eventKind int8

const (
	eventArrival eventKind = iota
	eventWake
)

// event is one scheduled occurrence: an order or cancel arriving at the
// engine, or an agent's wake-up turn.
type event struct {
	Kind eventKind
	Time time.Duration

	// Seq is the submission sequence stamped at enqueue time; Jitter is a
	// seeded draw taken at the same moment. Together they give identical
	// arrival times a deterministic total order.
	Seq    uint64
	Jitter uint64

	Req   *gateway.Request // eventArrival
	Agent Agent            // eventWake
}

// eventHeap orders events by (time, submission sequence, jitter draw).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	if h[i].Seq != h[j].Seq {
		return h[i].Seq < h[j].Seq
	}
	return h[i].Jitter < h[j].Jitter
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
