package sim

import (
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
)

// Agent is a pull-based strategy participant. The scheduler calls it at
// its requested wake times and whenever the ledger records events for its
// orders; the agent responds with intents. Agents never touch the book.
type Agent interface {
	ID() string

	// OnWake is the agent's turn. It returns the intents to submit now and
	// the delay until its next wake; a non-positive delay stops the wakes.
	OnWake(now time.Duration) ([]gateway.Intent, time.Duration)

	// OnFeedback delivers ledger entries for the agent's own orders, in
	// sequence order, after the event that produced them is fully applied.
	OnFeedback(now time.Duration, entries []ledger.Entry) []gateway.Intent

	// OnIntentError reports a synchronous gateway rejection of one of the
	// agent's intents. The intent never entered the event stream.
	OnIntentError(now time.Duration, in gateway.Intent, err error)
}

// TradeObserver is implemented by agents that also watch the public tape.
type TradeObserver interface {
	OnTrade(t book.Trade)
}
