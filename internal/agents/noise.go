package agents

import (
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
)

// Noise submits random limit orders around the last traded price and
// occasionally cancels one of its resting orders. It supplies background
// flow and keeps the book populated.
type Noise struct {
	base
	qty int64
}

func NewNoise(cfg Config) *Noise {
	return &Noise{base: newBase(cfg), qty: cfg.Quantity}
}

func (n *Noise) OnWake(now time.Duration) ([]gateway.Intent, time.Duration) {
	var intents []gateway.Intent

	// One in five turns cancels the oldest resting order instead of
	// quoting.
	if len(n.activeIDs) > 0 && n.rng.Intn(5) == 0 {
		intents = append(intents, n.cancel(n.activeIDs[0]))
		return intents, n.interval
	}

	side := book.Buy
	if n.rng.Intn(2) == 1 {
		side = book.Sell
	}

	// Price within +-5 ticks of the reference, shaded away from the touch
	// so noise orders mostly rest.
	offset := int64(n.rng.Intn(5)+1) * n.tick
	price := n.last - offset
	if side == book.Sell {
		price = n.last + offset
	}

	qty := n.qty * int64(n.rng.Intn(3)+1)
	intents = append(intents, n.limit(side, price, qty))
	return intents, n.interval
}
