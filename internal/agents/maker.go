package agents

import (
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
)

// Maker keeps a two-sided quote centered on the last traded price. Each
// turn it pulls its stale quotes and re-quotes at the configured spread,
// skewing away from its inventory.
type Maker struct {
	base
	qty    int64
	spread int64
}

func NewMaker(cfg Config) *Maker {
	spread := cfg.Spread
	if spread <= 0 {
		spread = 2 * cfg.TickSize
	}
	return &Maker{base: newBase(cfg), qty: cfg.Quantity, spread: spread}
}

func (m *Maker) OnWake(now time.Duration) ([]gateway.Intent, time.Duration) {
	var intents []gateway.Intent

	for _, id := range m.activeIDs {
		intents = append(intents, m.cancel(id))
	}

	// Skew the center one tick against inventory so fills mean-revert the
	// position.
	center := m.last
	if m.position > 0 {
		center -= m.tick
	} else if m.position < 0 {
		center += m.tick
	}

	half := m.spread / 2
	if half < m.tick {
		half = m.tick
	}
	bid := center - half
	ask := center + half

	if bid >= m.tick {
		intents = append(intents, m.limit(book.Buy, bid, m.qty))
	}
	intents = append(intents, m.limit(book.Sell, ask, m.qty))

	return intents, m.interval
}
