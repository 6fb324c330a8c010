package agents

import (
	"time"

	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
)

// Momentum watches the tape for consecutive moves in the same direction
// and takes liquidity with market orders in that direction, capped by a
// position limit.
type Momentum struct {
	base
	qty    int64
	maxPos int64

	prev  int64
	trend int // positive = upticks, negative = downticks
}

func NewMomentum(cfg Config) *Momentum {
	maxPos := cfg.MaxPosition
	if maxPos <= 0 {
		maxPos = 10 * cfg.Quantity
	}
	return &Momentum{base: newBase(cfg), qty: cfg.Quantity, maxPos: maxPos}
}

func (m *Momentum) OnTrade(t book.Trade) {
	if m.prev != 0 {
		switch {
		case t.Price > m.prev:
			if m.trend < 0 {
				m.trend = 0
			}
			m.trend++
		case t.Price < m.prev:
			if m.trend > 0 {
				m.trend = 0
			}
			m.trend--
		}
	}
	m.prev = t.Price
	m.base.OnTrade(t)
}

func (m *Momentum) OnWake(now time.Duration) ([]gateway.Intent, time.Duration) {
	const signal = 3 // ticks in a row before acting

	switch {
	case m.trend >= signal && m.position+m.qty <= m.maxPos:
		m.trend = 0
		return []gateway.Intent{m.market(book.Buy, m.qty)}, m.interval
	case m.trend <= -signal && m.position-m.qty >= -m.maxPos:
		m.trend = 0
		return []gateway.Intent{m.market(book.Sell, m.qty)}, m.interval
	}
	return nil, m.interval
}
