// Package config loads and validates the TOML run configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values read as "5ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Get returns the stored duration.
func (d *Duration) Get() time.Duration {
	return d.Duration
}

// Config is the full run configuration.
type Config struct {
	Seed     int64  `toml:"seed"`
	Symbol   string `toml:"symbol"`
	TickSize int64  `toml:"tick_size"`
	LotSize  int64  `toml:"lot_size"`

	MaxEvents uint64   `toml:"max_events"`
	MaxTime   Duration `toml:"max_time"`

	SelfMatch      string `toml:"self_match"`      // "allow" or "cancel_aggressor"
	MarketResidual string `toml:"market_residual"` // "cancel" or "rest"
	MaxOpenOrders  int    `toml:"max_open_orders"` // 0 = unlimited
	MaxDepth       int    `toml:"max_depth"`       // 0 = unlimited

	Latency Latency `toml:"latency"`
	Kafka   Kafka   `toml:"kafka"`
	Agents  []Agent `toml:"agents"`
}

// Latency is a network latency profile, applied to every agent unless the
// agent overrides it.
type Latency struct {
	Base     Duration `toml:"base"`
	Jitter   Duration `toml:"jitter"`
	LossRate float64  `toml:"loss_rate"`
}

// Kafka configures the optional ledger export; empty brokers disable it.
type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Agent configures one simulated participant.
type Agent struct {
	ID          string   `toml:"id"`
	Strategy    string   `toml:"strategy"`
	Interval    Duration `toml:"interval"`
	RefPrice    int64    `toml:"ref_price"`
	Quantity    int64    `toml:"quantity"`
	Spread      int64    `toml:"spread"`
	MaxPosition int64    `toml:"max_position"`

	Latency *Latency `toml:"latency"`
}

// Default returns a runnable configuration: one maker, two noise traders
// and a momentum taker on a single instrument.
func Default() Config {
	return Config{
		Seed:           42,
		Symbol:         "SIM",
		TickSize:       1,
		LotSize:        1,
		MaxEvents:      100_000,
		MaxTime:        Duration{10 * time.Second},
		SelfMatch:      "allow",
		MarketResidual: "cancel",
		Latency: Latency{
			Base:     Duration{time.Millisecond},
			Jitter:   Duration{200 * time.Microsecond},
			LossRate: 0.0001,
		},
		Agents: []Agent{
			{ID: "maker-1", Strategy: "maker", Interval: Duration{5 * time.Millisecond}, RefPrice: 10000, Quantity: 10, Spread: 4},
			{ID: "noise-1", Strategy: "noise", Interval: Duration{7 * time.Millisecond}, RefPrice: 10000, Quantity: 5},
			{ID: "noise-2", Strategy: "noise", Interval: Duration{11 * time.Millisecond}, RefPrice: 10000, Quantity: 5},
			{ID: "momo-1", Strategy: "momentum", Interval: Duration{13 * time.Millisecond}, RefPrice: 10000, Quantity: 10, MaxPosition: 100},
		},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Agents = nil // a config file supplies its own roster
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol required")
	}
	if c.TickSize < 1 {
		return fmt.Errorf("tick_size %d must be >= 1", c.TickSize)
	}
	if c.LotSize < 1 {
		return fmt.Errorf("lot_size %d must be >= 1", c.LotSize)
	}
	switch c.SelfMatch {
	case "allow", "cancel_aggressor":
	default:
		return fmt.Errorf("unknown self_match %q", c.SelfMatch)
	}
	switch c.MarketResidual {
	case "cancel", "rest":
	default:
		return fmt.Errorf("unknown market_residual %q", c.MarketResidual)
	}
	if c.Latency.LossRate < 0 || c.Latency.LossRate >= 1 {
		return fmt.Errorf("latency loss_rate %v out of range [0, 1)", c.Latency.LossRate)
	}

	seen := make(map[string]bool)
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		switch a.Strategy {
		case "noise", "maker", "momentum":
		default:
			return fmt.Errorf("agent %s: unknown strategy %q", a.ID, a.Strategy)
		}
		if a.RefPrice <= 0 {
			return fmt.Errorf("agent %s: ref_price %d must be positive", a.ID, a.RefPrice)
		}
		if a.Latency != nil && (a.Latency.LossRate < 0 || a.Latency.LossRate >= 1) {
			return fmt.Errorf("agent %s: loss_rate %v out of range [0, 1)", a.ID, a.Latency.LossRate)
		}
	}
	return nil
}
