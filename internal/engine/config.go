package engine

import "fmt"

// SelfMatchPolicy controls what happens when an incoming order would
// trade against a resting order from the same agent.
type SelfMatchPolicy int8

const (
	// SelfMatchAllow treats the self-crossing as a normal trade.
	SelfMatchAllow SelfMatchPolicy = iota
	// SelfMatchCancelAggressor cancels the incoming order's remainder
	// without trading.
	SelfMatchCancelAggressor
)

func (p SelfMatchPolicy) String() string {
	if p == SelfMatchCancelAggressor {
		return "cancel_aggressor"
	}
	return "allow"
}

func ParseSelfMatchPolicy(s string) (SelfMatchPolicy, error) {
	switch s {
	case "allow":
		return SelfMatchAllow, nil
	case "cancel_aggressor":
		return SelfMatchCancelAggressor, nil
	}
	return 0, fmt.Errorf("unknown self-match policy %q", s)
}

// ResidualPolicy controls what happens to a market order's unfilled
// remainder after it exhausts the opposite side.
type ResidualPolicy int8

const (
	// ResidualCancel cancels the remainder outright (market orders never
	// rest).
	ResidualCancel ResidualPolicy = iota
	// ResidualRest converts a partially filled remainder into a limit
	// order at the last fill price. A wholly unfilled market order is
	// still cancelled.
	ResidualRest
)

func (p ResidualPolicy) String() string {
	if p == ResidualRest {
		return "rest"
	}
	return "cancel"
}

func ParseResidualPolicy(s string) (ResidualPolicy, error) {
	switch s {
	case "cancel":
		return ResidualCancel, nil
	case "rest":
		return ResidualRest, nil
	}
	return 0, fmt.Errorf("unknown market residual policy %q", s)
}

// Config holds the engine's named policy switches and capacity limits.
type Config struct {
	SelfMatch      SelfMatchPolicy
	MarketResidual ResidualPolicy

	// MaxOpenOrders caps resting orders per agent; 0 means unlimited.
	MaxOpenOrders int
	// MaxDepth caps price levels per book side; 0 means unlimited.
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{
		SelfMatch:      SelfMatchAllow,
		MarketResidual: ResidualCancel,
	}
}
