// Package latency samples per-agent network delay. Sampling is pure given
// the run seed and the per-agent call sequence, so it can run ahead of or
// apart from the matching loop without affecting determinism.
package latency

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// Profile holds one agent's delay distribution: a fixed base delay plus
// uniform jitter, with a small chance of a simulated retransmission at
// ten times the base delay.
type Profile struct {
	Base     time.Duration
	Jitter   time.Duration
	LossRate float64
}

// DefaultProfile mirrors a co-located participant: 1ms base, 0.2ms jitter,
// 0.01% packet loss.
func DefaultProfile() Profile {
	return Profile{
		Base:     time.Millisecond,
		Jitter:   200 * time.Microsecond,
		LossRate: 0.0001,
	}
}

// Model maps agent ids to latency profiles. Each agent draws from its own
// seeded stream, so one agent's sampling never perturbs another's.
type Model struct {
	seed     int64
	profiles map[string]Profile
	rngs     map[string]*rand.Rand
}

func NewModel(seed int64) *Model {
	return &Model{
		seed:     seed,
		profiles: make(map[string]Profile),
		rngs:     make(map[string]*rand.Rand),
	}
}

// Register installs a profile for an agent. Registering twice replaces the
// profile but keeps the agent's random stream.
func (m *Model) Register(agentID string, p Profile) {
	m.profiles[agentID] = p
	if _, ok := m.rngs[agentID]; !ok {
		m.rngs[agentID] = rand.New(rand.NewSource(agentSeed(m.seed, agentID)))
	}
}

// Profile returns the registered profile for an agent.
func (m *Model) Profile(agentID string) (Profile, bool) {
	p, ok := m.profiles[agentID]
	return p, ok
}

// Sample returns the effective arrival time for an intent decided at
// decisionTime: decision time plus the agent's sampled network delay.
// Unregistered agents get the default profile.
func (m *Model) Sample(agentID string, decisionTime time.Duration) time.Duration {
	p, ok := m.profiles[agentID]
	if !ok {
		p = DefaultProfile()
		m.Register(agentID, p)
	}
	return decisionTime + m.delay(m.rngs[agentID], p)
}

func (m *Model) delay(rng *rand.Rand, p Profile) time.Duration {
	if p.LossRate > 0 && rng.Float64() < p.LossRate {
		// Lost packet: the intent arrives after a retransmission.
		return 10 * p.Base
	}
	d := p.Base
	if p.Jitter > 0 {
		d += time.Duration(rng.Int63n(int64(2*p.Jitter)+1)) - p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return d
}

func agentSeed(seed int64, agentID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(agentID))
	return seed ^ int64(h.Sum64())
}
