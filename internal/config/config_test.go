package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
seed = 7
symbol = "TEST"
tick_size = 5
max_time = "250ms"
self_match = "cancel_aggressor"

[latency]
base = "2ms"
jitter = "500us"
loss_rate = 0.001

[[agents]]
id = "mm"
strategy = "maker"
interval = "5ms"
ref_price = 20000
quantity = 10
spread = 10

[[agents]]
id = "taker"
strategy = "momentum"
interval = "9ms"
ref_price = 20000
quantity = 5

  [agents.latency]
  base = "100us"
  jitter = "10us"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "TEST", cfg.Symbol)
	assert.Equal(t, int64(5), cfg.TickSize)
	assert.Equal(t, int64(1), cfg.LotSize) // default kept
	assert.Equal(t, 250*time.Millisecond, cfg.MaxTime.Get())
	assert.Equal(t, "cancel_aggressor", cfg.SelfMatch)
	assert.Equal(t, 2*time.Millisecond, cfg.Latency.Base.Get())

	require.Len(t, cfg.Agents, 2)
	assert.Nil(t, cfg.Agents[0].Latency)
	require.NotNil(t, cfg.Agents[1].Latency)
	assert.Equal(t, 100*time.Microsecond, cfg.Agents[1].Latency.Base.Get())
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"bad strategy": `
symbol = "SIM"
[[agents]]
id = "a"
strategy = "hodl"
ref_price = 100
`,
		"duplicate id": `
symbol = "SIM"
[[agents]]
id = "a"
strategy = "noise"
ref_price = 100
[[agents]]
id = "a"
strategy = "noise"
ref_price = 100
`,
		"bad policy": `
symbol = "SIM"
self_match = "sometimes"
`,
		"bad duration": `
symbol = "SIM"
max_time = "fast"
`,
		"bad loss rate": `
symbol = "SIM"
[latency]
loss_rate = 1.5
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
