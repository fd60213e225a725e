package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemtable/internal/game"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Table.SmallBlind)
	assert.Equal(t, 20, cfg.Table.BigBlind)
	assert.Equal(t, 3*time.Second, cfg.Table.AutoStartDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Security.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Security.SweepInterval)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "holdem.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
table {
  small_blind      = 25
  big_blind        = 50
  max_seats        = 3
  auto_start_delay = "5s"
  tie_break        = "kickers"
}

security {
  rate_limit    = "250ms"
  ban_after     = 2
  pot_tolerance = 0
}

server {
  address           = "127.0.0.1:9000"
  snapshot          = "tables.json"
  snapshot_interval = "1m"
}

log {
  level = "debug"
}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25, cfg.Table.SmallBlind)
	assert.Equal(t, 50, cfg.Table.BigBlind)
	assert.Equal(t, 20, cfg.Table.MinRaise, "unset values keep their default")
	assert.Equal(t, 3, cfg.Table.MaxSeats)
	assert.Equal(t, 5*time.Second, cfg.Table.AutoStartDelay)
	assert.Equal(t, game.TieBreakKickers, cfg.Table.TieBreak)

	assert.Equal(t, 250*time.Millisecond, cfg.Security.RateLimit)
	assert.Equal(t, 2, cfg.Security.BanAfter)
	assert.Equal(t, 0, cfg.Security.PotTolerance, "explicit zero overrides the default")
	assert.Equal(t, 5, cfg.Security.LogBatch)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, "tables.json", cfg.Server.Snapshot)
	assert.Equal(t, time.Minute, cfg.Server.SnapshotInterval)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `table {`},
		{"unknown attribute", `table { seats = 4 }`},
		{"bad duration", `table { auto_start_delay = "soon" }`},
		{"bad level", `log { level = "loud" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src), "test.hcl")
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"big blind below small", func(c *Config) { c.Table.BigBlind = 5 }},
		{"too many seats", func(c *Config) { c.Table.MaxSeats = 9 }},
		{"unknown tie break", func(c *Config) { c.Table.TieBreak = "coin" }},
		{"zero rate limit", func(c *Config) { c.Security.RateLimit = 0 }},
		{"zero sweep interval", func(c *Config) { c.Security.SweepInterval = 0 }},
		{"zero ban after", func(c *Config) { c.Security.BanAfter = 0 }},
		{"negative tolerance", func(c *Config) { c.Security.PotTolerance = -1 }},
		{"log smaller than batch", func(c *Config) { c.Security.MaxLogEntries = 2 }},
		{"no address", func(c *Config) { c.Server.Address = "" }},
		{"snapshot without interval", func(c *Config) {
			c.Server.Snapshot = "x.json"
			c.Server.SnapshotInterval = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
