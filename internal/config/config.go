// Package config loads the HCL configuration shared by every holdem command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/security"
)

// File is the on-disk layout. Every block and attribute is optional.
type File struct {
	Table    *TableBlock    `hcl:"table,block"`
	Security *SecurityBlock `hcl:"security,block"`
	Server   *ServerBlock   `hcl:"server,block"`
	Log      *LogBlock      `hcl:"log,block"`
}

// TableBlock sets the stakes.
type TableBlock struct {
	SmallBlind     int    `hcl:"small_blind,optional"`
	BigBlind       int    `hcl:"big_blind,optional"`
	MinRaise       int    `hcl:"min_raise,optional"`
	StartingMoney  int    `hcl:"starting_money,optional"`
	MaxSeats       int    `hcl:"max_seats,optional"`
	AutoStartDelay string `hcl:"auto_start_delay,optional"`
	TieBreak       string `hcl:"tie_break,optional"`
}

// SecurityBlock tunes the anti-abuse monitor.
type SecurityBlock struct {
	RateLimit     string `hcl:"rate_limit,optional"`
	LogBatch      int    `hcl:"log_batch,optional"`
	FlagAfter     int    `hcl:"flag_after,optional"`
	BanAfter      int    `hcl:"ban_after,optional"`
	SweepInterval string `hcl:"sweep_interval,optional"`
	PotTolerance  *int   `hcl:"pot_tolerance,optional"`
	MaxLogEntries int    `hcl:"max_log_entries,optional"`
}

// ServerBlock configures the document server.
type ServerBlock struct {
	Address          string `hcl:"address,optional"`
	Snapshot         string `hcl:"snapshot,optional"`
	SnapshotInterval string `hcl:"snapshot_interval,optional"`
}

// LogBlock sets the log level.
type LogBlock struct {
	Level string `hcl:"level,optional"`
}

// Server is the resolved server block.
type Server struct {
	Address          string
	Snapshot         string
	SnapshotInterval time.Duration
}

// Config is the resolved configuration with defaults applied.
type Config struct {
	Table    game.Rules
	Security security.Config
	Server   Server
	LogLevel log.Level
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Table:    game.DefaultRules(),
		Security: security.DefaultConfig(),
		Server: Server{
			Address:          ":8080",
			SnapshotInterval: 10 * time.Second,
		},
		LogLevel: log.InfoLevel,
	}
}

// Load reads filename. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, filename)
}

// Parse decodes HCL source and overlays it on the defaults.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var f File
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg := Default()
	if err := f.apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *File) apply(cfg *Config) error {
	var err error
	if t := f.Table; t != nil {
		setInt(&cfg.Table.SmallBlind, t.SmallBlind)
		setInt(&cfg.Table.BigBlind, t.BigBlind)
		setInt(&cfg.Table.MinRaise, t.MinRaise)
		setInt(&cfg.Table.StartingMoney, t.StartingMoney)
		setInt(&cfg.Table.MaxSeats, t.MaxSeats)
		if t.TieBreak != "" {
			cfg.Table.TieBreak = game.TieBreak(t.TieBreak)
		}
		err = errors.Join(err, setDuration(&cfg.Table.AutoStartDelay, "table.auto_start_delay", t.AutoStartDelay))
	}
	if s := f.Security; s != nil {
		setInt(&cfg.Security.LogBatch, s.LogBatch)
		setInt(&cfg.Security.FlagAfter, s.FlagAfter)
		setInt(&cfg.Security.BanAfter, s.BanAfter)
		setInt(&cfg.Security.MaxLogEntries, s.MaxLogEntries)
		if s.PotTolerance != nil {
			cfg.Security.PotTolerance = *s.PotTolerance
		}
		err = errors.Join(err,
			setDuration(&cfg.Security.RateLimit, "security.rate_limit", s.RateLimit),
			setDuration(&cfg.Security.SweepInterval, "security.sweep_interval", s.SweepInterval))
	}
	if s := f.Server; s != nil {
		if s.Address != "" {
			cfg.Server.Address = s.Address
		}
		cfg.Server.Snapshot = s.Snapshot
		err = errors.Join(err, setDuration(&cfg.Server.SnapshotInterval, "server.snapshot_interval", s.SnapshotInterval))
	}
	if l := f.Log; l != nil && l.Level != "" {
		level, perr := log.ParseLevel(l.Level)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("log.level: %w", perr))
		} else {
			cfg.LogLevel = level
		}
	}
	return err
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if err := c.Table.Validate(); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	s := c.Security
	switch {
	case s.RateLimit <= 0:
		return fmt.Errorf("security: rate limit must be positive, got %s", s.RateLimit)
	case s.SweepInterval <= 0:
		return fmt.Errorf("security: sweep interval must be positive, got %s", s.SweepInterval)
	case s.LogBatch < 1:
		return fmt.Errorf("security: log batch must be at least 1, got %d", s.LogBatch)
	case s.FlagAfter < 0:
		return fmt.Errorf("security: flag after must not be negative, got %d", s.FlagAfter)
	case s.BanAfter < 1:
		return fmt.Errorf("security: ban after must be at least 1, got %d", s.BanAfter)
	case s.PotTolerance < 0:
		return fmt.Errorf("security: pot tolerance must not be negative, got %d", s.PotTolerance)
	case s.MaxLogEntries < s.LogBatch:
		return fmt.Errorf("security: max log entries %d below log batch %d", s.MaxLogEntries, s.LogBatch)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server: address is required")
	}
	if c.Server.Snapshot != "" && c.Server.SnapshotInterval <= 0 {
		return fmt.Errorf("server: snapshot interval must be positive, got %s", c.Server.SnapshotInterval)
	}
	return nil
}
