package main

import (
	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/docserver"
	"github.com/lox/holdemtable/internal/store"
)

// ServeCmd runs the document server every participant connects to.
type ServeCmd struct {
	Addr        string `help:"Listen address, overrides the config file"`
	Snapshot    string `help:"Snapshot file, overrides the config file"`
	AuthURL     string `name:"auth-url" help:"Token validation endpoint (tokens are trusted as user ids when unset)"`
	AdminSecret string `help:"Shared secret sent to the validation endpoint" env:"HOLDEM_ADMIN_SECRET"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Snapshot != "" {
		cfg.Server.Snapshot = c.Snapshot
	}

	var st *store.Memory
	if cfg.Server.Snapshot != "" {
		if st, err = store.LoadMemory(cfg.Server.Snapshot, logger); err != nil {
			return err
		}
	} else {
		st = store.NewMemory(logger)
	}
	defer st.Close()

	var opts []docserver.Option
	if c.AuthURL != "" {
		opts = append(opts, docserver.WithValidator(auth.NewHTTPValidator(c.AuthURL, c.AdminSecret)))
	} else {
		logger.Warn("No --auth-url, trusting tokens as user ids")
	}
	if cfg.Server.Snapshot != "" {
		opts = append(opts, docserver.WithSnapshots(cfg.Server.Snapshot, cfg.Server.SnapshotInterval))
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("Starting holdem document server",
		"address", cfg.Server.Address,
		"snapshot", cfg.Server.Snapshot,
		"snapshot_interval", cfg.Server.SnapshotInterval)
	return docserver.NewServer(cfg.Server.Address, st, logger, opts...).Run(ctx)
}
