package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/config"
	"github.com/lox/holdemtable/internal/dealer"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/security"
	"github.com/lox/holdemtable/internal/store"
)

// seat is one participant's wiring at a table.
type seat struct {
	session *game.Session
	monitor *security.Monitor
}

type seatConfig struct {
	room      string
	host      bool
	random    dealer.RandomSource
	clock     quartz.Clock
	nextRound time.Duration
}

// openRoom creates room with host as its only player and a waiting game.
// An existing room is left alone.
func openRoom(ctx context.Context, st store.Store, cfg *config.Config, room string, host *auth.Identity, now time.Time) error {
	_, err := game.ReadRoom(ctx, st, room)
	switch {
	case err == nil:
		return game.Join(ctx, st, room, host.UID, host.Name, cfg.Table)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if err := game.CreateRoom(ctx, st, room, host.UID, now.UnixMilli()); err != nil {
		return err
	}
	if err := game.Join(ctx, st, room, host.UID, host.Name, cfg.Table); err != nil {
		return err
	}
	return game.CreateGame(ctx, st, room, cfg.Table)
}

// sitDown seats identity at sc.room and returns an unstarted session
// screened by the room's security monitor.
func sitDown(ctx context.Context, st store.Store, cfg *config.Config, logger *log.Logger, identity auth.Provider, sc seatConfig) (*seat, error) {
	id := identity.Current()
	if id == nil {
		return nil, fmt.Errorf("%w: not signed in", auth.ErrAuthDenied)
	}
	if sc.clock == nil {
		sc.clock = quartz.NewReal()
	}

	if sc.host {
		if err := openRoom(ctx, st, cfg, sc.room, id, sc.clock.Now()); err != nil {
			return nil, err
		}
	} else if err := game.Join(ctx, st, sc.room, id.UID, id.Name, cfg.Table); err != nil {
		return nil, err
	}

	monitor := security.New(st, sc.room, identity, logger,
		security.WithConfig(cfg.Security),
		security.WithClock(sc.clock))
	table := game.NewTable(st, sc.room, logger,
		game.WithRules(cfg.Table),
		game.WithGuard(monitor),
		game.WithClock(sc.clock),
		game.WithDealer(dealer.New(sc.random, logger)))

	var opts []game.SessionOption
	if sc.nextRound > 0 {
		opts = append(opts, game.WithNextRoundDelay(sc.nextRound))
	}
	return &seat{
		session: game.NewSession(table, identity, logger, opts...),
		monitor: monitor,
	}, nil
}
