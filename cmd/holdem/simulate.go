package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/autoplay"
	"github.com/lox/holdemtable/internal/config"
	"github.com/lox/holdemtable/internal/display"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/randutil"
	"github.com/lox/holdemtable/internal/roomid"
	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/internal/store/remote"
)

// SimulateCmd seats scripted players at one table and plays a number of
// hands, in memory or against a running document server.
type SimulateCmd struct {
	Lineup    string        `default:"call:1,random:1,aggressive:1" help:"Players as strategy:count pairs (strategies: call, random, aggressive)"`
	Hands     int           `default:"10" help:"Stop after N hands"`
	Seed      int64         `help:"Seed for deals, strategies and the room id (0 for random)"`
	Think     time.Duration `default:"0s" help:"Pause before each action; never below the security rate limit"`
	NextRound time.Duration `default:"1s" help:"Pause between hands"`
	Server    string        `help:"Document server URL (ws://host:port/ws); in-memory when unset"`
	Timeout   time.Duration `default:"10m" help:"Give up after this long"`
	Quiet     bool          `help:"Only print the final standings"`
	NoColor   bool          `help:"Disable colour output"`

	out io.Writer
}

// parseLineup expands "call:2,random:1" into one strategy name per seat.
func parseLineup(lineup string) ([]string, error) {
	var names []string
	for part := range strings.SplitSeq(lineup, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count, found := strings.Cut(part, ":")
		n := 1
		if found {
			var err error
			if n, err = strconv.Atoi(count); err != nil || n < 1 {
				return nil, fmt.Errorf("invalid count in %q", part)
			}
		}
		if !slices.Contains(autoplay.Strategies, strings.ToLower(name)) {
			return nil, fmt.Errorf("unknown strategy %q in %q", name, part)
		}
		for range n {
			names = append(names, strings.ToLower(name))
		}
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("need at least two players, got %d", len(names))
	}
	return names, nil
}

func (c *SimulateCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	final, err := c.simulate(ctx, cfg, logger)
	if final != nil {
		c.printStandings(final)
	}
	return err
}

func (c *SimulateCmd) writer() io.Writer {
	if c.out == nil {
		return os.Stdout
	}
	return c.out
}

func (c *SimulateCmd) renderer() *display.Renderer {
	if c.NoColor {
		return display.New(c.writer(), display.WithoutColor())
	}
	return display.New(c.writer())
}

// simulate plays until every player reaches the hand limit, the table
// breaks up or the timeout passes, and returns the table as it was left.
func (c *SimulateCmd) simulate(ctx context.Context, cfg *config.Config, logger *log.Logger) (*game.State, error) {
	strategies, err := parseLineup(c.Lineup)
	if err != nil {
		return nil, err
	}
	if len(strategies) > cfg.Table.MaxSeats {
		return nil, fmt.Errorf("%d players for %d seats", len(strategies), cfg.Table.MaxSeats)
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	think := max(c.Think, cfg.Security.RateLimit+cfg.Security.RateLimit/5)
	room, err := roomid.NewGenerator(randutil.NewReader(seed)).Generate()
	if err != nil {
		return nil, err
	}
	logger = logger.With("room", room)
	logger.Info("Starting simulation", "players", len(strategies), "hands", c.Hands, "seed", seed, "think", think)

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var mem *store.Memory
	if c.Server == "" {
		mem = store.NewMemory(logger)
		defer mem.Close()
	}

	var (
		seats   []*seat
		players []*autoplay.Player
		clients []*remote.Client
	)
	defer func() {
		for _, s := range seats {
			s.session.Close()
		}
		for _, client := range clients {
			_ = client.Close()
		}
	}()
	for i, name := range strategies {
		id := &auth.Identity{UID: uuid.NewString(), Name: fmt.Sprintf("%s-%d", name, i+1)}
		var st store.Store = mem
		if mem == nil {
			client, err := remote.Dial(ctx, c.Server, id.UID, logger)
			if err != nil {
				return nil, err
			}
			clients = append(clients, client)
			st = client
			if srvID := client.Identity(); srvID != nil {
				id = srvID
			}
		}

		s, err := sitDown(ctx, st, cfg, logger.With("player", id.Name), auth.NewStatic(id), seatConfig{
			room:      room,
			host:      i == 0,
			random:    randutil.NewSource(seed + int64(i)),
			nextRound: c.NextRound,
		})
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", id.Name, err)
		}
		strategy, err := autoplay.NewStrategy(name, randutil.New(seed+int64(i)))
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
		players = append(players, autoplay.New(s.session, strategy, logger.With("player", id.Name),
			autoplay.WithThinkTime(think),
			autoplay.WithHandLimit(c.Hands)))
	}
	host := seats[0]

	playCtx, stopPlay := context.WithCancel(ctx)
	defer stopPlay()

	var (
		mu     sync.Mutex
		last   *game.State
		played bool
	)
	r := c.renderer()
	host.session.OnChange(func(s *game.State) {
		mu.Lock()
		prev := last
		last = s
		played = played || s.Phase.Betting()
		over := played && s.Phase == game.PhaseWaiting && len(s.Eligible()) < 2
		mu.Unlock()
		if !c.Quiet {
			for _, line := range r.Changes(prev, s) {
				fmt.Fprintln(c.writer(), line)
			}
		}
		if over {
			logger.Info("Not enough players left, ending simulation")
			stopPlay()
		}
	})

	for _, s := range seats {
		if err := s.session.Start(ctx); err != nil {
			return nil, err
		}
	}

	eg, egCtx := errgroup.WithContext(playCtx)
	monCtx, stopMonitor := context.WithCancel(egCtx)
	eg.Go(func() error { return host.monitor.Run(monCtx) })
	eg.Go(func() error {
		defer stopMonitor()
		var pg errgroup.Group
		for _, p := range players {
			pg.Go(func() error { return p.Run(egCtx) })
		}
		return pg.Wait()
	})
	eg.Go(func() error {
		select {
		case <-host.session.Done():
			stopPlay()
			if err := host.session.Err(); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("host session: %w", err)
			}
		case <-monCtx.Done():
		}
		return nil
	})
	runErr := eg.Wait()

	for _, s := range seats[1:] {
		flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := s.monitor.Flush(flushCtx); err != nil {
			logger.Warn("Failed to flush security log", "error", err)
		}
		cancelFlush()
	}

	final, err := host.session.Table().Load(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if runErr != nil {
		return final, runErr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return final, fmt.Errorf("simulation timed out after %s", c.Timeout)
	}
	return final, nil
}

func (c *SimulateCmd) printStandings(s *game.State) {
	w := c.writer()
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.renderer().Table(s, ""))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Chips in play: $%d\n", s.ChipsInPlay())
}
