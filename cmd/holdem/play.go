package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/autoplay"
	"github.com/lox/holdemtable/internal/config"
	"github.com/lox/holdemtable/internal/display"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/randutil"
	"github.com/lox/holdemtable/internal/roomid"
	"github.com/lox/holdemtable/internal/store/remote"
	"github.com/lox/holdemtable/internal/tui"
)

// PlayCmd sits at a table on a document server, either in the table client
// or letting a strategy play.
type PlayCmd struct {
	Server    string        `default:"ws://localhost:8080/ws" help:"Document server URL"`
	Token     string        `env:"HOLDEM_TOKEN" help:"Sign-in token (your user id when the server trusts tokens)"`
	AuthURL   string        `name:"auth-url" help:"Identity service to sign in with before joining"`
	Room      string        `help:"Room to join"`
	Create    bool          `help:"Open a new room (or reopen --room) and host it"`
	Strategy  string        `help:"Let a strategy play for you (call, random, aggressive)"`
	NextRound time.Duration `default:"5s" help:"Pause between hands when hosting"`
	LogFile   string        `default:"holdem-play.log" help:"Log file while the table client owns the terminal"`
	NoColor   bool          `help:"Disable colour output"`
}

// signIn decides who is sitting down. With an identity service the token is
// exchanged there and must name the user the document server authenticated;
// otherwise the server's identity is used as is.
func signIn(ctx context.Context, authURL, token string, server *auth.Identity) (auth.Provider, *auth.Identity, error) {
	if server == nil {
		return nil, nil, fmt.Errorf("%w: the server did not identify you, pass --token", auth.ErrAuthDenied)
	}
	if authURL == "" {
		return auth.NewStatic(server), server, nil
	}

	provider := auth.NewHTTPProvider(auth.NewHTTPValidator(authURL, ""))
	id, err := provider.SignIn(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("sign in: %w", err)
	}
	if id.UID != server.UID {
		provider.SignOut()
		return nil, nil, fmt.Errorf("%w: signed in as %s but the server knows you as %s", auth.ErrAuthDenied, id.UID, server.UID)
	}
	return provider, id, nil
}

func (c *PlayCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if c.Room == "" && !c.Create {
		return errors.New("pass --room to join a table or --create to open one")
	}
	if c.Strategy == "" {
		logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = logFile.Close() }()
		logger.SetOutput(logFile)
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	client, err := remote.Dial(ctx, c.Server, c.Token, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	identity, id, err := signIn(ctx, c.AuthURL, c.Token, client.Identity())
	if err != nil {
		return err
	}

	room := c.Room
	if room == "" {
		room = roomid.New()
	}
	s, err := sitDown(ctx, client, cfg, logger, identity, seatConfig{
		room:      room,
		host:      c.Create,
		nextRound: c.NextRound,
	})
	if err != nil {
		return err
	}
	defer s.session.Close()

	r := display.New(os.Stdout)
	if c.NoColor {
		r = display.New(os.Stdout, display.WithoutColor())
	}
	welcome := fmt.Sprintf("Room %s, seated as %s. Others join with: holdem play --room %s", room, id.Name, room)

	eg, egCtx := errgroup.WithContext(ctx)
	if c.Strategy != "" {
		err = c.runStrategy(egCtx, eg, cancel, cfg, logger, s, r, welcome)
	} else {
		err = c.runClient(egCtx, eg, cancel, logger, s, r, welcome)
	}
	if err != nil {
		cancel()
		_ = eg.Wait()
		return err
	}
	err = eg.Wait()
	if errors.Is(err, game.ErrSessionClosed) {
		return nil
	}
	return err
}

// runClient runs the table client until the player quits or leaves, or
// the session ends.
func (c *PlayCmd) runClient(ctx context.Context, eg *errgroup.Group, cancel context.CancelFunc, logger *log.Logger, s *seat, r *display.Renderer, welcome string) error {
	listener, states := tui.Feed(64)
	s.session.OnChange(listener)
	if err := s.session.Start(ctx); err != nil {
		return err
	}

	model := tui.New(ctx, s.session, states, r, s.session.Table().Rules(), logger)
	model.AddLogEntry(welcome)
	model.AddLogEntry("Type help for commands")

	if s.session.IsHost() {
		eg.Go(func() error { return s.monitor.Run(ctx) })
	}
	eg.Go(func() error {
		defer cancel()
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return model.Err()
	})
	return nil
}

// runStrategy prints the hand history while a strategy plays the seat.
func (c *PlayCmd) runStrategy(ctx context.Context, eg *errgroup.Group, cancel context.CancelFunc, cfg *config.Config, logger *log.Logger, s *seat, r *display.Renderer, welcome string) error {
	strategy, err := autoplay.NewStrategy(c.Strategy, randutil.New(time.Now().UnixNano()))
	if err != nil {
		return err
	}
	player := autoplay.New(s.session, strategy, logger,
		autoplay.WithThinkTime(max(autoplay.DefaultThinkTime, cfg.Security.RateLimit+cfg.Security.RateLimit/5)))

	fmt.Println(welcome)
	var (
		mu   sync.Mutex
		last *game.State
	)
	s.session.OnChange(func(st *game.State) {
		mu.Lock()
		prev := last
		last = st
		mu.Unlock()
		for _, line := range r.Changes(prev, st) {
			fmt.Println(line)
		}
	})
	if err := s.session.Start(ctx); err != nil {
		return err
	}

	if s.session.IsHost() {
		eg.Go(func() error { return s.monitor.Run(ctx) })
	}
	eg.Go(func() error {
		defer cancel()
		return player.Run(ctx)
	})
	return nil
}
