package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/holdemtable/internal/display"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/internal/store/remote"
)

// WatchCmd follows a room as a spectator. Nobody's hole cards are shown
// until they are revealed.
type WatchCmd struct {
	Server  string `default:"ws://localhost:8080/ws" help:"Document server URL"`
	Token   string `env:"HOLDEM_TOKEN" help:"Sign-in token, if the server requires one"`
	Room    string `required:"" help:"Room to watch"`
	Table   bool   `help:"Print the whole table on every change instead of a hand history"`
	NoColor bool   `name:"no-color" help:"Disable colour output"`
}

func (c *WatchCmd) Run(g *Globals) error {
	_, logger, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	client, err := remote.Dial(ctx, c.Server, c.Token, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var opts []display.Option
	if c.NoColor {
		opts = append(opts, display.WithoutColor())
	}
	w := &watcher{
		room:   c.Room,
		render: display.New(os.Stdout, opts...),
		out:    os.Stdout,
		table:  c.Table,
		logger: logger.WithPrefix("watch"),
		poke:   make(chan struct{}, 1),
	}
	err = w.run(ctx, client, client.Done())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// watcher assembles game snapshots from the game document and the players
// subcollection and prints what changed.
type watcher struct {
	room   string
	render *display.Renderer
	out    io.Writer
	table  bool
	logger *log.Logger

	mu       sync.Mutex
	game     store.Document
	gameSeen bool
	players  map[string]store.Document
	failed   error

	poke chan struct{}
	prev *game.State
}

// run prints changes until ctx is done, closed fires or a subscription
// fails.
func (w *watcher) run(ctx context.Context, st store.Store, closed <-chan struct{}) error {
	onError := func(err error) {
		w.mu.Lock()
		w.failed = err
		w.mu.Unlock()
		w.signal()
	}
	unsubGame, err := st.Subscribe(ctx, game.GamesPath, w.room, func(snap store.Snapshot) {
		w.mu.Lock()
		w.game = nil
		if snap.Exists {
			w.game = snap.Doc
		}
		w.gameSeen = true
		w.mu.Unlock()
		w.signal()
	}, onError)
	if err != nil {
		return fmt.Errorf("watch game: %w", err)
	}
	defer unsubGame()

	unsubPlayers, err := st.SubscribeCollection(ctx, game.PlayersPath(w.room), func(docs map[string]store.Document) {
		w.mu.Lock()
		w.players = docs
		w.mu.Unlock()
		w.signal()
	}, onError)
	if err != nil {
		return fmt.Errorf("watch players: %w", err)
	}
	defer unsubPlayers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return errors.New("connection closed")
		case <-w.poke:
			if err := w.update(); err != nil {
				return err
			}
		}
	}
}

func (w *watcher) signal() {
	select {
	case w.poke <- struct{}{}:
	default:
	}
}

func (w *watcher) update() error {
	w.mu.Lock()
	doc, seen, players, failed := w.game, w.gameSeen, w.players, w.failed
	w.mu.Unlock()
	if failed != nil {
		return fmt.Errorf("subscription: %w", failed)
	}
	if !seen {
		return nil
	}

	var next *game.State
	if doc != nil {
		s, err := game.DecodeState(w.room, doc, players)
		if err != nil {
			w.logger.Warn("Skipping undecodable snapshot", "error", err)
			return nil
		}
		next = s
	}

	if w.table {
		if next != nil {
			fmt.Fprintln(w.out, w.render.Table(next, ""))
			fmt.Fprintln(w.out)
		}
	} else {
		for _, line := range w.render.Changes(w.prev, next) {
			fmt.Fprintln(w.out, line)
		}
	}
	w.prev = next
	return nil
}
