package autoplay

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/dealer"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/randutil"
	"github.com/lox/holdemtable/internal/store"
)

const room = "room1"

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func seat(t *testing.T, rules game.Rules, ids ...string) *store.Memory {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory(testLogger())
	t.Cleanup(st.Close)
	require.NoError(t, game.CreateRoom(ctx, st, room, ids[0], 0))
	for _, id := range ids {
		require.NoError(t, game.Join(ctx, st, room, id, id, rules))
	}
	require.NoError(t, game.CreateGame(ctx, st, room, rules))
	return st
}

func session(t *testing.T, st store.Store, rules game.Rules, uid string) *game.Session {
	t.Helper()
	logger := testLogger()
	tbl := game.NewTable(st, room, logger,
		game.WithRules(rules),
		game.WithDealer(dealer.New(randutil.NewSource(int64(len(uid))), logger)))
	s := game.NewSession(tbl, auth.NewStatic(&auth.Identity{UID: uid}), logger,
		game.WithNextRoundDelay(50*time.Millisecond))
	t.Cleanup(s.Close)
	return s
}

func TestPlayersFinishHands(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()
	rules.AutoStartDelay = 0
	st := seat(t, rules, "alice", "bob")

	var sessions []*game.Session
	var players []*Player
	for _, uid := range []string{"alice", "bob"} {
		s := session(t, st, rules, uid)
		players = append(players, New(s, CallStrategy{}, testLogger(), WithThinkTime(0), WithHandLimit(2)))
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		require.NoError(t, s.Start(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range players {
		g.Go(func() error { return p.Run(gctx) })
	}
	require.NoError(t, g.Wait())
	require.NoError(t, ctx.Err(), "players should finish before the deadline")

	for _, s := range sessions {
		s.Close()
	}
	state, err := sessions[0].Table().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*rules.StartingMoney, state.ChipsInPlay(), "chips are conserved")
}

func TestRunStopsWhenSessionEnds(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()
	st := seat(t, rules, "alice", "bob")

	s := session(t, st, rules, "bob")
	p := New(s, CallStrategy{}, testLogger())
	require.NoError(t, s.Start(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background()) }()
	s.Close()

	select {
	case err := <-errc:
		assert.NoError(t, err, "a closed session has no error")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()
	st := seat(t, rules, "alice", "bob")

	s := session(t, st, rules, "bob")
	p := New(s, CallStrategy{}, testLogger())
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestOfferKeepsNewest(t *testing.T) {
	t.Parallel()
	p := &Player{states: make(chan *game.State, 1)}
	for i := range 3 {
		p.offer(&game.State{Pot: i})
	}
	assert.Equal(t, 2, (<-p.states).Pot)
}

func TestTurnKey(t *testing.T) {
	t.Parallel()
	s := turnState(20, 1000)
	s.DeckVersion = 7
	assert.Equal(t, "7/flop/20/0/waiting", turnKey(s, "alice"))
	assert.Empty(t, turnKey(s, "bob"))
}
