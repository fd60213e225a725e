package game

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemtable/internal/dealer"
	"github.com/lox/holdemtable/internal/randutil"
	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/poker"
)

const testRoom = "room1"

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// newTestTable seats ids (first is host) in a fresh memory store and creates
// the waiting game. Seats follow id order.
func newTestTable(t *testing.T, ids ...string) (*store.Memory, *Table) {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	st := store.NewMemory(logger)
	t.Cleanup(st.Close)

	rules := DefaultRules()
	require.NoError(t, CreateRoom(ctx, st, testRoom, ids[0], 0))
	for _, id := range ids {
		require.NoError(t, Join(ctx, st, testRoom, id, "", rules))
	}
	require.NoError(t, CreateGame(ctx, st, testRoom, rules))

	tbl := NewTable(st, testRoom, logger,
		WithRules(rules),
		WithDealer(dealer.New(randutil.NewSource(7), logger)))
	return st, tbl
}

func mustLoad(t *testing.T, tbl *Table) *State {
	t.Helper()
	s, err := tbl.Load(context.Background())
	require.NoError(t, err)
	return s
}

func TestCreateGameSeatsPlayers(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol")

	s := mustLoad(t, tbl)
	assert.Equal(t, PhaseWaiting, s.Phase)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 2, "carol": 3}, s.PlayerPositions)
	assert.False(t, s.WinnerDeclared)
	assert.Equal(t, "Player alice", s.Players["alice"].Name)
	assert.Equal(t, 10000, s.Players["bob"].Money)

	room, err := ReadRoom(context.Background(), st, testRoom)
	require.NoError(t, err)
	assert.Equal(t, RoomPlaying, room.Status)
	assert.Equal(t, "alice", room.HostUID)
}

func TestAutoStartPostsBlindsAndDeals(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, tbl.AutoStart(ctx))
	s := mustLoad(t, tbl)

	assert.Equal(t, PhasePreflop, s.Phase)
	assert.Equal(t, &TablePositions{Dealer: "alice", SmallBlind: "alice", BigBlind: "bob", DealerSeat: 1}, s.TablePositions)
	assert.Equal(t, 9990, s.Players["alice"].Money)
	assert.Equal(t, 10, s.Players["alice"].Bet)
	assert.Equal(t, 10, s.Players["alice"].RoundBet)
	assert.Equal(t, 9980, s.Players["bob"].Money)
	assert.Equal(t, 20, s.Players["bob"].Bet)
	assert.Equal(t, 30, s.Pot)
	assert.Equal(t, 20, s.CurrentCallAmount)
	assert.Equal(t, "alice", s.CurrentTurn)
	assert.Empty(t, s.CommunityCards)
	assert.Equal(t, 2, s.DealtSeats)
	assert.NotEmpty(t, s.DeckSeed)
	assert.Positive(t, s.DeckVersion)

	seen := map[poker.Card]bool{}
	seed := dealer.ParseSeed(s.DeckSeed)
	for seat, id := range s.Seats() {
		cards := s.Players[id].Cards
		require.Len(t, cards, 2, id)
		for _, c := range cards {
			assert.False(t, seen[c], "card %s dealt twice", c.Short())
			seen[c] = true
		}
		assert.NoError(t, dealer.VerifyHoleCards(seed, seat, cards))
	}
	assert.Equal(t, s.Pot, s.BetTotal())

	// A second start is a no-op.
	require.NoError(t, tbl.AutoStart(ctx))
	assert.Equal(t, 30, mustLoad(t, tbl).Pot)
}

func TestAutoStartNeedsTwoPlayers(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice")
	assert.ErrorIs(t, tbl.AutoStart(context.Background()), ErrNotEnoughPlayers)
}

func TestHandPlaysToShowdown(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionCall}))
	s := mustLoad(t, tbl)
	assert.Equal(t, PhasePreflop, s.Phase, "big blind still has the option")
	assert.Equal(t, "bob", s.CurrentTurn)
	assert.Equal(t, 40, s.Pot)

	require.NoError(t, tbl.Act(ctx, "bob", Action{Kind: ActionCheck}))
	s = mustLoad(t, tbl)
	require.Equal(t, PhaseFlop, s.Phase)
	assert.Len(t, s.CommunityCards, 3)
	assert.Equal(t, "alice", s.CurrentTurn)
	assert.Equal(t, 0, s.CurrentCallAmount)
	for _, p := range s.Players {
		assert.Equal(t, 0, p.RoundBet)
		assert.Equal(t, StatusWaiting, p.Status)
		assert.Equal(t, 20, p.Bet)
	}
	require.NoError(t, tbl.VerifyBoard(s))

	for _, want := range []Phase{PhaseTurn, PhaseRiver} {
		require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionCheck}))
		require.NoError(t, tbl.Act(ctx, "bob", Action{Kind: ActionCheck}))
		s = mustLoad(t, tbl)
		require.Equal(t, want, s.Phase)
		assert.Len(t, s.CommunityCards, want.BoardSize())
		require.NoError(t, tbl.VerifyBoard(s))
	}

	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionCheck}))
	require.NoError(t, tbl.Act(ctx, "bob", Action{Kind: ActionCheck}))
	s = mustLoad(t, tbl)
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.True(t, s.WinnerDeclared)
	assert.NotEmpty(t, s.WinnerHand)
	assert.Empty(t, s.CurrentTurn)
	for _, p := range s.Players {
		assert.True(t, p.Revealed)
		assert.NotEmpty(t, p.HandName)
	}
	// Pot is paid out but not cleared until the next round.
	assert.Equal(t, 40, s.Pot)
	assert.Equal(t, 20000, s.ChipsInPlay())
}

func TestFoldsEndTheRound(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob", "carol")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	s := mustLoad(t, tbl)
	require.Equal(t, "carol", s.CurrentTurn)

	require.NoError(t, tbl.Act(ctx, "carol", Action{Kind: ActionFold}))
	s = mustLoad(t, tbl)
	assert.Equal(t, "alice", s.CurrentTurn, "action wraps past the folded last seat")

	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionFold}))
	s = mustLoad(t, tbl)
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.True(t, s.WinnerDeclared)
	assert.Equal(t, "bob", s.WinnerID)
	assert.Equal(t, "Last player standing", s.WinnerHand)
	assert.Equal(t, 10010, s.Players["bob"].Money)
	assert.Equal(t, 9990, s.Players["alice"].Money)
	assert.Equal(t, 10000, s.Players["carol"].Money)
}

func TestRaiseReopensAction(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob", "carol")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	require.NoError(t, tbl.Act(ctx, "carol", Action{Kind: ActionRaise, Amount: 40}))
	s := mustLoad(t, tbl)
	assert.Equal(t, 40, s.CurrentCallAmount)
	assert.Equal(t, 70, s.Pot)
	assert.Equal(t, "alice", s.CurrentTurn)

	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionCall}))
	require.NoError(t, tbl.Act(ctx, "bob", Action{Kind: ActionCall}))
	s = mustLoad(t, tbl)
	assert.Equal(t, PhaseFlop, s.Phase)
	assert.Equal(t, 120, s.Pot)
	assert.Equal(t, s.Pot, s.BetTotal())
}

func TestActRejections(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	var rej *RejectionError
	err := tbl.Act(ctx, "bob", Action{Kind: ActionCall})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonNotYourTurn, rej.Reason)

	err = tbl.Act(ctx, "alice", Action{Kind: ActionRaise, Amount: 10})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonBelowMinimum, rej.Reason)

	err = tbl.Act(ctx, "alice", Action{Kind: ActionRaise, Amount: 1_000_000})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonNotEnough, rej.Reason)

	s := mustLoad(t, tbl)
	assert.Equal(t, 30, s.Pot, "rejected actions write nothing")
	assert.Equal(t, "alice", s.CurrentTurn)
}

func TestConcurrentAdvanceIsIdempotent(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	other := NewTable(st, testRoom, testLogger())
	s := mustLoad(t, tbl)
	require.Equal(t, "carol", s.CurrentTurn)

	require.NoError(t, tbl.AdvanceTurn(ctx, s.Clone()))
	require.NoError(t, other.AdvanceTurn(ctx, s.Clone()), "losing writer is a no-op")
	assert.Equal(t, "alice", mustLoad(t, tbl).CurrentTurn, "turn advanced exactly once")

	// Two participants racing to deal the flop agree on the board.
	s = mustLoad(t, tbl)
	require.Equal(t, PhasePreflop, s.Phase)
	require.NoError(t, tbl.AdvancePhase(ctx, s.Clone()))
	require.NoError(t, other.AdvancePhase(ctx, s.Clone()))
	after := mustLoad(t, tbl)
	assert.Equal(t, PhaseFlop, after.Phase)
	assert.Len(t, after.CommunityCards, 3)
	assert.NoError(t, tbl.VerifyBoard(after))
}

func TestDeclareWinnerOnlyOnce(t *testing.T) {
	t.Parallel()
	_, tbl := newTestTable(t, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, tbl.AutoStart(ctx))

	s := mustLoad(t, tbl)
	require.NoError(t, tbl.DeclareWinner(ctx, s.Clone(), "bob", "test"))
	require.NoError(t, tbl.DeclareWinner(ctx, s.Clone(), "alice", "test"))

	after := mustLoad(t, tbl)
	assert.Equal(t, "bob", after.WinnerID)
	assert.Equal(t, 10010, after.Players["bob"].Money)
	assert.Equal(t, 9990, after.Players["alice"].Money)
}

func TestSplitPotDropsRemainder(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob")
	ctx := context.Background()
	require.NoError(t, st.Write(ctx, GamesPath, testRoom, store.Document{"pot": 101, "phase": "showdown"}))

	s := mustLoad(t, tbl)
	require.NoError(t, tbl.SplitPot(ctx, s, []string{"alice", "bob"}))

	after := mustLoad(t, tbl)
	assert.Equal(t, 10050, after.Players["alice"].Money)
	assert.Equal(t, 10050, after.Players["bob"].Money)
	assert.Equal(t, "Tie - Pot split", after.WinnerHand)
	assert.Equal(t, "alice,bob", after.WinnerID)
	assert.Equal(t, "Player alice, Player bob", after.WinnerName)
	assert.Equal(t, PhaseEnded, after.Phase)
}

func TestStartNewRound(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol")
	ctx := context.Background()

	assert.NoError(t, tbl.StartNewRound(ctx), "waiting table is left alone")

	require.NoError(t, tbl.AutoStart(ctx))
	assert.ErrorIs(t, tbl.StartNewRound(ctx), ErrRoundInProgress)

	require.NoError(t, tbl.Act(ctx, "carol", Action{Kind: ActionFold}))
	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionFold}))
	require.NoError(t, st.Write(ctx, PlayersPath(testRoom), "carol", store.Document{"money": 0}))

	require.NoError(t, tbl.StartNewRound(ctx))
	s := mustLoad(t, tbl)

	assert.Equal(t, PhaseWaiting, s.Phase)
	assert.Equal(t, 0, s.Pot)
	assert.Empty(t, s.CurrentTurn)
	assert.Empty(t, s.CommunityCards)
	assert.False(t, s.WinnerDeclared)
	assert.Zero(t, s.DealtSeats)
	assert.NotContains(t, s.Players, "carol")
	assert.Equal(t, map[string]int{"alice": 1, "bob": 2}, s.PlayerPositions)
	assert.Equal(t, &TablePositions{Dealer: "bob", SmallBlind: "bob", BigBlind: "alice", DealerSeat: 2}, s.TablePositions)
	for id, p := range s.Players {
		assert.Equal(t, StatusWaiting, p.Status, id)
		assert.Zero(t, p.Bet, id)
		assert.Zero(t, p.RoundBet, id)
		assert.Empty(t, p.Cards, id)
		assert.False(t, p.Revealed, id)
	}

	// The next start honours the rotated button.
	require.NoError(t, tbl.AutoStart(ctx))
	s = mustLoad(t, tbl)
	assert.Equal(t, "bob", s.TablePositions.SmallBlind)
	assert.Equal(t, 10010-10, s.Players["bob"].Money)
}

// playOut checks or calls for whoever is to act until the hand ends,
// verifying the board against the seed on every street.
func playOut(t *testing.T, tbl *Table) *State {
	t.Helper()
	ctx := context.Background()
	for range 50 {
		s := mustLoad(t, tbl)
		require.NoError(t, tbl.VerifyBoard(s))
		if !s.Phase.Betting() {
			return s
		}
		a := Action{Kind: ActionCheck}
		if s.CurrentCallAmount > s.Players[s.CurrentTurn].RoundBet {
			a.Kind = ActionCall
		}
		require.NoError(t, tbl.Act(ctx, s.CurrentTurn, a))
	}
	t.Fatal("hand did not finish")
	return nil
}

func TestRoundsAfterPlayerBusts(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, tbl.AutoStart(ctx))
	require.NoError(t, tbl.Act(ctx, "carol", Action{Kind: ActionFold}))
	require.NoError(t, tbl.Act(ctx, "alice", Action{Kind: ActionFold}))
	require.NoError(t, st.Write(ctx, PlayersPath(testRoom), "carol", store.Document{"money": 0}))

	require.NoError(t, tbl.StartNewRound(ctx))
	s := mustLoad(t, tbl)
	assert.Equal(t, []string{"alice", "bob"}, s.Seats())
	assert.Equal(t, &TablePositions{Dealer: "bob", SmallBlind: "bob", BigBlind: "alice", DealerSeat: 2}, s.TablePositions)

	require.NoError(t, tbl.AutoStart(ctx))
	s = mustLoad(t, tbl)
	assert.Equal(t, 2, s.DealtSeats)
	seed := dealer.ParseSeed(s.DeckSeed)
	for i, id := range s.Eligible() {
		assert.NoError(t, dealer.VerifyHoleCards(seed, i, s.Players[id].Cards), id)
	}

	s = playOut(t, tbl)
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.Len(t, s.CommunityCards, 5)
	assert.True(t, s.WinnerDeclared)
	assert.Equal(t, 20000, s.ChipsInPlay())

	require.NoError(t, tbl.StartNewRound(ctx))
	s = mustLoad(t, tbl)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 2}, s.PlayerPositions)
	assert.Equal(t, &TablePositions{Dealer: "alice", SmallBlind: "alice", BigBlind: "bob", DealerSeat: 1}, s.TablePositions)
}

func TestButtonMovesPastDepartedDealer(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	require.NoError(t, tbl.AutoStart(ctx))
	for _, id := range []string{"carol", "dave", "alice"} {
		require.NoError(t, tbl.Act(ctx, id, Action{Kind: ActionFold}))
	}
	require.NoError(t, tbl.StartNewRound(ctx))
	require.Equal(t, "bob", mustLoad(t, tbl).TablePositions.Dealer)

	// bob leaves holding the button before the next hand.
	require.NoError(t, Leave(ctx, st, testRoom, "bob"))
	require.NoError(t, tbl.AutoStart(ctx))
	s := mustLoad(t, tbl)
	assert.Equal(t, &TablePositions{Dealer: "carol", SmallBlind: "carol", BigBlind: "dave", DealerSeat: 3}, s.TablePositions)
	assert.Equal(t, "alice", s.CurrentTurn)

	for _, id := range []string{"alice", "carol"} {
		require.NoError(t, tbl.Act(ctx, id, Action{Kind: ActionFold}))
	}
	require.Equal(t, PhaseEnded, mustLoad(t, tbl).Phase)

	// carol leaves between the end of the hand and the reset.
	require.NoError(t, Leave(ctx, st, testRoom, "carol"))
	require.NoError(t, tbl.StartNewRound(ctx))
	s = mustLoad(t, tbl)
	assert.Equal(t, &TablePositions{Dealer: "dave", SmallBlind: "dave", BigBlind: "alice", DealerSeat: 4}, s.TablePositions)
}

type denyGuard struct {
	NopGuard
	blocked []string
}

func (g *denyGuard) Authorize(_ context.Context, playerID string, _ *State, a Action) error {
	if a.Kind == ActionFold {
		return ErrRejected
	}
	return nil
}

func (g *denyGuard) Blocked(_ context.Context, playerID string, _ Action, reason string) {
	g.blocked = append(g.blocked, playerID+": "+reason)
}

func TestGuardScreensActions(t *testing.T) {
	t.Parallel()
	st, _ := newTestTable(t, "alice", "bob")
	ctx := context.Background()
	guard := &denyGuard{}
	tbl := NewTable(st, testRoom, testLogger(), WithGuard(guard))
	require.NoError(t, tbl.AutoStart(ctx))

	assert.ErrorIs(t, tbl.Act(ctx, "alice", Action{Kind: ActionFold}), ErrRejected)
	assert.Equal(t, StatusWaiting, mustLoad(t, tbl).Players["alice"].Status)

	_ = tbl.Act(ctx, "alice", Action{Kind: ActionRaise, Amount: 1})
	assert.Equal(t, []string{"alice: " + ReasonBelowMinimum}, guard.blocked)
}

func TestJoinAndLeave(t *testing.T) {
	t.Parallel()
	st, tbl := newTestTable(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	rules := DefaultRules()

	err := Join(ctx, st, testRoom, "erin", "Erin", rules)
	assert.ErrorIs(t, err, ErrTableFull)
	_, err = st.Read(ctx, PlayersPath(testRoom), "erin")
	assert.ErrorIs(t, err, store.ErrNotFound, "rejected player is not left behind")

	require.NoError(t, Leave(ctx, st, testRoom, "carol"))
	s := mustLoad(t, tbl)
	assert.NotContains(t, s.PlayerPositions, "carol")

	require.NoError(t, Join(ctx, st, testRoom, "erin", "Erin", rules))
	s = mustLoad(t, tbl)
	assert.Equal(t, 3, s.PlayerPositions["erin"], "newcomer takes the free seat")
	assert.Equal(t, "Erin", s.Players["erin"].Name)

	require.NoError(t, Join(ctx, st, testRoom, "erin", "Erin", rules), "joining twice is harmless")

	require.NoError(t, Leave(ctx, st, testRoom, "alice"))
	_, err = ReadRoom(ctx, st, testRoom)
	assert.ErrorIs(t, err, store.ErrNotFound, "host leaving closes the room")

	for _, id := range []string{"bob", "dave", "erin"} {
		require.NoError(t, Leave(ctx, st, testRoom, id))
	}
	_, err = st.Read(ctx, GamesPath, testRoom)
	assert.ErrorIs(t, err, store.ErrNotFound, "last player out tears the game down")
}

// deleteFailStore refuses every delete.
type deleteFailStore struct {
	*store.Memory
}

func (deleteFailStore) Delete(context.Context, string, string) error {
	return errors.New("store unavailable")
}

func TestJoinFullTableReportsFailedCleanup(t *testing.T) {
	t.Parallel()
	st, _ := newTestTable(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	err := Join(ctx, deleteFailStore{st}, testRoom, "erin", "Erin", DefaultRules())
	assert.ErrorIs(t, err, ErrTableFull)
	assert.ErrorContains(t, err, "store unavailable")
	assert.ErrorContains(t, err, "remove erin")
}

func TestAssignSeats(t *testing.T) {
	t.Parallel()

	seats, err := AssignSeats(map[string]int{"b": 2}, []string{"c", "a", "b"}, 4)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seats)

	_, err = AssignSeats(nil, []string{"a", "b", "c"}, 2)
	assert.ErrorIs(t, err, ErrTableFull)
}
