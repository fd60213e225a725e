package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemtable/internal/dealer"
	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/poker"
)

// ErrRoundInProgress is returned when a new round is requested before the
// current one has ended.
var ErrRoundInProgress = errors.New("game: round in progress")

// Table reads the shared state for one room and commits moves against it.
// A Table holds no game state of its own; every operation starts from a
// fresh read or a State the caller just observed.
type Table struct {
	store  store.Store
	room   string
	rules  Rules
	dealer *dealer.Dealer
	guard  Guard
	clock  quartz.Clock
	logger *log.Logger
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithRules sets the stakes.
func WithRules(r Rules) TableOption {
	return func(t *Table) { t.rules = r }
}

// WithDealer sets the card dealer.
func WithDealer(d *dealer.Dealer) TableOption {
	return func(t *Table) { t.dealer = d }
}

// WithGuard installs an action screen.
func WithGuard(g Guard) TableOption {
	return func(t *Table) {
		if g != nil {
			t.guard = g
		}
	}
}

// WithClock sets the clock used for deck versions and timers.
func WithClock(c quartz.Clock) TableOption {
	return func(t *Table) { t.clock = c }
}

// NewTable returns a Table for room.
func NewTable(st store.Store, room string, logger *log.Logger, opts ...TableOption) *Table {
	t := &Table{
		store:  st,
		room:   room,
		rules:  DefaultRules(),
		guard:  NopGuard{},
		clock:  quartz.NewReal(),
		logger: logger.WithPrefix("table").With("room", room),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dealer == nil {
		t.dealer = dealer.New(nil, logger)
	}
	return t
}

// Room returns the room id.
func (t *Table) Room() string {
	return t.room
}

// Rules returns the stakes.
func (t *Table) Rules() Rules {
	return t.rules
}

// Load reads the game document and its players.
func (t *Table) Load(ctx context.Context) (*State, error) {
	game, err := t.store.Read(ctx, GamesPath, t.room)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", t.room, err)
	}
	players, err := t.store.Query(ctx, PlayersPath(t.room))
	if err != nil {
		return nil, fmt.Errorf("load players %s: %w", t.room, err)
	}
	return DecodeState(t.room, game, players)
}

// stale turns a lost guarded write into a no-op.
func (t *Table) stale(what string, err error) error {
	if errors.Is(err, store.ErrPreconditionFailed) {
		t.logger.Debug("Guarded write lost race", "op", what, "error", err)
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Act validates and applies playerID's action, then moves the game on.
// Rule violations return a *RejectionError; losing a race to another writer
// returns nil.
func (t *Table) Act(ctx context.Context, playerID string, a Action) error {
	s, err := t.Load(ctx)
	if err != nil {
		return err
	}
	if err := t.guard.Authorize(ctx, playerID, s, a); err != nil {
		t.logger.Info("Action blocked", "player", playerID, "action", a, "error", err)
		return err
	}

	eff, err := Apply(s, playerID, a, t.rules)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			t.guard.Blocked(ctx, playerID, a, rej.Reason)
			t.logger.Info("Action rejected", "player", playerID, "action", a, "reason", rej.Reason)
		}
		return err
	}

	p := eff.Player
	err = t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "currentTurn", Value: playerID}).
		Write(PlayersPath(t.room), playerID, store.Document{
			"money":    p.Money,
			"bet":      p.Bet,
			"roundBet": p.RoundBet,
			"status":   string(p.Status),
		}).
		Write(GamesPath, t.room, store.Document{
			"pot":               eff.Pot,
			"currentCallAmount": eff.CallAmount,
		}).
		Commit(ctx)
	if err != nil {
		return t.stale("act", err)
	}
	eff.ApplyTo(s)
	t.logger.Info("Player acted", "player", playerID, "action", a, "pot", s.Pot, "call", s.CurrentCallAmount)

	return t.AdvanceTurn(ctx, s)
}

// AdvanceTurn passes the action on from s.CurrentTurn, closing the street or
// ending the round when NextTurn says so.
func (t *Table) AdvanceTurn(ctx context.Context, s *State) error {
	turn := NextTurn(s)
	switch turn.Outcome {
	case TurnLastStanding:
		return t.DeclareWinner(ctx, s, turn.Winner, "Last player standing")
	case TurnAdvancePhase:
		return t.AdvancePhase(ctx, s)
	case TurnNone:
		t.logger.Warn("No active players left to act")
		return nil
	}

	err := t.store.WriteIf(ctx, GamesPath, t.room,
		store.Precondition{Field: "currentTurn", Value: s.CurrentTurn},
		store.Document{"currentTurn": turn.Next})
	if err != nil {
		return t.stale("advance turn", err)
	}
	t.logger.Debug("Turn advanced", "from", s.CurrentTurn, "to", turn.Next)
	s.CurrentTurn = turn.Next
	return nil
}

// AdvancePhase closes the current street and deals the next. Leaving
// waiting deals hole cards from a fresh seed; preflop, flop and turn deal
// community cards from the stored seed; river goes to showdown.
func (t *Table) AdvancePhase(ctx context.Context, s *State) error {
	switch s.Phase {
	case PhaseRiver:
		return t.Showdown(ctx, s)
	case PhaseShowdown:
		return t.settle(ctx, s)
	case PhaseEnded:
		return nil
	}
	if s.Phase == PhaseWaiting {
		return t.enterPreflop(ctx, s)
	}

	next := s.Phase.Next()
	board, err := t.dealer.Community(dealer.ParseSeed(s.DeckSeed), s.BoardCursorSeats(),
		s.CommunityCards, next.BoardSize()-s.Phase.BoardSize())
	if err != nil {
		return fmt.Errorf("deal %s: %w", next, err)
	}
	active := ActiveSeats(s)
	first := FirstToAct(s)

	b := t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "phase", Value: string(s.Phase)})
	for _, id := range active {
		b.Write(PlayersPath(t.room), id, store.Document{
			"roundBet": 0,
			"status":   string(StatusWaiting),
		})
	}
	b.Write(GamesPath, t.room, store.Document{
		"phase":             string(next),
		"communityCards":    board,
		"currentCallAmount": 0,
		"currentTurn":       first,
	})
	if err := b.Commit(ctx); err != nil {
		return t.stale("advance phase", err)
	}

	for _, id := range active {
		p := s.Players[id]
		p.RoundBet = 0
		p.Status = StatusWaiting
		s.Players[id] = p
	}
	prev := s.Phase
	s.Phase = next
	s.CommunityCards = board
	s.CurrentCallAmount = 0
	s.CurrentTurn = first
	t.logger.Info("Phase advanced", "from", prev, "to", next, "turn", first, "board", poker.FormatCards(board))
	return nil
}

// enterPreflop draws a fresh seed and deals two cards to every eligible seat
// in seat order. Blinds, call amount and the first turn posted by AutoStart
// are left as they are.
func (t *Table) enterPreflop(ctx context.Context, s *State) error {
	seed, err := t.dealer.Reseed()
	if err != nil {
		return fmt.Errorf("reseed: %w", err)
	}
	seats := s.Eligible()
	hands, err := t.dealer.HoleCards(seed, seats)
	if err != nil {
		return fmt.Errorf("deal hole cards: %w", err)
	}
	turn := s.CurrentTurn
	if turn == "" {
		turn = FirstToAct(s)
	}
	version := t.nextDeckVersion(s.DeckVersion)

	b := t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "phase", Value: string(PhaseWaiting)})
	for _, id := range seats {
		b.Write(PlayersPath(t.room), id, store.Document{
			"cards":    hands[id],
			"revealed": false,
			"handName": nil,
		})
	}
	b.Write(GamesPath, t.room, store.Document{
		"phase":          string(PhasePreflop),
		"deckSeed":       seed.String(),
		"deckVersion":    version,
		"dealtSeats":     len(seats),
		"communityCards": []any{},
		"currentTurn":    turn,
	})
	if err := b.Commit(ctx); err != nil {
		return t.stale("deal hole cards", err)
	}

	for _, id := range seats {
		p := s.Players[id]
		p.Cards = hands[id]
		p.Revealed = false
		p.HandName = ""
		s.Players[id] = p
	}
	s.Phase = PhasePreflop
	s.DeckSeed = seed.String()
	s.DeckVersion = version
	s.DealtSeats = len(seats)
	s.CommunityCards = nil
	s.CurrentTurn = turn
	t.logger.Info("Hole cards dealt", "seats", len(seats), "deck_version", version, "turn", turn)
	return nil
}

// nextDeckVersion stamps a new seed. It never repeats or goes backwards even
// if the clock does.
func (t *Table) nextDeckVersion(prev int64) int64 {
	return max(prev+1, t.clock.Now().UnixMilli())
}

// VerifyBoard recomputes the community cards from the stored seed.
func (t *Table) VerifyBoard(s *State) error {
	if len(s.CommunityCards) == 0 || s.DeckSeed == "" {
		return nil
	}
	return dealer.VerifyCommunity(dealer.ParseSeed(s.DeckSeed), s.BoardCursorSeats(), s.CommunityCards)
}
