package game

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/store"
)

// ErrNotHost is returned when a host-only operation is attempted by another
// participant.
var ErrNotHost = errors.New("game: not the host")

// ErrSessionClosed is returned by Wait after Close.
var ErrSessionClosed = errors.New("game: session closed")

// Session is one participant's view of a table. It keeps a mirror of the
// shared documents refreshed only by subscription callbacks and processes
// changes one at a time on its own goroutine. The host's session also
// performs the table's housekeeping: auto-start, lost-race recovery and
// recreating missing documents.
type Session struct {
	table    *Table
	store    store.Store
	room     string
	identity auth.Provider
	clock    quartz.Clock
	logger   *log.Logger

	nextRoundDelay time.Duration

	mu        sync.Mutex
	uid       string
	host      bool
	game      store.Document
	players   map[string]store.Document
	gameSeen  bool
	roomGone  bool
	mirror    *State
	hash      uint64
	seenSelf  bool
	verified  int
	listeners []func(*State)
	autoStart *quartz.Timer
	nextRound *quartz.Timer

	kick   chan struct{}
	done   chan struct{}
	err    error
	once   sync.Once
	cancel context.CancelFunc
	unsubs []func()
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNextRoundDelay makes the host start a new round this long after one
// ends. Zero leaves new rounds to StartNewRound.
func WithNextRoundDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.nextRoundDelay = d }
}

// NewSession returns a session at table for whoever identity reports.
func NewSession(table *Table, identity auth.Provider, logger *log.Logger, opts ...SessionOption) *Session {
	s := &Session{
		table:    table,
		store:    table.store,
		room:     table.room,
		identity: identity,
		clock:    table.clock,
		logger:   logger.WithPrefix("session").With("room", table.room),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to receive every distinct mirror. It must be called
// before Start. fn runs on the session goroutine and may call Act.
func (s *Session) OnChange(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start resolves the identity, determines whether it hosts the room, and
// subscribes to the room, the game and its players.
func (s *Session) Start(ctx context.Context) error {
	id := s.identity.Current()
	if id == nil {
		return fmt.Errorf("%w: not signed in", auth.ErrAuthDenied)
	}
	room, err := ReadRoom(ctx, s.store, s.room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.uid = id.UID
	s.host = room.HostUID == id.UID
	s.logger = s.logger.With("player", id.UID)
	s.mu.Unlock()

	if err := s.table.guard.Connect(ctx, id.UID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	unwatch := s.identity.Watch(func(next *auth.Identity) {
		if next == nil || next.UID != id.UID {
			s.fail(fmt.Errorf("%w: identity changed", auth.ErrAuthDenied))
		}
	})
	s.unsubs = append(s.unsubs, unwatch)

	onError := func(err error) {
		s.fail(fmt.Errorf("subscription: %w", err))
	}
	subs := []func() (store.Unsubscribe, error){
		func() (store.Unsubscribe, error) {
			return s.store.Subscribe(sctx, RoomsPath, s.room, s.onRoom, onError)
		},
		func() (store.Unsubscribe, error) {
			return s.store.SubscribeCollection(sctx, PlayersPath(s.room), s.onPlayers, onError)
		},
		func() (store.Unsubscribe, error) {
			return s.store.Subscribe(sctx, GamesPath, s.room, s.onGame, onError)
		},
	}
	for _, sub := range subs {
		unsub, err := sub()
		if err != nil {
			s.fail(err)
			return err
		}
		s.unsubs = append(s.unsubs, unsub)
	}

	go s.loop(sctx)
	s.logger.Info("Session started", "host", s.host)
	return nil
}

// UID returns the participant's identity.
func (s *Session) UID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// IsHost reports whether this participant hosts the room.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Table returns the table the session plays at.
func (s *Session) Table() *Table {
	return s.table
}

// Mirror returns a copy of the last observed state, or nil before the game
// document has been seen.
func (s *Session) Mirror() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Clone()
}

// Act submits an action as this participant.
func (s *Session) Act(ctx context.Context, a Action) error {
	return s.table.Act(ctx, s.UID(), a)
}

// StartNewRound resets an ended table. Only the host may do this.
func (s *Session) StartNewRound(ctx context.Context) error {
	if !s.IsHost() {
		return ErrNotHost
	}
	return s.table.StartNewRound(ctx)
}

// Leave removes this participant from the room and closes the session.
func (s *Session) Leave(ctx context.Context) error {
	uid := s.UID()
	s.Close()
	return Leave(ctx, s.store, s.room, uid)
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil if it is running or was closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session ends.
func (s *Session) Wait() error {
	<-s.done
	if err := s.Err(); err != nil {
		return err
	}
	return ErrSessionClosed
}

// Close ends the session.
func (s *Session) Close() {
	s.fail(nil)
}

func (s *Session) fail(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.stopTimersLocked()
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		if s.cancel != nil {
			s.cancel()
		}
		if err != nil {
			s.logger.Error("Session ended", "error", err)
		} else {
			s.logger.Debug("Session closed")
		}
		close(s.done)
	})
}

func (s *Session) stopTimersLocked() {
	if s.autoStart != nil {
		s.autoStart.Stop()
		s.autoStart = nil
	}
	if s.nextRound != nil {
		s.nextRound.Stop()
		s.nextRound = nil
	}
}

func (s *Session) poke() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Session) onRoom(snap store.Snapshot) {
	s.mu.Lock()
	s.roomGone = !snap.Exists
	s.mu.Unlock()
	s.poke()
}

func (s *Session) onGame(snap store.Snapshot) {
	s.mu.Lock()
	s.gameSeen = true
	if snap.Exists {
		s.game = snap.Doc
	} else {
		s.game = nil
	}
	s.mu.Unlock()
	s.poke()
}

func (s *Session) onPlayers(docs map[string]store.Document) {
	s.mu.Lock()
	s.players = docs
	s.mu.Unlock()
	s.poke()
}

func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.kick:
		}
		state, changed, err := s.refresh()
		if err != nil {
			s.logger.Error("Failed to decode game", "error", err)
			continue
		}
		if changed && state != nil {
			s.notify(state)
		}
		s.reconcile(ctx, state)
	}
}

// refresh rebuilds the mirror from the latest documents and reports whether
// it differs from the previous one.
func (s *Session) refresh() (*State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		changed := s.mirror != nil
		s.mirror, s.hash = nil, 0
		return nil, changed, nil
	}
	state, err := DecodeState(s.room, s.game, s.players)
	if err != nil {
		return nil, false, err
	}
	hash, err := hashstructure.Hash(state, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint state: %w", err)
	}
	if s.mirror != nil && hash == s.hash {
		return s.mirror.Clone(), false, nil
	}
	s.mirror, s.hash = state, hash
	return state.Clone(), true, nil
}

func (s *Session) notify(state *State) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(state.Clone())
	}
}

// reconcile reacts to the latest mirror. Every participant checks the board
// and its own standing; the host also keeps the table moving.
func (s *Session) reconcile(ctx context.Context, state *State) {
	s.mu.Lock()
	uid, host, roomGone, gameSeen := s.uid, s.host, s.roomGone, s.gameSeen
	s.mu.Unlock()

	if roomGone {
		if !host {
			s.fail(fmt.Errorf("room %s: %w", s.room, store.ErrNotFound))
			return
		}
		s.logger.Warn("Room missing, recreating")
		if err := CreateRoom(ctx, s.store, s.room, uid, s.clock.Now().UnixMilli()); err != nil {
			s.logger.Error("Failed to recreate room", "error", err)
			return
		}
		if err := CreateGame(ctx, s.store, s.room, s.table.rules); err != nil {
			s.logger.Error("Failed to recreate game", "error", err)
		}
		return
	}

	if state == nil {
		if !gameSeen {
			return
		}
		if !host {
			s.fail(fmt.Errorf("game %s: %w", s.room, store.ErrNotFound))
			return
		}
		s.logger.Warn("Game missing, recreating")
		if err := CreateGame(ctx, s.store, s.room, s.table.rules); err != nil {
			s.logger.Error("Failed to recreate game", "error", err)
		}
		return
	}

	if !s.checkSelf(state, uid) {
		return
	}
	s.checkBoard(ctx, state, uid)
	if host {
		s.housekeep(ctx, state)
	}
}

// checkSelf ends the session when this participant has been banned or
// removed from the table.
func (s *Session) checkSelf(state *State, uid string) bool {
	p, ok := state.Players[uid]
	s.mu.Lock()
	seen := s.seenSelf
	if ok {
		s.seenSelf = true
	}
	s.mu.Unlock()

	switch {
	case ok && p.Status == StatusBanned:
		s.fail(fmt.Errorf("%w: player is banned", auth.ErrAuthDenied))
		return false
	case !ok && seen:
		s.fail(fmt.Errorf("player %s: %w", uid, store.ErrNotFound))
		return false
	}
	return true
}

func (s *Session) checkBoard(ctx context.Context, state *State, uid string) {
	s.mu.Lock()
	already := s.verified == len(state.CommunityCards)
	s.verified = len(state.CommunityCards)
	s.mu.Unlock()
	if already || len(state.CommunityCards) == 0 {
		return
	}
	if err := s.table.VerifyBoard(state); err != nil {
		s.logger.Warn("Board does not match seed", "error", err)
		s.table.guard.Integrity(ctx, uid, err)
	}
}

func (s *Session) housekeep(ctx context.Context, state *State) {
	s.scheduleTimers(ctx, state)

	var err error
	switch {
	case state.Phase.Betting():
		active := ActiveSeats(state)
		if len(active) <= 1 || !slices.Contains(active, state.CurrentTurn) {
			err = s.table.AdvanceTurn(ctx, state.Clone())
		} else if RoundComplete(state) {
			err = s.table.AdvancePhase(ctx, state.Clone())
		}
	case state.Phase == PhaseShowdown && !state.WinnerDeclared:
		err = s.table.AdvancePhase(ctx, state.Clone())
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Housekeeping failed", "phase", state.Phase, "error", err)
	}
}

// scheduleTimers arms auto-start on a waiting table with two or more
// eligible players, and the next round on an ended one.
func (s *Session) scheduleTimers(ctx context.Context, state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := state.Phase == PhaseWaiting && len(state.Eligible()) >= 2
	switch {
	case ready && s.autoStart == nil:
		delay := s.table.rules.AutoStartDelay
		s.logger.Info("Auto-starting", "delay", delay, "players", len(state.Eligible()))
		s.autoStart = s.clock.AfterFunc(delay, func() { s.runAutoStart(ctx) }, "session", "autostart")
	case !ready && s.autoStart != nil:
		s.autoStart.Stop()
		s.autoStart = nil
	}

	if state.Phase == PhaseEnded && s.nextRoundDelay > 0 && s.nextRound == nil {
		s.nextRound = s.clock.AfterFunc(s.nextRoundDelay, func() { s.runNextRound(ctx) }, "session", "nextround")
	}
}

func (s *Session) runAutoStart(ctx context.Context) {
	err := s.table.AutoStart(ctx)
	s.mu.Lock()
	s.autoStart = nil
	s.mu.Unlock()
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrNotEnoughPlayers):
		s.logger.Info("Not enough players to start")
	default:
		s.logger.Error("Auto-start failed", "error", err)
	}
	s.poke()
}

func (s *Session) runNextRound(ctx context.Context) {
	err := s.table.StartNewRound(ctx)
	s.mu.Lock()
	s.nextRound = nil
	s.mu.Unlock()
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrRoundInProgress):
		s.logger.Debug("New round already under way")
	default:
		s.logger.Error("Failed to start new round", "error", err)
	}
	s.poke()
}
