package security

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/store"
)

var (
	// ErrRateLimited rejects an action that arrived too soon after the
	// participant's previous one.
	ErrRateLimited = fmt.Errorf("%w: acting too fast", game.ErrRejected)

	// ErrInconsistentState is returned by Sweep when the pot and the bets
	// disagree by more than the tolerance.
	ErrInconsistentState = errors.New("security: pot does not match bets")
)

// Config holds the monitor's thresholds.
type Config struct {
	RateLimit     time.Duration // minimum gap between one participant's actions
	LogBatch      int           // entries buffered before a write
	FlagAfter     int           // rapid actions tolerated before flagging
	BanAfter      int           // flags before a ban
	SweepInterval time.Duration
	PotTolerance  int
	MaxLogEntries int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RateLimit:     500 * time.Millisecond,
		LogBatch:      5,
		FlagAfter:     5,
		BanAfter:      3,
		SweepInterval: 30 * time.Second,
		PotTolerance:  1,
		MaxLogEntries: 1000,
	}
}

const maxAttempts = 3

type peer struct {
	last   time.Time
	rapid  int
	authed bool
}

// Monitor is the in-process game.Guard. One Monitor serves one room and may
// screen several participants.
type Monitor struct {
	store    store.Store
	room     string
	identity auth.Provider
	clock    quartz.Clock
	config   Config
	logger   *log.Logger

	mu      sync.Mutex
	peers   map[string]*peer
	pending []Entry
}

var _ game.Guard = (*Monitor)(nil)

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock for rate limiting and sweeps.
func WithClock(c quartz.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Monitor) { m.config = cfg }
}

// New returns a Monitor for room. identity is the local participant's
// identity provider; actions are only authorized for the signed-in player.
func New(st store.Store, room string, identity auth.Provider, logger *log.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		store:    st,
		room:     room,
		identity: identity,
		clock:    quartz.NewReal(),
		config:   DefaultConfig(),
		logger:   logger.WithPrefix("security").With("room", room),
		peers:    make(map[string]*peer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize creates security_logs/{room} if it does not exist.
func (m *Monitor) Initialize(ctx context.Context) error {
	doc, err := store.Encode(Log{
		RoomID:               m.room,
		Created:              m.clock.Now().UnixMilli(),
		Logs:                 []Entry{},
		SuspiciousActivities: map[string]Suspicion{},
		BannedPlayers:        []string{},
	})
	if err != nil {
		return err
	}
	err = m.store.Batch().
		Check(game.SecurityLogsPath, m.room, store.Precondition{Absent: true}).
		Replace(game.SecurityLogsPath, m.room, doc).
		Commit(ctx)
	switch {
	case err == nil:
		m.logger.Debug("Security log created")
	case errors.Is(err, store.ErrPreconditionFailed):
	default:
		return fmt.Errorf("initialize security log: %w", err)
	}
	return nil
}

// Connect initializes the log and records playerID's arrival. The rate limit
// clock for the player starts now.
func (m *Monitor) Connect(ctx context.Context, playerID string) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.peer(playerID).last = m.clock.Now()
	m.mu.Unlock()
	m.record(ctx, playerID, EntryConnect, nil)
	return nil
}

func (m *Monitor) peer(id string) *peer {
	p, ok := m.peers[id]
	if !ok {
		p = &peer{}
		m.peers[id] = p
	}
	return p
}

// Authorize checks playerID's identity, seat and ban status, then applies
// the rate limit. Actions out of turn are left for the rules to reject.
func (m *Monitor) Authorize(ctx context.Context, playerID string, s *game.State, a game.Action) error {
	if err := m.verify(ctx, playerID, s); err != nil {
		return err
	}
	if s.CurrentTurn != playerID {
		return nil
	}
	return m.Throttle(ctx, playerID, a)
}

func (m *Monitor) verify(ctx context.Context, playerID string, s *game.State) error {
	p, seated := s.Players[playerID]
	_, err := game.ReadRoom(ctx, m.store, m.room)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	roomExists := err == nil
	banned, err := m.IsBanned(ctx, playerID)
	if err != nil {
		return err
	}

	err = auth.Check(m.identity.Current(), auth.Membership{
		PlayerID:     playerID,
		PlayerExists: seated,
		RoomExists:   roomExists,
		Banned:       banned || p.Status == game.StatusBanned,
	})
	if err != nil {
		m.record(ctx, playerID, EntryAuthFail, map[string]any{"reason": err.Error()})
		return err
	}

	m.mu.Lock()
	pr := m.peer(playerID)
	first := !pr.authed
	pr.authed = true
	m.mu.Unlock()
	if first {
		m.record(ctx, playerID, EntryAuthSuccess, nil)
	}
	return nil
}

// Throttle enforces the minimum gap between playerID's actions. Every
// rapid action counts against the player; past FlagAfter each one raises a
// flag.
func (m *Monitor) Throttle(ctx context.Context, playerID string, a game.Action) error {
	now := m.clock.Now()

	m.mu.Lock()
	p := m.peer(playerID)
	since := now.Sub(p.last)
	limited := !p.last.IsZero() && since < m.config.RateLimit
	if limited {
		p.rapid++
	} else {
		p.last = now
	}
	rapid := p.rapid
	m.mu.Unlock()

	if !limited {
		m.record(ctx, playerID, EntryGameAction, map[string]any{
			"action": string(a.Kind),
			"amount": a.Amount,
		})
		return nil
	}

	m.logger.Info("Action rate limited", "player", playerID, "action", a, "since", since, "count", rapid)
	m.record(ctx, playerID, EntryRateLimit, map[string]any{
		"action":              string(a.Kind),
		"timeSinceLastAction": since.Milliseconds(),
	})
	if rapid > m.config.FlagAfter {
		if err := m.Flag(ctx, playerID, "Too many rapid actions"); err != nil {
			m.logger.Error("Failed to flag player", "player", playerID, "error", err)
		}
	}
	return ErrRateLimited
}

// Blocked records an action the rules rejected.
func (m *Monitor) Blocked(ctx context.Context, playerID string, a game.Action, reason string) {
	data := map[string]any{"action": string(a.Kind), "reason": reason}
	if a.Kind == game.ActionRaise {
		data["attempted"] = a.Amount
	}
	m.record(ctx, playerID, EntryActionBlocked, data)
}

// Integrity records a board that does not match its seed.
func (m *Monitor) Integrity(ctx context.Context, playerID string, err error) {
	m.logger.Warn("Integrity mismatch", "player", playerID, "error", err)
	m.record(ctx, playerID, EntryIntegrityMismatch, map[string]any{"error": err.Error()})
}

// IsBanned reports whether playerID is on the room's ban list.
func (m *Monitor) IsBanned(ctx context.Context, playerID string) (bool, error) {
	doc, err := m.store.Read(ctx, game.SecurityLogsPath, m.room)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read security log: %w", err)
	}
	var l Log
	if err := store.Decode(doc, &l); err != nil {
		return false, err
	}
	return slices.Contains(l.BannedPlayers, playerID), nil
}

// Flag records suspicious activity against playerID and bans the player
// once the flag count reaches BanAfter.
func (m *Monitor) Flag(ctx context.Context, playerID, reason string) error {
	now := m.clock.Now().UnixMilli()
	var count int
	err := m.update(ctx, "suspiciousActivities", func(l *Log) ([]store.Op, error) {
		acts := maps.Clone(l.SuspiciousActivities)
		if acts == nil {
			acts = map[string]Suspicion{}
		}
		count = acts[playerID].Count + 1
		acts[playerID] = Suspicion{Reason: reason, Timestamp: now, Count: count}
		return []store.Op{m.logWrite(store.Document{"suspiciousActivities": acts})}, nil
	})
	if err != nil {
		return fmt.Errorf("flag %s: %w", playerID, err)
	}
	m.logger.Warn("Suspicious activity flagged", "player", playerID, "reason", reason, "count", count)
	if count >= m.config.BanAfter {
		return m.Ban(ctx, playerID)
	}
	return nil
}

// Ban adds playerID to the ban list and marks its seat banned.
func (m *Monitor) Ban(ctx context.Context, playerID string) error {
	_, err := m.store.Read(ctx, game.PlayersPath(m.room), playerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("ban %s: %w", playerID, err)
	}
	seated := err == nil

	var already bool
	err = m.update(ctx, "bannedPlayers", func(l *Log) ([]store.Op, error) {
		if slices.Contains(l.BannedPlayers, playerID) {
			already = true
			return nil, nil
		}
		banned := append(slices.Clone(l.BannedPlayers), playerID)
		ops := []store.Op{m.logWrite(store.Document{"bannedPlayers": banned})}
		if seated {
			ops = append(ops, store.Op{
				Kind:   store.OpWrite,
				Path:   game.PlayersPath(m.room),
				ID:     playerID,
				Fields: store.Document{"status": string(game.StatusBanned)},
			})
		}
		return ops, nil
	})
	if err != nil {
		return fmt.Errorf("ban %s: %w", playerID, err)
	}
	if !already {
		m.logger.Warn("Player banned", "player", playerID)
	}
	return nil
}

func (m *Monitor) logWrite(fields store.Document) store.Op {
	return store.Op{Kind: store.OpWrite, Path: game.SecurityLogsPath, ID: m.room, Fields: fields}
}

// update runs a guarded read-modify-write on the security log, retrying when
// another participant changed field in between.
func (m *Monitor) update(ctx context.Context, field string, plan func(*Log) ([]store.Op, error)) error {
	var err error
	for range maxAttempts {
		err = store.Guarded(ctx, m.store, game.SecurityLogsPath, m.room, field, func(doc store.Document) ([]store.Op, error) {
			var l Log
			if err := store.Decode(doc, &l); err != nil {
				return nil, err
			}
			return plan(&l)
		})
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return err
		}
		m.logger.Debug("Security log changed underneath, retrying", "field", field)
	}
	return err
}

// record buffers an entry and writes the buffer once it is full or the entry
// is a failure or block.
func (m *Monitor) record(ctx context.Context, playerID, kind string, data map[string]any) {
	e := newEntry(m.clock.Now(), playerID, kind, data)
	m.logger.Debug("Security event", "player", playerID, "type", kind)

	m.mu.Lock()
	m.pending = append(m.pending, e)
	flush := len(m.pending) >= m.config.LogBatch || e.urgent()
	m.mu.Unlock()

	if flush {
		if err := m.Flush(ctx); err != nil {
			m.logger.Error("Failed to write security log", "error", err)
		}
	}
}

// Pending returns the number of buffered entries.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush appends buffered entries to the shared log, keeping the newest
// MaxLogEntries. Entries stay buffered if the write fails.
func (m *Monitor) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	err := m.update(ctx, "logs", func(l *Log) ([]store.Op, error) {
		logs := trim(append(slices.Clone(l.Logs), batch...), m.config.MaxLogEntries)
		return []store.Op{m.logWrite(store.Document{"logs": logs})}, nil
	})
	if err != nil {
		m.mu.Lock()
		m.pending = append(batch, m.pending...)
		m.mu.Unlock()
		return fmt.Errorf("flush security log: %w", err)
	}
	return nil
}

// Sweep compares the pot with the sum of every player's bet. A difference
// beyond PotTolerance is logged and returned as ErrInconsistentState; the
// state is not corrected.
func (m *Monitor) Sweep(ctx context.Context) error {
	doc, err := m.store.Read(ctx, game.GamesPath, m.room)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	players, err := m.store.Query(ctx, game.PlayersPath(m.room))
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	s, err := game.DecodeState(m.room, doc, players)
	if err != nil {
		return err
	}

	total := s.BetTotal()
	diff := total - s.Pot
	if diff < 0 {
		diff = -diff
	}
	if diff <= m.config.PotTolerance {
		return nil
	}

	m.logger.Warn("Pot does not match bets", "bets", total, "pot", s.Pot)
	m.record(ctx, m.self(), EntryInconsistentState, map[string]any{
		"type":            "pot_mismatch",
		"calculatedTotal": total,
		"reportedPot":     s.Pot,
	})
	return fmt.Errorf("%w: bets %d, pot %d", ErrInconsistentState, total, s.Pot)
}

func (m *Monitor) self() string {
	if id := m.identity.Current(); id != nil {
		return id.UID
	}
	return ""
}

// Run sweeps every SweepInterval until ctx is done, then flushes whatever
// is still buffered.
func (m *Monitor) Run(ctx context.Context) error {
	w := m.clock.TickerFunc(ctx, m.config.SweepInterval, func() error {
		err := m.Sweep(ctx)
		if err != nil && !errors.Is(err, ErrInconsistentState) && ctx.Err() == nil {
			m.logger.Error("Consistency sweep failed", "error", err)
		}
		return nil
	}, "security", "sweep")

	err := w.Wait()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if ferr := m.Flush(flushCtx); ferr != nil {
		m.logger.Error("Failed to flush security log", "error", ferr)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
