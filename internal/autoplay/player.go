package autoplay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/store"
)

// DefaultThinkTime keeps scripted players just outside the default rate
// limit.
const DefaultThinkTime = 600 * time.Millisecond

const maxAttempts = 3

// Player acts for a session whenever it is the session's turn.
type Player struct {
	session  *game.Session
	strategy Strategy
	clock    quartz.Clock
	logger   *log.Logger

	think time.Duration
	hands int

	states chan *game.State
}

// Option configures a Player.
type Option func(*Player)

// WithClock sets the clock used for think time.
func WithClock(c quartz.Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithThinkTime sets the pause before each action.
func WithThinkTime(d time.Duration) Option {
	return func(p *Player) { p.think = d }
}

// WithHandLimit makes Run return after n hands have ended.
func WithHandLimit(n int) Option {
	return func(p *Player) { p.hands = n }
}

// New attaches a Player to session. It must be called before the session
// is started.
func New(session *game.Session, strategy Strategy, logger *log.Logger, opts ...Option) *Player {
	p := &Player{
		session:  session,
		strategy: strategy,
		clock:    quartz.NewReal(),
		logger:   logger.WithPrefix("autoplay"),
		think:    DefaultThinkTime,
		states:   make(chan *game.State, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	session.OnChange(p.offer)
	return p
}

// offer keeps only the newest state so a slow player never blocks the
// session.
func (p *Player) offer(s *game.State) {
	for {
		select {
		case p.states <- s:
			return
		default:
		}
		select {
		case <-p.states:
		default:
		}
	}
}

// Run plays until ctx is cancelled, the hand limit is reached or the
// session ends. Being removed from the table after going broke is a normal
// finish.
func (p *Player) Run(ctx context.Context) error {
	var (
		lastKey  string
		ended    int
		lastDeck int64
		broke    bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.session.Done():
			err := p.session.Err()
			if broke && errors.Is(err, store.ErrNotFound) {
				p.logger.Info("Out of money, left the table")
				return nil
			}
			return err
		case s := <-p.states:
			uid := p.session.UID()
			if me, ok := s.Players[uid]; ok {
				broke = me.Money == 0 && s.Phase == game.PhaseEnded
			}

			if s.Phase == game.PhaseEnded && s.DeckVersion != lastDeck {
				lastDeck = s.DeckVersion
				ended++
				if p.hands > 0 && ended >= p.hands {
					p.logger.Info("Hand limit reached", "hands", ended)
					return nil
				}
			}

			key := turnKey(s, uid)
			if key == "" || key == lastKey {
				continue
			}
			lastKey = key
			if err := p.play(ctx, s, uid); err != nil {
				return err
			}
		}
	}
}

func (p *Player) play(ctx context.Context, s *game.State, uid string) error {
	rules := p.session.Table().Rules()
	valid := ValidActions(s, uid, rules)
	if len(valid) == 0 {
		return nil
	}
	d := p.strategy.Decide(s, uid, valid)

	for attempt := 1; ; attempt++ {
		if err := p.wait(ctx); err != nil {
			return nil
		}
		err := p.session.Act(ctx, d.Action)
		switch {
		case err == nil:
			p.logger.Debug("Acted", "player", uid, "action", d.Action, "reason", d.Reasoning)
			return nil
		case ctx.Err() != nil:
			return nil
		case !errors.Is(err, game.ErrRejected):
			return fmt.Errorf("act %s: %w", d.Action, err)
		case attempt == maxAttempts:
			p.logger.Warn("Giving up on turn", "player", uid, "action", d.Action, "error", err)
			return nil
		}

		// A rule rejection falls back to the safest legal move; anything
		// else, such as the rate limit, is retried as is.
		var rej *game.RejectionError
		if errors.As(err, &rej) {
			if rej.Reason == game.ReasonNotYourTurn || rej.Reason == game.ReasonNotBetting {
				return nil
			}
			d = CallStrategy{}.Decide(s, uid, valid)
		}
		p.logger.Info("Action rejected, retrying", "player", uid, "error", err, "next", d.Action)
	}
}

func (p *Player) wait(ctx context.Context) error {
	if p.think <= 0 {
		return ctx.Err()
	}
	t := p.clock.NewTimer(p.think, "autoplay", "think")
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// turnKey identifies one decision point for uid, or "" when uid is not to
// act.
func turnKey(s *game.State, uid string) string {
	if !s.Phase.Betting() || s.CurrentTurn != uid {
		return ""
	}
	me := s.Players[uid]
	return fmt.Sprintf("%d/%s/%d/%d/%s", s.DeckVersion, s.Phase, s.CurrentCallAmount, me.RoundBet, me.Status)
}
