// Package autoplay drives sessions with scripted strategies, for
// simulations and for filling empty seats.
package autoplay

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/lox/holdemtable/internal/game"
)

// ValidAction is a move the rules would accept right now. For raises the
// amounts bound the chips added on top of the player's round bet.
type ValidAction struct {
	Kind      game.ActionKind
	MinAmount int
	MaxAmount int
}

// ValidActions lists what playerID may do in s. It is empty when it is not
// their turn.
func ValidActions(s *game.State, playerID string, rules game.Rules) []ValidAction {
	if !s.Phase.Betting() || s.CurrentTurn != playerID {
		return nil
	}
	p, ok := s.Players[playerID]
	if !ok || !p.Active() {
		return nil
	}

	toCall := max(s.CurrentCallAmount-p.RoundBet, 0)
	actions := []ValidAction{{Kind: game.ActionFold}}
	switch {
	case toCall == 0:
		actions = append(actions, ValidAction{Kind: game.ActionCheck})
	case toCall <= p.Money:
		actions = append(actions, ValidAction{Kind: game.ActionCall, MinAmount: toCall, MaxAmount: toCall})
	}
	if minRaise := rules.MinRaiseAmount(toCall); minRaise <= p.Money {
		actions = append(actions, ValidAction{Kind: game.ActionRaise, MinAmount: minRaise, MaxAmount: p.Money})
	}
	return actions
}

// Decision is what a strategy chose and why.
type Decision struct {
	Action    game.Action
	Reasoning string
}

// Strategy picks one of the valid actions.
type Strategy interface {
	Decide(s *game.State, playerID string, valid []ValidAction) Decision
}

// Strategies lists the names accepted by NewStrategy.
var Strategies = []string{"call", "random", "aggressive"}

// NewStrategy returns the named strategy. rng is used by the ones that
// randomise.
func NewStrategy(name string, rng *rand.Rand) (Strategy, error) {
	switch strings.ToLower(name) {
	case "call":
		return CallStrategy{}, nil
	case "random":
		return &RandomStrategy{rng: rng}, nil
	case "aggressive":
		return &AggressiveStrategy{rng: rng}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (want one of %s)", name, strings.Join(Strategies, ", "))
}

// CallStrategy checks or calls every street and folds only when it cannot
// afford the call.
type CallStrategy struct{}

func (CallStrategy) Decide(_ *game.State, _ string, valid []ValidAction) Decision {
	if has(valid, game.ActionCheck) {
		return Decision{Action: game.Action{Kind: game.ActionCheck}, Reasoning: "call-bot checking"}
	}
	if has(valid, game.ActionCall) {
		return Decision{Action: game.Action{Kind: game.ActionCall}, Reasoning: "call-bot calling"}
	}
	return Decision{Action: game.Action{Kind: game.ActionFold}, Reasoning: "call-bot forced fold"}
}

// RandomStrategy picks uniformly among the valid actions, raising a random
// amount between the minimum and its stack.
type RandomStrategy struct {
	rng *rand.Rand
}

func (r *RandomStrategy) Decide(_ *game.State, _ string, valid []ValidAction) Decision {
	if len(valid) == 0 {
		return Decision{Action: game.Action{Kind: game.ActionFold}, Reasoning: "rand-bot no valid actions"}
	}
	va := valid[r.rng.IntN(len(valid))]
	a := game.Action{Kind: va.Kind}
	if va.Kind == game.ActionRaise {
		a.Amount = va.MinAmount
		if va.MaxAmount > va.MinAmount {
			a.Amount += r.rng.IntN(va.MaxAmount - va.MinAmount + 1)
		}
	}
	return Decision{Action: a, Reasoning: "rand-bot random action"}
}

// AggressiveStrategy raises the minimum once per street when it can, calls
// most bets and rarely folds.
type AggressiveStrategy struct {
	rng *rand.Rand
}

func (m *AggressiveStrategy) Decide(s *game.State, playerID string, valid []ValidAction) Decision {
	me := s.Players[playerID]
	raise, canRaise := find(valid, game.ActionRaise)
	if canRaise && me.Status != game.StatusRaised && m.rng.Float64() < 0.85 {
		return Decision{Action: game.Action{Kind: game.ActionRaise, Amount: raise.MinAmount}, Reasoning: "maniac raise"}
	}
	if has(valid, game.ActionCheck) {
		return Decision{Action: game.Action{Kind: game.ActionCheck}, Reasoning: "maniac checking"}
	}
	if has(valid, game.ActionCall) && m.rng.Float64() < 0.9 {
		return Decision{Action: game.Action{Kind: game.ActionCall}, Reasoning: "maniac call"}
	}
	return Decision{Action: game.Action{Kind: game.ActionFold}, Reasoning: "maniac fold"}
}

func find(valid []ValidAction, kind game.ActionKind) (ValidAction, bool) {
	for _, va := range valid {
		if va.Kind == kind {
			return va, true
		}
	}
	return ValidAction{}, false
}

func has(valid []ValidAction, kind game.ActionKind) bool {
	_, ok := find(valid, kind)
	return ok
}
