package game

import (
	"errors"
	"fmt"
)

// ActionKind is what a player does on their turn.
type ActionKind string

const (
	ActionCall  ActionKind = "call"
	ActionCheck ActionKind = "check"
	ActionRaise ActionKind = "raise"
	ActionFold  ActionKind = "fold"
)

// Action is a proposed move. Amount is only read for raises and is added on
// top of the player's round bet.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Amount int        `json:"amount,omitempty"`
}

func (a Action) String() string {
	if a.Kind == ActionRaise {
		return fmt.Sprintf("raise %d", a.Amount)
	}
	return string(a.Kind)
}

var (
	// ErrRejected marks an action that breaks a game rule. Nothing is written.
	ErrRejected = errors.New("game: action rejected")

	// ErrStaleWrite marks a guarded write that lost a race to another
	// participant. Callers treat it as a no-op.
	ErrStaleWrite = errors.New("game: stale write")
)

// RejectionError carries the rule an action broke.
type RejectionError struct {
	Action ActionKind
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

func reject(kind ActionKind, reason string) error {
	return &RejectionError{Action: kind, Reason: reason}
}

// Rejection reasons.
const (
	ReasonNotBetting    = "Game not in betting phase"
	ReasonNotYourTurn   = "Not player's turn"
	ReasonNotSeated     = "Player not in game"
	ReasonFolded        = "Player has folded"
	ReasonNotEnough     = "Not enough money"
	ReasonInvalidRaise  = "Invalid raise amount"
	ReasonBelowMinimum  = "Raise below minimum"
	ReasonFacingBet     = "Cannot check facing a bet"
	ReasonUnknownAction = "Unknown action"
)

// Validate checks a against the rules without mutating anything.
func Validate(s *State, playerID string, a Action, rules Rules) error {
	if !s.Phase.Betting() {
		return reject(a.Kind, ReasonNotBetting)
	}
	if s.CurrentTurn != playerID {
		return reject(a.Kind, ReasonNotYourTurn)
	}
	p, ok := s.Players[playerID]
	if !ok {
		return reject(a.Kind, ReasonNotSeated)
	}
	if !p.Active() {
		return reject(a.Kind, ReasonFolded)
	}

	toCall := s.CurrentCallAmount - p.RoundBet
	switch a.Kind {
	case ActionCall:
		if toCall > p.Money {
			return reject(a.Kind, ReasonNotEnough)
		}
	case ActionCheck:
		if toCall > 0 {
			return reject(a.Kind, ReasonFacingBet)
		}
	case ActionRaise:
		switch {
		case a.Amount <= 0:
			return reject(a.Kind, ReasonInvalidRaise)
		case a.Amount < rules.MinRaiseAmount(toCall):
			return reject(a.Kind, ReasonBelowMinimum)
		case a.Amount > p.Money:
			return reject(a.Kind, ReasonNotEnough)
		}
	case ActionFold:
	default:
		return reject(a.Kind, ReasonUnknownAction)
	}
	return nil
}

// Effect is the write an accepted action produces.
type Effect struct {
	Player     Player
	Pot        int
	CallAmount int
}

// Apply validates a and returns the resulting player record, pot and call
// amount. s is not modified.
func Apply(s *State, playerID string, a Action, rules Rules) (Effect, error) {
	if err := Validate(s, playerID, a, rules); err != nil {
		return Effect{}, err
	}
	p := s.Players[playerID]
	eff := Effect{Pot: s.Pot, CallAmount: s.CurrentCallAmount}

	toCall := s.CurrentCallAmount - p.RoundBet
	switch a.Kind {
	case ActionCall, ActionCheck:
		toCall = max(toCall, 0)
		p.Money -= toCall
		p.Bet += toCall
		p.RoundBet += toCall
		eff.Pot += toCall
		if toCall == 0 {
			p.Status = StatusChecked
		} else {
			p.Status = StatusCalled
		}
	case ActionRaise:
		prev := p.RoundBet
		p.Money -= a.Amount
		p.Bet += a.Amount
		p.RoundBet += a.Amount
		p.Status = StatusRaised
		eff.Pot += a.Amount
		eff.CallAmount = prev + a.Amount
	case ActionFold:
		p.Status = StatusFolded
	}
	eff.Player = p
	return eff, nil
}

// ApplyTo folds the effect into s as if it had been written.
func (e Effect) ApplyTo(s *State) {
	s.Players[e.Player.ID] = e.Player
	s.Pot = e.Pot
	s.CurrentCallAmount = e.CallAmount
}
