package game

// ActiveSeats returns the non-folded, non-banned players in seat order. Once
// hole cards are out, players who sat down after the deal sit the round out.
func ActiveSeats(s *State) []string {
	var active []string
	for _, id := range s.Seats() {
		p := s.Players[id]
		if s.DealtSeats > 0 && len(p.Cards) == 0 {
			continue
		}
		if p.Active() {
			active = append(active, id)
		}
	}
	return active
}

// RoundComplete reports whether the street's betting is settled: every
// active player has acted and matched the current call amount.
func RoundComplete(s *State) bool {
	active := ActiveSeats(s)
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		p := s.Players[id]
		if !p.Status.Acted() || p.RoundBet != s.CurrentCallAmount {
			return false
		}
	}
	return true
}

// TurnOutcome says what happens once the current player's action lands.
type TurnOutcome int

const (
	// TurnNext passes the action to Turn.Next.
	TurnNext TurnOutcome = iota
	// TurnAdvancePhase closes the street.
	TurnAdvancePhase
	// TurnLastStanding ends the round: Turn.Winner is the only active player.
	TurnLastStanding
	// TurnNone means nobody is left to act.
	TurnNone
)

func (o TurnOutcome) String() string {
	return [...]string{"next", "advance-phase", "last-standing", "none"}[o]
}

// Turn is the result of NextTurn.
type Turn struct {
	Outcome TurnOutcome
	Next    string
	Winner  string
}

// NextTurn decides who acts after s.CurrentTurn.
//
// Seats are ordered by position and filtered to active players. A single
// active player wins outright. A settled street advances the phase. Otherwise
// the action moves to the next active seat, wrapping at the end. When the
// current player is no longer active (they just folded) the action moves to
// the first active seat after their position. Landing back on the current
// player closes the street.
func NextTurn(s *State) Turn {
	active := ActiveSeats(s)
	switch len(active) {
	case 0:
		return Turn{Outcome: TurnNone}
	case 1:
		return Turn{Outcome: TurnLastStanding, Winner: active[0]}
	}

	idx := -1
	for i, id := range active {
		if id == s.CurrentTurn {
			idx = i
			break
		}
	}

	if idx >= 0 && RoundComplete(s) {
		return Turn{Outcome: TurnAdvancePhase}
	}

	var next int
	switch {
	case idx >= 0:
		next = (idx + 1) % len(active)
	default:
		next = seatAfter(s, active, s.CurrentTurn)
	}

	if active[next] == s.CurrentTurn {
		return Turn{Outcome: TurnAdvancePhase}
	}
	return Turn{Outcome: TurnNext, Next: active[next]}
}

// seatAfter finds the first active seat positioned after id, wrapping to the
// first active seat. Unknown ids start from the top.
func seatAfter(s *State, active []string, id string) int {
	pos, ok := s.PlayerPositions[id]
	if !ok || id == "" {
		return 0
	}
	for i, a := range active {
		if s.PlayerPositions[a] > pos {
			return i
		}
	}
	return 0
}

// FirstToAct returns the first active seat, used when a new street opens.
func FirstToAct(s *State) string {
	active := ActiveSeats(s)
	if len(active) == 0 {
		return ""
	}
	return active[0]
}
