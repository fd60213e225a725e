package game

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lox/holdemtable/poker"
)

// ErrNotEnoughPlayers is returned when a round cannot start.
var ErrNotEnoughPlayers = errors.New("game: not enough players")

// Blinds is the forced-bet plan for the start of a round.
type Blinds struct {
	Positions  TablePositions
	SmallBlind int
	BigBlind   int
	FirstToAct string
}

// PlanBlinds works out the button, the blinds and the first player to act
// purely from seat order and the previous button. The dealer posts the small
// blind and the next seat the big blind; action opens two seats after the
// dealer, wrapping heads-up. A button whose player is gone passes to the next
// occupied seat. Blinds are capped at what a player has.
func PlanBlinds(s *State, rules Rules) (Blinds, error) {
	seats := s.Eligible()
	n := len(seats)
	if n < 2 {
		return Blinds{}, fmt.Errorf("%w: %d seated", ErrNotEnoughPlayers, n)
	}

	dealer := 0
	if tp := s.TablePositions; tp != nil {
		if i := slices.Index(seats, tp.Dealer); i >= 0 {
			dealer = i
		} else if tp.DealerSeat > 0 {
			dealer = nextSeat(seats, s.PlayerPositions, tp.DealerSeat-1)
		}
	}
	sb := seats[dealer]
	bb := seats[(dealer+1)%n]

	return Blinds{
		Positions: TablePositions{
			Dealer:     sb,
			SmallBlind: sb,
			BigBlind:   bb,
			DealerSeat: s.PlayerPositions[sb],
		},
		SmallBlind: min(rules.SmallBlind, s.Players[sb].Money),
		BigBlind:   min(rules.BigBlind, s.Players[bb].Money),
		FirstToAct: seats[(dealer+2)%n],
	}, nil
}

// RotatePositions moves the button one seat clockwise for the next round.
// seats are the players continuing, in seat order. The previous dealer's
// seat comes from positions, or from prev.DealerSeat once that player has
// left. It returns nil when there is no previous button or fewer than two
// players remain.
func RotatePositions(seats []string, positions map[string]int, prev *TablePositions) *TablePositions {
	if prev == nil || len(seats) < 2 {
		return nil
	}
	dealerPos, ok := positions[prev.Dealer]
	if !ok {
		dealerPos = prev.DealerSeat
	}
	if dealerPos <= 0 {
		return nil
	}
	next := nextSeat(seats, positions, dealerPos)
	return &TablePositions{
		Dealer:     seats[next],
		SmallBlind: seats[next],
		BigBlind:   seats[(next+1)%len(seats)],
		DealerSeat: positions[seats[next]],
	}
}

// nextSeat returns the index in seats of the first player seated after seat,
// wrapping to the lowest seat.
func nextSeat(seats []string, positions map[string]int, seat int) int {
	for i, id := range seats {
		if positions[id] > seat {
			return i
		}
	}
	return 0
}

// SplitAmounts divides pot evenly between n winners. The remainder is not
// awarded to anyone.
func SplitAmounts(pot, n int) (share, remainder int) {
	if n <= 0 {
		return 0, pot
	}
	share = pot / n
	return share, pot - share*n
}

// HandOutcome is one showdown participant's evaluated hand.
type HandOutcome struct {
	PlayerID string
	Result   poker.HandResult
}

// RankShowdown evaluates every active player holding two cards against the
// board and returns their outcomes in seat order plus the winning ids. With
// TieBreakCategory every hand in the best category wins; with
// TieBreakKickers hands in that category are further ordered by kickers.
func RankShowdown(s *State, tieBreak TieBreak) ([]HandOutcome, []string, error) {
	var outcomes []HandOutcome
	pools := map[string][]poker.Card{}
	for _, id := range ActiveSeats(s) {
		p := s.Players[id]
		if len(p.Cards) != 2 {
			continue
		}
		pool := append(slices.Clone(p.Cards), s.CommunityCards...)
		res, err := poker.Evaluate(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate %s: %w", id, err)
		}
		outcomes = append(outcomes, HandOutcome{PlayerID: id, Result: res})
		pools[id] = pool
	}

	best := poker.HandRank(-1)
	var winners []string
	for _, o := range outcomes {
		switch {
		case o.Result.Rank > best:
			best = o.Result.Rank
			winners = []string{o.PlayerID}
		case o.Result.Rank == best:
			winners = append(winners, o.PlayerID)
		}
	}

	if tieBreak == TieBreakKickers && len(winners) > 1 && len(s.CommunityCards) == 5 {
		refined, err := byKickers(winners, pools)
		if err != nil {
			return nil, nil, err
		}
		winners = refined
	}
	return outcomes, winners, nil
}

func byKickers(ids []string, pools map[string][]poker.Card) ([]string, error) {
	top := []string{ids[0]}
	for _, id := range ids[1:] {
		cmp, err := poker.CompareStrength(pools[id], pools[top[0]])
		if err != nil {
			return nil, err
		}
		switch {
		case cmp > 0:
			top = []string{id}
		case cmp == 0:
			top = append(top, id)
		}
	}
	return top, nil
}
