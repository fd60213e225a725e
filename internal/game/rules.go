package game

import (
	"fmt"
	"time"
)

// TieBreak selects how equal showdown categories are resolved.
type TieBreak string

const (
	// TieBreakCategory splits the pot between every hand in the best
	// category, as the table always has.
	TieBreakCategory TieBreak = "category"
	// TieBreakKickers orders hands within a category by their kickers and
	// only splits exact ties.
	TieBreakKickers TieBreak = "kickers"
)

// Rules are the table stakes and limits.
type Rules struct {
	SmallBlind     int
	BigBlind       int
	MinRaise       int
	StartingMoney  int
	MaxSeats       int
	AutoStartDelay time.Duration
	TieBreak       TieBreak
}

// DefaultRules returns the standard table.
func DefaultRules() Rules {
	return Rules{
		SmallBlind:     10,
		BigBlind:       20,
		MinRaise:       20,
		StartingMoney:  10000,
		MaxSeats:       4,
		AutoStartDelay: 3 * time.Second,
		TieBreak:       TieBreakCategory,
	}
}

// MinRaiseAmount is the smallest legal raise when toCall is outstanding:
// double the call, never below the floor.
func (r Rules) MinRaiseAmount(toCall int) int {
	return max(r.MinRaise, toCall*2)
}

// Validate checks the rules are playable.
func (r Rules) Validate() error {
	switch {
	case r.SmallBlind <= 0:
		return fmt.Errorf("small blind must be positive, got %d", r.SmallBlind)
	case r.BigBlind < r.SmallBlind:
		return fmt.Errorf("big blind %d below small blind %d", r.BigBlind, r.SmallBlind)
	case r.MinRaise <= 0:
		return fmt.Errorf("min raise must be positive, got %d", r.MinRaise)
	case r.StartingMoney < r.BigBlind:
		return fmt.Errorf("starting money %d below big blind %d", r.StartingMoney, r.BigBlind)
	case r.MaxSeats < 2 || r.MaxSeats > 4:
		return fmt.Errorf("max seats must be between 2 and 4, got %d", r.MaxSeats)
	case r.AutoStartDelay < 0:
		return fmt.Errorf("auto start delay must not be negative, got %s", r.AutoStartDelay)
	}
	switch r.TieBreak {
	case TieBreakCategory, TieBreakKickers:
	default:
		return fmt.Errorf("unknown tie break %q", r.TieBreak)
	}
	return nil
}
