package poker

import (
	"fmt"

	ph "github.com/paulhankin/poker"
)

// Strength scores a seven-card pool with full kicker ordering; higher is
// stronger. Evaluate only reports the category, Strength separates two hands
// that share one.
func Strength(cards []Card) (int16, error) {
	if len(cards) != 7 {
		return 0, fmt.Errorf("%w: strength needs exactly 7, got %d", ErrTooFewCards, len(cards))
	}
	var hand [7]ph.Card
	for i, c := range cards {
		pc, err := ph.MakeCard(phSuit(c.Suit), phRank(c.Value))
		if err != nil {
			return 0, fmt.Errorf("convert %s: %w", c.Short(), err)
		}
		hand[i] = pc
	}
	return ph.Eval7(&hand), nil
}

// CompareStrength returns 1 when a beats b, -1 when b beats a and 0 on an exact tie.
func CompareStrength(a, b []Card) (int, error) {
	sa, err := Strength(a)
	if err != nil {
		return 0, err
	}
	sb, err := Strength(b)
	if err != nil {
		return 0, err
	}
	switch {
	case sa > sb:
		return 1, nil
	case sa < sb:
		return -1, nil
	default:
		return 0, nil
	}
}

// paulhankin/poker ranks the ace as 1.
func phSuit(s Suit) ph.Suit {
	switch s {
	case Clubs:
		return ph.Club
	case Diamonds:
		return ph.Diamond
	case Hearts:
		return ph.Heart
	default:
		return ph.Spade
	}
}

func phRank(v int) ph.Rank {
	if v == Ace {
		return ph.Rank(1)
	}
	return ph.Rank(v)
}
