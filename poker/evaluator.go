package poker

import (
	"errors"
	"fmt"
	"math/bits"
)

// HandRank orders the ten hand categories from weakest to strongest.
type HandRank int

const (
	HighCard HandRank = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns the category name.
func (r HandRank) String() string {
	switch r {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandResult is the outcome of evaluating a card pool.
type HandResult struct {
	Rank HandRank `json:"rank"`
	Name string   `json:"name"`
}

// ErrTooFewCards is returned when a pool cannot form a five-card hand.
var ErrTooFewCards = errors.New("poker: at least 5 cards required")

// Evaluate ranks a pool of five to seven cards (two hole cards plus the board)
// into one of the ten categories. Categories are tested strongest first so a
// pool matching several (trips plus a pair, a flush containing trips) always
// reports the highest. Ties within a category are not ordered here.
func Evaluate(cards []Card) (HandResult, error) {
	if len(cards) < 5 {
		return HandResult{Rank: HighCard, Name: "Invalid Hand"}, ErrTooFewCards
	}

	var suitMasks [4]uint16
	var counts [Ace + 1]int
	for _, c := range cards {
		if !c.Valid() {
			return HandResult{Rank: HighCard, Name: "Invalid Hand"}, fmt.Errorf("poker: invalid card %+v", c)
		}
		suitMasks[c.Suit] |= 1 << c.Value
		counts[c.Value]++
	}
	rankMask := suitMasks[0] | suitMasks[1] | suitMasks[2] | suitMasks[3]

	flushSuit := -1
	for s, mask := range suitMasks {
		if bits.OnesCount16(mask) >= 5 {
			flushSuit = s
			break
		}
	}

	if flushSuit >= 0 {
		if high := straightHigh(suitMasks[flushSuit]); high > 0 {
			if high == Ace {
				return HandResult{Rank: RoyalFlush, Name: "Royal Flush"}, nil
			}
			return HandResult{Rank: StraightFlush, Name: valueName(high) + "-High Straight Flush"}, nil
		}
	}

	var quads int
	var trips, pairs []int
	for v := Ace; v >= Two; v-- {
		switch counts[v] {
		case 4:
			if quads == 0 {
				quads = v
			}
		case 3:
			trips = append(trips, v)
		case 2:
			pairs = append(pairs, v)
		}
	}

	if quads > 0 {
		return HandResult{Rank: FourOfAKind, Name: "Four of a Kind: " + pluralName(quads)}, nil
	}

	if len(trips) > 0 && (len(pairs) > 0 || len(trips) > 1) {
		over := 0
		if len(pairs) > 0 {
			over = pairs[0]
		}
		if len(trips) > 1 && trips[1] > over {
			over = trips[1]
		}
		return HandResult{Rank: FullHouse, Name: "Full House: " + pluralName(trips[0]) + " over " + pluralName(over)}, nil
	}

	if flushSuit >= 0 {
		high := highestValue(suitMasks[flushSuit])
		return HandResult{Rank: Flush, Name: valueName(high) + "-High Flush"}, nil
	}

	if high := straightHigh(rankMask); high > 0 {
		return HandResult{Rank: Straight, Name: valueName(high) + "-High Straight"}, nil
	}

	if len(trips) > 0 {
		return HandResult{Rank: ThreeOfAKind, Name: "Three of a Kind: " + pluralName(trips[0])}, nil
	}

	if len(pairs) >= 2 {
		return HandResult{Rank: TwoPair, Name: "Two Pair: " + pluralName(pairs[0]) + " and " + pluralName(pairs[1])}, nil
	}

	if len(pairs) == 1 {
		return HandResult{Rank: Pair, Name: "Pair of " + pluralName(pairs[0])}, nil
	}

	return HandResult{Rank: HighCard, Name: "High Card: " + valueName(highestValue(rankMask))}, nil
}

// straightHigh returns the top value of the best five-value run in mask, or 0.
// The ace also counts low so A-2-3-4-5 is a five-high straight.
func straightHigh(mask uint16) int {
	if mask&(1<<Ace) != 0 {
		mask |= 1 << 1
	}
	for high := Ace; high >= 5; high-- {
		run := uint16(0x1f) << (high - 4)
		if mask&run == run {
			return high
		}
	}
	return 0
}

func highestValue(mask uint16) int {
	return bits.Len16(mask) - 1
}

var valueNames = map[int]string{
	2: "Two", 3: "Three", 4: "Four", 5: "Five", 6: "Six", 7: "Seven", 8: "Eight",
	9: "Nine", 10: "Ten", 11: "Jack", 12: "Queen", 13: "King", 14: "Ace",
}

func valueName(v int) string {
	if name, ok := valueNames[v]; ok {
		return name
	}
	return fmt.Sprintf("%d", v)
}

func pluralName(v int) string {
	if v == 6 {
		return "Sixes"
	}
	return valueName(v) + "s"
}
