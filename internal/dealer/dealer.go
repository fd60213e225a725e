// Package dealer deals a round's cards from a shared seed.
//
// The deck for a round is a pure function of its seed, and the position of
// the next card is a pure function of public facts (seated hands and cards
// already on the board). Any participant can therefore perform or check a
// deal and land on the same cards.
package dealer

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemtable/poker"
)

// HoleCardCount is the number of private cards each seat receives.
const HoleCardCount = 2

// ErrDeckExhausted is returned when a deal asks for more cards than remain.
var ErrDeckExhausted = errors.New("dealer: deck exhausted")

// Shuffle rebuilds the permuted deck for seed with the cursor at zero.
func Shuffle(seed Seed) *poker.Deck {
	rng, _ := NewXorShift(seed)
	deck := poker.NewDeck()
	deck.Shuffle(rng)
	return deck
}

// Cursor is the deck position of the next community card: every seated hand
// took two cards off the top, then the board consumed revealed more.
func Cursor(players, revealed int) int {
	return players*HoleCardCount + revealed
}

// Dealer draws fresh seeds and deals from them.
type Dealer struct {
	random RandomSource
	logger *log.Logger
}

// New returns a Dealer. A nil random source falls back to crypto/rand.
func New(random RandomSource, logger *log.Logger) *Dealer {
	if random == nil {
		random = CryptoSource{}
	}
	return &Dealer{
		random: random,
		logger: logger.WithPrefix("dealer"),
	}
}

// Reseed draws a new seed for the next round.
func (d *Dealer) Reseed() (Seed, error) {
	seed, err := GenerateSeed(d.random)
	if err != nil {
		return Seed{}, err
	}
	d.logger.Debug("New deck seed", "seed", seed.String())
	return seed, nil
}

func (d *Dealer) shuffle(seed Seed) *poker.Deck {
	rng, fellBack := NewXorShift(seed)
	if fellBack {
		d.logger.Warn("Seed has zero words, using fallback constants", "seed", seed.String())
	}
	deck := poker.NewDeck()
	deck.Shuffle(rng)
	return deck
}

// HoleCards deals two cards to each seat in the given order, consecutive
// pairs from the top of the deck.
func (d *Dealer) HoleCards(seed Seed, seats []string) (map[string][]poker.Card, error) {
	deck := d.shuffle(seed)
	hands := make(map[string][]poker.Card, len(seats))
	for _, id := range seats {
		cards := deck.Deal(HoleCardCount)
		if cards == nil {
			return nil, fmt.Errorf("hole cards for %s: %w", id, ErrDeckExhausted)
		}
		hands[id] = cards
	}
	return hands, nil
}

// Community returns the board after dealing n more cards onto existing. The
// cursor is recomputed from players and len(existing), so two clients racing
// to perform the same deal produce the same board.
func (d *Dealer) Community(seed Seed, players int, existing []poker.Card, n int) ([]poker.Card, error) {
	deck := d.shuffle(seed)
	if err := deck.Seek(Cursor(players, len(existing))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeckExhausted, err)
	}
	cards := deck.Deal(n)
	if cards == nil {
		return nil, fmt.Errorf("community %d after %d: %w", n, len(existing), ErrDeckExhausted)
	}
	board := make([]poker.Card, 0, len(existing)+n)
	board = append(board, existing...)
	return append(board, cards...), nil
}
