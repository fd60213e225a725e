package poker

import "fmt"

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// Source produces floats in [0,1). The deck never draws randomness on its own.
type Source interface {
	Float64() float64
}

// Deck represents a standard 52-card deck with a dealing cursor.
// Dealing advances the cursor; the underlying array is never shrunk.
type Deck struct {
	cards [DeckSize]Card // Fixed size array
	next  int
}

// NewDeck returns a deck in canonical suit-major order: hearts 2..A,
// diamonds 2..A, clubs 2..A, spades 2..A.
func NewDeck() *Deck {
	d := &Deck{}
	i := 0
	for _, suit := range Suits {
		for value := Two; value <= Ace; value++ {
			d.cards[i] = Card{Suit: suit, Value: value}
			i++
		}
	}
	return d
}

// Shuffle permutes the deck with Fisher-Yates driven by rng and resets the cursor.
// The loop runs from the last index down to 1 drawing j = floor(rng*(i+1)); any
// party replaying the same rng stream lands on the same permutation.
func (d *Deck) Shuffle(rng Source) {
	d.next = 0
	for i := len(d.cards) - 1; i > 0; i-- {
		j := int(rng.Float64() * float64(i+1))
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal returns the next n cards and advances the cursor. It returns nil when
// fewer than n cards remain.
func (d *Deck) Deal(n int) []Card {
	if n < 0 || d.next+n > len(d.cards) {
		return nil
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards
}

// Seek moves the cursor to an absolute position, as if pos cards had been dealt.
func (d *Deck) Seek(pos int) error {
	if pos < 0 || pos > len(d.cards) {
		return fmt.Errorf("cursor %d out of range", pos)
	}
	d.next = pos
	return nil
}

// Dealt returns the cursor position.
func (d *Deck) Dealt() int {
	return d.next
}

// Remaining returns the number of cards left after the cursor.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// At returns the card at an absolute deck position regardless of the cursor.
func (d *Deck) At(i int) Card {
	return d.cards[i]
}

// Cards returns a copy of the full deck order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards[:])
	return out
}
