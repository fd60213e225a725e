package poker

import (
	"fmt"
	"strings"
)

// Suit identifies one of the four French suits.
type Suit uint8

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// Suits lists every suit in canonical deck order.
var Suits = [...]Suit{Hearts, Diamonds, Clubs, Spades}

var suitNames = [...]string{"hearts", "diamonds", "clubs", "spades"}

func (s Suit) String() string {
	if int(s) < len(suitNames) {
		return suitNames[s]
	}
	return "unknown"
}

// Symbol returns the unicode pip for the suit.
func (s Suit) Symbol() string {
	return [...]string{"♥", "♦", "♣", "♠"}[s&3]
}

// Red reports whether the suit is printed in red.
func (s Suit) Red() bool {
	return s == Hearts || s == Diamonds
}

// MarshalText encodes the suit by name so documents read "suit": "hearts".
func (s Suit) MarshalText() ([]byte, error) {
	if int(s) >= len(suitNames) {
		return nil, fmt.Errorf("invalid suit %d", s)
	}
	return []byte(suitNames[s]), nil
}

// UnmarshalText accepts the lowercase suit name.
func (s *Suit) UnmarshalText(b []byte) error {
	for i, name := range suitNames {
		if string(b) == name {
			*s = Suit(i)
			return nil
		}
	}
	return fmt.Errorf("invalid suit %q", string(b))
}

// Card values. Aces are high (14) except in the wheel straight.
const (
	Two   = 2
	Ten   = 10
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

// Card is an immutable playing card. Two cards are equal when suit and value match.
type Card struct {
	Suit  Suit `json:"suit"`
	Value int  `json:"value"`
}

// NewCard creates a card, panicking on values outside 2..14.
func NewCard(value int, suit Suit) Card {
	if value < Two || value > Ace || suit > Spades {
		panic(fmt.Sprintf("invalid card value=%d suit=%d", value, suit))
	}
	return Card{Suit: suit, Value: value}
}

// Valid reports whether the card is a member of a standard deck.
func (c Card) Valid() bool {
	return c.Value >= Two && c.Value <= Ace && c.Suit <= Spades
}

const valueChars = "23456789TJQKA"

// String renders the card as value plus suit pip, e.g. "A♠" or "10♥".
func (c Card) String() string {
	return ValueLabel(c.Value) + c.Suit.Symbol()
}

// Short renders the two-character form used in logs and tests, e.g. "As".
func (c Card) Short() string {
	if !c.Valid() {
		return "??"
	}
	return string(valueChars[c.Value-2]) + string("hdcs"[c.Suit])
}

// ValueLabel returns the face label for a value ("2".."10", "J", "Q", "K", "A").
func ValueLabel(v int) string {
	switch v {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return fmt.Sprintf("%d", v)
	}
}

// ParseCard parses the short form produced by Short ("As", "Td", "2c").
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	v := strings.IndexByte(valueChars, strings.ToUpper(s[:1])[0])
	if v < 0 {
		return Card{}, fmt.Errorf("invalid card value in %q", s)
	}
	suit := strings.IndexByte("hdcs", strings.ToLower(s[1:])[0])
	if suit < 0 {
		return Card{}, fmt.Errorf("invalid card suit in %q", s)
	}
	return Card{Suit: Suit(suit), Value: v + 2}, nil
}

// ParseCards parses a space-separated list of short card strings.
func ParseCards(s string) ([]Card, error) {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCards is ParseCards for fixtures; it panics on malformed input.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}

// FormatCards joins cards with spaces.
func FormatCards(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
