package dealer

import (
	"errors"
	"fmt"

	"github.com/lox/holdemtable/poker"
)

// ErrIntegrityMismatch is returned when stored cards differ from a recomputed deal.
var ErrIntegrityMismatch = errors.New("dealer: integrity mismatch")

// VerifyCommunity recomputes the board from seed and checks it against the
// stored community cards. An empty board always verifies.
func VerifyCommunity(seed Seed, players int, community []poker.Card) error {
	if len(community) == 0 {
		return nil
	}
	deck := Shuffle(seed)
	if err := deck.Seek(Cursor(players, 0)); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityMismatch, err)
	}
	expected := deck.Deal(len(community))
	if expected == nil {
		return fmt.Errorf("%w: board of %d exceeds deck", ErrIntegrityMismatch, len(community))
	}
	for i := range community {
		if community[i] != expected[i] {
			return fmt.Errorf("%w: community card %d is %s, expected %s",
				ErrIntegrityMismatch, i, community[i].Short(), expected[i].Short())
		}
	}
	return nil
}

// VerifyHoleCards checks a seat's two private cards. seat is the zero-based
// index in the order hole cards were dealt.
func VerifyHoleCards(seed Seed, seat int, cards []poker.Card) error {
	if len(cards) != HoleCardCount {
		return fmt.Errorf("%w: seat %d holds %d cards", ErrIntegrityMismatch, seat, len(cards))
	}
	deck := Shuffle(seed)
	if err := deck.Seek(seat * HoleCardCount); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityMismatch, err)
	}
	expected := deck.Deal(HoleCardCount)
	if expected == nil {
		return fmt.Errorf("%w: seat %d beyond deck", ErrIntegrityMismatch, seat)
	}
	for i := range cards {
		if cards[i] != expected[i] {
			return fmt.Errorf("%w: seat %d card %d is %s, expected %s",
				ErrIntegrityMismatch, seat, i, cards[i].Short(), expected[i].Short())
		}
	}
	return nil
}
