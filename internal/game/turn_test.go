package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lox/holdemtable/poker"
)

// threeHanded builds a betting-phase state with seats 1..3 for a, b, c.
func threeHanded(turn string, call int, players ...Player) *State {
	s := &State{
		Room:              "room",
		Phase:             PhaseFlop,
		CurrentTurn:       turn,
		CurrentCallAmount: call,
		PlayerPositions:   map[string]int{},
		Players:           map[string]Player{},
	}
	for i, p := range players {
		s.PlayerPositions[p.ID] = i + 1
		s.Players[p.ID] = p
	}
	return s
}

func waiting(id string) Player {
	return Player{ID: id, Name: id, Money: 1000, Status: StatusWaiting}
}

func TestNextTurn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		state   *State
		outcome TurnOutcome
		next    string
		winner  string
	}{
		{
			name:    "middle seat passes to the next",
			state:   threeHanded("b", 0, waiting("a"), waiting("b"), waiting("c")),
			outcome: TurnNext,
			next:    "c",
		},
		{
			name:    "last seat wraps to the first",
			state:   threeHanded("c", 0, waiting("a"), waiting("b"), waiting("c")),
			outcome: TurnNext,
			next:    "a",
		},
		{
			name: "folded seats are skipped",
			state: threeHanded("a", 0,
				waiting("a"),
				Player{ID: "b", Money: 1000, Status: StatusFolded},
				waiting("c")),
			outcome: TurnNext,
			next:    "c",
		},
		{
			name: "folding player passes to the seat after them",
			state: threeHanded("b", 0,
				waiting("a"),
				Player{ID: "b", Money: 1000, Status: StatusFolded},
				waiting("c")),
			outcome: TurnNext,
			next:    "c",
		},
		{
			name: "settled street advances the phase",
			state: threeHanded("b", 20,
				Player{ID: "a", RoundBet: 20, Status: StatusRaised},
				Player{ID: "b", RoundBet: 20, Status: StatusCalled},
				Player{ID: "c", RoundBet: 20, Status: StatusCalled}),
			outcome: TurnAdvancePhase,
		},
		{
			name: "settled street on the wrap advances the phase",
			state: threeHanded("c", 20,
				Player{ID: "a", RoundBet: 20, Status: StatusCalled},
				Player{ID: "b", RoundBet: 20, Status: StatusChecked},
				Player{ID: "c", RoundBet: 20, Status: StatusCalled}),
			outcome: TurnAdvancePhase,
		},
		{
			name: "unmatched raise keeps the street open",
			state: threeHanded("c", 40,
				Player{ID: "a", RoundBet: 20, Status: StatusCalled},
				Player{ID: "b", RoundBet: 40, Status: StatusRaised},
				Player{ID: "c", RoundBet: 40, Status: StatusCalled}),
			outcome: TurnNext,
			next:    "a",
		},
		{
			name: "one player left wins",
			state: threeHanded("b", 0,
				Player{ID: "a", Status: StatusFolded},
				Player{ID: "b", Status: StatusFolded},
				waiting("c")),
			outcome: TurnLastStanding,
			winner:  "c",
		},
		{
			name: "banned players are out",
			state: threeHanded("a", 0,
				waiting("a"),
				Player{ID: "b", Status: StatusBanned},
				Player{ID: "c", Status: StatusFolded}),
			outcome: TurnLastStanding,
			winner:  "a",
		},
		{
			name:    "empty turn starts at the first seat",
			state:   threeHanded("", 0, waiting("a"), waiting("b"), waiting("c")),
			outcome: TurnNext,
			next:    "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextTurn(tt.state)
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.next, got.Next)
			assert.Equal(t, tt.winner, got.Winner)
		})
	}
}

func TestRoundComplete(t *testing.T) {
	t.Parallel()

	s := threeHanded("a", 20,
		Player{ID: "a", RoundBet: 20, Status: StatusCalled},
		Player{ID: "b", RoundBet: 20, Status: StatusWaiting},
		Player{ID: "c", RoundBet: 20, Status: StatusCalled})
	assert.False(t, RoundComplete(s), "a player who has not acted keeps the round open")

	b := s.Players["b"]
	b.Status = StatusChecked
	s.Players["b"] = b
	assert.True(t, RoundComplete(s))

	c := s.Players["c"]
	c.Status = StatusFolded
	c.RoundBet = 0
	s.Players["c"] = c
	assert.True(t, RoundComplete(s), "folded players are ignored")
}

func TestActiveSeatsSkipsLateJoiners(t *testing.T) {
	t.Parallel()

	s := threeHanded("a", 0, waiting("a"), waiting("b"), waiting("c"))
	s.DealtSeats = 2
	for _, id := range []string{"a", "b"} {
		p := s.Players[id]
		p.Cards = []poker.Card{{Suit: poker.Hearts, Value: 2}, {Suit: poker.Hearts, Value: 3}}
		s.Players[id] = p
	}

	assert.Equal(t, []string{"a", "b"}, ActiveSeats(s))
	assert.Equal(t, 2, s.BoardCursorSeats())
}

func TestSeatsOrderByPosition(t *testing.T) {
	t.Parallel()

	s := &State{
		PlayerPositions: map[string]int{"zed": 1, "amy": 3, "bo": 2},
		Players: map[string]Player{
			"zed": {ID: "zed"}, "amy": {ID: "amy"}, "bo": {ID: "bo"},
		},
	}
	assert.Equal(t, []string{"zed", "bo", "amy"}, s.Seats())
	assert.Equal(t, "zed", FirstToAct(s))
}
