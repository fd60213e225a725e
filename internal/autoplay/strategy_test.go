package autoplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/randutil"
)

// turnState puts alice to act facing toCall with money behind.
func turnState(toCall, money int) *game.State {
	return &game.State{
		Phase:             game.PhaseFlop,
		CurrentTurn:       "alice",
		CurrentCallAmount: toCall,
		PlayerPositions:   map[string]int{"alice": 1, "bob": 2},
		Players: map[string]game.Player{
			"alice": {ID: "alice", Money: money, Status: game.StatusWaiting},
			"bob":   {ID: "bob", Money: 1000, RoundBet: toCall, Status: game.StatusRaised},
		},
	}
}

func kinds(valid []ValidAction) []game.ActionKind {
	out := make([]game.ActionKind, len(valid))
	for i, va := range valid {
		out[i] = va.Kind
	}
	return out
}

func TestValidActions(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()

	tests := []struct {
		name  string
		state *game.State
		want  []ValidAction
	}{
		{
			name:  "nothing to call",
			state: turnState(0, 1000),
			want: []ValidAction{
				{Kind: game.ActionFold},
				{Kind: game.ActionCheck},
				{Kind: game.ActionRaise, MinAmount: 20, MaxAmount: 1000},
			},
		},
		{
			name:  "facing a bet",
			state: turnState(50, 1000),
			want: []ValidAction{
				{Kind: game.ActionFold},
				{Kind: game.ActionCall, MinAmount: 50, MaxAmount: 50},
				{Kind: game.ActionRaise, MinAmount: 100, MaxAmount: 1000},
			},
		},
		{
			name:  "can call but not raise",
			state: turnState(50, 80),
			want: []ValidAction{
				{Kind: game.ActionFold},
				{Kind: game.ActionCall, MinAmount: 50, MaxAmount: 50},
			},
		},
		{
			name:  "cannot afford the call",
			state: turnState(50, 30),
			want:  []ValidAction{{Kind: game.ActionFold}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ValidActions(tt.state, "alice", rules)
			assert.Equal(t, tt.want, got)
			for _, va := range got {
				a := game.Action{Kind: va.Kind, Amount: va.MinAmount}
				if va.Kind != game.ActionRaise {
					a.Amount = 0
				}
				assert.NoError(t, game.Validate(tt.state, "alice", a, rules), va.Kind)
			}
		})
	}

	t.Run("not our turn", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ValidActions(turnState(0, 1000), "bob", rules))
	})

	t.Run("between rounds", func(t *testing.T) {
		t.Parallel()
		s := turnState(0, 1000)
		s.Phase = game.PhaseEnded
		assert.Empty(t, ValidActions(s, "alice", rules))
	})
}

func TestCallStrategy(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()

	tests := []struct {
		toCall, money int
		want          game.ActionKind
	}{
		{0, 1000, game.ActionCheck},
		{50, 1000, game.ActionCall},
		{50, 30, game.ActionFold},
	}
	for _, tt := range tests {
		s := turnState(tt.toCall, tt.money)
		d := CallStrategy{}.Decide(s, "alice", ValidActions(s, "alice", rules))
		assert.Equal(t, tt.want, d.Action.Kind, "toCall=%d money=%d", tt.toCall, tt.money)
	}
}

func TestRandomStrategyStaysLegal(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()
	strategy, err := NewStrategy("random", randutil.New(1))
	require.NoError(t, err)

	seen := map[game.ActionKind]bool{}
	for i := range 200 {
		s := turnState((i%3)*20, 500)
		d := strategy.Decide(s, "alice", ValidActions(s, "alice", rules))
		require.NoError(t, game.Validate(s, "alice", d.Action, rules), d.Action.String())
		seen[d.Action.Kind] = true
	}
	assert.Len(t, seen, 4, "every kind of action comes up")
}

func TestAggressiveStrategy(t *testing.T) {
	t.Parallel()
	rules := game.DefaultRules()
	strategy, err := NewStrategy("Aggressive", randutil.New(2))
	require.NoError(t, err)

	raises := 0
	for range 100 {
		s := turnState(20, 1000)
		d := strategy.Decide(s, "alice", ValidActions(s, "alice", rules))
		require.NoError(t, game.Validate(s, "alice", d.Action, rules))
		if d.Action.Kind == game.ActionRaise {
			raises++
			assert.Equal(t, 40, d.Action.Amount)
		}
	}
	assert.Greater(t, raises, 60)

	s := turnState(20, 1000)
	alice := s.Players["alice"]
	alice.Status = game.StatusRaised
	s.Players["alice"] = alice
	for range 20 {
		d := strategy.Decide(s, "alice", ValidActions(s, "alice", rules))
		assert.NotEqual(t, game.ActionRaise, d.Action.Kind, "raises once per street")
	}
}

func TestNewStrategyUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewStrategy("bluff", randutil.New(1))
	assert.ErrorContains(t, err, "call, random, aggressive")
}
