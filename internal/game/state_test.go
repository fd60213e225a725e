package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChipsInPlay(t *testing.T) {
	t.Parallel()

	players := func(a, b int) map[string]Player {
		return map[string]Player{"alice": {Money: a}, "bob": {Money: b}}
	}
	tests := []struct {
		name  string
		state *State
		want  int
	}{
		{"between hands", &State{Players: players(10000, 10000)}, 20000},
		{"pot still in play", &State{Pot: 40, Players: players(9980, 9980)}, 20000},
		{"settled pot is not counted twice", &State{Pot: 40, WinnerDeclared: true, Players: players(9980, 10020)}, 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.ChipsInPlay())
		})
	}
}
