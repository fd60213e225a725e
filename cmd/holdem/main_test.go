package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemtable/internal/config"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func TestParseLineup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lineup  string
		want    []string
		wantErr string
	}{
		{lineup: "call:1,random:1,aggressive:1", want: []string{"call", "random", "aggressive"}},
		{lineup: "Call:2", want: []string{"call", "call"}},
		{lineup: " call , random ", want: []string{"call", "random"}},
		{lineup: "call:1", wantErr: "at least two players"},
		{lineup: "call:0,random", wantErr: "invalid count"},
		{lineup: "call:x,random", wantErr: "invalid count"},
		{lineup: "call,bluff", wantErr: "unknown strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.lineup, func(t *testing.T) {
			t.Parallel()
			got, err := parseLineup(tt.lineup)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimulateInMemory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Table.AutoStartDelay = 0
	cfg.Security.RateLimit = 20 * time.Millisecond

	var out bytes.Buffer
	cmd := &SimulateCmd{
		Lineup:    "call:2",
		Hands:     2,
		Seed:      42,
		NextRound: 50 * time.Millisecond,
		Timeout:   20 * time.Second,
		NoColor:   true,
		out:       &out,
	}
	final, err := cmd.simulate(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, 2*cfg.Table.StartingMoney, final.ChipsInPlay(), "chips are conserved")
	assert.Contains(t, out.String(), "*** HOLE CARDS ***")
	assert.Contains(t, out.String(), "wins")

	cmd.printStandings(final)
	assert.Contains(t, out.String(), "Chips in play: $20000")
}

func TestSimulateRejectsTooManyPlayers(t *testing.T) {
	t.Parallel()
	cmd := &SimulateCmd{Lineup: "call:5", out: io.Discard}
	_, err := cmd.simulate(context.Background(), config.Default(), testLogger())
	assert.ErrorContains(t, err, "5 players for 4 seats")
}
