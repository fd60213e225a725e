package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/lox/holdemtable/internal/dealer"
	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/internal/store/remote"
	"github.com/lox/holdemtable/poker"
)

// VerifyCmd recomputes a deal from its seed. Offline it prints the deal and
// checks any cards given on the command line; with --room it checks the
// live board and, if you are seated, your hole cards.
type VerifyCmd struct {
	Seed    string `arg:"" optional:"" help:"Deck seed as stored in the game (four dash-joined numbers)"`
	Players int    `default:"2" help:"Hands dealt before the board"`
	Board   string `help:"Community cards to check, e.g. \"As Kd 7c\""`
	Seat    int    `default:"0" help:"Zero-based deal order of the hand given in --cards"`
	Cards   string `help:"Hole cards to check for --seat, e.g. \"Ah Qd\""`

	Server string `default:"ws://localhost:8080/ws" help:"Document server URL for --room"`
	Token  string `env:"HOLDEM_TOKEN" help:"Sign-in token for --room"`
	Room   string `help:"Check the live table in this room instead"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	_, logger, err := g.load()
	if err != nil {
		return err
	}
	if c.Room != "" {
		ctx, cancel := signalContext(logger)
		defer cancel()
		return c.verifyRoom(ctx, logger, os.Stdout)
	}
	if c.Seed == "" {
		return errors.New("pass a seed or --room")
	}
	return c.verifyDeal(os.Stdout)
}

// verifyDeal prints the deal for c.Seed and checks the cards given.
func (c *VerifyCmd) verifyDeal(out io.Writer) error {
	if c.Players < 2 || c.Players > 4 {
		return fmt.Errorf("players must be between 2 and 4, got %d", c.Players)
	}
	seed := dealer.ParseSeed(c.Seed)
	seats := make([]string, c.Players)
	for i := range seats {
		seats[i] = strconv.Itoa(i)
	}
	d := dealer.New(nil, log.New(io.Discard))
	hands, err := d.HoleCards(seed, seats)
	if err != nil {
		return err
	}
	board, err := d.Community(seed, c.Players, nil, 5)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Seed %s\n", seed)
	for i, id := range seats {
		fmt.Fprintf(out, "  hand %d: %s\n", i, poker.FormatCards(hands[id]))
	}
	fmt.Fprintf(out, "  board:  %s\n", poker.FormatCards(board))

	var errs []error
	if c.Board != "" {
		cards, err := poker.ParseCards(c.Board)
		if err != nil {
			return err
		}
		errs = append(errs, report(out, "board", dealer.VerifyCommunity(seed, c.Players, cards)))
	}
	if c.Cards != "" {
		cards, err := poker.ParseCards(c.Cards)
		if err != nil {
			return err
		}
		errs = append(errs, report(out, fmt.Sprintf("hand %d", c.Seat), dealer.VerifyHoleCards(seed, c.Seat, cards)))
	}
	return errors.Join(errs...)
}

// verifyRoom checks the stored board of c.Room against its seed.
func (c *VerifyCmd) verifyRoom(ctx context.Context, logger *log.Logger, out io.Writer) error {
	client, err := remote.Dial(ctx, c.Server, c.Token, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	table := game.NewTable(client, c.Room, logger)
	s, err := table.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Room %s, %s, seed %s\n", c.Room, s.Phase, s.DeckSeed)

	errs := []error{report(out, "board", table.VerifyBoard(s))}
	if id := client.Identity(); id != nil {
		if p, ok := s.Players[id.UID]; ok && len(p.Cards) > 0 {
			seat := slices.Index(s.Eligible(), id.UID)
			errs = append(errs, report(out, "your hand",
				dealer.VerifyHoleCards(dealer.ParseSeed(s.DeckSeed), seat, p.Cards)))
		}
	}
	return errors.Join(errs...)
}

func report(out io.Writer, what string, err error) error {
	if err != nil {
		fmt.Fprintf(out, "%s: MISMATCH (%v)\n", what, err)
		return err
	}
	fmt.Fprintf(out, "%s: ok\n", what)
	return nil
}
