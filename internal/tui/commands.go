package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/holdemtable/internal/game"
)

// Command is one line typed into the action bar.
type Command struct {
	Verb   string
	Action game.Action
}

// Verbs a Command can carry.
const (
	VerbAct   = "act"
	VerbTable = "table"
	VerbStart = "start"
	VerbLeave = "leave"
	VerbHelp  = "help"
)

// Help lists the commands ParseCommand accepts.
const Help = `Commands:
  call (c)        call the current bet
  check (k)       check when nothing is owed
  raise (r) <n>   add n chips on top of your bet
  fold (f)        fold your hand
  table (t)       show the table
  start           deal the next hand (host only)
  leave (q)       leave the table
Ctrl+C quits and keeps your seat.`

// ParseCommand reads a command line. Verbs are case-insensitive and have
// one-letter aliases.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	switch fields[0] {
	case "call", "c":
		return Command{Verb: VerbAct, Action: game.Action{Kind: game.ActionCall}}, nil
	case "check", "k":
		return Command{Verb: VerbAct, Action: game.Action{Kind: game.ActionCheck}}, nil
	case "fold", "f":
		return Command{Verb: VerbAct, Action: game.Action{Kind: game.ActionFold}}, nil
	case "raise", "r":
		if len(fields) != 2 {
			return Command{}, errors.New("usage: raise <amount>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return Command{}, fmt.Errorf("invalid raise amount %q", fields[1])
		}
		return Command{Verb: VerbAct, Action: game.Action{Kind: game.ActionRaise, Amount: n}}, nil
	case "table", "t":
		return Command{Verb: VerbTable}, nil
	case "start":
		return Command{Verb: VerbStart}, nil
	case "leave", "quit", "q":
		return Command{Verb: VerbLeave}, nil
	case "help", "?":
		return Command{Verb: VerbHelp}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q, type help", fields[0])
}
