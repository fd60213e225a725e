package game

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/lox/holdemtable/internal/store"
)

// Showdown reveals every remaining hand, names it, and settles the pot.
// The reveal is guarded on the river so only one participant performs it;
// settlement is guarded separately on winnerDeclared.
func (t *Table) Showdown(ctx context.Context, s *State) error {
	outcomes, winners, err := RankShowdown(s, t.rules.TieBreak)
	if err != nil {
		return fmt.Errorf("showdown: %w", err)
	}

	if s.Phase == PhaseRiver {
		b := t.store.Batch().
			Check(GamesPath, t.room, store.Precondition{Field: "phase", Value: string(PhaseRiver)}).
			Write(GamesPath, t.room, store.Document{
				"phase":       string(PhaseShowdown),
				"currentTurn": "",
			})
		for _, o := range outcomes {
			b.Write(PlayersPath(t.room), o.PlayerID, store.Document{
				"revealed": true,
				"handName": o.Result.Name,
			})
		}
		if err := b.Commit(ctx); err != nil {
			return t.stale("showdown", err)
		}
		s.Phase = PhaseShowdown
		s.CurrentTurn = ""
		for _, o := range outcomes {
			p := s.Players[o.PlayerID]
			p.Revealed = true
			p.HandName = o.Result.Name
			s.Players[o.PlayerID] = p
		}
		t.logger.Info("Showdown", "contenders", len(outcomes), "winners", len(winners))
	}

	return t.award(ctx, s, outcomes, winners)
}

// settle finishes a showdown another participant revealed but never paid out.
func (t *Table) settle(ctx context.Context, s *State) error {
	if s.WinnerDeclared {
		return nil
	}
	outcomes, winners, err := RankShowdown(s, t.rules.TieBreak)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return t.award(ctx, s, outcomes, winners)
}

func (t *Table) award(ctx context.Context, s *State, outcomes []HandOutcome, winners []string) error {
	switch {
	case len(winners) == 0:
		t.logger.Warn("No contenders at showdown, ending round without a winner", "pot", s.Pot)
		err := t.store.WriteIf(ctx, GamesPath, t.room,
			store.Precondition{Field: "winnerDeclared", Value: false},
			store.Document{
				"winnerDeclared": true,
				"winnerHand":     "No contest",
				"phase":          string(PhaseEnded),
				"currentTurn":    "",
			})
		if err != nil {
			return t.stale("end without winner", err)
		}
		s.WinnerDeclared = true
		s.Phase = PhaseEnded
		return nil
	case len(winners) == 1 && len(outcomes) == 1:
		return t.DeclareWinner(ctx, s, winners[0], "Last player standing")
	case len(winners) == 1:
		var name string
		for _, o := range outcomes {
			if o.PlayerID == winners[0] {
				name = o.Result.Name
			}
		}
		return t.DeclareWinner(ctx, s, winners[0], "Winning hand: "+name)
	default:
		return t.SplitPot(ctx, s, winners)
	}
}

// DeclareWinner pays the whole pot to winnerID and ends the round. It is a
// no-op if a winner has already been declared.
func (t *Table) DeclareWinner(ctx context.Context, s *State, winnerID, reason string) error {
	doc, err := t.store.Read(ctx, PlayersPath(t.room), winnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			t.logger.Error("Winner not found", "player", winnerID)
		}
		return fmt.Errorf("declare winner %s: %w", winnerID, err)
	}
	var w Player
	if err := store.Decode(doc, &w); err != nil {
		return err
	}

	err = t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "winnerDeclared", Value: false}).
		Write(PlayersPath(t.room), winnerID, store.Document{"money": w.Money + s.Pot}).
		Write(GamesPath, t.room, store.Document{
			"winnerDeclared": true,
			"winnerName":     w.Name,
			"winnerId":       winnerID,
			"winnerHand":     reason,
			"phase":          string(PhaseEnded),
			"currentTurn":    "",
		}).
		Commit(ctx)
	if err != nil {
		return t.stale("declare winner", err)
	}

	if p, ok := s.Players[winnerID]; ok {
		p.Money = w.Money + s.Pot
		s.Players[winnerID] = p
	}
	s.WinnerDeclared = true
	s.WinnerID = winnerID
	s.WinnerName = w.Name
	s.WinnerHand = reason
	s.Phase = PhaseEnded
	s.CurrentTurn = ""
	t.logger.Info("Winner declared", "player", winnerID, "name", w.Name, "pot", s.Pot, "reason", reason)
	return nil
}

// SplitPot divides the pot evenly between tied winners and ends the round.
// Winners who have left are skipped; the odd remainder is not paid out.
func (t *Table) SplitPot(ctx context.Context, s *State, winners []string) error {
	if len(winners) == 0 {
		return nil
	}
	share, remainder := SplitAmounts(s.Pot, len(winners))

	b := t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "winnerDeclared", Value: false})
	paid := map[string]int{}
	var names []string
	for _, id := range winners {
		doc, err := t.store.Read(ctx, PlayersPath(t.room), id)
		if errors.Is(err, store.ErrNotFound) {
			t.logger.Warn("Split winner has left", "player", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("split pot: %w", err)
		}
		var w Player
		if err := store.Decode(doc, &w); err != nil {
			return err
		}
		paid[id] = w.Money + share
		names = append(names, w.Name)
		b.Write(PlayersPath(t.room), id, store.Document{"money": w.Money + share})
	}

	b.Write(GamesPath, t.room, store.Document{
		"winnerDeclared": true,
		"winnerName":     strings.Join(names, ", "),
		"winnerId":       strings.Join(winners, ","),
		"winnerHand":     "Tie - Pot split",
		"phase":          string(PhaseEnded),
		"currentTurn":    "",
	})
	if err := b.Commit(ctx); err != nil {
		return t.stale("split pot", err)
	}

	for id, money := range paid {
		if p, ok := s.Players[id]; ok {
			p.Money = money
			s.Players[id] = p
		}
	}
	s.WinnerDeclared = true
	s.WinnerID = strings.Join(winners, ",")
	s.WinnerName = strings.Join(names, ", ")
	s.WinnerHand = "Tie - Pot split"
	s.Phase = PhaseEnded
	s.CurrentTurn = ""
	t.logger.Info("Pot split", "winners", len(winners), "share", share, "pot", s.Pot)
	if remainder > 0 {
		t.logger.Info("Split left an unawarded remainder", "remainder", remainder)
	}
	return nil
}

// AutoStart posts the blinds and deals the first street. It only acts on a
// waiting table with an empty pot and at least two eligible players.
func (t *Table) AutoStart(ctx context.Context) error {
	s, err := t.Load(ctx)
	if err != nil {
		return err
	}
	if s.Phase != PhaseWaiting {
		t.logger.Debug("Not auto-starting, round already running", "phase", s.Phase)
		return nil
	}
	plan, err := PlanBlinds(s, t.rules)
	if err != nil {
		return err
	}

	sb := s.Players[plan.Positions.SmallBlind]
	bb := s.Players[plan.Positions.BigBlind]
	pot := plan.SmallBlind + plan.BigBlind

	err = t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "phase", Value: string(PhaseWaiting)}).
		Check(GamesPath, t.room, store.Precondition{Field: "pot", Value: 0}).
		Write(PlayersPath(t.room), sb.ID, store.Document{
			"bet":      plan.SmallBlind,
			"roundBet": plan.SmallBlind,
			"money":    sb.Money - plan.SmallBlind,
			"status":   string(StatusWaiting),
		}).
		Write(PlayersPath(t.room), bb.ID, store.Document{
			"bet":      plan.BigBlind,
			"roundBet": plan.BigBlind,
			"money":    bb.Money - plan.BigBlind,
			"status":   string(StatusWaiting),
		}).
		Write(GamesPath, t.room, store.Document{
			"currentTurn":       plan.FirstToAct,
			"currentCallAmount": t.rules.BigBlind,
			"pot":               pot,
			"tablePositions":    plan.Positions,
		}).
		Commit(ctx)
	if err != nil {
		return t.stale("post blinds", err)
	}

	sb.Bet, sb.RoundBet, sb.Money, sb.Status = plan.SmallBlind, plan.SmallBlind, sb.Money-plan.SmallBlind, StatusWaiting
	bb.Bet, bb.RoundBet, bb.Money, bb.Status = plan.BigBlind, plan.BigBlind, bb.Money-plan.BigBlind, StatusWaiting
	s.Players[sb.ID] = sb
	s.Players[bb.ID] = bb
	s.CurrentTurn = plan.FirstToAct
	s.CurrentCallAmount = t.rules.BigBlind
	s.Pot = pot
	positions := plan.Positions
	s.TablePositions = &positions

	t.logger.Info("Blinds posted",
		"dealer", positions.Dealer,
		"small_blind", plan.SmallBlind,
		"big_blind", plan.BigBlind,
		"pot", pot,
		"first", plan.FirstToAct)

	return t.AdvancePhase(ctx, s)
}

// StartNewRound resets an ended table for the next round: broke players are
// removed, the button moves one seat, and every hand, bet and board is
// cleared. Banned players keep their status.
func (t *Table) StartNewRound(ctx context.Context) error {
	s, err := t.Load(ctx)
	if err != nil {
		return err
	}
	if s.Phase == PhaseWaiting {
		return nil
	}
	if s.Phase != PhaseEnded {
		return fmt.Errorf("%w: phase %s", ErrRoundInProgress, s.Phase)
	}

	b := t.store.Batch().
		Check(GamesPath, t.room, store.Precondition{Field: "phase", Value: string(PhaseEnded)})
	positions := maps.Clone(s.PlayerPositions)
	var keep []string
	for _, id := range s.Seats() {
		p := s.Players[id]
		if p.Money <= 0 {
			t.logger.Info("Removing player with no money", "player", id, "name", p.Name)
			b.Delete(PlayersPath(t.room), id)
			delete(positions, id)
			continue
		}
		keep = append(keep, id)
		status := StatusWaiting
		if p.Status == StatusBanned {
			status = StatusBanned
		}
		b.Write(PlayersPath(t.room), id, store.Document{
			"bet":      0,
			"roundBet": 0,
			"status":   string(status),
			"revealed": false,
			"cards":    []any{},
			"handName": nil,
		})
	}

	patch := store.Document{
		"phase":             string(PhaseWaiting),
		"pot":               0,
		"currentTurn":       "",
		"currentCallAmount": 0,
		"communityCards":    []any{},
		"winnerDeclared":    false,
		"winnerId":          "",
		"winnerName":        "",
		"winnerHand":        "",
		"dealtSeats":        0,
		"playerPositions":   positions,
	}
	next := RotatePositions(keep, s.PlayerPositions, s.TablePositions)
	if next != nil {
		patch["tablePositions"] = next
	}
	if err := b.Write(GamesPath, t.room, patch).Commit(ctx); err != nil {
		return t.stale("start new round", err)
	}
	t.logger.Info("New round", "players", len(keep), "dealer", dealerOf(next))
	return nil
}

func dealerOf(tp *TablePositions) string {
	if tp == nil {
		return ""
	}
	return tp.Dealer
}
