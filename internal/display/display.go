// Package display renders table snapshots for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/lox/holdemtable/internal/game"
	"github.com/lox/holdemtable/poker"
)

// Styles used for a table.
type Styles struct {
	Header    lipgloss.Style
	Street    lipgloss.Style
	Action    lipgloss.Style
	Winner    lipgloss.Style
	CardRed   lipgloss.Style
	CardBlack lipgloss.Style
	Pot       lipgloss.Style
	Turn      lipgloss.Style
	Muted     lipgloss.Style
	Warning   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Header: r.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true),
		Street:    r.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		Action:    r.NewStyle().Foreground(lipgloss.Color("#74B9FF")),
		Winner:    r.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		CardRed:   r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		CardBlack: r.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Bold(true),
		Pot:       r.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		Turn:      r.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
		Muted:     r.NewStyle().Foreground(lipgloss.Color("#626262")),
		Warning:   r.NewStyle().Foreground(lipgloss.Color("#FFEAA7")).Bold(true),
	}
}

// Renderer formats snapshots for one output.
type Renderer struct {
	styles Styles
}

// Option configures a Renderer.
type Option func(*lipgloss.Renderer)

// WithoutColor renders plain text whatever the terminal supports.
func WithoutColor() Option {
	return func(r *lipgloss.Renderer) { r.SetColorProfile(termenv.Ascii) }
}

// New returns a Renderer whose colour profile is detected from w.
func New(w io.Writer, opts ...Option) *Renderer {
	lr := lipgloss.NewRenderer(w)
	for _, opt := range opts {
		opt(lr)
	}
	return &Renderer{styles: newStyles(lr)}
}

// Table renders the whole table as seen by viewer. Hole cards are shown
// only for the viewer and for revealed hands; an empty viewer is a
// spectator.
func (r *Renderer) Table(s *game.State, viewer string) string {
	if s == nil {
		return r.styles.Muted.Render("No game yet")
	}
	var b strings.Builder

	header := fmt.Sprintf("Room %s • %s • pot $%d", s.Room, s.Phase, s.Pot)
	if s.Phase.Betting() {
		header += fmt.Sprintf(" • to call $%d", s.CurrentCallAmount)
	}
	b.WriteString(r.styles.Header.Render(header))
	b.WriteString("\n")

	if len(s.CommunityCards) > 0 {
		fmt.Fprintf(&b, "Board: %s\n", r.Cards(s.CommunityCards))
	}

	for _, id := range s.Seats() {
		b.WriteString(r.seat(s, id, viewer))
		b.WriteString("\n")
	}

	if s.WinnerDeclared {
		fmt.Fprintf(&b, "%s %s\n", r.styles.Winner.Render("Winner: "+winnerLabel(s)), s.WinnerHand)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) seat(s *game.State, id, viewer string) string {
	p := s.Players[id]
	name := p.Name
	if name == "" {
		name = id
	}
	cols := []string{
		fmt.Sprintf("Seat %d", s.PlayerPositions[id]),
		fmt.Sprintf("%-12s", name),
		fmt.Sprintf("%-3s", positionLabel(s.TablePositions, id)),
		fmt.Sprintf("$%-6d", p.Money),
	}
	if p.Bet > 0 {
		cols = append(cols, fmt.Sprintf("bet $%d", p.Bet))
	}
	status := string(p.Status)
	if p.Status == game.StatusBanned {
		status = r.styles.Warning.Render(status)
	} else if !p.Active() {
		status = r.styles.Muted.Render(status)
	}
	cols = append(cols, status)

	switch {
	case len(p.Cards) == 0:
	case id == viewer || p.Revealed:
		cols = append(cols, r.Cards(p.Cards))
	default:
		cols = append(cols, r.styles.Muted.Render("[?? ??]"))
	}
	if p.HandName != "" {
		cols = append(cols, "("+p.HandName+")")
	}
	line := strings.Join(cols, "  ")
	if s.Phase.Betting() && s.CurrentTurn == id {
		line = r.styles.Turn.Render("▶") + " " + line
	} else {
		line = "  " + line
	}
	return line
}

// Cards renders cards in brackets, red suits in red.
func (r *Renderer) Cards(cards []poker.Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		if c.Suit.Red() {
			parts[i] = r.styles.CardRed.Render(c.String())
		} else {
			parts[i] = r.styles.CardBlack.Render(c.String())
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Changes describes what happened between two snapshots, one line per
// event, in the order a hand history would list them.
func (r *Renderer) Changes(prev, next *game.State) []string {
	if next == nil {
		if prev != nil {
			return []string{r.styles.Warning.Render("Game closed")}
		}
		return nil
	}
	if prev == nil {
		return []string{r.styles.Muted.Render(fmt.Sprintf("Watching room %s (%s, %d players)", next.Room, next.Phase, len(next.Players)))}
	}

	var out []string
	for _, id := range next.Seats() {
		if _, ok := prev.Players[id]; !ok {
			out = append(out, r.styles.Muted.Render(fmt.Sprintf("%s joins seat %d", nameOf(next, id), next.PlayerPositions[id])))
		}
	}
	for _, id := range prev.Seats() {
		if _, ok := next.Players[id]; !ok {
			out = append(out, r.styles.Muted.Render(fmt.Sprintf("%s leaves", nameOf(prev, id))))
		}
	}

	if prev.Phase != next.Phase {
		out = append(out, r.street(next)...)
	}

	if next.Phase.Betting() && prev.Phase == next.Phase {
		for _, id := range next.Seats() {
			was, ok := prev.Players[id]
			now := next.Players[id]
			if !ok || (was.Status == now.Status && was.RoundBet == now.RoundBet) {
				continue
			}
			if line := r.action(next, id, was, now); line != "" {
				out = append(out, line)
			}
		}
	}
	for _, id := range next.Seats() {
		if was, ok := prev.Players[id]; ok && was.Status != game.StatusBanned && next.Players[id].Status == game.StatusBanned {
			out = append(out, r.styles.Warning.Render(nameOf(next, id)+" is banned"))
		}
	}

	if next.WinnerDeclared && !prev.WinnerDeclared {
		out = append(out, r.styles.Winner.Render(fmt.Sprintf("%s wins • %s", winnerLabel(next), next.WinnerHand)))
	}
	return out
}

func (r *Renderer) street(s *game.State) []string {
	switch s.Phase {
	case game.PhasePreflop:
		out := []string{r.styles.Street.Render("*** HOLE CARDS ***")}
		if tp := s.TablePositions; tp != nil {
			if p, ok := s.Players[tp.SmallBlind]; ok && p.Bet > 0 {
				out = append(out, fmt.Sprintf("%s: posts small blind $%d", nameOf(s, tp.SmallBlind), p.Bet))
			}
			if p, ok := s.Players[tp.BigBlind]; ok && p.Bet > 0 {
				out = append(out, fmt.Sprintf("%s: posts big blind $%d", nameOf(s, tp.BigBlind), p.Bet))
			}
		}
		return out
	case game.PhaseFlop, game.PhaseTurn, game.PhaseRiver:
		return []string{
			r.styles.Street.Render(fmt.Sprintf("*** %s ***", strings.ToUpper(string(s.Phase)))),
			fmt.Sprintf("Board: %s  Pot: %s", r.Cards(s.CommunityCards), r.styles.Pot.Render(fmt.Sprintf("$%d", s.Pot))),
		}
	case game.PhaseShowdown:
		return []string{r.styles.Street.Render("*** SHOWDOWN ***")}
	case game.PhaseEnded:
		var out []string
		for _, id := range s.Seats() {
			if p := s.Players[id]; p.Revealed && p.HandName != "" {
				out = append(out, fmt.Sprintf("%s shows %s (%s)", nameOf(s, id), r.Cards(p.Cards), p.HandName))
			}
		}
		return out
	case game.PhaseWaiting:
		return []string{r.styles.Muted.Render("Waiting for the next hand")}
	}
	return nil
}

func (r *Renderer) action(s *game.State, id string, was, now game.Player) string {
	name := nameOf(s, id)
	var text string
	switch now.Status {
	case game.StatusFolded:
		text = name + ": folds"
	case game.StatusChecked:
		text = name + ": checks"
	case game.StatusCalled:
		text = fmt.Sprintf("%s: calls $%d", name, now.RoundBet-was.RoundBet)
	case game.StatusRaised:
		text = fmt.Sprintf("%s: raises to $%d (pot now: $%d)", name, now.RoundBet, s.Pot)
	default:
		return ""
	}
	return r.styles.Action.Render(text)
}

func positionLabel(tp *game.TablePositions, id string) string {
	if tp == nil {
		return ""
	}
	switch id {
	case tp.Dealer:
		return "BTN"
	case tp.SmallBlind:
		return "SB"
	case tp.BigBlind:
		return "BB"
	}
	return ""
}

func winnerLabel(s *game.State) string {
	if s.WinnerName != "" {
		return s.WinnerName
	}
	if s.WinnerID != "" {
		return s.WinnerID
	}
	return "nobody"
}

func nameOf(s *game.State, id string) string {
	if p, ok := s.Players[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}
