// Package tui is the interactive table client: a game log, a sidebar with
// the pot and players, and an action bar for typed commands.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/holdemtable/internal/autoplay"
	"github.com/lox/holdemtable/internal/display"
	"github.com/lox/holdemtable/internal/game"
)

// Seat is the part of a game session the model drives.
type Seat interface {
	UID() string
	Act(ctx context.Context, a game.Action) error
	StartNewRound(ctx context.Context) error
	Leave(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

type stateMsg struct{ state *game.State }

type closedMsg struct{ err error }

type actionDoneMsg struct {
	verb string
	err  error
}

// Feed returns a session change listener and the channel it fills for
// New. When the model falls behind, the oldest queued snapshot is dropped.
// The listener must only be called from one goroutine.
func Feed(size int) (func(*game.State), <-chan *game.State) {
	ch := make(chan *game.State, size)
	return func(s *game.State) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}, ch
}

// Model is the bubbletea model for one seat at a table.
type Model struct {
	ctx    context.Context
	seat   Seat
	states <-chan *game.State
	render *display.Renderer
	rules  game.Rules
	logger *log.Logger

	logViewport viewport.Model
	actionInput textinput.Model

	gameLog  []string
	state    *game.State
	pending  string
	quitting bool
	err      error

	width  int
	height int
}

// New returns a model for seat, updated from the snapshots on states.
func New(ctx context.Context, seat Seat, states <-chan *game.State, render *display.Renderer, rules game.Rules, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "call, check, raise 40, fold, table, help"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 60
	ti.PromptStyle = TurnStyle
	ti.TextStyle = PlayerInfoStyle
	ti.Prompt = "> "

	return &Model{
		ctx:         ctx,
		seat:        seat,
		states:      states,
		render:      render,
		rules:       rules,
		logger:      logger.WithPrefix("tui"),
		logViewport: vp,
		actionInput: ti,
	}
}

// Err is why the session ended, or nil when the player quit or left.
func (m *Model) Err() error {
	return m.err
}

// Log returns the game log lines.
func (m *Model) Log() []string {
	return m.gameLog
}

// AddLogEntry appends a line to the game log and scrolls to it.
func (m *Model) AddLogEntry(line string) {
	m.gameLog = append(m.gameLog, line)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.GotoBottom()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForState())
}

// waitForState delivers the next snapshot, or closedMsg once the session
// ends.
func (m *Model) waitForState() tea.Cmd {
	states, seat := m.states, m.seat
	return func() tea.Msg {
		select {
		case s := <-states:
			return stateMsg{state: s}
		case <-seat.Done():
			return closedMsg{err: seat.Err()}
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.applyState(msg.state)
		return m, m.waitForState()

	case closedMsg:
		m.logger.Debug("Session ended", "err", msg.err)
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit

	case actionDoneMsg:
		m.pending = ""
		if msg.err != nil {
			m.AddLogEntry(ErrorStyle.Render(msg.err.Error()))
		}
		if msg.verb == VerbLeave && msg.err == nil {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.actionInput.Value())
			m.actionInput.SetValue("")
			if line == "" {
				return m, nil
			}
			return m, m.submit(line)
		case "pgup":
			m.logViewport.HalfPageUp()
			return m, nil
		case "pgdown":
			m.logViewport.HalfPageDown()
			return m, nil
		case "home":
			m.logViewport.GotoTop()
			return m, nil
		case "end":
			m.logViewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.actionInput, cmd = m.actionInput.Update(msg)
	return m, cmd
}

func (m *Model) applyState(s *game.State) {
	prev := m.state
	m.state = s
	for _, line := range m.render.Changes(prev, s) {
		m.AddLogEntry(line)
	}
	uid := m.seat.UID()
	if s.Phase.Betting() && s.CurrentTurn == uid &&
		(prev == nil || prev.CurrentTurn != uid || prev.Phase != s.Phase) {
		m.AddLogEntry(TurnStyle.Render("Your move"))
	}
}

// submit handles a typed line. Session calls run as commands so Update
// never blocks on the store.
func (m *Model) submit(line string) tea.Cmd {
	c, err := ParseCommand(line)
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render(err.Error()))
		return nil
	}
	m.AddLogEntry(InfoStyle.Render("> " + line))

	switch c.Verb {
	case VerbHelp:
		for _, l := range strings.Split(Help, "\n") {
			m.AddLogEntry(l)
		}
		return nil
	case VerbTable:
		if m.state == nil {
			m.AddLogEntry(InfoStyle.Render("No game yet"))
			return nil
		}
		for _, l := range strings.Split(m.render.Table(m.state, m.seat.UID()), "\n") {
			m.AddLogEntry(l)
		}
		return nil
	}

	if m.pending != "" {
		m.AddLogEntry(WarningStyle.Render("Still waiting on " + m.pending))
		return nil
	}
	m.pending = c.Verb
	ctx, seat := m.ctx, m.seat
	return func() tea.Msg {
		var err error
		switch c.Verb {
		case VerbAct:
			err = seat.Act(ctx, c.Action)
		case VerbStart:
			err = seat.StartNewRound(ctx)
		case VerbLeave:
			err = seat.Leave(context.WithoutCancel(ctx))
		}
		return actionDoneMsg{verb: c.Verb, err: err}
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent) + 2
	actionPane := actionPaneStyle.
		Width(max(m.width-2, 1)).
		Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 25)
	paneHeight := max(m.height-actionHeight-2, 1)
	sidebarPane := paneStyle.
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = paneHeight
	logPane := paneStyle.
		Width(m.logViewport.Width).
		Height(paneHeight).
		Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *Model) renderSidebarPane() string {
	var content strings.Builder
	if m.state == nil {
		content.WriteString(InfoStyle.Render("Waiting for the table..."))
		return content.String()
	}
	s := m.state

	content.WriteString(WarningStyle.Render(fmt.Sprintf("Pot: $%d", s.Pot)))
	if s.CurrentCallAmount > 0 && s.Phase.Betting() {
		content.WriteString(" | ")
		content.WriteString(WarningStyle.Render(fmt.Sprintf("Bet: $%d", s.CurrentCallAmount)))
	}
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Room %s, %s", s.Room, s.Phase)))
	content.WriteString("\n\n")

	content.WriteString(InfoStyle.Render("Players at table:"))
	content.WriteString("\n")
	for _, id := range s.Seats() {
		p := s.Players[id]
		marker := "  "
		if id == s.CurrentTurn && s.Phase.Betting() {
			marker = TurnStyle.Render("> ")
		}
		line := fmt.Sprintf("%s: $%d", p.Name, p.Money)
		if !p.Active() {
			line += " (" + string(p.Status) + ")"
		}
		if id == m.seat.UID() {
			line = HandInfoStyle.Render(line)
		}
		content.WriteString(marker + line + "\n")
	}
	return content.String()
}

func (m *Model) renderActionPane() string {
	var content strings.Builder
	uid := m.seat.UID()

	var valid []autoplay.ValidAction
	if m.state != nil {
		valid = autoplay.ValidActions(m.state, uid, m.rules)
	}
	switch {
	case len(valid) > 0:
		p := m.state.Players[uid]
		content.WriteString(HandInfoStyle.Render(fmt.Sprintf("Hand: %s  Pot: $%d", m.render.Cards(p.Cards), m.state.Pot)))
		content.WriteString("\n")
		content.WriteString("Actions: " + renderActions(valid))
	case m.state != nil && m.state.Phase.Betting():
		content.WriteString(HandInfoStyle.Render("Waiting for " + m.state.Players[m.state.CurrentTurn].Name + "..."))
	default:
		content.WriteString(HandInfoStyle.Render("Waiting for the next hand..."))
	}
	content.WriteString("\n")

	if m.pending != "" {
		content.WriteString(InfoStyle.Render("Sending " + m.pending + "..."))
		content.WriteString("\n")
	}
	content.WriteString(m.actionInput.View())
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render("Enter to submit • PgUp/PgDn scroll • Ctrl+C to quit"))
	return content.String()
}

func renderActions(valid []autoplay.ValidAction) string {
	actions := make([]string, 0, len(valid))
	for _, v := range valid {
		switch v.Kind {
		case game.ActionFold:
			actions = append(actions, ErrorStyle.Render("[fold]"))
		case game.ActionCheck:
			actions = append(actions, SuccessStyle.Render("[check]"))
		case game.ActionCall:
			actions = append(actions, SuccessStyle.Render(fmt.Sprintf("[call $%d]", v.MinAmount)))
		case game.ActionRaise:
			actions = append(actions, WarningStyle.Render(fmt.Sprintf("[raise $%d-$%d]", v.MinAmount, v.MaxAmount)))
		}
	}
	return strings.Join(actions, " ")
}
