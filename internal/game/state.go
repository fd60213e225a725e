package game

import (
	"maps"
	"slices"
	"sort"

	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/poker"
)

// Collection paths.
const (
	RoomsPath        = "rooms"
	GamesPath        = "games"
	SecurityLogsPath = "security_logs"
)

// PlayersPath is the per-room players subcollection.
func PlayersPath(room string) string {
	return GamesPath + "/" + room + "/players"
}

// Phase is the stage of a round.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
	PhaseEnded    Phase = "ended"
)

// Betting reports whether players act in this phase.
func (p Phase) Betting() bool {
	switch p {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}
	return false
}

// Next returns the phase that follows p. Ended has no successor; a new round
// goes back to waiting through StartNewRound.
func (p Phase) Next() Phase {
	switch p {
	case PhaseWaiting:
		return PhasePreflop
	case PhasePreflop:
		return PhaseFlop
	case PhaseFlop:
		return PhaseTurn
	case PhaseTurn:
		return PhaseRiver
	case PhaseRiver:
		return PhaseShowdown
	case PhaseShowdown:
		return PhaseEnded
	}
	return PhaseEnded
}

// BoardSize is the number of community cards on the table during p.
func (p Phase) BoardSize() int {
	switch p {
	case PhaseFlop:
		return 3
	case PhaseTurn:
		return 4
	case PhaseRiver, PhaseShowdown:
		return 5
	}
	return 0
}

// Status is a player's standing in the current street.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusCalled  Status = "called"
	StatusChecked Status = "checked"
	StatusRaised  Status = "raised"
	StatusFolded  Status = "folded"
	StatusBanned  Status = "banned"
)

// Acted reports whether the player has acted in the current street.
func (s Status) Acted() bool {
	return s == StatusCalled || s == StatusChecked || s == StatusRaised
}

// Player is games/{room}/players/{id}.
type Player struct {
	ID       string       `json:"-"`
	Name     string       `json:"name"`
	Money    int          `json:"money"`
	Bet      int          `json:"bet"`
	RoundBet int          `json:"roundBet"`
	Status   Status       `json:"status"`
	Cards    []poker.Card `json:"cards"`
	Revealed bool         `json:"revealed"`
	HandName string       `json:"handName,omitempty"`
}

// Active reports whether the player is still contesting the pot.
func (p Player) Active() bool {
	return p.Status != StatusFolded && p.Status != StatusBanned
}

// TablePositions names the dealer button and blind seats.
type TablePositions struct {
	Dealer     string `json:"dealer"`
	SmallBlind string `json:"smallBlind"`
	BigBlind   string `json:"bigBlind"`
	// DealerSeat is the button's seat number, kept so the button still moves
	// on from a dealer who has left the table.
	DealerSeat int `json:"dealerSeat,omitempty"`
}

// State is games/{room} merged with its players subcollection. The
// subcollection is authoritative for who is seated.
type State struct {
	Room              string          `json:"-"`
	Phase             Phase           `json:"phase"`
	Pot               int             `json:"pot"`
	CurrentTurn       string          `json:"currentTurn"`
	CurrentCallAmount int             `json:"currentCallAmount"`
	CommunityCards    []poker.Card    `json:"communityCards"`
	PlayerPositions   map[string]int  `json:"playerPositions"`
	TablePositions    *TablePositions `json:"tablePositions,omitempty"`
	WinnerDeclared    bool            `json:"winnerDeclared"`
	WinnerID          string          `json:"winnerId,omitempty"`
	WinnerName        string          `json:"winnerName,omitempty"`
	WinnerHand        string          `json:"winnerHand,omitempty"`
	DeckSeed          string          `json:"deckSeed,omitempty"`
	DeckVersion       int64           `json:"deckVersion,omitempty"`
	// DealtSeats is how many hands were dealt at preflop. The board cursor
	// is derived from it so a player leaving mid-round does not shift the
	// community cards.
	DealtSeats int `json:"dealtSeats,omitempty"`

	Players map[string]Player `json:"-"`
}

// DecodeState builds a State from the game document and the players
// subcollection.
func DecodeState(room string, game store.Document, players map[string]store.Document) (*State, error) {
	s := &State{}
	if err := store.Decode(game, s); err != nil {
		return nil, err
	}
	s.Room = room
	if s.PlayerPositions == nil {
		s.PlayerPositions = map[string]int{}
	}
	s.Players = make(map[string]Player, len(players))
	for id, doc := range players {
		var p Player
		if err := store.Decode(doc, &p); err != nil {
			return nil, err
		}
		p.ID = id
		s.Players[id] = p
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.CommunityCards = slices.Clone(s.CommunityCards)
	c.PlayerPositions = maps.Clone(s.PlayerPositions)
	if s.TablePositions != nil {
		tp := *s.TablePositions
		c.TablePositions = &tp
	}
	c.Players = make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		p.Cards = slices.Clone(p.Cards)
		c.Players[id] = p
	}
	return &c
}

// Seats returns seated player ids in ascending seat order. Players without
// a recorded seat sort first, ties break on id.
func (s *State) Seats() []string {
	ids := slices.Collect(maps.Keys(s.Players))
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := s.PlayerPositions[ids[i]], s.PlayerPositions[ids[j]]
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Eligible returns seated players in seat order excluding banned ones.
func (s *State) Eligible() []string {
	var out []string
	for _, id := range s.Seats() {
		if s.Players[id].Status != StatusBanned {
			out = append(out, id)
		}
	}
	return out
}

// BetTotal sums every seated player's bet for the round.
func (s *State) BetTotal() int {
	total := 0
	for _, p := range s.Players {
		total += p.Bet
	}
	return total
}

// ChipsInPlay is every seated player's money plus the pot. A settled pot
// has already been paid to the winners, so it is not counted again.
func (s *State) ChipsInPlay() int {
	total := 0
	if !s.WinnerDeclared {
		total = s.Pot
	}
	for _, p := range s.Players {
		total += p.Money
	}
	return total
}

// BoardCursorSeats is the seat count the community cursor is derived from.
func (s *State) BoardCursorSeats() int {
	if s.DealtSeats > 0 {
		return s.DealtSeats
	}
	return len(s.Players)
}

// Player returns the seated player with id.
func (s *State) Player(id string) (Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}
