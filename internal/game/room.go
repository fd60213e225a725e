package game

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/lox/holdemtable/internal/store"
	"github.com/lox/holdemtable/poker"
)

// ErrTableFull is returned when every seat is taken.
var ErrTableFull = errors.New("game: table full")

// Room is rooms/{room}.
type Room struct {
	HostUID   string `json:"hostUID"`
	RoomName  string `json:"roomName,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Room statuses.
const (
	RoomWaiting = "waiting"
	RoomPlaying = "playing"
	RoomActive  = "active"
)

// ReadRoom loads rooms/{room}.
func ReadRoom(ctx context.Context, st store.Store, room string) (Room, error) {
	doc, err := st.Read(ctx, RoomsPath, room)
	if err != nil {
		return Room{}, fmt.Errorf("read room %s: %w", room, err)
	}
	var r Room
	if err := store.Decode(doc, &r); err != nil {
		return Room{}, err
	}
	return r, nil
}

// CreateRoom writes a fresh room owned by host.
func CreateRoom(ctx context.Context, st store.Store, room, host string, createdAt int64) error {
	doc, err := store.Encode(Room{
		HostUID:   host,
		RoomName:  "Game Room",
		Status:    RoomActive,
		CreatedAt: createdAt,
	})
	if err != nil {
		return err
	}
	if err := st.Replace(ctx, RoomsPath, room, doc); err != nil {
		return fmt.Errorf("create room %s: %w", room, err)
	}
	return nil
}

// NewPlayer is the record written when a player first sits down.
func NewPlayer(id, name string, money int) Player {
	if name == "" {
		short := id
		if len(short) > 5 {
			short = short[:5]
		}
		name = "Player " + short
	}
	return Player{
		ID:     id,
		Name:   name,
		Money:  money,
		Status: StatusWaiting,
		Cards:  []poker.Card{},
	}
}

// AssignSeats gives every id a seat, keeping existing seats and filling the
// lowest free numbers in id order. It fails when more than maxSeats would be
// seated.
func AssignSeats(existing map[string]int, ids []string, maxSeats int) (map[string]int, error) {
	seats := make(map[string]int, len(ids))
	taken := map[int]bool{}
	for _, id := range ids {
		if pos, ok := existing[id]; ok && pos > 0 && !taken[pos] {
			seats[id] = pos
			taken[pos] = true
		}
	}
	sorted := slices.Sorted(slices.Values(ids))
	next := 1
	for _, id := range sorted {
		if _, ok := seats[id]; ok {
			continue
		}
		for taken[next] {
			next++
		}
		if next > maxSeats {
			return nil, fmt.Errorf("%w: %d seats", ErrTableFull, maxSeats)
		}
		seats[id] = next
		taken[next] = true
	}
	return seats, nil
}

// CreateGame writes a waiting game for the players already in the room and
// marks the room as playing. Any previous game document is replaced.
func CreateGame(ctx context.Context, st store.Store, room string, rules Rules) error {
	players, err := st.Query(ctx, PlayersPath(room))
	if err != nil {
		return fmt.Errorf("create game %s: %w", room, err)
	}
	seats, err := AssignSeats(nil, slices.Collect(maps.Keys(players)), rules.MaxSeats)
	if err != nil {
		return err
	}
	doc, err := store.Encode(State{
		Phase:           PhaseWaiting,
		CommunityCards:  []poker.Card{},
		PlayerPositions: seats,
	})
	if err != nil {
		return err
	}
	doc["players"] = map[string]any{}

	err = st.Batch().
		Replace(GamesPath, room, doc).
		Write(RoomsPath, room, store.Document{"status": RoomPlaying}).
		Commit(ctx)
	if err != nil {
		return fmt.Errorf("create game %s: %w", room, err)
	}
	return nil
}

// Join seats playerID at room, creating its player record if needed. When
// the game already exists the player takes the lowest free seat.
func Join(ctx context.Context, st store.Store, room, playerID, name string, rules Rules) error {
	_, err := st.Read(ctx, PlayersPath(room), playerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		doc, err := store.Encode(NewPlayer(playerID, name, rules.StartingMoney))
		if err != nil {
			return err
		}
		err = st.Batch().
			Check(PlayersPath(room), playerID, store.Precondition{Absent: true}).
			Replace(PlayersPath(room), playerID, doc).
			Commit(ctx)
		if err != nil && !errors.Is(err, store.ErrPreconditionFailed) {
			return fmt.Errorf("join %s: %w", room, err)
		}
	case err != nil:
		return fmt.Errorf("join %s: %w", room, err)
	}

	err = store.Guarded(ctx, st, GamesPath, room, "playerPositions", func(doc store.Document) ([]store.Op, error) {
		var s State
		if err := store.Decode(doc, &s); err != nil {
			return nil, err
		}
		if _, ok := s.PlayerPositions[playerID]; ok {
			return nil, nil
		}
		ids := append(slices.Collect(maps.Keys(s.PlayerPositions)), playerID)
		seats, err := AssignSeats(s.PlayerPositions, ids, rules.MaxSeats)
		if err != nil {
			return nil, err
		}
		return []store.Op{{
			Kind:   store.OpWrite,
			Path:   GamesPath,
			ID:     room,
			Fields: store.Document{"playerPositions": seats},
		}}, nil
	})
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, ErrTableFull):
		if derr := st.Delete(ctx, PlayersPath(room), playerID); derr != nil {
			return errors.Join(err, fmt.Errorf("remove %s after failed seating: %w", playerID, derr))
		}
		return err
	default:
		return fmt.Errorf("seat %s: %w", playerID, err)
	}
}

// Leave removes playerID from room. The host leaving closes the room and the
// last player leaving tears down the game.
func Leave(ctx context.Context, st store.Store, room, playerID string) error {
	b := st.Batch().Delete(PlayersPath(room), playerID)

	r, err := ReadRoom(ctx, st, room)
	switch {
	case err == nil && r.HostUID == playerID:
		b.Delete(RoomsPath, room)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	players, err := st.Query(ctx, PlayersPath(room))
	if err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	delete(players, playerID)
	if len(players) == 0 {
		b.Delete(GamesPath, room)
	} else if game, err := st.Read(ctx, GamesPath, room); err == nil {
		var s State
		if err := store.Decode(game, &s); err != nil {
			return err
		}
		if _, ok := s.PlayerPositions[playerID]; ok {
			positions := maps.Clone(s.PlayerPositions)
			delete(positions, playerID)
			b.WriteIf(GamesPath, room,
				store.Precondition{Field: "playerPositions", Value: s.PlayerPositions},
				store.Document{"playerPositions": positions})
		}
	}

	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	return nil
}
