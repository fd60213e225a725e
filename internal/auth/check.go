package auth

import "fmt"

// Membership is what the table knows about a seat when an identity claims it.
type Membership struct {
	PlayerID     string
	PlayerExists bool
	RoomExists   bool
	Banned       bool
}

// Check decides whether id may act as m.PlayerID. The checks run in a fixed
// order and the first failure is returned wrapped in ErrAuthDenied, so the
// reason can be logged.
func Check(id *Identity, m Membership) error {
	switch {
	case !m.PlayerExists:
		return fmt.Errorf("%w: player not found in game", ErrAuthDenied)
	case !m.RoomExists:
		return fmt.Errorf("%w: room not found", ErrAuthDenied)
	case id == nil || id.UID != m.PlayerID:
		return fmt.Errorf("%w: uid mismatch", ErrAuthDenied)
	case m.Banned:
		return fmt.Errorf("%w: player is banned", ErrAuthDenied)
	}
	return nil
}
