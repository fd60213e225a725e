package game

import "context"

// Guard screens actions before the table applies them. The table always has
// one; NopGuard admits everything.
type Guard interface {
	// Connect records that playerID has joined the table.
	Connect(ctx context.Context, playerID string) error
	// Authorize runs before rule validation. A non-nil error blocks the action.
	Authorize(ctx context.Context, playerID string, s *State, a Action) error
	// Blocked records an action the rules rejected.
	Blocked(ctx context.Context, playerID string, a Action, reason string)
	// Integrity records a board that does not match its seed.
	Integrity(ctx context.Context, playerID string, err error)
}

// NopGuard admits every action and records nothing.
type NopGuard struct{}

var _ Guard = NopGuard{}

func (NopGuard) Connect(context.Context, string) error { return nil }

func (NopGuard) Authorize(context.Context, string, *State, Action) error { return nil }

func (NopGuard) Blocked(context.Context, string, Action, string) {}

func (NopGuard) Integrity(context.Context, string, error) {}
