// Package game runs a Texas Hold'em table whose only source of truth is a
// shared document store.
//
// There is no arbitrating server. Every participant holds a Session that
// mirrors games/{room} and games/{room}/players and proposes mutations
// through a Table. Mutations that several participants may race to perform
// (advancing the turn, dealing the next street, settling the pot) are
// guarded writes: they commit only if the field they were derived from still
// holds the value that was read, and a lost race is a silent no-op.
//
// # Layout
//
//   - State, Player: decoded snapshots of the shared documents
//   - NextTurn, RoundComplete: pure turn-order rules
//   - Validate, Apply: pure action rules (call, check, raise, fold)
//   - PlanBlinds, RotatePositions, SplitAmounts: pure round bookkeeping
//   - Table: reads, plans and commits the above against a store.Store
//   - Session: one participant's subscriptions, mirror and host duties
//
// Cards come from internal/dealer: the deck is a pure function of the round's
// seed, so every participant can rebuild it and check the board.
package game
