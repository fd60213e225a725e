// Package security keeps the per-room anti-abuse log: it screens actions for
// bans and rapid-fire input, records what each participant does, escalates
// repeat offenders to a ban and periodically checks the pot against the bets.
package security

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry types written to the shared log.
const (
	EntryConnect           = "CONNECT"
	EntryAuthSuccess       = "AUTH_SUCCESS"
	EntryAuthFail          = "AUTH_FAIL"
	EntryGameAction        = "GAME_ACTION"
	EntryRateLimit         = "RATE_LIMIT"
	EntryActionBlocked     = "ACTION_BLOCKED"
	EntryInconsistentState = "INCONSISTENT_STATE"
	EntryIntegrityMismatch = "INTEGRITY_MISMATCH"
)

// Entry is one line of security_logs/{room}.logs.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  int64          `json:"timestamp"`
	PlayerUID  string         `json:"playerUID"`
	ActionType string         `json:"actionType"`
	ActionData map[string]any `json:"actionData,omitempty"`
}

func newEntry(now time.Time, playerID, kind string, data map[string]any) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  now.UnixMilli(),
		PlayerUID:  playerID,
		ActionType: kind,
		ActionData: data,
	}
}

// urgent entries are written straight away instead of waiting for a batch.
func (e Entry) urgent() bool {
	return strings.Contains(e.ActionType, "FAIL") || strings.Contains(e.ActionType, "BLOCKED")
}

// Suspicion is a participant's entry in suspiciousActivities.
type Suspicion struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	Count     int    `json:"count"`
}

// Log is security_logs/{room}.
type Log struct {
	RoomID               string               `json:"roomId"`
	Created              int64                `json:"created"`
	Logs                 []Entry              `json:"logs"`
	SuspiciousActivities map[string]Suspicion `json:"suspiciousActivities"`
	BannedPlayers        []string             `json:"bannedPlayers"`
}

// trim keeps the newest limit entries.
func trim(entries []Entry, limit int) []Entry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}
