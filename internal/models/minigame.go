// internal/models/minigame.go
package models

import "github.com/google/uuid"

// MiniGameType identifies one of the playable minigames. Minigame internals
// live client-side; the server only knows each game's static config and the
// (score, time) pair it eventually reports.
type MiniGameType string

const (
	GameSpeedMath    MiniGameType = "speed-math"
	GameReactionDash MiniGameType = "reaction-dash"
	GameColorCode    MiniGameType = "color-code"
	GameMemoryFlash  MiniGameType = "memory-flash"
	GameWordSprint   MiniGameType = "word-sprint"
)

// MiniGameConfig is the static, display-oriented configuration for a minigame.
type MiniGameConfig struct {
	ID          MiniGameType `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Duration    int          `json:"duration"` // seconds
	Difficulty  string       `json:"difficulty,omitempty"`
}

// MiniGameStart is the payload attached to a round-start broadcast.
type MiniGameStart struct {
	GameType MiniGameType   `json:"gameType"`
	Config   MiniGameConfig `json:"config"`
}

// SubmissionAnswer is the fixed structural answer shape shared by all
// minigames. The coordinator only ever reads Score and Time.
type SubmissionAnswer struct {
	Score    int      `json:"score"`
	Time     *float64 `json:"time,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Submission is the exactly-once report a minigame sends when a player
// finishes (or the minigame expires client-side).
type Submission struct {
	PlayerID  uuid.UUID        `json:"playerId"`
	GameType  MiniGameType     `json:"gameType"`
	Answer    SubmissionAnswer `json:"answer"`
	Timestamp int64            `json:"timestamp"` // client clock, ms, display only
}

// Result converts a submission into the stored round result.
func (s Submission) Result() PlayerResult {
	return PlayerResult{
		PlayerID: s.PlayerID,
		Score:    s.Answer.Score,
		Time:     s.Answer.Time,
		Accuracy: s.Answer.Accuracy,
	}
}
