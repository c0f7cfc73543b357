// internal/models/constants.go
package models

import "time"

// Room and game limits. Configs outside these bounds are rejected at room
// creation.
const (
	MaxPlayers     = 10
	MinPlayers     = 2
	MaxTeams       = 4
	MinTeams       = 2
	DefaultRounds  = 10
	MaxRounds      = 20
	MinRounds      = 3
	RoomCodeLength = 6
)

// Orchestrator timings.
const (
	CountdownSeconds   = 3
	RoundTransition    = 5 * time.Second
	RoundGracePeriod   = 5 * time.Second
	CountdownTickEvery = time.Second
)

// TeamColor is one entry of the fixed team palette.
type TeamColor struct {
	Name  string
	Color string
}

// TeamColors is the palette teams are named from, in slot order. Rooms with
// more team slots than palette entries cycle back to the start.
var TeamColors = []TeamColor{
	{Name: "Red Team", Color: "#EF4444"},
	{Name: "Blue Team", Color: "#3B82F6"},
	{Name: "Green Team", Color: "#10B981"},
	{Name: "Yellow Team", Color: "#F59E0B"},
}

// Avatars is the pool a joining player's avatar is drawn from.
var Avatars = []string{
	"🦊", "🐼", "🦁", "🐯", "🐸", "🐙", "🦄", "🐲",
	"🤖", "👾", "🎮", "🎯", "⚡", "🔥", "💎", "⭐",
}

// MiniGameConfigs holds the static config for every known minigame.
var MiniGameConfigs = map[MiniGameType]MiniGameConfig{
	GameSpeedMath: {
		ID:          GameSpeedMath,
		Name:        "Speed Math Royale",
		Description: "Solve math problems as fast as you can!",
		Duration:    30,
		Difficulty:  "medium",
	},
	GameReactionDash: {
		ID:          GameReactionDash,
		Name:        "Reaction Dash",
		Description: "Tap when the color changes!",
		Duration:    20,
		Difficulty:  "easy",
	},
	GameColorCode: {
		ID:          GameColorCode,
		Name:        "Color Code Breaker",
		Description: "Crack the color code puzzle!",
		Duration:    45,
		Difficulty:  "hard",
	},
	GameMemoryFlash: {
		ID:          GameMemoryFlash,
		Name:        "Memory Flash",
		Description: "Remember the sequence!",
		Duration:    30,
		Difficulty:  "medium",
	},
	GameWordSprint: {
		ID:          GameWordSprint,
		Name:        "Word Sprint",
		Description: "Type the word as fast as possible!",
		Duration:    25,
		Difficulty:  "easy",
	},
}
