package models

import "github.com/google/uuid"

// Player is a participant within exactly one room. IDs are minted when the
// player joins and are never reused across a rejoin.
type Player struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Avatar      string      `json:"avatar,omitempty"`
	Platform    string      `json:"platform"` // "web" or "mobile", display only
	TeamID      *uuid.UUID  `json:"teamId,omitempty"`
	IsReady     bool        `json:"isReady"`
	IsHost      bool        `json:"isHost"`
	IsConnected bool        `json:"isConnected"`
	Stats       PlayerStats `json:"stats"`
}

// PlayerStats accumulates across rounds within one room's lifetime.
// RoundsWon/RoundsPlayed/TotalScore are zeroed when a finished room is reset
// for a new game; GamesPlayed and GamesWon survive the reset.
type PlayerStats struct {
	RoundsWon    int `json:"roundsWon"`
	RoundsPlayed int `json:"roundsPlayed"`
	TotalScore   int `json:"totalScore"`
	GamesPlayed  int `json:"gamesPlayed"`
	GamesWon     int `json:"gamesWon"`
}

// PlayerResult is one player's outcome for a single round. It doubles as the
// minigame submission payload and the stored round result.
type PlayerResult struct {
	PlayerID uuid.UUID `json:"playerId"`
	Score    int       `json:"score"`
	Time     *float64  `json:"time,omitempty"` // seconds; a missing time ranks last on ties
	Accuracy *float64  `json:"accuracy,omitempty"`
}
