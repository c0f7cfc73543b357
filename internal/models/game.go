// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameMode determines how participants compete. It is fixed at room creation.
type GameMode string

const (
	ModeTeam   GameMode = "team"
	ModeFFA    GameMode = "ffa"
	ModeSingle GameMode = "single"
)

// GameState is the room's position in the round lifecycle.
type GameState string

const (
	StateLobby       GameState = "lobby"
	StateCountdown   GameState = "countdown"
	StatePlaying     GameState = "playing"
	StateRoundResult GameState = "roundResult"
	StateFinished    GameState = "finished"
)

// TeamAssignment controls how players are placed onto teams in team mode.
type TeamAssignment string

const (
	AssignRandom TeamAssignment = "random"
	AssignManual TeamAssignment = "manual"
)

// GameConfig is the immutable game configuration captured at room creation.
type GameConfig struct {
	Mode            GameMode       `json:"mode"`
	MaxPlayers      int            `json:"maxPlayers"`
	NumberOfTeams   int            `json:"numberOfTeams"`
	NumberOfRounds  int            `json:"numberOfRounds"`
	TeamAssignment  TeamAssignment `json:"teamAssignment,omitempty"`
	EnabledGames    []MiniGameType `json:"enabledMinigames"`
	RoundDuration   int            `json:"roundDuration"` // seconds, fallback when a minigame has no config
}

// Team exists only in team mode. Score counts rounds won by any member.
type Team struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Color     string      `json:"color"`
	Score     int         `json:"score"`
	PlayerIDs []uuid.UUID `json:"playerIds"`
}

// RoundData records one round. Results hold at most one entry per player.
// SelectedPlayers is one id per non-empty team in team mode, or every current
// player otherwise.
type RoundData struct {
	RoundNumber     int            `json:"roundNumber"`
	Minigame        MiniGameType   `json:"minigame"`
	SelectedPlayers []uuid.UUID    `json:"selectedPlayers"`
	Results         []PlayerResult `json:"results"`
	WinnerID        *uuid.UUID     `json:"winnerId,omitempty"`
	WinnerTeamID    *uuid.UUID     `json:"winnerTeamId,omitempty"`
	StartTime       time.Time      `json:"startTime"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
}

// TeamStanding and PlayerStanding are the final-score summary entries.
type TeamStanding struct {
	TeamID uuid.UUID `json:"teamId"`
	Score  int       `json:"score"`
}

type PlayerStanding struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Score     int       `json:"score"`
	RoundsWon int       `json:"roundsWon"`
}

// FinalStandings is broadcast once when a game finishes. Exactly one of the
// Teams/Players lists is populated depending on the mode.
type FinalStandings struct {
	WinnerTeamID *uuid.UUID       `json:"winnerTeamId,omitempty"`
	WinnerID     *uuid.UUID       `json:"winnerId,omitempty"`
	Teams        []TeamStanding   `json:"teams,omitempty"`
	Players      []PlayerStanding `json:"players,omitempty"`
}

// GameResult is the persisted record of a completed game.
type GameResult struct {
	RoomID    uuid.UUID      `json:"roomId"`
	RoomCode  string         `json:"roomCode"`
	Mode      GameMode       `json:"mode"`
	Standings FinalStandings `json:"standings"`
	Rounds    []RoundData    `json:"rounds"`
	Duration  float64        `json:"duration"` // seconds
	PlayedAt  time.Time      `json:"playedAt"`
}
