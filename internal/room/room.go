// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partyblitz/server/internal/models"
)

// Room is the unit of a single game session. All mutable state for one game
// lives here; Mu serializes every mutation (registry membership changes,
// submissions, and scheduled round transitions alike).
//
// Lock ordering: Registry.mu is always acquired before Room.Mu; code that
// holds only Room.Mu must never reach back into the registry.
type Room struct {
	ID           uuid.UUID
	Code         string
	HostID       uuid.UUID
	Mode         models.GameMode
	State        models.GameState
	Config       models.GameConfig
	Players      []*models.Player // insertion order = join order
	Teams        []*models.Team   // non-empty only in team mode
	CurrentRound int              // 0 until the game starts
	Rounds       []*models.RoundData
	CreatedAt    time.Time

	Mu sync.Mutex
}

// Snapshot is an immutable full copy of a room, safe to marshal and send
// after the room lock has been released. Broadcasting full snapshots after
// every mutation is the resynchronization mechanism; clients consume the
// latest snapshot rather than applying deltas.
type Snapshot struct {
	ID           uuid.UUID           `json:"id"`
	Code         string              `json:"code"`
	HostID       uuid.UUID           `json:"hostId"`
	Mode         models.GameMode     `json:"mode"`
	State        models.GameState    `json:"state"`
	Config       models.GameConfig   `json:"config"`
	Players      []models.Player     `json:"players"`
	Teams        []models.Team       `json:"teams"`
	CurrentRound int                 `json:"currentRound"`
	Rounds       []models.RoundData  `json:"rounds"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// SnapshotUnsafe deep-copies the room state. Assumes Mu is held.
func (r *Room) SnapshotUnsafe() Snapshot {
	snap := Snapshot{
		ID:           r.ID,
		Code:         r.Code,
		HostID:       r.HostID,
		Mode:         r.Mode,
		State:        r.State,
		Config:       r.Config,
		Players:      make([]models.Player, 0, len(r.Players)),
		Teams:        make([]models.Team, 0, len(r.Teams)),
		CurrentRound: r.CurrentRound,
		Rounds:       make([]models.RoundData, 0, len(r.Rounds)),
		CreatedAt:    r.CreatedAt,
	}
	snap.Config.EnabledGames = append([]models.MiniGameType(nil), r.Config.EnabledGames...)
	for _, p := range r.Players {
		cp := *p
		if p.TeamID != nil {
			tid := *p.TeamID
			cp.TeamID = &tid
		}
		snap.Players = append(snap.Players, cp)
	}
	for _, t := range r.Teams {
		ct := *t
		ct.PlayerIDs = append([]uuid.UUID(nil), t.PlayerIDs...)
		snap.Teams = append(snap.Teams, ct)
	}
	for _, rd := range r.Rounds {
		snap.Rounds = append(snap.Rounds, CopyRound(rd))
	}
	return snap
}

// Snapshot acquires the lock and deep-copies the room state.
func (r *Room) Snapshot() Snapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.SnapshotUnsafe()
}

// CopyRound deep-copies a round record for broadcasting outside the lock.
func CopyRound(rd *models.RoundData) models.RoundData {
	cp := *rd
	cp.SelectedPlayers = append([]uuid.UUID(nil), rd.SelectedPlayers...)
	cp.Results = append([]models.PlayerResult(nil), rd.Results...)
	if rd.WinnerID != nil {
		w := *rd.WinnerID
		cp.WinnerID = &w
	}
	if rd.WinnerTeamID != nil {
		w := *rd.WinnerTeamID
		cp.WinnerTeamID = &w
	}
	if rd.EndTime != nil {
		e := *rd.EndTime
		cp.EndTime = &e
	}
	return cp
}

// FindPlayerUnsafe returns the player with the given id, or nil. Assumes Mu is held.
func (r *Room) FindPlayerUnsafe(playerID uuid.UUID) *models.Player {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// FindTeamUnsafe returns the team with the given id, or nil. Assumes Mu is held.
func (r *Room) FindTeamUnsafe(teamID uuid.UUID) *models.Team {
	for _, t := range r.Teams {
		if t.ID == teamID {
			return t
		}
	}
	return nil
}

// CurrentRoundUnsafe returns the most recent round record, or nil before the
// first round. Assumes Mu is held.
func (r *Room) CurrentRoundUnsafe() *models.RoundData {
	if len(r.Rounds) == 0 {
		return nil
	}
	return r.Rounds[len(r.Rounds)-1]
}

// HasPlayerUnsafe reports membership. Assumes Mu is held.
func (r *Room) HasPlayerUnsafe(playerID uuid.UUID) bool {
	return r.FindPlayerUnsafe(playerID) != nil
}
