// internal/room/registry.go
package room

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partyblitz/server/internal/models"
)

// Registry owns every active room. It keeps an id-indexed store plus a
// secondary code index; the two maps are always mutated together so a deleted
// room frees its code for reuse. Instantiate one per process (or per test).
type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	codes map[string]uuid.UUID
	rng   *rand.Rand
}

// NewRegistry returns an empty registry with a time-seeded source for room
// codes and team shuffles.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uuid.UUID]*Room),
		codes: make(map[string]uuid.UUID),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// generateCodeUnsafe loops until it finds a code unused by any active room.
// Assumes mu is held.
func (reg *Registry) generateCodeUnsafe() string {
	for {
		code := randomCode(reg.rng, models.RoomCodeLength)
		if _, taken := reg.codes[code]; !taken {
			return code
		}
	}
}

// CreateRoom validates the config, builds the team set for team mode, seats
// the host as first player and registers the room under a fresh code.
func (reg *Registry) CreateRoom(config models.GameConfig, host *models.Player) (*Room, error) {
	if config.MaxPlayers == 0 {
		config.MaxPlayers = models.MaxPlayers
	}
	if config.NumberOfRounds == 0 {
		config.NumberOfRounds = models.DefaultRounds
	}
	if config.TeamAssignment == "" {
		config.TeamAssignment = models.AssignRandom
	}
	if len(config.EnabledGames) == 0 ||
		config.MaxPlayers < 1 || config.MaxPlayers > models.MaxPlayers ||
		config.NumberOfRounds < models.MinRounds || config.NumberOfRounds > models.MaxRounds {
		return nil, ErrInvalidConfig
	}
	if config.Mode == models.ModeTeam &&
		(config.NumberOfTeams < models.MinTeams || config.NumberOfTeams > models.MaxTeams) {
		return nil, ErrInvalidConfig
	}

	host.IsHost = true
	host.IsReady = true // host is implicitly always ready

	r := &Room{
		ID:        uuid.New(),
		HostID:    host.ID,
		Mode:      config.Mode,
		State:     models.StateLobby,
		Config:    config,
		Players:   []*models.Player{host},
		CreatedAt: time.Now(),
	}

	if config.Mode == models.ModeTeam {
		for i := 0; i < config.NumberOfTeams; i++ {
			slot := models.TeamColors[i%len(models.TeamColors)]
			r.Teams = append(r.Teams, &models.Team{
				ID:    uuid.New(),
				Name:  slot.Name,
				Color: slot.Color,
			})
		}
		// Random assignment seats the host on the first team immediately;
		// manual mode leaves everyone unassigned until they pick.
		if config.TeamAssignment == models.AssignRandom {
			first := r.Teams[0]
			first.PlayerIDs = append(first.PlayerIDs, host.ID)
			tid := first.ID
			host.TeamID = &tid
		}
	}

	reg.mu.Lock()
	r.Code = reg.generateCodeUnsafe()
	reg.rooms[r.ID] = r
	reg.codes[r.Code] = r.ID
	reg.mu.Unlock()

	log.Printf("Room %s created (id %s, mode %s)", r.Code, r.ID, r.Mode)
	return r, nil
}

// GetRoomByCode resolves a short code to its room.
func (reg *Registry) GetRoomByCode(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id, ok := reg.codes[code]
	if !ok {
		return nil, false
	}
	r, ok := reg.rooms[id]
	return r, ok
}

// GetRoomByID looks a room up by its long-lived id.
func (reg *Registry) GetRoomByID(id uuid.UUID) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Rooms returns all active rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// AddPlayer admits a player to the room with the given code. Joining a
// finished room transparently resets it to a fresh lobby first, so a room can
// host consecutive games.
func (reg *Registry) AddPlayer(code string, p *models.Player) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id, ok := reg.codes[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	r := reg.rooms[id]

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if len(r.Players) >= r.Config.MaxPlayers {
		return nil, ErrRoomFull
	}
	switch r.State {
	case models.StateLobby:
	case models.StateFinished:
		r.resetUnsafe()
	default:
		return nil, ErrGameInProgress
	}

	r.Players = append(r.Players, p)

	if r.Mode == models.ModeTeam && len(r.Teams) > 0 && r.Config.TeamAssignment == models.AssignRandom {
		smallest := r.Teams[0]
		for _, t := range r.Teams[1:] {
			if len(t.PlayerIDs) < len(smallest.PlayerIDs) {
				smallest = t
			}
		}
		smallest.PlayerIDs = append(smallest.PlayerIDs, p.ID)
		tid := smallest.ID
		p.TeamID = &tid
	}

	log.Printf("Player %s (%s) joined room %s", p.Name, p.ID, r.Code)
	return r, nil
}

// resetUnsafe recycles a finished room into a fresh lobby: rounds cleared,
// per-game stats zeroed (lifetime games counters kept), team scores zeroed.
// Assumes both locks are held.
func (r *Room) resetUnsafe() {
	r.State = models.StateLobby
	r.CurrentRound = 0
	r.Rounds = nil

	for _, p := range r.Players {
		p.IsReady = p.IsHost // host is auto-ready
		p.Stats = models.PlayerStats{
			GamesPlayed: p.Stats.GamesPlayed + 1,
			GamesWon:    p.Stats.GamesWon,
		}
	}
	for _, t := range r.Teams {
		t.Score = 0
	}
	log.Printf("Room %s reset to lobby", r.Code)
}

// RemovePlayer strips the player from the room and any team, promotes a new
// host if needed and deletes the room entirely when it empties. Returns nil
// when the room no longer exists afterwards.
func (reg *Registry) RemovePlayer(roomID, playerID uuid.UUID) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	kept := r.Players[:0]
	for _, p := range r.Players {
		if p.ID != playerID {
			kept = append(kept, p)
		}
	}
	r.Players = kept

	for _, t := range r.Teams {
		t.PlayerIDs = removeID(t.PlayerIDs, playerID)
	}

	if len(r.Players) == 0 {
		delete(reg.codes, r.Code)
		delete(reg.rooms, r.ID)
		log.Printf("Room %s deleted (empty)", r.Code)
		return nil, nil
	}

	// Earliest-joined remaining player inherits the host seat.
	if r.HostID == playerID {
		next := r.Players[0]
		r.HostID = next.ID
		next.IsHost = true
		next.IsReady = true
		log.Printf("Room %s: new host %s", r.Code, next.Name)
	}

	return r, nil
}

// SetReady flips a player's ready flag. The host stays ready regardless.
func (reg *Registry) SetReady(roomID, playerID uuid.UUID, ready bool) (*Room, error) {
	r, ok := reg.GetRoomByID(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.FindPlayerUnsafe(playerID)
	if p == nil {
		return nil, ErrRoomNotFound
	}
	if p.IsHost {
		p.IsReady = true
	} else {
		p.IsReady = ready
	}
	return r, nil
}

// ChangeTeam moves a player onto the given team (team mode only). The player
// is removed from any previous team first, so membership stays exclusive.
func (reg *Registry) ChangeTeam(roomID, playerID, teamID uuid.UUID) (*Room, error) {
	r, ok := reg.GetRoomByID(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Mode != models.ModeTeam {
		return r, nil
	}
	p := r.FindPlayerUnsafe(playerID)
	if p == nil {
		return nil, ErrRoomNotFound
	}

	for _, t := range r.Teams {
		t.PlayerIDs = removeID(t.PlayerIDs, playerID)
	}
	if target := r.FindTeamUnsafe(teamID); target != nil {
		target.PlayerIDs = append(target.PlayerIDs, playerID)
		tid := target.ID
		p.TeamID = &tid
	} else {
		p.TeamID = nil
	}
	return r, nil
}

// RandomizeTeams clears every assignment and redistributes all players
// round-robin after a shuffle, keeping team sizes within one of each other.
func (reg *Registry) RandomizeTeams(roomID uuid.UUID) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Mode != models.ModeTeam || len(r.Teams) == 0 {
		return r, nil
	}

	for _, t := range r.Teams {
		t.PlayerIDs = nil
	}
	shuffled := append([]*models.Player(nil), r.Players...)
	reg.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for i, p := range shuffled {
		t := r.Teams[i%len(r.Teams)]
		t.PlayerIDs = append(t.PlayerIDs, p.ID)
		tid := t.ID
		p.TeamID = &tid
	}
	log.Printf("Room %s: teams randomized", r.Code)
	return r, nil
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	kept := ids[:0]
	for _, id := range ids {
		if id != target {
			kept = append(kept, id)
		}
	}
	return kept
}
