// internal/handlers/server.go
package handlers

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/partyblitz/server/internal/game"
	"github.com/partyblitz/server/internal/models"
	"github.com/partyblitz/server/internal/room"
)

// Server holds the room registry, the per-room orchestrators and the live
// connection hub that fans events out to participants. One Server instance is
// the single in-memory authority for every room it hosts.
type Server struct {
	Registry *room.Registry
	Sessions *game.SessionStore
	Engine   *game.Engine

	mu    sync.Mutex
	conns map[uuid.UUID]map[uuid.UUID]*Client // roomID -> playerID -> client
	rng   *rand.Rand
}

func NewServer() *Server {
	return &Server{
		Registry: room.NewRegistry(),
		Sessions: game.NewSessionStore(),
		Engine:   game.NewEngine(),
		conns:    make(map[uuid.UUID]map[uuid.UUID]*Client),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Client is a single participant's live connection.
type Client struct {
	PlayerID uuid.UUID
	RoomID   uuid.UUID
	Cancel   func()
	OutChan  chan game.Event
}

// Write pushes an event onto the client's out channel non-blockingly. The
// event is dropped (and logged) if the channel is closed or full; the next
// full room snapshot resynchronizes the client.
func (c *Client) Write(ev game.Event) {
	select {
	case c.OutChan <- ev:
	default:
		log.Warnf("Client %s: OutChan closed or full, dropped event %s", c.PlayerID, ev.Type)
	}
}

// newPlayer mints a participant with a fresh id and a random avatar.
func (s *Server) newPlayer(name, platform string, isHost bool) *models.Player {
	if platform == "" {
		platform = "web"
	}
	s.mu.Lock()
	avatar := models.Avatars[s.rng.Intn(len(models.Avatars))]
	s.mu.Unlock()

	return &models.Player{
		ID:          uuid.New(),
		Name:        name,
		Avatar:      avatar,
		Platform:    platform,
		IsReady:     isHost,
		IsHost:      isHost,
		IsConnected: true,
	}
}

// registerClient binds a connection into the room's fan-out set. A previous
// connection for the same participant is cancelled and superseded, so a
// rejoin takes over cleanly even while the old socket is still draining.
func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.conns[c.RoomID]
	if !ok {
		peers = make(map[uuid.UUID]*Client)
		s.conns[c.RoomID] = peers
	}
	if old, ok := peers[c.PlayerID]; ok && old != c {
		old.Cancel()
	}
	peers[c.PlayerID] = c
}

// unregisterClient removes the connection only if it still owns the hub slot;
// a superseded connection reports false so its teardown does not evict the
// participant's newer one. The room's entry disappears with its last client.
func (s *Server) unregisterClient(roomID, playerID uuid.UUID, c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers, ok := s.conns[roomID]
	if !ok || peers[playerID] != c {
		return false
	}
	delete(peers, playerID)
	if len(peers) == 0 {
		delete(s.conns, roomID)
	}
	return true
}

// BroadcastToRoom sends an event to every connection in the room.
func (s *Server) BroadcastToRoom(roomID uuid.UUID, ev game.Event) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.conns[roomID]))
	for _, c := range s.conns[roomID] {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Write(ev)
	}
}

// SendToPlayer targets a single participant in a room.
func (s *Server) SendToPlayer(roomID, playerID uuid.UUID, ev game.Event) {
	s.mu.Lock()
	c, ok := s.conns[roomID][playerID]
	s.mu.Unlock()
	if ok {
		c.Write(ev)
	}
}

// newSession builds and stores the orchestrator for a freshly created room,
// wiring its broadcasts through the connection hub.
func (s *Server) newSession(r *room.Room) *game.Session {
	sess := game.NewSession(r, s.Engine)
	roomID := r.ID
	sess.BroadcastFn = func(ev game.Event) {
		s.BroadcastToRoom(roomID, ev)
	}
	sess.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.Event) {
		s.SendToPlayer(roomID, playerID, ev)
	}
	s.Sessions.Add(sess)
	return sess
}

// broadcastRoomSnapshot emits the full room state to everyone in it. The
// snapshot is taken under the room lock; marshaling happens later in each
// client's write pump.
func (s *Server) broadcastRoomSnapshot(r *room.Room) {
	s.BroadcastToRoom(r.ID, game.Event{
		Type:    game.EventRoomUpdated,
		Payload: map[string]interface{}{"room": r.Snapshot()},
	})
}
