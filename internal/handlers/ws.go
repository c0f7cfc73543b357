// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/partyblitz/server/internal/auth"
	"github.com/partyblitz/server/internal/game"
	"github.com/partyblitz/server/internal/middleware"
	"github.com/partyblitz/server/internal/models"
	"github.com/partyblitz/server/internal/room"
)

// clientMessage is the inbound envelope. Type selects the operation; the
// remaining fields are the operation's payload (unused ones stay zero).
type clientMessage struct {
	Type string `json:"type"`

	// room:create / room:join / room:rejoin
	Config     *models.GameConfig `json:"config,omitempty"`
	PlayerName string             `json:"playerName,omitempty"`
	Code       string             `json:"code,omitempty"`
	Platform   string             `json:"platform,omitempty"`
	Token      string             `json:"token,omitempty"`

	// lobby:ready / lobby:changeTeam
	IsReady bool       `json:"isReady,omitempty"`
	TeamID  *uuid.UUID `json:"teamId,omitempty"`

	// minigame:submit
	PlayerID  *uuid.UUID               `json:"playerId,omitempty"`
	GameType  models.MiniGameType      `json:"gameType,omitempty"`
	Answer    *models.SubmissionAnswer `json:"answer,omitempty"`
	Timestamp int64                    `json:"timestamp,omitempty"`
}

// RoomWSHandler upgrades the connection and runs the participant's read loop.
// A connection is anonymous until its first successful room:create or
// room:join; the read loop exiting for any reason (explicit leave, network
// drop) funnels into the same removal path.
func RoomWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"party"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "party" {
			c.Close(BadSubprotocolError, "client must speak the party subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := &Client{
			Cancel:  cancel,
			OutChan: make(chan game.Event, 32),
		}

		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		go writePump(ctx, c, client, logger)
		readErr := readPump(ctx, c, srv, client, logger)

		// Cleanup after the read pump exits: a dropped connection is
		// equivalent to an explicit leave.
		srv.handleLeave(client, logger)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// writePump serializes queued events onto the socket until the context is
// cancelled or the channel closes.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal event %s: %v", ev.Type, err)
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				logger.Warnf("write error for client %s: %v", client.PlayerID, err)
				return
			}
		}
	}
}

// readPump decodes inbound envelopes and dispatches them until the socket
// closes. The terminal read error is returned for the disconnect log; normal
// closure returns nil.
func readPump(ctx context.Context, c *websocket.Conn, srv *Server, client *Client, logger *logrus.Logger) error {
	badMessages := 0
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil // shutdown in progress
			}
			logger.Warnf("read error for client %s: %v (CloseStatus: %d)", client.PlayerID, err, closeStatus)
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message from client %s", client.PlayerID)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from client %s: %v", client.PlayerID, err)
			client.Write(game.ErrorEvent("Invalid JSON format"))
			badMessages++
			if badMessages >= 5 {
				c.Close(InvalidMessageError, "too many undecodable messages")
				return nil
			}
			continue
		}
		badMessages = 0

		srv.handleMessage(client, msg, logger)
	}
}

// handleMessage routes one inbound operation. Validation failures are
// reported to the actor only and leave room state untouched.
func (s *Server) handleMessage(client *Client, msg clientMessage, logger *logrus.Logger) {
	switch msg.Type {
	case "room:create":
		s.handleCreate(client, msg, logger)
	case "room:join":
		s.handleJoin(client, msg, logger)
	case "room:rejoin":
		s.handleRejoin(client, msg, logger)
	case "room:leave":
		s.handleLeave(client, logger)
	case "lobby:ready":
		s.handleReady(client, msg)
	case "lobby:changeTeam":
		s.handleChangeTeam(client, msg)
	case "lobby:randomizeTeams":
		s.handleRandomizeTeams(client)
	case "lobby:startGame":
		s.handleStartGame(client)
	case "minigame:submit":
		s.handleSubmit(client, msg, logger)
	default:
		client.Write(game.ErrorEvent("Unknown message type: " + msg.Type))
	}
}

func (s *Server) handleCreate(client *Client, msg clientMessage, logger *logrus.Logger) {
	if client.RoomID != uuid.Nil {
		client.Write(createResult(false, nil, nil, "Already in a room"))
		return
	}
	if msg.Config == nil || msg.PlayerName == "" {
		client.Write(createResult(false, nil, nil, "Missing config or player name"))
		return
	}

	host := s.newPlayer(msg.PlayerName, msg.Platform, true)
	r, err := s.Registry.CreateRoom(*msg.Config, host)
	if err != nil {
		client.Write(createResult(false, nil, nil, err.Error()))
		return
	}

	client.PlayerID = host.ID
	client.RoomID = r.ID
	s.registerClient(client)
	s.newSession(r)

	snap := r.Snapshot()
	client.Write(createResult(true, &snap, host, ""))
	logger.Infof("Player %s created room %s", host.Name, r.Code)
}

func (s *Server) handleJoin(client *Client, msg clientMessage, logger *logrus.Logger) {
	if client.RoomID != uuid.Nil {
		client.Write(joinResult(false, nil, nil, "Already in a room"))
		return
	}
	if msg.Code == "" || msg.PlayerName == "" {
		client.Write(joinResult(false, nil, nil, "Missing room code or player name"))
		return
	}

	p := s.newPlayer(msg.PlayerName, msg.Platform, false)
	r, err := s.Registry.AddPlayer(strings.ToUpper(msg.Code), p)
	if err != nil {
		client.Write(joinResult(false, nil, nil, err.Error()))
		return
	}

	client.PlayerID = p.ID
	client.RoomID = r.ID
	s.registerClient(client)

	snap := r.Snapshot()
	client.Write(joinResult(true, &snap, p, ""))

	s.broadcastRoomSnapshot(r)
	s.BroadcastToRoom(r.ID, game.Event{
		Type:    game.EventPlayerJoined,
		Payload: map[string]interface{}{"player": *p},
	})
	logger.Infof("Player %s joined room %s", p.Name, r.Code)
}

// handleRejoin rebinds a returning connection to its seat using the token
// minted on create/join. It only works while the player is still in the room
// (e.g. a page refresh or network switch racing the old socket's teardown);
// once the departure has been processed the seat is gone and the client must
// join normally.
func (s *Server) handleRejoin(client *Client, msg clientMessage, logger *logrus.Logger) {
	if client.RoomID != uuid.Nil {
		client.Write(rejoinResult(false, nil, nil, "Already in a room"))
		return
	}
	playerStr, roomStr, err := auth.VerifyPlayerToken(msg.Token)
	if err != nil {
		client.Write(rejoinResult(false, nil, nil, "Invalid token"))
		return
	}
	playerID, perr := uuid.Parse(playerStr)
	roomID, rerr := uuid.Parse(roomStr)
	if perr != nil || rerr != nil {
		client.Write(rejoinResult(false, nil, nil, "Invalid token"))
		return
	}

	r, ok := s.Registry.GetRoomByID(roomID)
	if !ok {
		client.Write(rejoinResult(false, nil, nil, room.ErrRoomNotFound.Error()))
		return
	}

	r.Mu.Lock()
	p := r.FindPlayerUnsafe(playerID)
	if p == nil {
		r.Mu.Unlock()
		client.Write(rejoinResult(false, nil, nil, "Seat no longer held"))
		return
	}
	p.IsConnected = true
	playerCopy := *p
	r.Mu.Unlock()

	client.PlayerID = playerID
	client.RoomID = roomID
	s.registerClient(client)

	snap := r.Snapshot()
	client.Write(rejoinResult(true, &snap, &playerCopy, ""))
	s.broadcastRoomSnapshot(r)
	logger.Infof("Player %s rejoined room %s", playerCopy.Name, snap.Code)
}

// handleLeave strips the participant from their room and tears the room down
// if it empties. Safe to call for never-joined or already-removed clients.
func (s *Server) handleLeave(client *Client, logger *logrus.Logger) {
	if client.RoomID == uuid.Nil {
		return
	}
	roomID, playerID := client.RoomID, client.PlayerID
	client.RoomID = uuid.Nil

	// A superseded connection (the participant rejoined on a fresh socket)
	// no longer owns the seat and must not remove the player.
	if !s.unregisterClient(roomID, playerID, client) {
		return
	}

	r, err := s.Registry.RemovePlayer(roomID, playerID)
	if err != nil {
		return
	}
	if r == nil {
		// Last player left; the code is already freed, drop the orchestrator.
		if sess, ok := s.Sessions.Get(roomID); ok {
			sess.Stop()
			s.Sessions.Delete(roomID)
		}
		return
	}

	s.broadcastRoomSnapshot(r)
	s.BroadcastToRoom(roomID, game.Event{
		Type:    game.EventPlayerLeft,
		Payload: map[string]interface{}{"playerId": playerID},
	})

	if sess, ok := s.Sessions.Get(roomID); ok {
		sess.HandlePlayerLeft(playerID)
	}
}

func (s *Server) handleReady(client *Client, msg clientMessage) {
	if client.RoomID == uuid.Nil {
		return
	}
	r, err := s.Registry.SetReady(client.RoomID, client.PlayerID, msg.IsReady)
	if err != nil {
		client.Write(game.ErrorEvent(err.Error()))
		return
	}
	s.broadcastRoomSnapshot(r)
}

func (s *Server) handleChangeTeam(client *Client, msg clientMessage) {
	if client.RoomID == uuid.Nil || msg.TeamID == nil {
		return
	}
	r, err := s.Registry.ChangeTeam(client.RoomID, client.PlayerID, *msg.TeamID)
	if err != nil {
		client.Write(game.ErrorEvent(err.Error()))
		return
	}
	s.broadcastRoomSnapshot(r)
}

func (s *Server) handleRandomizeTeams(client *Client) {
	if client.RoomID == uuid.Nil {
		return
	}
	r, ok := s.Registry.GetRoomByID(client.RoomID)
	if !ok {
		return
	}
	r.Mu.Lock()
	isHost := r.HostID == client.PlayerID
	r.Mu.Unlock()
	if !isHost {
		client.Write(game.ErrorEvent("Only the host can randomize teams"))
		return
	}

	r, err := s.Registry.RandomizeTeams(client.RoomID)
	if err != nil {
		client.Write(game.ErrorEvent(err.Error()))
		return
	}
	s.broadcastRoomSnapshot(r)
}

func (s *Server) handleStartGame(client *Client) {
	if client.RoomID == uuid.Nil {
		return
	}
	sess, ok := s.Sessions.Get(client.RoomID)
	if !ok {
		client.Write(game.ErrorEvent(room.ErrRoomNotFound.Error()))
		return
	}
	if err := sess.StartGame(client.PlayerID); err != nil {
		client.Write(game.ErrorEvent(err.Error()))
	}
}

func (s *Server) handleSubmit(client *Client, msg clientMessage, logger *logrus.Logger) {
	if client.RoomID == uuid.Nil || msg.Answer == nil {
		return
	}
	// The connection's bound id is authoritative; a mismatched playerId in
	// the payload is ignored rather than trusted.
	if msg.PlayerID != nil && *msg.PlayerID != client.PlayerID {
		logger.Warnf("submission playerId %s does not match connection %s, using connection id",
			msg.PlayerID, client.PlayerID)
	}
	sess, ok := s.Sessions.Get(client.RoomID)
	if !ok {
		return
	}
	sess.HandleSubmission(models.Submission{
		PlayerID:  client.PlayerID,
		GameType:  msg.GameType,
		Answer:    *msg.Answer,
		Timestamp: msg.Timestamp,
	})
}

// createResult and joinResult build the actor-directed responses for the two
// admission operations, including a signed ephemeral player token on success.
func createResult(success bool, snap *room.Snapshot, p *models.Player, errMsg string) game.Event {
	return admissionResult("room:created", success, snap, p, errMsg)
}

func joinResult(success bool, snap *room.Snapshot, p *models.Player, errMsg string) game.Event {
	return admissionResult("room:joined", success, snap, p, errMsg)
}

func rejoinResult(success bool, snap *room.Snapshot, p *models.Player, errMsg string) game.Event {
	return admissionResult("room:rejoined", success, snap, p, errMsg)
}

func admissionResult(evType string, success bool, snap *room.Snapshot, p *models.Player, errMsg string) game.Event {
	payload := map[string]interface{}{"success": success}
	if !success {
		payload["error"] = errMsg
		return game.Event{Type: game.EventType(evType), Payload: payload}
	}

	payload["room"] = *snap
	payload["playerId"] = p.ID
	token, err := auth.CreatePlayerToken(p.ID.String(), snap.ID.String())
	if err != nil {
		logrus.Warnf("failed to sign player token for %s in room %s: %v", p.ID, snap.Code, err)
	} else {
		payload["token"] = token
	}
	return game.Event{Type: game.EventType(evType), Payload: payload}
}
