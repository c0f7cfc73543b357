// internal/game/session.go
package game

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/partyblitz/server/internal/cache"
	"github.com/partyblitz/server/internal/database"
	"github.com/partyblitz/server/internal/models"
	"github.com/partyblitz/server/internal/room"
)

// Session drives one room's state machine over time: countdown ticks, round
// start, result collection under a timeout, inter-round delay and game
// completion. All timers are cancellable time.AfterFunc tasks; every callback
// re-acquires the room lock and validates the round generation counter before
// acting, so a stale countdown tick, round timeout or transition delay is a
// no-op once the machine has moved on.
//
// Within one room, round transitions are strictly sequential: no two rounds
// are ever concurrently open for submissions.
type Session struct {
	Room   *room.Room
	Engine *Engine

	// BroadcastFn fans an event out to every connection in the room.
	// BroadcastToPlayerFn targets a single participant. Both may be nil
	// (e.g. in tests), in which case events are dropped.
	BroadcastFn         func(ev Event)
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// OnGameEnd is invoked once per finished game, outside the room lock.
	OnGameEnd func(result *models.GameResult)

	// Timing knobs, initialized from the package defaults. Tests shorten
	// them to exercise the full lifecycle quickly.
	CountdownTick time.Duration
	Transition    time.Duration
	GracePeriod   time.Duration

	// roundGen increments every time the machine leaves a phase a timer was
	// scheduled against. Timer callbacks capture the value at scheduling time
	// and bail out if it has moved on.
	roundGen int

	countdownTimer  *time.Timer
	roundTimer      *time.Timer
	transitionTimer *time.Timer

	startedAt time.Time
}

// NewSession wraps a room with an orchestrator. Broadcast functions are wired
// afterwards by whoever owns the transport.
func NewSession(r *room.Room, e *Engine) *Session {
	return &Session{
		Room:          r,
		Engine:        e,
		CountdownTick: models.CountdownTickEvery,
		Transition:    models.RoundTransition,
		GracePeriod:   models.RoundGracePeriod,
	}
}

func (s *Session) fire(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

func (s *Session) firePlayer(playerID uuid.UUID, ev Event) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(playerID, ev)
	}
}

func (s *Session) fireStateChanged(state models.GameState) {
	s.fire(Event{
		Type:    EventStateChanged,
		Payload: map[string]interface{}{"state": state},
	})
}

func (s *Session) fireRoomUpdatedUnsafe() {
	s.fire(Event{
		Type:    EventRoomUpdated,
		Payload: map[string]interface{}{"room": s.Room.SnapshotUnsafe()},
	})
}

// StartGame validates the host-issued start command and moves the room from
// lobby into countdown. Failed validations are no-ops on room state.
func (s *Session) StartGame(actorID uuid.UUID) error {
	s.Room.Mu.Lock()
	defer s.Room.Mu.Unlock()

	if s.Room.State != models.StateLobby {
		return ErrAlreadyStarted
	}
	if s.Room.HostID != actorID {
		return ErrNotHost
	}
	min := models.MinPlayers
	if s.Room.Mode == models.ModeSingle {
		min = 1
	}
	if len(s.Room.Players) < min {
		return ErrNotEnoughPlayers
	}

	s.Room.State = models.StateCountdown
	s.Room.CurrentRound = 0
	s.startedAt = time.Now()

	log.Printf("Room %s: game starting (%d players, %d rounds)",
		s.Room.Code, len(s.Room.Players), s.Room.Config.NumberOfRounds)

	s.fireStateChanged(models.StateCountdown)
	s.tickCountdownUnsafe(models.CountdownSeconds)
	return nil
}

// tickCountdownUnsafe emits one descending count and schedules the next tick,
// or begins the round when the count is exhausted. Assumes the lock is held.
func (s *Session) tickCountdownUnsafe(count int) {
	if count <= 0 {
		s.beginRoundUnsafe()
		return
	}

	s.fire(Event{
		Type:    EventCountdown,
		Payload: map[string]interface{}{"count": count},
	})

	gen := s.roundGen
	s.countdownTimer = time.AfterFunc(s.CountdownTick, func() {
		s.Room.Mu.Lock()
		defer s.Room.Mu.Unlock()
		if s.roundGen != gen || s.Room.State != models.StateCountdown {
			return // stale tick, the machine moved on
		}
		s.tickCountdownUnsafe(count - 1)
	})
}

// beginRoundUnsafe opens the next round: picks minigame and participants,
// broadcasts the start and arms the timeout that closes the round if not all
// participants submit. Assumes the lock is held.
func (s *Session) beginRoundUnsafe() {
	s.Room.CurrentRound++
	rd := s.Engine.BuildRound(s.Room)
	s.Room.Rounds = append(s.Room.Rounds, rd)
	s.Room.State = models.StatePlaying

	cfg, ok := models.MiniGameConfigs[rd.Minigame]
	if !ok {
		cfg = models.MiniGameConfig{ID: rd.Minigame, Duration: s.Room.Config.RoundDuration}
	}
	timeout := time.Duration(cfg.Duration)*time.Second + s.GracePeriod

	log.Printf("Room %s: round %d starting, minigame %s, %d participants, timeout %s",
		s.Room.Code, rd.RoundNumber, rd.Minigame, len(rd.SelectedPlayers), timeout)

	s.fireStateChanged(models.StatePlaying)
	s.fire(Event{
		Type: EventRoundStart,
		Payload: map[string]interface{}{
			"round":        room.CopyRound(rd),
			"minigameData": models.MiniGameStart{GameType: rd.Minigame, Config: cfg},
		},
	})

	gen := s.roundGen
	s.roundTimer = time.AfterFunc(timeout, func() {
		s.Room.Mu.Lock()
		defer s.Room.Mu.Unlock()
		if s.roundGen != gen || s.Room.State != models.StatePlaying {
			// The round was already closed by full submission.
			log.Printf("Room %s: stale round timeout ignored", s.Room.Code)
			return
		}
		log.Printf("Room %s: round %d timed out with %d/%d results",
			s.Room.Code, s.Room.CurrentRound, len(rd.Results), len(rd.SelectedPlayers))
		s.closeRoundUnsafe()
	})
}

// HandleSubmission records a minigame result. Each selected participant is
// accepted exactly once per round; late or duplicate submissions, reports
// tagged with the wrong minigame and reports from non-participants are
// rejected back to the sender without touching room state.
func (s *Session) HandleSubmission(sub models.Submission) {
	s.Room.Mu.Lock()
	defer s.Room.Mu.Unlock()

	if s.Room.State != models.StatePlaying {
		log.Printf("Room %s: ignoring submission from %s, round is closed", s.Room.Code, sub.PlayerID)
		s.firePlayer(sub.PlayerID, ErrorEvent("No round is accepting submissions"))
		return
	}
	rd := s.Room.CurrentRoundUnsafe()
	if rd == nil {
		return
	}
	// The minigame tag pins a report to the round it was produced for; a
	// round-N report landing after round N+1 opened must not count there.
	if sub.GameType != rd.Minigame {
		log.Printf("Room %s: ignoring submission from %s for %s, current minigame is %s",
			s.Room.Code, sub.PlayerID, sub.GameType, rd.Minigame)
		s.firePlayer(sub.PlayerID, ErrorEvent("Submission is for a different minigame"))
		return
	}
	if !containsID(rd.SelectedPlayers, sub.PlayerID) {
		log.Printf("Room %s: ignoring submission from non-participant %s", s.Room.Code, sub.PlayerID)
		s.firePlayer(sub.PlayerID, ErrorEvent("Not a participant in this round"))
		return
	}
	for _, res := range rd.Results {
		if res.PlayerID == sub.PlayerID {
			log.Printf("Room %s: ignoring duplicate submission from %s", s.Room.Code, sub.PlayerID)
			s.firePlayer(sub.PlayerID, ErrorEvent("Result already submitted for this round"))
			return
		}
	}

	rd.Results = append(rd.Results, sub.Result())

	if s.allSubmittedUnsafe(rd) {
		s.closeRoundUnsafe()
	}
}

// HandlePlayerLeft re-evaluates the open round after a departure: leaving
// never cancels a round, but it shrinks the set of expected submitters, which
// can satisfy the all-submitted condition immediately.
func (s *Session) HandlePlayerLeft(playerID uuid.UUID) {
	s.Room.Mu.Lock()
	defer s.Room.Mu.Unlock()

	if s.Room.State != models.StatePlaying {
		return
	}
	rd := s.Room.CurrentRoundUnsafe()
	if rd != nil && s.allSubmittedUnsafe(rd) {
		log.Printf("Room %s: departure of %s completed round %d", s.Room.Code, playerID, rd.RoundNumber)
		s.closeRoundUnsafe()
	}
}

// allSubmittedUnsafe reports whether every selected participant still in the
// room has a result. Participants who left are no longer expected. A round
// whose every participant has gone only closes via the timeout or a later
// departure event, never spontaneously. Assumes the lock is held.
func (s *Session) allSubmittedUnsafe(rd *models.RoundData) bool {
	expected := 0
	for _, id := range rd.SelectedPlayers {
		if !s.Room.HasPlayerUnsafe(id) {
			continue
		}
		expected++
		found := false
		for _, res := range rd.Results {
			if res.PlayerID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return expected > 0 || len(rd.Results) > 0
}

// closeRoundUnsafe performs the playing -> roundResult transition exactly
// once: winner determination, score application, broadcasts and scheduling of
// the next phase. Bumping roundGen first neutralizes the pending timeout.
// Assumes the lock is held.
func (s *Session) closeRoundUnsafe() {
	s.roundGen++
	if s.roundTimer != nil {
		s.roundTimer.Stop()
		s.roundTimer = nil
	}

	rd := s.Room.CurrentRoundUnsafe()
	now := time.Now()
	rd.EndTime = &now

	if len(rd.Results) > 0 {
		winnerID, winnerTeamID, err := s.Engine.DetermineWinner(rd.Results, s.Room)
		if err == nil {
			rd.WinnerID = &winnerID
			rd.WinnerTeamID = winnerTeamID
			s.Engine.ApplyScores(s.Room, winnerID, rd.Results, winnerTeamID)
		}
	} else {
		log.Printf("Room %s: round %d closed with no results", s.Room.Code, rd.RoundNumber)
	}

	s.Room.State = models.StateRoundResult
	s.fireStateChanged(models.StateRoundResult)

	payload := map[string]interface{}{
		"results": append([]models.PlayerResult(nil), rd.Results...),
	}
	if rd.WinnerID != nil {
		payload["winnerId"] = *rd.WinnerID
	}
	if rd.WinnerTeamID != nil {
		payload["winnerTeamId"] = *rd.WinnerTeamID
	}
	s.fire(Event{Type: EventRoundEnd, Payload: payload})
	s.fireRoomUpdatedUnsafe()

	// Feed the round to the out-of-process stats consumer.
	go cache.PublishRoundRecord(context.Background(), cache.RoundRecord{
		RoomID:    s.Room.ID,
		RoomCode:  s.Room.Code,
		Mode:      s.Room.Mode,
		Round:     room.CopyRound(rd),
		Timestamp: now.Unix(),
	})

	gen := s.roundGen
	finished := s.Engine.IsGameFinished(s.Room)
	s.transitionTimer = time.AfterFunc(s.Transition, func() {
		s.Room.Mu.Lock()
		if s.roundGen != gen || s.Room.State != models.StateRoundResult {
			s.Room.Mu.Unlock()
			return
		}
		if finished {
			s.finishGameUnsafe() // unlocks internally
			return
		}
		s.Room.State = models.StateCountdown
		s.fireStateChanged(models.StateCountdown)
		s.tickCountdownUnsafe(models.CountdownSeconds)
		s.Room.Mu.Unlock()
	})
}

// finishGameUnsafe computes final standings once, credits game wins and
// broadcasts completion. The room stays joinable afterwards; the registry
// resets it to a fresh lobby on the next join. Takes the lock held and
// releases it before invoking OnGameEnd and persistence.
func (s *Session) finishGameUnsafe() {
	s.roundGen++
	s.Room.State = models.StateFinished

	standings := s.Engine.FinalStandings(s.Room)
	s.creditGameWinsUnsafe(standings)

	log.Printf("Room %s: game finished after %d rounds", s.Room.Code, s.Room.CurrentRound)

	s.fireStateChanged(models.StateFinished)
	s.fire(Event{
		Type:    EventGameFinished,
		Payload: map[string]interface{}{"finalStandings": standings},
	})
	s.fireRoomUpdatedUnsafe()

	result := &models.GameResult{
		RoomID:    s.Room.ID,
		RoomCode:  s.Room.Code,
		Mode:      s.Room.Mode,
		Standings: standings,
		Duration:  time.Since(s.startedAt).Seconds(),
		PlayedAt:  time.Now(),
	}
	for _, rd := range s.Room.Rounds {
		result.Rounds = append(result.Rounds, room.CopyRound(rd))
	}
	onEnd := s.OnGameEnd
	s.Room.Mu.Unlock()

	go database.RecordGameResult(context.Background(), result)
	if onEnd != nil {
		onEnd(result)
	}
}

// creditGameWinsUnsafe bumps GamesWon for the winning player, or for every
// member of the winning team. Assumes the lock is held.
func (s *Session) creditGameWinsUnsafe(standings models.FinalStandings) {
	switch {
	case standings.WinnerTeamID != nil:
		for _, p := range s.Room.Players {
			if p.TeamID != nil && *p.TeamID == *standings.WinnerTeamID {
				p.Stats.GamesWon++
			}
		}
	case standings.WinnerID != nil:
		if p := s.Room.FindPlayerUnsafe(*standings.WinnerID); p != nil {
			p.Stats.GamesWon++
		}
	}
}

// Stop cancels every scheduled task. Called when the room is torn down.
func (s *Session) Stop() {
	s.Room.Mu.Lock()
	defer s.Room.Mu.Unlock()

	s.roundGen++
	for _, t := range []*time.Timer{s.countdownTimer, s.roundTimer, s.transitionTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.countdownTimer, s.roundTimer, s.transitionTimer = nil, nil, nil
}

func containsID(ids []uuid.UUID, target uuid.UUID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
