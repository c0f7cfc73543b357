// internal/game/session_test.go
package game

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partyblitz/server/internal/models"
	"github.com/partyblitz/server/internal/room"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]Event)}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) eventsOfType(t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.allEvents {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) playerEventsOfType(playerID uuid.UUID, t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.playerEvents[playerID] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// quizGame is deliberately absent from the static minigame catalog, so its
// round timeout collapses to RoundDuration plus the grace period and tests
// control it precisely.
const quizGame = models.MiniGameType("quiz")

// setupTestSession wires a room, an engine and a session with millisecond
// timings so full lifecycles run fast.
func setupTestSession(t *testing.T, numPlayers, rounds int) (*Session, *mockBroadcaster) {
	t.Helper()

	r := ffaRoom(numPlayers)
	r.Config.NumberOfRounds = rounds
	r.Config.EnabledGames = []models.MiniGameType{quizGame}
	r.Config.RoundDuration = 0

	sess := NewSession(r, NewEngine())
	sess.CountdownTick = time.Millisecond
	sess.Transition = 20 * time.Millisecond
	sess.GracePeriod = 60 * time.Millisecond

	mb := newMockBroadcaster()
	sess.BroadcastFn = mb.broadcastFn
	sess.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	return sess, mb
}

// waitForState polls until the room reaches the wanted state or the deadline
// passes.
func waitForState(t *testing.T, r *room.Room, want models.GameState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.Mu.Lock()
		got := r.State
		r.Mu.Unlock()
		if got == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	r.Mu.Lock()
	got := r.State
	r.Mu.Unlock()
	t.Fatalf("room never reached state %s (stuck at %s)", want, got)
}

func currentParticipants(r *room.Room) []uuid.UUID {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	rd := r.CurrentRoundUnsafe()
	if rd == nil {
		return nil
	}
	return append([]uuid.UUID(nil), rd.SelectedPlayers...)
}

func submitAll(sess *Session, score func(i int) int) {
	for i, id := range currentParticipants(sess.Room) {
		sess.HandleSubmission(models.Submission{
			PlayerID: id,
			GameType: quizGame,
			Answer:   models.SubmissionAnswer{Score: score(i)},
		})
	}
}

func TestStartGameValidation(t *testing.T) {
	sess, _ := setupTestSession(t, 2, 3)
	r := sess.Room

	err := sess.StartGame(r.Players[1].ID)
	assert.ErrorIs(t, err, ErrNotHost)

	solo, _ := setupTestSession(t, 1, 3)
	err = solo.StartGame(solo.Room.HostID)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	require.NoError(t, sess.StartGame(r.HostID))
	err = sess.StartGame(r.HostID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	sess.Stop()
}

func TestSinglePlayerModeStartsAlone(t *testing.T) {
	sess, _ := setupTestSession(t, 1, 3)
	sess.Room.Mode = models.ModeSingle
	sess.Room.Config.Mode = models.ModeSingle

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	sess.Stop()
}

func TestCountdownRunsIntoFirstRound(t *testing.T) {
	sess, mb := setupTestSession(t, 2, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ticks := mb.eventsOfType(EventCountdown)
	require.Len(t, ticks, models.CountdownSeconds)
	assert.Equal(t, 3, ticks[0].Payload["count"])
	assert.Equal(t, 1, ticks[2].Payload["count"])

	starts := mb.eventsOfType(EventRoundStart)
	require.Len(t, starts, 1)

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	assert.Equal(t, 1, sess.Room.CurrentRound)
	rd := sess.Room.CurrentRoundUnsafe()
	require.NotNil(t, rd)
	assert.Equal(t, 1, rd.RoundNumber)
	assert.Len(t, rd.SelectedPlayers, 2)
}

func TestFullSubmissionClosesRound(t *testing.T) {
	sess, mb := setupTestSession(t, 3, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	submitAll(sess, func(i int) int { return 100 - i*10 })

	sess.Room.Mu.Lock()
	rd := sess.Room.CurrentRoundUnsafe()
	assert.Equal(t, models.StateRoundResult, sess.Room.State,
		"round closes as soon as every participant has submitted")
	require.Len(t, rd.Results, 3)
	require.NotNil(t, rd.WinnerID)
	require.NotNil(t, rd.EndTime)
	sess.Room.Mu.Unlock()

	ends := mb.eventsOfType(EventRoundEnd)
	require.Len(t, ends, 1)
	assert.NotNil(t, ends[0].Payload["winnerId"])
}

func TestDuplicateAndForeignSubmissionsIgnored(t *testing.T) {
	sess, mb := setupTestSession(t, 3, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ids := currentParticipants(sess.Room)
	sess.HandleSubmission(models.Submission{PlayerID: ids[0], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 10}})
	sess.HandleSubmission(models.Submission{PlayerID: ids[0], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 99}})
	sess.HandleSubmission(models.Submission{PlayerID: uuid.New(), GameType: quizGame, Answer: models.SubmissionAnswer{Score: 50}})

	sess.Room.Mu.Lock()
	rd := sess.Room.CurrentRoundUnsafe()
	require.Len(t, rd.Results, 1)
	assert.Equal(t, 10, rd.Results[0].Score, "first submission wins, duplicate is dropped")
	assert.Equal(t, models.StatePlaying, sess.Room.State)
	sess.Room.Mu.Unlock()

	assert.Len(t, mb.playerEventsOfType(ids[0], EventError), 1,
		"duplicate submitter is told their result was already taken")
}

func TestSubmissionForWrongMinigameRejected(t *testing.T) {
	sess, mb := setupTestSession(t, 2, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ids := currentParticipants(sess.Room)
	sess.HandleSubmission(models.Submission{
		PlayerID: ids[0],
		GameType: models.GameSpeedMath, // current round is quizGame
		Answer:   models.SubmissionAnswer{Score: 100},
	})

	sess.Room.Mu.Lock()
	rd := sess.Room.CurrentRoundUnsafe()
	assert.Empty(t, rd.Results, "mismatched minigame tag must not be recorded")
	assert.Equal(t, models.StatePlaying, sess.Room.State)
	sess.Room.Mu.Unlock()

	assert.Len(t, mb.playerEventsOfType(ids[0], EventError), 1)

	// The correctly tagged report still goes through afterwards.
	sess.HandleSubmission(models.Submission{PlayerID: ids[0], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 40}})

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	rd = sess.Room.CurrentRoundUnsafe()
	require.Len(t, rd.Results, 1)
	assert.Equal(t, 40, rd.Results[0].Score)
}

func TestRoundTimeoutClosesWithPartialResults(t *testing.T) {
	sess, _ := setupTestSession(t, 2, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ids := currentParticipants(sess.Room)
	sess.HandleSubmission(models.Submission{PlayerID: ids[0], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 70}})

	waitForState(t, sess.Room, models.StateRoundResult, time.Second)

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	rd := sess.Room.CurrentRoundUnsafe()
	require.Len(t, rd.Results, 1)
	require.NotNil(t, rd.WinnerID)
	assert.Equal(t, ids[0], *rd.WinnerID)
}

func TestTimeoutWithNoSubmissionsClosesRound(t *testing.T) {
	sess, mb := setupTestSession(t, 2, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)
	waitForState(t, sess.Room, models.StateRoundResult, time.Second)

	sess.Room.Mu.Lock()
	rd := sess.Room.CurrentRoundUnsafe()
	assert.Empty(t, rd.Results)
	assert.Nil(t, rd.WinnerID)
	assert.Nil(t, rd.WinnerTeamID)
	require.NotNil(t, rd.EndTime)
	for _, p := range sess.Room.Players {
		assert.Zero(t, p.Stats.TotalScore)
		assert.Zero(t, p.Stats.RoundsWon)
		assert.Zero(t, p.Stats.RoundsPlayed)
	}
	sess.Room.Mu.Unlock()

	ends := mb.eventsOfType(EventRoundEnd)
	require.Len(t, ends, 1, "empty round still ends exactly once")
	assert.Empty(t, ends[0].Payload["results"])
	assert.NotContains(t, ends[0].Payload, "winnerId")
}

func TestLateSubmissionIsNoOp(t *testing.T) {
	sess, mb := setupTestSession(t, 2, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ids := currentParticipants(sess.Room)
	submitAll(sess, func(i int) int { return 50 })
	waitForState(t, sess.Room, models.StateRoundResult, time.Second)

	sess.HandleSubmission(models.Submission{PlayerID: ids[1], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 999}})

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	rd := sess.Room.CurrentRoundUnsafe()
	require.Len(t, rd.Results, 2)
	for _, res := range rd.Results {
		assert.Equal(t, 50, res.Score)
	}
	require.Len(t, mb.eventsOfType(EventRoundEnd), 1, "round closes exactly once")
}

func TestDepartureCompletesRound(t *testing.T) {
	sess, _ := setupTestSession(t, 3, 3)
	defer sess.Stop()

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	waitForState(t, sess.Room, models.StatePlaying, time.Second)

	ids := currentParticipants(sess.Room)
	sess.HandleSubmission(models.Submission{PlayerID: ids[0], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 30}})
	sess.HandleSubmission(models.Submission{PlayerID: ids[1], GameType: quizGame, Answer: models.SubmissionAnswer{Score: 20}})

	// Third participant drops before submitting.
	sess.Room.Mu.Lock()
	kept := sess.Room.Players[:0]
	for _, p := range sess.Room.Players {
		if p.ID != ids[2] {
			kept = append(kept, p)
		}
	}
	sess.Room.Players = kept
	sess.Room.Mu.Unlock()

	sess.HandlePlayerLeft(ids[2])

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	assert.Equal(t, models.StateRoundResult, sess.Room.State)
	rd := sess.Room.CurrentRoundUnsafe()
	require.NotNil(t, rd.WinnerID)
	assert.Equal(t, ids[0], *rd.WinnerID)
}

func TestGameRunsToCompletion(t *testing.T) {
	sess, mb := setupTestSession(t, 2, models.MinRounds)

	var (
		endMu     sync.Mutex
		endResult *models.GameResult
		endCalls  int
	)
	sess.OnGameEnd = func(result *models.GameResult) {
		endMu.Lock()
		defer endMu.Unlock()
		endResult = result
		endCalls++
	}

	require.NoError(t, sess.StartGame(sess.Room.HostID))

	// Player 0 wins every round.
	for round := 1; round <= models.MinRounds; round++ {
		waitForState(t, sess.Room, models.StatePlaying, 2*time.Second)
		sess.Room.Mu.Lock()
		assert.Equal(t, round, sess.Room.CurrentRound)
		sess.Room.Mu.Unlock()
		submitAll(sess, func(i int) int { return 100 - i*50 })
	}

	waitForState(t, sess.Room, models.StateFinished, 2*time.Second)
	time.Sleep(10 * time.Millisecond) // let OnGameEnd land

	sess.Room.Mu.Lock()
	winner := sess.Room.Players[0]
	assert.Equal(t, models.MinRounds, winner.Stats.RoundsWon)
	assert.Equal(t, models.MinRounds*100, winner.Stats.TotalScore)
	assert.Equal(t, 1, winner.Stats.GamesWon)
	assert.Equal(t, 0, sess.Room.Players[1].Stats.GamesWon)
	assert.Len(t, sess.Room.Rounds, models.MinRounds)
	sess.Room.Mu.Unlock()

	finished := mb.eventsOfType(EventGameFinished)
	require.Len(t, finished, 1)

	endMu.Lock()
	defer endMu.Unlock()
	assert.Equal(t, 1, endCalls)
	require.NotNil(t, endResult)
	require.NotNil(t, endResult.Standings.WinnerID)
	assert.Equal(t, winner.ID, *endResult.Standings.WinnerID)
	assert.Len(t, endResult.Rounds, models.MinRounds)

	sess.Stop()
}

func TestStopCancelsPendingTimers(t *testing.T) {
	sess, _ := setupTestSession(t, 2, 3)
	sess.CountdownTick = 25 * time.Millisecond

	require.NoError(t, sess.StartGame(sess.Room.HostID))
	sess.Stop()

	time.Sleep(100 * time.Millisecond)

	sess.Room.Mu.Lock()
	defer sess.Room.Mu.Unlock()
	assert.Equal(t, models.StateCountdown, sess.Room.State,
		"machine is frozen once stopped")
	assert.Equal(t, 0, sess.Room.CurrentRound)
}
