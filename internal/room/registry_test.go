// internal/room/registry_test.go
package room

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partyblitz/server/internal/models"
)

func testPlayer(name string) *models.Player {
	return &models.Player{
		ID:          uuid.New(),
		Name:        name,
		Avatar:      "🦊",
		Platform:    "web",
		IsConnected: true,
	}
}

func ffaConfig() models.GameConfig {
	return models.GameConfig{
		Mode:         models.ModeFFA,
		EnabledGames: []models.MiniGameType{models.GameSpeedMath, models.GameReactionDash},
	}
}

func teamConfig(teams int) models.GameConfig {
	cfg := ffaConfig()
	cfg.Mode = models.ModeTeam
	cfg.NumberOfTeams = teams
	return cfg
}

func TestCreateRoomDefaultsAndCode(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")

	r, err := reg.CreateRoom(ffaConfig(), host)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), r.Code)
	assert.Equal(t, models.StateLobby, r.State)
	assert.Equal(t, models.MaxPlayers, r.Config.MaxPlayers)
	assert.Equal(t, models.DefaultRounds, r.Config.NumberOfRounds)
	assert.Equal(t, host.ID, r.HostID)
	assert.True(t, host.IsHost)
	assert.True(t, host.IsReady, "host must be implicitly ready")

	got, ok := reg.GetRoomByCode(r.Code)
	require.True(t, ok)
	assert.Equal(t, r.ID, got.ID)
}

func TestCreateRoomCodesUnique(t *testing.T) {
	reg := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		r, err := reg.CreateRoom(ffaConfig(), testPlayer(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
		assert.False(t, seen[r.Code], "code %s issued twice", r.Code)
		seen[r.Code] = true
	}
}

func TestCreateRoomInvalidConfig(t *testing.T) {
	reg := NewRegistry()

	noGames := ffaConfig()
	noGames.EnabledGames = nil
	_, err := reg.CreateRoom(noGames, testPlayer("a"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	tooManyRounds := ffaConfig()
	tooManyRounds.NumberOfRounds = models.MaxRounds + 1
	_, err = reg.CreateRoom(tooManyRounds, testPlayer("b"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	oneTeam := teamConfig(1)
	_, err = reg.CreateRoom(oneTeam, testPlayer("c"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddPlayerCapacityAndState(t *testing.T) {
	cfg := ffaConfig()
	cfg.MaxPlayers = 2

	reg := NewRegistry()
	r, err := reg.CreateRoom(cfg, testPlayer("host"))
	require.NoError(t, err)

	_, err = reg.AddPlayer(r.Code, testPlayer("second"))
	require.NoError(t, err)

	_, err = reg.AddPlayer(r.Code, testPlayer("third"))
	assert.ErrorIs(t, err, ErrRoomFull)

	r.Mu.Lock()
	r.State = models.StatePlaying
	r.Mu.Unlock()
	_, err = reg.RemovePlayer(r.ID, r.Players[1].ID)
	require.NoError(t, err)
	_, err = reg.AddPlayer(r.Code, testPlayer("late"))
	assert.ErrorIs(t, err, ErrGameInProgress)

	_, err = reg.AddPlayer("ZZZZZZ", testPlayer("lost"))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAddPlayerResetsFinishedRoom(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")
	r, err := reg.CreateRoom(ffaConfig(), host)
	require.NoError(t, err)

	r.Mu.Lock()
	r.State = models.StateFinished
	r.CurrentRound = 10
	r.Rounds = []*models.RoundData{{RoundNumber: 10}}
	host.Stats = models.PlayerStats{RoundsWon: 4, RoundsPlayed: 10, TotalScore: 900, GamesPlayed: 1, GamesWon: 1}
	r.Mu.Unlock()

	_, err = reg.AddPlayer(r.Code, testPlayer("returning"))
	require.NoError(t, err)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, models.StateLobby, r.State)
	assert.Equal(t, 0, r.CurrentRound)
	assert.Empty(t, r.Rounds)
	assert.Equal(t, 0, host.Stats.RoundsWon)
	assert.Equal(t, 0, host.Stats.TotalScore)
	assert.Equal(t, 2, host.Stats.GamesPlayed, "lifetime games counter carries over")
	assert.Equal(t, 1, host.Stats.GamesWon)
	assert.True(t, host.IsReady)
}

func TestRemovePlayerHostPromotionAndTeardown(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")
	r, err := reg.CreateRoom(ffaConfig(), host)
	require.NoError(t, err)

	second := testPlayer("second")
	_, err = reg.AddPlayer(r.Code, second)
	require.NoError(t, err)

	got, err := reg.RemovePlayer(r.ID, host.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	got.Mu.Lock()
	assert.Equal(t, second.ID, got.HostID)
	assert.True(t, second.IsHost)
	assert.True(t, second.IsReady)
	code := got.Code
	got.Mu.Unlock()

	got, err = reg.RemovePlayer(r.ID, second.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "empty room is deleted")

	_, ok := reg.GetRoomByCode(code)
	assert.False(t, ok, "code is freed with the room")
	_, err = reg.RemovePlayer(r.ID, second.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSetReadyHostStaysReady(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")
	r, err := reg.CreateRoom(ffaConfig(), host)
	require.NoError(t, err)
	p := testPlayer("guest")
	_, err = reg.AddPlayer(r.Code, p)
	require.NoError(t, err)

	_, err = reg.SetReady(r.ID, p.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsReady)

	_, err = reg.SetReady(r.ID, p.ID, false)
	require.NoError(t, err)
	assert.False(t, p.IsReady)

	_, err = reg.SetReady(r.ID, host.ID, false)
	require.NoError(t, err)
	assert.True(t, host.IsReady)
}

func TestTeamAssignmentRandomBalances(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")
	r, err := reg.CreateRoom(teamConfig(2), host)
	require.NoError(t, err)

	require.Len(t, r.Teams, 2)
	assert.Equal(t, "Red Team", r.Teams[0].Name)
	assert.Equal(t, "Blue Team", r.Teams[1].Name)
	require.NotNil(t, host.TeamID)
	assert.Equal(t, r.Teams[0].ID, *host.TeamID)

	for i := 0; i < 3; i++ {
		_, err = reg.AddPlayer(r.Code, testPlayer(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Len(t, r.Teams[0].PlayerIDs, 2)
	assert.Len(t, r.Teams[1].PlayerIDs, 2)
}

func TestChangeTeamExclusiveMembership(t *testing.T) {
	reg := NewRegistry()
	host := testPlayer("host")
	r, err := reg.CreateRoom(teamConfig(2), host)
	require.NoError(t, err)

	_, err = reg.ChangeTeam(r.ID, host.ID, r.Teams[1].ID)
	require.NoError(t, err)

	r.Mu.Lock()
	assert.Empty(t, r.Teams[0].PlayerIDs)
	require.Len(t, r.Teams[1].PlayerIDs, 1)
	assert.Equal(t, host.ID, r.Teams[1].PlayerIDs[0])
	require.NotNil(t, host.TeamID)
	assert.Equal(t, r.Teams[1].ID, *host.TeamID)
	r.Mu.Unlock()

	// Unknown team clears the assignment.
	_, err = reg.ChangeTeam(r.ID, host.ID, uuid.New())
	require.NoError(t, err)
	r.Mu.Lock()
	assert.Nil(t, host.TeamID)
	r.Mu.Unlock()
}

func TestRandomizeTeamsKeepsSizesWithinOne(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.CreateRoom(teamConfig(3), testPlayer("host"))
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err = reg.AddPlayer(r.Code, testPlayer(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}

	_, err = reg.RandomizeTeams(r.ID)
	require.NoError(t, err)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	total := 0
	for _, team := range r.Teams {
		n := len(team.PlayerIDs)
		total += n
		assert.InDelta(t, 7.0/3.0, float64(n), 1.0)
	}
	assert.Equal(t, 7, total)

	for _, p := range r.Players {
		require.NotNil(t, p.TeamID)
	}
}
