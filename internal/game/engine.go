// internal/game/engine.go
package game

import (
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/partyblitz/server/internal/models"
	"github.com/partyblitz/server/internal/room"
)

// Engine holds the pure per-round decision logic: minigame choice,
// participant selection, winner determination and score application. It keeps
// no state of its own between calls beyond its random source; the room is the
// unit of mutation.
//
// Every method assumes the caller holds the room lock.
type Engine struct {
	rng *rand.Rand
}

// NewEngine returns an engine with a time-seeded random source.
func NewEngine() *Engine {
	return &Engine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// SelectMinigame picks uniformly among the room's enabled minigames.
// Consecutive repeats are accepted.
func (e *Engine) SelectMinigame(r *room.Room) models.MiniGameType {
	games := r.Config.EnabledGames
	return games[e.rng.Intn(len(games))]
}

// SelectParticipants picks who actively plays this round: one random member
// per non-empty team in team mode, every current player otherwise. Teams with
// no members simply contribute nobody.
func (e *Engine) SelectParticipants(r *room.Room) []uuid.UUID {
	if r.Mode != models.ModeTeam {
		ids := make([]uuid.UUID, 0, len(r.Players))
		for _, p := range r.Players {
			ids = append(ids, p.ID)
		}
		return ids
	}

	var ids []uuid.UUID
	for _, t := range r.Teams {
		var members []uuid.UUID
		for _, p := range r.Players {
			if p.TeamID != nil && *p.TeamID == t.ID {
				members = append(members, p.ID)
			}
		}
		if len(members) == 0 {
			continue
		}
		ids = append(ids, members[e.rng.Intn(len(members))])
	}
	return ids
}

// BuildRound composes a fresh round record for the room's current round
// number. The caller owns incrementing CurrentRound beforehand.
func (e *Engine) BuildRound(r *room.Room) *models.RoundData {
	return &models.RoundData{
		RoundNumber:     r.CurrentRound,
		Minigame:        e.SelectMinigame(r),
		SelectedPlayers: e.SelectParticipants(r),
		Results:         []models.PlayerResult{},
		StartTime:       time.Now(),
	}
}

// DetermineWinner orders results by score descending, ties broken by elapsed
// time ascending (a missing time ranks last), and returns the top entry's
// player. In team mode the winner's team id is returned as well.
func (e *Engine) DetermineWinner(results []models.PlayerResult, r *room.Room) (uuid.UUID, *uuid.UUID, error) {
	if len(results) == 0 {
		return uuid.Nil, nil, ErrNoResults
	}

	sorted := append([]models.PlayerResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return resultTime(sorted[i]) < resultTime(sorted[j])
	})

	winnerID := sorted[0].PlayerID

	var winnerTeamID *uuid.UUID
	if r.Mode == models.ModeTeam {
		if winner := r.FindPlayerUnsafe(winnerID); winner != nil && winner.TeamID != nil {
			tid := *winner.TeamID
			winnerTeamID = &tid
		}
	}
	return winnerID, winnerTeamID, nil
}

func resultTime(res models.PlayerResult) float64 {
	if res.Time == nil {
		return float64(1<<63 - 1)
	}
	return *res.Time
}

// ApplyScores credits every submitted result to its player's cumulative stats
// and bumps the winner's rounds-won counter (and the winning team's score in
// team mode). Results from players no longer in the room are skipped.
func (e *Engine) ApplyScores(r *room.Room, winnerID uuid.UUID, results []models.PlayerResult, winnerTeamID *uuid.UUID) {
	for _, res := range results {
		p := r.FindPlayerUnsafe(res.PlayerID)
		if p == nil {
			log.Printf("Room %s: skipping result for unknown player %s", r.Code, res.PlayerID)
			continue
		}
		p.Stats.TotalScore += res.Score
		p.Stats.RoundsPlayed++
		if res.PlayerID == winnerID {
			p.Stats.RoundsWon++
		}
	}

	if r.Mode == models.ModeTeam && winnerTeamID != nil {
		if t := r.FindTeamUnsafe(*winnerTeamID); t != nil {
			t.Score++
		}
	}
}

// IsGameFinished reports whether the configured round count has been played.
func (e *Engine) IsGameFinished(r *room.Room) bool {
	return r.CurrentRound >= r.Config.NumberOfRounds
}

// FinalStandings ranks teams by score in team mode, otherwise players by
// total score with rounds won as the tiebreaker. The top entry is the winner.
func (e *Engine) FinalStandings(r *room.Room) models.FinalStandings {
	if r.Mode == models.ModeTeam {
		teams := make([]models.TeamStanding, 0, len(r.Teams))
		for _, t := range r.Teams {
			teams = append(teams, models.TeamStanding{TeamID: t.ID, Score: t.Score})
		}
		sort.SliceStable(teams, func(i, j int) bool {
			return teams[i].Score > teams[j].Score
		})
		standings := models.FinalStandings{Teams: teams}
		if len(teams) > 0 {
			w := teams[0].TeamID
			standings.WinnerTeamID = &w
		}
		return standings
	}

	players := make([]models.PlayerStanding, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, models.PlayerStanding{
			PlayerID:  p.ID,
			Score:     p.Stats.TotalScore,
			RoundsWon: p.Stats.RoundsWon,
		})
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].RoundsWon > players[j].RoundsWon
	})
	standings := models.FinalStandings{Players: players}
	if len(players) > 0 {
		w := players[0].PlayerID
		standings.WinnerID = &w
	}
	return standings
}
