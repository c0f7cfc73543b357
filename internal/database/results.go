// internal/database/results.go
package database

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/partyblitz/server/internal/models"
)

// RecordGameResult persists the final outcome of one game: a game_results row
// plus one player_results row per final standing entry. It is called
// asynchronously at game end and never blocks or fails game flow; in-flight
// room state is deliberately not persisted.
func RecordGameResult(ctx context.Context, result *models.GameResult) {
	if DB == nil {
		return
	}

	roundsJSON, err := json.Marshal(result.Rounds)
	if err != nil {
		log.Printf("WARNING: failed to marshal rounds for room %s: %v", result.RoomCode, err)
		return
	}

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO game_results (room_id, room_code, mode, winner_id, winner_team_id, duration_sec, rounds, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, e := tx.Exec(ctx, q,
			result.RoomID, result.RoomCode, string(result.Mode),
			result.Standings.WinnerID, result.Standings.WinnerTeamID,
			result.Duration, roundsJSON, result.PlayedAt,
		); e != nil {
			return e
		}

		for _, ps := range result.Standings.Players {
			q := `
				INSERT INTO player_results (room_id, played_at, player_id, score, rounds_won, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
			`
			didWin := result.Standings.WinnerID != nil && *result.Standings.WinnerID == ps.PlayerID
			if _, e := tx.Exec(ctx, q, result.RoomID, result.PlayedAt, ps.PlayerID, ps.Score, ps.RoundsWon, didWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("WARNING: failed to record game result for room %s: %v", result.RoomCode, err)
	}
}
