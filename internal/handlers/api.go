// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// roomSummary is the public listing shape; it deliberately omits player
// identities and round detail.
type roomSummary struct {
	Code        string `json:"code"`
	Mode        string `json:"mode"`
	State       string `json:"state"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomsHandler lists the currently registered rooms.
func RoomsHandler(srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := srv.Registry.Rooms()
		out := make([]roomSummary, 0, len(rooms))
		for _, rm := range rooms {
			snap := rm.Snapshot()
			out = append(out, roomSummary{
				Code:        snap.Code,
				Mode:        string(snap.Mode),
				State:       string(snap.State),
				PlayerCount: len(snap.Players),
				MaxPlayers:  snap.Config.MaxPlayers,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to encode response: %v", err)
	}
}
