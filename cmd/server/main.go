// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/partyblitz/server/internal/auth"
	"github.com/partyblitz/server/internal/cache"
	"github.com/partyblitz/server/internal/database"
	"github.com/partyblitz/server/internal/handlers"
	"github.com/partyblitz/server/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Postgres and Redis are optional; the coordinator is fully in-memory
	// and only uses them for result persistence and the round feed.
	if err := database.ConnectDB(); err != nil {
		logger.Warnf("postgres unavailable, result persistence disabled: %v", err)
	}
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, round feed disabled: %v", err)
	}

	srv := handlers.NewServer()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", handlers.HealthHandler)
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomsHandler(srv),
	)))

	// room websocket; not behind LogMiddleware, the status recorder would
	// mask the Hijacker the upgrade needs
	mux.Handle("/ws", http.HandlerFunc(handlers.RoomWSHandler(logger, srv)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
