// cmd/statsworker/main.go runs the asynchronous round-history persister: it
// pops round records from the coordinator's Redis feed and writes them to
// PostgreSQL in batches.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/partyblitz/server/internal/statsworker"
)

func main() {
	w := statsworker.NewWorker()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		w.Stop()
	}()

	if err := w.Run(); err != nil {
		log.Fatalf("statsworker exited: %v", err)
	}
}
