// internal/statsworker/worker.go
package statsworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/partyblitz/server/internal/cache"
	"github.com/partyblitz/server/internal/database"
)

// Worker drains per-round records from the Redis feed the coordinator pushes
// onto and persists them to Postgres in batches. It runs as its own process
// so round history writes never sit on the game path.
type Worker struct {
	redisClient *redis.Client
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu sync.Mutex
	batch   []cache.RoundRecord

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewWorker constructs a Worker from environment variables or defaults.
func NewWorker() *Worker {
	batchSize := getEnvInt("STATS_BATCH_SIZE", 20)
	flushMs := getEnvInt("STATS_FLUSH_MS", 500)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		redisClient: rdb,
		queueName:   getEnv("ROUND_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.RoundRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run blocks until Stop is called, reading the feed and flushing batches on
// a timer.
func (w *Worker) Run() error {
	if err := database.ConnectDB(); err != nil {
		return fmt.Errorf("connect db: %w", err)
	}

	go w.readFeedLoop()

	log.Println("statsworker started.")
	<-w.ctx.Done()
	w.flushBatch()
	log.Println("statsworker shutting down.")
	return nil
}

// Stop cancels the worker's loops. The in-flight batch is flushed on the way
// out.
func (w *Worker) Stop() {
	w.cancelFn()
}

// readFeedLoop pops round records off the Redis list and accumulates them,
// flushing on a delay so bursts coalesce into one transaction.
func (w *Worker) readFeedLoop() {
	ticker := time.NewTicker(w.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.flushBatch()

		default:
			// BLPop with a short timeout so cancellation is picked up.
			res, err := w.redisClient.BLPop(w.ctx, 3*time.Second, w.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if w.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			record, err := decodeRecord([]byte(res[1]))
			if err != nil {
				log.Printf("invalid round record: %v", err)
				continue
			}
			w.appendToBatch(record)
		}
	}
}

func decodeRecord(data []byte) (cache.RoundRecord, error) {
	var record cache.RoundRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return cache.RoundRecord{}, err
	}
	return record, nil
}

// appendToBatch adds a record and flushes early once the threshold is hit.
func (w *Worker) appendToBatch(record cache.RoundRecord) {
	w.batchMu.Lock()
	w.batch = append(w.batch, record)
	full := len(w.batch) >= w.batchSize
	w.batchMu.Unlock()

	if full {
		w.flushBatch()
	}
}

// flushBatch writes the pending records to Postgres in one transaction.
func (w *Worker) flushBatch() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batchCopy := make([]cache.RoundRecord, len(w.batch))
	copy(batchCopy, w.batch)
	w.batch = w.batch[:0]
	w.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoundTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoundTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatch: %v", err)
	} else {
		log.Printf("Flushed %d rounds to DB.", len(batchCopy))
	}
}

// insertRoundTx stores one round's outcome in the round_history table. The
// full result list rides along as json for later analysis.
func insertRoundTx(ctx context.Context, tx pgx.Tx, rec cache.RoundRecord) error {
	resultsJSON, err := json.Marshal(rec.Round.Results)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO round_history
			(room_id, room_code, mode, round_number, minigame, winner_id, winner_team_id, results, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9))
	`
	_, err = tx.Exec(ctx, q,
		rec.RoomID,
		rec.RoomCode,
		string(rec.Mode),
		rec.Round.RoundNumber,
		string(rec.Round.Minigame),
		rec.Round.WinnerID,
		rec.Round.WinnerTeamID,
		resultsJSON,
		rec.Timestamp,
	)
	return err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
