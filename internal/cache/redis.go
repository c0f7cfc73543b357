// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/partyblitz/server/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup;
// left nil, the round feed is silently disabled so the coordinator can run
// standalone.
var Rdb *redis.Client

// DefaultQueueName is the Redis list the per-round records are pushed onto.
var DefaultQueueName = "partyblitz_rounds"

// RoundRecord is the minimal per-round summary an out-of-process stats
// consumer needs: who played, what they scored and who won.
type RoundRecord struct {
	RoomID    uuid.UUID        `json:"room_id"`
	RoomCode  string           `json:"room_code"`
	Mode      models.GameMode  `json:"mode"`
	Round     models.RoundData `json:"round"`
	Timestamp int64            `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishRoundRecord serializes the record to JSON and pushes it onto the
// round queue. No-ops when Redis was never connected; failures are logged,
// never surfaced to game flow.
func PublishRoundRecord(ctx context.Context, record RoundRecord) {
	if Rdb == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("WARNING: failed to marshal RoundRecord for room %s: %v", record.RoomCode, err)
		return
	}

	queueName := getEnv("ROUND_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		log.Printf("WARNING: failed to RPush round record to '%s': %v", queueName, err)
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
