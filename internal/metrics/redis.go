// internal/metrics/redis.go
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup; it
// may stay nil, in which case publishing is a no-op.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for gateway event records.
var DefaultQueueName = "gateway_events"

// EventRecord is one analytics event pushed to the queue for offline
// consumers (matchmaking dashboards, retention jobs).
type EventRecord struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    int64          `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
func ConnectRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	Rdb = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// Publish serializes the record and pushes it to the queue. Best-effort: with
// no Redis connected it silently does nothing, and errors never reach the
// connection handlers.
func Publish(ctx context.Context, record EventRecord) error {
	if Rdb == nil {
		return nil
	}
	record.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal event record: %w", err)
	}
	queue := os.Getenv("GATEWAY_EVENT_QUEUE")
	if queue == "" {
		queue = DefaultQueueName
	}
	if err := Rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queue, err)
	}
	return nil
}
