package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	redisKeyPrefix  = "booking:transcript:"
	defaultRedisTTL = 24 * time.Hour
)

// RedisLog keeps a bounded window of recent entries per session.
type RedisLog struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

// NewRedisLog creates a Redis transcript keeping at most maxMessages entries.
func NewRedisLog(client *redis.Client, ttl time.Duration, maxMessages int64) *RedisLog {
	if client == nil {
		panic("transcript: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &RedisLog{
		redis:       client,
		tracer:      otel.Tracer("clinic-booking-assistant/internal/transcript"),
		ttl:         ttl,
		maxMessages: maxMessages,
	}
}

func (l *RedisLog) Append(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("transcript: session id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	ctx, span := l.tracer.Start(ctx, "transcript.append")
	defer span.End()

	key := redisKeyPrefix + e.SessionID
	pipe := l.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, l.ttl)
	pipe.LTrim(ctx, key, -l.maxMessages, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "transcript.recent")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := l.redis.LRange(ctx, redisKeyPrefix+sessionID, start, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
