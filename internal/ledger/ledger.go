// Package ledger records processed events so side effects run once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	// ScopeHandoff marks hand-off notifications keyed by booking fingerprint.
	ScopeHandoff = "handoff"
	// ScopeInbound marks inbound messages keyed by provider message id.
	ScopeInbound = "inbound"
)

// Ledger records (scope, key) pairs that were already handled.
type Ledger interface {
	AlreadyProcessed(ctx context.Context, scope, key string) (bool, error)
	// MarkProcessed records the pair and returns false if it already existed.
	MarkProcessed(ctx context.Context, scope, key string) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores markers in processed_events.
type PostgresLedger struct {
	pool rowQuerier
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &PostgresLedger{pool: pool}
}

func newPostgresLedgerWithExec(exec rowQuerier) *PostgresLedger {
	if exec == nil {
		panic("ledger: exec required")
	}
	return &PostgresLedger{pool: exec}
}

func (l *PostgresLedger) AlreadyProcessed(ctx context.Context, scope, key string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := l.pool.QueryRow(ctx, query, scope, key).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ledger: check processed: %w", err)
	}
	return true, nil
}

func (l *PostgresLedger) MarkProcessed(ctx context.Context, scope, key string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := l.pool.Exec(ctx, query, scope, key)
	if err != nil {
		return false, fmt.Errorf("ledger: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// RedisLedger stores markers as expiring keys.
type RedisLedger struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisLedger creates a Redis ledger. Markers expire after ttl (0 keeps them).
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if client == nil {
		panic("ledger: redis client cannot be nil")
	}
	return &RedisLedger{redis: client, ttl: ttl}
}

func (l *RedisLedger) AlreadyProcessed(ctx context.Context, scope, key string) (bool, error) {
	n, err := l.redis.Exists(ctx, redisKey(scope, key)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: check processed: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, scope, key string) (bool, error) {
	ok, err := l.redis.SetNX(ctx, redisKey(scope, key), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: mark processed: %w", err)
	}
	return ok, nil
}

func redisKey(scope, key string) string {
	return fmt.Sprintf("booking:processed:%s:%s", scope, key)
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (l *MemoryLedger) AlreadyProcessed(_ context.Context, scope, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[scope+"\x00"+key]
	return ok, nil
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, scope, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := scope + "\x00" + key
	if _, ok := l.seen[k]; ok {
		return false, nil
	}
	l.seen[k] = struct{}{}
	return true, nil
}
