package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

var (
	// ErrNotFound is returned by backends when no session exists for an id.
	ErrNotFound = errors.New("session: not found")
	// ErrConflict is returned by durable backends when a newer version is already stored.
	ErrConflict = errors.New("session: version conflict")
	// ErrStoreUnavailable marks retryable storage failures.
	ErrStoreUnavailable = errors.New("session: store unavailable")
)

// Cache is the fast session copy (Redis in production).
type Cache interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Durable is the long-lived session copy (Postgres or DynamoDB).
type Durable interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Store coordinates the cache and durable copies of a session.
type Store struct {
	cache   Cache
	durable Durable
	logger  *logging.Logger
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a session store.
func NewStore(cache Cache, durable Durable, logger *logging.Logger, opts ...StoreOption) *Store {
	if cache == nil {
		panic("session: cache cannot be nil")
	}
	if durable == nil {
		panic("session: durable store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		cache:   cache,
		durable: durable,
		logger:  logger,
		tracer:  otel.Tracer("clinic-booking-assistant/internal/session"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the reconciled session or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	cached, cacheErr := s.cacheGet(ctx, id)
	if cacheErr != nil && !errors.Is(cacheErr, ErrNotFound) {
		span.RecordError(cacheErr)
		s.logger.Warn("session cache read failed", "session_id", id, "error", cacheErr)
	}

	durable, durableErr := s.durableLoad(ctx, id)
	if durableErr != nil && !errors.Is(durableErr, ErrNotFound) {
		span.RecordError(durableErr)
		if cached != nil {
			s.logger.Warn("session durable read failed, serving cached copy", "session_id", id, "error", durableErr)
			return cached, nil
		}
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, id, durableErr)
	}

	switch {
	case cached == nil && durable == nil:
		return nil, ErrNotFound
	case cached == nil:
		s.backfill(ctx, durable)
		return durable, nil
	case durable == nil:
		return cached, nil
	}

	merged := Reconcile(cached, durable)
	if merged != cached {
		s.backfill(ctx, merged)
	}
	return merged, nil
}

// GetOrCreate returns the stored session or a fresh one. Creation is
// deterministic per id and is not persisted until the first Save.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return New(id, s.now()), nil
	}
	return sess, err
}

// Save validates the session, bumps its version and writes the cache then
// the durable copy. When the durable write fails the cache entry is dropped
// so the next read falls back to the durable copy.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	if err := sess.Validate(); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	prevVersion, prevUpdated := sess.Version, sess.UpdatedAt
	sess.Version++
	sess.UpdatedAt = s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}

	if err := s.cacheSet(ctx, sess); err != nil {
		span.RecordError(err)
		s.logger.Warn("session cache write failed", "session_id", sess.ID, "error", err)
	}

	if err := s.durableSave(ctx, sess); err != nil {
		span.RecordError(err)
		if delErr := s.cacheDelete(ctx, sess.ID); delErr != nil {
			s.logger.Error("session cache invalidation failed", "session_id", sess.ID, "error", delErr)
		}
		sess.Version, sess.UpdatedAt = prevVersion, prevUpdated
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("%w: save %s: %w", ErrStoreUnavailable, sess.ID, err)
		}
		return fmt.Errorf("%w: save %s: %v", ErrStoreUnavailable, sess.ID, err)
	}
	return nil
}

// Reset clears the booking of an existing session and saves it.
func (s *Store) Reset(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ResetBooking()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reconcile picks between diverging cache and durable copies: the higher
// Version wins; on a tie that disagrees on PreviousState the copy holding a
// snapshot wins so a parked booking is never lost.
func Reconcile(cached, durable *Session) *Session {
	switch {
	case cached == nil:
		return durable
	case durable == nil:
		return cached
	case durable.Version > cached.Version:
		return durable
	case cached.Version > durable.Version:
		return cached
	}
	if cached.PreviousState == "" && durable.PreviousState != "" {
		return durable
	}
	return cached
}

func (s *Store) backfill(ctx context.Context, sess *Session) {
	if err := s.cacheSet(ctx, sess); err != nil {
		s.logger.Warn("session cache backfill failed", "session_id", sess.ID, "error", err)
	}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) cacheGet(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.cache.Get(ctx, id)
}

func (s *Store) cacheSet(ctx context.Context, sess *Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.cache.Set(ctx, sess)
}

func (s *Store) cacheDelete(ctx context.Context, id string) error {
	// invalidation must run even when the turn context is already done
	ctx, cancel := s.bound(context.WithoutCancel(ctx))
	defer cancel()
	return s.cache.Delete(ctx, id)
}

func (s *Store) durableLoad(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.durable.Load(ctx, id)
}

func (s *Store) durableSave(ctx context.Context, sess *Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.durable.Save(ctx, sess)
}
