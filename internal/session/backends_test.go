package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client, time.Hour)
	ctx := context.Background()

	_, err := cache.Get(ctx, "caller-1")
	assert.ErrorIs(t, err, ErrNotFound)

	s := bookedSession()
	s.ID = "caller-1"
	s.Park()
	s.Suggest("Dr. Ana Silva", "Dr. Bruno Costa")
	require.NoError(t, cache.Set(ctx, s))
	assert.Equal(t, time.Hour, mr.TTL(cacheKey("caller-1")))

	got, err := cache.Get(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, StateAnsweringQuestion, got.CurrentState)
	assert.Equal(t, StateChoosingSchedule, got.PreviousState)
	assert.Equal(t, []string{"Dr. Ana Silva", "Dr. Bruno Costa"}, got.LastSuggestedPractitioners)

	require.NoError(t, cache.Delete(ctx, "caller-1"))
	_, err = cache.Get(ctx, "caller-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func sessionColumns() []string {
	return []string{
		"id", "current_state", "previous_state", "patient_name", "pending_name", "name_confirmed",
		"selected_specialty", "selected_practitioner", "preferred_date", "preferred_time",
		"last_suggested_practitioner", "last_suggested_practitioners",
		"handoff_link", "handoff_summary", "version", "created_at", "updated_at",
	}
}

func TestPostgresStoreLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithExec(mock)
	created := time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM booking_sessions").WithArgs("caller-1").WillReturnRows(
		pgxmock.NewRows(sessionColumns()).AddRow(
			"caller-1", "answering_question", "choosing_schedule", "Maria", "", true,
			"Cardiology", "Dr. Ana Silva", "2025-09-15", "", "Dr. Ana Silva", []string{"Dr. Ana Silva"},
			"", "", int64(7), created, created,
		))

	s, err := store.Load(context.Background(), "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrentState != StateAnsweringQuestion || s.PreviousState != StateChoosingSchedule {
		t.Fatalf("unexpected states: %s / %s", s.CurrentState, s.PreviousState)
	}
	if s.Version != 7 || s.PreferredDate != "2025-09-15" {
		t.Fatalf("unexpected session: %#v", s)
	}

	mock.ExpectQuery("FROM booking_sessions").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSaveGuardsVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithExec(mock)
	s := bookedSession()
	s.Version = 2

	args := make([]any, 17)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}

	mock.ExpectExec("INSERT INTO booking_sessions").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("INSERT INTO booking_sessions").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	if err := store.Save(context.Background(), s); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type mockDynamo struct {
	putInput *dynamodb.PutItemInput
	putErr   error
	item     map[string]types.AttributeValue
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.item = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.item}, nil
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoStore(mock, "booking_sessions")
	ctx := context.Background()

	_, err := store.Load(ctx, "caller-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := bookedSession()
	s.Version = 3
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(id) OR #version < :version" {
		t.Fatalf("unexpected condition expression: %v", expr)
	}

	var stored Session
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored session: %v", err)
	}
	if stored.SelectedPractitioner != "Dr. Ana Silva" || stored.Version != 3 {
		t.Fatalf("unexpected stored session: %#v", stored)
	}

	loaded, err := store.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.PreferredTime != "09:30" {
		t.Fatalf("unexpected loaded session: %#v", loaded)
	}

	mock.putErr = &types.ConditionalCheckFailedException{}
	if err := store.Save(ctx, s); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
