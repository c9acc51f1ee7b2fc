package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
)

func TestRedisLogKeepsWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := NewRedisLog(client, time.Hour, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, Entry{SessionID: "caller-1", Role: nlu.RoleUser, Content: fmt.Sprintf("msg-%d", i)}))
	}

	all, err := log.Recent(ctx, "caller-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "msg-2", all[0].Content)
	assert.NotEmpty(t, all[0].ID)

	last, err := log.Recent(ctx, "caller-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-3", "msg-4"}, []string{last[0].Content, last[1].Content})

	empty, err := log.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, log.Append(ctx, Entry{Content: "orphan"}))
}

func TestMemoryLogAndHistory(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, Entry{SessionID: "s", Role: nlu.RoleUser, Content: "hi"}))
	require.NoError(t, log.Append(ctx, Entry{SessionID: "s", Role: nlu.RoleAssistant, Content: "hello"}))
	require.NoError(t, log.Append(ctx, Entry{SessionID: "s", Role: nlu.RoleUser, Content: "book"}))

	recent, err := log.Recent(ctx, "s", 2)
	require.NoError(t, err)
	assert.Equal(t, []nlu.Message{
		{Role: nlu.RoleAssistant, Content: "hello"},
		{Role: nlu.RoleUser, Content: "book"},
	}, History(recent))
}

func TestPostgresLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	log := newPostgresLogWithExec(mock)
	ts := time.Date(2025, 9, 15, 9, 0, 0, 0, time.UTC)
	entities := nlu.Entities{Specialty: "Cardiology"}
	raw, _ := json.Marshal(entities)

	mock.ExpectExec("INSERT INTO session_messages").
		WithArgs("m1", "caller-1", "user", "cardiology please", "provide_info", 0.9, raw, ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	err = log.Append(context.Background(), Entry{
		ID: "m1", SessionID: "caller-1", Role: "user", Content: "cardiology please",
		Intent: nlu.IntentProvideInfo, Confidence: 0.9, Entities: entities, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	mock.ExpectQuery("FROM session_messages").WithArgs("caller-1", 10).WillReturnRows(
		pgxmock.NewRows([]string{"id", "session_id", "role", "content", "intent", "confidence", "entities", "created_at"}).
			AddRow("m1", "caller-1", "user", "cardiology please", "provide_info", 0.9, raw, ts))
	entries, err := log.Recent(context.Background(), "caller-1", 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Entities.Specialty != "Cardiology" || entries[0].Intent != nlu.IntentProvideInfo {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
