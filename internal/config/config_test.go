package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("NLU_PROVIDER", "")
	t.Setenv("SLOT_STEP", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.NLUProvider != "keyword" {
		t.Fatalf("expected keyword oracle by default, got %s", cfg.NLUProvider)
	}
	if cfg.SlotStep != 30*time.Minute {
		t.Fatalf("expected 30m slot step, got %s", cfg.SlotStep)
	}
	if cfg.SameDayAlternatives != 8 || cfg.OtherDayAlternatives != 3 {
		t.Fatalf("expected 8/3 alternatives, got %d/%d", cfg.SameDayAlternatives, cfg.OtherDayAlternatives)
	}
	if cfg.SessionDurableBackend != "postgres" {
		t.Fatalf("expected postgres durable backend, got %s", cfg.SessionDurableBackend)
	}
}

func TestBlockBusyOverlapsDefaultsByCalendarBackend(t *testing.T) {
	t.Setenv("AVAILABILITY_BLOCK_OVERLAPS", "")
	t.Setenv("CALENDAR_BACKEND", "postgres")
	if Load().BlockBusyOverlaps {
		t.Fatal("expected exact-start matching for the postgres calendar")
	}

	t.Setenv("CALENDAR_BACKEND", "Google")
	if !Load().BlockBusyOverlaps {
		t.Fatal("expected overlap blocking for the google calendar")
	}

	t.Setenv("AVAILABILITY_BLOCK_OVERLAPS", "false")
	if Load().BlockBusyOverlaps {
		t.Fatal("expected explicit setting to win over the backend default")
	}

	t.Setenv("CALENDAR_BACKEND", "postgres")
	t.Setenv("AVAILABILITY_BLOCK_OVERLAPS", "true")
	if !Load().BlockBusyOverlaps {
		t.Fatal("expected overlap blocking when enabled explicitly")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_DURABLE_BACKEND", " DynamoDB ")
	t.Setenv("TURN_TIMEOUT", "45s")
	t.Setenv("AVAILABILITY_HORIZON_DAYS", "21")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("SAME_DAY_ALTERNATIVES", "not-a-number")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.SessionDurableBackend != "dynamodb" {
		t.Fatalf("expected normalized backend, got %q", cfg.SessionDurableBackend)
	}
	if cfg.TurnTimeout != 45*time.Second {
		t.Fatalf("expected turn timeout override, got %s", cfg.TurnTimeout)
	}
	if cfg.AvailabilityHorizonDays != 21 {
		t.Fatalf("expected horizon override, got %d", cfg.AvailabilityHorizonDays)
	}
	if !cfg.UseMemoryQueue {
		t.Fatal("expected memory queue enabled")
	}
	if cfg.SameDayAlternatives != 8 {
		t.Fatalf("expected invalid int to fall back to default, got %d", cfg.SameDayAlternatives)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Not/AZone"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %s", cfg.Location())
	}
	cfg.ClinicTimezone = "America/Sao_Paulo"
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Fatalf("expected Sao Paulo, got %s", cfg.Location())
	}
}

func TestLoadHTTPSettings(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TURN_RATE_LIMIT", "0.5")
	t.Setenv("TURN_RATE_BURST", "")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.TurnRateLimit != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", cfg.TurnRateLimit)
	}
	if cfg.TurnRateBurst != 10 {
		t.Fatalf("expected default burst, got %d", cfg.TurnRateBurst)
	}
}
