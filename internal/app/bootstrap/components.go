package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/calendar"
	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/internal/ledger"
	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
	"github.com/wolfman30/clinic-booking-assistant/internal/notify"
	"github.com/wolfman30/clinic-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/internal/transcript"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

const (
	ledgerRedisTTL      = 7 * 24 * time.Hour
	transcriptRedisKeep = 100
)

// BuildSessionStore wires the session cache and durable copy. Redis is the
// cache when available; otherwise sessions are cached in process.
func BuildSessionStore(cfg *appconfig.Config, res *Resources, logger *logging.Logger) (*session.Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	res = orEmpty(res)

	var cache session.Cache
	if res.Redis != nil {
		cache = session.NewRedisCache(res.Redis, cfg.SessionCacheTTL)
	} else {
		logger.Warn("redis not configured; caching sessions in memory")
		cache = session.NewMemoryStore()
	}

	var durable session.Durable
	switch cfg.SessionDurableBackend {
	case "postgres", "":
		if res.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: session backend postgres requires DATABASE_URL")
		}
		durable = session.NewPostgresStore(res.Postgres)
	case "dynamodb":
		if res.AWS == nil {
			return nil, fmt.Errorf("bootstrap: session backend dynamodb requires AWS config")
		}
		durable = session.NewDynamoStore(dynamodb.NewFromConfig(*res.AWS), cfg.SessionsTable)
	case "memory":
		logger.Warn("durable sessions kept in memory; sessions are lost on restart")
		durable = session.NewMemoryStore()
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionDurableBackend)
	}

	logger.Info("session store configured", "durable", cfg.SessionDurableBackend, "redis_cache", res.Redis != nil)
	return session.NewStore(cache, durable, logger, session.WithTimeout(cfg.StoreTimeout)), nil
}

// BuildLocker returns the per-session lock. Redis locks are required when more
// than one process serves turns.
func BuildLocker(cfg *appconfig.Config, res *Resources) (session.Locker, error) {
	res = orEmpty(res)
	switch cfg.LockBackend {
	case "local", "":
		return session.NewKeyedMutex(), nil
	case "redis":
		if res.Redis == nil {
			return nil, fmt.Errorf("bootstrap: lock backend redis requires REDIS_ADDR")
		}
		return session.NewRedisLocker(res.Redis, cfg.LockTTL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown lock backend %q", cfg.LockBackend)
	}
}

// BuildCatalog loads the optional YAML seed and serves it from Redis when
// available so operators can replace the catalog without a deploy.
func BuildCatalog(cfg *appconfig.Config, res *Resources, logger *logging.Logger) (catalog.Provider, error) {
	if logger == nil {
		logger = logging.Default()
	}
	res = orEmpty(res)

	var seed *catalog.Catalog
	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		c, err := catalog.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		seed = c
		logger.Info("catalog seed loaded", "path", path, "specialties", len(c.Specialties), "practitioners", len(c.Practitioners))
	}
	if res.Redis != nil {
		return catalog.NewRedisStore(res.Redis, seed), nil
	}
	return catalog.NewStatic(seed), nil
}

// BuildCalendar returns the availability source wrapped with the calendar
// timeout and collaborator error accounting.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, res *Resources, catalogs catalog.Provider, m *metrics.BookingMetrics, logger *logging.Logger) (availability.Calendar, error) {
	if logger == nil {
		logger = logging.Default()
	}
	res = orEmpty(res)

	var inner availability.Calendar
	switch cfg.CalendarBackend {
	case "postgres", "":
		if res.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: calendar backend postgres requires DATABASE_URL")
		}
		inner = calendar.NewPostgresCalendar(res.Postgres, cfg.Location())
	case "google":
		freeBusy, err := calendar.NewGoogleCalendarService(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		hours := catalog.NewHours(catalogs)
		inner = calendar.NewGoogleCalendar(freeBusy, hours, hours.CalendarID, cfg.Location())
	default:
		return nil, fmt.Errorf("bootstrap: unknown calendar backend %q", cfg.CalendarBackend)
	}

	logger.Info("calendar configured", "backend", cfg.CalendarBackend, "timezone", cfg.Location().String())
	return calendar.NewGuarded(inner, cfg.CalendarTimeout, logger, calendar.WithErrorRecorder(m)), nil
}

// BuildOracle selects the language-understanding backend.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, res *Resources, logger *logging.Logger) (nlu.Oracle, error) {
	if logger == nil {
		logger = logging.Default()
	}
	res = orEmpty(res)

	switch cfg.NLUProvider {
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: bedrock oracle requires BEDROCK_MODEL_ID")
		}
		if res.AWS == nil {
			return nil, fmt.Errorf("bootstrap: bedrock oracle requires AWS config")
		}
		client := nlu.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*res.AWS))
		logger.Info("using bedrock oracle", "model", cfg.BedrockModelID)
		return nlu.NewLLMOracle(client, cfg.BedrockModelID, logger), nil
	case "gemini":
		client, err := nlu.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("using gemini oracle", "model", cfg.GeminiModelID)
		return nlu.NewLLMOracle(client, cfg.GeminiModelID, logger), nil
	case "keyword", "":
		logger.Warn("using keyword oracle; only simple phrasings are understood")
		return nlu.NewKeywordOracle(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown nlu provider %q", cfg.NLUProvider)
	}
}

// BuildTranscript prefers Postgres, then a bounded Redis window, then memory.
func BuildTranscript(cfg *appconfig.Config, res *Resources) transcript.Log {
	res = orEmpty(res)
	switch {
	case res.Postgres != nil:
		return transcript.NewPostgresLog(res.Postgres)
	case res.Redis != nil:
		return transcript.NewRedisLog(res.Redis, cfg.SessionCacheTTL, transcriptRedisKeep)
	default:
		return transcript.NewMemoryLog()
	}
}

// BuildLedger picks the processed-event ledger the same way as the transcript.
func BuildLedger(res *Resources) ledger.Ledger {
	res = orEmpty(res)
	switch {
	case res.Postgres != nil:
		return ledger.NewPostgresLedger(res.Postgres)
	case res.Redis != nil:
		return ledger.NewRedisLedger(res.Redis, ledgerRedisTTL)
	default:
		return ledger.NewMemoryLedger()
	}
}

// BuildNotifier returns the hand-off email notifier, or nil when no recipient
// is configured.
func BuildNotifier(cfg *appconfig.Config, res *Resources, logger *logging.Logger) (handoff.Notifier, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.HandoffNotificationEmail) == "" {
		logger.Info("handoff notifications disabled")
		return nil, nil
	}
	res = orEmpty(res)

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid", "":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sg != nil {
			sender = sg
		}
	case "ses":
		if res.AWS == nil {
			return nil, fmt.Errorf("bootstrap: ses email requires AWS config")
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(*res.AWS), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
	if sender == nil {
		logger.Warn("email provider not configured; handoff emails are logged only", "provider", cfg.EmailProvider)
		sender = notify.NewStubEmailSender(logger)
	}
	return notify.NewHandoffEmailNotifier(sender, cfg.HandoffNotificationEmail, logger,
		notify.WithReplyTo(cfg.EmailReplyTo),
	), nil
}

// BuildEngine applies the configured slot step, alternative counts and
// busy-interval matching.
func BuildEngine(cfg *appconfig.Config) availability.Engine {
	engine := availability.NewEngine()
	if cfg.SlotStep > 0 {
		engine.Step = cfg.SlotStep
	}
	if cfg.SameDayAlternatives > 0 {
		engine.SameDayAlternatives = cfg.SameDayAlternatives
	}
	if cfg.OtherDayAlternatives > 0 {
		engine.OtherDayAlternatives = cfg.OtherDayAlternatives
	}
	engine.BlockOverlaps = cfg.BlockBusyOverlaps
	return engine
}

func orEmpty(res *Resources) *Resources {
	if res == nil {
		return &Resources{}
	}
	return res
}
