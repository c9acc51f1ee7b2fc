package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/internal/dialogue"
	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-assistant/internal/orchestrator"
	"github.com/wolfman30/clinic-booking-assistant/internal/queue"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// Assistant is the fully wired booking engine.
type Assistant struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Metrics      *metrics.BookingMetrics
}

// BuildAssistant wires every collaborator of the turn orchestrator from config.
func BuildAssistant(ctx context.Context, cfg *appconfig.Config, res *Resources, logger *logging.Logger) (*Assistant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	res = orEmpty(res)

	var m *metrics.BookingMetrics
	if res.Registry != nil {
		m = metrics.NewBookingMetrics(res.Registry)
	}

	sessions, err := BuildSessionStore(cfg, res, logger)
	if err != nil {
		return nil, err
	}
	locker, err := BuildLocker(cfg, res)
	if err != nil {
		return nil, err
	}
	catalogs, err := BuildCatalog(cfg, res, logger)
	if err != nil {
		return nil, err
	}
	cal, err := BuildCalendar(ctx, cfg, res, catalogs, m, logger)
	if err != nil {
		return nil, err
	}
	oracle, err := BuildOracle(ctx, cfg, res, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := BuildNotifier(cfg, res, logger)
	if err != nil {
		return nil, err
	}

	links, err := handoff.NewURLLinkBuilder(cfg.HandoffLinkBaseURL, cfg.HandoffSchedulerPhone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	processed := BuildLedger(res)
	coordOpts := []handoff.Option{handoff.WithLedger(processed)}
	if notifier != nil {
		coordOpts = append(coordOpts, handoff.WithNotifier(notifier))
	}
	if c, err := catalogs.Load(ctx); err == nil && strings.TrimSpace(c.ClinicName) != "" {
		coordOpts = append(coordOpts, handoff.WithClinicName(c.ClinicName))
	} else if err != nil {
		logger.Warn("catalog unavailable at startup; handoff summaries omit the clinic name", "error", err)
	}
	coordinator := handoff.NewCoordinator(links, logger, coordOpts...)

	avail := availability.NewService(cal, BuildEngine(cfg),
		availability.WithHorizonDays(cfg.AvailabilityHorizonDays),
		availability.WithLocation(cfg.Location()),
	)
	machine := dialogue.NewMachine(catalogs, avail, coordinator, logger,
		dialogue.WithListLimits(cfg.SameDayAlternatives, cfg.OtherDayAlternatives),
	)

	orch := orchestrator.New(sessions, machine, oracle, locker, catalogs, logger,
		orchestrator.WithTranscript(BuildTranscript(cfg, res)),
		orchestrator.WithLedger(processed),
		orchestrator.WithMetrics(m),
		orchestrator.WithTimeouts(cfg.TurnTimeout, cfg.NLUTimeout, cfg.LockWait),
		orchestrator.WithHistoryWindow(cfg.HistoryWindow),
	)
	logger.Info("booking assistant ready",
		"nlu_provider", cfg.NLUProvider,
		"calendar_backend", cfg.CalendarBackend,
		"lock_backend", cfg.LockBackend,
	)
	return &Assistant{Orchestrator: orch, Sessions: sessions, Metrics: m}, nil
}

// BuildTurnQueue returns the queue carrying asynchronous turns: SQS when a
// queue URL is configured, otherwise an in-process queue when enabled. It
// returns nil when neither applies.
func BuildTurnQueue(cfg *appconfig.Config, res *Resources, logger *logging.Logger) (queue.Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	res = orEmpty(res)
	if url := strings.TrimSpace(cfg.TurnQueueURL); url != "" && !cfg.UseMemoryQueue {
		if res.AWS == nil {
			return nil, fmt.Errorf("bootstrap: sqs turn queue requires AWS config")
		}
		logger.Info("using sqs turn queue", "queue_url", url)
		return queue.NewSQSQueue(sqs.NewFromConfig(*res.AWS), url), nil
	}
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory turn queue")
		return queue.NewMemoryQueue(1024), nil
	}
	return nil, nil
}
