// Command seed-catalog publishes a YAML catalog to Redis and syncs its
// practitioner shifts into Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-booking-assistant/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/calendar"
	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

type catalogWriter interface {
	Set(ctx context.Context, c *catalog.Catalog) error
}

type shiftWriter interface {
	Replace(ctx context.Context, shifts map[string][]availability.Shift) error
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	path := cfg.CatalogFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		fmt.Println("Usage: seed-catalog <catalog.yaml>")
		fmt.Println("Example: seed-catalog testdata/catalog.yaml")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required to publish the catalog", "redis_addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	var shifts shiftWriter
	if pool != nil {
		defer pool.Close()
		shifts = calendar.NewShiftSync(pool)
	}

	if err := seed(ctx, path, catalog.NewRedisStore(redisClient, nil), shifts, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, path string, catalogs catalogWriter, shifts shiftWriter, logger *logging.Logger) error {
	c, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	if err := catalogs.Set(ctx, c); err != nil {
		return fmt.Errorf("publish catalog: %w", err)
	}
	logger.Info("catalog published",
		"clinic", c.ClinicName,
		"specialties", len(c.Specialties),
		"practitioners", len(c.Practitioners),
	)

	byID := c.ShiftsByID()
	if len(byID) == 0 {
		return nil
	}
	if shifts == nil {
		return errors.New("catalog defines shifts but DATABASE_URL is not set")
	}
	if err := shifts.Replace(ctx, byID); err != nil {
		return err
	}
	logger.Info("practitioner shifts synced", "practitioners", len(byID))
	return nil
}
