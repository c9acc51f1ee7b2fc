// Command nlu-probe runs one message through the configured oracle and prints
// the analysis, for checking prompts and provider credentials by hand.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-booking-assistant/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking-assistant/internal/config"
	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
	state := flag.String("state", string(session.StateIdle), "dialogue state sent with the message")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := run(context.Background(), cfg, *state, strings.Join(flag.Args(), " "), os.Stdout, logger); err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, state, text string, out io.Writer, logger *logging.Logger) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("usage: nlu-probe [-state name] <message>")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res := &bootstrap.Resources{}
	if cfg.NLUProvider == "bedrock" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		res.AWS = &awsCfg
	}
	oracle, err := bootstrap.BuildOracle(ctx, cfg, res, logger)
	if err != nil {
		return err
	}
	catalogs, err := bootstrap.BuildCatalog(cfg, res, logger)
	if err != nil {
		return err
	}
	c, err := catalogs.Load(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	analysis, err := oracle.Analyze(ctx, nlu.Request{
		Text:     text,
		Snapshot: nlu.Snapshot{State: state},
		Catalog:  nlu.CatalogView{Specialties: c.SpecialtyNames(), Practitioners: c.PractitionerNames("")},
		Now:      time.Now().In(cfg.Location()),
	})
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	logger.Info("oracle answered", "provider", cfg.NLUProvider, "elapsed_ms", time.Since(start).Milliseconds())

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}
