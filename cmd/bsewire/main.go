package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/app"
	"github.com/ternarybob/bsewire/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	histMode    = flag.Bool("hist", false, "Run the historical pipeline once and exit")
	fromDate    = flag.String("from", "", "Historical range start (YYYY-MM-DD)")
	toDate      = flag.String("to", "", "Historical range end (YYYY-MM-DD)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("bsewire version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("bsewire.toml"); err == nil {
			configFiles = append(configFiles, "bsewire.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config, "bsewire")
	common.PrintBanner(config.Service.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	application.Start()

	if *histMode {
		if err := runHistorical(ctx, application, logger); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Historical run failed")
			application.Close()
			os.Exit(1)
		}
		logger.Info().Msg("Historical run complete")
		return
	}

	if err := application.Orchestrator.RunLive(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Live pipeline failed")
		application.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

// runHistorical resolves the --from/--to range and runs the one-shot
// pipeline. Missing bounds fall back to the configured historical range.
func runHistorical(ctx context.Context, application *app.App, logger arbor.ILogger) error {
	config := application.Config

	from, err := resolveDate(*fromDate, config.BSE.HistMinDate)
	if err != nil {
		return fmt.Errorf("invalid --from date: %w", err)
	}
	to, err := resolveDate(*toDate, config.BSE.HistMaxDate)
	if err != nil {
		return fmt.Errorf("invalid --to date: %w", err)
	}

	logger.Info().
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Msg("Starting historical run")

	return application.Orchestrator.RunHistorical(ctx, from, to)
}

func resolveDate(value, fallback string) (time.Time, error) {
	if value == "" {
		value = fallback
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
