package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/services/notify"
	"github.com/ternarybob/bsewire/internal/supervisor"
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
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("bsewire-supervisor version %s\n", common.GetVersion())
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

	logger := common.InitLogger(config, "bsewire-supervisor")
	common.PrintBanner(config.Service.Name + "-supervisor")

	telegram, err := notify.NewTelegramNotifier(&config.Telegram, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize telegram notifier")
		os.Exit(1)
	}
	notifier := notify.NewMultiNotifier(logger, notify.NewLogNotifier(logger), telegram)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervisor.New(config, notifier, logger).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Supervisor failed")
		os.Exit(1)
	}
}
