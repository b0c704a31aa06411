// Package app wires the pipeline components together for the worker binary.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
	"github.com/ternarybob/bsewire/internal/server"
	"github.com/ternarybob/bsewire/internal/services/categorize"
	"github.com/ternarybob/bsewire/internal/services/dashboard"
	"github.com/ternarybob/bsewire/internal/services/dedup"
	"github.com/ternarybob/bsewire/internal/services/embed"
	"github.com/ternarybob/bsewire/internal/services/fetch"
	"github.com/ternarybob/bsewire/internal/services/notify"
	"github.com/ternarybob/bsewire/internal/services/orchestrator"
	"github.com/ternarybob/bsewire/internal/services/reference"
	"github.com/ternarybob/bsewire/internal/services/reports"
	badgerstore "github.com/ternarybob/bsewire/internal/storage/badger"
)

// App holds the wired pipeline components.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Reference      interfaces.ReferenceSet
	Fetcher        *fetch.Service
	Categorizer    *categorize.Service
	Divider        *reports.Service
	Deduplicator   *dedup.Service
	Dashboard      *dashboard.Service
	Orchestrator   *orchestrator.Service
	Notifier       interfaces.Notifier
	Hub            *server.Hub
	Server         *server.Server
}

// New initializes the application with all dependencies. The reference set is
// loaded here: a worker without it cannot categorize anything.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	manager, err := badgerstore.NewManager(logger, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = manager

	loader := reference.NewLoader(&cfg.Reference, manager.CompanyStorage(), nil, logger)
	refSet, err := loader.LoadHandle(ctx)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to load company reference set: %w", err)
	}
	app.Reference = refSet

	client := fetch.NewClient(cfg.BSE.URL,
		fetch.WithLogger(logger),
		fetch.WithTimeout(time.Duration(cfg.BSE.TimeoutSec)*time.Second),
		fetch.WithRateLimit(cfg.BSE.RateLimit),
	)
	app.Fetcher = fetch.NewService(client, &cfg.BSE, logger)

	rules, err := categorize.LoadRules(cfg.Categorize.RulesFile)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to load category rules: %w", err)
	}
	app.Categorizer = categorize.NewService(refSet, manager.AnnouncementStorage(), rules, logger)

	app.Divider = reports.NewService(manager.AnnouncementStorage(), manager.ReportStorage(), &cfg.Reports, logger)
	app.Deduplicator = dedup.NewService(manager.DashboardStorage(), &cfg.Dedup, logger)

	batcher := embed.NewBatcher(func(ctx context.Context) (interfaces.Embedder, error) {
		return embed.NewGeminiEmbedder(ctx, &cfg.Embedding, logger)
	}, &cfg.Embedding, logger)

	app.Dashboard = dashboard.NewService(manager.DashboardStorage(), manager.AnnouncementStorage(),
		batcher, app.Deduplicator, cfg.Reports.InsertBatch, logger)

	telegram, err := notify.NewTelegramNotifier(&cfg.Telegram, logger)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}
	app.Notifier = notify.NewMultiNotifier(logger, notify.NewLogNotifier(logger), telegram)

	var events interfaces.EventPublisher
	if cfg.Server.Enabled {
		app.Hub = server.NewHub(logger)
		app.Server = server.NewServer(app.Hub, &cfg.Server, logger)
		events = serverEvents{app.Server}
		app.Dashboard.SetEvents(events)
	}

	app.Orchestrator = orchestrator.NewService(app.Fetcher, app.Categorizer, app.Divider,
		app.Dashboard, manager.MetadataStorage(), app.Notifier, events,
		&cfg.Orchestrator, cfg.BSE.LiveDays, logger)

	return app, nil
}

// serverEvents routes pipeline events through the status server so /healthz
// counters stay in step with the websocket stream.
type serverEvents struct {
	server *server.Server
}

func (e serverEvents) Publish(event models.PipelineEvent) {
	e.server.Observe(event)
}

// Start brings up the optional status server.
func (a *App) Start() {
	if a.Server != nil {
		a.Server.Start()
	}
}

// Close releases resources in reverse dependency order.
func (a *App) Close() error {
	if a.Dashboard != nil {
		a.Dashboard.Wait()
	}
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("Status server shutdown failed")
		}
	}
	if a.StorageManager != nil {
		return a.StorageManager.Close()
	}
	return nil
}
