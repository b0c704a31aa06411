package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Service      ServiceConfig      `toml:"service"`
	Logging      LoggingConfig      `toml:"logging"`
	Storage      StorageConfig      `toml:"storage"`
	BSE          BSEConfig          `toml:"bse"`
	Reference    ReferenceConfig    `toml:"reference"`
	Categorize   CategorizeConfig   `toml:"categorize"`
	Reports      ReportsConfig      `toml:"reports"`
	Embedding    EmbeddingConfig    `toml:"embedding"`
	Dedup        DedupConfig        `toml:"dedup"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Server       ServerConfig       `toml:"server"`
	Telegram     TelegramConfig     `toml:"telegram"`
	Supervisor   SupervisorConfig   `toml:"supervisor"`
}

type ServiceConfig struct {
	Name        string `toml:"name"`
	Environment string `toml:"environment"` // "development" or "production"
}

type LoggingConfig struct {
	Level      string `toml:"level"` // "debug", "info", "warn", "error"
	Dir        string `toml:"dir"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"` // Rotated log files kept (retention days)
	TimeFormat string `toml:"time_format"`
}

type StorageConfig struct {
	Path     string `toml:"path"`      // Database directory path
	InMemory bool   `toml:"in_memory"` // In-memory store for tests
}

// BSEConfig configures the upstream announcements API client.
type BSEConfig struct {
	URL              string         `toml:"url" validate:"required"`
	LiveParams       map[string]any `toml:"live_params"` // Payload template for live requests
	HistParams       map[string]any `toml:"hist_params"` // Payload template for historical requests
	TimeoutSec       int            `toml:"timeout_sec" validate:"gt=0"`
	RetryCount       int            `toml:"retry_count" validate:"gte=1"`
	RetryDelaySec    int            `toml:"retry_delay_sec" validate:"gte=0"`
	ConcurrencyLimit int            `toml:"concurrency_limit" validate:"gt=0"`
	RateLimit        int            `toml:"rate_limit" validate:"gt=0"` // Requests per second
	LiveDays         int            `toml:"live_days" validate:"gt=0"`  // Rolling live window in days
	HistMinDate      string         `toml:"hist_min_date"`              // YYYY-MM-DD
	HistMaxDate      string         `toml:"hist_max_date"`              // YYYY-MM-DD
}

type ReferenceConfig struct {
	URL         string `toml:"url"`
	RefreshCron string `toml:"refresh_cron"` // Optional periodic refresh schedule
}

type CategorizeConfig struct {
	RulesFile   string `toml:"rules_file"`    // Optional YAML rule overrides
	MinBulkDocs int    `toml:"min_bulk_docs"` // Batch size above which the bulk path is preferred
}

type ReportsConfig struct {
	InsertBatch int `toml:"insert_batch" validate:"gt=0"`
}

type EmbeddingConfig struct {
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	Dimensions  int    `toml:"dimensions" validate:"gt=0"`
	Pool        bool   `toml:"pool"` // Use the worker-pool path instead of inline batches
	InlineBatch int    `toml:"inline_batch" validate:"gt=0"`
	PoolBatch   int    `toml:"pool_batch" validate:"gt=0"`
	TimeoutSec  int    `toml:"timeout_sec" validate:"gt=0"`
}

type DedupConfig struct {
	DashboardThreshold  float64  `toml:"dashboard_threshold" validate:"gt=0,lte=1"`
	LivesquackThreshold float64  `toml:"livesquack_threshold" validate:"gt=0,lte=1"`
	DaysWindow          int      `toml:"days_window" validate:"gt=0"`
	TopK                int      `toml:"top_k" validate:"gt=0"`
	SkipCategories      []string `toml:"skip_categories"`
}

type OrchestratorConfig struct {
	RunIntervalMin int    `toml:"run_interval_min" validate:"gt=0"`
	GateURL        string `toml:"gate_url"`
	GateBackoffMin int    `toml:"gate_backoff_min" validate:"gt=0"`
	MaintainJSON   bool   `toml:"maintain_json"`
	JSONDir        string `toml:"json_dir"`
	BackfillDays   int    `toml:"backfill_days" validate:"gte=0"`
	HeartbeatFile  string `toml:"heartbeat_file"` // Worker liveness file read by the supervisor
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port" validate:"gt=0"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   int64  `toml:"chat_id"`
}

type SupervisorConfig struct {
	WorkerCmd                []string `toml:"worker_cmd"`
	HeartbeatFile            string   `toml:"heartbeat_file"`
	HeartbeatIntervalSec     int      `toml:"heartbeat_interval_sec" validate:"gt=0"`
	InternetCheckIntervalSec int      `toml:"internet_check_interval_sec" validate:"gt=0"`
	ErrorMsgIntervalSec      int      `toml:"error_msg_interval_sec" validate:"gt=0"`
	RestartDelaySec          int      `toml:"restart_delay_sec" validate:"gte=0"`
	FreezeTimeoutSec         int      `toml:"freeze_timeout_sec" validate:"gt=0"`
	WorkerHeartbeatFile      string   `toml:"worker_heartbeat_file"`
	StderrTail               int      `toml:"stderr_tail" validate:"gt=0"`
	FuzzyThreshold           float64  `toml:"fuzzy_threshold" validate:"gt=0,lte=1"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// user-facing settings are exposed in bsewire.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "bsewire",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "logs",
			MaxBackups: 7, // Log retention in days
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Path: "./data",
		},
		BSE: BSEConfig{
			URL:              "https://api.bseindia.com/BseIndiaAPI/api/AnnSubCategoryGetData/w",
			LiveParams:       map[string]any{},
			HistParams:       map[string]any{},
			TimeoutSec:       50,
			RetryCount:       3,
			RetryDelaySec:    2,
			ConcurrencyLimit: 20,
			RateLimit:        10,
			LiveDays:         3,
			HistMinDate:      "2023-11-01",
			HistMaxDate:      "2025-10-31",
		},
		Reference: ReferenceConfig{},
		Categorize: CategorizeConfig{
			MinBulkDocs: 10,
		},
		Reports: ReportsConfig{
			InsertBatch: 1000,
		},
		Embedding: EmbeddingConfig{
			Model:       "gemini-embedding-001",
			Dimensions:  1024,
			Pool:        false,
			InlineBatch: 64,
			PoolBatch:   128,
			TimeoutSec:  60,
		},
		Dedup: DedupConfig{
			DashboardThreshold:  0.80,
			LivesquackThreshold: 0.70,
			DaysWindow:          2,
			TopK:                50,
			SkipCategories:      []string{"Investor Presentation", "Earnings Call Transcript", "Broker Report"},
		},
		Orchestrator: OrchestratorConfig{
			RunIntervalMin: 5,
			GateURL:        "https://www.google.com",
			GateBackoffMin: 15,
			MaintainJSON:   false,
			JSONDir:        "files",
			BackfillDays:   3,
			HeartbeatFile:  "worker.heartbeat",
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8085,
		},
		Supervisor: SupervisorConfig{
			WorkerCmd:                []string{"./bsewire"},
			HeartbeatFile:            "heartbeat.status",
			HeartbeatIntervalSec:     15,
			InternetCheckIntervalSec: 10,
			ErrorMsgIntervalSec:      60,
			RestartDelaySec:          10,
			FreezeTimeoutSec:         300,
			WorkerHeartbeatFile:      "worker.heartbeat",
			StderrTail:               40,
			FuzzyThreshold:           0.90,
		},
	}
}

// LoadFromFiles loads configuration from files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints after load
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies BSEWIRE_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BSEWIRE_ENV"); env != "" {
		config.Service.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Service.Environment = env
	}

	// Logging
	if level := os.Getenv("BSEWIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if dir := os.Getenv("BSEWIRE_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}
	if retention := os.Getenv("BSEWIRE_LOG_RETENTION_DAYS"); retention != "" {
		if n, err := strconv.Atoi(retention); err == nil {
			config.Logging.MaxBackups = n
		}
	}

	// Storage
	if path := os.Getenv("BSEWIRE_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}

	// BSE client
	if url := os.Getenv("BSEWIRE_BSE_URL"); url != "" {
		config.BSE.URL = url
	}
	if params := os.Getenv("BSEWIRE_BSE_LIVE_PARAMS"); params != "" {
		if m := parseJSONMap(params); m != nil {
			config.BSE.LiveParams = m
		}
	}
	if params := os.Getenv("BSEWIRE_BSE_HIST_PARAMS"); params != "" {
		if m := parseJSONMap(params); m != nil {
			config.BSE.HistParams = m
		}
	}
	if timeout := os.Getenv("BSEWIRE_BSE_TIMEOUT_SEC"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil {
			config.BSE.TimeoutSec = n
		}
	}
	if retries := os.Getenv("BSEWIRE_BSE_RETRY_COUNT"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.BSE.RetryCount = n
		}
	}
	if delay := os.Getenv("BSEWIRE_BSE_RETRY_DELAY_SEC"); delay != "" {
		if n, err := strconv.Atoi(delay); err == nil {
			config.BSE.RetryDelaySec = n
		}
	}
	if limit := os.Getenv("BSEWIRE_BSE_CONCURRENCY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.BSE.ConcurrencyLimit = n
		}
	}
	if days := os.Getenv("BSEWIRE_BSE_LIVE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			config.BSE.LiveDays = n
		}
	}

	// Reference
	if url := os.Getenv("BSEWIRE_REFERENCE_URL"); url != "" {
		config.Reference.URL = url
	}

	// Embedding
	if key := os.Getenv("BSEWIRE_EMBEDDING_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Embedding.APIKey = key
	}
	if model := os.Getenv("BSEWIRE_EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if pool := os.Getenv("BSEWIRE_EMBEDDING_POOL"); pool != "" {
		if b, err := strconv.ParseBool(pool); err == nil {
			config.Embedding.Pool = b
		}
	}

	// Dedup thresholds
	if threshold := os.Getenv("BSEWIRE_DASHBOARD_DEDUP_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Dedup.DashboardThreshold = f
		}
	}
	if threshold := os.Getenv("BSEWIRE_EMBEDDING_TEXT_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Dedup.LivesquackThreshold = f
		}
	}

	// Orchestrator
	if interval := os.Getenv("BSEWIRE_RUN_INTERVAL_TIME_MIN"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil {
			config.Orchestrator.RunIntervalMin = n
		}
	}
	if url := os.Getenv("BSEWIRE_GATE_URL"); url != "" {
		config.Orchestrator.GateURL = url
	}

	// Telegram
	if token := os.Getenv("BSEWIRE_TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.BotToken = token
	}
	if chatID := os.Getenv("BSEWIRE_TELEGRAM_CHAT_ID"); chatID != "" {
		if n, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			config.Telegram.ChatID = n
		}
	}

	// Supervisor timing
	if interval := os.Getenv("BSEWIRE_HEARTBEAT_INTERVAL"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil {
			config.Supervisor.HeartbeatIntervalSec = n
		}
	}
	if timeout := os.Getenv("BSEWIRE_FREEZE_TIMEOUT"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil {
			config.Supervisor.FreezeTimeoutSec = n
		}
	}
	if delay := os.Getenv("BSEWIRE_RESTART_DELAY"); delay != "" {
		if n, err := strconv.Atoi(delay); err == nil {
			config.Supervisor.RestartDelaySec = n
		}
	}
}

// parseJSONMap decodes a JSON object from an environment value; nil on failure
func parseJSONMap(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Service.Environment))
	return env == "production" || env == "prod"
}
