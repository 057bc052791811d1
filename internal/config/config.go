package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Queue       QueueConfig
	Scheduler   SchedulerConfig
	Services    ServicesConfig
	Suggestions SuggestionsConfig
	Ops         OpsConfig
	Alerts      AlertsConfig
}

type AppConfig struct {
	Port        string
	Environment string
	LogFilePath string
	NatsURL     string
	RedisURL    string

	TracingEnabled     bool
	OtelEndpoint       string
	TracingSampleRatio float64
}

type DatabaseConfig struct {
	Connection string
	LogLevel   string // "silent", "error", "warn", "info"
}

type QueueConfig struct {
	Backend        string // "nats" or "memory"
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HandlerTimeout time.Duration
	DedupeTTL      time.Duration
	AckWait        time.Duration // JetStream redelivery timeout

	ContentAnalysisWorkers int
	ArchivalWorkers        int
	SuggestionWorkers      int
	BulkImportWorkers      int
}

type SchedulerConfig struct {
	Timezone string

	SuggestionSweepSpec string
	RejectedCleanupSpec string
	StaleArchivalSpec   string
	AccessStatsSpec     string
	DuplicateSweepSpec  string
	RevokedTokenSpec    string
}

type ServicesConfig struct {
	MLServiceURL    string
	MLTimeout       time.Duration
	ArchiverURL     string
	ArchiverTimeout time.Duration
}

type SuggestionsConfig struct {
	StaleAfter           time.Duration
	RelatedThreshold     float64
	RelatedNeighbors     int
	RejectedRetention    time.Duration
	ArchiveTabsOlderThan time.Duration
	ArchivalBatchSize    int
}

type OpsConfig struct {
	// JWTSecret protects the /ops routes. Empty leaves them open, which is
	// only accepted outside production.
	JWTSecret string
}

type AlertsConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	Sender       string
	Recipients   []string
}

func (a AlertsConfig) Enabled() bool {
	return a.SMTPHost != "" && len(a.Recipients) > 0
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:        getEnv("APP_PORT", "3000"),
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "logs/worker.log"),
			NatsURL:     getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

			TracingEnabled:     getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			TracingSampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			LogLevel:   getEnv("DB_LOG_LEVEL", "warn"),
		},
		Queue: QueueConfig{
			Backend:        getEnv("QUEUE_BACKEND", "nats"),
			MaxAttempts:    getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			InitialBackoff: getEnvAsDuration("QUEUE_INITIAL_BACKOFF", 2*time.Second),
			MaxBackoff:     getEnvAsDuration("QUEUE_MAX_BACKOFF", time.Minute),
			HandlerTimeout: getEnvAsDuration("QUEUE_HANDLER_TIMEOUT", 2*time.Minute),
			DedupeTTL:      getEnvAsDuration("QUEUE_DEDUPE_TTL", 24*time.Hour),
			AckWait:        getEnvAsDuration("QUEUE_ACK_WAIT", 30*time.Second),

			ContentAnalysisWorkers: getEnvAsInt("QUEUE_CONTENT_ANALYSIS_WORKERS", 4),
			ArchivalWorkers:        getEnvAsInt("QUEUE_ARCHIVAL_WORKERS", 2),
			SuggestionWorkers:      getEnvAsInt("QUEUE_SUGGESTION_WORKERS", 1),
			BulkImportWorkers:      getEnvAsInt("QUEUE_BULK_IMPORT_WORKERS", 1),
		},
		Scheduler: SchedulerConfig{
			Timezone:            getEnv("SCHEDULER_TIMEZONE", "UTC"),
			SuggestionSweepSpec: getEnv("CRON_SUGGESTION_SWEEP", "0 */6 * * *"),
			RejectedCleanupSpec: getEnv("CRON_REJECTED_CLEANUP", "0 2 * * *"),
			StaleArchivalSpec:   getEnv("CRON_STALE_ARCHIVAL", "0 3 * * 0"),
			AccessStatsSpec:     getEnv("CRON_ACCESS_STATS", "0 * * * *"),
			DuplicateSweepSpec:  getEnv("CRON_DUPLICATE_SWEEP", "0 */12 * * *"),
			RevokedTokenSpec:    getEnv("CRON_REVOKED_TOKEN_CLEANUP", "0 0 * * *"),
		},
		Services: ServicesConfig{
			MLServiceURL:    getEnv("ML_SERVICE_URL", "http://localhost:5000"),
			MLTimeout:       getEnvAsDuration("ML_SERVICE_TIMEOUT", 30*time.Second),
			ArchiverURL:     getEnv("ARCHIVER_URL", "http://localhost:5100"),
			ArchiverTimeout: getEnvAsDuration("ARCHIVER_TIMEOUT", 90*time.Second),
		},
		Suggestions: SuggestionsConfig{
			StaleAfter:           getEnvAsDuration("SUGGESTION_STALE_AFTER", 30*24*time.Hour),
			RelatedThreshold:     getEnvAsFloat("SUGGESTION_RELATED_THRESHOLD", 0.3),
			RelatedNeighbors:     getEnvAsInt("SUGGESTION_RELATED_NEIGHBORS", 5),
			RejectedRetention:    getEnvAsDuration("SUGGESTION_REJECTED_RETENTION", 30*24*time.Hour),
			ArchiveTabsOlderThan: getEnvAsDuration("ARCHIVE_TABS_OLDER_THAN", 90*24*time.Hour),
			ArchivalBatchSize:    getEnvAsInt("ARCHIVAL_BATCH_SIZE", 100),
		},
		Ops: OpsConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Alerts: AlertsConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_EMAIL", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			Sender:       getEnv("SMTP_SENDER_NAME", "TabKeeper Worker <noreply@tabkeeper.local>"),
			Recipients:   getEnvAsList("ALERT_RECIPIENTS"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("90s", "720h").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
