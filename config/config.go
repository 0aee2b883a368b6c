package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName    string
	LogLevel   string
	PrettyLogs bool

	// PostgreSQL (contact store)
	DatabaseDriver                string
	DatabaseHost                  string
	DatabasePort                  string
	DatabaseUserName              string
	DatabasePassword              string
	DatabaseName                  string
	DatabaseSSLMode               string
	DatabaseMaxOpenConns          int
	DatabaseMaxIdleConns          int
	DatabaseConnMaxLifetime       time.Duration
	DatabaseMigrationFolderPath   string
	DatabaseMigrationVersion      int
	DatabaseMigrationForce        int
	DatabaseMigrationAutoRollback bool

	// Tracing
	TracingExporter string
	OTLPEndpoint    string
	OTLPProtocol    string
	OTLPInsecure    bool

	// Kafka Producer (merge/repair events)
	KafkaProducerEnabled bool
	KafkaBrokers         []string
	KafkaOutputTopic     string
	KafkaBatchSize       int
	KafkaBatchTimeout    int
	KafkaRequiredAcks    int
	KafkaCompression     string

	// Graph Database (canonical projection)
	GraphSyncEnabled bool
	GraphDBHost      string
	GraphDBPort      int
	GraphDBUser      string
	GraphDBPassword  string

	// Processing
	AutoMergeEnabled bool
	ScanBatchSize    int
	FieldSpecPath    string
	GapFieldsPath    string
}

// Load reads .env when present, then the environment, falling back to
// defaults that match local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppName:    getEnv("APP_NAME", "tansy"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		PrettyLogs: getEnvBool("PRETTY_LOGS", false),

		DatabaseDriver:                getEnv("DB_DRIVER", "postgres"),
		DatabaseHost:                  getEnv("DB_HOST", "localhost"),
		DatabasePort:                  getEnv("DB_PORT", "5432"),
		DatabaseUserName:              getEnv("DB_USER_NAME", ""),
		DatabasePassword:              getEnv("DB_PASSWORD", ""),
		DatabaseName:                  getEnv("DB_NAME", "tansy"),
		DatabaseSSLMode:               getEnv("DB_SSL_MODE", "disable"),
		DatabaseMaxOpenConns:          getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdleConns:          getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DatabaseConnMaxLifetime:       getEnvDuration("DB_CONN_MAX_LIFETIME", 10*time.Second),
		DatabaseMigrationFolderPath:   getEnv("DB_MIGRATION_FOLDER_PATH", "db/pg"),
		DatabaseMigrationVersion:      getEnvInt("DB_MIGRATION_VERSION", 0),
		DatabaseMigrationForce:        getEnvInt("DB_MIGRATION_FORCE", 0),
		DatabaseMigrationAutoRollback: getEnvBool("DB_MIGRATION_AUTO_ROLLBACK", true),

		TracingExporter: getEnv("TRACING_EXPORTER", "console"),
		OTLPEndpoint:    getEnv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:    getEnv("OTLP_PROTOCOL", "grpc"),
		OTLPInsecure:    getEnvBool("OTLP_INSECURE", true),

		KafkaProducerEnabled: getEnvBool("KAFKA_PRODUCER_ENABLED", false),
		KafkaBrokers:         getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaOutputTopic:     getEnv("KAFKA_OUTPUT_TOPIC", "contact-events"),
		KafkaBatchSize:       getEnvInt("KAFKA_BATCH_SIZE", 100),
		KafkaBatchTimeout:    getEnvInt("KAFKA_BATCH_TIMEOUT_MS", 100),
		KafkaRequiredAcks:    getEnvInt("KAFKA_REQUIRED_ACKS", 1),
		KafkaCompression:     getEnv("KAFKA_COMPRESSION", "snappy"),

		GraphSyncEnabled: getEnvBool("GRAPH_SYNC_ENABLED", false),
		GraphDBHost:      getEnv("GRAPH_DB_HOST", "localhost"),
		GraphDBPort:      getEnvInt("GRAPH_DB_PORT", 7687),
		GraphDBUser:      getEnv("GRAPH_DB_USER", ""),
		GraphDBPassword:  getEnv("GRAPH_DB_PASSWORD", ""),

		AutoMergeEnabled: getEnvBool("AUTO_MERGE_ENABLED", false),
		ScanBatchSize:    getEnvInt("SCAN_BATCH_SIZE", 500),
		FieldSpecPath:    getEnv("FIELD_SPEC_PATH", "config/fieldspec.yaml"),
		GapFieldsPath:    getEnv("GAP_FIELDS_PATH", "config/gapfields.yaml"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
