package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration read from the environment.
type Server struct {
	Addr             string
	ResiliencePath   string
	LogFormat        string
	LogLevel         string
	ShutdownTimeout  time.Duration
	Postgres         PostgresConfig
	Redis            RedisConfig
	Kafka            KafkaConfig
	Registry         RegistryConfig
	SourceBaseURLHSE string
	SourceBaseURLEA  string
}

// PostgresConfig holds the DSN shared by the pgx pool and the database/sql handle.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig configures the shared rate limiter and registry cache client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures outcome publishing. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	Partitions  int32
	Replication int16
}

// RegistryConfig points at the company registry search API.
type RegistryConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// FromEnv builds a Server config from EHS_* environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:            envOr("EHS_ADDR", ":8080"),
		ResiliencePath:  os.Getenv("EHS_RESILIENCE_CONFIG"),
		LogFormat:       envOr("EHS_LOG_FORMAT", "json"),
		LogLevel:        envOr("EHS_LOG_LEVEL", "info"),
		ShutdownTimeout: durationOr("EHS_SHUTDOWN_TIMEOUT", 10*time.Second),
		Postgres: PostgresConfig{
			DSN:      os.Getenv("EHS_DATABASE_URL"),
			MaxConns: int32(intOr("EHS_DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("EHS_REDIS_URL"),
			PoolSize:     intOr("EHS_REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("EHS_REDIS_MIN_IDLE", 2),
			DialTimeout:  durationOr("EHS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("EHS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("EHS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("EHS_KAFKA_BROKERS")),
			TopicPrefix: envOr("EHS_KAFKA_TOPIC_PREFIX", "ehs"),
			Partitions:  int32(intOr("EHS_KAFKA_PARTITIONS", 3)),
			Replication: int16(intOr("EHS_KAFKA_REPLICATION", 1)),
		},
		Registry: RegistryConfig{
			BaseURL:  os.Getenv("EHS_COMPANY_REGISTRY_URL"),
			APIKey:   os.Getenv("EHS_COMPANY_REGISTRY_KEY"),
			CacheTTL: durationOr("EHS_COMPANY_REGISTRY_CACHE_TTL", 24*time.Hour),
			Timeout:  durationOr("EHS_COMPANY_REGISTRY_TIMEOUT", 10*time.Second),
		},
		SourceBaseURLHSE: envOr("EHS_HSE_BASE_URL", "https://resources.hse.gov.uk"),
		SourceBaseURLEA:  envOr("EHS_EA_BASE_URL", "https://environment.data.gov.uk"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
