package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	MongoURI string
	MongoDB  string

	ThreadsBackend string
	ScyllaHosts    []string
	ScyllaKeyspace string
	ScyllaTimeout  time.Duration

	KafkaBrokers     []string
	KafkaTopicPrefix string

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool

	SessionTTL time.Duration
}

// Load parses configuration from the current environment. Mongo, Scylla,
// Kafka and S3 are all optional: an unset MONGO_URI selects the in-memory
// stores, unset brokers disable event publishing. An explicit THREADS_BACKEND
// must agree with the rest of the storage configuration or Load fails.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "chatlink"),
		ScyllaKeyspace:   getEnv("SCYLLA_KEYSPACE", "chatlink"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint: getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "chatlink-avatars"),
	}
	if hosts := getEnv("SCYLLA_HOSTS", ""); hosts != "" {
		cfg.ScyllaHosts = splitList(hosts)
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}

	sessionTTL, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = sessionTTL

	scyllaTimeout, err := parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ScyllaTimeout = scyllaTimeout

	useSSL, err := parseBoolEnv("S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3UseSSL = useSSL
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	// The backend default follows the wider storage choice: Mongo when a URI
	// is configured, otherwise the in-memory stores.
	defaultBackend := "memory"
	if cfg.MongoURI != "" {
		defaultBackend = "mongo"
	}
	cfg.ThreadsBackend = strings.ToLower(getEnv("THREADS_BACKEND", defaultBackend))

	switch cfg.ThreadsBackend {
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for THREADS_BACKEND=mongo")
		}
	case "memory":
		if cfg.MongoURI != "" {
			return Config{}, fmt.Errorf("THREADS_BACKEND=memory conflicts with MONGO_URI; unset one of them")
		}
	case "scylla":
		if len(cfg.ScyllaHosts) == 0 {
			return Config{}, fmt.Errorf("SCYLLA_HOSTS is required for THREADS_BACKEND=scylla")
		}
	default:
		return Config{}, fmt.Errorf("invalid THREADS_BACKEND %q", cfg.ThreadsBackend)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
