package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"

	MessageStoreDefault = "default"
	MessageStoreScylla  = "scylla"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	LogLevel           string
	HTTPAddr           string
	CORSOrigins        []string
	JWTSecret          string
	JWTIssuer          string
	StorageDriver      string
	MessageStore       string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	MaxUploadBytes     int64
	ScyllaHosts        []string
	ScyllaKeyspace     string
	ScyllaConsistency  gocql.Consistency
	ScyllaTimeout      time.Duration
	ScyllaReplication  int
	ScyllaUsername     string
	ScyllaPassword     string
	MessagingGRPCAddr  string
	MessagingListen    string
	MessagingGRPCTime  time.Duration
	FixturesPath       string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:               getEnv("APP_ENV", "dev"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:       splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTIssuer:         getEnv("JWT_ISSUER", "kindbossing"),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		MessageStore:      strings.ToLower(getEnv("MESSAGE_STORE", MessageStoreDefault)),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           getEnv("MONGO_DB", "kindbossing"),
		KafkaBrokers:      splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "kindbossing-reactors"),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3PublicEndpoint:  getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnv("S3_BUCKET", "kindbossing-attachments"),
		ScyllaHosts:       splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace:    strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "kindbossing_messaging")),
		ScyllaUsername:    os.Getenv("SCYLLA_USERNAME"),
		ScyllaPassword:    os.Getenv("SCYLLA_PASSWORD"),
		MessagingGRPCAddr: getEnv("MESSAGING_GRPC_ADDR", ""),
		MessagingListen:   getEnv("MESSAGING_LISTEN_ADDR", ":9090"),
		FixturesPath:      getEnv("APPLICATION_FIXTURES", ""),
	}

	var err error
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MessagingGRPCTime, err = parseDurationEnv("MESSAGING_GRPC_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) << 20
	if cfg.ScyllaReplication, err = parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1); err != nil {
		return Config{}, err
	}

	for _, raw := range strings.Split(getEnv("RETRY_BACKOFF", "1s,5s,30s"), ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StorageDriver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORAGE_DRIVER=mongo")
		}
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for STORAGE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %s", c.StorageDriver)
	}
	switch c.MessageStore {
	case MessageStoreDefault:
	case MessageStoreScylla:
		if c.StorageDriver != DriverMongo {
			return fmt.Errorf("MESSAGE_STORE=scylla requires STORAGE_DRIVER=mongo")
		}
		if len(c.ScyllaHosts) == 0 || c.ScyllaKeyspace == "" {
			return fmt.Errorf("SCYLLA_HOSTS and SCYLLA_KEYSPACE are required for MESSAGE_STORE=scylla")
		}
	default:
		return fmt.Errorf("unsupported MESSAGE_STORE: %s", c.MessageStore)
	}
	return nil
}

// UsesS3 reports whether attachment uploads go to object storage.
func (c Config) UsesS3() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
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

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
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

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}
