package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PolymarketConfig holds settings for the Gamma API client.
type PolymarketConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitDelay time.Duration
	MaxMarkets     int
}

// KafkaConfig holds settings shared by the producer and consumer sides.
type KafkaConfig struct {
	BootstrapServers []string
	Topic            string
	TopicPrefix      string
	ClientID         string
	GroupID          string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

// FullTopic returns the topic name including the optional prefix.
func (k *KafkaConfig) FullTopic() string {
	return k.TopicPrefix + k.Topic
}

// MongoConfig holds settings for the subscription store.
type MongoConfig struct {
	URI              string
	Database         string
	Collection       string
	CollectionPrefix string
}

// FullCollection returns the collection name including the optional prefix.
func (m *MongoConfig) FullCollection() string {
	return m.CollectionPrefix + m.Collection
}

// CouchbaseConfig holds settings for the event archive.
type CouchbaseConfig struct {
	ConnectionString string
	Username         string
	Password         string
	Bucket           string
}

// ProducerConfig is the full configuration for the `produce` command.
type ProducerConfig struct {
	LogLevel     string
	HTTPPort     string
	PollInterval time.Duration

	Polymarket PolymarketConfig
	Kafka      KafkaConfig
	Mongo      MongoConfig
}

// IngestorConfig is the full configuration for the `ingest` command.
type IngestorConfig struct {
	LogLevel    string
	HTTPPort    string
	PollTimeout time.Duration

	Kafka     KafkaConfig
	Couchbase CouchbaseConfig
}

// LoadProducerFromEnv loads the producer configuration from environment
// variables with defaults, failing on missing required variables.
func LoadProducerFromEnv() (*ProducerConfig, error) {
	cfg := &ProducerConfig{
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:     getEnvOrDefault("HTTP_PORT", "8080"),
		PollInterval: time.Duration(getIntOrDefault("POLL_INTERVAL_SECONDS", 30)) * time.Second,

		Polymarket: *LoadPolymarketFromEnv(),

		Kafka: loadKafkaFromEnv("polymarket-conviction-producer"),

		Mongo: MongoConfig{
			URI:              os.Getenv("MONGODB_URI"),
			Database:         os.Getenv("MONGODB_DATABASE"),
			Collection:       getEnvOrDefault("MONGODB_COLLECTION", "polymarket_subscriptions"),
			CollectionPrefix: os.Getenv("MONGODB_COLLECTION_PREFIX"),
		},
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadIngestorFromEnv loads the ingestor configuration from environment
// variables with defaults, failing on missing required variables.
func LoadIngestorFromEnv() (*IngestorConfig, error) {
	cfg := &IngestorConfig{
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:    getEnvOrDefault("HTTP_PORT", "8081"),
		PollTimeout: time.Duration(getIntOrDefault("POLL_INTERVAL_MS", 1000)) * time.Millisecond,

		Kafka: loadKafkaFromEnv("polymarket-conviction-ingestor"),

		Couchbase: CouchbaseConfig{
			ConnectionString: os.Getenv("COUCHBASE_CONNECTION_STRING"),
			Username:         os.Getenv("COUCHBASE_USERNAME"),
			Password:         os.Getenv("COUCHBASE_PASSWORD"),
			Bucket:           getEnvOrDefault("COUCHBASE_BUCKET", "polymarket-events"),
		},
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadMongoFromEnv loads only the subscription-store configuration,
// for the subscription management commands.
func LoadMongoFromEnv() (*MongoConfig, error) {
	cfg := &MongoConfig{
		URI:              os.Getenv("MONGODB_URI"),
		Database:         os.Getenv("MONGODB_DATABASE"),
		Collection:       getEnvOrDefault("MONGODB_COLLECTION", "polymarket_subscriptions"),
		CollectionPrefix: os.Getenv("MONGODB_COLLECTION_PREFIX"),
	}

	if cfg.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}

	if cfg.Database == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}

	return cfg, nil
}

// LoadPolymarketFromEnv loads the Gamma API configuration. Every
// variable has a default, so loading never fails.
func LoadPolymarketFromEnv() *PolymarketConfig {
	return &PolymarketConfig{
		BaseURL:        getEnvOrDefault("POLYMARKET_BASE_URL", "https://gamma-api.polymarket.com"),
		RequestTimeout: time.Duration(getIntOrDefault("POLYMARKET_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitDelay: time.Duration(getIntOrDefault("POLYMARKET_RATE_LIMIT_DELAY_MS", 200)) * time.Millisecond,
		MaxMarkets:     getIntOrDefault("POLYMARKET_MAX_MARKETS", 10000),
	}
}

func loadKafkaFromEnv(defaultClientID string) KafkaConfig {
	return KafkaConfig{
		BootstrapServers: splitAndTrim(os.Getenv("KAFKA_BOOTSTRAP_SERVERS")),
		Topic:            os.Getenv("KAFKA_TOPIC"),
		TopicPrefix:      os.Getenv("KAFKA_TOPIC_PREFIX"),
		ClientID:         getEnvOrDefault("KAFKA_CLIENT_ID", defaultClientID),
		GroupID:          getEnvOrDefault("KAFKA_GROUP_ID", "strategy-injestor"),
		SecurityProtocol: getEnvOrDefault("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
		SASLMechanism:    getEnvOrDefault("KAFKA_SASL_MECHANISMS", "PLAIN"),
		SASLUsername:     os.Getenv("KAFKA_SASL_USERNAME"),
		SASLPassword:     os.Getenv("KAFKA_SASL_PASSWORD"),
	}
}

// Validate checks that required producer configuration is present.
func (c *ProducerConfig) Validate() error {
	err := c.Kafka.validate()
	if err != nil {
		return err
	}

	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}

	if c.Mongo.Database == "" {
		return fmt.Errorf("MONGODB_DATABASE is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %s", c.PollInterval)
	}

	if c.Polymarket.MaxMarkets <= 0 {
		return fmt.Errorf("POLYMARKET_MAX_MARKETS must be positive, got %d", c.Polymarket.MaxMarkets)
	}

	return nil
}

// Validate checks that required ingestor configuration is present.
func (c *IngestorConfig) Validate() error {
	err := c.Kafka.validate()
	if err != nil {
		return err
	}

	if c.Couchbase.ConnectionString == "" {
		return fmt.Errorf("COUCHBASE_CONNECTION_STRING is required")
	}

	if c.Couchbase.Username == "" {
		return fmt.Errorf("COUCHBASE_USERNAME is required")
	}

	return nil
}

func (k *KafkaConfig) validate() error {
	if len(k.BootstrapServers) == 0 {
		return fmt.Errorf("KAFKA_BOOTSTRAP_SERVERS is required")
	}

	if k.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}

	return nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}
