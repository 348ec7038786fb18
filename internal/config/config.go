// Package config provides configuration management for the media pipelines.
//
// Configuration is loaded once per process into an explicit *Config value and
// handed to every component constructor. Nothing is cached at package level.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "MEDIA_PIPELINES"

// Index backends.
const (
	IndexBackendDynamoDB = "dynamodb"
	IndexBackendPostgres = "postgres"
)

// Config holds all configuration for the pipelines.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Environment string
	AWS         AWSConfig
	Retry       RetryConfig
	Index       IndexConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Ingest      IngestConfig
	Server      ServerConfig
	Logging     LoggingConfig
	Lambda      LambdaConfig
}

// AWSConfig contains the managed-service coordinates.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type AWSConfig struct {
	Region        string
	Endpoint      string // LocalStack or other S3/DynamoDB-compatible endpoint
	VideoBucket   string
	AudioBucket   string
	MetadataTable string

	StepFunctionsRoleARN string
	AudioStateMachineARN string
	VideoStateMachineARN string

	// Rekognition completion notifications; both must be set to be used.
	RekognitionTopicARN string
	RekognitionRoleARN  string
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      time.Duration
}

// IndexConfig selects and tunes the metadata index.
type IndexConfig struct {
	Backend   string
	ScanLimit int
	TTL       time.Duration
}

// DatabaseConfig contains database connection configuration for the
// postgres index backend.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// RabbitMQConfig contains the pipeline notification broker settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	User     string
	Password string
	Exchange string
	Queue    string
	Port     int
}

// IngestConfig contains settings for the public media APIs.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type IngestConfig struct {
	UserAgent       string
	FreesoundAPIKey string
	HTTPTimeout     time.Duration
	DownloadTimeout time.Duration
	MaxDownloadSize int64
	MaxBatchSize    int
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	APIKeys         []string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
	JSON  bool
}

// LambdaConfig selects which step handler a Lambda binary serves.
type LambdaConfig struct {
	Handler string
}

// MissingConfigError is returned when a required configuration value is missing.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration value: %s", e.Key)
}

// legacyEnv maps config keys to the flat variable names used by the
// deployed Lambda environment.
var legacyEnv = map[string]string{
	"environment":              "ENVIRONMENT",
	"aws.region":               "AWS_REGION",
	"aws.videobucket":          "VIDEO_BUCKET",
	"aws.audiobucket":          "AUDIO_BUCKET",
	"aws.metadatatable":        "METADATA_TABLE",
	"aws.stepfunctionsrolearn": "STEP_FUNCTIONS_ROLE_ARN",
	"aws.audiostatemachinearn": "AUDIO_STATE_MACHINE_ARN",
	"aws.videostatemachinearn": "VIDEO_STATE_MACHINE_ARN",
	"lambda.handler":           "HANDLER",
}

// Load loads configuration from an optional config.yaml and the environment.
func Load() (*Config, error) {
	return load(true)
}

// LoadWorkflow loads configuration for tools that only talk to Step
// Functions. Storage and index settings are not required.
func LoadWorkflow() (*Config, error) {
	return load(false)
}

func load(validate bool) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ReplaceAll(strings.ToUpper(key), ".", "_"), EnvPrefix+"_"+name); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if validate {
		if err := cfg.finalize(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) finalize() error {
	c.AWS.VideoBucket = strings.TrimSpace(c.AWS.VideoBucket)
	c.AWS.AudioBucket = strings.TrimSpace(c.AWS.AudioBucket)
	c.AWS.MetadataTable = strings.TrimSpace(c.AWS.MetadataTable)
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))

	if c.AWS.VideoBucket == "" {
		return &MissingConfigError{Key: "aws.videobucket"}
	}
	if c.AWS.AudioBucket == "" {
		c.AWS.AudioBucket = c.AWS.VideoBucket
	}

	switch c.Index.Backend {
	case IndexBackendDynamoDB:
		if c.AWS.MetadataTable == "" {
			return &MissingConfigError{Key: "aws.metadatatable"}
		}
	case IndexBackendPostgres:
	default:
		return fmt.Errorf("unsupported index backend %q", c.Index.Backend)
	}

	return nil
}

// DatabaseURL renders the postgres connection string for the index backend.
func (c DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RabbitMQURL renders the AMQP URL for the notification broker.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")

	// AWS
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.videobucket", "")
	v.SetDefault("aws.audiobucket", "")
	v.SetDefault("aws.metadatatable", "")
	v.SetDefault("aws.stepfunctionsrolearn", "")
	v.SetDefault("aws.audiostatemachinearn", "")
	v.SetDefault("aws.videostatemachinearn", "")
	v.SetDefault("aws.rekognitiontopicarn", "")
	v.SetDefault("aws.rekognitionrolearn", "")

	// Retry
	v.SetDefault("retry.maxattempts", 3)
	v.SetDefault("retry.basebackoff", 500*time.Millisecond)
	v.SetDefault("retry.jitter", 250*time.Millisecond)

	// Index
	v.SetDefault("index.backend", IndexBackendDynamoDB)
	v.SetDefault("index.scanlimit", 100)
	v.SetDefault("index.ttl", 365*24*time.Hour)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "media_pipelines")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxconnections", 10)
	v.SetDefault("database.minconnections", 1)
	v.SetDefault("database.maxidletime", 10*time.Minute)
	v.SetDefault("database.maxlifetime", 1*time.Hour)

	// RabbitMQ
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.exchange", "media.pipelines")
	v.SetDefault("rabbitmq.queue", "media.pipelines.notifications")

	// Ingest
	v.SetDefault("ingest.useragent", "MediaPipelines/1.0 (https://github.com/media-pipelines/media-pipelines-go)")
	v.SetDefault("ingest.freesoundapikey", "")
	v.SetDefault("ingest.httptimeout", 30*time.Second)
	v.SetDefault("ingest.downloadtimeout", 120*time.Second)
	v.SetDefault("ingest.maxdownloadsize", 200*1024*1024)
	v.SetDefault("ingest.maxbatchsize", 50)

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.apikeys", []string{})

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.json", false)

	// Lambda
	v.SetDefault("lambda.handler", "")
}
