// Package config loads the environment-driven settings described in
// spec.md §6 ("Environment"), following the teacher's viper-based pattern:
// an optional config file, automatic environment variable binding, and a
// flat Config struct filled in by explicit viper.Get* calls.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide settings object. It is constructed once at
// startup and passed explicitly into the services that need it — no
// package-level global is read by business logic (design note §9,
// "process-wide singletons... avoid ambient globals").
type Config struct {
	// Broker (AMQP-equivalent, implemented over NATS JetStream).
	BrokerURL           string
	BrokerStream        string
	BrokerSubjectPrefix string
	DefaultQueue        string
	MaxRetries          int

	// Blob store (S3-compatible).
	BlobEndpoint  string
	BlobRegion    string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobUseTLS    bool

	// State store.
	StateStoreURL string

	// API surface (out of core; listed here because §6 lists it as an
	// environment concern even though its internals are out of scope).
	APIPort      int
	APIKeyHeader string
	APIKey       string
	BasePath     string

	Timezone string
	DataDir  string

	// Container registry (optional).
	RegistryUser     string
	RegistryPassword string
	RegistryServer   string

	WorkerConcurrency int
	Debug             bool
}

// Load reads configuration from an optional env file plus the process
// environment, applying the defaults set in setDefaults (default queue,
// max retries, stream, bucket, paths, port, concurrency). No per-task time
// limit and no HTTP timeout is read from configuration: the time limit comes
// only from a task's own Options.TimeLimitSeconds, and the HTTP timeout
// default is model.DefaultHTTPTimeoutSeconds.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		viper.SetConfigFile(envFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvVars()
	setDefaults()

	cfg := &Config{
		BrokerURL:           viper.GetString("broker_url"),
		BrokerStream:        viper.GetString("broker_stream"),
		BrokerSubjectPrefix: viper.GetString("broker_subject_prefix"),
		DefaultQueue:        viper.GetString("default_queue"),
		MaxRetries:          viper.GetInt("max_retries"),

		BlobEndpoint:  viper.GetString("blob_endpoint"),
		BlobRegion:    viper.GetString("blob_region"),
		BlobAccessKey: viper.GetString("blob_access_key"),
		BlobSecretKey: viper.GetString("blob_secret_key"),
		BlobBucket:    viper.GetString("blob_bucket"),
		BlobUseTLS:    viper.GetBool("blob_use_tls"),

		StateStoreURL: viper.GetString("state_store_url"),

		APIPort:      viper.GetInt("api_port"),
		APIKeyHeader: viper.GetString("api_key_header"),
		APIKey:       viper.GetString("api_key"),
		BasePath:     viper.GetString("base_path"),

		Timezone: viper.GetString("timezone"),
		DataDir:  viper.GetString("data_dir"),

		RegistryUser:     viper.GetString("registry_user"),
		RegistryPassword: viper.GetString("registry_password"),
		RegistryServer:   viper.GetString("registry_server"),

		WorkerConcurrency: viper.GetInt("worker_concurrency"),
		Debug:             viper.GetBool("debug"),
	}

	return cfg, nil
}

func bindEnvVars() {
	_ = viper.BindEnv("broker_url", "DRAMAX_BROKER_URL")
	_ = viper.BindEnv("broker_stream", "DRAMAX_BROKER_STREAM")
	_ = viper.BindEnv("broker_subject_prefix", "DRAMAX_BROKER_SUBJECT_PREFIX")
	_ = viper.BindEnv("default_queue", "DRAMAX_DEFAULT_QUEUE")
	_ = viper.BindEnv("max_retries", "DRAMAX_MAX_RETRIES")

	_ = viper.BindEnv("blob_endpoint", "DRAMAX_BLOB_ENDPOINT")
	_ = viper.BindEnv("blob_region", "DRAMAX_BLOB_REGION")
	_ = viper.BindEnv("blob_access_key", "DRAMAX_BLOB_ACCESS_KEY")
	_ = viper.BindEnv("blob_secret_key", "DRAMAX_BLOB_SECRET_KEY")
	_ = viper.BindEnv("blob_bucket", "DRAMAX_BLOB_BUCKET")
	_ = viper.BindEnv("blob_use_tls", "DRAMAX_BLOB_USE_TLS")

	_ = viper.BindEnv("state_store_url", "DRAMAX_STATE_STORE_URL")

	_ = viper.BindEnv("api_port", "DRAMAX_API_PORT")
	_ = viper.BindEnv("api_key_header", "DRAMAX_API_KEY_HEADER")
	_ = viper.BindEnv("api_key", "DRAMAX_API_KEY")
	_ = viper.BindEnv("base_path", "DRAMAX_BASE_PATH")

	_ = viper.BindEnv("timezone", "DRAMAX_TIMEZONE")
	_ = viper.BindEnv("data_dir", "DRAMAX_DATA_DIR")

	_ = viper.BindEnv("registry_user", "DRAMAX_REGISTRY_USER")
	_ = viper.BindEnv("registry_password", "DRAMAX_REGISTRY_PASSWORD")
	_ = viper.BindEnv("registry_server", "DRAMAX_REGISTRY_SERVER")

	_ = viper.BindEnv("worker_concurrency", "DRAMAX_WORKER_CONCURRENCY")
	_ = viper.BindEnv("debug", "DRAMAX_DEBUG")
}

func setDefaults() {
	viper.SetDefault("broker_stream", "DRAMAX")
	viper.SetDefault("broker_subject_prefix", "dramax")
	viper.SetDefault("default_queue", "default")
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("blob_bucket", "dramax-artifacts")
	viper.SetDefault("state_store_url", "dramax.db")
	viper.SetDefault("api_port", 8080)
	viper.SetDefault("api_key_header", "X-API-Key")
	viper.SetDefault("base_path", "/api/v2")
	viper.SetDefault("timezone", "UTC")
	viper.SetDefault("data_dir", "/var/lib/dramax")
	viper.SetDefault("worker_concurrency", 4)
}

// Location parses the configured Timezone, falling back to UTC on error so
// log-filename generation (spec.md §4.3 Phase 4) never fails on bad config.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
