// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/caarlos0/env/v11"

	"github.com/baldanca/unicorn-api/sink"
)

// DefaultBucketName is used when BUCKET_NAME is unset.
const DefaultBucketName = sink.DefaultBucket

type Config struct {
	// BucketName defaults to DefaultBucketName.
	BucketName string `env:"BUCKET_NAME"`

	KeyStrategy string `env:"KEY_STRATEGY" envDefault:"uuid"`
	FixedKey    string `env:"FIXED_KEY" envDefault:"test"`
	KeyPrefix   string `env:"KEY_PREFIX"`

	StorageFormat      string `env:"STORAGE_FORMAT" envDefault:"json"`
	ParquetCompression string `env:"PARQUET_COMPRESSION"`
	ObjectACL          string `env:"OBJECT_ACL"`

	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	HTTP    HTTPConfig    `envPrefix:"HTTP_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
	SQS     SQSConfig     `envPrefix:"SQS_"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

type HTTPConfig struct {
	Addr              string        `env:"ADDR" envDefault:":8000"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type SQSConfig struct {
	QueueURL                 string `env:"QUEUE_URL"`
	WaitTimeSeconds          int32  `env:"WAIT_TIME_SECONDS" envDefault:"20"`
	MaxMessages              int32  `env:"MAX_MESSAGES" envDefault:"10"`
	FailVisibilitySeconds    int32  `env:"FAIL_VISIBILITY_SECONDS" envDefault:"-1"`
	VisibilityTimeoutSeconds int32  `env:"VISIBILITY_TIMEOUT_SECONDS" envDefault:"30"`
	UnwrapSNS                bool   `env:"UNWRAP_SNS" envDefault:"false"`
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Field == "" && e.Err != nil:
		return "invalid configuration: " + e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("invalid configuration %s: %s: %v", e.Field, e.Reason, e.Err)
	default:
		return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	cfg := Config{BucketName: DefaultBucketName}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that env tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BucketName) == "" {
		return &ConfigurationError{Field: "BUCKET_NAME", Reason: "must not be blank"}
	}
	if strings.ContainsAny(c.BucketName, "/ ") {
		return &ConfigurationError{Field: "BUCKET_NAME", Reason: "must not contain '/' or spaces"}
	}

	switch c.KeyStrategy {
	case "fixed":
		if c.FixedKey == "" {
			return &ConfigurationError{Field: "FIXED_KEY", Reason: "required by the fixed key strategy"}
		}
	case "uuid", "hash", "partitioned":
	default:
		return &ConfigurationError{Field: "KEY_STRATEGY", Reason: fmt.Sprintf("unknown strategy %q", c.KeyStrategy)}
	}

	if c.ObjectACL != "" && !slices.Contains(types.ObjectCannedACL("").Values(), types.ObjectCannedACL(c.ObjectACL)) {
		return &ConfigurationError{Field: "OBJECT_ACL", Reason: fmt.Sprintf("unknown canned ACL %q", c.ObjectACL)}
	}

	switch c.StorageFormat {
	case "json", "parquet":
	default:
		return &ConfigurationError{Field: "STORAGE_FORMAT", Reason: fmt.Sprintf("unknown format %q", c.StorageFormat)}
	}
	switch c.ParquetCompression {
	case "", "snappy", "gzip", "zstd":
	default:
		return &ConfigurationError{Field: "PARQUET_COMPRESSION", Reason: fmt.Sprintf("unknown compression %q", c.ParquetCompression)}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigurationError{Field: "LOG_LEVEL", Reason: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return &ConfigurationError{Field: "LOG_FORMAT", Reason: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	if c.MaxBodyBytes <= 0 {
		return &ConfigurationError{Field: "MAX_BODY_BYTES", Reason: "must be positive"}
	}
	if c.SQS.WaitTimeSeconds < 0 || c.SQS.WaitTimeSeconds > 20 {
		return &ConfigurationError{Field: "SQS_WAIT_TIME_SECONDS", Reason: "must be between 0 and 20"}
	}
	if c.SQS.MaxMessages < 1 || c.SQS.MaxMessages > 10 {
		return &ConfigurationError{Field: "SQS_MAX_MESSAGES", Reason: "must be between 1 and 10"}
	}
	if c.SQS.VisibilityTimeoutSeconds < 0 {
		return &ConfigurationError{Field: "SQS_VISIBILITY_TIMEOUT_SECONDS", Reason: "must not be negative"}
	}
	return nil
}

// RequireQueue fails when no SQS queue is configured.
func (c *Config) RequireQueue() error {
	if c.SQS.QueueURL == "" {
		return &ConfigurationError{Field: "SQS_QUEUE_URL", Reason: "required by the queue worker"}
	}
	return nil
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
