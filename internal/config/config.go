package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config is the process-wide configuration shared by cmd/api and cmd/worker.
// Database settings live in postgres.Config and are loaded separately.
type Config struct {
	AppEnv         string        `env:"APP_ENV,default=production"`
	LogLevel       string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	HTTPAddr       string        `env:"HTTP_ADDR,default=:8080" validate:"required"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=15s" validate:"gt=0"`
	AdminToken     string        `env:"ADMIN_API_TOKEN"`

	Queue     QueueConfig     `env:", prefix=QUEUE_"`
	Webhook   WebhookConfig   `env:", prefix=WEBHOOK_"`
	Worker    WorkerConfig    `env:", prefix=WORKER_"`
	Redis     RedisConfig     `env:", prefix=REDIS_"`
	Telemetry TelemetryConfig `env:", prefix=OTEL_"`
}

type QueueConfig struct {
	DefaultMaxAttempts int `env:"DEFAULT_MAX_ATTEMPTS,default=3" validate:"gte=1,lte=50"`

	// RetrySchedule is a comma separated list of durations; empty means
	// retry.DefaultSchedule.
	RetrySchedule string `env:"RETRY_SCHEDULE"`
}

type WebhookConfig struct {
	InboundEnabled    bool          `env:"INBOUND_ENABLED,default=true"`
	InboundPath       string        `env:"INBOUND_PATH,default=/webhook/inbound" validate:"startswith=/"`
	ValidateSignature bool          `env:"VALIDATE_SIGNATURE,default=true"`
	Secret            string        `env:"SECRET"`
	MaxClockSkew      int           `env:"MAX_CLOCK_SKEW,default=120" validate:"gte=0"`
	IPWhitelist       []string      `env:"IP_WHITELIST"`
	InboundTimeout    time.Duration `env:"INBOUND_TIMEOUT,default=10s" validate:"gt=0"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES,default=1048576" validate:"gt=0"`
	DedupeBackend     string        `env:"DEDUPE_BACKEND,default=sql" validate:"oneof=sql redis"`
	DedupeRetention   time.Duration `env:"DEDUPE_RETENTION,default=168h" validate:"gt=0"`
	ForwardInbound    bool          `env:"FORWARD_INBOUND,default=false"`

	OutboundEnabled bool `env:"OUTBOUND_ENABLED,default=true"`
	MaxAttempts     int  `env:"MAX_ATTEMPTS,default=6" validate:"gte=1,lte=50"`
	Timeout         int  `env:"TIMEOUT,default=5" validate:"gte=1,lte=300"`
}

// ClockSkew returns the inbound timestamp tolerance; zero disables the check.
func (w WebhookConfig) ClockSkew() time.Duration {
	return time.Duration(w.MaxClockSkew) * time.Second
}

// DeliveryTimeout bounds a single outbound HTTP call.
func (w WebhookConfig) DeliveryTimeout() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

type WorkerConfig struct {
	ID               string        `env:"ID"`
	Mode             string        `env:"MODE,default=daemon" validate:"oneof=once loop daemon"`
	Concurrency      int           `env:"CONCURRENCY,default=4" validate:"gte=1,lte=256"`
	PollInterval     time.Duration `env:"POLL_INTERVAL,default=1s" validate:"gt=0"`
	MaxPollInterval  time.Duration `env:"MAX_POLL_INTERVAL,default=30s" validate:"gt=0"`
	StaleAfter       time.Duration `env:"STALE_AFTER,default=5m" validate:"gt=0"`
	ReclaimInterval  time.Duration `env:"RECLAIM_INTERVAL,default=30s" validate:"gt=0"`
	UnknownTypeGrace time.Duration `env:"UNKNOWN_TYPE_GRACE,default=15m" validate:"gt=0"`
	JobTimeout       time.Duration `env:"JOB_TIMEOUT,default=2m" validate:"gt=0"`
	MaxJobs          int           `env:"MAX_JOBS,default=100" validate:"gte=1"`
	JobTypes         []string      `env:"JOB_TYPES"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR,default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0" validate:"gte=0"`
}

type TelemetryConfig struct {
	ServiceName string `env:"SERVICE_NAME,default=hookqueue"`
	TracingURL  string `env:"TRACING_URL"`
	MetricsURL  string `env:"METRICS_URL"`
}

// to help with testing
var envProcess = envconfig.Process

var validate = validator.New()

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if strings.TrimSpace(cfg.Worker.ID) == "" {
		cfg.Worker.ID = defaultWorkerID()
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errors []string

	if c.Webhook.ValidateSignature && strings.TrimSpace(c.Webhook.Secret) == "" {
		errors = append(errors, "WEBHOOK_SECRET is required when WEBHOOK_VALIDATE_SIGNATURE is enabled")
	}

	for _, entry := range c.Webhook.IPWhitelist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				errors = append(errors, fmt.Sprintf("WEBHOOK_IP_WHITELIST entry %q is not a valid CIDR", entry))
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			errors = append(errors, fmt.Sprintf("WEBHOOK_IP_WHITELIST entry %q is not a valid IP", entry))
		}
	}

	if c.Worker.MaxPollInterval < c.Worker.PollInterval {
		errors = append(errors, "WORKER_MAX_POLL_INTERVAL must not be below WORKER_POLL_INTERVAL")
	}

	if c.Worker.StaleAfter <= c.Worker.JobTimeout {
		errors = append(errors, "WORKER_STALE_AFTER must be greater than WORKER_JOB_TIMEOUT")
	}

	for _, jobType := range c.Worker.JobTypes {
		if strings.TrimSpace(jobType) == "" {
			errors = append(errors, "WORKER_JOB_TYPES must not contain empty entries")
			break
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

// Development reports whether human friendly logging should be used.
func (c *Config) Development() bool {
	return slices.Contains([]string{"dev", "development", "local"}, strings.ToLower(c.AppEnv))
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
