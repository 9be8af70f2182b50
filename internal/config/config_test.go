package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv makes Load read from env instead of the process environment.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := envProcess
	t.Cleanup(func() { envProcess = original })

	envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
		return envconfig.ProcessWith(ctx, &envconfig.Config{
			Target:   v,
			Lookuper: envconfig.MapLookuper(env),
			Mutators: mus,
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, map[string]string{"WEBHOOK_SECRET": "inbound-secret"})

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.False(t, cfg.Development())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.Queue.DefaultMaxAttempts)

	assert.True(t, cfg.Webhook.InboundEnabled)
	assert.Equal(t, "/webhook/inbound", cfg.Webhook.InboundPath)
	assert.True(t, cfg.Webhook.ValidateSignature)
	assert.Equal(t, 120*time.Second, cfg.Webhook.ClockSkew())
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, DedupeBackendSQL, cfg.Webhook.DedupeBackend)
	assert.Equal(t, 6, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Webhook.DeliveryTimeout())

	assert.Equal(t, WorkerModeDaemon, cfg.Worker.Mode)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, 15*time.Minute, cfg.Worker.UnknownTypeGrace)
	assert.NotEmpty(t, cfg.Worker.ID, "a worker ID is derived from the host")

	assert.Equal(t, "hookqueue", cfg.Telemetry.ServiceName)
}

func TestLoad_Overrides(t *testing.T) {
	withEnv(t, map[string]string{
		"APP_ENV":                    "development",
		"LOG_LEVEL":                  "debug",
		"WEBHOOK_VALIDATE_SIGNATURE": "false",
		"WEBHOOK_MAX_CLOCK_SKEW":     "0",
		"WEBHOOK_IP_WHITELIST":       "10.0.0.0/8,192.168.1.1",
		"WEBHOOK_DEDUPE_BACKEND":     "redis",
		"WORKER_ID":                  "worker-a",
		"WORKER_MODE":                "loop",
		"WORKER_MAX_JOBS":            "25",
		"WORKER_JOB_TYPES":           "deliver_webhook",
		"QUEUE_RETRY_SCHEDULE":       "1s,10s",
		"REDIS_ADDR":                 "redis:6379",
	})

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Webhook.ValidateSignature)
	assert.Zero(t, cfg.Webhook.ClockSkew())
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.Webhook.IPWhitelist)
	assert.Equal(t, DedupeBackendRedis, cfg.Webhook.DedupeBackend)
	assert.Equal(t, "worker-a", cfg.Worker.ID)
	assert.Equal(t, WorkerModeLoop, cfg.Worker.Mode)
	assert.Equal(t, 25, cfg.Worker.MaxJobs)
	assert.Equal(t, []string{JobTypeDeliverWebhook}, cfg.Worker.JobTypes)
	assert.Equal(t, "1s,10s", cfg.Queue.RetrySchedule)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_ProcessError(t *testing.T) {
	original := envProcess
	t.Cleanup(func() { envProcess = original })
	envProcess = func(context.Context, any, ...envconfig.Mutator) error {
		return errors.New("WORKER_POLL_INTERVAL: invalid duration")
	}

	_, err := Load(context.Background())
	require.ErrorContains(t, err, "failed to process env config")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		errorContains string
	}{
		{
			name:          "secret required with signature validation",
			env:           map[string]string{},
			errorContains: "WEBHOOK_SECRET is required",
		},
		{
			name:          "bad whitelist entries",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WEBHOOK_IP_WHITELIST": "10.0.0.0/33,not-an-ip"},
			errorContains: `"10.0.0.0/33" is not a valid CIDR`,
		},
		{
			name:          "poll interval ceiling below floor",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WORKER_POLL_INTERVAL": "10s", "WORKER_MAX_POLL_INTERVAL": "1s"},
			errorContains: "WORKER_MAX_POLL_INTERVAL",
		},
		{
			name:          "unknown worker mode",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WORKER_MODE": "forever"},
			errorContains: "Mode",
		},
		{
			name:          "unknown dedupe backend",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WEBHOOK_DEDUPE_BACKEND": "memcached"},
			errorContains: "DedupeBackend",
		},
		{
			name:          "inbound path must be absolute",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WEBHOOK_INBOUND_PATH": "webhook"},
			errorContains: "InboundPath",
		},
		{
			name:          "stale threshold not above job timeout",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WORKER_STALE_AFTER": "2m", "WORKER_JOB_TIMEOUT": "2m"},
			errorContains: "WORKER_STALE_AFTER must be greater than WORKER_JOB_TIMEOUT",
		},
		{
			name:          "negative clock skew",
			env:           map[string]string{"WEBHOOK_SECRET": "s", "WEBHOOK_MAX_CLOCK_SKEW": "-1"},
			errorContains: "MaxClockSkew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)

			_, err := Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestValidate_WhitelistReportsEveryEntry(t *testing.T) {
	withEnv(t, map[string]string{"WEBHOOK_SECRET": "s", "WEBHOOK_IP_WHITELIST": "1.2.3.4/40, nope"})

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"1.2.3.4/40"`)
	assert.Contains(t, err.Error(), `"nope"`)
}
