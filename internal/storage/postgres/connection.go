package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	User           string        `env:"POSTGRES_USER,default=postgres" validate:"required"`
	Password       string        `env:"POSTGRES_PASSWORD,default=postgres"`
	Host           string        `env:"POSTGRES_HOST,default=postgres" validate:"required"`
	Port           int           `env:"POSTGRES_PORT,default=5432" validate:"gte=1,lte=65535"`
	Database       string        `env:"POSTGRES_DB,default=hookqueue" validate:"required"`
	SSLMode        string        `env:"POSTGRES_SSLMODE,default=disable" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxRetries     int           `env:"DB_MAX_RETRIES,default=10" validate:"gte=0"`
	RetryDelay     time.Duration `env:"DB_RETRY_DELAY,default=2s" validate:"gt=0,lte=10m"`
	ConnectTimeout int           `env:"DB_CONNECT_TIMEOUT,default=5" validate:"gte=0"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS,default=50" validate:"gte=0"`
	MigrateOnStart bool          `env:"DB_MIGRATE_ON_START,default=false"`
	LogLevelString string        `env:"DB_LOG_LEVEL,default=warn"`
	LogLevel       logger.LogLevel
}

// to help with testing
var envProcess = envconfig.Process

// validate reports fields by their environment variable name.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("env"), ",")
		return name
	})
	return v
}()

func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelString)
	return &cfg, nil
}

// validateConfig reports every invalid field in one error.
func validateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	problems := make([]string, len(verrs))
	for i, fe := range verrs {
		problems[i] = describeField(fe)
	}
	return errors.New(strings.Join(problems, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// DSN renders the libpq connection string for cfg.
func (cfg *Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port, sslMode, cfg.ConnectTimeout,
	)
}

// GormConfig is shared by every dialect so timestamps are always written in UTC.
func GormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// ConnectDB establishes connection to PostgreSQL, retrying until MaxRetries
// is reached or ctx is done.
func ConnectDB(ctx context.Context, cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg == nil {
		loadedCfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loadedCfg
	}
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("connecting to database",
		zap.String("user", cfg.User),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	var lastErr error
	for i := 0; i < cfg.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}

		log.Debug("database connection attempt", zap.Int("attempt", i+1), zap.Int("max", cfg.MaxRetries))

		gdb, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig(cfg.LogLevel))
		if err == nil {
			sqlDB, dbErr := gdb.DB()
			if dbErr == nil {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				pingErr := sqlDB.PingContext(pingCtx)
				cancel()

				if pingErr == nil {
					log.Info("database connected")

					sqlDB.SetMaxIdleConns(10)
					if cfg.MaxOpenConns > 0 {
						sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
					}
					sqlDB.SetConnMaxLifetime(time.Hour)

					return gdb, nil
				}
				_ = sqlDB.Close()
				err = pingErr
			} else {
				err = dbErr
			}
		}
		lastErr = err

		log.Warn("database not ready",
			zap.String("reason", simplifyDBError(err)),
			zap.Duration("retry_in", cfg.RetryDelay),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect database: %w", ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("database connection failed after %d attempts: %s", cfg.MaxRetries, simplifyDBError(lastErr))
	}
	return nil, fmt.Errorf("database connection failed after %d attempts", cfg.MaxRetries)
}

// simplifyDBError returns a user-friendly error message
func simplifyDBError(err error) string {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "invalid database credentials"
	case strings.Contains(msg, "connect"):
		return "cannot reach database server"
	case strings.Contains(msg, "timeout"):
		return "database connection timed out"
	case strings.Contains(msg, "SASL"):
		return "authentication error"
	}

	return "database error"
}

// Convert string to logger.LogLevel
func ParseLogLevel(levelStr string) logger.LogLevel {
	switch strings.ToLower(levelStr) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// AllModels lists every table the stores use, in dependency order.
func AllModels() []any {
	return []any{
		&models.Job{},
		&models.DeadLetter{},
		&models.WebhookSubscriber{},
		&models.DeliveryAttempt{},
		&models.InboundEvent{},
	}
}

// MigrateModels auto-migrates the provided models. Production schemas are
// managed by goose (see RunMigrations); this is for SQLite-backed tests and
// local tooling.
func MigrateModels(db *gorm.DB, models ...any) error {
	if len(models) == 0 {
		models = AllModels()
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
