package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshu-sajeev/hookqueue/migrations"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies a goose command ("up", "down" or "status") using the
// embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB, command string, log *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch command {
	case "up":
		err = goose.UpContext(ctx, sqlDB, ".")
	case "down":
		err = goose.DownContext(ctx, sqlDB, ".")
	case "status":
		err = goose.StatusContext(ctx, sqlDB, ".")
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
