// Command migrate applies the embedded goose migrations.
//
//	migrate [up|down|status]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/hookqueue/internal/logging"
	"github.com/joshu-sajeev/hookqueue/internal/storage/postgres"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := run(command); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(command string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logging.New("info", false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.ConnectDB(ctx, cfg, log.Named("db"))
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return postgres.RunMigrations(ctx, db, command, log.Named("migrate"))
}
