// Package main applies or rolls back the vigil rule schema.
//
// Usage:
//
//	vigil-migrate up
//	vigil-migrate down
//	vigil-migrate steps N
//	vigil-migrate version
//
// Connection settings come from the same VIGIL_DB_* variables the service reads.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/kelseyhightower/envconfig"

	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/database"
	"github.com/rafaeljc/vigil/internal/logger"
)

var errUsage = errors.New("usage: vigil-migrate up | down | steps N | version")

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	// Only the app and database sections matter here, so the full service
	// validation (ports, transports) is skipped.
	var app config.AppConfig
	if err := envconfig.Process("VIGIL_APP", &app); err != nil {
		return fmt.Errorf("failed to read app config: %w", err)
	}
	var db config.DatabaseConfig
	if err := envconfig.Process("VIGIL_DB", &db); err != nil {
		return fmt.Errorf("failed to read database config: %w", err)
	}
	if err := db.Validate(app.Environment); err != nil {
		return err
	}

	log := logger.Component(logger.New(&app), "migrate")

	m, err := database.NewMigrator(&db, log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if len(args) != 2 {
			return errUsage
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil || n == 0 {
			return fmt.Errorf("steps needs a non-zero integer, got %q", args[1])
		}
		err = m.Steps(n)
	case "version":
		// handled below
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}
