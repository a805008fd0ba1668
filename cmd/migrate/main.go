package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/liamcoop/recalc/internal/config"
	"github.com/liamcoop/recalc/internal/database"
	"github.com/liamcoop/recalc/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to the configured one)")
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (defaults to the embedded migrations)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal("Failed to load configuration", "error", err)
		}
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required. Use -database flag, DATABASE_URL or [database] url in config.toml")
	}

	source := migrationsPath
	if source == "" {
		source = "embedded"
	}
	logger.Info("Connecting to database", "migrations", source)

	m, err := database.NewMigrator(databaseURL, migrationsPath)
	if err != nil {
		logger.Fatal("Failed to create migrator", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Error("Migration command failed", "command", command, "error", err)
		m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Migrations completed")

	case "down":
		err := m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("Rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %s (use: up, down, version, force)", command)
	}
	return nil
}
