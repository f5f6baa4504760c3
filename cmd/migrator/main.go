package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/config"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/database"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
)

const (
	migrationUp   = "up"
	migrationDown = "down"
)

// migrator applies or rolls back the embedded schema using the same
// DB_* variables as the server.
func main() {
	var direction string
	var steps int
	flag.StringVar(&direction, "migration-type", migrationUp, "up or down")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply (0 = all)")
	flag.Parse()

	cfg, err := config.Load()
	log := logger.Setup(cfg.Env)
	if err != nil {
		log.Error("invalid configuration", sl.Err(err))
		os.Exit(1)
	}

	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Error("invalid driver", sl.Err(err))
		os.Exit(1)
	}
	db, err := database.Open(database.Options{
		Driver: dialect, User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName, SSLMode: cfg.DBSSLMode,
	})
	if err != nil {
		log.Error("failed to open database", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, dialect)
	if err != nil {
		log.Error("failed to build migrator", sl.Err(err))
		os.Exit(1)
	}

	switch {
	case steps != 0 && direction == migrationDown:
		err = m.Steps(-steps)
	case steps != 0:
		err = m.Steps(steps)
	case direction == migrationDown:
		err = m.Down()
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply")
		return
	}
	if err != nil {
		log.Error("migration failed", slog.String("direction", direction), sl.Err(err))
		os.Exit(1)
	}
	log.Info("migrations applied", slog.String("direction", direction))
}
