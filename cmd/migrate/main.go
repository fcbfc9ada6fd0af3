package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aimerfeng/ReviewLink/internal/database"
	"github.com/aimerfeng/ReviewLink/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `Usage: migrate [flags]

Applies the ReviewLink schema embedded in this binary: the reviews table
the dashboard lists and the sessions table that tracks each WhatsApp
conversation.

  migrate                      apply every pending migration
  migrate -command version     show the applied version and its tables
  migrate -command down -steps 1
  migrate -command force -version 2

Flags:
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command      string
		steps        int
		forceVersion int
		databaseURL  string
	)

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.StringVar(&command, "command", "up", "up, down, force, version or drop")
	flag.IntVar(&steps, "steps", 0, "number of migrations for up/down (0 = all)")
	flag.IntVar(&forceVersion, "version", 0, "schema version to mark clean for force")
	flag.StringVar(&databaseURL, "database", "", "reviews database URL (default: $DATABASE_URL)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL environment variable or -database flag is required")
	}

	m, err := database.NewMigrator(databaseURL, migrations.FS, migrations.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open reviews database for migration")
	}
	defer m.Close()

	log.Info().
		Str("command", command).
		Int("steps", steps).
		Strs("tables", tablesUpTo(0)).
		Msg("Migrating ReviewLink schema")

	switch command {
	case "up":
		err = runUp(m, steps)
	case "down":
		err = runDown(m, steps)
	case "force":
		if forceVersion <= 0 {
			log.Fatal().Msg("force requires -version with the schema version to mark clean")
		}
		err = m.Force(forceVersion)
	case "version":
		reportVersion(m)
		return
	case "drop":
		err = m.Drop()
	default:
		flag.Usage()
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("Reviews and sessions tables are already up to date")
			return
		}
		log.Fatal().Err(err).Msg("Schema migration failed")
	}

	reportVersion(m)
}

func reportVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No ReviewLink tables have been created")
			return
		}
		log.Fatal().Err(err).Msg("Failed to read schema version")
	}
	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Strs("tables", tablesUpTo(version)).
		Msg("ReviewLink schema version")
}

func runUp(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(steps)
	}
	return m.Up()
}

func runDown(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(-steps)
	}
	return m.Down()
}

// tablesUpTo lists the tables created by migrations at or below version,
// read from the embedded "NNNNNN_create_<table>.up.sql" file names. Zero
// means every migration.
func tablesUpTo(version uint) []string {
	names, err := fs.Glob(migrations.FS, "*_create_*.up.sql")
	if err != nil {
		return nil
	}
	sort.Strings(names)

	var tables []string
	for _, name := range names {
		prefix, rest, ok := strings.Cut(name, "_create_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil || (version > 0 && uint(v) > version) {
			continue
		}
		tables = append(tables, strings.TrimSuffix(rest, ".up.sql"))
	}
	return tables
}
