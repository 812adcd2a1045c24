package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"content_review/internal/config"
	"content_review/internal/logger"
	"content_review/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", config.DefaultDatabasePath), "path to sqlite database")
	flag.Parse()

	log := logger.New(logger.Config{Level: envOrDefault("LOG_LEVEL", "info"), Pretty: true})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("open database")
	}
	defer func() { _ = db.Close() }()

	p, err := migrations.NewProvider(db)
	if err != nil {
		log.Fatal().Err(err).Msg("create provider")
	}

	cmd := args[0]
	if err := run(ctx, p, cmd, log); err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate")
	}
}

func run(ctx context.Context, p *goose.Provider, cmd string, log zerolog.Logger) error {
	switch cmd {
	case "up":
		results, err := p.Up(ctx)
		logResults(log, results)
		return err
	case "up-one":
		res, err := p.UpByOne(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info().Msg("no pending migrations")
			return nil
		}
		logResults(log, []*goose.MigrationResult{res})
		return err
	case "down":
		res, err := p.Down(ctx)
		logResults(log, []*goose.MigrationResult{res})
		return err
	case "reset":
		results, err := p.DownTo(ctx, 0)
		logResults(log, results)
		return err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-8d %-24s %s\n", s.Source.Version, applied, s.Source.Path)
		}
		return nil
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func logResults(log zerolog.Logger, results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		log.Info().
			Int64("version", r.Source.Version).
			Str("direction", r.Direction).
			Dur("took", r.Duration).
			Msg("applied migration")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
	fmt.Fprintln(os.Stderr, "  down        Roll back one version")
	fmt.Fprintln(os.Stderr, "  status      Show migration status")
	fmt.Fprintln(os.Stderr, "  version     Show current version")
	fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
