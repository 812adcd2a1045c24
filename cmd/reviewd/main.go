package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"content_review/internal/config"
	"content_review/internal/datemath"
	"content_review/internal/logger"
	"content_review/internal/notify"
	"content_review/internal/report"
	"content_review/internal/runner"
	"content_review/internal/scheduler"
	"content_review/internal/storage"
)

const usageText = `Usage: reviewd <command> [arguments]

Commands:
  run [-now YYYY-MM-DD]   Run one review pass and exit
  serve [-run-now]        Run passes on REVIEW_SCHEDULE until interrupted
  reviewed <item-id>      Record a completed review of an item
  period <item-id> <name> Set an item's review period from the schedule
  owners <item-id>        Show who is notified about an item
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, File: cfg.LogFile})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, cmd string, args []string) error {
	switch cmd {
	case "run":
		return runPass(ctx, cfg, log, args)
	case "serve":
		return serve(ctx, cfg, log, args)
	case "reviewed":
		return markReviewed(ctx, cfg, log, args)
	case "period":
		return setPeriod(ctx, cfg, log, args)
	case "owners":
		return showOwners(ctx, cfg, log, args)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runPass(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	nowFlag := fs.String("now", "", "calendar date to run for (YYYY-MM-DD), defaults to today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	if *nowFlag != "" {
		d, err := datemath.Parse(*nowFlag)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		now = d
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r, err := newRunner(cfg, store, log)
	if err != nil {
		return err
	}

	rep, err := r.RunPass(ctx, now)
	if err != nil {
		return err
	}
	fmt.Println(rep.Format())
	return nil
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	runNow := fs.Bool("run-now", false, "run a pass immediately on start")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r, err := newRunner(cfg, store, log)
	if err != nil {
		return err
	}

	var rep scheduler.Reporter
	if cfg.ReportEnabled() {
		tg, err := report.NewTelegram(cfg.TelegramBotToken, cfg.TelegramReportChatID, log)
		if err != nil {
			return err
		}
		rep = tg
	}

	sched, err := scheduler.New(cfg.Schedule, r, rep, log)
	if err != nil {
		return err
	}

	log.Info().Str("schedule", cfg.Schedule).Bool("reports", rep != nil).Msg("starting review daemon")
	sched.Run(ctx, *runNow)
	log.Info().Msg("review daemon stopped")
	return nil
}

func markReviewed(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	id, err := itemID(args)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := runner.New(store, &cfg.Review, nil, nil, log, runner.Options{AdminEmail: cfg.AdminEmail})
	item, err := r.MarkReviewed(ctx, id, time.Now())
	if err != nil {
		return err
	}

	next := "none"
	if item.NextReviewDate != nil {
		next = datemath.Format(*item.NextReviewDate)
	}
	fmt.Printf("#%d %s reviewed on %s, next review %s\n",
		item.ID, item.Title, datemath.Format(*item.LastReviewDate), next)
	return nil
}

func setPeriod(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected an item id and a period name")
	}
	id, err := itemID(args[:1])
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := runner.New(store, &cfg.Review, nil, nil, log, runner.Options{AdminEmail: cfg.AdminEmail})
	item, err := r.SetPeriod(ctx, id, args[1])
	if err != nil {
		return err
	}

	period := "inherited"
	if item.ReviewPeriodDays != nil {
		period = fmt.Sprintf("%d days", *item.ReviewPeriodDays)
	}
	next := "none"
	if item.NextReviewDate != nil {
		next = datemath.Format(*item.NextReviewDate)
	}
	fmt.Printf("#%d %s review period %s, next review %s\n", item.ID, item.Title, period, next)
	return nil
}

func showOwners(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	id, err := itemID(args)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := runner.New(store, &cfg.Review, nil, nil, log, runner.Options{AdminEmail: cfg.AdminEmail})
	o, err := r.Owners(ctx, id)
	if err != nil {
		return err
	}

	source := o.Resolution.Source.Label
	if source == "" {
		source = "none"
	}
	fmt.Printf("#%d %s\nsource: %s\nowners: %s\n", o.Item.ID, o.Item.Title, source, o.Names)
	for _, m := range o.Resolution.Members {
		fmt.Printf("  %d\t%s\t%s\n", m.ID, m.Name(), m.Email)
	}
	for _, id := range o.Resolution.MissingUserIDs {
		fmt.Printf("  %d\t(missing member)\n", id)
	}
	for _, id := range o.Resolution.MissingGroupIDs {
		fmt.Printf("  group %d\t(missing group)\n", id)
	}
	return nil
}

func openStore(cfg *config.Config, log zerolog.Logger) (*storage.SQLite, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	log.Debug().Str("path", cfg.DatabasePath).Msg("database opened")
	return store, nil
}

func newRunner(cfg *config.Config, store *storage.SQLite, log zerolog.Logger) (*runner.Runner, error) {
	renderer, err := notify.NewRenderer(cfg.Review.Templates)
	if err != nil {
		return nil, err
	}
	sink, err := notify.NewSMTP(cfg.SMTP)
	if err != nil {
		return nil, err
	}
	return runner.New(store, &cfg.Review, renderer, sink, log, runner.Options{
		Workers:    cfg.SendWorkers,
		RatePerSec: cfg.SendRatePerSec,
		AdminEmail: cfg.AdminEmail,
	}), nil
}

func itemID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one item id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", args[0])
	}
	return id, nil
}
