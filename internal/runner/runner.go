// Package runner orchestrates review passes: it selects items, classifies
// them, resolves their owners, batches the due items per owner and hands
// one rendered message per owner to the mail sink.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"content_review/internal/batch"
	"content_review/internal/config"
	"content_review/internal/datemath"
	"content_review/internal/model"
	"content_review/internal/notify"
	"content_review/internal/owners"
	"content_review/internal/review"
	"content_review/internal/storage"
)

// Store is the subset of storage the runner needs.
type Store interface {
	GetItem(ctx context.Context, id int64) (*model.ContentItem, error)
	UpdateItem(ctx context.Context, item *model.ContentItem) error
	ListItemsDueAfter(ctx context.Context, date time.Time) ([]model.ContentItem, error)
	ListItemsDueBefore(ctx context.Context, date time.Time) ([]model.ContentItem, error)
	ListUnscheduledItems(ctx context.Context) ([]model.ContentItem, error)
	Ancestors(ctx context.Context, itemID int64) ([]model.OwnerSource, error)

	ListMembers(ctx context.Context) ([]model.Member, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	GetSettings(ctx context.Context) (*model.ReviewSettings, error)

	MarkSent(ctx context.Context, path model.Path, memberID int64, itemIDs []int64, date time.Time) error
	SentItems(ctx context.Context, path model.Path, memberID int64, date time.Time) (map[int64]bool, error)
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
}

// Options tune the send stage.
type Options struct {
	// Workers bounds the number of concurrent sends. Defaults to 4.
	Workers int
	// RatePerSec caps sends per second across all workers. Defaults to 5.
	RatePerSec int
	// AdminEmail is the last fallback for the from address.
	AdminEmail string
}

// Runner runs review passes.
type Runner struct {
	store    Store
	review   *config.Review
	renderer *notify.Renderer
	sink     notify.Sink
	log      zerolog.Logger

	workers    int
	limiter    *rate.Limiter
	adminEmail string
}

// New creates a Runner.
func New(store Store, rev *config.Review, renderer *notify.Renderer, sink notify.Sink, log zerolog.Logger, opts Options) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Runner{
		store:      store,
		review:     rev,
		renderer:   renderer,
		sink:       sink,
		log:        log.With().Str("component", "runner").Logger(),
		workers:    workers,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		adminEmail: opts.AdminEmail,
	}
}

// RunPass runs the reminder path and then the overdue path for the calendar
// date of now. Only configuration and store failures abort the pass.
func (r *Runner) RunPass(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{Date: datemath.Date(now)}

	var err error
	if rep.Reminder, err = r.RunReminders(ctx, now); err != nil {
		return rep, err
	}
	if rep.Overdue, err = r.RunOverdue(ctx, now); err != nil {
		return rep, err
	}
	return rep, nil
}

// RunReminders notifies owners of items whose review date is an exact
// reminder interval away. Items never given a stored review date are
// scheduled forward from their last review.
func (r *Runner) RunReminders(ctx context.Context, now time.Time) (Summary, error) {
	return r.runPath(ctx, model.PathReminder, now)
}

// RunOverdue notifies owners of items whose stored review date has passed.
func (r *Runner) RunOverdue(ctx context.Context, now time.Time) (Summary, error) {
	return r.runPath(ctx, model.PathOverdue, now)
}

func (r *Runner) runPath(ctx context.Context, path model.Path, now time.Time) (Summary, error) {
	today := datemath.Date(now)
	sum := Summary{Path: path}

	settings, site, err := r.settings(ctx)
	if err != nil {
		return sum, err
	}

	items, err := r.candidates(ctx, path, today)
	if err != nil {
		return sum, err
	}

	dir, err := r.directory(ctx)
	if err != nil {
		return sum, err
	}

	run := &model.Run{
		ID:        uuid.NewString(),
		Path:      path,
		RunDate:   today,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return sum, err
	}
	sum.RunID = run.ID
	log := r.log.With().Str("run_id", run.ID).Str("path", string(path)).Logger()
	log.Debug().Time("date", today).Int("candidates", len(items)).Msg("pass started")

	want := model.ReminderDue
	if path == model.PathOverdue {
		want = model.Overdue
	}

	b := batch.New()
	for _, item := range items {
		sum.Considered++

		ancestors, err := r.store.Ancestors(ctx, item.ID)
		if err != nil {
			log.Error().Err(err).Int64("item_id", item.ID).Msg("load ancestors")
			sum.Warnings++
			continue
		}
		chain := append(ancestors, site)

		c := review.Classify(item, chain, today, r.review.ReminderIntervals)
		if c.Status != want {
			continue
		}
		sum.Due++

		res := owners.Resolve(item, chain, dir)
		for _, id := range res.MissingUserIDs {
			log.Warn().Int64("item_id", item.ID).Int64("member_id", id).Str("source", res.Source.Label).Msg("owner no longer exists")
			sum.Warnings++
		}
		for _, id := range res.MissingGroupIDs {
			log.Warn().Int64("item_id", item.ID).Int64("group_id", id).Str("source", res.Source.Label).Msg("owner group no longer exists")
			sum.Warnings++
		}
		if len(res.Members) == 0 {
			log.Warn().Int64("item_id", item.ID).Msg("no resolvable owner")
			sum.Warnings++
			continue
		}

		b.Add(batch.Due{
			Item: model.DueItem{
				Item:           item,
				NextReviewDate: c.NextReviewDate,
				DaysUntilDue:   c.DaysUntilDue,
			},
			Owners: res.Members,
		})
	}

	batches := b.Batches()
	sum.Owners = len(batches)
	r.send(ctx, log, path, today, settings, batches, &sum)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Items = sum.Due
	run.Owners = sum.Owners
	run.Sent = sum.Sent
	run.Failed = sum.Failed
	if err := r.store.FinishRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("record run")
	}

	log.Info().
		Int("considered", sum.Considered).
		Int("due", sum.Due).
		Int("owners", sum.Owners).
		Int("sent", sum.Sent).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("pass finished")
	return sum, nil
}

// settings loads the site settings once per pass and checks the site period
// against the schedule. It returns the settings with defaults applied and the
// site source that ends every item's chain.
func (r *Runner) settings(ctx context.Context) (model.ReviewSettings, model.OwnerSource, error) {
	s, err := r.store.GetSettings(ctx)
	if err != nil {
		return model.ReviewSettings{}, model.OwnerSource{}, fmt.Errorf("load settings: %w", err)
	}
	if !r.review.HasPeriod(s.ReviewPeriodDays) {
		return model.ReviewSettings{}, model.OwnerSource{}, &config.ConfigurationError{
			Field:  "review_period_days",
			Reason: fmt.Sprintf("site period %d is not in the schedule", s.ReviewPeriodDays),
		}
	}
	return r.review.Effective(*s, r.adminEmail), storage.SiteSource(s), nil
}

func (r *Runner) candidates(ctx context.Context, path model.Path, today time.Time) ([]model.ContentItem, error) {
	if path == model.PathOverdue {
		items, err := r.store.ListItemsDueBefore(ctx, today)
		if err != nil {
			return nil, fmt.Errorf("list overdue items: %w", err)
		}
		return items, nil
	}

	items, err := r.store.ListItemsDueAfter(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list upcoming items: %w", err)
	}
	unscheduled, err := r.store.ListUnscheduledItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unscheduled items: %w", err)
	}
	return append(items, unscheduled...), nil
}

func (r *Runner) directory(ctx context.Context) (*owners.Directory, error) {
	members, err := r.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	groups, err := r.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return owners.NewDirectory(members, groups), nil
}

// send delivers every batch. Each owner has exactly one batch, so there is
// never more than one in-flight send per owner. Items the owner was already
// told about today on this path are dropped from the batch, and an owner with
// nothing left is skipped. Failures are logged and counted; they never stop
// the remaining sends.
func (r *Runner) send(ctx context.Context, log zerolog.Logger, path model.Path, today time.Time, settings model.ReviewSettings, batches []batch.OwnerBatch, sum *Summary) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.workers)

	count := func(f func()) {
		mu.Lock()
		f()
		mu.Unlock()
	}

	for _, ob := range batches {
		g.Go(func() error {
			l := log.With().Int64("member_id", ob.Owner.ID).Logger()

			if ob.Owner.Email == "" {
				l.Warn().Msg("owner has no email address")
				count(func() { sum.Warnings++ })
				return nil
			}

			sent, err := r.store.SentItems(ctx, path, ob.Owner.ID, today)
			if err != nil {
				l.Error().Err(err).Msg("check ledger")
				count(func() { sum.Failed++ })
				return nil
			}
			pending := unsent(ob.Items, sent)
			if len(pending) == 0 {
				l.Debug().Msg("already notified today")
				count(func() { sum.Skipped++ })
				return nil
			}
			l = l.With().Int("pages", len(pending)).Logger()

			msg, err := r.renderer.Render(path, settings, ob.Owner, pending)
			if err != nil {
				l.Error().Err(err).Msg("render message")
				count(func() { sum.Failed++ })
				return nil
			}

			if err := r.limiter.Wait(ctx); err != nil {
				l.Error().Err(err).Msg("wait for send slot")
				count(func() { sum.Failed++ })
				return nil
			}

			if err := r.sink.Send(ctx, msg); err != nil {
				l.Error().Err(err).Str("to", msg.To).Msg("delivery failed")
				count(func() { sum.Failed++ })
				return nil
			}

			ids := make([]int64, 0, len(pending))
			for _, it := range pending {
				ids = append(ids, it.Item.ID)
			}
			if err := r.store.MarkSent(ctx, path, ob.Owner.ID, ids, today); err != nil {
				l.Error().Err(err).Msg("mark sent")
			}
			l.Debug().Str("to", msg.To).Msg("notified")
			count(func() { sum.Sent++ })
			return nil
		})
	}
	_ = g.Wait()
}

func unsent(items []model.DueItem, sent map[int64]bool) []model.DueItem {
	if len(sent) == 0 {
		return items
	}
	out := make([]model.DueItem, 0, len(items))
	for _, it := range items {
		if !sent[it.Item.ID] {
			out = append(out, it)
		}
	}
	return out
}
