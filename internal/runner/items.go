package runner

import (
	"context"
	"fmt"
	"time"

	"content_review/internal/config"
	"content_review/internal/datemath"
	"content_review/internal/model"
	"content_review/internal/owners"
	"content_review/internal/review"
	"content_review/internal/storage"
)

// MarkReviewed records a completed review of an item on the date of now and
// stores the recomputed next review date.
func (r *Runner) MarkReviewed(ctx context.Context, itemID int64, now time.Time) (*model.ContentItem, error) {
	item, err := r.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	chain, err := r.chain(ctx, itemID)
	if err != nil {
		return nil, err
	}

	review.MarkReviewed(item, chain, now)
	if err := r.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	r.log.Info().Int64("item_id", item.ID).Interface("next_review_date", item.NextReviewDate).Msg("item reviewed")
	return item, nil
}

// SetPeriod sets an item's review period to the named schedule entry. The
// "none" entry clears the item's own period so it inherits again. A reviewed
// item gets its next review date recomputed from the last review.
func (r *Runner) SetPeriod(ctx context.Context, itemID int64, name string) (*model.ContentItem, error) {
	days, ok := r.review.PeriodDays(name)
	if !ok {
		return nil, &config.ConfigurationError{Field: "period", Reason: fmt.Sprintf("unknown review period %q", name)}
	}

	item, err := r.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	if days == 0 {
		item.ReviewPeriodDays = nil
	} else {
		item.ReviewPeriodDays = &days
	}

	if item.LastReviewDate != nil {
		chain, err := r.chain(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if period := review.EffectivePeriod(*item, chain); period > 0 {
			next := datemath.AddDays(*item.LastReviewDate, period)
			item.NextReviewDate = &next
		} else {
			item.NextReviewDate = nil
		}
	}

	if err := r.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	r.log.Info().Int64("item_id", item.ID).Str("period", name).Interface("next_review_date", item.NextReviewDate).Msg("review period set")
	return item, nil
}

// Ownership describes who is notified about an item and why.
type Ownership struct {
	Item       *model.ContentItem
	Resolution owners.Resolution
	// Names is the display form of the effective source's owners.
	Names string
}

// Owners resolves the owners of an item against the current directory.
func (r *Runner) Owners(ctx context.Context, itemID int64) (*Ownership, error) {
	item, err := r.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	chain, err := r.chain(ctx, itemID)
	if err != nil {
		return nil, err
	}
	dir, err := r.directory(ctx)
	if err != nil {
		return nil, err
	}

	res := owners.Resolve(*item, chain, dir)
	return &Ownership{
		Item:       item,
		Resolution: res,
		Names:      dir.OwnerNames(res.Source),
	}, nil
}

// chain returns the item's ancestors followed by the stored site settings.
func (r *Runner) chain(ctx context.Context, itemID int64) ([]model.OwnerSource, error) {
	ancestors, err := r.store.Ancestors(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load ancestors: %w", err)
	}
	settings, err := r.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return append(ancestors, storage.SiteSource(settings)), nil
}
