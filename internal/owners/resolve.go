// Package owners resolves who must be notified about a content item.
//
// Ownership is inherited, not merged: the item's own owners win if it
// declares any, otherwise the nearest ancestor (or the site-wide default)
// that declares owners supplies all of them.
package owners

import (
	"strconv"

	"content_review/internal/model"
)

// Resolution is the outcome of resolving one item's owners.
type Resolution struct {
	// Source is the level the owners came from. Empty when no level in the
	// chain declares owners.
	Source model.OwnerSource

	// Members are the deduplicated notification targets: explicit users
	// first, then group members in group order.
	Members []model.Member

	// MissingUserIDs lists declared or group-listed member IDs that have no
	// member record. MissingGroupIDs lists declared groups that do not exist.
	MissingUserIDs  []int64
	MissingGroupIDs []int64
}

// ItemSource expresses an item's own review period and owners as a source.
func ItemSource(item model.ContentItem) model.OwnerSource {
	return model.OwnerSource{
		Label:            itemLabel(item.ID),
		ReviewPeriodDays: item.ReviewPeriodDays,
		OwnerUserIDs:     item.OwnerUserIDs,
		OwnerGroupIDs:    item.OwnerGroupIDs,
	}
}

// EffectiveSource picks the level whose owners apply to item. chain is
// ordered from the nearest ancestor to the site-wide default. The boolean
// is false when nothing in the chain declares owners.
func EffectiveSource(item model.ContentItem, chain []model.OwnerSource) (model.OwnerSource, bool) {
	if item.HasOwners() {
		return ItemSource(item), true
	}
	for _, src := range chain {
		if src.HasOwners() {
			return src, true
		}
	}
	return model.OwnerSource{}, false
}

// Resolve computes the notification targets for item.
//
// Groups expand to their own members only; subgroups are not included.
// Members are looked up against the current directory, so owners deleted
// since assignment simply drop out, and an item with explicit owners never
// falls back to the chain even if none of them still exist.
func Resolve(item model.ContentItem, chain []model.OwnerSource, dir *Directory) Resolution {
	src, ok := EffectiveSource(item, chain)
	if !ok {
		return Resolution{}
	}

	res := Resolution{Source: src}
	seen := make(map[int64]bool)
	missing := make(map[int64]bool)

	add := func(id int64) {
		if seen[id] {
			return
		}
		m, ok := dir.Member(id)
		if !ok {
			if !missing[id] {
				missing[id] = true
				res.MissingUserIDs = append(res.MissingUserIDs, id)
			}
			return
		}
		seen[id] = true
		res.Members = append(res.Members, m)
	}

	for _, id := range src.OwnerUserIDs {
		add(id)
	}
	for _, gid := range src.OwnerGroupIDs {
		g, ok := dir.Group(gid)
		if !ok {
			res.MissingGroupIDs = append(res.MissingGroupIDs, gid)
			continue
		}
		for _, id := range g.MemberIDs {
			add(id)
		}
	}

	return res
}

func itemLabel(id int64) string {
	return "item:" + strconv.FormatInt(id, 10)
}
