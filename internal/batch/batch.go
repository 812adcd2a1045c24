// Package batch groups due items by owner so each owner gets one message.
package batch

import "content_review/internal/model"

// Due is an item selected for notification with its resolved owners.
type Due struct {
	Item   model.DueItem
	Owners []model.Member
}

// OwnerBatch lists the items one owner must be told about in this run.
type OwnerBatch struct {
	Owner model.Member
	Items []model.DueItem
}

// Batcher accumulates due items per owner. It is not safe for concurrent use.
type Batcher struct {
	order   []int64
	byOwner map[int64]*OwnerBatch
	seen    map[int64]map[int64]bool
}

// New returns an empty Batcher.
func New() *Batcher {
	return &Batcher{
		byOwner: make(map[int64]*OwnerBatch),
		seen:    make(map[int64]map[int64]bool),
	}
}

// Add appends d's item to the list of every owner in d.Owners. An item with
// N owners lands in N lists.
func (b *Batcher) Add(d Due) {
	for _, owner := range d.Owners {
		ob, ok := b.byOwner[owner.ID]
		if !ok {
			ob = &OwnerBatch{Owner: owner}
			b.byOwner[owner.ID] = ob
			b.seen[owner.ID] = make(map[int64]bool)
			b.order = append(b.order, owner.ID)
		}
		if b.seen[owner.ID][d.Item.Item.ID] {
			continue
		}
		b.seen[owner.ID][d.Item.Item.ID] = true
		ob.Items = append(ob.Items, d.Item)
	}
}

// Len returns the number of owners with at least one item.
func (b *Batcher) Len() int {
	return len(b.order)
}

// Batches returns the owner batches in first-seen owner order. Items keep
// the order in which they were added.
func (b *Batcher) Batches() []OwnerBatch {
	out := make([]OwnerBatch, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.byOwner[id])
	}
	return out
}

// Group batches due in one call.
func Group(due []Due) []OwnerBatch {
	b := New()
	for _, d := range due {
		b.Add(d)
	}
	return b.Batches()
}
