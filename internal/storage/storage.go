// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"content_review/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateItem(ctx context.Context, item *model.ContentItem) error
	GetItem(ctx context.Context, id int64) (*model.ContentItem, error)
	UpdateItem(ctx context.Context, item *model.ContentItem) error
	ListItemsDueAfter(ctx context.Context, date time.Time) ([]model.ContentItem, error)
	ListItemsDueBefore(ctx context.Context, date time.Time) ([]model.ContentItem, error)
	ListUnscheduledItems(ctx context.Context) ([]model.ContentItem, error)
	Ancestors(ctx context.Context, itemID int64) ([]model.OwnerSource, error)

	CreateMember(ctx context.Context, m *model.Member) error
	DeleteMember(ctx context.Context, id int64) error
	ListMembers(ctx context.Context) ([]model.Member, error)
	CreateGroup(ctx context.Context, g *model.Group) error
	AddGroupMember(ctx context.Context, groupID, memberID int64) error
	ListGroups(ctx context.Context) ([]model.Group, error)

	GetSettings(ctx context.Context) (*model.ReviewSettings, error)
	SaveSettings(ctx context.Context, s *model.ReviewSettings) error

	MarkSent(ctx context.Context, path model.Path, memberID int64, itemIDs []int64, date time.Time) error
	SentItems(ctx context.Context, path model.Path, memberID int64, date time.Time) (map[int64]bool, error)
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error

	Close() error
}
