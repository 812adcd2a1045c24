package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"content_review/internal/datemath"
	"content_review/internal/model"
	"content_review/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SiteLabel labels the site-wide settings in an owner chain.
const SiteLabel = "site"

const itemColumns = `id, parent_id, title, link, last_review_date, next_review_date, review_period_days`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writes from concurrent senders.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateItem inserts a content item with its owners and populates its ID.
func (s *SQLite) CreateItem(ctx context.Context, item *model.ContentItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO content_items (parent_id, title, link, last_review_date, next_review_date, review_period_days)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ParentID, item.Title, item.Link,
		formatDate(item.LastReviewDate), formatDate(item.NextReviewDate), item.ReviewPeriodDays,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := replaceItemOwners(ctx, tx, id, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	item.ID = id
	return nil
}

// GetItem returns a single content item with its owners.
func (s *SQLite) GetItem(ctx context.Context, id int64) (*model.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	items := []model.ContentItem{*item}
	if err := s.attachOwners(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// UpdateItem persists an item's fields and replaces its owners.
func (s *SQLite) UpdateItem(ctx context.Context, item *model.ContentItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE content_items
		 SET parent_id = ?, title = ?, link = ?, last_review_date = ?, next_review_date = ?, review_period_days = ?
		 WHERE id = ?`,
		item.ParentID, item.Title, item.Link,
		formatDate(item.LastReviewDate), formatDate(item.NextReviewDate), item.ReviewPeriodDays, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update item %d: %w", item.ID, ErrNotFound)
	}
	if err := replaceItemOwners(ctx, tx, item.ID, item); err != nil {
		return err
	}
	return tx.Commit()
}

// ListItemsDueAfter returns items whose next review date is after date.
func (s *SQLite) ListItemsDueAfter(ctx context.Context, date time.Time) ([]model.ContentItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE next_review_date IS NOT NULL AND next_review_date > ? ORDER BY next_review_date, id`,
		datemath.Format(date),
	)
}

// ListItemsDueBefore returns items whose next review date is before date.
func (s *SQLite) ListItemsDueBefore(ctx context.Context, date time.Time) ([]model.ContentItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE next_review_date IS NOT NULL AND next_review_date < ? ORDER BY next_review_date, id`,
		datemath.Format(date),
	)
}

// ListUnscheduledItems returns reviewed items that have no stored next
// review date.
func (s *SQLite) ListUnscheduledItems(ctx context.Context) ([]model.ContentItem, error) {
	return s.listItems(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE next_review_date IS NULL AND last_review_date IS NOT NULL ORDER BY id`,
	)
}

// Ancestors returns the owner sources above an item, from its parent up to
// the root. A missing parent or a cycle ends the walk. The site-wide
// settings are not part of the result.
func (s *SQLite) Ancestors(ctx context.Context, itemID int64) ([]model.OwnerSource, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var chain []model.OwnerSource
	seen := map[int64]bool{item.ID: true}
	parent := item.ParentID
	for parent != nil && !seen[*parent] {
		seen[*parent] = true
		anc, err := s.GetItem(ctx, *parent)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load ancestor %d: %w", *parent, err)
		}
		chain = append(chain, model.OwnerSource{
			Label:            fmt.Sprintf("item:%d", anc.ID),
			ReviewPeriodDays: anc.ReviewPeriodDays,
			OwnerUserIDs:     anc.OwnerUserIDs,
			OwnerGroupIDs:    anc.OwnerGroupIDs,
		})
		parent = anc.ParentID
	}
	return chain, nil
}

// SiteSource expresses the site-wide settings as the last link of a chain.
func SiteSource(settings *model.ReviewSettings) model.OwnerSource {
	period := settings.ReviewPeriodDays
	return model.OwnerSource{
		Label:            SiteLabel,
		ReviewPeriodDays: &period,
		OwnerUserIDs:     settings.OwnerUserIDs,
		OwnerGroupIDs:    settings.OwnerGroupIDs,
	}
}

// CreateMember inserts a member and populates its ID.
func (s *SQLite) CreateMember(ctx context.Context, m *model.Member) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO members (email, first_name, surname) VALUES (?, ?, ?)`,
		m.Email, m.FirstName, m.Surname,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// DeleteMember removes a member and its group memberships. Owner
// assignments that reference the member are left in place.
func (s *SQLite) DeleteMember(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE member_id = ?`, id); err != nil {
		return fmt.Errorf("delete group_members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return tx.Commit()
}

// ListMembers returns all members.
func (s *SQLite) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, first_name, surname FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Email, &m.FirstName, &m.Surname); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateGroup inserts a group with its members and populates its ID.
func (s *SQLite) CreateGroup(ctx context.Context, g *model.Group) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO member_groups (name, parent_id) VALUES (?, ?)`, g.Name, g.ParentGroupID,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	for _, mid := range g.MemberIDs {
		if err := s.AddGroupMember(ctx, id, mid); err != nil {
			return err
		}
	}
	return nil
}

// AddGroupMember appends a member to a group. Adding an existing member is
// a no-op.
func (s *SQLite) AddGroupMember(ctx context.Context, groupID, memberID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, member_id, position)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM group_members WHERE group_id = ?))`,
		groupID, memberID, groupID,
	)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// ListGroups returns all groups with their direct members.
func (s *SQLite) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id FROM member_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.Group
	index := make(map[int64]int)
	for rows.Next() {
		var g model.Group
		var parent sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &parent); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if parent.Valid {
			p := parent.Int64
			g.ParentGroupID = &p
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	mrows, err := s.db.QueryContext(ctx, `SELECT group_id, member_id FROM group_members ORDER BY group_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer func() { _ = mrows.Close() }()
	for mrows.Next() {
		var gid, mid int64
		if err := mrows.Scan(&gid, &mid); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		if i, ok := index[gid]; ok {
			groups[i].MemberIDs = append(groups[i].MemberIDs, mid)
		}
	}
	return groups, mrows.Err()
}

// GetSettings returns the site-wide settings as stored. Blank text fields
// are not replaced by defaults here.
func (s *SQLite) GetSettings(ctx context.Context) (*model.ReviewSettings, error) {
	var st model.ReviewSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT review_period_days, review_subject, review_body, reminder_subject, reminder_body, review_from
		 FROM site_settings WHERE id = 1`,
	).Scan(&st.ReviewPeriodDays, &st.ReviewSubject, &st.ReviewBody, &st.ReminderSubject, &st.ReminderBody, &st.ReviewFromAddress)
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}

	if st.OwnerUserIDs, err = s.queryIDs(ctx, `SELECT member_id FROM site_owner_users ORDER BY position`); err != nil {
		return nil, err
	}
	if st.OwnerGroupIDs, err = s.queryIDs(ctx, `SELECT group_id FROM site_owner_groups ORDER BY position`); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSettings stores the site-wide settings and their owners.
func (s *SQLite) SaveSettings(ctx context.Context, st *model.ReviewSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`UPDATE site_settings
		 SET review_period_days = ?, review_subject = ?, review_body = ?,
		     reminder_subject = ?, reminder_body = ?, review_from = ?
		 WHERE id = 1`,
		st.ReviewPeriodDays, st.ReviewSubject, st.ReviewBody, st.ReminderSubject, st.ReminderBody, st.ReviewFromAddress,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM site_owner_users`); err != nil {
		return fmt.Errorf("clear site owner users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM site_owner_groups`); err != nil {
		return fmt.Errorf("clear site owner groups: %w", err)
	}
	for i, id := range st.OwnerUserIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO site_owner_users (member_id, position) VALUES (?, ?)`, id, i); err != nil {
			return fmt.Errorf("insert site owner user: %w", err)
		}
	}
	for i, id := range st.OwnerGroupIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO site_owner_groups (group_id, position) VALUES (?, ?)`, id, i); err != nil {
			return fmt.Errorf("insert site owner group: %w", err)
		}
	}
	return tx.Commit()
}

// MarkSent records that a member was notified about the given items on the
// path and date.
func (s *SQLite) MarkSent(ctx context.Context, path model.Path, memberID int64, itemIDs []int64, date time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := datemath.Format(date)
	for _, id := range itemIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO notifications_sent (path, member_id, item_id, run_date) VALUES (?, ?, ?, ?)`,
			string(path), memberID, id, day,
		); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
	}
	return tx.Commit()
}

// SentItems returns the IDs of the items a member was already notified about
// on the path and date.
func (s *SQLite) SentItems(ctx context.Context, path model.Path, memberID int64, date time.Time) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM notifications_sent WHERE path = ? AND member_id = ? AND run_date = ?`,
		string(path), memberID, datemath.Format(date),
	)
	if err != nil {
		return nil, fmt.Errorf("query sent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sent := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sent: %w", err)
		}
		sent[id] = true
	}
	return sent, rows.Err()
}

// CreateRun records the start of a pass.
func (s *SQLite) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_runs (id, path, run_date, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Path), datemath.Format(run.RunDate), run.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the counters and finish time of a pass.
func (s *SQLite) FinishRun(ctx context.Context, run *model.Run) error {
	var finished *string
	if run.FinishedAt != nil {
		v := run.FinishedAt.UTC().Format(timeLayout)
		finished = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE review_runs SET finished_at = ?, items = ?, owners = ?, sent = ?, failed = ? WHERE id = ?`,
		finished, run.Items, run.Owners, run.Sent, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// GetRun returns a recorded pass.
func (s *SQLite) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	var path, runDate, started string
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, run_date, started_at, finished_at, items, owners, sent, failed FROM review_runs WHERE id = ?`, id,
	).Scan(&run.ID, &path, &runDate, &started, &finished, &run.Items, &run.Owners, &run.Sent, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Path = model.Path(path)
	run.RunDate, _ = datemath.Parse(runDate)
	run.StartedAt, _ = time.Parse(timeLayout, started)
	if finished.Valid {
		t, _ := time.Parse(timeLayout, finished.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLite) listItems(ctx context.Context, query string, args ...any) ([]model.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the connection before loading owners.
	_ = rows.Close()

	if err := s.attachOwners(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ownerBatchSize keeps IN lists well below SQLite's bound parameter limit.
const ownerBatchSize = 500

func (s *SQLite) attachOwners(ctx context.Context, items []model.ContentItem) error {
	index := make(map[int64]int, len(items))
	for i, it := range items {
		index[it.ID] = i
	}

	for start := 0; start < len(items); start += ownerBatchSize {
		end := min(start+ownerBatchSize, len(items))
		ids := make([]any, 0, end-start)
		for _, it := range items[start:end] {
			ids = append(ids, it.ID)
		}
		in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

		users, err := s.queryPairs(ctx,
			`SELECT item_id, member_id FROM item_owner_users WHERE item_id IN `+in+` ORDER BY item_id, position`, ids...)
		if err != nil {
			return err
		}
		for _, p := range users {
			i := index[p[0]]
			items[i].OwnerUserIDs = append(items[i].OwnerUserIDs, p[1])
		}

		groups, err := s.queryPairs(ctx,
			`SELECT item_id, group_id FROM item_owner_groups WHERE item_id IN `+in+` ORDER BY item_id, position`, ids...)
		if err != nil {
			return err
		}
		for _, p := range groups {
			i := index[p[0]]
			items[i].OwnerGroupIDs = append(items[i].OwnerGroupIDs, p[1])
		}
	}
	return nil
}

func (s *SQLite) queryPairs(ctx context.Context, query string, args ...any) ([][2]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out [][2]int64
	for rows.Next() {
		var p [2]int64
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func replaceItemOwners(ctx context.Context, tx *sql.Tx, itemID int64, item *model.ContentItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_owner_users WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear owner users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_owner_groups WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear owner groups: %w", err)
	}
	for i, id := range item.OwnerUserIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_owner_users (item_id, member_id, position) VALUES (?, ?, ?)`, itemID, id, i); err != nil {
			return fmt.Errorf("insert owner user: %w", err)
		}
	}
	for i, id := range item.OwnerGroupIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_owner_groups (item_id, group_id, position) VALUES (?, ?, ?)`, itemID, id, i); err != nil {
			return fmt.Errorf("insert owner group: %w", err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*model.ContentItem, error) {
	var it model.ContentItem
	var parent, period sql.NullInt64
	var last, next sql.NullString
	err := row.Scan(&it.ID, &parent, &it.Title, &it.Link, &last, &next, &period)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan item: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if parent.Valid {
		p := parent.Int64
		it.ParentID = &p
	}
	if period.Valid {
		p := int(period.Int64)
		it.ReviewPeriodDays = &p
	}
	it.LastReviewDate = parseDate(last)
	it.NextReviewDate = parseDate(next)
	return &it, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := datemath.Format(*t)
	return &v
}

func parseDate(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := datemath.Parse(v.String)
	if err != nil {
		return nil
	}
	return &t
}
