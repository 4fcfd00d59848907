// Package storage is the durable dedup store: one keyed table of every
// item the pipeline has accepted, queried by the aggregator.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"scidigest/internal/category"
	"scidigest/internal/feed"
)

// PersistedItem is a raw item that passed classification/translation and
// was written to durable storage. Keyed solely by Identity.
type PersistedItem struct {
	Identity    string
	Title       string
	Description string
	Link        string
	Thumbnail   string
	Published   time.Time
	Category    category.Category
	Source      string
	ContentType feed.Kind
}

// Filter narrows a Query. Zero values mean "no constraint"; Limit <= 0
// means unlimited. Results are always ordered by published time descending.
type Filter struct {
	Category    category.Category
	ContentType feed.Kind
	Limit       int
}

// Store wraps the sqlite database holding persisted items.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	identity     TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	link         TEXT NOT NULL,
	thumbnail    TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL,
	category     TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_category ON items(category, content_type);
`

// Open connects to the sqlite database at path (":memory:" works) and
// initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Exists reports whether an item with this identity was already accepted.
func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	var one int
	err := sq.Select("1").
		From("items").
		Where(sq.Eq{"identity": identity}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check identity: %w", err)
	}
	return true, nil
}

// Upsert writes an item, replacing any prior row with the same identity.
// Last write wins; no history is retained.
func (s *Store) Upsert(ctx context.Context, item PersistedItem) error {
	_, err := sq.Insert("items").
		Columns("identity", "title", "description", "link", "thumbnail",
			"published_at", "category", "source", "content_type").
		Values(item.Identity, item.Title, item.Description, item.Link, item.Thumbnail,
			formatTime(item.Published), string(item.Category), item.Source, string(item.ContentType)).
		Suffix(`ON CONFLICT(identity) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			link = excluded.link,
			thumbnail = excluded.thumbnail,
			published_at = excluded.published_at,
			category = excluded.category,
			source = excluded.source,
			content_type = excluded.content_type`).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", item.Identity, err)
	}
	return nil
}

// Query returns persisted items matching the filter, most recent first.
func (s *Store) Query(ctx context.Context, f Filter) ([]PersistedItem, error) {
	q := sq.Select("identity", "title", "description", "link", "thumbnail",
		"published_at", "category", "source", "content_type").
		From("items").
		OrderBy("published_at DESC", "identity ASC")

	if f.Category != "" {
		q = q.Where(sq.Eq{"category": string(f.Category)})
	}
	if f.ContentType != "" {
		q = q.Where(sq.Eq{"content_type": string(f.ContentType)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []PersistedItem
	for rows.Next() {
		var (
			item        PersistedItem
			publishedAt string
			cat         string
			contentType string
		)
		if err := rows.Scan(&item.Identity, &item.Title, &item.Description, &item.Link,
			&item.Thumbnail, &publishedAt, &cat, &item.Source, &contentType); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Published = parseTime(publishedAt)
		item.Category = category.Category(cat)
		item.ContentType = feed.Kind(contentType)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Count returns the total number of persisted rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := sq.Select("COUNT(*)").From("items").
		RunWith(s.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Timestamps are stored as fixed-width RFC 3339 UTC strings so that
// lexicographic ORDER BY is chronological. RFC3339Nano would trim
// trailing fractional zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
