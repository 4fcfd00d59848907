// Package aggregate assembles the final category-partitioned view handed
// to the presentation layer. It is recomputed fresh on every call and is
// deterministic given store contents.
package aggregate

import (
	"context"
	"time"

	"scidigest/internal/category"
	"scidigest/internal/feed"
	"scidigest/internal/highlight"
	"scidigest/internal/storage"
)

// Default per-type counts, matching the digest page layout.
const (
	DefaultNewsLimit   = 12
	DefaultVideosLimit = 6
	DefaultPapersLimit = 8
)

// Limits caps how many most-recent items each content type contributes
// per category.
type Limits struct {
	News   int
	Videos int
	Papers int
}

func (l Limits) withDefaults() Limits {
	if l.News <= 0 {
		l.News = DefaultNewsLimit
	}
	if l.Videos <= 0 {
		l.Videos = DefaultVideosLimit
	}
	if l.Papers <= 0 {
		l.Papers = DefaultPapersLimit
	}
	return l
}

// Resource is a statically configured reference entry shown alongside the
// pipeline-derived content.
type Resource struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
	Note string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Item is one presented entry.
type Item struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Group is the per-category content block.
type Group struct {
	News   []Item     `json:"news"`
	Videos []Item     `json:"videos"`
	Papers []Item     `json:"papers"`
	Data   []Resource `json:"data"`
}

// View is the aggregate JSON document consumed by presentation.
type View struct {
	Highlight  *highlight.Highlight        `json:"highlight"`
	Categories map[category.Category]Group `json:"categories"`
}

// Querier is the read slice of the dedup store.
type Querier interface {
	Query(ctx context.Context, f storage.Filter) ([]storage.PersistedItem, error)
}

// Build queries the store per category and content type, bounded and
// ordered most-recent-first, and merges in static resources plus the
// shared highlight.
func Build(ctx context.Context, store Querier, cats []category.Category, limits Limits,
	resources map[string][]Resource, hl *highlight.Highlight) (*View, error) {

	limits = limits.withDefaults()
	if len(cats) == 0 {
		cats = category.Default()
	}

	view := &View{
		Highlight:  hl,
		Categories: make(map[category.Category]Group, len(cats)),
	}

	for _, cat := range cats {
		news, err := queryItems(ctx, store, cat, feed.KindNews, limits.News)
		if err != nil {
			return nil, err
		}
		videos, err := queryItems(ctx, store, cat, feed.KindVideo, limits.Videos)
		if err != nil {
			return nil, err
		}
		papers, err := queryItems(ctx, store, cat, feed.KindPaper, limits.Papers)
		if err != nil {
			return nil, err
		}

		data := resources[string(cat)]
		if data == nil {
			data = []Resource{}
		}

		view.Categories[cat] = Group{
			News:   news,
			Videos: videos,
			Papers: papers,
			Data:   data,
		}
	}
	return view, nil
}

func queryItems(ctx context.Context, store Querier, cat category.Category, kind feed.Kind, limit int) ([]Item, error) {
	rows, err := store.Query(ctx, storage.Filter{Category: cat, ContentType: kind, Limit: limit})
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			Title:       row.Title,
			Description: row.Description,
			Link:        row.Link,
			Thumbnail:   row.Thumbnail,
			Source:      row.Source,
			PublishedAt: row.Published,
		})
	}
	return items, nil
}
