package aggregate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scidigest/internal/category"
	"scidigest/internal/feed"
	"scidigest/internal/highlight"
	"scidigest/internal/storage"
)

func seedStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *storage.Store, identity string, cat category.Category, kind feed.Kind, published time.Time) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), storage.PersistedItem{
		Identity:    identity,
		Title:       "title " + identity,
		Link:        "https://example.com/" + identity,
		Published:   published,
		Category:    cat,
		Source:      "src",
		ContentType: kind,
	}))
}

func TestBuild_OrdersByRecencyDescending(t *testing.T) {
	s := seedStore(t)
	t1 := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	seed(t, s, "n1", "astronomy", feed.KindNews, t1)
	seed(t, s, "n2", "astronomy", feed.KindNews, t2)
	seed(t, s, "n3", "astronomy", feed.KindNews, t3)

	view, err := Build(context.Background(), s, category.Default(), Limits{}, nil, nil)
	require.NoError(t, err)

	news := view.Categories["astronomy"].News
	require.Len(t, news, 3)
	assert.Equal(t, []time.Time{t3, t2, t1},
		[]time.Time{news[0].PublishedAt, news[1].PublishedAt, news[2].PublishedAt})
}

func TestBuild_AppliesPerTypeLimits(t *testing.T) {
	s := seedStore(t)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed(t, s, string(rune('a'+i)), "physics", feed.KindVideo, base.Add(time.Duration(i)*time.Hour))
	}

	view, err := Build(context.Background(), s, category.Default(), Limits{Videos: 2}, nil, nil)
	require.NoError(t, err)

	videos := view.Categories["physics"].Videos
	require.Len(t, videos, 2)
	assert.Equal(t, "title e", videos[0].Title, "most recent kept when limited")
}

func TestBuild_PartitionsByCategoryAndContentType(t *testing.T) {
	s := seedStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	seed(t, s, "news-astro", "astronomy", feed.KindNews, now)
	seed(t, s, "video-astro", "astronomy", feed.KindVideo, now)
	seed(t, s, "paper-bio", "life-science", feed.KindPaper, now)

	view, err := Build(context.Background(), s, category.Default(), Limits{}, nil, nil)
	require.NoError(t, err)

	astro := view.Categories["astronomy"]
	assert.Len(t, astro.News, 1)
	assert.Len(t, astro.Videos, 1)
	assert.Empty(t, astro.Papers)

	bio := view.Categories["life-science"]
	assert.Len(t, bio.Papers, 1)
	assert.Empty(t, bio.News)

	// Every configured category appears even when empty.
	require.Contains(t, view.Categories, category.Category("chemistry"))
	assert.NotNil(t, view.Categories["chemistry"].News)
}

func TestBuild_MergesResourcesAndHighlight(t *testing.T) {
	s := seedStore(t)
	resources := map[string][]Resource{
		"astronomy": {{Name: "Sky survey archive", URL: "https://example.com/archive"}},
	}
	hl := &highlight.Highlight{Title: "Saturn", URL: "https://example.com/saturn.jpg"}

	view, err := Build(context.Background(), s, category.Default(), Limits{}, resources, hl)
	require.NoError(t, err)

	assert.Equal(t, hl, view.Highlight)
	require.Len(t, view.Categories["astronomy"].Data, 1)
	assert.Equal(t, "Sky survey archive", view.Categories["astronomy"].Data[0].Name)
	assert.NotNil(t, view.Categories["physics"].Data, "categories without resources get an empty list, not null")
}

func TestBuild_DeterministicOutput(t *testing.T) {
	s := seedStore(t)
	now := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)
	seed(t, s, "a", "astronomy", feed.KindNews, now)
	seed(t, s, "b", "physics", feed.KindVideo, now)

	build := func() []byte {
		view, err := Build(context.Background(), s, category.Default(), Limits{}, nil, nil)
		require.NoError(t, err)
		out, err := json.Marshal(view)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, build(), build(), "two builds without new ingestion are byte-identical")
}

func TestBuild_NilHighlightMarshalsAsNull(t *testing.T) {
	s := seedStore(t)

	view, err := Build(context.Background(), s, category.Default(), Limits{}, nil, nil)
	require.NoError(t, err)

	out, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"highlight":null`)
}
