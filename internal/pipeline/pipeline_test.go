package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scidigest/internal/category"
	"scidigest/internal/feed"
	"scidigest/internal/gemini"
	"scidigest/internal/storage"
)

type stubGateway struct {
	batchSize   int
	classifyFn  func(docs []gemini.Doc) ([][]string, error)
	translateFn func(texts []string) []string

	classifyCalls  [][]gemini.Doc
	translateCalls [][]string
}

func (s *stubGateway) BatchSize() int {
	if s.batchSize > 0 {
		return s.batchSize
	}
	return 20
}

func (s *stubGateway) Classify(_ context.Context, docs []gemini.Doc, _ []category.Category) ([][]string, error) {
	s.classifyCalls = append(s.classifyCalls, docs)
	if s.classifyFn != nil {
		return s.classifyFn(docs)
	}
	return make([][]string, len(docs)), nil
}

func (s *stubGateway) Translate(_ context.Context, texts []string, _ string) []string {
	s.translateCalls = append(s.translateCalls, texts)
	if s.translateFn != nil {
		return s.translateFn(texts)
	}
	return texts
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rawItem(identity string) feed.RawItem {
	return feed.RawItem{
		Identity:   identity,
		Title:      "title " + identity,
		Link:       "https://example.com/" + identity,
		Published:  time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		SourceName: "Space Wire",
		Kind:       feed.KindNews,
	}
}

func TestRun_TwoRunsSameSourceLeaveOneRowPerIdentity(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{}
	p := New(Config{Store: store, Gateway: gw})

	items := []feed.RawItem{rawItem("a"), rawItem("b"), rawItem("c"), rawItem("d"), rawItem("e")}

	require.NoError(t, p.Run(context.Background(), items))
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, p.Run(context.Background(), items))
	n, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n, "re-ingestion must not create duplicate rows")

	assert.Len(t, gw.classifyCalls, 1, "second run must not reach the gateway")
}

func TestRun_FixedCategoryBypassesClassification(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{
		classifyFn: func(docs []gemini.Doc) ([][]string, error) {
			tags := make([][]string, len(docs))
			for i := range tags {
				tags[i] = []string{"physics"}
			}
			return tags, nil
		},
	}
	p := New(Config{Store: store, Gateway: gw})

	fixed := rawItem("fixed")
	fixed.FixedCategory = "astronomy"
	free := rawItem("free")

	require.NoError(t, p.Run(context.Background(), []feed.RawItem{fixed, free}))

	require.Len(t, gw.classifyCalls, 1)
	require.Len(t, gw.classifyCalls[0], 1, "fixed-category item must never be sent to classify")
	assert.Equal(t, "title free", gw.classifyCalls[0][0].Title)

	rows, err := store.Query(context.Background(), storage.Filter{Category: "astronomy"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fixed", rows[0].Identity, "persisted category equals the fixed category exactly")

	rows, err = store.Query(context.Background(), storage.Filter{Category: "physics"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "free", rows[0].Identity)
}

func TestRun_PartialClassifyResponseFallsToCatchAll(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{
		// Tags for ids 0..2 only; 3 and 4 come back nil.
		classifyFn: func(docs []gemini.Doc) ([][]string, error) {
			tags := make([][]string, len(docs))
			for i := 0; i < 3 && i < len(tags); i++ {
				tags[i] = []string{"physics"}
			}
			return tags, nil
		},
	}
	p := New(Config{Store: store, Gateway: gw})

	items := []feed.RawItem{rawItem("a"), rawItem("b"), rawItem("c"), rawItem("d"), rawItem("e")}
	require.NoError(t, p.Run(context.Background(), items))

	classified, err := store.Query(context.Background(), storage.Filter{Category: "physics"})
	require.NoError(t, err)
	assert.Len(t, classified, 3)

	fallback, err := store.Query(context.Background(), storage.Filter{Category: "other"})
	require.NoError(t, err)
	assert.Len(t, fallback, 2, "unclassified items persist under the catch-all, not dropped")
}

func TestRun_FailedClassifyBatchPersistsUnderCatchAll(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{
		classifyFn: func([]gemini.Doc) ([][]string, error) {
			return nil, errors.New("gateway unreachable")
		},
	}
	p := New(Config{Store: store, Gateway: gw})

	require.NoError(t, p.Run(context.Background(), []feed.RawItem{rawItem("a"), rawItem("b")}))

	rows, err := store.Query(context.Background(), storage.Filter{Category: "other"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	n, _ := store.Count(context.Background())
	assert.Equal(t, 2, n, "a failed batch never aborts the run")
}

func TestRun_ClassificationBatchesRespectGatewayCap(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{batchSize: 2}
	p := New(Config{Store: store, Gateway: gw})

	items := []feed.RawItem{rawItem("a"), rawItem("b"), rawItem("c"), rawItem("d"), rawItem("e")}
	require.NoError(t, p.Run(context.Background(), items))

	require.Len(t, gw.classifyCalls, 3)
	assert.Len(t, gw.classifyCalls[0], 2)
	assert.Len(t, gw.classifyCalls[2], 1)
}

func TestRun_TranslationSubstitutesByPosition(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{
		translateFn: func(texts []string) []string {
			out := make([]string, len(texts))
			for i, s := range texts {
				out[i] = "[de] " + s
			}
			return out
		},
	}
	p := New(Config{Store: store, Gateway: gw, TargetLang: "German"})

	a := rawItem("a")
	a.Description = "original description"
	require.NoError(t, p.Run(context.Background(), []feed.RawItem{a}))

	rows, err := store.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "[de] title a", rows[0].Title)
	assert.Equal(t, "[de] original description", rows[0].Description)
}

func TestRun_TranslationFallbackKeepsOriginals(t *testing.T) {
	store := openStore(t)
	// Gateway degrades to the original inputs, as the real client does when
	// unreachable.
	gw := &stubGateway{}
	p := New(Config{Store: store, Gateway: gw, TargetLang: "German"})

	require.NoError(t, p.Run(context.Background(), []feed.RawItem{rawItem("a")}))

	rows, err := store.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "title a", rows[0].Title)
}

func TestRun_NilGatewaySkipsTransforms(t *testing.T) {
	store := openStore(t)
	p := New(Config{Store: store})

	fixed := rawItem("fixed")
	fixed.FixedCategory = "astronomy"
	require.NoError(t, p.Run(context.Background(), []feed.RawItem{fixed, rawItem("free")}))

	rows, err := store.Query(context.Background(), storage.Filter{Category: "astronomy"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = store.Query(context.Background(), storage.Filter{Category: "other"})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "without a gateway undetermined items take the catch-all")
}

func TestRun_ItemsMissingRequiredFieldsAreSkippedWhole(t *testing.T) {
	store := openStore(t)
	p := New(Config{Store: store, Gateway: &stubGateway{}})

	noLink := rawItem("no-link")
	noLink.Link = ""

	require.NoError(t, p.Run(context.Background(), []feed.RawItem{rawItem("ok"), noLink}))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_EmptyInputIsANoop(t *testing.T) {
	store := openStore(t)
	gw := &stubGateway{}
	p := New(Config{Store: store, Gateway: gw})

	require.NoError(t, p.Run(context.Background(), nil))
	assert.Empty(t, gw.classifyCalls)
}

type failingStore struct{ failUpsert bool }

func (f *failingStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (f *failingStore) Upsert(context.Context, storage.PersistedItem) error {
	if f.failUpsert {
		return errors.New("disk full")
	}
	return nil
}

func TestRun_StoreWriteErrorIsFatal(t *testing.T) {
	p := New(Config{Store: &failingStore{failUpsert: true}, Gateway: &stubGateway{}})

	err := p.Run(context.Background(), []feed.RawItem{rawItem("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist")
}

func TestRun_InRunDuplicateIdentitiesCollapse(t *testing.T) {
	store := openStore(t)
	p := New(Config{Store: store, Gateway: &stubGateway{}})

	// Two sources delivering the same identity in one cycle.
	dup := rawItem("a")
	dup.SourceName = "Mirror Feed"

	require.NoError(t, p.Run(context.Background(), []feed.RawItem{rawItem("a"), dup}))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
