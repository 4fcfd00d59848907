// Package pipeline runs one ingestion cycle: dedup-filter fresh items,
// classify and translate them through the gateway in paced batches, and
// persist the finalized result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"scidigest/internal/category"
	"scidigest/internal/feed"
	"scidigest/internal/gemini"
	"scidigest/internal/logger"
	"scidigest/internal/metrics"
	"scidigest/internal/storage"
)

// Store is the slice of the dedup store the pipeline writes through.
type Store interface {
	Exists(ctx context.Context, identity string) (bool, error)
	Upsert(ctx context.Context, item storage.PersistedItem) error
}

// Gateway is the text-transform surface. A nil gateway disables both
// classification and translation; items then resolve by fixed category or
// the catch-all.
type Gateway interface {
	BatchSize() int
	Translate(ctx context.Context, texts []string, targetLang string) []string
	Classify(ctx context.Context, docs []gemini.Doc, cats []category.Category) ([][]string, error)
}

// Config wires a pipeline. Limiter paces gateway batches; nil means no
// pacing (tests).
type Config struct {
	Store      Store
	Gateway    Gateway
	Categories []category.Category
	TargetLang string
	Limiter    *rate.Limiter
}

type Pipeline struct {
	store      Store
	gateway    Gateway
	cats       []category.Category
	targetLang string
	limiter    *rate.Limiter
}

func New(cfg Config) *Pipeline {
	cats := cfg.Categories
	if len(cats) == 0 {
		cats = category.Default()
	}
	return &Pipeline{
		store:      cfg.Store,
		gateway:    cfg.Gateway,
		cats:       cats,
		targetLang: cfg.TargetLang,
		limiter:    cfg.Limiter,
	}
}

// Run executes one full cycle over the fetched raw items. Only a store
// failure is fatal; every external degradation ends in a best-effort
// persisted subset.
func (p *Pipeline) Run(ctx context.Context, items []feed.RawItem) error {
	start := time.Now()
	defer func() {
		metrics.Global.RecordRunDuration(time.Since(start))
	}()

	fresh, err := p.filterSeen(ctx, items)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return err
	}
	logger.Info("dedup filter done", "fetched", len(items), "fresh", len(fresh))
	if len(fresh) == 0 {
		return nil
	}

	fresh = p.classify(ctx, fresh)
	fresh = p.translate(ctx, fresh)

	persisted, err := p.commit(ctx, fresh)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return err
	}
	logger.Info("run committed", "persisted", persisted)
	metrics.Global.SetLastRun()
	return nil
}

// filterSeen drops identities already in the store, plus in-run duplicates
// when two sources deliver the same identity.
func (p *Pipeline) filterSeen(ctx context.Context, items []feed.RawItem) ([]feed.RawItem, error) {
	seen := make(map[string]struct{}, len(items))
	fresh := make([]feed.RawItem, 0, len(items))

	for _, item := range items {
		if item.Identity == "" {
			continue
		}
		if _, dup := seen[item.Identity]; dup {
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		seen[item.Identity] = struct{}{}

		exists, err := p.store.Exists(ctx, item.Identity)
		if err != nil {
			return nil, fmt.Errorf("dedup check: %w", err)
		}
		if exists {
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, nil
}

// classify attaches tag lists. Items with a fixed category never reach the
// gateway; the fixed category is authoritative and becomes the sole tag.
// A failed batch leaves its items with empty tags.
func (p *Pipeline) classify(ctx context.Context, items []feed.RawItem) []feed.RawItem {
	out := make([]feed.RawItem, len(items))
	copy(out, items)

	var undetermined []int
	for i := range out {
		if out[i].FixedCategory != "" {
			out[i].Tags = []string{out[i].FixedCategory}
			continue
		}
		undetermined = append(undetermined, i)
	}
	if p.gateway == nil || len(undetermined) == 0 {
		return out
	}

	for _, batch := range chunk(undetermined, p.gateway.BatchSize()) {
		if err := p.wait(ctx); err != nil {
			break
		}

		docs := make([]gemini.Doc, len(batch))
		for j, pos := range batch {
			docs[j] = gemini.Doc{Title: out[pos].Title, Description: out[pos].Description}
		}

		tags, err := p.gateway.Classify(ctx, docs, p.cats)
		if err != nil {
			logger.Warn("classification batch failed, items keep empty tags", "batch", len(batch), "error", err)
			metrics.Global.IncrementClassifyBatchFailures()
			continue
		}
		for j, pos := range batch {
			if j < len(tags) {
				out[pos].Tags = tags[j]
			}
		}
	}
	return out
}

// translate substitutes title and description text in place, batched and
// positional. The gateway already degrades to originals, so this stage
// cannot fail an item.
func (p *Pipeline) translate(ctx context.Context, items []feed.RawItem) []feed.RawItem {
	if p.gateway == nil || p.targetLang == "" {
		return items
	}

	out := make([]feed.RawItem, len(items))
	copy(out, items)

	indices := make([]int, len(out))
	for i := range out {
		indices[i] = i
	}

	for _, batch := range chunk(indices, p.gateway.BatchSize()) {
		if err := p.wait(ctx); err != nil {
			break
		}
		texts := make([]string, len(batch))
		for j, pos := range batch {
			texts[j] = out[pos].Title
		}
		translated := p.gateway.Translate(ctx, texts, p.targetLang)
		if len(translated) == len(batch) {
			for j, pos := range batch {
				out[pos].Title = translated[j]
			}
		}
	}

	// Descriptions are optional; only non-empty ones go out.
	var withDesc []int
	for i := range out {
		if out[i].Description != "" {
			withDesc = append(withDesc, i)
		}
	}
	for _, batch := range chunk(withDesc, p.gateway.BatchSize()) {
		if err := p.wait(ctx); err != nil {
			break
		}
		texts := make([]string, len(batch))
		for j, pos := range batch {
			texts[j] = out[pos].Description
		}
		translated := p.gateway.Translate(ctx, texts, p.targetLang)
		if len(translated) == len(batch) {
			for j, pos := range batch {
				out[pos].Description = translated[j]
			}
		}
	}
	return out
}

// commit maps each item to its final category and upserts it. Items that
// end with no usable tags persist under the catch-all; items missing
// required fields are skipped whole, never partially written. A store
// write error aborts the run.
func (p *Pipeline) commit(ctx context.Context, items []feed.RawItem) (int, error) {
	persisted := 0
	for _, item := range items {
		if item.Identity == "" || item.Title == "" || item.Link == "" {
			logger.Warn("skipping item with missing required fields", "source", item.SourceName)
			continue
		}

		cat := category.Category(item.FixedCategory)
		if !category.Contains(p.cats, cat) {
			cat = category.Resolve(item.Tags, p.cats)
		}

		err := p.store.Upsert(ctx, storage.PersistedItem{
			Identity:    item.Identity,
			Title:       item.Title,
			Description: item.Description,
			Link:        item.Link,
			Thumbnail:   item.Thumbnail,
			Published:   item.Published,
			Category:    cat,
			Source:      item.SourceName,
			ContentType: item.Kind,
		})
		if err != nil {
			return persisted, fmt.Errorf("persist %s: %w", item.Identity, err)
		}
		persisted++
	}
	metrics.Global.AddItemsPersisted(int64(persisted))
	return persisted, nil
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func chunk(xs []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	var out [][]int
	for start := 0; start < len(xs); start += size {
		out = append(out, xs[start:min(start+size, len(xs))])
	}
	return out
}
