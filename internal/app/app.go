// Package app wires the full collection cycle: load config, fetch every
// configured source, run the dedup/classify/translate pipeline, and emit
// the aggregated category view as JSON.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"scidigest/internal/aggregate"
	"scidigest/internal/config"
	"scidigest/internal/feed"
	"scidigest/internal/gemini"
	"scidigest/internal/highlight"
	"scidigest/internal/logger"
	"scidigest/internal/metrics"
	"scidigest/internal/papers"
	"scidigest/internal/pipeline"
	"scidigest/internal/storage"
)

// Run executes one collection cycle end to end. Source and gateway
// failures degrade; config, storage, and output failures are fatal.
func Run() error {
	logger.Init()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	cats := sources.CategoryList()

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	pipeCfg := pipeline.Config{
		Store:      store,
		Categories: cats,
		TargetLang: cfg.TargetLang,
	}

	if cfg.GeminiAPIKey != "" {
		gateway, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			BatchSize:   cfg.BatchSize,
			MaxAttempts: cfg.MaxAttempts,
			RetryDelay:  cfg.RetryDelay,
		})
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		defer gateway.Close()
		pipeCfg.Gateway = gateway
		pipeCfg.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.GatewayRPM)), 1)
	} else {
		logger.Warn("GEMINI_API_KEY not set, classification and translation disabled")
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}

	items := feed.FetchAll(ctx, sources.Feeds, client, cfg.RequestTimeout)
	for _, src := range sources.Papers {
		records, err := papers.Fetch(ctx, client, src)
		if err != nil {
			logger.Warn("paper source failed", "source", src.Name, "error", err)
			metrics.Global.IncrementSourcesFailed()
			continue
		}
		items = append(items, records...)
	}
	logger.Info("collection complete", "items", len(items), "sources", len(sources.Feeds)+len(sources.Papers))

	if err := pipeline.New(pipeCfg).Run(ctx, items); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	hl, err := highlight.Fetch(ctx, client, cfg.HighlightURL, cfg.HighlightAPIKey)
	if err != nil {
		logger.Warn("highlight fetch failed, rendering without it", "error", err)
		hl = nil
	}

	view, err := aggregate.Build(ctx, store, cats, aggregate.Limits{
		News:   cfg.NewsLimit,
		Videos: cfg.VideosLimit,
		Papers: cfg.PapersLimit,
	}, sources.Resources, hl)
	if err != nil {
		return fmt.Errorf("build aggregate: %w", err)
	}

	if err := writeView(view, cfg.OutputPath); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logger.Info("run finished", "output", cfg.OutputPath)
	return nil
}

func writeView(view *aggregate.View, path string) error {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
