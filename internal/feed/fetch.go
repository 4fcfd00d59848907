package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"scidigest/internal/logger"
	"scidigest/internal/metrics"
)

// DefaultTimeout bounds every single feed fetch. A source that does not
// answer within the window is skipped for this run.
const DefaultTimeout = 10 * time.Second

// FetchAll downloads and normalizes all feed sources concurrently. Feeds
// are independent and I/O-bound, so they fan out; results funnel back
// through one collector so callers see a single flat slice. A failing
// source contributes nothing and is logged, never fatal to the run.
func FetchAll(ctx context.Context, sources []Source, client *http.Client, timeout time.Duration) []RawItem {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		mu  sync.Mutex
		all []RawItem
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, src := range sources {
		g.Go(func() error {
			items := fetchOne(ctx, src, client, timeout)
			if len(items) == 0 {
				return nil
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
			return nil
		})
	}

	// Workers only report per-source failures through logs.
	_ = g.Wait()

	logger.Info("fetched feed sources", "sources", len(sources), "items", len(all))
	return all
}

func fetchOne(ctx context.Context, src Source, client *http.Client, timeout time.Duration) []RawItem {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = client

	f, err := parser.ParseURLWithContext(src.URL, fetchCtx)
	if err != nil {
		logger.Warn("source unreachable, skipping", "source", src.Name, "error", err)
		metrics.Global.IncrementSourcesFailed()
		return nil
	}

	items := Normalize(f, src)
	metrics.Global.AddItemsFetched(int64(len(items)))
	logger.Debug("source fetched", "source", src.Name, "items", len(items))
	return items
}
