// Package papers pulls journal metadata from a paginated JSON API and
// normalizes the accepted records into raw items.
package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scidigest/internal/feed"
	"scidigest/internal/logger"
	"scidigest/internal/metrics"
)

// Only records flagged as original research are accepted.
const researchArticleType = "research-article"

// maxPages bounds pagination per source per run.
const maxPages = 5

type record struct {
	DOI         string `json:"doi"`
	Title       string `json:"title"`
	Abstract    string `json:"abstract"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	PublishedAt string `json:"published_at"`
}

type page struct {
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Results []record `json:"results"`
}

// Fetch walks result pages for one journal source until the per-source cap
// is reached or pages run out. Failures skip the source, never the run.
func Fetch(ctx context.Context, client *http.Client, src feed.Source) ([]feed.RawItem, error) {
	if client == nil {
		client = &http.Client{Timeout: feed.DefaultTimeout}
	}

	limit := src.MaxItems
	if limit <= 0 {
		limit = 10
	}

	var items []feed.RawItem
	for pageNum := 1; pageNum <= maxPages && len(items) < limit; pageNum++ {
		p, err := fetchPage(ctx, client, src.URL, pageNum)
		if err != nil {
			if pageNum == 1 {
				return nil, err
			}
			logger.Warn("paper source page failed, keeping earlier pages", "source", src.Name, "page", pageNum, "error", err)
			break
		}

		for _, rec := range p.Results {
			if len(items) >= limit {
				break
			}
			item, ok := normalizeRecord(rec, src)
			if !ok {
				continue
			}
			items = append(items, item)
		}

		if len(p.Results) == 0 {
			break
		}
	}

	metrics.Global.AddItemsFetched(int64(len(items)))
	return items, nil
}

func fetchPage(ctx context.Context, client *http.Client, base string, pageNum int) (*page, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(pageNum))
	if q.Get("sort") == "" {
		q.Set("sort", "published_at:desc")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageNum, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d returned %s", pageNum, resp.Status)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", pageNum, err)
	}
	return &p, nil
}

// normalizeRecord accepts only research articles with a usable identity.
func normalizeRecord(rec record, src feed.Source) (feed.RawItem, bool) {
	if rec.Type != researchArticleType {
		return feed.RawItem{}, false
	}
	link := rec.URL
	if rec.DOI != "" {
		link = "https://doi.org/" + rec.DOI
	}
	if link == "" || rec.Title == "" {
		return feed.RawItem{}, false
	}

	published := time.Time{}
	if rec.PublishedAt != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, rec.PublishedAt); err == nil {
				published = t
				break
			}
		}
	}
	if published.IsZero() {
		published = time.Now().UTC()
	}

	return feed.RawItem{
		Identity:      link,
		Title:         rec.Title,
		Description:   feed.StripHTML(rec.Abstract),
		Link:          link,
		Published:     published,
		SourceName:    src.Name,
		Kind:          feed.KindPaper,
		FixedCategory: src.Category,
	}, true
}
