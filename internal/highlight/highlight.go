// Package highlight fetches the single daily image-of-the-day record that
// the aggregate shares across all categories.
package highlight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Highlight is the one shared, non-category-partitioned record.
type Highlight struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl,omitempty"`
	Date        string `json:"date,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// DisplayURL prefers the high-resolution variant when present.
func (h *Highlight) DisplayURL() string {
	if h.HDURL != "" {
		return h.HDURL
	}
	return h.URL
}

// Fetch retrieves the record from endpoint using the shared API key.
// Callers treat any error as "no highlight available"; it is never fatal
// to a run.
func Fetch(ctx context.Context, client *http.Client, endpoint, apiKey string) (*Highlight, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse highlight endpoint: %w", err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("api_key", apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build highlight request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch highlight: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("highlight endpoint returned %s", resp.Status)
	}

	var h Highlight
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode highlight: %w", err)
	}
	if h.URL == "" || h.Title == "" {
		return nil, fmt.Errorf("highlight record missing required fields")
	}
	return &h, nil
}
