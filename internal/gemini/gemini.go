// Package gemini wraps the generative text endpoint behind the two
// operations the pipeline needs: translate and classify. Both are
// best-effort with bounded quota-aware retries; neither may block a run.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"scidigest/internal/category"
	"scidigest/internal/logger"
	"scidigest/internal/metrics"
	"scidigest/internal/retry"
)

const (
	defaultModel       = "gemini-1.5-flash"
	defaultBatchSize   = 20
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
)

// Config carries everything the client needs; no ambient globals.
type Config struct {
	APIKey      string
	Model       string
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c *Config) withDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
}

// Doc is one classification input.
type Doc struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// generator is the single text-in/text-out seam; tests stub it.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

type genaiGenerator struct {
	model *genai.GenerativeModel
}

func (g *genaiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty model response")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

// Client is the Text Transform Gateway.
type Client struct {
	cfg Config
	gen generator
	api *genai.Client
}

// NewClient builds a gateway from explicit configuration.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	api, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		cfg: cfg,
		gen: &genaiGenerator{model: api.GenerativeModel(cfg.Model)},
		api: api,
	}, nil
}

func (c *Client) Close() {
	if c.api != nil {
		_ = c.api.Close()
	}
}

// BatchSize is the cap callers must partition their input by.
func (c *Client) BatchSize() int {
	return c.cfg.BatchSize
}

// Translate converts texts to targetLang, preserving length and order.
// Any failure (transport, quota exhaustion, malformed or length-mismatched
// response) falls back to the original inputs for the affected batch;
// translation never fails the pipeline.
func (c *Client) Translate(ctx context.Context, texts []string, targetLang string) []string {
	if len(texts) == 0 || targetLang == "" {
		return texts
	}

	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		translated, err := c.translateBatch(ctx, batch, targetLang)
		if err != nil {
			logger.Warn("translation degraded to originals", "batch", len(batch), "error", err)
			metrics.Global.IncrementTranslateBatchFailures()
			translated = batch
		}
		out = append(out, translated...)
	}
	return out
}

func (c *Client) translateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("marshal texts: %w", err)
	}

	prompt := fmt.Sprintf(`Translate every string in the JSON array below into %s.

Rules:
- Respond with ONLY a JSON array of strings, no prose, no code fences.
- The output array must have exactly %d elements, in the same order as the input.
- Keep proper names, brand names and units untranslated.
- An empty input string stays an empty output string.

Input:
%s`, targetLang, len(texts), payload)

	raw, err := c.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseTranslation(raw, len(texts))
}

// Classify assigns each doc an ordered tag list drawn from the
// enumeration, most relevant first. A failed or unparseable batch returns
// an error; the caller owns the fallback policy.
func (c *Client) Classify(ctx context.Context, docs []Doc, cats []category.Category) ([][]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	type reqItem struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	}
	req := make([]reqItem, len(docs))
	for i, d := range docs {
		req[i] = reqItem{ID: i, Title: d.Title, Description: d.Description}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal docs: %w", err)
	}

	names := make([]string, len(cats))
	for i, cat := range cats {
		names[i] = string(cat)
	}

	prompt := fmt.Sprintf(`You are labeling science-content items with topical categories.

Allowed categories (use these exact strings, nothing else):
%s

Items (JSON):
%s

Respond with ONLY a JSON array, no prose, no code fences, shaped:
[{"id": 0, "tags": ["most-relevant-category", "next-category"]}]

Rules:
- One object per item id.
- "tags" is ordered, the single most relevant category first.
- Use an empty "tags" array when no category fits.`, strings.Join(names, ", "), payload)

	raw, err := c.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	tags, err := parseClassification(raw, len(docs))
	if err != nil {
		return nil, err
	}
	metrics.Global.AddItemsClassified(int64(len(docs)))
	return tags, nil
}

// generateWithRetry retries only transient quota/rate rejections, with a
// fixed delay; anything else short-circuits.
func (c *Client) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var raw string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: c.cfg.MaxAttempts,
		Delay:       c.cfg.RetryDelay,
		If:          IsQuotaError,
	}, func() error {
		var genErr error
		raw, genErr = c.gen.generate(ctx, prompt)
		return genErr
	})
	return raw, err
}

// IsQuotaError classifies an error as a transient quota/rate rejection.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
