// Package confluence implements the knowledge source client against the
// Confluence Cloud REST API (CQL search, page read, create, update).
//
// Writes use optimistic concurrency: UpdatePage sends the version the
// caller captured when it read the page, and a concurrent edit surfaces as
// ErrConflict instead of being overwritten.
//
// Unavailability (network error, 5xx, 429) is retried inside each call with
// jittered exponential backoff, except for page creation, which is never
// replayed.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrConflict is returned when an update races a concurrent page edit.
var ErrConflict = errors.New("confluence: version conflict")

// ErrNotFound is returned when a page does not exist.
var ErrNotFound = errors.New("confluence: page not found")

// ErrAuth is returned on 401/403. Permanent until credentials change.
var ErrAuth = errors.New("confluence: authentication failed")

// ErrUnavailable is returned on network failures and 5xx. Retryable.
var ErrUnavailable = errors.New("confluence: service unavailable")

// SearchResult is one candidate page from a CQL search.
type SearchResult struct {
	PageID  string
	Title   string
	URL     string
	Snippet string
	// Score is the source-provided relevance, opaque to callers. When the
	// API omits it, callers derive one from result rank.
	Score float64
}

// Page is a full page read, including the version token needed for
// optimistic-concurrency updates.
type Page struct {
	ID      string
	Title   string
	Space   string
	Body    string // storage-format HTML
	Version int
	URL     string
}

// Config configures the client.
type Config struct {
	// Server base URL, e.g. https://example.atlassian.net.
	Server string
	// Email + APIToken for basic auth.
	Email    string
	APIToken string
	// Space key searched and written by default.
	Space string
	// Timeout per HTTP call. Default: 30s.
	Timeout time.Duration
	// MaxRetries for transient failures per call. Default: 3 attempts total.
	MaxRetries int
	// RetryBase is the first backoff delay. Default: 500ms.
	RetryBase time.Duration
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// Client is a Confluence REST client scoped to one space.
type Client struct {
	client *http.Client
	config Config
}

// New creates a Client. Server, Email, APIToken, and Space are required.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.Server == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("confluence: server, email, and API token are required")
	}
	if cfg.Space == "" {
		return nil, fmt.Errorf("confluence: space key is required")
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// Space returns the configured space key.
func (c *Client) Space() string { return c.config.Space }

// Ping verifies connectivity with a minimal CQL query.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("cql", fmt.Sprintf(`type=page AND space=%q`, c.config.Space))
	q.Set("limit", "1")
	var out searchJSON
	return c.do(ctx, http.MethodGet, "/wiki/rest/api/search", q, nil, &out)
}

// Search runs one CQL full-text query over the configured space and
// returns up to limit candidates. Zero results is a valid outcome.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	cql := fmt.Sprintf(`(title ~ %q OR text ~ %q) AND type=page AND space=%q`,
		query, query, c.config.Space)
	q := url.Values{}
	q.Set("cql", cql)
	q.Set("limit", strconv.Itoa(limit))

	var out searchJSON
	if err := c.do(ctx, http.MethodGet, "/wiki/rest/api/search", q, nil, &out); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(out.Results))
	for i, r := range out.Results {
		if r.Content.ID == "" {
			continue
		}
		score := r.Score
		if score == 0 {
			// The API omits scores on some deployments; fall back to rank
			// so merge-by-max-score still prefers earlier hits.
			score = float64(len(out.Results) - i)
		}
		results = append(results, SearchResult{
			PageID:  r.Content.ID,
			Title:   r.Content.Title,
			URL:     c.config.Server + "/wiki" + r.Content.Links.WebUI,
			Snippet: flattenExcerpt(r.Excerpt),
			Score:   score,
		})
	}
	return results, nil
}

// GetPage reads a page body (storage format) and its version token.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	q := url.Values{}
	q.Set("expand", "body.storage,version,space")

	var out pageJSON
	if err := c.do(ctx, http.MethodGet, "/wiki/rest/api/content/"+url.PathEscape(id), q, nil, &out); err != nil {
		return nil, err
	}
	return out.toPage(c.config.Server), nil
}

// FindByTitle looks up a page by exact title in the configured space.
// Returns nil (no error) when no page matches.
func (c *Client) FindByTitle(ctx context.Context, title string) (*Page, error) {
	q := url.Values{}
	q.Set("spaceKey", c.config.Space)
	q.Set("title", title)
	q.Set("expand", "version,space")

	var out struct {
		Results []pageJSON `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/wiki/rest/api/content", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	return out.Results[0].toPage(c.config.Server), nil
}

// CreatePage creates a page in the configured space and returns it.
func (c *Client) CreatePage(ctx context.Context, title, body string) (*Page, error) {
	payload := map[string]any{
		"type":  "page",
		"title": title,
		"space": map[string]string{"key": c.config.Space},
		"body": map[string]any{
			"storage": map[string]string{"value": body, "representation": "storage"},
		},
	}
	var out pageJSON
	if err := c.do(ctx, http.MethodPost, "/wiki/rest/api/content", nil, payload, &out); err != nil {
		return nil, err
	}
	return out.toPage(c.config.Server), nil
}

// UpdatePage replaces a page body. version is the version number the caller
// read the page at; a concurrent edit since then yields ErrConflict.
func (c *Client) UpdatePage(ctx context.Context, id, title, body string, version int, comment string) (*Page, error) {
	payload := map[string]any{
		"type":  "page",
		"title": title,
		"version": map[string]any{
			"number":  version + 1,
			"message": comment,
		},
		"body": map[string]any{
			"storage": map[string]string{"value": body, "representation": "storage"},
		},
	}
	var out pageJSON
	if err := c.do(ctx, http.MethodPut, "/wiki/rest/api/content/"+url.PathEscape(id), nil, payload, &out); err != nil {
		return nil, err
	}
	return out.toPage(c.config.Server), nil
}

// --- Wire types ---

type searchJSON struct {
	Results []struct {
		Content struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Links struct {
				WebUI string `json:"webui"`
			} `json:"_links"`
		} `json:"content"`
		Excerpt string  `json:"excerpt"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

type pageJSON struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (p *pageJSON) toPage(server string) *Page {
	return &Page{
		ID:      p.ID,
		Title:   p.Title,
		Space:   p.Space.Key,
		Body:    p.Body.Storage.Value,
		Version: p.Version.Number,
		URL:     server + "/wiki" + p.Links.WebUI,
	}
}

// --- Internal ---

func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload, out any) error {
	// A POST whose response was lost may still have created the page, so it
	// gets one attempt; the draft title lookup next cycle resolves the rest.
	// GETs are safe to replay, and a replayed PUT that already landed comes
	// back as ErrConflict with the stale version.
	if method == http.MethodPost {
		return c.doOnce(ctx, method, path, q, payload, out)
	}
	return c.retry(ctx, func() error { return c.doOnce(ctx, method, path, q, payload, out) })
}

// retry re-runs fn while it returns ErrUnavailable, backing off with
// jittered exponential delays up to MaxRetries attempts.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.config.RetryBase
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(delay)); err != nil {
				return err
			}
			delay *= 2
		}
		err := fn()
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, q url.Values, payload, out any) error {
	u := c.config.Server + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("confluence: marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("confluence: new request: %w", err)
	}
	req.SetBasicAuth(c.config.Email, c.config.APIToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("confluence: read body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("confluence: decode %s: %w", path, err)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w (http %d)", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w (http 429)", ErrUnavailable)
	case code >= 500:
		return fmt.Errorf("%w (http %d)", ErrUnavailable, code)
	case code >= 400:
		return fmt.Errorf("confluence: http %d", code)
	}
	return nil
}

func jitter(d time.Duration) time.Duration {
	// ±25% to decorrelate concurrent retriers.
	f := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
