// Package jira implements the ticket source client against the Jira Cloud
// REST API (v2, basic auth with an API token).
//
// Listing and fetching are read-only. Errors are classified into
// ErrNotFound (ticket vanished between listing and fetch), ErrAuth
// (credentials rejected), and ErrUnavailable (network / 5xx / 429).
// Unavailability is retried inside each call with jittered exponential
// backoff before it surfaces to the caller.
package jira

import (
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

// ErrNotFound is returned when a ticket does not exist (anymore).
var ErrNotFound = errors.New("jira: ticket not found")

// ErrAuth is returned on 401/403. Permanent until credentials change.
var ErrAuth = errors.New("jira: authentication failed")

// ErrUnavailable is returned on network failures and 5xx. Retryable.
var ErrUnavailable = errors.New("jira: service unavailable")

// jiraTime is the timestamp format Jira Cloud emits.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// Config configures the client.
type Config struct {
	// Server base URL, e.g. https://example.atlassian.net.
	Server string
	// Email + APIToken for basic auth.
	Email    string
	APIToken string
	// Project key whose resolved tickets are watched.
	Project string
	// Timeout per HTTP call. Default: 30s.
	Timeout time.Duration
	// MaxResults per search page. Default: 100.
	MaxResults int
	// MaxRetries for transient failures per call. Default: 3 attempts total.
	MaxRetries int
	// RetryBase is the first backoff delay. Default: 500ms.
	RetryBase time.Duration
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// Client is a Jira REST client scoped to one project.
type Client struct {
	client *http.Client
	config Config
}

// New creates a Client. Server, Email, APIToken, and Project are required.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.Server == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira: server, email, and API token are required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("jira: project key is required")
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// Ping verifies credentials by requesting the current user.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		AccountID string `json:"accountId"`
	}
	return c.get(ctx, "/rest/api/2/myself", nil, &out)
}

// ListResolved returns tickets whose resolution date falls inside
// [since, until], ordered by resolution date ascending. The window is a
// recall mechanism only — dedup against reprocessing is the caller's job.
func (c *Client) ListResolved(ctx context.Context, since, until time.Time) ([]Stub, error) {
	jql := fmt.Sprintf(
		`project = %s AND resolutiondate >= "%s" AND resolutiondate <= "%s" ORDER BY resolutiondate ASC`,
		c.config.Project,
		since.UTC().Format("2006-01-02 15:04"),
		until.UTC().Format("2006-01-02 15:04"),
	)
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", "summary,resolutiondate")
	q.Set("maxResults", strconv.Itoa(c.config.MaxResults))

	var out struct {
		Issues []struct {
			ID     string `json:"id"`
			Key    string `json:"key"`
			Fields struct {
				Summary        string `json:"summary"`
				ResolutionDate string `json:"resolutiondate"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := c.get(ctx, "/rest/api/2/search", q, &out); err != nil {
		return nil, err
	}

	stubs := make([]Stub, 0, len(out.Issues))
	for _, is := range out.Issues {
		stubs = append(stubs, Stub{
			ID:         is.ID,
			Key:        is.Key,
			Summary:    is.Fields.Summary,
			ResolvedAt: parseTime(is.Fields.ResolutionDate),
		})
	}
	return stubs, nil
}

// Get fetches the full ticket for a key and normalizes it into a Ticket.
func (c *Client) Get(ctx context.Context, key string) (*Ticket, error) {
	q := url.Values{}
	q.Set("fields", "summary,description,issuetype,status,resolution,priority,reporter,assignee,labels,created,updated,resolutiondate,comment,attachment")

	var raw issueJSON
	if err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), q, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

// Download fetches an attachment body, capped at maxBytes.
func (c *Client) Download(ctx context.Context, att Attachment, maxBytes int64) ([]byte, error) {
	var data []byte
	err := c.retry(ctx, func() error {
		var err error
		data, err = c.downloadOnce(ctx, att, maxBytes)
		return err
	})
	return data, err
}

func (c *Client) downloadOnce(ctx context.Context, att Attachment, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.ContentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("jira: new request: %w", err)
	}
	req.SetBasicAuth(c.config.Email, c.config.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("jira: read attachment: %w", err)
	}
	return data, nil
}

// --- Wire types ---

type issueJSON struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string     `json:"summary"`
		Description string     `json:"description"`
		IssueType   namedJSON  `json:"issuetype"`
		Status      namedJSON  `json:"status"`
		Resolution  namedJSON  `json:"resolution"`
		Priority    namedJSON  `json:"priority"`
		Reporter    personJSON `json:"reporter"`
		Assignee    personJSON `json:"assignee"`
		Labels      []string   `json:"labels"`
		Created     string     `json:"created"`
		Updated     string     `json:"updated"`
		Resolved    string     `json:"resolutiondate"`
		Comment     struct {
			Comments []struct {
				Author  personJSON `json:"author"`
				Body    string     `json:"body"`
				Created string     `json:"created"`
			} `json:"comments"`
		} `json:"comment"`
		Attachment []struct {
			ID       string     `json:"id"`
			Filename string     `json:"filename"`
			MimeType string     `json:"mimeType"`
			Size     int64      `json:"size"`
			Content  string     `json:"content"`
			Author   personJSON `json:"author"`
			Created  string     `json:"created"`
		} `json:"attachment"`
	} `json:"fields"`
}

type namedJSON struct {
	Name string `json:"name"`
}

type personJSON struct {
	DisplayName string `json:"displayName"`
}

func (raw *issueJSON) normalize() *Ticket {
	t := &Ticket{
		ID:          raw.ID,
		Key:         raw.Key,
		Summary:     raw.Fields.Summary,
		Description: raw.Fields.Description,
		IssueType:   raw.Fields.IssueType.Name,
		Status:      raw.Fields.Status.Name,
		Resolution:  raw.Fields.Resolution.Name,
		Priority:    raw.Fields.Priority.Name,
		Reporter:    raw.Fields.Reporter.DisplayName,
		Assignee:    raw.Fields.Assignee.DisplayName,
		Labels:      raw.Fields.Labels,
		Created:     parseTime(raw.Fields.Created),
		Updated:     parseTime(raw.Fields.Updated),
		ResolvedAt:  parseTime(raw.Fields.Resolved),
	}
	for _, cm := range raw.Fields.Comment.Comments {
		t.Comments = append(t.Comments, Comment{
			Author:  cm.Author.DisplayName,
			Body:    cm.Body,
			Created: parseTime(cm.Created),
		})
	}
	for _, at := range raw.Fields.Attachment {
		t.Attachments = append(t.Attachments, Attachment{
			ID:         at.ID,
			Filename:   at.Filename,
			MimeType:   at.MimeType,
			Size:       at.Size,
			ContentURL: at.Content,
			Author:     at.Author.DisplayName,
			Created:    parseTime(at.Created),
		})
	}
	return t
}

// --- Internal ---

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.retry(ctx, func() error { return c.getOnce(ctx, path, q, out) })
}

// retry re-runs fn while it returns ErrUnavailable, backing off with
// jittered exponential delays up to MaxRetries attempts. Every request
// here is a GET, so replaying is safe.
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

func (c *Client) getOnce(ctx context.Context, path string, q url.Values, out any) error {
	u := c.config.Server + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("jira: new request: %w", err)
	}
	req.SetBasicAuth(c.config.Email, c.config.APIToken)
	req.Header.Set("Accept", "application/json")

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
		return fmt.Errorf("jira: read body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jira: decode %s: %w", path, err)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w (http %d)", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w (http 429)", ErrUnavailable)
	case code >= 500:
		return fmt.Errorf("%w (http %d)", ErrUnavailable, code)
	case code >= 400:
		return fmt.Errorf("jira: http %d", code)
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

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(jiraTime, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
