// Package github fetches issue, pull request and repository state from the
// GitHub REST API and normalizes it into roadmap snapshots.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	userAgent      = "roadmap/1.0"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20

	// maxPages bounds how many Link rel="next" pages a list call follows.
	maxPages = 30
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a minimal GitHub REST client. Each call is a single request
// with a bounded timeout and no retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// New creates a Client. An empty BaseURL selects DefaultBaseURL.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// APIError is a non-2xx response from GitHub.
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s: status %d", e.Path, e.StatusCode)
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	_, err := c.get(ctx, c.baseURL+path, path, dest)
	return err
}

// getPages decodes every page of a list endpoint, following Link
// rel="next" until it runs out or maxPages is reached. Next links that
// leave the API base URL are not followed.
func getPages[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var (
		out  []T
		next = c.baseURL + path
	)

	for page := 0; next != ""; page++ {
		if page == maxPages {
			log.Warn().Str("path", path).Int("pages", maxPages).Msg("github: page limit reached, list truncated")
			break
		}

		var batch []T
		link, err := c.get(ctx, next, path, &batch)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)

		next = ""
		if link != "" && strings.HasPrefix(link, c.baseURL+"/") {
			next = link
		}
	}

	return out, nil
}

// get decodes the response at url into dest and returns the Link rel="next"
// target, if any. path only labels errors and logs.
func (c *Client) get(ctx context.Context, url, path string, dest any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("github: close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Path: path}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dest); err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	return nextLink(resp.Header.Get("Link")), nil
}

// nextLink extracts the rel="next" URL from a Link header such as
// `<https://api.github.com/...&page=2>; rel="next", <...>; rel="last"`.
func nextLink(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok {
			continue
		}
		for param := range strings.SplitSeq(params, ";") {
			if strings.TrimSpace(param) == `rel="next"` {
				target = strings.TrimSpace(target)
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
