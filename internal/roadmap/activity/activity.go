// Package activity reads agent messages from the public activity feed.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/colonyops/roadmap/internal/core/messaging"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultURL is the public activity feed.
	DefaultURL = "https://aibtc.com/api/activity"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Client fetches the live activity feed.
type Client struct {
	url  string
	http *http.Client
}

// New creates a Client for url. An empty url selects DefaultURL.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

type entry struct {
	Type string `json:"type"`
	messaging.Message
}

type feed struct {
	Events []entry `json:"events"`
}

// Messages returns the message entries currently on the feed that carry a
// preview. It makes one request and does not retry.
func (c *Client) Messages(ctx context.Context) ([]messaging.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "roadmap/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request activity: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("activity: close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request activity: status %d", resp.StatusCode)
	}

	var f feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}

	out := make([]messaging.Message, 0, len(f.Events))
	for _, e := range f.Events {
		if e.Type != "message" || e.Preview == "" {
			continue
		}
		out = append(out, e.Message)
	}

	return out, nil
}
