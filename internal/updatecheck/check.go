// Package updatecheck reports when a newer roadmap release is published.
package updatecheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/mod/semver"

	"github.com/colonyops/roadmap/internal/core/kv"
)

const (
	cacheTTL       = 24 * time.Hour
	cacheNamespace = "update-check"
	cacheKey       = "latest"
	releasePath    = "/repos/colonyops/roadmap/releases/latest"
	maxBodyBytes   = 1 << 20
)

// ReleaseInfo is the cached part of a GitHub release.
type ReleaseInfo struct {
	TagName     string `json:"tag_name"`
	PublishedAt string `json:"published_at"`
}

// Result is returned when a newer version is available.
type Result struct {
	Current string
	Latest  string
}

// Checker looks up the latest release, caching it in the local KV.
type Checker struct {
	url   string
	http  *http.Client
	cache *kv.TypedKV[ReleaseInfo]
}

// New creates a Checker against the GitHub API at baseURL. store may be
// nil to disable caching.
func New(baseURL string, store kv.KV) *Checker {
	c := &Checker{
		url:  strings.TrimRight(baseURL, "/") + releasePath,
		http: &http.Client{Timeout: 5 * time.Second},
	}
	if store != nil {
		c.cache = kv.Scoped[ReleaseInfo](store, cacheNamespace)
	}
	return c
}

// Check compares currentVersion to the latest release and returns a
// non-nil Result only when an update is available. Lookup failures are
// logged and reported as no update.
func (c *Checker) Check(ctx context.Context, currentVersion string) *Result {
	if currentVersion == "" || currentVersion == "dev" {
		return nil
	}

	current, ok := normalizeVersion(currentVersion)
	if !ok {
		log.Debug().Str("version", currentVersion).Msg("update check: invalid current version")
		return nil
	}

	release, err := c.latest(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("update check: failed to get latest release")
		return nil
	}

	latest, ok := normalizeVersion(release.TagName)
	if !ok {
		log.Debug().Str("tag", release.TagName).Msg("update check: invalid release tag")
		return nil
	}

	if semver.Compare(current, latest) >= 0 {
		return nil
	}
	return &Result{Current: current, Latest: latest}
}

func (c *Checker) latest(ctx context.Context) (ReleaseInfo, error) {
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			return cached, nil
		}
	}

	info, err := c.fetch(ctx)
	if err != nil {
		return ReleaseInfo{}, err
	}

	if c.cache != nil {
		if err := c.cache.SetTTL(ctx, cacheKey, info, cacheTTL); err != nil {
			log.Debug().Err(err).Msg("update check: failed to cache release")
		}
	}
	return info, nil
}

func (c *Checker) fetch(ctx context.Context) (ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "roadmap-update-checker")

	resp, err := c.http.Do(req)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("request latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ReleaseInfo{}, fmt.Errorf("request latest release: status %d", resp.StatusCode)
	}

	var info ReleaseInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&info); err != nil {
		return ReleaseInfo{}, fmt.Errorf("decode latest release: %w", err)
	}
	if info.TagName == "" {
		return ReleaseInfo{}, fmt.Errorf("decode latest release: missing tag_name")
	}
	return info, nil
}

func normalizeVersion(version string) (string, bool) {
	if semver.IsValid(version) {
		return version, true
	}

	withPrefix := "v" + version
	if semver.IsValid(withPrefix) {
		return withPrefix, true
	}
	return "", false
}
