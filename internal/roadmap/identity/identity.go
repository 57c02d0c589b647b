// Package identity verifies agent addresses against the agent registry.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultURL is the public agent registry.
	DefaultURL = "https://aibtc.com/api/agents"

	// DefaultCacheTTL is how long a verified identity is trusted.
	DefaultCacheTTL = time.Hour

	cacheNamespace = "agent-cache"
	defaultTimeout = 5 * time.Second
	displayNameLen = 12
)

// Config configures a Provider.
type Config struct {
	URL      string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Provider resolves agent addresses to verified identities, caching hits
// in the KV store.
type Provider struct {
	url   string
	ttl   time.Duration
	http  *http.Client
	cache *kv.TypedKV[roadmap.Agent]
}

// New creates a Provider. store may be nil to disable caching.
func New(cfg Config, store kv.KV) *Provider {
	p := &Provider{
		url:  strings.TrimRight(cfg.URL, "/"),
		ttl:  cfg.CacheTTL,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if p.url == "" {
		p.url = DefaultURL
	}
	if p.ttl <= 0 {
		p.ttl = DefaultCacheTTL
	}
	if p.http.Timeout <= 0 {
		p.http.Timeout = defaultTimeout
	}
	if store != nil {
		p.cache = kv.Scoped[roadmap.Agent](store, cacheNamespace)
	}
	return p
}

type lookupResponse struct {
	Found bool `json:"found"`
	Agent struct {
		BTCAddress     string `json:"btcAddress"`
		STXAddress     string `json:"stxAddress"`
		DisplayName    string `json:"displayName"`
		Description    string `json:"description"`
		ERC8004AgentID *int64 `json:"erc8004AgentId"`
	} `json:"agent"`
}

// Resolve returns the verified identity for address. Any failure, including
// an unknown address, yields false.
func (p *Provider) Resolve(ctx context.Context, address string) (roadmap.Agent, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return roadmap.Agent{}, false
	}

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, address); err == nil && cached.Authenticated() {
			return cached, true
		}
	}

	agent, err := p.lookup(ctx, address)
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("identity: lookup failed")
		return roadmap.Agent{}, false
	}

	if p.cache != nil {
		if err := p.cache.SetTTL(ctx, address, agent, p.ttl); err != nil {
			log.Debug().Err(err).Msg("identity: failed to cache agent")
		}
	}

	return agent, true
}

func (p *Provider) lookup(ctx context.Context, address string) (roadmap.Agent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/"+url.PathEscape(address), nil)
	if err != nil {
		return roadmap.Agent{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "roadmap/1.0")

	resp, err := p.http.Do(req)
	if err != nil {
		return roadmap.Agent{}, fmt.Errorf("request agent: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("identity: close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return roadmap.Agent{}, fmt.Errorf("request agent: status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return roadmap.Agent{}, fmt.Errorf("decode agent: %w", err)
	}
	if !body.Found || body.Agent.BTCAddress == "" {
		return roadmap.Agent{}, fmt.Errorf("agent %s not registered", address)
	}

	a := body.Agent
	name := a.DisplayName
	if name == "" {
		name = a.BTCAddress[:min(displayNameLen, len(a.BTCAddress))]
	}

	return roadmap.Agent{
		BTCAddress:  a.BTCAddress,
		STXAddress:  a.STXAddress,
		DisplayName: name,
		Description: a.Description,
		AgentID:     a.ERC8004AgentID,
	}, nil
}
