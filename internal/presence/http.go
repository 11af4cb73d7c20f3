package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Config holds bridge client configuration.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	NameCacheSize int
	NameCacheTTL  time.Duration
}

// HTTPGateway queries the chat-platform bridge over HTTP. Display names
// change rarely, so they are served from an expiring LRU cache to keep the
// weekly report from hammering the bridge once per member.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	names   *expirable.LRU[string, string]
	logger  zerolog.Logger
}

// NewHTTPGateway creates a bridge client.
func NewHTTPGateway(cfg Config, logger zerolog.Logger) *HTTPGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NameCacheSize == 0 {
		cfg.NameCacheSize = 512
	}
	if cfg.NameCacheTTL == 0 {
		cfg.NameCacheTTL = time.Hour
	}

	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		names:   expirable.NewLRU[string, string](cfg.NameCacheSize, nil, cfg.NameCacheTTL),
		logger:  logger.With().Str("component", "presence-gateway").Logger(),
	}
}

// Present returns the user IDs currently in the shared channel.
func (g *HTTPGateway) Present(ctx context.Context) ([]string, error) {
	var payload struct {
		Present []string `json:"present"`
	}
	if err := g.getJSON(ctx, "/presence", &payload); err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	return payload.Present, nil
}

// Members returns all member user IDs of the community.
func (g *HTTPGateway) Members(ctx context.Context) ([]string, error) {
	var payload struct {
		Members []string `json:"members"`
	}
	if err := g.getJSON(ctx, "/members", &payload); err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return payload.Members, nil
}

// DisplayName resolves a user ID to a human-readable name.
func (g *HTTPGateway) DisplayName(ctx context.Context, userID string) (string, error) {
	if name, ok := g.names.Get(userID); ok {
		return name, nil
	}

	var payload struct {
		DisplayName string `json:"display_name"`
	}
	if err := g.getJSON(ctx, "/members/"+url.PathEscape(userID), &payload); err != nil {
		return "", fmt.Errorf("query display name: %w", err)
	}
	if payload.DisplayName == "" {
		return "", fmt.Errorf("bridge returned empty display name for %s", userID)
	}

	g.names.Add(userID, payload.DisplayName)
	return payload.DisplayName, nil
}

func (g *HTTPGateway) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
