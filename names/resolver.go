// Package names resolves participant addresses to display names through an
// external name service.
package names

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/predict-indexer/internal/constants"
)

// Config holds name service settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RatePerSecond limits requests to the service
	RatePerSecond float64

	// CacheTTL keeps resolved names around; 0 disables caching
	CacheTTL time.Duration
}

type cachedName struct {
	name    string
	fetched time.Time
}

// Resolver looks up display names. Lookup failures never surface to callers.
type Resolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	ttl     time.Duration
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedName
}

// NewResolver creates a name resolver. It returns nil when no base URL is
// configured; a nil resolver resolves nothing.
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.BaseURL == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultNamesTimeout
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = constants.DefaultNamesRatePerSecond
	}
	return &Resolver{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		ttl:     cfg.CacheTTL,
		logger:  logger,
		cache:   make(map[string]cachedName),
	}
}

// ResolveNames returns the known names of addresses keyed by lowercase
// address. Addresses without a name are left out.
func (r *Resolver) ResolveNames(ctx context.Context, addresses []string) map[string]string {
	result := make(map[string]string)
	if r == nil || len(addresses) == 0 {
		return result
	}

	var missing []string
	seen := make(map[string]bool)
	now := time.Now()

	r.mu.RLock()
	for _, addr := range addresses {
		key := strings.ToLower(addr)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if c, ok := r.cache[key]; ok && r.ttl > 0 && now.Sub(c.fetched) < r.ttl {
			if c.name != "" {
				result[key] = c.name
			}
			continue
		}
		missing = append(missing, key)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return result
	}

	fetched, err := r.fetch(ctx, missing)
	if err != nil {
		r.logger.Warn("name resolution failed",
			zap.Int("addresses", len(missing)),
			zap.Error(err))
		return result
	}

	r.mu.Lock()
	for _, addr := range missing {
		name := fetched[addr]
		if r.ttl > 0 {
			r.cache[addr] = cachedName{name: name, fetched: now}
		}
		if name != "" {
			result[addr] = name
		}
	}
	r.mu.Unlock()

	return result
}

func (r *Resolver) fetch(ctx context.Context, addresses []string) (map[string]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("address", strings.Join(addresses, ","))
	if r.apiKey != "" {
		q.Set("apikey", r.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/resolve-address?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("name service returned status %d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode name service response: %w", err)
	}

	names := make(map[string]string, len(raw))
	for addr, name := range raw {
		names[strings.ToLower(addr)] = name
	}
	return names, nil
}
