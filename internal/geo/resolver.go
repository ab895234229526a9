// Package geo resolves a client IP to an ISO country code for the reward region gate.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCountry is used when every provider fails.
const DefaultCountry = "US"

// Cache lifetimes. A fallback answer is kept only briefly so a short provider
// outage does not pin DefaultCountry on an address.
const (
	cacheTTL    = 24 * time.Hour
	fallbackTTL = time.Minute
	pruneAbove  = 10000
)

// Location is a resolved country.
type Location struct {
	CountryCode string    `json:"countryCode"`
	CountryName string    `json:"countryName"`
	ResolvedAt  time.Time `json:"-"`
}

// Provider is one geolocation HTTP endpoint.
type Provider struct {
	Name string
	URL  func(ip string) string
}

// DefaultProviders queries ipapi.co first and api.ipapi.is as fallback.
func DefaultProviders() []Provider {
	return []Provider{
		{Name: "ipapi.co", URL: func(ip string) string {
			if ip == "" {
				return "https://ipapi.co/json/"
			}
			return "https://ipapi.co/" + url.PathEscape(ip) + "/json/"
		}},
		{Name: "ipapi.is", URL: func(ip string) string {
			if ip == "" {
				return "https://api.ipapi.is/"
			}
			return "https://api.ipapi.is/?q=" + url.QueryEscape(ip)
		}},
	}
}

// Resolver caches lookups per IP.
type Resolver struct {
	providers []Provider
	client    *http.Client
	log       *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	loc     Location
	expires time.Time
}

// NewResolver constructs a resolver with a 5s per-request timeout and a 24h cache.
func NewResolver(providers []Provider, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		providers: providers,
		client:    &http.Client{Timeout: 5 * time.Second},
		log:       log,
		now:       time.Now,
		cache:     map[string]cacheEntry{},
	}
}

// Resolve returns the location of ip, trying providers in order. It never fails:
// when no provider answers with both a code and a name, DefaultCountry is returned.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	now := r.now()
	r.mu.Lock()
	if e, ok := r.cache[ip]; ok {
		if now.Before(e.expires) {
			r.mu.Unlock()
			return e.loc
		}
		delete(r.cache, ip)
	}
	r.mu.Unlock()

	loc := Location{CountryCode: DefaultCountry, CountryName: "United States"}
	ttl := fallbackTTL
	for _, p := range r.providers {
		got, err := r.fetch(ctx, p.URL(ip))
		if err != nil {
			r.log.Warn("geo lookup failed", zap.String("provider", p.Name), zap.Error(err))
			continue
		}
		if got.CountryCode != "" && got.CountryName != "" {
			loc, ttl = got, cacheTTL
			break
		}
	}
	loc.CountryCode = strings.ToUpper(loc.CountryCode)
	loc.ResolvedAt = now

	r.mu.Lock()
	if len(r.cache) >= pruneAbove {
		r.pruneLocked(now)
	}
	r.cache[ip] = cacheEntry{loc: loc, expires: now.Add(ttl)}
	r.mu.Unlock()
	return loc
}

func (r *Resolver) pruneLocked(now time.Time) {
	for ip, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, ip)
		}
	}
}

type providerResponse struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Location    *struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"location"`
}

func (r *Resolver) fetch(ctx context.Context, u string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var pr providerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&pr); err != nil {
		return Location{}, err
	}
	loc := Location{CountryCode: pr.CountryCode, CountryName: pr.CountryName}
	if loc.CountryCode == "" && pr.Location != nil {
		loc.CountryCode = pr.Location.CountryCode
		loc.CountryName = pr.Location.Country
	}
	return loc, nil
}
