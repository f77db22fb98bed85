// Package orchestration is a thin stub for the two Arrowhead core
// systems a DNS-SD-backed service discovery layer sits next to: the
// service registry and the orchestrator. It is explicitly out of scope
// for wire-level implementation (spec Non-goals); what is provided here
// is the client shape this module expects to call, plus a registry-
// lookup cache. This cache holds registry query results, never DNS
// answers, so it does not reintroduce the answer-caching the resolver
// itself deliberately omits.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arrowhead-go/core-dns/internal/metrics"
)

// ServiceRecord is what the service registry returns for a lookup: enough
// to hand straight to the dnssd client for a DNS-SD registration.
type ServiceRecord struct {
	ID          uuid.UUID `json:"id"`
	ServiceType string    `json:"service_type"`
	Host        string    `json:"host"`
	Port        uint16    `json:"port"`
	Metadata    []string  `json:"metadata"`
}

// lookupCacheTTL bounds how long a registry lookup result is trusted
// before this client re-queries the registry.
const lookupCacheTTL = 30 * time.Second

// Client is the client shape for the service registry, caching lookup
// results in Redis by registration ID. It makes no HTTP calls: a Lookup
// that misses the cache fails (see fetchFromRegistry).
type Client struct {
	baseURL string
	cache   *redis.Client
}

// New wraps a service-registry base URL and an optional Redis client
// (nil disables lookup caching; every Lookup then hits the registry).
func New(baseURL string, cache *redis.Client) *Client {
	return &Client{baseURL: baseURL, cache: cache}
}

// Register returns rec's ID, generating a new one when rec.ID is nil. It
// records nothing: no call is made to the registry.
func (c *Client) Register(ctx context.Context, rec ServiceRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	// The HTTP call itself is out of this subsystem's scope.
	return rec.ID, nil
}

// Unregister evicts id's cached lookup result, if a cache is configured.
// No call is made to the registry.
func (c *Client) Unregister(ctx context.Context, id uuid.UUID) error {
	if c.cache != nil {
		c.cache.Del(ctx, cacheKey(id.String()))
	}
	return nil
}

// Lookup fetches a service instance by ID, serving from the Redis cache
// when possible.
func (c *Client) Lookup(ctx context.Context, id uuid.UUID) (*ServiceRecord, error) {
	key := cacheKey(id.String())
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			metrics.OrchestrationCacheOperations.WithLabelValues("hit").Inc()
			var rec ServiceRecord
			if jsonErr := json.Unmarshal(cached, &rec); jsonErr == nil {
				return &rec, nil
			}
		}
		metrics.OrchestrationCacheOperations.WithLabelValues("miss").Inc()
	}

	rec, err := c.fetchFromRegistry(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if encoded, err := json.Marshal(rec); err == nil {
			c.cache.Set(ctx, key, encoded, lookupCacheTTL)
		}
	}
	return rec, nil
}

// fetchFromRegistry is the HTTP round trip this client would make to the
// service registry; left unimplemented since the registry's wire
// protocol is out of scope here (spec Non-goals).
func (c *Client) fetchFromRegistry(ctx context.Context, id uuid.UUID) (*ServiceRecord, error) {
	return nil, fmt.Errorf("orchestration: registry lookup for %s not implemented", id)
}

func cacheKey(id string) string {
	return "orchestration:lookup:" + id
}
