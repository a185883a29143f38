package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/config"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
)

const (
	recommendationKeyPrefix = "recommendations"
	recommendationScanBatch = 100
)

// RecommendationKey identifies a computed report.
type RecommendationKey struct {
	Branches []string
	View     string
	Window   string // trailing window, e.g. "5@2024-06" or "5"
}

type RecommendationCache interface {
	Get(ctx context.Context, key RecommendationKey) (*pipeline.Report, bool, error)
	// Set stores a report. Reports with failed branches are not stored.
	Set(ctx context.Context, key RecommendationKey, report *pipeline.Report) error
	InvalidateAll(ctx context.Context) error
}

type redisRecommendationCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type noopRecommendationCache struct{}

// NewRecommendationCache returns a redis backed cache, or a no-op one when
// caching is disabled.
func NewRecommendationCache(cfg config.CacheConfig) (RecommendationCache, error) {
	if !cfg.Enabled {
		return &noopRecommendationCache{}, nil
	}

	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisRecommendationCache(client, cfg.KeyPrefix, cacheTTL(cfg)), nil
}

// NewRedisRecommendationCache wraps an existing client.
func NewRedisRecommendationCache(client redis.UniversalClient, prefix string, ttl time.Duration) RecommendationCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisRecommendationCache{client: client, prefix: keyPrefix(prefix), ttl: ttl}
}

func NewNoopRecommendationCache() RecommendationCache {
	return &noopRecommendationCache{}
}

func (c *redisRecommendationCache) Get(ctx context.Context, key RecommendationKey) (*pipeline.Report, bool, error) {
	payload, err := c.client.Get(ctx, buildRecommendationKey(c.prefix, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var report pipeline.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode recommendation cache: %w", err)
	}
	return &report, true, nil
}

func (c *redisRecommendationCache) Set(ctx context.Context, key RecommendationKey, report *pipeline.Report) error {
	if report == nil || !report.Complete() {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode recommendation cache: %w", err)
	}

	k := buildRecommendationKey(c.prefix, key)
	if err := c.client.Set(ctx, k, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	log.Debug().Str("key", k).Int("bytes", len(payload)).Msg("recommendations cached")
	return nil
}

func (c *redisRecommendationCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, c.prefix, recommendationScanBatch)
}

func (n *noopRecommendationCache) Get(ctx context.Context, key RecommendationKey) (*pipeline.Report, bool, error) {
	return nil, false, nil
}

func (n *noopRecommendationCache) Set(ctx context.Context, key RecommendationKey, report *pipeline.Report) error {
	return nil
}

func (n *noopRecommendationCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func keyPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return recommendationKeyPrefix + ":"
	}
	return prefix + ":" + recommendationKeyPrefix + ":"
}

func buildRecommendationKey(prefix string, key RecommendationKey) string {
	return prefix + recommendationKeyHash(key)
}

// recommendationKeyHash is insensitive to branch order and letter case.
func recommendationKeyHash(key RecommendationKey) string {
	branches := make([]string, 0, len(key.Branches))
	for _, b := range key.Branches {
		if b = strings.TrimSpace(b); b != "" {
			branches = append(branches, b)
		}
	}
	sort.Strings(branches)

	parts := []string{
		"branches=" + strings.Join(branches, ","),
		"view=" + strings.ToLower(strings.TrimSpace(key.View)),
		"window=" + strings.TrimSpace(key.Window),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
