package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/config"
	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
)

func TestRecommendationKeyHash_Normalized(t *testing.T) {
	t.Parallel()

	a := recommendationKeyHash(RecommendationKey{Branches: []string{"0103", "0101"}, View: "Summary", Window: "5"})
	b := recommendationKeyHash(RecommendationKey{Branches: []string{" 0101", "0103", ""}, View: "summary ", Window: "5"})
	if a != b {
		t.Fatalf("equivalent keys hash differently: %s vs %s", a, b)
	}

	others := []RecommendationKey{
		{Branches: []string{"0101"}, View: "summary", Window: "5"},
		{Branches: []string{"0101", "0103"}, View: "detail", Window: "5"},
		{Branches: []string{"0101", "0103"}, View: "summary", Window: "5@2024-06"},
	}
	for _, k := range others {
		if recommendationKeyHash(k) == a {
			t.Fatalf("key %+v collides with base key", k)
		}
	}
}

func TestKeyPrefix(t *testing.T) {
	t.Parallel()

	if got := keyPrefix("replenish:"); got != "replenish:recommendations:" {
		t.Fatalf("keyPrefix = %q", got)
	}
	if got := keyPrefix(""); got != "recommendations:" {
		t.Fatalf("keyPrefix empty = %q", got)
	}
	key := buildRecommendationKey(keyPrefix("app"), RecommendationKey{View: "standard"})
	if !strings.HasPrefix(key, "app:recommendations:") || len(key) != len("app:recommendations:")+40 {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestNewRecommendationCache_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	c, err := NewRecommendationCache(config.CacheConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewRecommendationCache: %v", err)
	}
	ctx := context.Background()
	key := RecommendationKey{Branches: []string{"0101"}}
	if err := c.Set(ctx, key, &pipeline.Report{GeneratedAt: time.Now()}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := c.Get(ctx, key); ok || err != nil {
		t.Fatalf("noop cache returned ok=%v err=%v", ok, err)
	}
}

func TestCacheTTL_Default(t *testing.T) {
	t.Parallel()

	if got := cacheTTL(config.CacheConfig{}); got != defaultCacheTTL {
		t.Fatalf("ttl = %s", got)
	}
	if got := cacheTTL(config.CacheConfig{TTLSeconds: 30}); got != 30*time.Second {
		t.Fatalf("ttl = %s", got)
	}
}
