package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedExplainer reuses narrations for repeated feature vectors so the same
// request does not hit the API twice. Only explanation text is cached;
// prediction records are never cached anywhere.
type CachedExplainer struct {
	inner Explainer
	cache *lru.Cache[string, string]
}

func NewCachedExplainer(inner Explainer, size int) (*CachedExplainer, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedExplainer{inner: inner, cache: cache}, nil
}

func (c *CachedExplainer) Explain(ctx context.Context, area float64, rooms int, distance, price float64) (string, error) {
	key := fmt.Sprintf("%g|%d|%g|%g", area, rooms, distance, price)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}
	text, err := c.inner.Explain(ctx, area, rooms, distance, price)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}
