package engine

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quorum-project/quorum/pkg/model"
)

// verdictCache memoizes verdicts. Keys bind the record identity, its
// content hash, and the store-set fingerprint, so a store commit or
// rollback naturally invalidates every cached verdict without bookkeeping.
// Records without a content hash are never cached: identity alone does
// not prove the content is the same.
type verdictCache struct {
	lru *lru.Cache[cacheKey, *model.Verdict]
}

type cacheKey struct {
	recordID    string
	contentHash model.HashValue
	fingerprint string
}

func newVerdictCache(size int) *verdictCache {
	c, err := lru.New[cacheKey, *model.Verdict](size)
	if err != nil {
		// lru.New only fails on a non-positive size, which New filters.
		panic(err)
	}
	return &verdictCache{lru: c}
}

func (c *verdictCache) key(rec *model.LogRecord, fingerprint string) (cacheKey, bool) {
	if rec.ID == "" || rec.ContentHash == "" {
		return cacheKey{}, false
	}
	return cacheKey{
		recordID:    rec.ID,
		contentHash: rec.ContentHash,
		fingerprint: fingerprint,
	}, true
}

func (c *verdictCache) get(rec *model.LogRecord, fingerprint string) (*model.Verdict, bool) {
	k, ok := c.key(rec, fingerprint)
	if !ok {
		return nil, false
	}
	return c.lru.Get(k)
}

func (c *verdictCache) put(rec *model.LogRecord, fingerprint string, v *model.Verdict) {
	if k, ok := c.key(rec, fingerprint); ok {
		c.lru.Add(k, v)
	}
}

// len reports the number of cached verdicts, for tests.
func (c *verdictCache) len() int {
	return c.lru.Len()
}
