package catalog

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SnapshotCache remembers the last good snapshot per catalog query so the UI
// can keep showing stock while the gateway is down. Cached pages are served
// with a stale marker; reservation decisions never run against them.
type SnapshotCache struct {
	lru *lru.Cache[string, *Snapshot]
}

// NewSnapshotCache builds a cache holding up to size query results.
func NewSnapshotCache(size int) (*SnapshotCache, error) {
	c, err := lru.New[string, *Snapshot](size)
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{lru: c}, nil
}

func cacheKey(page, pageSize int, search string) string {
	return fmt.Sprintf("%d:%d:%s", page, pageSize, search)
}

// Put stores a freshly fetched snapshot.
func (c *SnapshotCache) Put(page, pageSize int, search string, s *Snapshot) {
	c.lru.Add(cacheKey(page, pageSize, search), s)
}

// Get returns the last good snapshot for the query, if any.
func (c *SnapshotCache) Get(page, pageSize int, search string) (*Snapshot, bool) {
	return c.lru.Get(cacheKey(page, pageSize, search))
}
