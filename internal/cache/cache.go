// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

// Package cache maps request fingerprints to previously computed results.
// Its central correctness property is the single-flight guarantee: at most
// one computation per fingerprint is in flight, and concurrent callers share
// its outcome instead of recomputing.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

// Config configures the cache.
type Config struct {
	// MaxEntries bounds the number of completed entries; the least recently
	// used entry is evicted beyond it. Zero uses the default (4096).
	MaxEntries int
	// Quantum is the fingerprint quantization granularity for float
	// components. Zero uses DefaultQuantum.
	Quantum float64
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"cache max entries must not be negative, got %d", c.MaxEntries)
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 4096
	}
	if c.Quantum < 0 {
		return vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"cache quantum must not be negative, got %g", c.Quantum)
	}
	if c.Quantum == 0 {
		c.Quantum = DefaultQuantum
	}
	return nil
}

// Stats is a point-in-time counter snapshot, used by tests and health.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry struct {
	fp         Fingerprint
	collection string
	value      any
	expiresAt  time.Time
}

// Cache is a capacity-bounded LRU with TTL expiry and single-flight
// computation. The entry table is the only mutable shared state and all
// mutation goes through mu; in-flight computations live in the singleflight
// group, not the table, so they can never be evicted.
type Cache struct {
	mu           sync.Mutex
	entries      map[Fingerprint]*list.Element
	lru          *list.List
	byCollection map[string]map[Fingerprint]struct{}
	generation   map[string]uint64

	group   singleflight.Group
	cfg     Config
	nowFunc func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache from a validated config.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cache{
		entries:      make(map[Fingerprint]*list.Element),
		lru:          list.New(),
		byCollection: make(map[string]map[Fingerprint]struct{}),
		generation:   make(map[string]uint64),
		cfg:          cfg,
		nowFunc:      time.Now,
	}, nil
}

// Quantum returns the configured fingerprint quantization granularity.
func (c *Cache) Quantum() float64 { return c.cfg.Quantum }

// SetNowFunc overrides the time source (for testing).
func (c *Cache) SetNowFunc(fn func() time.Time) {
	c.mu.Lock()
	c.nowFunc = fn
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for fp, or runs compute exactly once
// for all concurrent callers of the same fingerprint and caches its result
// for ttl. A compute failure is propagated to every waiter and nothing is
// cached, so callers may retry immediately. The wait is bounded by ctx.
func (c *Cache) GetOrCompute(ctx context.Context, fp Fingerprint, collection string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(fp); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	gen := c.collectionGeneration(collection)

	// The computation runs detached from any single caller's context so one
	// caller's cancellation cannot poison the shared result. Each waiter's
	// own deadline still bounds how long it waits.
	ch := c.group.DoChan(strconv.FormatUint(uint64(fp), 16), func() (any, error) {
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(fp, collection, gen, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, vgerr.Wrap(ctx.Err(), vgerr.CodeGatewayDeadlineExceeded,
			"abandoned cache wait")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// InvalidateCollection drops every cached entry for the collection. Writes
// call this before returning so stale results are never served post-write;
// the generation bump also discards results of computations that were in
// flight when the write landed.
func (c *Cache) InvalidateCollection(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation[collection]++

	fps := c.byCollection[collection]
	for fp := range fps {
		if elem, ok := c.entries[fp]; ok {
			c.removeLocked(elem)
		}
	}
	delete(c.byCollection, collection)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}

func (c *Cache) lookup(fp Fingerprint) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fp]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*entry)
	// TTL is checked lazily on read; an expired entry is a miss.
	if c.nowFunc().After(ent.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	return ent.value, true
}

func (c *Cache) store(fp Fingerprint, collection string, gen uint64, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A write to the collection landed while this computation was in
	// flight; its result may be stale, so it must not be cached.
	if c.generation[collection] != gen {
		return
	}

	if elem, ok := c.entries[fp]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = c.nowFunc().Add(ttl)
		c.lru.MoveToFront(elem)
		return
	}

	ent := &entry{fp: fp, collection: collection, value: value, expiresAt: c.nowFunc().Add(ttl)}
	c.entries[fp] = c.lru.PushFront(ent)

	if c.byCollection[collection] == nil {
		c.byCollection[collection] = make(map[Fingerprint]struct{})
	}
	c.byCollection[collection][fp] = struct{}{}

	for len(c.entries) > c.cfg.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions.Add(1)
	}
}

func (c *Cache) collectionGeneration(collection string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation[collection]
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, ent.fp)
	if fps, ok := c.byCollection[ent.collection]; ok {
		delete(fps, ent.fp)
		if len(fps) == 0 {
			delete(c.byCollection, ent.collection)
		}
	}
}
