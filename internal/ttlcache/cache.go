// Copyright 2026 The walletcore Authors
// This file is part of the walletcore library.
//
// The walletcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The walletcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the walletcore library. If not, see <http://www.gnu.org/licenses/>.

// Package ttlcache provides a small expiring cache. Entries are immutable
// once stored and replaced wholesale, so readers never observe partial
// updates. There is no background sweeper; expiry is checked on read.
package ttlcache

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values with a fixed per-cache TTL.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	clk clock.Clock

	mu sync.RWMutex
	m  map[K]*entry[V]
}

// New creates a cache whose entries live for ttl. A nil clk selects the wall
// clock.
func New[K comparable, V any](ttl time.Duration, clk clock.Clock) *Cache[K, V] {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Cache[K, V]{
		ttl: ttl,
		clk: clk,
		m:   make(map[K]*entry[V]),
	}
}

// Get returns the live value for key. Expired entries are treated as absent
// and removed lazily.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e := c.m[key]
	c.mu.RUnlock()

	var zero V
	if e == nil {
		return zero, false
	}
	if !c.clk.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// Recheck under the write lock, the entry may have been replaced.
		if cur := c.m[key]; cur == e {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Put(key K, value V) {
	e := &entry[V]{value: value, expiresAt: c.clk.Now().Add(c.ttl)}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
}

// Invalidate drops the entry for key if present.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including not yet collected
// expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
