// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

const DefaultCacheSize = 50

// CacheKey addresses one financial year of prices for a security
type CacheKey struct {
	SecurityID string
	FY         int
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%d", k.SecurityID, k.FY)
}

// PriceCache is a fixed capacity LRU of price series. Each NAV run owns its
// own cache; the durable copy always lives in the PartitionStore so an
// eviction only costs a reload.
type PriceCache struct {
	entries  *lru.Cache
	capacity int
}

// NewPriceCache creates a cache holding at most capacity series. A
// non-positive capacity selects DefaultCacheSize.
func NewPriceCache(capacity int) (*PriceCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}

	entries, err := lru.NewWithEvict(capacity, func(key interface{}, _ interface{}) {
		log.Trace().Str("Key", key.(CacheKey).String()).Msg("evicted price series")
	})
	if err != nil {
		return nil, err
	}

	return &PriceCache{
		entries:  entries,
		capacity: capacity,
	}, nil
}

// Get returns the cached series and marks it most recently used
func (c *PriceCache) Get(key CacheKey) (*Series, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Series), true
}

// Put inserts or replaces the series for key. When the cache is full the
// least recently used entry is evicted first; the return value reports
// whether that happened.
func (c *PriceCache) Put(key CacheKey, series *Series) bool {
	return c.entries.Add(key, series)
}

// Contains checks for key without touching its recency
func (c *PriceCache) Contains(key CacheKey) bool {
	return c.entries.Contains(key)
}

func (c *PriceCache) Len() int {
	return c.entries.Len()
}

func (c *PriceCache) Cap() int {
	return c.capacity
}

// Keys lists cached keys from least to most recently used
func (c *PriceCache) Keys() []CacheKey {
	raw := c.entries.Keys()
	keys := make([]CacheKey, len(raw))
	for idx, k := range raw {
		keys[idx] = k.(CacheKey)
	}
	return keys
}

func (c *PriceCache) Purge() {
	c.entries.Purge()
}
