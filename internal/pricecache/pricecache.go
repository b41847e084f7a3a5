// Package pricecache is a sharded, age-tracked cache of the last traded
// price and best-quote snapshot per symbol, read by the REST /ticker/price
// endpoint without contending on the matching engine's own per-symbol lock.
package pricecache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const numShards = 16

// Quote is a symbol's last-known trade price and top-of-book snapshot.
type Quote struct {
	LastPrice decimal.Decimal
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	UpdatedAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

// Cache is a sharded, in-memory last-price/quote cache, one shard per
// fnv32a(symbol) bucket to spread lock contention across hot symbols.
type Cache struct {
	shards [numShards]*shard
}

// New creates an empty cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]Quote)}
	}
	return c
}

func (c *Cache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return c.shards[h.Sum32()%numShards]
}

// Set records symbol's latest quote, overwriting any prior entry.
func (c *Cache) Set(symbol string, q Quote) {
	q.UpdatedAt = time.Now()
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.items[symbol] = q
	s.mu.Unlock()
}

// SetLastPrice updates only the last-traded-price field, preserving any
// existing bid/ask snapshot.
func (c *Cache) SetLastPrice(symbol string, price decimal.Decimal) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	q := s.items[symbol]
	q.LastPrice = price
	q.UpdatedAt = time.Now()
	s.items[symbol] = q
	s.mu.Unlock()
}

// Get returns symbol's cached quote.
func (c *Cache) Get(symbol string) (Quote, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.items[symbol]
	return q, ok
}

// Delete removes symbol's cached entry.
func (c *Cache) Delete(symbol string) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	delete(s.items, symbol)
	s.mu.Unlock()
}

// Len returns the total number of cached symbols across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup evicts entries whose last update is older than maxAge, returning
// the number removed. Intended for periodic pruning of symbols the caller
// has stopped quoting.
func (c *Cache) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for sym, q := range s.items {
			if q.UpdatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
