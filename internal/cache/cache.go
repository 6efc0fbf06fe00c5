// Package cache implements the resolver's in-memory, TTL-keyed resource
// store: the one process-wide mutable structure the resolver's tasks
// share (RFC 1035 caching semantics; no negative-response caching).
package cache

import (
	"sync"
	"time"

	"github.com/polymorfiq/dns-server/internal/message"
	"github.com/polymorfiq/dns-server/internal/metrics"
)

// lookupKey groups cached resources by the fields a question matches
// against exactly: class, type, and case-normalized name. Wildcard
// question fields are never expanded against the cache.
type lookupKey struct {
	Class uint16
	Type  uint16
	Name  string
}

type entry struct {
	resource message.Resource
	eol      time.Time
	timer    *time.Timer
}

// Cache is the resolver's shared record store. Readers may run
// concurrently with each other; writers are serialized and exclude
// readers while they hold mu. The map itself is protected by mu, not the
// entries' timers.
type Cache struct {
	mu      sync.RWMutex
	entries map[lookupKey]map[string]*entry
	metrics *metrics.Registry
}

// New creates an empty cache. metricsReg may be nil, in which case
// instrumentation is skipped.
func New(metricsReg *metrics.Registry) *Cache {
	return &Cache{
		entries: make(map[lookupKey]map[string]*entry),
		metrics: metricsReg,
	}
}

func keyFor(class, qtype uint16, name message.Name) lookupKey {
	return lookupKey{Class: class, Type: qtype, Name: name.Normalize().String()}
}

// Lookup returns every stored resource matching question's class, type,
// and normalized name, with TTL rewritten to the remaining seconds as of
// now. Entries whose remaining TTL would be negative are filtered out.
func (c *Cache) Lookup(now time.Time, q message.Question) []message.Resource {
	lk := keyFor(q.QClass, q.QType, q.QName)

	c.mu.RLock()
	bucket := c.entries[lk]
	out := make([]message.Resource, 0, len(bucket))
	for _, e := range bucket {
		remaining := e.eol.Sub(now).Seconds()
		if remaining < 0 {
			continue
		}
		r := e.resource
		r.TTL = uint32(remaining)
		out = append(out, r)
	}
	c.mu.RUnlock()

	if c.metrics != nil {
		if len(out) > 0 {
			c.metrics.CacheHits.Inc()
		} else {
			c.metrics.CacheMisses.Inc()
		}
	}

	return out
}

// Store inserts resource under its (class, type, normalized name, rdata)
// key, replacing any prior entry with the identical key and resetting its
// scheduled expiry. eol is computed as now + resource.TTL.
func (c *Cache) Store(now time.Time, resource message.Resource) {
	lk := keyFor(resource.Class, resource.Type, resource.Name)
	rdataKey := string(resource.RData)
	eol := now.Add(time.Duration(resource.TTL) * time.Second)

	c.mu.Lock()
	bucket := c.entries[lk]
	if bucket == nil {
		bucket = make(map[string]*entry)
		c.entries[lk] = bucket
	}

	if old, ok := bucket[rdataKey]; ok && old.timer != nil {
		old.timer.Stop()
	}

	e := &entry{resource: resource, eol: eol}
	bucket[rdataKey] = e
	e.timer = time.AfterFunc(time.Duration(resource.TTL)*time.Second, func() {
		c.expire(lk, rdataKey, e)
	})
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheSize.Set(float64(c.size()))
	}
}

// expire removes the entry at (lk, rdataKey) only if it is still the same
// entry the timer was scheduled for — a stale timer from a replaced entry
// finds a mismatch and no-ops.
func (c *Cache) expire(lk lookupKey, rdataKey string, scheduled *entry) {
	c.mu.Lock()
	bucket := c.entries[lk]
	if bucket != nil {
		if current, ok := bucket[rdataKey]; ok && current == scheduled {
			delete(bucket, rdataKey)
			if len(bucket) == 0 {
				delete(c.entries, lk)
			}
		}
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheSize.Set(float64(c.size()))
	}
}

// size returns the total number of live entries across every bucket. The
// caller must not hold mu.
func (c *Cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
