package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const cacheKey = "positions"

// cacheRecord is the on-disk cache format: capture time in epoch seconds
// plus the serialized positions, written as a single atomic unit.
type cacheRecord struct {
	TS        float64    `json:"ts"`
	Positions []Position `json:"positions"`
}

// Cache persists the latest position snapshot with a capture timestamp.
// An in-memory layer fronts the JSON file; the capture timestamp is the
// authority on validity, the memory expiry is only a backstop.
type Cache struct {
	mu     sync.Mutex
	path   string
	ttl    time.Duration
	mem    *gocache.Cache
	now    func() time.Time
	logger *zap.Logger
}

// NewCache creates a snapshot cache backed by the file at path.
func NewCache(path string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		path:   path,
		ttl:    ttl,
		mem:    gocache.New(ttl, 2*ttl),
		now:    time.Now,
		logger: logger.Named("cache"),
	}
}

// Load returns the cached positions if the capture time is still within the
// TTL. The boolean reports validity; an expired or unreadable cache is not
// an error, it simply forces a live fetch.
func (c *Cache) Load() ([]Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.load()
	if !ok {
		return nil, false
	}

	age := c.now().Sub(time.Unix(int64(rec.TS), 0))
	if age >= c.ttl {
		c.logger.Debug("Cache expired", zap.Duration("age", age))
		return nil, false
	}

	positions := make([]Position, len(rec.Positions))
	copy(positions, rec.Positions)
	return positions, true
}

func (c *Cache) load() (*cacheRecord, bool) {
	if v, ok := c.mem.Get(cacheKey); ok {
		return v.(*cacheRecord), true
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, false
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("Discarding unreadable cache file", zap.Error(err))
		return nil, false
	}
	c.mem.Set(cacheKey, &rec, gocache.DefaultExpiration)
	return &rec, true
}

// Save overwrites the cache with a fresh capture. The file is replaced
// atomically so a concurrent read never observes a partial write.
func (c *Cache) Save(positions []Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &cacheRecord{
		TS:        float64(c.now().Unix()),
		Positions: positions,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("cache: create directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("cache: replace: %w", err)
	}

	c.mem.Set(cacheKey, rec, gocache.DefaultExpiration)
	return nil
}
