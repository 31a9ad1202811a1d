package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

type CacheItem struct {
	Data      interface{}
	ExpiresAt time.Time
}

// SnapshotCache keeps the raw fetch of each record source and the aggregated
// weather per location for a bounded time. A zero duration disables caching.
type SnapshotCache struct {
	mu              sync.RWMutex
	snapshots       map[string]CacheItem
	weather         map[string]CacheItem
	logger          *zap.Logger
	defaultDuration time.Duration
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
	hits            int
	misses          int
}

func NewSnapshotCache(defaultDuration time.Duration, maxSize int, logger *zap.Logger) *SnapshotCache {
	cache := &SnapshotCache{
		snapshots:       make(map[string]CacheItem),
		weather:         make(map[string]CacheItem),
		logger:          logger,
		defaultDuration: defaultDuration,
		maxSize:         maxSize,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go cache.startCleanup()

	return cache
}

func (c *SnapshotCache) SetSnapshot(source string, records []models.RawRecord) {
	c.set(c.snapshots, source, records)
}

func (c *SnapshotCache) GetSnapshot(source string) ([]models.RawRecord, bool) {
	data, ok := c.get(c.snapshots, source)
	if !ok {
		return nil, false
	}
	records, ok := data.([]models.RawRecord)
	return records, ok
}

func (c *SnapshotCache) SetWeather(location string, weather *models.AggregatedCurrentWeather) {
	c.set(c.weather, location, weather)
}

func (c *SnapshotCache) GetWeather(location string) (*models.AggregatedCurrentWeather, bool) {
	data, ok := c.get(c.weather, location)
	if !ok {
		return nil, false
	}
	weather, ok := data.(*models.AggregatedCurrentWeather)
	return weather, ok
}

// Invalidate drops every cached snapshot so the next refresh refetches.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.snapshots {
		delete(c.snapshots, key)
	}
}

func (c *SnapshotCache) set(bucket map[string]CacheItem, key string, data interface{}) {
	if c.defaultDuration <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := bucket[key]; !exists && c.maxSize > 0 && len(c.snapshots)+len(c.weather) >= c.maxSize {
		c.evictOldest()
	}

	expiresAt := c.now().Add(c.defaultDuration)
	bucket[key] = CacheItem{
		Data:      data,
		ExpiresAt: expiresAt,
	}

	c.logger.Debug("Cached item",
		zap.String("key", key),
		zap.Time("expires_at", expiresAt))
}

func (c *SnapshotCache) get(bucket map[string]CacheItem, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := bucket[key]
	if !exists {
		c.misses++
		return nil, false
	}

	if c.now().After(item.ExpiresAt) {
		delete(bucket, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return item.Data, true
}

func (c *SnapshotCache) evictOldest() {
	var (
		oldestBucket map[string]CacheItem
		oldestKey    string
		oldestTime   time.Time
	)

	for _, bucket := range []map[string]CacheItem{c.snapshots, c.weather} {
		for key, item := range bucket {
			if oldestBucket == nil || item.ExpiresAt.Before(oldestTime) {
				oldestBucket = bucket
				oldestKey = key
				oldestTime = item.ExpiresAt
			}
		}
	}

	if oldestBucket != nil {
		delete(oldestBucket, oldestKey)
		c.logger.Debug("Evicted oldest cache item", zap.String("key", oldestKey))
	}
}

func (c *SnapshotCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *SnapshotCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0

	for _, bucket := range []map[string]CacheItem{c.snapshots, c.weather} {
		for key, item := range bucket {
			if now.After(item.ExpiresAt) {
				delete(bucket, key)
				expiredCount++
			}
		}
	}

	if expiredCount > 0 {
		c.logger.Debug("Cleaned expired cache items",
			zap.Int("count", expiredCount))
	}
}

func (c *SnapshotCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *SnapshotCache) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"snapshot_items":   len(c.snapshots),
		"weather_items":    len(c.weather),
		"hits":             c.hits,
		"misses":           c.misses,
		"max_size":         c.maxSize,
		"default_duration": c.defaultDuration.String(),
	}
}
