package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ErrKeyNotFound is returned by Get on a cache miss.
var ErrKeyNotFound = errors.New("key does not exist")

// CacheHandlerI is the key-value store with TTL the read paths publish into.
// Values are JSON-serialized so every implementation behaves like the Redis one.
type CacheHandlerI interface {
	Get(ctx context.Context, key string, result interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type cacheEntry struct {
	data       []byte
	expiration time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// MemoryCache is an in-process CacheHandlerI used when no Redis host is configured.
type MemoryCache struct {
	entries map[string]cacheEntry
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewMemoryCache initializes an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Set stores a new value with an expiration time. A zero expiration never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = c.newEntry(data, expiration)
	return nil
}

// SetNX stores the value only if the key is missing or expired.
func (c *MemoryCache) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to serialize value: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[key]; ok && !entry.expired(c.now()) {
		return false, nil
	}
	c.entries[key] = c.newEntry(data, expiration)
	return true, nil
}

// Get retrieves and deserializes the value of a key into result.
func (c *MemoryCache) Get(_ context.Context, key string, result interface{}) error {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()

	if !ok || entry.expired(c.now()) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err := json.Unmarshal(entry.data, result); err != nil {
		return fmt.Errorf("failed to deserialize value: %w", err)
	}
	return nil
}

// Delete removes the given keys.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Exists checks if a non-expired key is present.
func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.entries[key]
	return ok && !entry.expired(c.now()), nil
}

func (c *MemoryCache) newEntry(data []byte, expiration time.Duration) cacheEntry {
	entry := cacheEntry{data: data}
	if expiration > 0 {
		entry.expiration = c.now().Add(expiration)
	}
	return entry
}

// ReadResponseFromFile reads a JSON response from a file and returns the content as a byte slice.
func ReadResponseFromFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
