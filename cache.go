package artifactkit

import (
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"
)

// Cache is the key/value backend of a CachingFileSystem. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the value and true if present and not expired.
	Get(key string) (any, bool)

	// Set stores a value. A ttl of 0 means no expiration.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a value.
	Delete(key string)

	// Clear removes all values.
	Clear()
}

// CacheStatistics contains cache counters.
type CacheStatistics struct {
	Hits   int64
	Misses int64
	Size   int64
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	hits    int64
	misses  int64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*cacheEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.expired(time.Now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set implements Cache.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	e := &cacheEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete implements Cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear implements Cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStatistics{Hits: c.hits, Misses: c.misses, Size: int64(len(c.entries))}
}

var _ Cache = (*MemoryCache)(nil)

// CachingFileSystem remembers existence checks and Stat results of the
// wrapped store. Publishing a tree to a remote store asks the same
// "does this directory exist" question many times; with the cache each
// directory is created at most once per TTL.
//
// Content is never cached. Writes through the wrapper keep the cache
// consistent; changes made to the store by someone else become visible
// after the TTL.
//
//	store = artifactkit.NewCachingFileSystem(store, artifactkit.NewMemoryCache(),
//	    artifactkit.WithCacheTTL(time.Minute))
type CachingFileSystem struct {
	fs     FileSystem
	cache  Cache
	ttl    time.Duration
	prefix string
}

// CacheOption configures a CachingFileSystem.
type CacheOption func(*CachingFileSystem)

// WithCacheTTL sets how long entries live. Zero keeps them until invalidated.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachingFileSystem) {
		c.ttl = ttl
	}
}

// WithCacheKeyPrefix namespaces keys so several stores can share a Cache.
func WithCacheKeyPrefix(prefix string) CacheOption {
	return func(c *CachingFileSystem) {
		c.prefix = prefix
	}
}

// NewCachingFileSystem wraps fs. A nil cache gets a fresh MemoryCache.
func NewCachingFileSystem(fs FileSystem, cache Cache, opts ...CacheOption) *CachingFileSystem {
	if cache == nil {
		cache = NewMemoryCache()
	}
	c := &CachingFileSystem{fs: fs, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap returns the underlying store.
func (c *CachingFileSystem) Unwrap() FileSystem {
	return c.fs
}

// Cache returns the backing cache.
func (c *CachingFileSystem) Cache() Cache {
	return c.cache
}

func (c *CachingFileSystem) key(op, p string) string {
	return c.prefix + op + ":" + cacheKeyPath(p)
}

func cacheKeyPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, `\`, "/")), "/")
}

// markDirs records p and all its parents as existing directories.
func (c *CachingFileSystem) markDirs(p string) {
	for p = cacheKeyPath(p); p != "" && p != "."; p = path.Dir(p) {
		c.cache.Set(c.key("dir", p), true, c.ttl)
	}
}

func (c *CachingFileSystem) invalidate(p string) {
	for _, op := range []string{"file", "dir", "stat"} {
		c.cache.Delete(c.key(op, p))
	}
}

func (c *CachingFileSystem) exists(ctx context.Context, op, p string, check func(context.Context, string) (bool, error)) (bool, error) {
	k := c.key(op, p)
	if v, ok := c.cache.Get(k); ok {
		return v.(bool), nil
	}
	ok, err := check(ctx, p)
	if err != nil {
		return false, err
	}
	c.cache.Set(k, ok, c.ttl)
	return ok, nil
}

// FileExists implements FileReader.
func (c *CachingFileSystem) FileExists(ctx context.Context, p string) (bool, error) {
	return c.exists(ctx, "file", p, c.fs.FileExists)
}

// DirExists implements FileReader.
func (c *CachingFileSystem) DirExists(ctx context.Context, p string) (bool, error) {
	return c.exists(ctx, "dir", p, c.fs.DirExists)
}

// Stat implements FileReader. Only successful results are cached.
func (c *CachingFileSystem) Stat(ctx context.Context, p string) (*FileInfo, error) {
	k := c.key("stat", p)
	if v, ok := c.cache.Get(k); ok {
		info := *v.(*FileInfo)
		return &info, nil
	}
	info, err := c.fs.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	stored := *info
	c.cache.Set(k, &stored, c.ttl)
	return info, nil
}

func (c *CachingFileSystem) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	return c.fs.Read(ctx, p)
}

func (c *CachingFileSystem) ReadAll(ctx context.Context, p string) ([]byte, error) {
	return c.fs.ReadAll(ctx, p)
}

func (c *CachingFileSystem) ListContents(ctx context.Context, p string, recursive bool) ([]FileInfo, error) {
	return c.fs.ListContents(ctx, p, recursive)
}

// Write implements FileWriter.
func (c *CachingFileSystem) Write(ctx context.Context, p string, content io.Reader, options ...Option) error {
	c.invalidate(p)
	if err := c.fs.Write(ctx, p, content, options...); err != nil {
		return err
	}
	c.cache.Set(c.key("file", p), true, c.ttl)
	c.markDirs(path.Dir(cacheKeyPath(p)))
	return nil
}

// Delete implements FileWriter.
func (c *CachingFileSystem) Delete(ctx context.Context, p string) error {
	c.invalidate(p)
	return c.fs.Delete(ctx, p)
}

// CreateDir implements FileWriter. It skips the store when the directory
// is already known to exist.
func (c *CachingFileSystem) CreateDir(ctx context.Context, p string) error {
	if v, ok := c.cache.Get(c.key("dir", p)); ok && v.(bool) {
		return nil
	}
	if err := c.fs.CreateDir(ctx, p); err != nil {
		return err
	}
	c.markDirs(p)
	return nil
}

// DeleteDir implements FileWriter. The whole cache is dropped since any
// entry below p may be stale.
func (c *CachingFileSystem) DeleteDir(ctx context.Context, p string) error {
	defer c.cache.Clear()
	return c.fs.DeleteDir(ctx, p)
}

var _ FileSystem = (*CachingFileSystem)(nil)
