package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	errs "bhascraper/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	fileExt     = ".json"
	tempPrefix  = ".tmp-"
	lockStripes = 64
)

// createTemp is swapped in tests to simulate an unwritable directory
var createTemp = os.CreateTemp

// Document is a raw JSON payload, byte-identical to the upstream body
type Document = json.RawMessage

// Cache maps request keys to JSON documents, one file per key. Writes are
// published atomically so a reader sees either the previous content or the
// new content, never a partial file.
type Cache struct {
	dir string
	mem *lru.Cache[string, []byte]

	// locks serialise publish and memory update per key so the LRU never
	// disagrees with the file on disk
	locks [lockStripes]sync.Mutex

	// beforePublish runs after the temp file is fully written and synced,
	// just before it is renamed into place
	beforePublish func(tmpPath string) error
}

// Option configures a Cache
type Option func(*Cache) error

// WithMemory fronts the directory with an in-process LRU of n documents
func WithMemory(n int) Option {
	return func(c *Cache) error {
		if n <= 0 {
			return nil
		}
		mem, err := lru.New[string, []byte](n)
		if err != nil {
			return err
		}
		c.mem = mem
		return nil
	}
}

// New opens (creating if needed) a cache rooted at dir. A directory that
// cannot be written to is a cache_io error.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errs.New(errs.ErrorTypeCacheIO, 0, "cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to create cache directory %s", dir)
	}
	if err := checkWritable(dir); err != nil {
		return nil, err
	}

	c := &Cache{dir: dir}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to configure cache: %w", err)
		}
	}
	return c, nil
}

func checkWritable(dir string) error {
	f, err := createTemp(dir, tempPrefix+"probe-*")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "cache directory %s is not writable", dir)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "cache directory %s is not writable", dir)
	}
	return nil
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// Dir returns the cache root
func (c *Cache) Dir() string {
	return c.dir
}

// KeyFor derives the cache key for a fully resolved request URL. Scheme
// and host are lower-cased and query parameters sorted by name, so the same
// logical request always maps to the same key.
func KeyFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(u.EscapedPath())
	if q := u.Query(); len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	return b.String(), nil
}

// Path returns the file a key is stored under
func (c *Cache) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+fileExt)
}

// Get returns the stored document for key. A miss is (nil, false, nil).
// A file that no longer parses as JSON is reported as a miss.
func (c *Cache) Get(key string) (Document, bool, error) {
	if c.mem == nil {
		return c.read(key)
	}

	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if data, ok := c.mem.Get(key); ok {
		if _, err := os.Stat(c.Path(key)); err == nil {
			return bytes.Clone(data), true, nil
		}
		// removed behind our back
		c.mem.Remove(key)
	}

	data, ok, err := c.read(key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.mem.Add(key, bytes.Clone(data))
	return data, true, nil
}

func (c *Cache) read(key string) (Document, bool, error) {
	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to read cache entry")
	}
	if !json.Valid(data) {
		return nil, false, nil
	}
	return data, true, nil
}

// Put stores doc under key, replacing any previous document
func (c *Cache) Put(key string, doc Document) error {
	if !json.Valid(doc) {
		return errs.New(errs.ErrorTypeMalformedResponse, 0, "refusing to cache invalid JSON: %s", errs.Truncate(doc, 200))
	}

	target := c.Path(key)
	tmp, err := createTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to create temporary file")
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			os.Remove(tmpPath)
		}
	}()

	_, err = tmp.Write(doc)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to write cache entry")
	}
	if closeErr != nil {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, closeErr, "failed to close cache entry")
	}

	if c.beforePublish != nil {
		if err := c.beforePublish(tmpPath); err != nil {
			return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "cache write interrupted")
		}
	}

	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Rename(tmpPath, target); err != nil {
		if c.mem != nil {
			c.mem.Remove(key)
		}
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to publish cache entry")
	}
	published = true

	if c.mem != nil {
		c.mem.Add(key, bytes.Clone(doc))
	}
	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (c *Cache) Delete(key string) error {
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if c.mem != nil {
		c.mem.Remove(key)
	}
	if err := os.Remove(c.Path(key)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to delete cache entry")
	}
	return nil
}

// Clear removes every entry and any temp files left by interrupted writes.
// It returns the number of entries removed.
func (c *Cache) Clear() (int, error) {
	if c.mem != nil {
		c.mem.Purge()
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to read cache directory")
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		isEntry := filepath.Ext(name) == fileExt
		if !isEntry && !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, errs.Wrap(errs.ErrorTypeCacheIO, 0, err, "failed to remove %s", name)
		}
		if isEntry {
			removed++
		}
	}
	return removed, nil
}

// Len counts the entries on disk
func (c *Cache) Len() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
