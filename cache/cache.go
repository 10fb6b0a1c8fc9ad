// Package cache implements the per-stage file cache (spec. §3, §4.1): a
// bounded, timestamp-ordered store mapping a job id to a persisted
// intermediate image, with oldest-first eviction and the invariant that
// the in-memory index never holds an entry without a backing file.
//
// Adapted from original_source/src/cache.c (cache_create, cache_db_reg_file,
// cache_db_unreg_file, cache_delete_file, cache_destroy).
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Skryldev/oipipe/imgerr"
)

// File is one registered cache entry (spec. §3's CacheFile).
type File struct {
	Name   string // logical name; equal to the submitting job's id
	Path   string // full path on disk
	TStamp int64  // seconds-since-epoch at registration
}

// Cache is a named persistent store with bounded capacity and
// oldest-first (by registration time) eviction. Safe for concurrent use;
// the pipeline engine's own single-threaded execution model (spec. §5)
// means contention is expected only between the engine thread and the
// interactive-shell collaborator thread.
type Cache struct {
	mu sync.Mutex

	name     string
	path     string
	maxFiles int
	entries  []File
}

// nowFunc is overridable in tests to make tstamp ordering deterministic.
var nowFunc = func() int64 { return time.Now().Unix() }

// Create creates (or adopts) the named cache directory under root and
// returns an empty Cache — the on-disk file set is not scanned; entries
// are registered only by explicit calls to Register (spec. §4.1).
func Create(root, name string, maxFiles int) (*Cache, error) {
	if name == "" {
		return nil, imgerr.New(imgerr.CategoryInvalidInput, "cache.create", fmt.Errorf("cache name must not be empty"))
	}
	if maxFiles <= 0 {
		return nil, imgerr.New(imgerr.CategoryInvalidInput, "cache.create", fmt.Errorf("max_files must be positive"))
	}
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "cache.create.mkdir", err)
	}
	return &Cache{name: name, path: path, maxFiles: maxFiles}, nil
}

// Name returns the cache's unique name.
func (c *Cache) Name() string { return c.name }

// Path returns the cache's directory.
func (c *Cache) Path() string { return c.path }

// MaxFiles returns the cache's capacity.
func (c *Cache) MaxFiles() int { return c.maxFiles }

// Len returns the number of currently registered entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Register records fname as a cache entry. If fname is already
// registered, the existing entry is returned unchanged. Otherwise, if
// the cache is at capacity, autoEvict=false fails with imgerr.ErrCacheFull
// while autoEvict=true deletes the oldest entry (by tstamp, ties broken
// by insertion order) first. The caller must write the file's contents
// to the returned File's Path next; on write failure it must call
// Unregister to restore the consistency invariant.
func (c *Cache) Register(fname string, autoEvict bool) (File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(fname); idx != -1 {
		return c.entries[idx], nil
	}

	if len(c.entries) >= c.maxFiles {
		if !autoEvict {
			return File{}, imgerr.New(imgerr.CategoryResourceFailure, "cache.register", imgerr.ErrCacheFull)
		}
		if err := c.evictOldestLocked(); err != nil {
			return File{}, err
		}
	}

	f := File{
		Name:   fname,
		Path:   filepath.Join(c.path, fname),
		TStamp: nowFunc(),
	}
	c.entries = append(c.entries, f)
	return f, nil
}

// Unregister removes fname's index entry without touching the file on
// disk. It is strictly an index operation, used to roll back a failed
// write after Register.
func (c *Cache) Unregister(fname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(fname)
	if idx == -1 {
		return imgerr.New(imgerr.CategoryInvalidInput, "cache.unregister", imgerr.ErrCacheMiss)
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	return nil
}

// Delete unlinks fname's file on disk and removes its index entry. The
// unlink is attempted first; the index entry is removed only if it
// succeeds, so a failed Delete never leaves entries a superset of the
// real on-disk file set.
func (c *Cache) Delete(fname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(fname)
	if idx == -1 {
		return imgerr.New(imgerr.CategoryInvalidInput, "cache.delete", imgerr.ErrCacheMiss)
	}

	if err := os.Remove(c.entries[idx].Path); err != nil && !os.IsNotExist(err) {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "cache.delete.unlink", err)
	}
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	return nil
}

// Has reports whether fname is registered (index lookup only).
func (c *Cache) Has(fname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOf(fname) != -1
}

// PathOf returns the path registered for fname, and whether fname is
// registered (index lookup only; the file on disk is not checked).
func (c *Cache) PathOf(fname string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(fname)
	if idx == -1 {
		return "", false
	}
	return c.entries[idx].Path, true
}

// Dump writes a human-readable summary of the cache to w, restoring the
// cache_dump diagnostic from original_source/src/cache.c, retargeted at
// an io.Writer.
func (c *Cache) Dump(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(w, "Cache %q:\n", c.name)
	fmt.Fprintf(w, "  Path:      %s\n", c.path)
	fmt.Fprintf(w, "  Max files: %d\n", c.maxFiles)
	fmt.Fprintf(w, "  Files:\n")
	for _, f := range c.entries {
		fmt.Fprintf(w, "    %s : %s\n", f.Name, f.Path)
	}
}

// Destroy drops the in-memory index. With deleteFiles it also removes
// the cache directory recursively; otherwise the directory and its
// contents are left in place.
func (c *Cache) Destroy(deleteFiles bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	if !deleteFiles {
		return nil
	}
	if err := os.RemoveAll(c.path); err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "cache.destroy", err)
	}
	return nil
}

// indexOf returns the index of fname in c.entries, or -1. Caller must
// hold c.mu.
func (c *Cache) indexOf(fname string) int {
	for i := range c.entries {
		if c.entries[i].Name == fname {
			return i
		}
	}
	return -1
}

// evictOldestLocked deletes the entry with the smallest tstamp (ties
// broken by insertion order, i.e. the first one found). Caller must
// hold c.mu.
func (c *Cache) evictOldestLocked() error {
	if len(c.entries) == 0 {
		return nil
	}
	oldest := 0
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].TStamp < c.entries[oldest].TStamp {
			oldest = i
		}
	}
	if err := os.Remove(c.entries[oldest].Path); err != nil && !os.IsNotExist(err) {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "cache.evict.unlink", err)
	}
	c.entries = append(c.entries[:oldest], c.entries[oldest+1:]...)
	return nil
}
