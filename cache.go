// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kiln

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// ErrCacheEntryMissing is returned by Cache.Accessed when the given full
// hash has no entry.
var ErrCacheEntryMissing = errors.New("kiln: cache entry does not exist")

// maxTrackedEntries bounds the simplelru count cap far above any real
// cache population; eviction in this Cache is driven purely by byte size
// (reserveSpace), not by entry count, so the LRU's own count-based
// auto-eviction should never fire.
const maxTrackedEntries = 1 << 28

// ImplicitDep is one (path, content hash) pair discovered by a builder
// when it produced the outputs stored under a cache entry.
type ImplicitDep struct {
	Path string
	Hash FullHash
}

type cacheEntry struct {
	size         int64
	partial      PartialHash
	implicitDeps []ImplicitDep
}

// Cache is the on-disk, content-addressed, size-bounded store of
// spec.md §4.B: entries keyed by Full fingerprint, indexed by Partial
// fingerprint, evicted LRU under a size bound, with a persisted,
// self-verifying metadata file.
type Cache struct {
	mu sync.Mutex

	root      string
	sizeLimit int64
	sizeUsed  int64

	lru          *simplelru.LRU[FullHash, *cacheEntry]
	partialIndex map[PartialHash][]FullHash

	log     *zap.Logger
	metrics *Metrics
}

// SetMetrics attaches a metrics registry that evictions made by Put are
// reported to (hit/miss counts come from UpdateApplication, not the cache).
// Optional; a nil metrics is a no-op.
func (c *Cache) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

const defaultSizeLimit = 1_000_000_000 // 1 GB, matching the original's default.

// NewCache creates an empty, in-memory cache rooted at dir with the given
// byte size limit. Call Load to restore previously persisted state.
func NewCache(dir string, sizeLimit int64, logger *zap.Logger) *Cache {
	if sizeLimit <= 0 {
		sizeLimit = defaultSizeLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{root: dir, sizeLimit: sizeLimit, log: logger}
	c.resetLocked()
	return c
}

func (c *Cache) resetLocked() {
	lru, _ := simplelru.NewLRU[FullHash, *cacheEntry](maxTrackedEntries, nil)
	c.lru = lru
	c.partialIndex = map[PartialHash][]FullHash{}
	c.sizeUsed = 0
}

// EntryDir returns the on-disk directory for a full hash:
// root/HH/HHHH... (the first two hex chars, then the rest).
func (c *Cache) EntryDir(full FullHash) string {
	h := hex.EncodeToString(full[:])
	return filepath.Join(c.root, h[:2], h[2:])
}

// Put adds a new cache entry: full must be new both in the primary
// map and in partial's bucket. It computes the total size of paths,
// reserves room for it (evicting LRU entries as needed), atomically moves
// each path into the entry's directory, and marks the entry MRU-most.
func (c *Cache) Put(full FullHash, partial PartialHash, paths []string, implicitDeps []ImplicitDep) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(full); ok {
		return fmt.Errorf("kiln: cache entry %s already exists", full)
	}
	for _, h := range c.partialIndex[partial] {
		if h == full {
			return fmt.Errorf("kiln: cache entry %s already indexed under partial %s", full, partial)
		}
	}

	var size int64
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return err
		}
		size += st.Size()
	}

	if err := c.reserveSpaceLocked(size); err != nil {
		return err
	}

	dir := c.EntryDir(full)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("kiln: cache directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, p := range paths {
		dst := filepath.Join(dir, filepath.Base(p))
		if err := os.Rename(p, dst); err != nil {
			return err
		}
	}

	c.lru.Add(full, &cacheEntry{size: size, partial: partial, implicitDeps: implicitDeps})
	c.partialIndex[partial] = append(c.partialIndex[partial], full)
	c.sizeUsed += size

	c.log.Debug("cache put",
		zap.Stringer("full_hash", full),
		zap.String("size", humanize.Bytes(uint64(size))),
		zap.String("size_used", humanize.Bytes(uint64(c.sizeUsed))))

	return nil
}

// reserveSpaceLocked evicts LRU entries until size more bytes fit under
// the size limit. An item larger than the whole cache fails with
// ErrCacheTooSmall before anything is evicted.
func (c *Cache) reserveSpaceLocked(size int64) error {
	if size > c.sizeLimit {
		return ErrCacheTooSmall
	}
	for c.sizeUsed+size > c.sizeLimit {
		if c.lru.Len() == 0 {
			return ErrCacheTooSmall
		}
		if err := c.discardOneLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) discardOneLocked() error {
	full, entry, ok := c.lru.RemoveOldest()
	if !ok {
		return ErrCacheTooSmall
	}

	bucket := c.partialIndex[entry.partial]
	for i, h := range bucket {
		if h == full {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.partialIndex, entry.partial)
	} else {
		c.partialIndex[entry.partial] = bucket
	}

	if err := os.RemoveAll(c.EntryDir(full)); err != nil {
		return err
	}
	c.sizeUsed -= entry.size
	if c.metrics != nil {
		c.metrics.CacheEvicted()
	}

	c.log.Debug("cache evicted", zap.Stringer("full_hash", full), zap.String("freed", humanize.Bytes(uint64(entry.size))))
	return nil
}

// GetCandidateImplicitDependencies returns, in insertion order, the
// implicit-dependency sets of every entry sharing partial. An unknown
// partial hash returns an empty (non-nil) slice, not an error.
func (c *Cache) GetCandidateImplicitDependencies(partial PartialHash) ([][]ImplicitDep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fulls := c.partialIndex[partial]
	out := make([][]ImplicitDep, 0, len(fulls))
	for _, full := range fulls {
		entry, ok := c.lru.Peek(full)
		if !ok {
			return nil, fmt.Errorf("kiln: %w: partial index referenced missing full hash %s", ErrCacheCorrupt, full)
		}
		out = append(out, entry.implicitDeps)
	}
	return out, nil
}

// Accessed moves an entry to MRU-most. It fails if the entry is absent.
func (c *Cache) Accessed(full FullHash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Get(full); !ok {
		return ErrCacheEntryMissing
	}
	return nil
}

// Clear wipes all in-memory indices and, if deleteDirectory is true,
// removes the cache's on-disk root.
func (c *Cache) Clear(deleteDirectory bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	if deleteDirectory {
		if err := os.RemoveAll(c.root); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// VerifyState checks the invariants of spec.md §4.B. It's the checker a
// test suite (and, defensively, Load) runs after every mutation.
func (c *Cache) VerifyState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyStateLocked()
}

func (c *Cache) verifyStateLocked() error {
	accessible := map[FullHash]PartialHash{}

	for partial, fulls := range c.partialIndex {
		if len(fulls) == 0 {
			return fmt.Errorf("%w: empty partial-hash bucket %s", ErrCacheCorrupt, partial)
		}
		seen := map[FullHash]struct{}{}
		for _, full := range fulls {
			if _, dup := seen[full]; dup {
				return fmt.Errorf("%w: duplicate full hash %s in bucket %s", ErrCacheCorrupt, full, partial)
			}
			seen[full] = struct{}{}

			entry, ok := c.lru.Peek(full)
			if !ok {
				return fmt.Errorf("%w: bucket %s references missing full hash %s", ErrCacheCorrupt, partial, full)
			}
			if entry.partial != partial {
				return fmt.Errorf("%w: full hash %s points back to %s, not %s", ErrCacheCorrupt, full, entry.partial, partial)
			}
			accessible[full] = partial
		}
	}

	owned := map[string]struct{}{}
	for _, full := range c.lru.Keys() {
		if _, ok := accessible[full]; !ok {
			return fmt.Errorf("%w: full hash %s has no partial-hash bucket pointing to it", ErrCacheCorrupt, full)
		}
		owned[c.EntryDir(full)] = struct{}{}
	}

	size, err := checkOwnedTree(c.root, owned)
	if err != nil {
		return err
	}

	if size != c.sizeUsed {
		return fmt.Errorf("%w: on-disk size %d does not match tracked size_used %d", ErrCacheCorrupt, size, c.sizeUsed)
	}
	if size > c.sizeLimit {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrCacheCorrupt, size, c.sizeLimit)
	}
	return nil
}

// checkOwnedTree walks root (which may not exist) and returns the total
// size of files found, failing if any file lies outside an owned leaf
// directory. The persisted metadata file lives directly in root rather
// than in any hashed entry directory, so it's excluded by name instead of
// by the owned-leaf-directory check the hashed entries use.
func checkOwnedTree(root string, owned map[string]struct{}) (int64, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var size int64
	var walk func(dir string, inCache bool) error
	walk = func(dir string, inCache bool) error {
		if _, ok := owned[dir]; ok {
			inCache = true
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		haveSubdir := false
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				haveSubdir = true
				if err := walk(full, inCache); err != nil {
					return err
				}
			} else if dir == root && e.Name() == metadataFilename {
				continue
			} else if inCache {
				info, err := e.Info()
				if err != nil {
					return err
				}
				size += info.Size()
			} else {
				return fmt.Errorf("%w: stray file %s outside any owned cache directory", ErrCacheCorrupt, full)
			}
		}
		_ = haveSubdir
		return nil
	}
	if err := walk(root, false); err != nil {
		return 0, err
	}
	return size, nil
}
