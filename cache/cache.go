// Package cache is the file cache (spec.md §4.4, component C4): a
// thread-safe, bounded LRU over on-disk artifacts downloaded from an
// object store, with per-key single-flight downloads, optional
// transparent decompression, and optional persistent reconstruction
// from a pre-existing directory. Adapted from the teacher's
// storage/cache.go CacheManager (budgeted, recency-tracked eviction)
// and storage/cachemap.go (per-entry last-used bookkeeping), retargeted
// from in-memory pointers to on-disk files.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/logging"
	"github.com/timmylev/dataclient-go/objectstore"
)

const defaultCeilingBytes = int64(20000) * 1024 * 1024 // DATA_CACHE_SIZE_MB default 20000
const defaultTTLDays = 90

// Config configures a Cache. Dir == "" selects ephemeral mode: a fresh
// temporary directory is created and removed on Close.
type Config struct {
	Dir               string
	CeilingBytes      int64
	TTLDays           int
	DecompressDefault bool
	Logger            logging.Logger
}

// Opts are the per-Get options (spec.md §4.4's closed Opts set).
type Opts struct {
	// Decompress overrides the cache's configured DATA_CACHE_DECOMPRESS
	// default for this call when non-nil; nil defers to the default.
	Decompress *bool
}

// Cache is the bounded LRU of on-disk artifacts.
type Cache struct {
	root      string
	ephemeral bool
	store     objectstore.ObjectStore
	log       logging.Logger

	decompressDefault bool

	mu        sync.Mutex // guards artifacts
	artifacts *artifactLRU
	keyLocks  *keyMutexLRU
}

// New constructs a Cache backed by store. If cfg.Dir is empty, a fresh
// temporary directory is used and deleted on Close; otherwise the
// directory is reconstructed per spec.md §4.4 invariant 5.
func New(cfg Config, store objectstore.ObjectStore) (*Cache, error) {
	ceiling := cfg.CeilingBytes
	if ceiling <= 0 {
		ceiling = defaultCeilingBytes
	}
	ttlDays := cfg.TTLDays
	if ttlDays <= 0 {
		ttlDays = defaultTTLDays
	}

	ephemeral := cfg.Dir == ""
	root := cfg.Dir
	if ephemeral {
		dir, err := os.MkdirTemp("", "dataclient-cache-*")
		if err != nil {
			return nil, err
		}
		root = dir
	} else if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	c := &Cache{
		root:              root,
		ephemeral:         ephemeral,
		store:             store,
		log:               logging.OrNop(cfg.Logger),
		decompressDefault: cfg.DecompressDefault,
		artifacts:         newArtifactLRU(ceiling),
		keyLocks:          newKeyMutexLRU(defaultKeyMutexCapacity),
	}

	if !ephemeral {
		if err := c.reconstruct(ttlDays); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close tears down an ephemeral cache's temporary directory. Persistent
// caches are left on disk.
func (c *Cache) Close() error {
	if c.ephemeral {
		return os.RemoveAll(c.root)
	}
	return c.writeIndexSnapshot()
}

// logicalKey strips the compression suffix when decompress is
// requested, so "k.csv.gz" (decompressed) and "k.csv" converge on the
// same cached artifact (spec.md §4.4 invariant 4).
func logicalKey(objectKey string, decompress bool) string {
	if !decompress {
		return objectKey
	}
	_, comp, err := codec.DetectFromFilename(objectKey)
	if err != nil || comp == codec.NoCompression {
		return objectKey
	}
	ext := "." + string(extLower(comp))
	return strings.TrimSuffix(objectKey, ext)
}

func extLower(c codec.Compression) string {
	switch c {
	case codec.Bzip2:
		return "bz2"
	case codec.Gzip:
		return "gz"
	case codec.LZ4:
		return "lz4"
	case codec.Zstd:
		return "zst"
	default:
		return ""
	}
}

// cacheKeyAndPath derives both the LRU's lookup key and the on-disk
// path from (bucket, logicalKey). The two are deliberately the same
// relative path (hashed-bucket dir + logical key), so a directory walk
// during persistent-cache reconstruction (persistent.go) can re-derive
// the exact key a live Get call would compute, without bucket names
// ever appearing in a path.
func cacheKeyAndPath(root, bucket, logicalKey string) (key, path string) {
	h := sha256.Sum256([]byte(bucket))
	rel := filepath.Join(hex.EncodeToString(h[:8]), filepath.FromSlash(logicalKey))
	return filepath.ToSlash(rel), filepath.Join(root, rel)
}

// Get implements the C4 algorithm of spec.md §4.4: compute the logical
// key, acquire the per-key mutex, check the LRU, and on a miss fetch
// (with retry), optionally decompress, write atomically, and register.
func (c *Cache) Get(ctx context.Context, bucket, objectKey string, opts Opts) (string, error) {
	decompress := c.decompressDefault
	if opts.Decompress != nil {
		decompress = *opts.Decompress
	}
	lk := logicalKey(objectKey, decompress)
	cacheKey, path := cacheKeyAndPath(c.root, bucket, lk)

	unlock := c.keyLocks.Lock(cacheKey)
	defer unlock()

	c.mu.Lock()
	if path, ok := c.artifacts.get(cacheKey); ok {
		c.mu.Unlock()
		return path, nil
	}
	c.mu.Unlock()

	data, err := fetchWithRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return c.store.Get(ctx, bucket, objectKey)
	})
	if err != nil {
		return "", err
	}

	if decompress {
		_, comp, derr := codec.DetectFromFilename(objectKey)
		if derr == nil && comp != codec.NoCompression {
			raw, derr2 := codec.DecompressBytes(data, comp)
			if derr2 != nil {
				return "", derr2
			}
			data = raw
		}
	}

	if err := writeAtomic(path, data); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.artifacts.put(cacheKey, path, int64(len(data)), func(evictedPath string) {
		_ = os.Remove(evictedPath)
	})
	c.mu.Unlock()

	return path, nil
}

// writeAtomic writes data to a temp file alongside path (named with a
// uuid suffix to avoid collisions under concurrent writers racing on
// eviction/recreation of the same key) and renames it into place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
