// Package dataclient is a client library for a tabular dataset
// warehouse backed by an object store organized as immutable,
// partitioned, content-addressed files under per-dataset key prefixes.
// It exposes three operations against logically named datasets: List,
// Gather (range query), and Insert (append-merge-store), on top of a
// disciplined concurrent download pipeline, a bounded on-disk cache,
// and a partitioning/index scheme that keeps range queries to the
// minimum number of object fetches.
package dataclient

import (
	"sync"

	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/cache"
	"github.com/timmylev/dataclient-go/config"
	"github.com/timmylev/dataclient-go/logging"
	"github.com/timmylev/dataclient-go/metadata"
	"github.com/timmylev/dataclient-go/objectstore"
)

const (
	defaultGatherWorkers = 8
	defaultInsertWorkers = 8
	listingPruneThreshold = 8
)

// Config constructs a Client. ObjectStore is the only required field.
// Zero GatherWorkers/InsertWorkers default to 8, and a zero
// Snapshot.CacheSizeMB or CacheExpireAfterDays falls back to the cache's
// defaults (20000 MB, 90 days); Snapshot.CacheDecompress is used as
// given, so a zero Snapshot disables decompression. config.Load yields a
// Snapshot with every default filled in.
type Config struct {
	Snapshot      config.Snapshot
	ObjectStore   objectstore.ObjectStore
	Logger        logging.Logger
	GatherWorkers int
	InsertWorkers int
}

// Client is the process-wide handle tying the four core subsystems
// together: the backend registry (C5), the file cache (C4), and the
// metadata store (C3) built on it. Gather (C6) and Insert (C7) are
// methods on Client so they share these resources, per spec.md §9's
// design note to keep process-wide state explicit and injectable
// rather than hidden behind package-level globals.
type Client struct {
	objectStore objectstore.ObjectStore
	cache       *cache.Cache
	metadata    *metadata.Store
	log         logging.Logger

	gatherWorkers     int
	insertWorkers     int
	decompressDefault bool

	mu       sync.RWMutex
	registry *backend.Registry
}

// New constructs a Client. The backend registry, file cache, and
// metadata store are all built eagerly here (spec.md §9 allows lazy
// construction, but a library entry point is a fine place to surface
// configuration errors immediately rather than on first use).
func New(cfg Config) (*Client, error) {
	if cfg.ObjectStore == nil {
		panic("dataclient: Config.ObjectStore is required")
	}

	reg, err := cfg.Snapshot.NewRegistry()
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Config{
		Dir:               cfg.Snapshot.CacheDir,
		CeilingBytes:      cfg.Snapshot.CacheSizeMB * 1024 * 1024,
		TTLDays:           cfg.Snapshot.CacheExpireAfterDays,
		DecompressDefault: cfg.Snapshot.CacheDecompress,
		Logger:            cfg.Logger,
	}, cfg.ObjectStore)
	if err != nil {
		return nil, err
	}

	gatherWorkers := cfg.GatherWorkers
	if gatherWorkers <= 0 {
		gatherWorkers = defaultGatherWorkers
	}
	insertWorkers := cfg.InsertWorkers
	if insertWorkers <= 0 {
		insertWorkers = defaultInsertWorkers
	}

	return &Client{
		objectStore:       cfg.ObjectStore,
		cache:             c,
		metadata:          metadata.New(c, cfg.ObjectStore),
		log:               logging.OrNop(cfg.Logger),
		gatherWorkers:     gatherWorkers,
		insertWorkers:     insertWorkers,
		decompressDefault: cfg.Snapshot.CacheDecompress,
		registry:          reg,
	}, nil
}

// Close tears down the file cache (removing an ephemeral directory, or
// writing the persistent index snapshot).
func (cl *Client) Close() error {
	return cl.cache.Close()
}

// Reload replaces the backend registry snapshot atomically, per spec.md
// §5: "reload() replaces the snapshot atomically and drops the backend
// registry." Existing Store values already in flight are unaffected;
// only subsequent lookups see the new registry.
func (cl *Client) Reload(snap config.Snapshot) error {
	reg, err := snap.NewRegistry()
	if err != nil {
		return err
	}
	cl.mu.Lock()
	cl.registry = reg
	cl.mu.Unlock()
	return nil
}

func (cl *Client) registrySnapshot() *backend.Registry {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.registry
}

// resolveStore implements the store-resolution half of spec.md §4.6
// step 1 and §4.7: an explicit storeID is looked up directly (surfacing
// ConfigError verbatim); an empty storeID means "try every registered
// store in order", which callers drive themselves by inspecting
// registrySnapshot().Ordered() since the fallback behavior differs
// between Gather (first non-empty result) and List (union of results).
func (cl *Client) resolveStore(storeID string) (backend.Store, error) {
	return cl.registrySnapshot().Lookup(storeID)
}
