// Package config is the configuration loader (spec.md §6): a JSON file
// of recognized keys, where the four DATA_CACHE_* keys are overridable
// by same-named environment variables (additional-stores,
// disable-centralized and prioritize-additional-stores are read from the
// file only; no environment variable overrides them), producing an immutable snapshot that seeds the cache and the backend
// registry. Grounded on the teacher's storage/persistence-ceph.go
// per-backend json.RawMessage dispatch idiom, generalized here to a
// single flat config document instead of one-RawMessage-per-backend.
package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/errs"
)

const (
	envCacheDir        = "DATA_CACHE_DIR"
	envCacheSizeMB     = "DATA_CACHE_SIZE_MB"
	envCacheExpireDays = "DATA_CACHE_EXPIRE_AFTER_DAYS"
	envCacheDecompress = "DATA_CACHE_DECOMPRESS"
)

// additionalStoreEntry preserves insertion order for a JSON object with
// exactly one key (spec.md §4.5's "sequence of single-key mappings").
type additionalStoreEntry struct {
	ID  string
	URI string
}

func (e *additionalStoreEntry) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return errs.NewConfigError("malformed additional-stores entry: %v", err)
	}
	if len(m) != 1 {
		return errs.NewConfigError("additional-stores entry must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		e.ID, e.URI = k, v
	}
	return nil
}

// fileDocument is the on-disk JSON shape; unrecognized keys are ignored
// and are not retained in the Snapshot.
type fileDocument struct {
	AdditionalStores           []additionalStoreEntry `json:"additional-stores"`
	DisableCentralized         *bool                  `json:"disable-centralized"`
	PrioritizeAdditionalStores *bool                  `json:"prioritize-additional-stores"`
	CacheDir                   *string                `json:"DATA_CACHE_DIR"`
	CacheSizeMB                *int64                 `json:"DATA_CACHE_SIZE_MB"`
	CacheExpireAfterDays       *int                   `json:"DATA_CACHE_EXPIRE_AFTER_DAYS"`
	CacheDecompress            *bool                   `json:"DATA_CACHE_DECOMPRESS"`
}

// Snapshot is an immutable configuration load (spec.md §5: "The
// configuration snapshot is immutable after load; reload() replaces the
// snapshot atomically and drops the backend registry.").
type Snapshot struct {
	AdditionalStores           []backend.IDURI
	DisableCentralized         bool
	PrioritizeAdditionalStores bool

	CacheDir             string
	CacheSizeMB          int64
	CacheExpireAfterDays int
	CacheDecompress      bool
}

func defaults() Snapshot {
	return Snapshot{
		CacheSizeMB:          20000,
		CacheExpireAfterDays: 90,
		CacheDecompress:      true,
	}
}

// Load reads path (if non-empty and present) as JSON, then applies
// environment variable overrides, producing a Snapshot. A missing path
// is not an error - it yields pure defaults plus env overrides.
func Load(path string) (Snapshot, error) {
	snap := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Snapshot{}, errs.NewConfigError("reading config file %q: %v", path, err)
			}
		} else {
			var doc fileDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return Snapshot{}, errs.NewConfigError("parsing config file %q: %v", path, err)
			}
			applyDocument(&snap, doc)
		}
	}

	applyEnv(&snap)

	if snap.DisableCentralized && len(snap.AdditionalStores) == 0 {
		return Snapshot{}, errs.NewConfigError("disable-centralized requires a non-empty additional-stores list")
	}
	return snap, nil
}

func applyDocument(snap *Snapshot, doc fileDocument) {
	for _, e := range doc.AdditionalStores {
		snap.AdditionalStores = append(snap.AdditionalStores, backend.IDURI{ID: e.ID, URI: e.URI})
	}
	if doc.DisableCentralized != nil {
		snap.DisableCentralized = *doc.DisableCentralized
	}
	if doc.PrioritizeAdditionalStores != nil {
		snap.PrioritizeAdditionalStores = *doc.PrioritizeAdditionalStores
	}
	if doc.CacheDir != nil {
		snap.CacheDir = *doc.CacheDir
	}
	if doc.CacheSizeMB != nil {
		snap.CacheSizeMB = *doc.CacheSizeMB
	}
	if doc.CacheExpireAfterDays != nil {
		snap.CacheExpireAfterDays = *doc.CacheExpireAfterDays
	}
	if doc.CacheDecompress != nil {
		snap.CacheDecompress = *doc.CacheDecompress
	}
}

func applyEnv(snap *Snapshot) {
	if v, ok := os.LookupEnv(envCacheDir); ok {
		snap.CacheDir = v
	}
	if v, ok := os.LookupEnv(envCacheSizeMB); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.CacheSizeMB = n
		}
	}
	if v, ok := os.LookupEnv(envCacheExpireDays); ok {
		if n, err := strconv.Atoi(v); err == nil {
			snap.CacheExpireAfterDays = n
		}
	}
	if v, ok := os.LookupEnv(envCacheDecompress); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			snap.CacheDecompress = b
		}
	}
}

// NewRegistry composes a backend.Registry from this snapshot.
func (s Snapshot) NewRegistry() (*backend.Registry, error) {
	return backend.NewRegistry(s.AdditionalStores, s.DisableCentralized, s.PrioritizeAdditionalStores)
}
