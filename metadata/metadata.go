// Package metadata is the metadata store (spec.md §4.3, component C3):
// get/put of the per-dataset JSON descriptor co-located with a
// dataset's data objects, read through the file cache, written
// directly to the object store.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/cache"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/objectstore"
)

const metadataFilename = "METADATA.json"

// Store gets and puts DatasetDescriptors for a resolved backend.Store.
type Store struct {
	cache       *cache.Cache
	objectStore objectstore.ObjectStore
}

func New(c *cache.Cache, os objectstore.ObjectStore) *Store {
	return &Store{cache: c, objectStore: os}
}

func descriptorKey(st backend.Store, collection, dataset string) string {
	prefix := st.Prefix
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s", collection, dataset, metadataFilename)
	}
	return fmt.Sprintf("%s/%s/%s/%s", prefix, collection, dataset, metadataFilename)
}

// GetDescriptor fetches and deserializes the descriptor for (collection,
// dataset) in st, through the file cache. For a read-only archive, the
// variant's pinned format/compression/partition override whatever is
// (or isn't) stored, since those archives don't store that part of the
// descriptor themselves (spec.md §4.3).
func (s *Store) GetDescriptor(ctx context.Context, st backend.Store, collection, dataset string) (*descriptor.DatasetDescriptor, error) {
	key := descriptorKey(st, collection, dataset)
	// METADATA.json is never stored compressed, regardless of
	// DATA_CACHE_DECOMPRESS: force the override off rather than
	// deferring to the cache's configured default.
	noDecompress := false
	path, err := s.cache.Get(ctx, st.Bucket, key, cache.Opts{Decompress: &noDecompress})
	if err != nil {
		if err == objectstore.ErrNoSuchKey {
			return nil, errs.NewMissingDataError("no descriptor for %s/%s in store %q", collection, dataset, st.ID)
		}
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d descriptor.DatasetDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	d.Collection = collection
	d.Dataset = dataset

	if st.Kind == backend.ReadOnly {
		d.Format = st.Format
		d.Compression = st.Compression
		d.Index.Type = "TimeSeriesIndex"
		d.Index.PartitionSize = st.Partition
	}

	return &d, nil
}

// PutDescriptor serializes and puts desc under its fixed key, bypassing
// the cache (spec.md §4.3: "does not touch the cache").
func (s *Store) PutDescriptor(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor) error {
	key := descriptorKey(st, desc.Collection, desc.Dataset)
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return s.objectStore.Put(ctx, st.Bucket, key, data)
}
