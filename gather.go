package dataclient

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jtolds/gls"
	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/cache"
	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/objectstore"
	"github.com/timmylev/dataclient-go/partition"
	"github.com/timmylev/dataclient-go/table"
)

// GatherOpts carries the optional arguments to Gather (spec.md §4.6).
type GatherOpts struct {
	// StoreID pins the call to one store; empty means "try every
	// registered store in order, return the first non-empty result".
	StoreID string
	// Cutoff selects the "latest release up to cutoff" row per
	// superkey group (spec.md §4.6.1); only valid against a read-only
	// archive.
	Cutoff *time.Time
	// Filter is an additional user predicate applied after the range
	// filter, returning the subset of row indices (into the
	// already-range-filtered table) to keep.
	Filter func(*table.Table) ([]int, error)
	// Workers overrides the gather worker pool size; <=0 uses the
	// client default (spec.md §4.6 default 8).
	Workers int
}

// GatherResult pairs the concatenated table with the descriptor it was
// read against (spec.md §4.6 step 6: "attach the DatasetDescriptor to
// the returned table as metadata if the host runtime supports it;
// otherwise return a pair" - Go's table.Table carries no metadata slot,
// so this is always a pair).
type GatherResult struct {
	Table      *table.Table
	Descriptor *descriptor.DatasetDescriptor
}

// Gather runs the range-query pipeline (component C6) against
// [start, stop], per spec.md §4.6.
func (cl *Client) Gather(ctx context.Context, collection, dataset string, start, stop time.Time, opts GatherOpts) (*GatherResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = cl.gatherWorkers
	}

	explicit := opts.StoreID != ""
	var stores []backend.Store
	if explicit {
		st, err := cl.resolveStore(opts.StoreID)
		if err != nil {
			return nil, err
		}
		stores = []backend.Store{st}
	} else {
		stores = cl.registrySnapshot().Ordered()
	}

	var lastErr error
	for _, st := range stores {
		if opts.Cutoff != nil && st.Kind == backend.Writable {
			if explicit {
				return nil, errs.NewArgumentError("cutoff is not supported against writable archive store %q", st.ID)
			}
			continue
		}

		desc, err := cl.metadata.GetDescriptor(ctx, st, collection, dataset)
		if err != nil {
			if _, ok := err.(*errs.MissingDataError); ok {
				lastErr = err
				if explicit {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		t, err := cl.gatherFromStore(ctx, st, desc, start, stop, opts, workers)
		if err != nil {
			return nil, err
		}
		if explicit || t.NumRows() > 0 {
			return &GatherResult{Table: t, Descriptor: desc}, nil
		}
		lastErr = errs.NewMissingDataError("no rows intersected range in store %q", st.ID)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errs.NewMissingDataError("no rows found for %s/%s in any store", collection, dataset)
}

// gatherFromStore implements spec.md §4.6 steps 3-5 for a single
// resolved store: enumerate candidate keys, prune via listing when the
// candidate count exceeds the worker budget, fetch-decode-filter each
// surviving key on a bounded worker pool, then concatenate and
// post-process.
func (cl *Client) gatherFromStore(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor, start, stop time.Time, opts GatherOpts, workers int) (*table.Table, error) {
	keys, err := partition.KeysForRange(st.Prefix, start, stop, desc)
	if err != nil {
		return nil, err
	}

	if len(keys) > listingPruneThreshold {
		keys, err = cl.pruneByListing(ctx, st, keys)
		if err != nil {
			return nil, err
		}
	}

	parts, err := cl.fetchDecodeFilter(ctx, st, desc, keys, start, stop, opts, workers)
	if err != nil {
		return nil, err
	}

	merged, err := table.Concat(parts...)
	if err != nil {
		return nil, err
	}

	return postProcess(merged, st, desc)
}

// pruneByListing drops candidate keys that don't exist, per spec.md
// §4.6 step 3, by listing each year= prefix's children once and
// intersecting with the candidate set, rather than issuing one HEAD-like
// fetch per candidate.
func (cl *Client) pruneByListing(ctx context.Context, st backend.Store, keys []partition.Key) ([]partition.Key, error) {
	yearPrefixes := map[string]bool{}
	for _, k := range keys {
		yearPrefixes[yearDir(k.ObjectKey)] = true
	}

	existing := map[string]bool{}
	for yp := range yearPrefixes {
		full, err := cl.objectStore.ListKeys(ctx, st.Bucket, yp)
		if err != nil {
			return nil, err
		}
		for _, k := range full {
			existing[k] = true
		}
	}

	kept := make([]partition.Key, 0, len(keys))
	for _, k := range keys {
		if existing[k.ObjectKey] {
			kept = append(kept, k)
		}
	}
	return kept, nil
}

func yearDir(objectKey string) string {
	for i := len(objectKey) - 1; i >= 0; i-- {
		if objectKey[i] == '/' {
			return objectKey[:i+1]
		}
	}
	return objectKey
}

// fetchDecodeFilter runs the per-key pipeline of spec.md §4.6 step 4 on
// a bounded worker pool, grounded on the teacher's
// storage/compute.go fixed-size gls.Go worker pool pulling jobs off a
// channel. A workers value of 1 processes keys strictly in order
// (spec.md's "clearer error propagation" requirement), since there is
// then only ever one worker draining the channel.
func (cl *Client) fetchDecodeFilter(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor, keys []partition.Key, start, stop time.Time, opts GatherOpts, workers int) ([]*table.Table, error) {
	results := make([]*table.Table, len(keys))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		gls.Go(func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-cctx.Done():
					continue
				default:
				}
				t, err := cl.fetchDecodeFilterOne(cctx, st, desc, keys[idx], start, stop, opts)
				if err != nil {
					if err == objectstore.ErrNoSuchKey {
						cl.log.Debugf("gather: no such key %s, skipping", keys[idx].ObjectKey)
						continue
					}
					fail(err)
					continue
				}
				results[idx] = t
			}
		})
	}

	for i := range keys {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	kept := make([]*table.Table, 0, len(keys))
	for _, t := range results {
		if t != nil && t.NumRows() > 0 {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func (cl *Client) fetchDecodeFilterOne(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor, key partition.Key, start, stop time.Time, opts GatherOpts) (*table.Table, error) {
	// No per-call override: honor the cache's configured
	// DATA_CACHE_DECOMPRESS default (spec.md §4.6 step 4, §6).
	path, err := cl.cache.Get(ctx, st.Bucket, key.ObjectKey, cache.Opts{})
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// When DATA_CACHE_DECOMPRESS is enabled the cache already stripped
	// compression on ingest, so the bytes on disk are raw; otherwise they
	// are still in desc.Compression and the decoder must strip it.
	decodeCompression := codec.NoCompression
	if !cl.decompressDefault {
		decodeCompression = desc.Compression
	}
	decoded, err := codec.DecodeBytes(data, desc.Format, decodeCompression)
	if err != nil {
		return nil, err
	}

	filtered, err := partition.FilterTable(decoded, start, stop, desc, key.PartitionUnix)
	if err != nil {
		return nil, err
	}

	if opts.Filter != nil {
		idx, err := opts.Filter(filtered)
		if err != nil {
			return nil, err
		}
		filtered = filtered.Select(idx)
	}

	if opts.Cutoff != nil && st.Kind == backend.ReadOnly {
		idx, err := latestReleaseUpToCutoff(filtered, desc, *opts.Cutoff)
		if err != nil {
			return nil, err
		}
		filtered = filtered.Select(idx)
	}

	return filtered, nil
}
