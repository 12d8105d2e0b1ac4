package dataclient

import (
	"context"
	"sync"
	"time"

	"github.com/jtolds/gls"
	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/objectstore"
	"github.com/timmylev/dataclient-go/partition"
	"github.com/timmylev/dataclient-go/table"
)

// InsertOpts carries the optional arguments to Insert (spec.md §4.7).
// ColumnTypes, Index, FileFormat and Compression are only consulted on
// the first insert of a dataset; on an existing dataset the stored
// descriptor wins, ColumnTypes is ignored with a warning, and Index,
// FileFormat and Compression are ignored silently. Details is merged
// into the stored details on every insert, and Workers applies to every
// call.
type InsertOpts struct {
	Details     map[string]string
	ColumnTypes map[string]table.ColumnType
	Index       *descriptor.IndexSpec
	FileFormat  *codec.Format
	Compression *codec.Compression
	Workers     int
}

// Insert runs the partition-and-merge pipeline (component C7) for t
// against (collection, dataset) in storeID, per spec.md §4.7. storeID
// must resolve to a writable archive.
func (cl *Client) Insert(ctx context.Context, collection, dataset, storeID string, t *table.Table, opts InsertOpts) error {
	if t == nil || t.NumRows() == 0 {
		return errs.NewSchemaError("insert requires a non-empty input table")
	}

	st, err := cl.resolveStore(storeID)
	if err != nil {
		return err
	}
	if st.Kind != backend.Writable {
		return errs.NewSchemaError("insert is only supported against writable archives, store %q is read-only", st.ID)
	}

	desc, err := cl.ensureDescriptor(ctx, st, collection, dataset, t, opts)
	if err != nil {
		return err
	}

	groups, err := partition.PartitionRows(t, desc)
	if err != nil {
		return err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cl.insertWorkers
	}
	return cl.mergePartitions(ctx, st, desc, groups, workers)
}

// ensureDescriptor implements spec.md §4.7.1: validate-or-create the
// canonical descriptor for this dataset.
func (cl *Client) ensureDescriptor(ctx context.Context, st backend.Store, collection, dataset string, t *table.Table, opts InsertOpts) (*descriptor.DatasetDescriptor, error) {
	existing, err := cl.metadata.GetDescriptor(ctx, st, collection, dataset)
	if err != nil {
		if _, ok := err.(*errs.MissingDataError); ok {
			return cl.createDescriptor(ctx, st, collection, dataset, t, opts)
		}
		return nil, err
	}
	if err := validateAgainstDescriptor(t, existing); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing.ColumnOrder))
	for _, name := range existing.ColumnOrder {
		known[name] = true
	}
	for _, name := range t.Columns {
		if !known[name] {
			cl.log.Warnf("insert %s/%s: column %q is not in the stored column order and is dropped on write", collection, dataset, name)
		}
	}
	if opts.ColumnTypes != nil {
		cl.log.Warnf("insert %s/%s: column_types ignored, schema is locked by the existing descriptor", collection, dataset)
	}

	merged, changed := mergeDetails(existing.Details, opts.Details)
	stale := time.Since(existing.LastModified) > 24*time.Hour
	if changed || stale {
		existing.Details = merged
		existing.LastModified = time.Now()
		if err := cl.metadata.PutDescriptor(ctx, st, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func validateAgainstDescriptor(t *table.Table, desc *descriptor.DatasetDescriptor) error {
	for _, name := range desc.ColumnOrder {
		if !t.HasColumn(name) {
			return errs.NewSchemaError("column %q required by the existing descriptor is missing from the input", name)
		}
	}
	for name, declared := range desc.ColumnTypes {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		for _, v := range col.Values {
			if v == nil {
				continue
			}
			if !table.IsSubtype(inferKind(v), declared) {
				return errs.NewSchemaError("column %q: value %v is not a subtype of declared type %s", name, v, declared)
			}
		}
	}
	return nil
}

// mergeDetails element-wise merges incoming over existing, reporting
// whether the result differs from existing.
func mergeDetails(existing, incoming map[string]string) (map[string]string, bool) {
	if incoming == nil {
		return existing, false
	}
	merged := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	changed := false
	for k, v := range incoming {
		if existing[k] != v {
			changed = true
		}
		merged[k] = v
	}
	return merged, changed
}

func (cl *Client) createDescriptor(ctx context.Context, st backend.Store, collection, dataset string, t *table.Table, opts InsertOpts) (*descriptor.DatasetDescriptor, error) {
	columnTypes := make(map[string]table.ColumnType, len(t.Columns))
	for _, name := range t.Columns {
		col, _ := t.Column(name)
		columnTypes[name] = table.SanitizeElementType(inferColumnKind(col.Values))
	}
	for name, override := range opts.ColumnTypes {
		if !t.HasColumn(name) {
			cl.log.Warnf("insert %s/%s: column_types entry %q not present in input, ignored", collection, dataset, name)
			continue
		}
		columnTypes[name] = override
	}

	index := descriptor.TimeSeriesIndex("target_start", descriptor.Day)
	if opts.Index != nil {
		index = *opts.Index
	}
	if !t.HasColumn(index.Key) {
		return nil, errs.NewSchemaError("index column %q not present in input", index.Key)
	}
	if idxType, ok := columnTypes[index.Key]; !ok || idxType.Kind != table.ZonedDateTime {
		return nil, errs.NewSchemaError("index column %q must be a zoned timestamp", index.Key)
	}

	format := codec.CSV
	if opts.FileFormat != nil {
		format = *opts.FileFormat
	}
	compression := codec.Gzip
	if opts.Compression != nil {
		compression = *opts.Compression
	}

	desc := &descriptor.DatasetDescriptor{
		Collection:   collection,
		Dataset:      dataset,
		ColumnOrder:  append([]string(nil), t.Columns...),
		ColumnTypes:  columnTypes,
		Timezone:     "UTC",
		Index:        index,
		Format:       format,
		Compression:  compression,
		LastModified: time.Now(),
		Details:      opts.Details,
	}

	if err := validateAgainstDescriptor(t, desc); err != nil {
		return nil, err
	}
	if err := cl.metadata.PutDescriptor(ctx, st, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func inferColumnKind(values []any) table.ColumnType {
	for _, v := range values {
		if v != nil {
			return inferKind(v)
		}
	}
	return table.Simple(table.Missing)
}

// mergePartitions runs the read-modify-write merge (spec.md §4.7.2) for
// every partition on a bounded worker pool, grounded on the same
// gls.Go fixed-worker-over-channel shape used by the gather pipeline.
// Any per-partition failure fails the whole insert; already-committed
// partitions remain (spec.md §4.7.3).
func (cl *Client) mergePartitions(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor, groups []partition.Group, workers int) error {
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
				if err := cl.mergeOnePartition(cctx, st, desc, groups[idx]); err != nil {
					fail(err)
				}
			}
		})
	}

	for i := range groups {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return firstErr
}

func (cl *Client) mergeOnePartition(ctx context.Context, st backend.Store, desc *descriptor.DatasetDescriptor, g partition.Group) error {
	key := partition.ObjectKey(st.Prefix, desc, g.PartitionUnix)

	incoming := encodeZonedTimestamps(g.Rows.Clone(), desc)
	incoming, err := incoming.Project(desc.ColumnOrder)
	if err != nil {
		return err
	}

	existingData, err := cl.objectStore.Get(ctx, st.Bucket, key)
	var existing *table.Table
	switch {
	case err == nil:
		existing, err = codec.DecodeBytes(existingData, desc.Format, desc.Compression)
		if err != nil {
			return err
		}
		existing, err = existing.Project(desc.ColumnOrder)
		if err != nil {
			return err
		}
	case err == objectstore.ErrNoSuchKey:
		existing = table.Empty(desc.ColumnOrder, desc.ColumnTypes)
	default:
		return err
	}

	merged, err := table.Concat(existing, incoming)
	if err != nil {
		return err
	}
	merged, err = merged.SortAndDedup(desc.ColumnOrder)
	if err != nil {
		return err
	}

	encoded, err := codec.EncodeBytes(merged, desc.Format, desc.Compression)
	if err != nil {
		return err
	}
	return cl.objectStore.Put(ctx, st.Bucket, key, encoded)
}

// encodeZonedTimestamps replaces every zoned-timestamp column's values
// with Unix-second integers (spec.md §4.7.2 step 2), leaving everything
// else untouched.
func encodeZonedTimestamps(t *table.Table, desc *descriptor.DatasetDescriptor) *table.Table {
	for name, typ := range desc.ColumnTypes {
		if typ.Kind != table.ZonedDateTime {
			continue
		}
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		out := make([]any, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			unix, ok := partition.ToUnixSeconds(v)
			if !ok {
				out[i] = v
				continue
			}
			out[i] = unix
		}
		t = t.WithColumnValues(name, out, typ)
	}
	return t
}
