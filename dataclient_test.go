package dataclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/config"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/objectstore"
	"github.com/timmylev/dataclient-go/table"
)

const testStoreURI = "ffs:s3://test-bucket/p"

// memStore is an in-memory objectstore.ObjectStore for exercising the
// Gather/Insert pipelines without a real backend.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ErrNoSuchKey
	}
	return data, nil
}

func (s *memStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memStore) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		b, rest, ok := splitBucket(k)
		if !ok || b != bucket {
			continue
		}
		if hasPrefix(rest, prefix) {
			out = append(out, rest)
		}
	}
	return out, nil
}

func (s *memStore) ListPrefixes(ctx context.Context, bucket, parent, delimiter string) ([]string, error) {
	return nil, nil
}

func splitBucket(k string) (bucket, rest string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:], true
		}
	}
	return "", "", false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func newTestClient(t *testing.T, store objectstore.ObjectStore) *Client {
	t.Helper()
	cl, err := New(Config{
		Snapshot:    config.Snapshot{CacheSizeMB: 100, CacheExpireAfterDays: 90, CacheDecompress: true},
		ObjectStore: store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func tsColumn(name string, times ...time.Time) *table.Column {
	vals := make([]any, len(times))
	for i, t := range times {
		vals[i] = t
	}
	return &table.Column{Name: name, Type: table.Simple(table.ZonedDateTime), Values: vals}
}

// TestInsertGatherRoundTrip_DedupsAndSorts is seed scenario S5.
func TestInsertGatherRoundTrip_DedupsAndSorts(t *testing.T) {
	store := newMemStore()
	cl := newTestClient(t, store)
	ctx := context.Background()

	rows := []time.Time{
		utc(2020, 1, 1, 1),
		utc(2020, 1, 1, 2),
		utc(2020, 1, 2, 1),
		utc(2020, 1, 1, 1),
	}
	col := tsColumn("ts", rows...)
	in, err := table.New([]string{"ts"}, map[string]*table.Column{"ts": col})
	require.NoError(t, err)

	idx := descriptor.TimeSeriesIndex("ts", descriptor.Day)
	require.NoError(t, cl.Insert(ctx, "coll", "ds", testStoreURI, in, InsertOpts{Index: &idx}))

	res, err := cl.Gather(ctx, "coll", "ds", utc(2020, 1, 1, 0), utc(2020, 1, 2, 23), GatherOpts{StoreID: testStoreURI})
	require.NoError(t, err)
	require.Equal(t, 3, res.Table.NumRows())

	gotCol, ok := res.Table.Column("ts")
	require.True(t, ok)
	want := []time.Time{utc(2020, 1, 1, 1), utc(2020, 1, 1, 2), utc(2020, 1, 2, 1)}
	for i, w := range want {
		got, ok := gotCol.Values[i].(time.Time)
		require.True(t, ok)
		require.True(t, got.Equal(w), "row %d: got %v want %v", i, got, w)
	}
}

// TestInsertTwice_MergesAcrossCalls is seed scenario 7 (universal
// invariant 7): insert(t1) then insert(t2) then gather returns
// sort+dedup(concat(t1,t2)).
func TestInsertTwice_MergesAcrossCalls(t *testing.T) {
	store := newMemStore()
	cl := newTestClient(t, store)
	ctx := context.Background()

	idx := descriptor.TimeSeriesIndex("ts", descriptor.Day)
	mk := func(times ...time.Time) *table.Table {
		col := tsColumn("ts", times...)
		tb, err := table.New([]string{"ts"}, map[string]*table.Column{"ts": col})
		require.NoError(t, err)
		return tb
	}

	require.NoError(t, cl.Insert(ctx, "coll", "ds2", testStoreURI, mk(utc(2020, 1, 1, 1)), InsertOpts{Index: &idx}))
	require.NoError(t, cl.Insert(ctx, "coll", "ds2", testStoreURI, mk(utc(2020, 1, 1, 2), utc(2020, 1, 1, 1)), InsertOpts{Index: &idx}))

	res, err := cl.Gather(ctx, "coll", "ds2", utc(2020, 1, 1, 0), utc(2020, 1, 1, 23), GatherOpts{StoreID: testStoreURI})
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.NumRows())
}

// TestInsert_EmptyTableIsSchemaError covers the boundary behavior named
// in spec.md §8.
func TestInsert_EmptyTableIsSchemaError(t *testing.T) {
	store := newMemStore()
	cl := newTestClient(t, store)
	ctx := context.Background()

	empty := table.Empty([]string{"ts"}, map[string]table.ColumnType{"ts": table.Simple(table.ZonedDateTime)})
	err := cl.Insert(ctx, "coll", "ds3", testStoreURI, empty, InsertOpts{})
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

// TestInsert_NonTimestampIndexColumnIsSchemaError covers the boundary
// behavior named in spec.md §8.
func TestInsert_NonTimestampIndexColumnIsSchemaError(t *testing.T) {
	store := newMemStore()
	cl := newTestClient(t, store)
	ctx := context.Background()

	col := &table.Column{Name: "ts", Type: table.Simple(table.String), Values: []any{"not-a-timestamp"}}
	in, err := table.New([]string{"ts"}, map[string]*table.Column{"ts": col})
	require.NoError(t, err)

	idx := descriptor.TimeSeriesIndex("ts", descriptor.Day)
	err = cl.Insert(ctx, "coll", "ds4", testStoreURI, in, InsertOpts{Index: &idx})
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

