package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/objectstore"
)

// countingStore wraps an in-memory map and counts Get calls per key, so
// tests can assert single-flight behavior.
type countingStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{objects: map[string][]byte{}, calls: map[string]int{}}
}

func (s *countingStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	s.calls[bucket+"/"+key]++
	data, ok := s.objects[bucket+"/"+key]
	s.mu.Unlock()
	if !ok {
		return nil, objectstore.ErrNoSuchKey
	}
	return data, nil
}

func (s *countingStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *countingStore) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	return nil, nil
}

func (s *countingStore) ListPrefixes(ctx context.Context, bucket, parent, delimiter string) ([]string, error) {
	return nil, nil
}

func (s *countingStore) callCount(bucket, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[bucket+"/"+key]
}

func boolPtr(v bool) *bool { return &v }

func TestGet_SingleFlightUnderConcurrentFetch(t *testing.T) {
	store := newCountingStore()
	require.NoError(t, store.Put(context.Background(), "b", "k.csv", []byte("a,b\n1,2\n")))

	c, err := New(Config{}, store)
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	paths := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Get(context.Background(), "b", "k.csv", Opts{})
			require.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, store.callCount("b", "k.csv"))
	for _, p := range paths {
		require.Equal(t, paths[0], p)
	}
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))
}

func TestGet_MissingKeyPropagatesImmediately(t *testing.T) {
	store := newCountingStore()
	c, err := New(Config{}, store)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(context.Background(), "b", "missing.csv", Opts{})
	require.ErrorIs(t, err, objectstore.ErrNoSuchKey)
	require.Equal(t, 1, store.callCount("b", "missing.csv"))
}

func TestGet_EvictsOldestWhenOverCeiling(t *testing.T) {
	store := newCountingStore()
	require.NoError(t, store.Put(context.Background(), "b", "a.csv", bytes.Repeat([]byte("x"), 10)))
	require.NoError(t, store.Put(context.Background(), "b", "b.csv", bytes.Repeat([]byte("y"), 10)))

	c, err := New(Config{CeilingBytes: 15}, store)
	require.NoError(t, err)
	defer c.Close()

	pathA, err := c.Get(context.Background(), "b", "a.csv", Opts{})
	require.NoError(t, err)
	_, err = os.Stat(pathA)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "b", "b.csv", Opts{})
	require.NoError(t, err)

	_, err = os.Stat(pathA)
	require.True(t, os.IsNotExist(err), "oldest artifact should have been evicted from disk")
	require.LessOrEqual(t, c.artifacts.totalSize(), int64(15))
}

func TestGet_DecompressesAndSharesLogicalKey(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	store := newCountingStore()
	require.NoError(t, store.Put(context.Background(), "b", "k.csv.gz", buf.Bytes()))

	c, err := New(Config{}, store)
	require.NoError(t, err)
	defer c.Close()

	path, err := c.Get(context.Background(), "b", "k.csv.gz", Opts{Decompress: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, "k.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))

	again, err := c.Get(context.Background(), "b", "k.csv", Opts{Decompress: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, path, again)
	require.Equal(t, 0, store.callCount("b", "k.csv"))
}

func TestGet_HonorsConfiguredDecompressDefault(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	store := newCountingStore()
	require.NoError(t, store.Put(context.Background(), "b", "k.csv.gz", buf.Bytes()))

	c, err := New(Config{DecompressDefault: true}, store)
	require.NoError(t, err)
	defer c.Close()

	path, err := c.Get(context.Background(), "b", "k.csv.gz", Opts{})
	require.NoError(t, err)
	require.Equal(t, "k.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))
}

func TestGet_ExplicitOverrideBeatsConfiguredDefault(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	store := newCountingStore()
	require.NoError(t, store.Put(context.Background(), "b", "k.csv.gz", buf.Bytes()))

	c, err := New(Config{DecompressDefault: true}, store)
	require.NoError(t, err)
	defer c.Close()

	path, err := c.Get(context.Background(), "b", "k.csv.gz", Opts{Decompress: boolPtr(false)})
	require.NoError(t, err)
	require.Equal(t, "k.csv.gz", filepath.Base(path))
}

func TestNew_PersistentReconstructionPrunesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	store := newCountingStore()

	c, err := New(Config{Dir: dir}, store)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "b", "fresh.csv", []byte("1")))
	require.NoError(t, store.Put(context.Background(), "b", "stale.csv", []byte("2")))

	freshPath, err := c.Get(context.Background(), "b", "fresh.csv", Opts{})
	require.NoError(t, err)
	stalePath, err := c.Get(context.Background(), "b", "stale.csv", Opts{})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	old := time.Now().AddDate(0, 0, -100)
	require.NoError(t, os.Chtimes(stalePath, old, old))

	c2, err := New(Config{Dir: dir, TTLDays: 90}, store)
	require.NoError(t, err)
	defer c2.Close()

	_, err = os.Stat(stalePath)
	require.True(t, os.IsNotExist(err), "stale file should be pruned on reconstruction")
	_, err = os.Stat(freshPath)
	require.NoError(t, err)

	require.Equal(t, 1, store.callCount("b", "fresh.csv"))
}

// transientErr is an adapter error the retry loop classifies as transient.
type transientErr struct{}

func (transientErr) Error() string   { return "connection reset" }
func (transientErr) Transient() bool { return true }

// transientStore fails every Get with transientErr, counting attempts.
type transientStore struct{ *countingStore }

func (s transientStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	s.calls[bucket+"/"+key]++
	s.mu.Unlock()
	return nil, transientErr{}
}

func TestGet_ContextCancellationStopsRetryLoop(t *testing.T) {
	store := transientStore{newCountingStore()}
	c, err := New(Config{}, store)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Get(ctx, "b", "flaky.csv", Opts{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, store.callCount("b", "flaky.csv"))
}

func TestKeyMutexLRU_BoundedCapacityStillSerializes(t *testing.T) {
	m := newKeyMutexLRU(2)
	var counter, inside, overlaps int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("same-key")
			defer unlock()
			if atomic.AddInt64(&inside, 1) != 1 {
				atomic.AddInt64(&overlaps, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, 1)
			atomic.AddInt64(&inside, -1)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(10), counter)
	require.Equal(t, int64(0), overlaps)
}
