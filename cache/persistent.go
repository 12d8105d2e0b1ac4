package cache

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

const indexSnapshotName = ".dataclient-index.xz"

// fileRecord is one file discovered while walking a persistent cache
// directory.
type fileRecord struct {
	relKey  string // bucket-hash/... path relative to root, slash form
	path    string
	size    int64
	modTime time.Time
}

// reconstruct rebuilds the in-memory LRU from an existing cache
// directory, per spec.md §4.4 invariant 5: files older than the TTL
// are deleted outright, survivors are registered in ascending
// modification-time order so recency is preserved.
func (c *Cache) reconstruct(ttlDays int) error {
	records, err := c.loadIndexSnapshot()
	if err != nil || records == nil {
		records, err = c.walkDirectory()
		if err != nil {
			return err
		}
	}

	cutoff := time.Now().AddDate(0, 0, -ttlDays)
	sort.Slice(records, func(i, j int) bool { return records[i].modTime.Before(records[j].modTime) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if r.modTime.Before(cutoff) {
			_ = os.Remove(r.path)
			continue
		}
		c.artifacts.registerExisting(r.relKey, r.path, r.size)
	}
	return nil
}

func (c *Cache) walkDirectory() ([]fileRecord, error) {
	var records []fileRecord
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == indexSnapshotName || strings.Contains(name, ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		records = append(records, fileRecord{
			relKey:  filepath.ToSlash(rel),
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// writeIndexSnapshot persists the current artifact set as an
// xz-compressed tab-separated index so the next startup can skip the
// full directory walk. Best-effort: a failure here never fails Close.
func (c *Cache) writeIndexSnapshot() error {
	c.mu.Lock()
	entries := c.artifacts.snapshot()
	c.mu.Unlock()

	f, err := os.Create(filepath.Join(c.root, indexSnapshotName))
	if err != nil {
		return nil
	}
	defer f.Close()

	w, err := xz.NewWriter(f)
	if err != nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		rel, err := filepath.Rel(c.root, e.path)
		if err != nil {
			continue
		}
		bw.WriteString(filepath.ToSlash(rel))
		bw.WriteByte('\t')
		bw.WriteString(strconv.FormatInt(e.size, 10))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return nil
	}
	_ = w.Close()
	return nil
}

// loadIndexSnapshot reads back a previously written index snapshot,
// re-stating mtimes from the files themselves (the snapshot only
// shortcuts the tree walk, not the recency source of truth). Returns
// (nil, nil) when no usable snapshot exists.
func (c *Cache) loadIndexSnapshot() ([]fileRecord, error) {
	f, err := os.Open(filepath.Join(c.root, indexSnapshotName))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, nil
	}

	var records []fileRecord
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.LastIndexByte(line, '\t')
		if idx < 0 {
			continue
		}
		rel := line[:idx]
		path := filepath.Join(c.root, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil {
			continue // file referenced by the snapshot is gone; skip it
		}
		records = append(records, fileRecord{
			relKey:  rel,
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	if sc.Err() != nil {
		return nil, nil
	}
	return records, nil
}
