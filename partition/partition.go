// Package partition is the key codec (spec.md §4.2, component C2): the
// content-addressed mapping from range predicates to the deterministic
// set of object keys that cover them, and its inverse for the write
// path (grouping rows into the partitions they belong to).
package partition

import (
	"fmt"
	"time"

	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// Key pairs a partition's Unix-second floor with the deterministic
// object key it lives at.
type Key struct {
	PartitionUnix int64
	ObjectKey     string
}

// FloorUTC floors t, converted to UTC, at granularity g. Hour and Day
// are duration truncations (aligned since the Unix epoch falls on an
// hour/day boundary); Month and Year are calendar floors, since those
// units are not fixed-length durations.
func FloorUTC(t time.Time, g descriptor.Granularity) time.Time {
	u := t.UTC()
	switch g {
	case descriptor.Hour:
		return u.Truncate(time.Hour)
	case descriptor.Day:
		return u.Truncate(24 * time.Hour)
	case descriptor.Month:
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	case descriptor.Year:
		return time.Date(u.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return u
	}
}

// step advances a floored boundary by one partition.
func step(t time.Time, g descriptor.Granularity) time.Time {
	switch g {
	case descriptor.Hour:
		return t.Add(time.Hour)
	case descriptor.Day:
		return t.Add(24 * time.Hour)
	case descriptor.Month:
		return t.AddDate(0, 1, 0)
	case descriptor.Year:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// ObjectKey computes the deterministic object key for a partition,
// per spec.md §3: <prefix>/<collection>/<dataset>/year=<YYYY>/<unix>.<ext>
func ObjectKey(prefix string, d *descriptor.DatasetDescriptor, partitionUnix int64) string {
	boundary := time.Unix(partitionUnix, 0).UTC()
	ext := codec.Extension(d.Format, d.Compression)
	return fmt.Sprintf("%s/%s/%s/year=%d/%d%s", prefix, d.Collection, d.Dataset, boundary.Year(), partitionUnix, ext)
}

// KeysForRange enumerates, in ascending partition order, every object
// key whose partition intersects the closed range [start, stop]
// (spec.md §4.2 read path, testable property 1).
func KeysForRange(prefix string, start, stop time.Time, d *descriptor.DatasetDescriptor) ([]Key, error) {
	if stop.Before(start) {
		return nil, errs.NewSchemaError("range stop %v precedes start %v", stop, start)
	}
	floorStart := FloorUTC(start, d.Index.PartitionSize)
	floorStop := FloorUTC(stop, d.Index.PartitionSize)

	var keys []Key
	for cur := floorStart; !cur.After(floorStop); cur = step(cur, d.Index.PartitionSize) {
		unix := cur.Unix()
		keys = append(keys, Key{PartitionUnix: unix, ObjectKey: ObjectKey(prefix, d, unix)})
	}
	return keys, nil
}

// FilterTable applies the range predicate [start, stop] to the index
// column of a fetched partition's rows. partitionUnix, when >= 0, is the
// optimization hint of spec.md §4.2: boundary partitions (whose floor
// equals the floor of start or stop) get row-level filtering; interior
// partitions are kept whole; out-of-range partitions are emptied
// without inspecting a single row.
func FilterTable(t *table.Table, start, stop time.Time, d *descriptor.DatasetDescriptor, partitionUnix int64) (*table.Table, error) {
	col, ok := t.Column(d.Index.Key)
	if !ok {
		return nil, errs.NewSchemaError("index column %q not present in fetched partition", d.Index.Key)
	}

	if partitionUnix >= 0 {
		floorStart := FloorUTC(start, d.Index.PartitionSize).Unix()
		floorStop := FloorUTC(stop, d.Index.PartitionSize).Unix()
		switch {
		case partitionUnix < floorStart || partitionUnix > floorStop:
			return t.Select(nil), nil
		case partitionUnix != floorStart && partitionUnix != floorStop:
			return t, nil
		}
	}

	startUnix, stopUnix := start.Unix(), stop.Unix()
	var kept []int
	for i, v := range col.Values {
		unix, ok := toUnixSeconds(v)
		if !ok {
			continue
		}
		if unix >= startUnix && unix <= stopUnix {
			kept = append(kept, i)
		}
	}
	return t.Select(kept), nil
}

// ToUnixSeconds coerces a cell value (an integer, float, or time.Time)
// to a Unix-second count, for callers outside this package that need
// the same coercion FilterTable/PartitionRows use internally (e.g. the
// gather engine's latest-release-up-to-cutoff selection).
func ToUnixSeconds(v any) (int64, bool) { return toUnixSeconds(v) }

func toUnixSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case time.Time:
		return n.Unix(), true
	default:
		return 0, false
	}
}

// Group is one partition's worth of rows for the write path.
type Group struct {
	PartitionUnix int64
	Rows          *table.Table
}

// PartitionRows groups table rows by the UTC-floored index value
// (spec.md §4.2 write path), in ascending partition order.
func PartitionRows(t *table.Table, d *descriptor.DatasetDescriptor) ([]Group, error) {
	col, ok := t.Column(d.Index.Key)
	if !ok {
		return nil, errs.NewSchemaError("index column %q not present in input table", d.Index.Key)
	}
	buckets := make(map[int64][]int)
	var order []int64
	for i, v := range col.Values {
		var unix int64
		switch x := v.(type) {
		case time.Time:
			unix = FloorUTC(x, d.Index.PartitionSize).Unix()
		default:
			u, ok := toUnixSeconds(v)
			if !ok {
				return nil, errs.NewSchemaError("index column %q contains non-timestamp value %v", d.Index.Key, v)
			}
			unix = FloorUTC(time.Unix(u, 0).UTC(), d.Index.PartitionSize).Unix()
		}
		if _, seen := buckets[unix]; !seen {
			order = append(order, unix)
		}
		buckets[unix] = append(buckets[unix], i)
	}
	groups := make([]Group, 0, len(order))
	for _, unix := range sortedInt64(order) {
		groups = append(groups, Group{PartitionUnix: unix, Rows: t.Select(buckets[unix])})
	}
	return groups, nil
}

func sortedInt64(s []int64) []int64 {
	out := append([]int64(nil), s...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
