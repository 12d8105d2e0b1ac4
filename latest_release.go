package dataclient

import (
	"fmt"
	"sort"
	"time"

	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/partition"
	"github.com/timmylev/dataclient-go/table"
)

// latestReleaseUpToCutoff implements spec.md §4.6.1: for each group of
// rows sharing the same superkey values except release_date and tag,
// select the single row whose release_date is <= cutoff and is the
// maximum among rows meeting that bound; drop groups where no row
// qualifies. Returns indices into t, ascending, so the caller can
// Select without per-group intermediate tables.
func latestReleaseUpToCutoff(t *table.Table, desc *descriptor.DatasetDescriptor, cutoff time.Time) ([]int, error) {
	superkey := desc.Superkey()
	if len(superkey) == 0 {
		return nil, errs.NewSchemaError("cutoff requires a superkey declared by the read-only archive")
	}
	releaseCol, ok := t.Column("release_date")
	if !ok {
		return nil, errs.NewSchemaError("cutoff requires a release_date column")
	}

	groupCols := make([]string, 0, len(superkey))
	for _, c := range superkey {
		if c == "release_date" || c == "tag" {
			continue
		}
		if !t.HasColumn(c) {
			return nil, errs.NewSchemaError("superkey column %q not present in fetched table", c)
		}
		groupCols = append(groupCols, c)
	}

	cutoffUnix := cutoff.Unix()
	type candidate struct {
		idx     int
		release int64
	}
	best := map[string]candidate{}

	for i := 0; i < t.NumRows(); i++ {
		release, ok := partition.ToUnixSeconds(releaseCol.Values[i])
		if !ok || release > cutoffUnix {
			continue
		}
		key := groupKey(t, groupCols, i)
		if cur, exists := best[key]; !exists || release > cur.release {
			best[key] = candidate{idx: i, release: release}
		}
	}

	idxs := make([]int, 0, len(best))
	for _, c := range best {
		idxs = append(idxs, c.idx)
	}
	sort.Ints(idxs)
	return idxs, nil
}

func groupKey(t *table.Table, cols []string, row int) string {
	var b []byte
	for _, name := range cols {
		c, _ := t.Column(name)
		b = append(b, []byte(fmt.Sprintf("\x1f%v", c.Values[row]))...)
	}
	return string(b)
}
