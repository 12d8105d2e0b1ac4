package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/table"
)

func dayDescriptor() *descriptor.DatasetDescriptor {
	return &descriptor.DatasetDescriptor{
		Collection:  "c",
		Dataset:     "d",
		ColumnOrder: []string{"ts"},
		ColumnTypes: map[string]table.ColumnType{"ts": table.Simple(table.ZonedDateTime)},
		Index:       descriptor.TimeSeriesIndex("ts", descriptor.Day),
		Format:      codec.CSV,
		Compression: codec.Gzip,
	}
}

func TestKeysForRange_S2(t *testing.T) {
	d := dayDescriptor()
	start := time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC)
	stop := time.Date(2020, 1, 3, 1, 0, 0, 0, time.UTC)
	keys, err := KeysForRange("p", start, stop, d)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "p/c/d/year=2020/1577836800.csv.gz", keys[0].ObjectKey)
	require.Equal(t, "p/c/d/year=2020/1577923200.csv.gz", keys[1].ObjectKey)
	require.Equal(t, "p/c/d/year=2020/1578009600.csv.gz", keys[2].ObjectKey)
}

func TestKeysForRange_SinglePartition(t *testing.T) {
	d := dayDescriptor()
	start := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)
	stop := time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC)
	keys, err := KeysForRange("p", start, stop, d)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestFilterTable_InteriorPartitionKeptWhole(t *testing.T) {
	d := dayDescriptor()
	tbl, _ := table.New([]string{"ts"}, map[string]*table.Column{
		"ts": {Name: "ts", Type: table.Simple(table.Int64), Values: []any{int64(1577923200 + 100)}},
	})
	start := time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC)
	stop := time.Date(2020, 1, 3, 1, 0, 0, 0, time.UTC)
	out, err := FilterTable(tbl, start, stop, d, 1577923200)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
}

func TestFilterTable_OutOfRangePartitionEmptied(t *testing.T) {
	d := dayDescriptor()
	tbl, _ := table.New([]string{"ts"}, map[string]*table.Column{
		"ts": {Name: "ts", Type: table.Simple(table.Int64), Values: []any{int64(1578100000)}},
	})
	start := time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC)
	stop := time.Date(2020, 1, 3, 1, 0, 0, 0, time.UTC)
	out, err := FilterTable(tbl, start, stop, d, 1578096000) // year=2020/day 2020-01-04
	require.NoError(t, err)
	require.Equal(t, 0, out.NumRows())
}

func TestPartitionRows(t *testing.T) {
	d := dayDescriptor()
	day1 := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 2, 1, 0, 0, 0, time.UTC)
	tbl, _ := table.New([]string{"ts"}, map[string]*table.Column{
		"ts": {Name: "ts", Type: table.Simple(table.ZonedDateTime), Values: []any{day1, day2, day1}},
	})
	groups, err := PartitionRows(tbl, d)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, 2, groups[0].Rows.NumRows())
	require.Equal(t, 1, groups[1].Rows.NumRows())
}
