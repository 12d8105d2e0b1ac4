package dataclient

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/table"
)

// TestPostProcessWritable_CoercesAllZeroOneIntColumnSniffedAsBool covers
// the boundary behavior named in spec.md §8 and testable properties 6/7:
// an Int64 column whose values happen to be only 0/1 round-trips through
// the CSV codec sniffed as Bool; postProcessWritable must coerce it back
// toward the declared type instead of rejecting it.
func TestPostProcessWritable_CoercesAllZeroOneIntColumnSniffedAsBool(t *testing.T) {
	sniffed := &table.Column{
		Name:   "flag",
		Type:   table.Simple(table.Bool),
		Values: []any{true, false, true},
	}
	in, err := table.New([]string{"flag"}, map[string]*table.Column{"flag": sniffed})
	require.NoError(t, err)

	desc := &descriptor.DatasetDescriptor{
		ColumnOrder: []string{"flag"},
		ColumnTypes: map[string]table.ColumnType{"flag": table.Simple(table.Int64)},
		Timezone:    "UTC",
	}

	out, err := postProcessWritable(in, desc)
	require.NoError(t, err)

	col, ok := out.Column("flag")
	require.True(t, ok)
	require.Equal(t, []any{int64(1), int64(0), int64(1)}, col.Values)
}

// TestPostProcessWritable_CoercesBoolColumnSniffedAsInt covers the
// symmetric direction: a declared Bool column whose cells decoded as
// int64 0/1 (e.g. a non-CSV codec that preserves integer typing) still
// passes validation.
func TestPostProcessWritable_CoercesBoolColumnSniffedAsInt(t *testing.T) {
	sniffed := &table.Column{
		Name:   "flag",
		Type:   table.Simple(table.Int64),
		Values: []any{int64(1), int64(0)},
	}
	in, err := table.New([]string{"flag"}, map[string]*table.Column{"flag": sniffed})
	require.NoError(t, err)

	desc := &descriptor.DatasetDescriptor{
		ColumnOrder: []string{"flag"},
		ColumnTypes: map[string]table.ColumnType{"flag": table.Simple(table.Bool)},
		Timezone:    "UTC",
	}

	out, err := postProcessWritable(in, desc)
	require.NoError(t, err)

	col, ok := out.Column("flag")
	require.True(t, ok)
	require.Equal(t, []any{true, false}, col.Values)
}
