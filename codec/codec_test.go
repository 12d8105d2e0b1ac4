package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmylev/dataclient-go/table"
)

func TestDetectFromFilename(t *testing.T) {
	cases := []struct {
		name       string
		wantFormat Format
		wantComp   Compression
		wantErr    bool
	}{
		{"x.csv", CSV, NoCompression, false},
		{"x.csv.gz", CSV, Gzip, false},
		{"x.gz", "", Gzip, false},
		{"x", "", NoCompression, false},
		{"x.unknown.gz", "", Gzip, false},
		{"x.csv.unknown", "", NoCompression, false},
		{"x.csv.gz.gz", "", "", true},
	}
	for _, c := range cases {
		f, comp, err := DetectFromFilename(c.name)
		if c.wantErr {
			require.Error(t, err, c.name)
			continue
		}
		require.NoError(t, err, c.name)
		require.Equal(t, c.wantFormat, f, c.name)
		require.Equal(t, c.wantComp, comp, c.name)
	}
}

func TestExtension(t *testing.T) {
	require.Equal(t, ".csv.gz", Extension(CSV, Gzip))
	require.Equal(t, ".csv", Extension(CSV, NoCompression))
}

func TestCSVRoundTrip(t *testing.T) {
	tbl, err := table.New([]string{"id", "name", "score"}, map[string]*table.Column{
		"id":    {Name: "id", Type: table.Simple(table.Int64), Values: []any{int64(1), int64(2)}},
		"name":  {Name: "name", Type: table.Simple(table.String), Values: []any{"a", "b"}},
		"score": {Name: "score", Type: table.Simple(table.Float64), Values: []any{1.5, 2.5}},
	})
	require.NoError(t, err)

	data, err := EncodeBytes(tbl, CSV, NoCompression)
	require.NoError(t, err)

	decoded, err := DecodeBytes(data, CSV, NoCompression)
	require.NoError(t, err)
	require.Equal(t, 2, decoded.NumRows())
	idCol, ok := decoded.Column("id")
	require.True(t, ok)
	require.Equal(t, int64(1), idCol.Values[0])
}

func TestCSVGzipRoundTrip(t *testing.T) {
	tbl, err := table.New([]string{"id"}, map[string]*table.Column{
		"id": {Name: "id", Type: table.Simple(table.Int64), Values: []any{int64(42)}},
	})
	require.NoError(t, err)

	data, err := EncodeBytes(tbl, CSV, Gzip)
	require.NoError(t, err)
	decoded, err := DecodeBytes(data, CSV, Gzip)
	require.NoError(t, err)
	idCol, _ := decoded.Column("id")
	require.Equal(t, int64(42), idCol.Values[0])
}

func TestDoubleCompressionIsFormatError(t *testing.T) {
	_, _, err := DetectFromFilename("k.csv.gz.gz")
	require.Error(t, err)
}
