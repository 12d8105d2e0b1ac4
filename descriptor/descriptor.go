// Package descriptor holds the DatasetDescriptor data model (spec.md
// §3) and its JSON wire contract (spec.md §6). It is intentionally
// leaf-level: it imports only table, codec and errs, so both the metadata
// store (C3) and the key codec (C2) can depend on it without a cycle.
package descriptor

import (
	"encoding/json"
	"time"

	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// Granularity is the TimeSeriesIndex partition size.
type Granularity string

const (
	Hour  Granularity = "HOUR"
	Day   Granularity = "DAY"
	Month Granularity = "MONTH"
	Year  Granularity = "YEAR"
)

// IndexSpec is presently only ever a TimeSeriesIndex, but is shaped as a
// tagged sum (mirroring the metadata JSON's "_type"/"_attr" envelope) so
// a future index variant has somewhere to land.
type IndexSpec struct {
	Type        string      // always "TimeSeriesIndex" today
	Key         string      // index field name
	PartitionSize Granularity
}

func TimeSeriesIndex(key string, size Granularity) IndexSpec {
	return IndexSpec{Type: "TimeSeriesIndex", Key: key, PartitionSize: size}
}

type wireIndex struct {
	Type string `json:"_type"`
	Attr struct {
		Key           string `json:"key"`
		PartitionSize string `json:"partition_size"`
	} `json:"_attr"`
}

func (ix IndexSpec) MarshalJSON() ([]byte, error) {
	var w wireIndex
	w.Type = ix.Type
	w.Attr.Key = ix.Key
	w.Attr.PartitionSize = string(ix.PartitionSize)
	return json.Marshal(w)
}

func (ix *IndexSpec) UnmarshalJSON(data []byte) error {
	var w wireIndex
	if err := json.Unmarshal(data, &w); err != nil {
		return errs.NewFormatError("malformed index spec: %v", err)
	}
	if w.Type != "TimeSeriesIndex" {
		return errs.NewFormatError("unknown index type %q", w.Type)
	}
	ix.Type = w.Type
	ix.Key = w.Attr.Key
	switch Granularity(w.Attr.PartitionSize) {
	case Hour, Day, Month, Year:
		ix.PartitionSize = Granularity(w.Attr.PartitionSize)
	default:
		return errs.NewFormatError("unknown partition_size %q", w.Attr.PartitionSize)
	}
	return nil
}

// DatasetDescriptor is the per-dataset metadata object of spec.md §3.
// Once created, ColumnOrder, ColumnTypes, Index, Format, and Compression
// are immutable; only LastModified and Details may change.
type DatasetDescriptor struct {
	Collection    string
	Dataset       string
	ColumnOrder   []string
	ColumnTypes   map[string]table.ColumnType
	Timezone      string
	Index         IndexSpec
	Format        codec.Format
	Compression   codec.Compression
	LastModified  time.Time
	Details       map[string]string
}

type wireDescriptor struct {
	ColumnOrder  []string                    `json:"column_order"`
	ColumnTypes  map[string]table.ColumnType `json:"column_types"`
	Timezone     string                      `json:"timezone"`
	Index        IndexSpec                   `json:"index"`
	FileFormat   string                      `json:"file_format"`
	Compression  string                      `json:"compression"`
	LastModified int64                       `json:"last_modified"`
	Details      map[string]string           `json:"details"`
}

// compressionToWire and compressionFromWire render the "nothing" literal spec.md §9 mandates for
// the empty case, round-tripping to/from codec.NoCompression.
func compressionToWire(c codec.Compression) string {
	if c == codec.NoCompression {
		return "nothing"
	}
	return string(c)
}

func compressionFromWire(s string) codec.Compression {
	if s == "nothing" || s == "" {
		return codec.NoCompression
	}
	return codec.Compression(s)
}

func (d *DatasetDescriptor) MarshalJSON() ([]byte, error) {
	w := wireDescriptor{
		ColumnOrder:  d.ColumnOrder,
		ColumnTypes:  d.ColumnTypes,
		Timezone:     d.Timezone,
		Index:        d.Index,
		FileFormat:   string(d.Format),
		Compression:  compressionToWire(d.Compression),
		LastModified: d.LastModified.Unix(),
		Details:      d.Details,
	}
	return json.Marshal(w)
}

func (d *DatasetDescriptor) UnmarshalJSON(data []byte) error {
	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return errs.NewFormatError("malformed dataset descriptor: %v", err)
	}
	d.ColumnOrder = w.ColumnOrder
	d.ColumnTypes = w.ColumnTypes
	d.Timezone = w.Timezone
	d.Index = w.Index
	d.Format = codec.Format(w.FileFormat)
	d.Compression = compressionFromWire(w.Compression)
	d.LastModified = time.Unix(w.LastModified, 0).UTC()
	d.Details = w.Details
	return nil
}

// IndexColumnType returns the declared type of the index field, which
// spec.md §3 requires to be a zoned timestamp.
func (d *DatasetDescriptor) IndexColumnType() (table.ColumnType, bool) {
	t, ok := d.ColumnTypes[d.Index.Key]
	return t, ok
}

// Superkey parses the optional "superkey" detail (a JSON string array of
// column names) declared by read-only archives for the cutoff/latest-release
// selection (spec.md §4.6.1). Empty when undeclared.
func (d *DatasetDescriptor) Superkey() []string {
	raw, ok := d.Details["superkey"]
	if !ok || raw == "" {
		return nil
	}
	var cols []string
	if err := json.Unmarshal([]byte(raw), &cols); err == nil {
		return cols
	}
	return nil
}

// BoundsColumns parses the optional "bounds_columns" detail: the names
// of columns a read-only archive encodes as the bounds-notation integers
// 0..3 (spec.md §4.6.2) rather than as one of the core closed type tags.
func (d *DatasetDescriptor) BoundsColumns() []string {
	raw, ok := d.Details["bounds_columns"]
	if !ok || raw == "" {
		return nil
	}
	var cols []string
	if err := json.Unmarshal([]byte(raw), &cols); err == nil {
		return cols
	}
	return nil
}

// ListColumns parses the optional "list_columns" detail: the names of
// columns a read-only archive stores as JSON-encoded list cells (spec.md
// §4.1, §4.6.2) rather than as a scalar column.
func (d *DatasetDescriptor) ListColumns() []string {
	raw, ok := d.Details["list_columns"]
	if !ok || raw == "" {
		return nil
	}
	var cols []string
	if err := json.Unmarshal([]byte(raw), &cols); err == nil {
		return cols
	}
	return nil
}

// TypeMap parses the optional "type_map" detail read-only archives use
// to surface a column-order/column-types pair that is not stored by this
// system (spec.md §4.3).
func (d *DatasetDescriptor) TypeMap() (order []string, types map[string]table.ColumnType, err error) {
	raw, ok := d.Details["type_map"]
	if !ok || raw == "" {
		return nil, nil, nil
	}
	var wire struct {
		Order []string                    `json:"order"`
		Types map[string]table.ColumnType `json:"types"`
	}
	if uerr := json.Unmarshal([]byte(raw), &wire); uerr != nil {
		return nil, nil, errs.NewFormatError("malformed type_map detail: %v", uerr)
	}
	return wire.Order, wire.Types, nil
}
