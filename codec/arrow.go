package codec

import (
	"bytes"
	"encoding/json"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// arrowFieldType maps a table.ColumnType to the Arrow physical type used to
// store it. Timestamp columns reach the codec already as Unix-second
// Int64 (spec.md §4.7.2 step 2 / §4.6.2 converts at the table-layer
// boundary, not inside the codec), and list-valued columns are
// flattened to a JSON string cell, the same simplification CSV applies.
func arrowFieldType(t table.ColumnType) arrow.DataType {
	switch t.Kind {
	case table.Int64, table.Int32, table.UInt64, table.Integer, table.ZonedDateTime, table.DateTime, table.Date:
		return arrow.PrimitiveTypes.Int64
	case table.Float64, table.Float32, table.AbstractFloat:
		return arrow.PrimitiveTypes.Float64
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func buildArrowSchema(t *table.Table) *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, name := range t.Columns {
		c, _ := t.Column(name)
		fields[i] = arrow.Field{Name: name, Type: arrowFieldType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func encodeArrow(t *table.Table) ([]byte, error) {
	mem := memory.NewGoAllocator()
	schema := buildArrowSchema(t)
	n := t.NumRows()

	arrays := make([]arrow.Array, len(t.Columns))
	for i, name := range t.Columns {
		c, _ := t.Column(name)
		field := schema.Field(i)
		arr, err := buildArrowArray(mem, field.Type, c)
		if err != nil {
			return nil, err
		}
		arrays[i] = arr
	}
	rec := array.NewRecord(schema, arrays, int64(n))
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	if err := w.Write(rec); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildArrowArray(mem memory.Allocator, dt arrow.DataType, c *table.Column) (arrow.Array, error) {
	switch dt.ID() {
	case arrow.INT64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			iv, err := asInt64(v)
			if err != nil {
				return nil, err
			}
			b.Append(iv)
		}
		return b.NewArray(), nil
	case arrow.FLOAT64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			fv, err := asFloat64(v)
			if err != nil {
				return nil, err
			}
			b.Append(fv)
		}
		return b.NewArray(), nil
	case arrow.BOOL:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			bv, _ := v.(bool)
			b.Append(bv)
		}
		return b.NewArray(), nil
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
				continue
			}
			b.Append(cellToString(v, c.Type))
		}
		return b.NewArray(), nil
	}
}

func cellToString(v any, t table.ColumnType) string {
	switch t.Kind {
	case table.Array, table.ParametricArray:
		b, _ := json.Marshal(v)
		return string(b)
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, errs.NewFormatError("cannot coerce %T to int64 column value", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, errs.NewFormatError("cannot coerce %T to float64 column value", v)
	}
}

func decodeArrow(data []byte) (*table.Table, error) {
	mem := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errs.NewFormatError("corrupt arrow framing: %v", err)
	}
	defer r.Close()

	schema := r.Schema()
	names := make([]string, schema.NumFields())
	for i := range names {
		names[i] = schema.Field(i).Name
	}
	cols := make(map[string]*table.Column, len(names))
	for _, n := range names {
		cols[n] = &table.Column{Name: n, Values: nil}
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, errs.NewFormatError("corrupt arrow record batch: %v", err)
		}
		for colIdx, name := range names {
			col := cols[name]
			arrCol := rec.Column(colIdx)
			vals, typ := arrowArrayToValues(arrCol)
			col.Type = typ
			col.Values = append(col.Values, vals...)
		}
	}
	return table.New(names, cols)
}

func arrowArrayToValues(a arrow.Array) ([]any, table.ColumnType) {
	n := a.Len()
	out := make([]any, n)
	switch arr := a.(type) {
	case *array.Int64:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				continue
			}
			out[i] = arr.Value(i)
		}
		return out, table.Simple(table.Int64)
	case *array.Float64:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				continue
			}
			out[i] = arr.Value(i)
		}
		return out, table.Simple(table.Float64)
	case *array.Boolean:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				continue
			}
			out[i] = arr.Value(i)
		}
		return out, table.Simple(table.Bool)
	case *array.String:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				continue
			}
			out[i] = arr.Value(i)
		}
		return out, table.Simple(table.String)
	default:
		for i := 0; i < n; i++ {
			out[i] = nil
		}
		return out, table.Simple(table.String)
	}
}
