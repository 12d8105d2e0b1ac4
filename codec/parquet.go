package codec

import (
	"bytes"
	"context"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// encodeParquet reuses the same column->Arrow-array mapping as the
// Arrow codec, then writes it through pqarrow so a single column-type
// mapping serves both columnar formats.
func encodeParquet(t *table.Table) ([]byte, error) {
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
	writerProps := parquet.NewWriterProperties(parquet.WithAllocator(mem))
	arrowProps := pqarrow.DefaultWriterProps()
	fw, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, err
	}
	if err := fw.WriteBuffered(rec); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeParquet(data []byte) (*table.Table, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.NewFormatError("corrupt parquet framing: %v", err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, errs.NewFormatError("corrupt parquet metadata: %v", err)
	}
	arrowTable, err := reader.ReadTable(context.Background())
	if err != nil {
		return nil, errs.NewFormatError("corrupt parquet data: %v", err)
	}
	defer arrowTable.Release()

	schema := arrowTable.Schema()
	names := make([]string, schema.NumFields())
	for i := range names {
		names[i] = schema.Field(i).Name
	}
	cols := make(map[string]*table.Column, len(names))
	for colIdx, name := range names {
		chunked := arrowTable.Column(colIdx).Data()
		var values []any
		var typ table.ColumnType
		for _, chunk := range chunked.Chunks() {
			vals, t := arrowArrayToValues(chunk)
			values = append(values, vals...)
			typ = t
		}
		cols[name] = &table.Column{Name: name, Type: typ, Values: values}
	}
	return table.New(names, cols)
}
