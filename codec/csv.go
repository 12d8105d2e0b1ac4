package codec

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"

	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// encodeCSV writes a header row followed by one row per table row. List-
// valued (Array/ParametricArray) columns are JSON-encoded per cell on
// write (spec.md §4.1); the decoder intentionally does not reverse this
// — that belongs to the gather engine's post-processing step, so the
// codec stays schema-agnostic.
func encodeCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	cols := make([]*table.Column, len(t.Columns))
	for i, name := range t.Columns {
		c, ok := t.Column(name)
		if !ok {
			return nil, errs.NewSchemaError("missing column %q during CSV encode", name)
		}
		cols[i] = c
	}
	n := t.NumRows()
	row := make([]string, len(cols))
	for r := 0; r < n; r++ {
		for i, c := range cols {
			row[i] = cellToCSV(c.Values[r], c.Type)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellToCSV(v any, t table.ColumnType) string {
	if v == nil {
		return ""
	}
	switch t.Kind {
	case table.Array, table.ParametricArray:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// decodeCSV reads a header row then sniffs each column's primitive kind
// from its non-empty cells (bool, then int64, then float64, else
// string), matching the schema-agnostic decode contract: it has no
// access to the dataset descriptor, only the bytes on the wire.
func decodeCSV(data []byte) (*table.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.NewFormatError("corrupt CSV framing: %v", err)
	}
	if len(records) == 0 {
		return table.Empty(nil, nil), nil
	}
	header := records[0]
	rows := records[1:]
	raw := make([][]string, len(header))
	for c := range header {
		raw[c] = make([]string, len(rows))
		for i, row := range rows {
			if c < len(row) {
				raw[c][i] = row[c]
			}
		}
	}
	cols := make(map[string]*table.Column, len(header))
	for c, name := range header {
		typ, values := sniffColumn(raw[c])
		cols[name] = &table.Column{Name: name, Type: typ, Values: values}
	}
	return table.New(header, cols)
}

func sniffColumn(cells []string) (table.ColumnType, []any) {
	allInt, allFloat, allBool := true, true, true
	anyNonEmpty := false
	for _, s := range cells {
		if s == "" {
			continue
		}
		anyNonEmpty = true
		if allBool && s != "0" && s != "1" {
			allBool = false
		}
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
	}
	values := make([]any, len(cells))
	switch {
	case !anyNonEmpty:
		return table.Simple(table.AbstractString), values
	case allBool:
		for i, s := range cells {
			if s == "" {
				continue
			}
			values[i] = s == "1"
		}
		return table.Simple(table.Bool), values
	case allInt:
		for i, s := range cells {
			if s == "" {
				continue
			}
			n, _ := strconv.ParseInt(s, 10, 64)
			values[i] = n
		}
		return table.Simple(table.Int64), values
	case allFloat:
		for i, s := range cells {
			if s == "" {
				continue
			}
			f, _ := strconv.ParseFloat(s, 64)
			values[i] = f
		}
		return table.Simple(table.Float64), values
	default:
		for i, s := range cells {
			if s == "" {
				continue
			}
			values[i] = s
		}
		return table.Simple(table.String), values
	}
}
