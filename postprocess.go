package dataclient

import (
	"encoding/json"
	"time"

	"github.com/timmylev/dataclient-go/backend"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/partition"
	"github.com/timmylev/dataclient-go/table"
)

var boundsNotation = map[int64]string{0: "()", 1: "[)", 2: "(]", 3: "[]"}

// postProcess runs spec.md §4.6.2's per-store-type post-processing over
// a gathered table.
func postProcess(t *table.Table, st backend.Store, desc *descriptor.DatasetDescriptor) (*table.Table, error) {
	if st.Kind == backend.ReadOnly {
		return postProcessReadOnly(t, desc)
	}
	return postProcessWritable(t, desc)
}

func postProcessReadOnly(t *table.Table, desc *descriptor.DatasetDescriptor) (*table.Table, error) {
	loc, err := time.LoadLocation(desc.Timezone)
	if err != nil {
		loc = time.UTC
	}

	boundsCols := toSet(desc.BoundsColumns())
	listCols := toSet(desc.ListColumns())

	for name, typ := range desc.ColumnTypes {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		switch {
		case typ.Kind == table.ZonedDateTime:
			t = t.WithColumnValues(name, decodeTimestampsCached(col.Values, loc), typ)
		case typ.Kind == table.Bool:
			t = t.WithColumnValues(name, coerceBoolColumn(col.Values), typ)
		case boundsCols[name]:
			t = t.WithColumnValues(name, decodeBoundsColumn(col.Values), typ)
		case listCols[name] || typ.Kind == table.Array || typ.Kind == table.ParametricArray:
			vals, err := decodeListColumn(col.Values)
			if err != nil {
				return nil, err
			}
			t = t.WithColumnValues(name, vals, typ)
		}
	}
	return t, nil
}

func postProcessWritable(t *table.Table, desc *descriptor.DatasetDescriptor) (*table.Table, error) {
	loc, err := time.LoadLocation(desc.Timezone)
	if err != nil {
		loc = time.UTC
	}

	for _, name := range t.Columns {
		declared, ok := desc.ColumnTypes[name]
		if !ok {
			continue
		}
		col, _ := t.Column(name)
		if declared.Kind == table.ZonedDateTime {
			t = t.WithColumnValues(name, decodeTimestampsCached(col.Values, loc), declared)
			continue
		}

		// The CSV codec sniffs a column's type purely from its cell
		// contents (codec/csv.go's sniffColumn), so an all-0/1 integer
		// column round-trips as Bool. Coerce each value toward the
		// descriptor's declared type before validating it, rather than
		// validating the sniffer's guess against the declared type.
		coerced := make([]any, len(col.Values))
		changed := false
		for i, v := range col.Values {
			if v == nil {
				continue
			}
			cv, wasCoerced := coerceTowardDeclared(v, declared)
			coerced[i] = cv
			changed = changed || wasCoerced

			observed := inferKind(cv)
			if !table.IsSubtype(observed, declared) {
				return nil, errs.NewSchemaError("column %q: value %v (%s) is not a subtype of declared type %s", name, v, inferKind(v), declared)
			}
		}
		if changed {
			t = t.WithColumnValues(name, coerced, declared)
		}
	}
	return t, nil
}

// coerceTowardDeclared narrows a CSV-sniffed value back toward its
// descriptor-declared type where the conversion is lossless and
// unambiguous. Currently handles the Bool<->0/1-integer ambiguity
// sniffColumn introduces; any other mismatch is left for IsSubtype to
// reject.
func coerceTowardDeclared(v any, declared table.ColumnType) (any, bool) {
	switch declared.Kind {
	case table.Integer, table.Int64, table.Int32, table.UInt64:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), true
			}
			return int64(0), true
		}
	case table.Bool:
		switch n := v.(type) {
		case int64:
			return n != 0, true
		case int32:
			return n != 0, true
		case int:
			return n != 0, true
		}
	}
	return v, false
}

// decodeTimestampsCached converts Unix-second values to time.Time in
// loc, memoizing per unique Unix value (spec.md §4.6.2: "cache the
// timestamp-decoding work per unique Unix value because most datasets
// have many repeated values").
func decodeTimestampsCached(values []any, loc *time.Location) []any {
	cache := make(map[int64]time.Time)
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		unix, ok := partition.ToUnixSeconds(v)
		if !ok {
			out[i] = v
			continue
		}
		t, ok := cache[unix]
		if !ok {
			t = time.Unix(unix, 0).In(loc)
			cache[unix] = t
		}
		out[i] = t
	}
	return out
}

func coerceBoolColumn(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case int64:
			out[i] = n != 0
		case int:
			out[i] = n != 0
		case float64:
			out[i] = n != 0
		case bool:
			out[i] = n
		default:
			out[i] = v
		}
	}
	return out
}

func decodeBoundsColumn(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		unix, ok := partition.ToUnixSeconds(v)
		if !ok {
			out[i] = v
			continue
		}
		s, ok := boundsNotation[unix]
		if !ok {
			out[i] = v
			continue
		}
		out[i] = s
	}
	return out
}

// decodeListColumn parses each non-null cell as JSON and narrows
// float64 JSON numbers down to int64 when they carry no fractional part,
// per spec.md §4.6.2: "coerce to the narrowest element type present".
func decodeListColumn(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			out[i] = v
			continue
		}
		var parsed []any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, errs.NewFormatError("decoding list cell: %v", err)
		}
		out[i] = narrowNumbers(parsed)
	}
	return out, nil
}

func narrowNumbers(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			out[i] = int64(f)
			continue
		}
		out[i] = v
	}
	return out
}

func inferKind(v any) table.ColumnType {
	switch v.(type) {
	case bool:
		return table.Simple(table.Bool)
	case int64, int32, int:
		return table.Simple(table.Int64)
	case uint64:
		return table.Simple(table.UInt64)
	case float64, float32:
		return table.Simple(table.Float64)
	case string:
		return table.Simple(table.String)
	case time.Time:
		// time.Time always carries a *time.Location in this package's
		// usage, so it models the wire contract's ZonedDateTime rather
		// than the naive DateTime/Date tags.
		return table.Simple(table.ZonedDateTime)
	default:
		return table.Simple(table.Missing)
	}
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
