package table

import (
	"encoding/json"
	"fmt"

	"github.com/timmylev/dataclient-go/errs"
)

// Kind enumerates the closed vocabulary of simple column-type tags from
// the metadata JSON contract, plus the three composite constructors
// (Union, Array, ParametricArray) layered on top of it.
type Kind int

const (
	AbstractString Kind = iota
	AbstractFloat
	Integer
	Bool
	Char
	String
	Float64
	Float32
	Int64
	Int32
	UInt64
	ZonedDateTime
	DateTime
	Date
	Missing
	Union
	Array
	ParametricArray
)

var simpleTagNames = map[Kind]string{
	AbstractString: "AbstractString",
	AbstractFloat:  "AbstractFloat",
	Integer:        "Integer",
	Bool:           "Bool",
	Char:           "Char",
	String:         "String",
	Float64:        "Float64",
	Float32:        "Float32",
	Int64:          "Int64",
	Int32:          "Int32",
	UInt64:         "UInt64",
	ZonedDateTime:  "ZonedDateTime",
	DateTime:       "DateTime",
	Date:           "Date",
	Missing:        "Missing",
}

var simpleTagByName = func() map[string]Kind {
	m := make(map[string]Kind, len(simpleTagNames))
	for k, v := range simpleTagNames {
		m[v] = k
	}
	return m
}()

// ColumnType is a tagged sum: a leaf simple type, or one of the three
// composite constructors. Zero value is AbstractString's zero Kind, so
// always construct through the helpers below.
type ColumnType struct {
	Kind  Kind
	Of    []ColumnType // Union: the alternatives
	Elem  *ColumnType  // Array / ParametricArray: element type
	Dims  int          // Array / ParametricArray: dimension count
}

func Simple(k Kind) ColumnType { return ColumnType{Kind: k} }

func UnionOf(types ...ColumnType) ColumnType {
	return ColumnType{Kind: Union, Of: types}
}

func ArrayOf(elem ColumnType, dims int) ColumnType {
	return ColumnType{Kind: Array, Elem: &elem, Dims: dims}
}

func ParametricArrayOf(elemBound ColumnType, dims int) ColumnType {
	return ColumnType{Kind: ParametricArray, Elem: &elemBound, Dims: dims}
}

func (t ColumnType) IsSimple() bool {
	_, ok := simpleTagNames[t.Kind]
	return ok
}

func (t ColumnType) String() string {
	switch t.Kind {
	case Union:
		return fmt.Sprintf("Union%v", t.Of)
	case Array:
		return fmt.Sprintf("Array[%s x%d]", t.Elem, t.Dims)
	case ParametricArray:
		return fmt.Sprintf("ParametricArray[%s x%d]", t.Elem, t.Dims)
	default:
		if name, ok := simpleTagNames[t.Kind]; ok {
			return name
		}
		return "?"
	}
}

// MarshalJSON renders the nested-array type-tag encoding used by the
// metadata object: simple tags as a bare string, composites as a
// ["Tag", ...] array, exactly as spec.md's metadata contract dictates.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case Union:
		arr := make([]any, 0, len(t.Of)+1)
		arr = append(arr, "Union")
		for _, u := range t.Of {
			arr = append(arr, u)
		}
		return json.Marshal(arr)
	case Array:
		return json.Marshal([]any{"Array", *t.Elem, t.Dims})
	case ParametricArray:
		return json.Marshal([]any{"ParametricArray", *t.Elem, t.Dims})
	default:
		name, ok := simpleTagNames[t.Kind]
		if !ok {
			return nil, errs.NewFormatError("unknown type tag (kind %d)", t.Kind)
		}
		return json.Marshal(name)
	}
}

func (t *ColumnType) UnmarshalJSON(data []byte) error {
	// a leaf is a plain JSON string; a composite is a JSON array whose
	// first element names the constructor. json.RawMessage dispatch
	// mirrors the teacher's per-backend config decode in
	// storage/persistence-ceph.go.
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		k, ok := simpleTagByName[asString]
		if !ok {
			return errs.NewFormatError("unknown type tag %q", asString)
		}
		*t = ColumnType{Kind: k}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errs.NewFormatError("malformed type tag: %v", err)
	}
	if len(raw) == 0 {
		return errs.NewFormatError("empty type tag array")
	}
	var tag string
	if err := json.Unmarshal(raw[0], &tag); err != nil {
		return errs.NewFormatError("malformed type tag constructor: %v", err)
	}
	switch tag {
	case "Union":
		of := make([]ColumnType, 0, len(raw)-1)
		for _, r := range raw[1:] {
			var ct ColumnType
			if err := json.Unmarshal(r, &ct); err != nil {
				return err
			}
			of = append(of, ct)
		}
		*t = ColumnType{Kind: Union, Of: of}
		return nil
	case "Array", "ParametricArray":
		if len(raw) != 3 {
			return errs.NewFormatError("%s type tag needs [tag, elem, dims]", tag)
		}
		var elem ColumnType
		if err := json.Unmarshal(raw[1], &elem); err != nil {
			return err
		}
		var dims int
		if err := json.Unmarshal(raw[2], &dims); err != nil {
			return errs.NewFormatError("malformed dims in %s type tag: %v", tag, err)
		}
		k := Array
		if tag == "ParametricArray" {
			k = ParametricArray
		}
		*t = ColumnType{Kind: k, Elem: &elem, Dims: dims}
		return nil
	default:
		return errs.NewFormatError("unknown type tag constructor %q", tag)
	}
}

// IsSubtype reports whether actual is acceptable wherever declared is
// required (spec.md §4.7.1: "the input's element type must be a subtype
// of the declared type").
func IsSubtype(actual, declared ColumnType) bool {
	if declared.Kind == Union {
		for _, alt := range declared.Of {
			if IsSubtype(actual, alt) {
				return true
			}
		}
		return false
	}
	if actual.Kind == declared.Kind {
		switch actual.Kind {
		case Array, ParametricArray:
			return actual.Dims == declared.Dims && IsSubtype(*actual.Elem, *declared.Elem)
		default:
			return true
		}
	}
	switch declared.Kind {
	case AbstractString:
		return actual.Kind == String || actual.Kind == Char
	case AbstractFloat:
		return actual.Kind == Float64 || actual.Kind == Float32
	case Integer:
		return actual.Kind == Int64 || actual.Kind == Int32 || actual.Kind == UInt64
	case ParametricArray:
		return actual.Kind == Array && actual.Dims == declared.Dims && IsSubtype(*actual.Elem, *declared.Elem)
	}
	return false
}

// SanitizeElementType maps a concrete observed element type to its
// "abstract" form per spec.md §4.7.1's default-column-types rule: any
// concrete string -> AbstractString, any concrete integer except bool ->
// Integer, bool stays Bool, any concrete float -> AbstractFloat,
// timestamps/dates pass through, arrays sanitize their element type.
func SanitizeElementType(t ColumnType) ColumnType {
	switch t.Kind {
	case String, Char, AbstractString:
		return Simple(AbstractString)
	case Int64, Int32, UInt64, Integer:
		return Simple(Integer)
	case Bool:
		return Simple(Bool)
	case Float64, Float32, AbstractFloat:
		return Simple(AbstractFloat)
	case ZonedDateTime, DateTime, Date, Missing:
		return Simple(t.Kind)
	case Array, ParametricArray:
		elem := SanitizeElementType(*t.Elem)
		return ParametricArrayOf(elem, t.Dims)
	case Union:
		of := make([]ColumnType, len(t.Of))
		for i, u := range t.Of {
			of[i] = SanitizeElementType(u)
		}
		return UnionOf(of...)
	default:
		return t
	}
}
