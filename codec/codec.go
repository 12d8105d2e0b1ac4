// Package codec is the codec registry (spec.md §4.1, component C1): a
// closed lookup table from (format, compression) tags to encode/decode
// functions over byte buffers and table.Table values, plus the filename
// detection and extension helpers the key codec and gather engine need.
package codec

import (
	"strings"

	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/table"
)

// Format is the closed set of on-disk table encodings.
type Format string

const (
	CSV     Format = "CSV"
	Arrow   Format = "ARROW"
	Parquet Format = "PARQUET"
)

// Compression is the closed set of compression codecs, including the
// "none" case (spelled "nothing" on the wire, per spec.md §9).
type Compression string

const (
	NoCompression Compression = ""
	Bzip2         Compression = "BZ2"
	Gzip          Compression = "GZ"
	LZ4           Compression = "LZ4"
	Zstd          Compression = "ZST"
)

var formatExt = map[Format]string{
	CSV:     "csv",
	Arrow:   "arrow",
	Parquet: "parquet",
}

var extFormat = func() map[string]Format {
	m := make(map[string]Format, len(formatExt))
	for f, e := range formatExt {
		m[e] = f
	}
	return m
}()

var compressionExt = map[Compression]string{
	Bzip2: "bz2",
	Gzip:  "gz",
	LZ4:   "lz4",
	Zstd:  "zst",
}

var extCompression = func() map[string]Compression {
	m := make(map[string]Compression, len(compressionExt))
	for c, e := range compressionExt {
		m[e] = c
	}
	return m
}()

// Extension returns the dotted extension string for a (format,
// compression) pair, e.g. ".csv.gz", matching the object-key scheme of
// spec.md §3.
func Extension(format Format, compression Compression) string {
	var b strings.Builder
	if format != "" {
		b.WriteByte('.')
		b.WriteString(formatExt[format])
	}
	if compression != NoCompression {
		b.WriteByte('.')
		b.WriteString(compressionExt[compression])
	}
	return b.String()
}

// DetectFromFilename splits at most two extensions off name's tail,
// lowercased, per spec.md §4.1's rules:
//   - innermost known format -> (format, none)
//   - innermost known compression -> examine the next extension: a
//     known format there yields (format, compression); anything else
//     yields (none, compression)
//   - two stacked compression extensions is a FormatError
//   - anything else yields (none, none)
func DetectFromFilename(name string) (Format, Compression, error) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return "", NoCompression, nil
	}
	last := strings.ToLower(parts[len(parts)-1])
	if f, ok := extFormat[last]; ok {
		return f, NoCompression, nil
	}
	if c, ok := extCompression[last]; ok {
		if len(parts) < 3 {
			return "", c, nil
		}
		next := strings.ToLower(parts[len(parts)-2])
		if f, ok := extFormat[next]; ok {
			return f, c, nil
		}
		if _, ok := extCompression[next]; ok {
			return "", "", errs.NewFormatError("double compression extension in %q", name)
		}
		return "", c, nil
	}
	return "", NoCompression, nil
}

// DecodeBytes decompresses (if compression is set) then dispatches on
// format to produce a table.Table.
func DecodeBytes(data []byte, format Format, compression Compression) (*table.Table, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, err
	}
	switch format {
	case CSV:
		return decodeCSV(raw)
	case Arrow:
		return decodeArrow(raw)
	case Parquet:
		return decodeParquet(raw)
	default:
		return nil, errs.NewFormatError("unknown format %q", format)
	}
}

// DecompressBytes strips a single compression layer without decoding a
// table, for callers (the file cache) that serve raw bytes rather than
// parsed tables.
func DecompressBytes(data []byte, compression Compression) ([]byte, error) {
	return decompress(data, compression)
}

// EncodeBytes encodes t in format, then compresses (if requested).
func EncodeBytes(t *table.Table, format Format, compression Compression) ([]byte, error) {
	var raw []byte
	var err error
	switch format {
	case CSV:
		raw, err = encodeCSV(t)
	case Arrow:
		raw, err = encodeArrow(t)
	case Parquet:
		raw, err = encodeParquet(t)
	default:
		return nil, errs.NewFormatError("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return compress(raw, compression)
}
