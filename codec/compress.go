package codec

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/timmylev/dataclient-go/errs"
)

func decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.NewFormatError("corrupt gzip framing: %v", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.NewFormatError("corrupt gzip stream: %v", err)
		}
		return out, nil
	case Bzip2:
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errs.NewFormatError("corrupt bzip2 stream: %v", err)
		}
		return out, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errs.NewFormatError("corrupt lz4 stream: %v", err)
		}
		return out, nil
	case Zstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.NewFormatError("corrupt zstd stream: %v", err)
		}
		defer dec.Close()
		out, err := io.ReadAll(dec)
		if err != nil {
			return nil, errs.NewFormatError("corrupt zstd stream: %v", err)
		}
		return out, nil
	default:
		return nil, errs.NewFormatError("unknown compression %q", compression)
	}
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return data, nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Bzip2:
		// stdlib compress/bzip2 is decode-only; see DESIGN.md for the
		// one stdlib-only carve-out this forces (no third-party bzip2
		// encoder is present in the example pack).
		return nil, errs.NewFormatError("bzip2 encoding is not supported by this build")
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		out := enc.EncodeAll(data, make([]byte, 0, len(data)))
		enc.Close()
		return out, nil
	default:
		return nil, errs.NewFormatError("unknown compression %q", compression)
	}
}
