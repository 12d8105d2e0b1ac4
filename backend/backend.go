// Package backend is the backend registry (spec.md §4.5, component C5):
// URI parsing into typed store descriptors, and the ordered registry of
// store-id -> Store composed from a built-in centralized list and a
// configuration-supplied additional-stores list.
package backend

import (
	"strings"

	"github.com/timmylev/dataclient-go/codec"
	"github.com/timmylev/dataclient-go/descriptor"
	"github.com/timmylev/dataclient-go/errs"
)

// Kind distinguishes the two Store variants of spec.md §3.
type Kind int

const (
	// Writable is populated by this library's insert path; index and
	// codec live in the dataset's own descriptor.
	Writable Kind = iota
	// ReadOnly is populated by an external system; format, compression,
	// and partition granularity are pinned by the store's URI.
	ReadOnly
)

// Store is a resolved store-id: a bucket/prefix pair, plus for ReadOnly
// stores the pinned format/compression/partition that would otherwise
// live in a dataset descriptor.
type Store struct {
	ID          string
	Kind        Kind
	Bucket      string
	Prefix      string
	Format      codec.Format
	Compression codec.Compression
	Partition   descriptor.Granularity
}

var formatTokens = map[string]codec.Format{
	"csv":     codec.CSV,
	"arrow":   codec.Arrow,
	"parquet": codec.Parquet,
}

var compressionTokens = map[string]codec.Compression{
	"gz":  codec.Gzip,
	"bz2": codec.Bzip2,
	"lz4": codec.LZ4,
	"zst": codec.Zstd,
}

var partitionTokens = map[string]descriptor.Granularity{
	"hour":  descriptor.Hour,
	"day":   descriptor.Day,
	"month": descriptor.Month,
	"year":  descriptor.Year,
}

// ParseURI parses a store URI of the form "<type>:<bucket_spec>" where
// type is a dash-separated tag ("ffs", "s3db", or
// "s3db-<format>-<compression>-<partition>") and bucket_spec is
// "s3://<bucket>[/<prefix>]", per spec.md §4.5.
func ParseURI(id, uri string) (Store, error) {
	typeTag, bucketSpec, ok := strings.Cut(uri, ":")
	if !ok {
		return Store{}, errs.NewConfigError("malformed store uri %q: missing type tag", uri)
	}

	const s3Scheme = "s3://"
	if !strings.HasPrefix(bucketSpec, s3Scheme) {
		return Store{}, errs.NewConfigError("store uri %q: bucket spec must start with %q", uri, s3Scheme)
	}
	rest := strings.TrimPrefix(bucketSpec, s3Scheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Store{}, errs.NewConfigError("store uri %q: empty bucket", uri)
	}

	parts := strings.Split(typeTag, "-")
	switch parts[0] {
	case "ffs":
		if len(parts) != 1 {
			return Store{}, errs.NewConfigError("store uri %q: %q does not take modifiers", uri, "ffs")
		}
		return Store{ID: id, Kind: Writable, Bucket: bucket, Prefix: prefix}, nil
	case "s3db":
		s := Store{
			ID:          id,
			Kind:        ReadOnly,
			Bucket:      bucket,
			Prefix:      prefix,
			Format:      codec.CSV,
			Compression: codec.Gzip,
			Partition:   descriptor.Day,
		}
		if len(parts) == 1 {
			return s, nil
		}
		if len(parts) != 4 {
			return Store{}, errs.NewConfigError("store uri %q: expected s3db-<format>-<compression>-<partition>", uri)
		}
		f, ok := formatTokens[parts[1]]
		if !ok {
			return Store{}, errs.NewConfigError("store uri %q: unknown format token %q", uri, parts[1])
		}
		c, ok := compressionTokens[parts[2]]
		if !ok {
			return Store{}, errs.NewConfigError("store uri %q: unknown compression token %q", uri, parts[2])
		}
		p, ok := partitionTokens[parts[3]]
		if !ok {
			return Store{}, errs.NewConfigError("store uri %q: unknown partition token %q", uri, parts[3])
		}
		s.Format, s.Compression, s.Partition = f, c, p
		return s, nil
	default:
		return Store{}, errs.NewConfigError("store uri %q: unknown type tag %q", uri, parts[0])
	}
}

// IDURI is one entry of the configuration's ordered additional-stores
// list: a store-id paired with the URI it resolves to.
type IDURI struct {
	ID  string
	URI string
}

// Registry is the ordered store-id -> Store mapping of spec.md §4.5.
type Registry struct {
	ordered []Store
	index   map[string]Store
}

// NewRegistry composes the built-in centralized list with additional,
// per disableCentralized and prioritizeAdditional, keeping the first
// occurrence of any duplicate store-id in merge order.
func NewRegistry(additional []IDURI, disableCentralized, prioritizeAdditional bool) (*Registry, error) {
	if disableCentralized && len(additional) == 0 {
		return nil, errs.NewConfigError("disable-centralized requires a non-empty additional-stores list")
	}

	var centralStores []Store
	if !disableCentralized {
		var err error
		centralStores, err = parseAll(Centralized)
		if err != nil {
			return nil, err
		}
	}

	var additionalStores []Store
	for _, iu := range additional {
		s, err := ParseURI(iu.ID, iu.URI)
		if err != nil {
			return nil, err
		}
		additionalStores = append(additionalStores, s)
	}

	var merged []Store
	if prioritizeAdditional {
		merged = append(merged, additionalStores...)
		merged = append(merged, centralStores...)
	} else {
		merged = append(merged, centralStores...)
		merged = append(merged, additionalStores...)
	}

	ordered := make([]Store, 0, len(merged))
	index := make(map[string]Store, len(merged))
	for _, s := range merged {
		if _, seen := index[s.ID]; seen {
			continue
		}
		index[s.ID] = s
		ordered = append(ordered, s)
	}

	return &Registry{ordered: ordered, index: index}, nil
}

func parseAll(entries []IDURI) ([]Store, error) {
	out := make([]Store, 0, len(entries))
	for _, e := range entries {
		s, err := ParseURI(e.ID, e.URI)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Ordered returns the registry's stores in fallback-iteration order.
func (r *Registry) Ordered() []Store {
	return r.ordered
}

// Lookup returns the registered store for storeID, or - if storeID is
// not a known id - attempts to parse it as an ad-hoc URI, per spec.md
// §4.5. Per the open question in spec.md §9, an id that is neither
// registered nor a valid URI always surfaces ConfigError, never a
// silently-reparsed partial match.
func (r *Registry) Lookup(storeID string) (Store, error) {
	if s, ok := r.index[storeID]; ok {
		return s, nil
	}
	s, err := ParseURI(storeID, storeID)
	if err != nil {
		return Store{}, errs.NewConfigError("unknown store id %q and not a valid store uri: %v", storeID, err)
	}
	return s, nil
}
