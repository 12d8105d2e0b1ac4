package dataclient

import "github.com/timmylev/dataclient-go/errs"

// Re-exported for callers who only import the root package: a
// `var e *dataclient.SchemaError; errors.As(err, &e)` check reads
// better than reaching into the errs subpackage by hand.
type (
	ConfigError      = errs.ConfigError
	MissingDataError = errs.MissingDataError
	SchemaError      = errs.SchemaError
	FormatError      = errs.FormatError
	ArgumentError    = errs.ArgumentError
)
