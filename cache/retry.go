package cache

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/cenkalti/backoff/v4"
	"github.com/timmylev/dataclient-go/errs"
	"github.com/timmylev/dataclient-go/objectstore"
)

// maxRetries bounds the fetch retry budget at two retries (three total
// attempts), per spec.md §4.4's retry policy.
const maxRetries = 2

// classifyFetchErr wraps transient transport failures (connection
// resets, EOF, timeouts — never a recognized domain/service exception)
// in errs.TransientTransportError so the retry loop below knows to
// retry it; everything else, including objectstore.ErrNoSuchKey,
// propagates immediately.
func classifyFetchErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, objectstore.ErrNoSuchKey) {
		return err
	}
	if t, ok := err.(objectstore.Transient); ok && t.Transient() {
		return errs.NewTransientTransportError(err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.NewTransientTransportError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.NewTransientTransportError(err)
	}
	return err
}

// fetchWithRetry calls fetch, retrying up to maxRetries times with
// exponential backoff when the classified error is transient
// (errs.TransientTransportError), and returning every other error -
// including objectstore.ErrNoSuchKey - immediately on the first attempt.
func fetchWithRetry(ctx context.Context, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	var result []byte
	operation := func() error {
		data, err := fetch(ctx)
		if err != nil {
			classified := classifyFetchErr(err)
			if _, transient := classified.(*errs.TransientTransportError); transient {
				return classified
			}
			return backoff.Permanent(classified)
		}
		result = data
		return nil
	}

	if err := backoff.Retry(operation, b); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return result, nil
}
