package dataclient

import (
	"context"
	"time"

	"github.com/timmylev/dataclient-go/backend"
)

// GatherNaive is Gather for callers holding naive (zone-less) instants:
// it resolves the dataset's descriptor first to learn its timezone,
// reinterprets startNaive/stopNaive as wall-clock times in that zone,
// then delegates to Gather. A StoreID in opts pins both the descriptor
// lookup and the gather to that store; otherwise the first store in
// registry order carrying a descriptor is used to learn the timezone,
// matching Gather's own store-fallback order.
func (cl *Client) GatherNaive(ctx context.Context, collection, dataset string, startNaive, stopNaive time.Time, opts GatherOpts) (*GatherResult, error) {
	loc, err := cl.resolveTimezone(ctx, collection, dataset, opts.StoreID)
	if err != nil {
		return nil, err
	}

	start := reinterpretIn(startNaive, loc)
	stop := reinterpretIn(stopNaive, loc)
	return cl.Gather(ctx, collection, dataset, start, stop, opts)
}

// reinterpretIn keeps t's wall-clock fields but reassigns its location,
// discarding whatever offset t previously carried.
func reinterpretIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func (cl *Client) resolveTimezone(ctx context.Context, collection, dataset, storeID string) (*time.Location, error) {
	explicit := storeID != ""
	stores := cl.registrySnapshot().Ordered()
	if explicit {
		st, err := cl.resolveStore(storeID)
		if err != nil {
			return nil, err
		}
		stores = []backend.Store{st}
	}

	var lastErr error
	for _, st := range stores {
		desc, err := cl.metadata.GetDescriptor(ctx, st, collection, dataset)
		if err != nil {
			lastErr = err
			if explicit {
				return nil, err
			}
			continue
		}
		loc, err := time.LoadLocation(desc.Timezone)
		if err != nil {
			return time.UTC, nil
		}
		return loc, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return time.UTC, nil
}
