package dataclient

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/timmylev/dataclient-go/backend"
	"golang.org/x/sync/errgroup"
)

// List enumerates dataset names under collection (spec.md §1's "list"
// operation, undetailed elsewhere; see SPEC_FULL.md's domain-model
// supplement). With storeID set, only that store is consulted; left
// empty, every registered store is consulted concurrently and the
// dataset name sets are unioned, sorted. A listing failure on one
// store among many is not fatal - it just contributes nothing to the
// union, matching Gather's "missing data in a fallback store is not an
// error" posture.
func (cl *Client) List(ctx context.Context, collection, storeID string) ([]string, error) {
	if storeID != "" {
		st, err := cl.resolveStore(storeID)
		if err != nil {
			return nil, err
		}
		return cl.listStore(ctx, st, collection)
	}

	stores := cl.registrySnapshot().Ordered()
	perStore := make([][]string, len(stores))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stores {
		i, st := i, st
		g.Go(func() error {
			found, err := cl.listStore(gctx, st, collection)
			if err != nil {
				return nil
			}
			perStore[i] = found
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]bool{}
	var names []string
	for _, found := range perStore {
		for _, n := range found {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (cl *Client) listStore(ctx context.Context, st backend.Store, collection string) ([]string, error) {
	parent := collection + "/"
	if st.Prefix != "" {
		parent = st.Prefix + "/" + parent
	}

	prefixes, err := cl.objectStore.ListPrefixes(ctx, st.Bucket, parent, "/")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, p := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p, parent), "/")
		if name == "" {
			continue
		}
		metaKey := fmt.Sprintf("%s%s/METADATA.json", parent, name)
		keys, err := cl.objectStore.ListKeys(ctx, st.Bucket, metaKey)
		if err != nil || len(keys) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
