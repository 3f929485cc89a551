// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"

	"github.com/sapcc/oci-toolkit/internal/ociclient"
)

// listResources runs an --all array query and returns the decoded elements
// as a slice of flat maps. A CLI call that had nothing to return (the
// client normalizes this to an empty JSON array) yields an empty, non-nil
// slice — never nil, per the "child list is always [] rather than absent"
// invariant.
func listResources(ctx context.Context, client *ociclient.Client, args, fields []string) ([]map[string]any, error) {
	fullArgs := append(append([]string{}, args...), ociclient.BuildArrayQuery(fields...)...)
	raw, err := client.Invoke(ctx, fullArgs...)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array from %q, got %T", args, raw)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a JSON object element from %q, got %T", args, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

// getResource runs a scalar query and returns the decoded object.
func getResource(ctx context.Context, client *ociclient.Client, args, fields []string) (map[string]any, error) {
	fullArgs := append(append([]string{}, args...), ociclient.BuildQuery(fields...)...)
	raw, err := client.Invoke(ctx, fullArgs...)
	if err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object from %q, got %T", args, raw)
	}
	return obj, nil
}

// emptyListResources is what a section extractor stores for a child list it
// failed to fetch: an empty array, never an absent key.
func emptyListResources() []map[string]any {
	return []map[string]any{}
}

// toAnySlice widens a []map[string]any into the []any shape that
// jsonptr.Splice / encoding/json expect for a JSON array value.
func toAnySlice(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
