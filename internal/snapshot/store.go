// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package snapshot owns the single JSON snapshot file that a discovery run
// produces. All mutation goes through WriteSection, which serializes
// concurrent writers via a sibling lock directory and never leaves the file
// in a torn state: every write is staged in a sibling tempfile and swapped
// into place with a single rename.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sapcc/oci-toolkit/internal/filelock"
	"github.com/sapcc/oci-toolkit/internal/jsonptr"
)

// Schema is the stable identifier stamped into every snapshot's meta.schema
// field.
const Schema = "oci.tenancy.discovery.v1"

const (
	lockPollInterval = 50 * time.Millisecond
	lockMaxAttempts  = 200 // 50ms * 200 = 10s
)

// Init writes the skeleton snapshot document to path: all five top-level
// sections present with their list-valued fields initialised to empty
// arrays and iam.tenancy holding the tenancy OCID, plus a meta header
// recording the schema, profile, capture time, and the tag-namespaces that
// discovery should mark as ignored.
func Init(path, profile, tenancyOCID string, ignoredNamespaces []string) error {
	if ignoredNamespaces == nil {
		ignoredNamespaces = []string{}
	}
	doc := map[string]any{
		"meta": map[string]any{
			"schema":      Schema,
			"profile":     profile,
			"captured-at": time.Now().UTC().Format(time.RFC3339),
			"ignored": map[string]any{
				"tag-namespaces": toAnySlice(ignoredNamespaces),
			},
		},
		"iam": map[string]any{
			"tenancy":          map[string]any{"id": tenancyOCID},
			"tag-namespaces":   []any{},
			"policies":         []any{},
			"users":            []any{},
			"groups":           []any{},
			"dynamic-groups":   []any{},
			"identity-domains": []any{},
			"compartments":     []any{},
		},
		"network": map[string]any{
			"vcns":            []any{},
			"drgs":            []any{},
			"nsgs":            []any{},
			"public-ips":      []any{},
			"load-balancers":  []any{},
		},
		"storage": map[string]any{
			"buckets": []any{},
		},
		"certificates": map[string]any{
			"ssl-certificates": []any{},
		},
		"dns": map[string]any{
			"zones": []any{},
		},
	}
	return writeAtomic(path, doc)
}

func toAnySlice(strs []string) []any {
	out := make([]any, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}

// WriteSection splices `value` into the snapshot at the given jsonptr path,
// e.g. `.network."load-balancers"`. The read-modify-write cycle is
// serialized against other writers via a lock directory sibling to path.
func WriteSection(ctx context.Context, path, pointerStr string, value any) error {
	ptr, err := jsonptr.Parse(pointerStr)
	if err != nil {
		return err
	}

	release, err := filelock.AcquireWithRetry(ctx, lockPath(path), lockPollInterval, lockMaxAttempts)
	if err != nil {
		return fmt.Errorf("could not acquire snapshot lock for %s: %w", path, err)
	}
	defer release()

	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := ptr.Splice(doc, value); err != nil {
		return fmt.Errorf("while splicing %s into %s: %w", pointerStr, path, err)
	}
	return writeAtomic(path, doc)
}

// ReadIgnoredTagNamespaces returns the meta.ignored.tag-namespaces list that
// Init recorded, so that the tag-namespace extractor can compute each
// namespace's `ignored` flag.
func ReadIgnoredTagNamespaces(path string) ([]string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	ptr, err := jsonptr.Parse(`.meta.ignored."tag-namespaces"`)
	if err != nil {
		return nil, err
	}
	raw, ok := ptr.Get(doc)
	if !ok {
		return nil, nil
	}
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out, nil
}

// ReadCompartmentIds returns the canonical compartment set that every
// non-IAM extractor iterates over: the tenancy itself followed by every
// compartment recorded under iam.compartments.
func ReadCompartmentIds(path string) ([]string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	tenancyPtr, err := jsonptr.Parse(".iam.tenancy.id")
	if err != nil {
		return nil, err
	}
	tenancyID, ok := tenancyPtr.Get(doc)
	if !ok {
		return nil, fmt.Errorf("snapshot %s has no iam.tenancy.id", path)
	}
	ids := []string{fmt.Sprint(tenancyID)}

	compartmentsPtr, err := jsonptr.Parse(".iam.compartments")
	if err != nil {
		return nil, err
	}
	rawCompartments, _ := compartmentsPtr.Get(doc)
	compartments, _ := rawCompartments.([]any)
	for _, c := range compartments {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := obj["id"]; ok {
			ids = append(ids, fmt.Sprint(id))
		}
	}
	return ids, nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse snapshot %s: %w", path, err)
	}
	return doc, nil
}

// writeAtomic serializes doc into a sibling tempfile and renames it over
// path, so that readers never observe a partially-written snapshot.
func writeAtomic(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("could not create tempfile for snapshot write: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("could not write tempfile for snapshot write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not close tempfile for snapshot write: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not rename tempfile into place for %s: %w", path, err)
	}
	return nil
}

func lockPath(path string) string {
	return path + ".lock"
}

// CleanupStrayFiles removes leftover *.tmp.* and *.lock entries from a
// previous run's directory. discovery.Run calls it once at startup and
// again, deferred, when it returns, which includes the return after a
// SIGINT/SIGTERM cancellation; a stray lock from a process that was killed
// mid-write must not wedge future runs forever.
func CleanupStrayFiles(path string) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == base+".lock" {
			os.RemoveAll(filepath.Join(dir, name))
			continue
		}
		if matchesTempPattern(name, base) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

func matchesTempPattern(name, base string) bool {
	prefix := base + ".tmp."
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}
