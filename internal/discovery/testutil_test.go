// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/sapcc/oci-toolkit/internal/ociclient"
	"github.com/sapcc/oci-toolkit/internal/snapshot"
)

// stubRule maps a substring of the invoked CLI arguments to the JSON text
// the stub should print on stdout. Rules are tried in order; the first
// whose Match substring appears in the joined argument list wins.
type stubRule struct {
	Match    string
	Stdout   string
	Stderr   string
	ExitCode int
}

// writeMultiStubCLI writes a POSIX shell script standing in for the `oci`
// binary that branches on its arguments, letting a single test exercise a
// section extractor that issues several different CLI calls.
func writeMultiStubCLI(t *testing.T, rules []stubRule) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub CLI script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "oci-stub.sh")

	script := "#!/bin/sh\n" + `args="$*"` + "\n"
	for _, r := range rules {
		script += "case \"$args\" in\n  *'" + r.Match + "'*) printf '%s' '" + r.Stdout +
			"'; printf '%s' '" + r.Stderr + "' 1>&2; exit " + strconv.Itoa(r.ExitCode) + " ;;\nesac\n"
	}
	script += "printf '%s' '[]'\nexit 0\n"

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestSnapshot initialises a skeleton snapshot with the given
// compartment IDs already recorded under iam.compartments, so that
// extractors under test can call snapshot.ReadCompartmentIds immediately.
func newTestSnapshot(t *testing.T, tenancyOCID string, compartmentIDs []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", tenancyOCID, nil); err != nil {
		t.Fatal(err)
	}

	compartments := make([]any, len(compartmentIDs))
	for i, id := range compartmentIDs {
		compartments[i] = map[string]any{"id": id, "name": id}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	doc["iam"].(map[string]any)["compartments"] = compartments
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestClient(t *testing.T, rules []stubRule) *ociclient.Client {
	t.Helper()
	orig := ociclient.Executable
	ociclient.Executable = writeMultiStubCLI(t, rules)
	t.Cleanup(func() { ociclient.Executable = orig })
	return ociclient.NewClient("DEFAULT", 0)
}
