// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package ociclient_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/sapcc/oci-toolkit/internal/ociclient"
)

func TestBuildQuery(t *testing.T) {
	got := ociclient.BuildQuery()
	want := []string{"--query", "data"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildQuery() = %v, want %v", got, want)
	}

	got = ociclient.BuildQuery("a", "b", "c")
	want = []string{"--query", "data.{a:a, b:b, c:c}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildQuery(a,b,c) = %v, want %v", got, want)
	}
}

func TestBuildArrayQuery(t *testing.T) {
	got := ociclient.BuildArrayQuery("a", "b", "c")
	want := []string{"--query", "data[].{a:a, b:b, c:c}", "--all"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArrayQuery(a,b,c) = %v, want %v", got, want)
	}

	got = ociclient.BuildArrayQuery()
	want = []string{"--query", "data", "--all"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArrayQuery() = %v, want %v", got, want)
	}
}

// writeStubCLI writes a shell script standing in for the `oci` binary that
// exits with the given code and prints the given stdout/stderr.
func writeStubCLI(t *testing.T, exitCode int, stdout, stderr string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub CLI script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "oci-stub.sh")
	script := "#!/bin/sh\n" +
		"printf '%s' " + shellQuote(stdout) + "\n" +
		"printf '%s' " + shellQuote(stderr) + " 1>&2\n" +
		"exit " + itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestInvokeSuccess(t *testing.T) {
	ociclient.Executable = writeStubCLI(t, 0, `{"id": "ocid1.tenancy.oc1..abc"}`, "")
	defer func() { ociclient.Executable = "oci" }()

	c := ociclient.NewClient("DEFAULT", 0)
	result, err := c.Invoke(context.Background(), "iam", "compartment", "get")
	if err != nil {
		t.Fatal(err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["id"] != "ocid1.tenancy.oc1..abc" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestInvokeEmptyStdoutOnArrayQuery(t *testing.T) {
	ociclient.Executable = writeStubCLI(t, 0, "", "")
	defer func() { ociclient.Executable = "oci" }()

	c := ociclient.NewClient("DEFAULT", 0)
	result, err := c.Invoke(context.Background(), append([]string{"iam", "policy", "list"}, ociclient.BuildArrayQuery("id", "name")...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(result, []any{}) {
		t.Fatalf("expected empty array normalization, got %#v", result)
	}
}

func TestInvokeEmptyStdoutOnScalarQuery(t *testing.T) {
	ociclient.Executable = writeStubCLI(t, 0, "", "")
	defer func() { ociclient.Executable = "oci" }()

	c := ociclient.NewClient("DEFAULT", 0)
	result, err := c.Invoke(context.Background(), append([]string{"iam", "compartment", "get"}, ociclient.BuildQuery("id")...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(result, map[string]any{}) {
		t.Fatalf("expected empty object normalization, got %#v", result)
	}
}

func TestInvokeNonzeroExit(t *testing.T) {
	ociclient.Executable = writeStubCLI(t, 1, "", `ServiceError: {"code": "NotAuthorizedOrNotFound", "message": "not found", "status": 404}`)
	defer func() { ociclient.Executable = "oci" }()

	c := ociclient.NewClient("DEFAULT", 0)
	_, err := c.Invoke(context.Background(), "iam", "compartment", "get")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr ociclient.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected error to unwrap to ociclient.Error, got %v", err)
	}
	if apiErr.Code != "NotAuthorizedOrNotFound" || apiErr.Status != 404 {
		t.Fatalf("unexpected classified error: %+v", apiErr)
	}
}
