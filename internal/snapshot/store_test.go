// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package snapshot_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sapcc/oci-toolkit/internal/snapshot"
)

func TestInitWritesSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", []string{"Oracle-Tags"})
	if err != nil {
		t.Fatal(err)
	}

	doc := readDoc(t, path)
	meta := doc["meta"].(map[string]any)
	if meta["schema"] != snapshot.Schema {
		t.Errorf("unexpected schema: %v", meta["schema"])
	}
	if _, err := time.Parse(time.RFC3339, meta["captured-at"].(string)); err != nil {
		t.Errorf("captured-at does not parse as RFC3339: %v", err)
	}

	iam := doc["iam"].(map[string]any)
	if iam["policies"].([]any) == nil {
		t.Error("iam.policies should be an empty array, not nil")
	}
	tenancy := iam["tenancy"].(map[string]any)
	if tenancy["id"] != "ocid1.tenancy.oc1..abc" {
		t.Errorf("unexpected tenancy id: %v", tenancy["id"])
	}

	network := doc["network"].(map[string]any)
	for _, key := range []string{"vcns", "drgs", "nsgs", "public-ips", "load-balancers"} {
		if _, ok := network[key]; !ok {
			t.Errorf("network.%s missing from skeleton", key)
		}
	}
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestWriteSectionSplicesAtPointer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", nil); err != nil {
		t.Fatal(err)
	}

	policies := []any{map[string]any{"id": "ocid1.policy.oc1..a", "name": "AdminsPolicy"}}
	if err := snapshot.WriteSection(context.Background(), path, ".iam.policies", policies); err != nil {
		t.Fatal(err)
	}

	doc := readDoc(t, path)
	iam := doc["iam"].(map[string]any)
	got := iam["policies"].([]any)
	if len(got) != 1 {
		t.Fatalf("expected one policy, got %v", got)
	}
}

func TestWriteSectionQuotedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", nil); err != nil {
		t.Fatal(err)
	}

	lbs := []any{map[string]any{"id": "ocid1.loadbalancer.oc1..a"}}
	if err := snapshot.WriteSection(context.Background(), path, `.network."load-balancers"`, lbs); err != nil {
		t.Fatal(err)
	}

	doc := readDoc(t, path)
	network := doc["network"].(map[string]any)
	got := network["load-balancers"].([]any)
	if len(got) != 1 {
		t.Fatalf("expected one load balancer, got %v", got)
	}
}

func TestConcurrentWriteSectionsBothSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", nil); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	var errA, errB error
	go func() {
		defer wg.Done()
		errA = snapshot.WriteSection(context.Background(), path, ".iam.policies", []any{"policy-a"})
	}()
	go func() {
		defer wg.Done()
		errB = snapshot.WriteSection(context.Background(), path, ".iam.users", []any{"user-a"})
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}

	doc := readDoc(t, path)
	iam := doc["iam"].(map[string]any)
	if len(iam["policies"].([]any)) != 1 {
		t.Error("policies write did not survive concurrent write")
	}
	if len(iam["users"].([]any)) != 1 {
		t.Error("users write did not survive concurrent write")
	}
}

func TestReadCompartmentIds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", nil); err != nil {
		t.Fatal(err)
	}
	compartments := []any{
		map[string]any{"id": "ocid1.compartment.oc1..a"},
		map[string]any{"id": "ocid1.compartment.oc1..b"},
	}
	if err := snapshot.WriteSection(context.Background(), path, ".iam.compartments", compartments); err != nil {
		t.Fatal(err)
	}

	ids, err := snapshot.ReadCompartmentIds(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ocid1.tenancy.oc1..abc", "ocid1.compartment.oc1..a", "ocid1.compartment.oc1..b"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestCleanupStrayFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	if err := snapshot.Init(path, "DEFAULT", "ocid1.tenancy.oc1..abc", nil); err != nil {
		t.Fatal(err)
	}

	strayTmp := filepath.Join(dir, "snapshot.json.tmp.abcd1234")
	if err := os.WriteFile(strayTmp, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	strayLock := filepath.Join(dir, "snapshot.json.lock")
	if err := os.Mkdir(strayLock, 0o700); err != nil {
		t.Fatal(err)
	}

	snapshot.CleanupStrayFiles(path)

	if _, err := os.Stat(strayTmp); !os.IsNotExist(err) {
		t.Error("stray tempfile should have been removed")
	}
	if _, err := os.Stat(strayLock); !os.IsNotExist(err) {
		t.Error("stray lock directory should have been removed")
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("snapshot file itself should not have been removed")
	}
}
