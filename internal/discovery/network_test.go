// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"encoding/json"
	"os"
	"testing"
)

func TestExtractDRGs(t *testing.T) {
	client := newTestClient(t, []stubRule{
		{Match: "network drg list", Stdout: `[{"id":"ocid1.drg.oc1..a","display-name":"drg1","lifecycle-state":"AVAILABLE"}]`},
	})
	path := newTestSnapshot(t, "ocid1.tenancy.oc1..t", []string{"ocid1.compartment.oc1..c1"})

	if err := extractDRGs(context.Background(), client, path); err != nil {
		t.Fatal(err)
	}

	doc := readSnapshotDoc(t, path)
	drgs := doc["network"].(map[string]any)["drgs"].([]any)
	if len(drgs) != 2 { // tenancy + one compartment, both hitting the same stub rule
		t.Fatalf("expected 2 DRGs (one per compartment), got %d: %#v", len(drgs), drgs)
	}
}

func TestExtractPublicIPsUsesRegionScope(t *testing.T) {
	client := newTestClient(t, []stubRule{
		{Match: "--scope REGION", Stdout: `[{"id":"ocid1.publicip.oc1..a","ip-address":"1.2.3.4"}]`},
	})
	path := newTestSnapshot(t, "ocid1.tenancy.oc1..t", nil)

	if err := extractPublicIPs(context.Background(), client, path); err != nil {
		t.Fatal(err)
	}

	doc := readSnapshotDoc(t, path)
	ips := doc["network"].(map[string]any)["public-ips"].([]any)
	if len(ips) != 1 {
		t.Fatalf("expected 1 public IP (tenancy compartment only), got %d", len(ips))
	}
}

func TestExtractNSGsNestsRules(t *testing.T) {
	client := newTestClient(t, []stubRule{
		{Match: "network nsg rules list", Stdout: `[{"id":"r1","direction":"INGRESS","protocol":"6"}]`},
		{Match: "network nsg list", Stdout: `[{"id":"ocid1.nsg.oc1..a","display-name":"nsg1"}]`},
	})
	path := newTestSnapshot(t, "ocid1.tenancy.oc1..t", nil)

	if err := extractNSGs(context.Background(), client, path); err != nil {
		t.Fatal(err)
	}

	doc := readSnapshotDoc(t, path)
	nsgs := doc["network"].(map[string]any)["nsgs"].([]any)
	if len(nsgs) != 1 {
		t.Fatalf("expected 1 NSG, got %d", len(nsgs))
	}
	nsg := nsgs[0].(map[string]any)
	rules, ok := nsg["rules"].([]any)
	if !ok || len(rules) != 1 {
		t.Fatalf("expected nsg.rules to be a 1-element array, got %#v", nsg["rules"])
	}
}

func TestNormalizeLBChildrenFlattensMapShapedChildren(t *testing.T) {
	lb := map[string]any{
		"backend-sets": map[string]any{
			"bs1": map[string]any{"policy": "ROUND_ROBIN"},
		},
	}
	normalizeLBChildren(lb)

	backendSets, ok := lb["backend-sets"].([]any)
	if !ok || len(backendSets) != 1 {
		t.Fatalf("expected backend-sets to flatten to a 1-element array, got %#v", lb["backend-sets"])
	}
	entry := backendSets[0].(map[string]any)
	if entry["name"] != "bs1" {
		t.Errorf("flattened entry missing name key: %#v", entry)
	}

	// Every other child key must have been filled in as an empty array.
	for _, key := range []string{"listeners", "certificates", "hostnames", "path-route-sets", "rule-sets"} {
		got, ok := lb[key].([]any)
		if !ok || len(got) != 0 {
			t.Errorf("expected lb[%q] to be an empty array, got %#v", key, lb[key])
		}
	}
}

func readSnapshotDoc(t *testing.T, path string) map[string]any {
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
