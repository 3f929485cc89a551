// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"testing"
)

func TestExtractCertificatesAcrossCompartments(t *testing.T) {
	client := newTestClient(t, []stubRule{
		{Match: "certs-mgmt certificate list", Stdout: `[{"id":"ocid1.certificate.oc1..a","name":"cert1"}]`},
	})
	path := newTestSnapshot(t, "ocid1.tenancy.oc1..t", []string{"ocid1.compartment.oc1..c1"})

	if err := extractCertificates(context.Background(), client, path); err != nil {
		t.Fatal(err)
	}

	doc := readSnapshotDoc(t, path)
	certs := doc["certificates"].(map[string]any)["ssl-certificates"].([]any)
	if len(certs) != 2 { // tenancy + one compartment
		t.Fatalf("expected 2 certificates, got %d", len(certs))
	}
}

func TestExtractCertificatesAggregatesPerCompartmentFailures(t *testing.T) {
	client := newTestClient(t, []stubRule{
		{Match: "certs-mgmt certificate list", Stderr: "ServiceError", ExitCode: 1},
	})
	path := newTestSnapshot(t, "ocid1.tenancy.oc1..t", nil)

	if err := extractCertificates(context.Background(), client, path); err == nil {
		t.Fatal("expected an aggregated error")
	}

	doc := readSnapshotDoc(t, path)
	certs := doc["certificates"].(map[string]any)["ssl-certificates"].([]any)
	if len(certs) != 0 {
		t.Fatalf("expected no certificates recorded, got %d", len(certs))
	}
}
