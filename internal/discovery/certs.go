// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"

	"github.com/sapcc/oci-toolkit/internal/ociclient"
	"github.com/sapcc/oci-toolkit/internal/snapshot"
	"github.com/sapcc/oci-toolkit/internal/toolkit"
)

// certsPhaseJobs builds the sequential certificates phase, run after DNS
// and before storage.
func certsPhaseJobs(client *ociclient.Client, snapshotPath string) []Job {
	return []Job{
		{Label: "ssl-certificates", Run: func(ctx context.Context) error {
			return extractCertificates(ctx, client, snapshotPath)
		}},
	}
}

// extractCertificates lists the certificate-authority-issued and imported
// certificates for every compartment. Unlike load balancer certificates
// (bundles owned by a single LB), these are the standalone Certificates
// service resources.
func extractCertificates(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		certs, err := listResources(ctx, client,
			[]string{"certs-mgmt", "certificate", "list", "--compartment-id", compartmentID},
			[]string{"id", "name", "description", "config-type", "issuer-certificate-authority-id", "lifecycle-state", "current-version-summary"},
		)
		if err != nil {
			errs.Addf("unable to list certificates for compartment %s: %w", compartmentID, err)
			continue
		}
		all = append(all, certs...)
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, `.certificates."ssl-certificates"`, toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}
