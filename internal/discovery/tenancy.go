// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"

	"github.com/sapcc/oci-toolkit/internal/ociclient"
	"github.com/sapcc/oci-toolkit/internal/snapshot"
)

// captureTenancy runs once, sequentially, right after Init: it fetches the
// tenancy object itself and stores it at iam.tenancy, replacing the
// {"id": ...} placeholder that Init wrote.
func captureTenancy(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	tenancy, err := getResource(ctx, client,
		[]string{"iam", "compartment", "get", "--compartment-id", tenancyOCID},
		[]string{"id", "name", "description", "lifecycle-state"},
	)
	if err != nil {
		return err
	}
	return snapshot.WriteSection(ctx, snapshotPath, ".iam.tenancy", tenancy)
}
