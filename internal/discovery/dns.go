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

// dnsPhaseJobs builds the sequential DNS phase.
func dnsPhaseJobs(client *ociclient.Client, snapshotPath, tenancyOCID string) []Job {
	return []Job{
		{Label: "zones", Run: func(ctx context.Context) error {
			return extractZones(ctx, client, snapshotPath, tenancyOCID)
		}},
	}
}

// extractZones lists every zone visible to the tenancy and flattens each
// zone's nested `items` record list into a top-level `records` key, per the
// specification's zone shape rule.
func extractZones(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	zones, err := listResources(ctx, client,
		[]string{"dns", "zone", "list", "--compartment-id", tenancyOCID, "--compartment-id-in-subtree", "true"},
		[]string{"id", "name", "zone-type", "self-uri", "serial", "version", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list DNS zones: %w", err)
	}

	var errs toolkit.ErrorSet
	for _, zone := range zones {
		zoneName := fmt.Sprint(zone["name"])

		records, err := getResource(ctx, client,
			[]string{"dns", "record", "domain", "get-all-records", "--zone-name-or-id", zoneName, "--domain", zoneName},
			[]string{"items"},
		)
		if err != nil {
			errs.Addf("unable to list records for zone %s: %w", zoneName, err)
			zone["records"] = []any{}
			continue
		}
		items, _ := records["items"].([]any)
		if items == nil {
			items = []any{}
		}
		zone["records"] = items
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".dns.zones", toAnySlice(zones)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}
