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

// storagePhaseJobs builds the sequential storage phase, run after network
// and DNS/certificates so that a slow object-storage endpoint never delays
// the phases that are cheap to run concurrently.
func storagePhaseJobs(client *ociclient.Client, snapshotPath string) []Job {
	return []Job{
		{Label: "buckets", Run: func(ctx context.Context) error {
			return extractBuckets(ctx, client, snapshotPath)
		}},
	}
}

// extractBuckets iterates every compartment, listing buckets and then
// fetching each bucket's lifecycle policy and replication policies. A
// bucket with no lifecycle policy configured gets an explicit null, not an
// absent key, so downstream consumers never have to distinguish "not
// fetched" from "not configured".
func extractBuckets(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	namespace, err := getResource(ctx, client,
		[]string{"os", "ns", "get"},
		[]string{"value"},
	)
	if err != nil {
		return fmt.Errorf("unable to determine object storage namespace: %w", err)
	}
	nsName := fmt.Sprint(namespace["value"])

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		buckets, err := listResources(ctx, client,
			[]string{"os", "bucket", "list", "--compartment-id", compartmentID, "--namespace-name", nsName},
			[]string{"name", "compartment-id", "storage-tier", "public-access-type", "versioning", "time-created"},
		)
		if err != nil {
			errs.Addf("unable to list buckets for compartment %s: %w", compartmentID, err)
			continue
		}

		for _, bucket := range buckets {
			bucketName := fmt.Sprint(bucket["name"])

			lifecycle, err := getResource(ctx, client,
				[]string{"os", "object-lifecycle-policy", "get", "--namespace-name", nsName, "--bucket-name", bucketName},
				[]string{"items"},
			)
			if err != nil {
				bucket["lifecycle-policy"] = nil
			} else {
				bucket["lifecycle-policy"] = lifecycle
			}

			replication, err := listResources(ctx, client,
				[]string{"os", "replication-policy", "list", "--namespace-name", nsName, "--bucket-name", bucketName},
				[]string{"id", "name", "destination-region-name", "destination-bucket-name", "status"},
			)
			if err != nil {
				errs.Addf("unable to list replication policies for bucket %s: %w", bucketName, err)
				replication = emptyListResources()
			}
			bucket["replication-policies"] = toAnySlice(replication)

			all = append(all, bucket)
		}
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".storage.buckets", toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}
