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

// iamPhaseJobs builds the concurrent IAM phase: tag namespaces, policies,
// users, dynamic groups, identity domains, and compartments each run as
// their own job against the tenancy compartment.
func iamPhaseJobs(client *ociclient.Client, snapshotPath, tenancyOCID string) []Job {
	return []Job{
		{Label: "tags", Run: func(ctx context.Context) error {
			return extractTagNamespaces(ctx, client, snapshotPath, tenancyOCID)
		}},
		{Label: "policies", Run: func(ctx context.Context) error {
			return extractPolicies(ctx, client, snapshotPath, tenancyOCID)
		}},
		{Label: "users", Run: func(ctx context.Context) error {
			return extractUsersAndGroups(ctx, client, snapshotPath, tenancyOCID)
		}},
		{Label: "dynamic-groups", Run: func(ctx context.Context) error {
			return extractDynamicGroups(ctx, client, snapshotPath, tenancyOCID)
		}},
		{Label: "identity-domains", Run: func(ctx context.Context) error {
			return extractIdentityDomains(ctx, client, snapshotPath, tenancyOCID)
		}},
		{Label: "compartments", Run: func(ctx context.Context) error {
			return extractCompartments(ctx, client, snapshotPath, tenancyOCID)
		}},
	}
}

var tagNamespaceFields = []string{"id", "name", "description", "is-retired", "defined-tags", "freeform-tags", "lifecycle-state"}
var tagDefinitionFields = []string{"id", "name", "description", "is-cost-tracking", "is-retired", "tags", "lifecycle-state", "validator"}
var tagDefaultFields = []string{"id", "value", "is-required", "lifecycle-state", "locks"}

// extractTagNamespaces implements the five-step algorithm from the
// specification: list namespaces, mark each as ignored or not, list and
// fully resolve their tag definitions, list tenancy-wide tag defaults, and
// match each (namespace, tag) pair against its default.
func extractTagNamespaces(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	var errs toolkit.ErrorSet

	ignored, err := snapshot.ReadIgnoredTagNamespaces(snapshotPath)
	if err != nil {
		return err
	}
	ignoredSet := make(map[string]bool, len(ignored))
	for _, name := range ignored {
		ignoredSet[name] = true
	}

	namespaces, err := listResources(ctx, client,
		[]string{"iam", "tag-namespace", "list", "--compartment-id", tenancyOCID},
		tagNamespaceFields,
	)
	if err != nil {
		return fmt.Errorf("unable to list tag namespaces: %w", err)
	}

	defaults, err := listResources(ctx, client,
		[]string{"iam", "tag-default", "list", "--compartment-id", tenancyOCID},
		append([]string{"tag-namespace-id", "tag-definition-id"}, tagDefaultFields...),
	)
	if err != nil {
		return fmt.Errorf("unable to list tag defaults: %w", err)
	}

	for _, ns := range namespaces {
		nsID := fmt.Sprint(ns["id"])
		ns["ignored"] = ignoredSet[fmt.Sprint(ns["name"])]

		tagNames, err := listResources(ctx, client,
			[]string{"iam", "tag", "list", "--tag-namespace-id", nsID},
			[]string{"name"},
		)
		if err != nil {
			errs.Addf("unable to list tag names for namespace %s: %w", ns["name"], err)
			ns["tag-definitions"] = emptyListResources()
			continue
		}

		definitions := make([]map[string]any, 0, len(tagNames))
		for _, tn := range tagNames {
			tagName := fmt.Sprint(tn["name"])
			def, err := getResource(ctx, client,
				[]string{"iam", "tag", "get", "--tag-namespace-id", nsID, "--tag-name", tagName},
				tagDefinitionFields,
			)
			if err != nil {
				errs.Addf("unable to fetch tag definition %s/%s: %w", ns["name"], tagName, err)
				continue
			}
			def["tag-default"] = matchTagDefault(defaults, nsID, def)
			definitions = append(definitions, def)
		}
		ns["tag-definitions"] = toAnySlice(definitions)
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, `.iam."tag-namespaces"`, toAnySlice(namespaces)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

// matchTagDefault finds the first tag-default that applies to this
// (namespace, tag) pair. defaults don't carry the tag's name, only its
// OCID, so definitions must have already fetched their own "id" via
// getResource before this is called.
func matchTagDefault(defaults []map[string]any, nsID string, def map[string]any) any {
	defID := fmt.Sprint(def["id"])
	for _, d := range defaults {
		if fmt.Sprint(d["tag-namespace-id"]) == nsID && fmt.Sprint(d["tag-definition-id"]) == defID {
			return d
		}
	}
	return nil
}

func extractPolicies(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	policies, err := listResources(ctx, client,
		[]string{"iam", "policy", "list", "--compartment-id", tenancyOCID, "--compartment-id-in-subtree", "true"},
		[]string{"id", "name", "description", "statements", "compartment-id", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list policies: %w", err)
	}
	return snapshot.WriteSection(ctx, snapshotPath, ".iam.policies", toAnySlice(policies))
}

func extractUsersAndGroups(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	var errs toolkit.ErrorSet

	users, err := listResources(ctx, client,
		[]string{"iam", "user", "list", "--compartment-id", tenancyOCID},
		[]string{"id", "name", "description", "email", "is-mfa-activated", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list users: %w", err)
	}

	groups, err := listResources(ctx, client,
		[]string{"iam", "group", "list", "--compartment-id", tenancyOCID},
		[]string{"id", "name", "description", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list groups: %w", err)
	}

	for _, u := range users {
		userID := fmt.Sprint(u["id"])

		memberships, err := listResources(ctx, client,
			[]string{"iam", "group-membership", "list", "--compartment-id", tenancyOCID, "--user-id", userID},
			[]string{"group-id", "id", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list group memberships for user %s: %w", u["name"], err)
			memberships = emptyListResources()
		}
		u["group-memberships"] = toAnySlice(memberships)

		apiKeys, err := listResources(ctx, client,
			[]string{"iam", "user", "api-key", "list", "--user-id", userID},
			[]string{"key-id", "fingerprint", "key-value", "lifecycle-state", "time-created"},
		)
		if err != nil {
			errs.Addf("unable to list api keys for user %s: %w", u["name"], err)
			apiKeys = emptyListResources()
		}
		u["api-keys"] = toAnySlice(apiKeys)
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".iam.users", toAnySlice(users)); err != nil {
		return err
	}
	if err := snapshot.WriteSection(ctx, snapshotPath, ".iam.groups", toAnySlice(groups)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

func extractDynamicGroups(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	groups, err := listResources(ctx, client,
		[]string{"iam", "dynamic-group", "list", "--compartment-id", tenancyOCID},
		[]string{"id", "name", "description", "matching-rule", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list dynamic groups: %w", err)
	}
	return snapshot.WriteSection(ctx, snapshotPath, `.iam."dynamic-groups"`, toAnySlice(groups))
}

func extractIdentityDomains(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	domains, err := listResources(ctx, client,
		[]string{"iam", "domain", "list", "--compartment-id", tenancyOCID},
		[]string{"id", "display-name", "description", "url", "home-region-url", "type", "is-hidden-on-login", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list identity domains: %w", err)
	}
	return snapshot.WriteSection(ctx, snapshotPath, `.iam."identity-domains"`, toAnySlice(domains))
}

// extractCompartments captures the whole compartment tree in one call by
// combining --access-level ANY with --compartment-id-in-subtree true, per
// the specification. This becomes the canonical compartment set that every
// later phase iterates over.
func extractCompartments(ctx context.Context, client *ociclient.Client, snapshotPath, tenancyOCID string) error {
	compartments, err := listResources(ctx, client,
		[]string{
			"iam", "compartment", "list",
			"--compartment-id", tenancyOCID,
			"--compartment-id-in-subtree", "true",
			"--access-level", "ANY",
		},
		[]string{"id", "name", "description", "compartment-id", "lifecycle-state"},
	)
	if err != nil {
		return fmt.Errorf("unable to list compartments: %w", err)
	}
	return snapshot.WriteSection(ctx, snapshotPath, ".iam.compartments", toAnySlice(compartments))
}
