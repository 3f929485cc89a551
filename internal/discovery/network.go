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

// networkPhaseJobs builds the concurrent network phase. Every job reads the
// canonical compartment set from the snapshot (written by the IAM phase's
// compartments job) and iterates over it independently.
func networkPhaseJobs(client *ociclient.Client, snapshotPath string) []Job {
	return []Job{
		{Label: "vcns", Run: func(ctx context.Context) error {
			return extractVCNs(ctx, client, snapshotPath)
		}},
		{Label: "drgs", Run: func(ctx context.Context) error {
			return extractDRGs(ctx, client, snapshotPath)
		}},
		{Label: "nsgs", Run: func(ctx context.Context) error {
			return extractNSGs(ctx, client, snapshotPath)
		}},
		{Label: "public-ips", Run: func(ctx context.Context) error {
			return extractPublicIPs(ctx, client, snapshotPath)
		}},
		{Label: "load-balancers", Run: func(ctx context.Context) error {
			return extractLoadBalancers(ctx, client, snapshotPath)
		}},
	}
}

// vcnChildLists maps the CLI subcommand used to list each VCN child
// resource to the key it is nested under, per the specification's VCN
// shape rule.
var vcnChildLists = []struct {
	Key     string
	Args    func(compartmentID, vcnID string) []string
	Fields  []string
}{
	{"subnets", func(c, v string) []string { return []string{"network", "subnet", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "cidr-block", "availability-domain", "route-table-id", "security-list-ids", "lifecycle-state"}},
	{"route-tables", func(c, v string) []string { return []string{"network", "route-table", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "route-rules", "lifecycle-state"}},
	{"security-lists", func(c, v string) []string { return []string{"network", "security-list", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "ingress-security-rules", "egress-security-rules", "lifecycle-state"}},
	{"internet-gateways", func(c, v string) []string { return []string{"network", "internet-gateway", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "is-enabled", "lifecycle-state"}},
	{"nat-gateways", func(c, v string) []string { return []string{"network", "nat-gateway", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "nat-ip", "lifecycle-state"}},
	{"service-gateways", func(c, v string) []string { return []string{"network", "service-gateway", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "services", "lifecycle-state"}},
	{"drg-attachments", func(c, v string) []string { return []string{"network", "drg-attachment", "list", "--compartment-id", c, "--vcn-id", v} },
		[]string{"id", "display-name", "drg-id", "lifecycle-state"}},
}

func extractVCNs(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		vcns, err := listResources(ctx, client,
			[]string{"network", "vcn", "list", "--compartment-id", compartmentID},
			[]string{"id", "display-name", "cidr-blocks", "dns-label", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list VCNs for compartment %s: %w", compartmentID, err)
			continue
		}
		for _, vcn := range vcns {
			vcnID := fmt.Sprint(vcn["id"])
			for _, child := range vcnChildLists {
				items, err := listResources(ctx, client, child.Args(compartmentID, vcnID), child.Fields)
				if err != nil {
					errs.Addf("unable to list %s for VCN %s: %w", child.Key, vcnID, err)
					items = emptyListResources()
				}
				vcn[child.Key] = toAnySlice(items)
			}
			all = append(all, vcn)
		}
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".network.vcns", toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

func extractDRGs(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		drgs, err := listResources(ctx, client,
			[]string{"network", "drg", "list", "--compartment-id", compartmentID},
			[]string{"id", "display-name", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list DRGs for compartment %s: %w", compartmentID, err)
			continue
		}
		all = append(all, drgs...)
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".network.drgs", toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

func extractNSGs(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		nsgs, err := listResources(ctx, client,
			[]string{"network", "nsg", "list", "--compartment-id", compartmentID},
			[]string{"id", "display-name", "vcn-id", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list NSGs for compartment %s: %w", compartmentID, err)
			continue
		}
		for _, nsg := range nsgs {
			rules, err := listResources(ctx, client,
				[]string{"network", "nsg", "rules", "list", "--nsg-id", fmt.Sprint(nsg["id"])},
				[]string{"id", "direction", "protocol", "source", "destination", "is-valid"},
			)
			if err != nil {
				errs.Addf("unable to list rules for NSG %s: %w", nsg["id"], err)
				rules = emptyListResources()
			}
			nsg["rules"] = toAnySlice(rules)
			all = append(all, nsg)
		}
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, ".network.nsgs", toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

// extractPublicIPs is scoped REGION, per-compartment, per the
// specification: a reserved public IP belongs to a compartment but its
// scope of visibility is the whole region rather than an AD.
func extractPublicIPs(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		ips, err := listResources(ctx, client,
			[]string{"network", "public-ip", "list", "--compartment-id", compartmentID, "--scope", "REGION"},
			[]string{"id", "display-name", "ip-address", "lifetime", "assigned-entity-id", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list public IPs for compartment %s: %w", compartmentID, err)
			continue
		}
		all = append(all, ips...)
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, `.network."public-ips"`, toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

var lbChildLists = []struct {
	Key    string
	Path   string
}{
	{"backend-sets", "backend-sets"},
	{"listeners", "listeners"},
	{"certificates", "certificates"},
	{"hostnames", "hostnames"},
	{"path-route-sets", "path-route-sets"},
	{"rule-sets", "rule-sets"},
}

// extractLoadBalancers is only present in this toolkit because the
// specification mandates it for schema v1; an older draft of this
// discovery run omitted load balancers entirely. See SPEC_FULL.md §12.
func extractLoadBalancers(ctx context.Context, client *ociclient.Client, snapshotPath string) error {
	compartmentIDs, err := snapshot.ReadCompartmentIds(snapshotPath)
	if err != nil {
		return err
	}

	var errs toolkit.ErrorSet
	var all []map[string]any
	for _, compartmentID := range compartmentIDs {
		lbs, err := listResources(ctx, client,
			[]string{"lb", "load-balancer", "list", "--compartment-id", compartmentID},
			[]string{"id", "display-name", "shape-name", "ip-addresses", "is-private", "lifecycle-state"},
		)
		if err != nil {
			errs.Addf("unable to list load balancers for compartment %s: %w", compartmentID, err)
			continue
		}
		for _, lb := range lbs {
			lbID := fmt.Sprint(lb["id"])
			detail, err := getResource(ctx, client,
				[]string{"lb", "load-balancer", "get", "--load-balancer-id", lbID},
				append([]string{
					"id", "display-name", "shape-name", "ip-addresses", "is-private", "lifecycle-state",
				}, childFieldNames()...),
			)
			if err != nil {
				errs.Addf("unable to fetch details for load balancer %s: %w", lbID, err)
				continue
			}
			normalizeLBChildren(detail)
			all = append(all, detail)
		}
	}

	if err := snapshot.WriteSection(ctx, snapshotPath, `.network."load-balancers"`, toAnySlice(all)); err != nil {
		return err
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}

func childFieldNames() []string {
	names := make([]string, len(lbChildLists))
	for i, c := range lbChildLists {
		names[i] = c.Path
	}
	return names
}

// normalizeLBChildren ensures every one of the load balancer's nested
// collections is present as an array, even when the `oci lb load-balancer
// get` projection returned it as an object keyed by name (backend-sets,
// listeners, hostnames, path-route-sets, and rule-sets are all maps in the
// underlying API; the toolkit flattens them into arrays for a uniform
// snapshot shape).
func normalizeLBChildren(lb map[string]any) {
	for _, child := range lbChildLists {
		raw, ok := lb[child.Key]
		if !ok || raw == nil {
			lb[child.Key] = []any{}
			continue
		}
		if _, isArray := raw.([]any); isArray {
			continue
		}
		if asMap, isMap := raw.(map[string]any); isMap {
			flattened := make([]any, 0, len(asMap))
			for name, value := range asMap {
				entry, _ := value.(map[string]any)
				if entry == nil {
					entry = map[string]any{}
				}
				entry["name"] = name
				flattened = append(flattened, entry)
			}
			lb[child.Key] = flattened
			continue
		}
		lb[child.Key] = []any{}
	}
}
