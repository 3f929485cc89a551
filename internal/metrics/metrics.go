// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the toolkit's Prometheus instrumentation. Unlike
// sapcc-limes, discover and instance-provision are one-shot CLI runs, not
// long-running servers with a `/metrics` endpoint for promhttp to serve, so
// there is nothing to scrape while the process is alive. Instead, each run
// gathers its own registry once at exit and writes it to a node_exporter
// textfile-collector file, the standard way to get Prometheus visibility
// into batch jobs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry collects every metric this toolkit defines. It is deliberately
// not the global prometheus.DefaultRegisterer, since a textfile-collector
// dump should contain only this toolkit's own series.
var Registry = prometheus.NewRegistry()

var (
	// CLIInvocationsTotal counts every oci CLI subprocess call, labeled by
	// a bounded command prefix (e.g. "iam compartment list") and outcome.
	CLIInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oci_toolkit_cli_invocations_total",
			Help: "Number of oci CLI subprocess invocations, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	// CLIInvocationDuration tracks how long each oci CLI subprocess call
	// takes, labeled by the same command prefix as CLIInvocationsTotal but
	// not by outcome.
	CLIInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oci_toolkit_cli_invocation_duration_seconds",
			Help:    "Duration of oci CLI subprocess invocations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// ProvisionRetryCyclesTotal counts every cycle of instance-provision's
	// AD retry loop, across all availability domains in that cycle.
	ProvisionRetryCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oci_toolkit_provision_retry_cycles_total",
			Help: "Number of AD retry cycles executed by an instance-provision run.",
		},
	)

	// ProvisionLaunchAttemptsTotal counts every classified launch attempt,
	// labeled by the resulting token (OK, CAPACITY, THROTTLE, ...).
	ProvisionLaunchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oci_toolkit_provision_launch_attempts_total",
			Help: "Number of compute instance launch attempts, by classification token.",
		},
		[]string{"token"},
	)
)

func init() {
	Registry.MustRegister(
		CLIInvocationsTotal,
		CLIInvocationDuration,
		ProvisionRetryCyclesTotal,
		ProvisionLaunchAttemptsTotal,
	)
}

// CommandLabel reduces a full oci CLI argument list down to its leading
// non-flag tokens (e.g. ["iam", "compartment", "list", "--compartment-id",
// "..."] becomes "iam compartment list"), keeping the "command" label's
// cardinality bounded to the CLI's actual subcommand surface rather than
// exploding per OCID.
func CommandLabel(args []string) string {
	var parts []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			break
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// WriteTextfile gathers every metric in Registry and atomically installs it
// at path in the textfile-collector format, using the same
// tempfile-then-rename pattern the snapshot store uses so a textfile
// collector scraping the same directory never reads a torn file.
func WriteTextfile(path string) error {
	families, err := Registry.Gather()
	if err != nil {
		return fmt.Errorf("could not gather metrics: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".metrics-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create tempfile for metrics: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := expfmt.NewEncoder(tmp, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("could not encode metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close metrics tempfile: %w", err)
	}
	return os.Rename(tmpPath, path)
}
