// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the tenancy discovery engine: a sequence of
// phases, each either a single bootstrap step or a fan-out/fan-in group of
// section extractors, all writing into one snapshot document.
package discovery

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/oci-toolkit/internal/ociclient"
	"github.com/sapcc/oci-toolkit/internal/snapshot"
	"github.com/sapcc/oci-toolkit/internal/toolkit"
)

// Options configures a discovery run.
type Options struct {
	Profile         string
	ConfigPath      string
	SnapshotPath    string
	ReadTimeout     time.Duration
	IgnoredTagNames []string
}

// Run executes the full six-phase discovery sequence against a freshly
// initialised snapshot at opts.SnapshotPath: tenancy bootstrap, then IAM,
// network, DNS, certificates, and storage. IAM and network run their
// section extractors concurrently; DNS, certificates, and storage run
// sequentially, in that order, after network completes.
//
// Run installs its own SIGINT/SIGTERM handling: a first signal cancels the
// context cooperatively (jobs already in flight are allowed to finish and
// their partial writes are kept); Run then returns whatever error resulted
// from the cancellation.
func Run(parent context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshot.CleanupStrayFiles(opts.SnapshotPath)
	defer snapshot.CleanupStrayFiles(opts.SnapshotPath)

	client := ociclient.NewClient(opts.Profile, opts.ReadTimeout)

	tenancyOCID, err := ociclient.ReadTenancyOCID(opts.ConfigPath, opts.Profile)
	if err != nil {
		return fmt.Errorf("could not determine tenancy OCID: %w", err)
	}

	if err := snapshot.Init(opts.SnapshotPath, opts.Profile, tenancyOCID, opts.IgnoredTagNames); err != nil {
		return fmt.Errorf("could not initialize snapshot: %w", err)
	}

	var errs toolkit.ErrorSet

	logg.Info("phase 1/6: tenancy")
	if err := captureTenancy(ctx, client, opts.SnapshotPath, tenancyOCID); err != nil {
		errs.Addf("tenancy: %w", err)
		// Every later phase depends on iam.tenancy.id being resolvable
		// (compartment enumeration reads it back from the snapshot), so a
		// failure here is fatal rather than partial.
		return fmt.Errorf("%s", errs.Join())
	}

	logg.Info("phase 2/6: iam")
	if err := RunPhase(ctx, "iam", iamPhaseJobs(client, opts.SnapshotPath, tenancyOCID)); err != nil {
		errs.Add(err)
	}

	logg.Info("phase 3/6: network")
	if err := RunPhase(ctx, "network", networkPhaseJobs(client, opts.SnapshotPath)); err != nil {
		errs.Add(err)
	}

	logg.Info("phase 4/6: dns")
	if err := RunPhase(ctx, "dns", dnsPhaseJobs(client, opts.SnapshotPath, tenancyOCID)); err != nil {
		errs.Add(err)
	}

	logg.Info("phase 5/6: certificates")
	if err := RunPhase(ctx, "certificates", certsPhaseJobs(client, opts.SnapshotPath)); err != nil {
		errs.Add(err)
	}

	logg.Info("phase 6/6: storage")
	if err := RunPhase(ctx, "storage", storagePhaseJobs(client, opts.SnapshotPath)); err != nil {
		errs.Add(err)
	}

	logg.Info("discovery complete")

	if err := ctx.Err(); err != nil {
		errs.Addf("discovery interrupted: %w", err)
	}

	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%s", errs.Join())
}
