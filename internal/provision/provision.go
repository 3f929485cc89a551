// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package provision implements the instance provisioning engine: a retry
// loop that launches a compute instance across a rotating set of
// availability domains using decorrelated-jitter exponential backoff and
// structured error classification.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/oci-toolkit/internal/metrics"
	"github.com/sapcc/oci-toolkit/internal/ociclient"
)

// Options configures a single provisioning run.
type Options struct {
	SpecPath     string
	Profile      string
	ConfigPath   string
	OutputPath   string
	ReadTimeout  time.Duration
	DryRun       bool
	ScriptName   string
}

// Run drives the full provisioning lifecycle: pre-flight validation and
// rendering, process lock acquisition, and the cycle/AD retry loop from
// §4.5. It returns nil only after an instance has actually launched (or,
// in dry-run mode, after logging what would have been attempted).
func Run(ctx context.Context, opts Options) error {
	template, err := LoadLaunchSpec(opts.SpecPath)
	if err != nil {
		return err
	}

	client := ociclient.NewClient(opts.Profile, opts.ReadTimeout)

	tenancyOCID, err := ociclient.ReadTenancyOCID(opts.ConfigPath, opts.Profile)
	if err != nil {
		return fmt.Errorf("could not determine tenancy OCID: %w", err)
	}

	adNumbers, err := discoverADNumbers(ctx, client, tenancyOCID)
	if err != nil {
		return fmt.Errorf("could not enumerate availability domains: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "oci-provision-specs-*")
	if err != nil {
		return fmt.Errorf("could not create tempdir for rendered specs: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	adSpecPaths := make(map[int]string, len(adNumbers))
	for _, ad := range adNumbers {
		path, err := RenderPerAD(template, ad, tmpDir)
		if err != nil {
			return err
		}
		adSpecPaths[ad] = path
	}

	if opts.DryRun {
		for _, ad := range adNumbers {
			logg.Info("dry-run: AD-%d would launch with spec %s", ad, adSpecPaths[ad])
		}
		return nil
	}

	lock, err := AcquireProcessLock(opts.ScriptName)
	if err != nil {
		return err
	}
	defer lock.Release()

	instance, err := runCycles(ctx, client, adNumbers, adSpecPaths)
	if err != nil {
		return err
	}

	return writeInstanceOutput(instance, opts.OutputPath)
}

// runCycles implements §4.5's main loop.
func runCycles(ctx context.Context, client *ociclient.Client, adNumbers []int, adSpecPaths map[int]string) (map[string]any, error) {
	cycle := 0
	totalErrors := 0
	backoffAttempts := 0
	maxTotalErrors := len(adNumbers) * MaxErrorCycles

	for cycle < MaxCycles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cycle++
		metrics.ProvisionRetryCyclesTotal.Inc()
		throttled := false
		cycleErrors := 0

		for i, ad := range adNumbers {
			attempt, err := launchAttempt(ctx, client, ad, adSpecPaths[ad])
			token := Classify(attempt.Attempt)
			metrics.ProvisionLaunchAttemptsTotal.WithLabelValues(string(token)).Inc()

			switch token {
			case TokenOK:
				logg.Info("AD-%d: launch succeeded", ad)
				return attempt.result, nil
			case TokenAuth:
				return nil, fmt.Errorf("AD-%d: authentication error — %s", ad, attempt.Message)
			case TokenConfig:
				return nil, fmt.Errorf("AD-%d: configuration error — %s", ad, attempt.Message)
			}

			effect := EffectOf(token)
			totalErrors += effect.TotalErrors
			cycleErrors += effect.CycleErrors
			if effect.Throttled {
				throttled = true
			}
			if err != nil {
				logg.Info("AD-%d: %s: %s", ad, token, err.Error())
			} else {
				logg.Info("AD-%d: %s", ad, token)
			}

			if totalErrors >= maxTotalErrors {
				return nil, fmt.Errorf("too many transient errors (%d >= %d)", totalErrors, maxTotalErrors)
			}

			if i < len(adNumbers)-1 {
				sleepCtx(ctx, interADSleep())
			}
		}

		backoffAttempts = nextBackoffAttempts(backoffAttempts, throttled)
		if cycleErrors == 0 {
			totalErrors = 0
		}

		sleepCtx(ctx, computeAdaptiveSleep(backoffAttempts))
	}

	return nil, errors.New("max cycles reached")
}

// launchAttemptResult wraps Attempt with the decoded instance payload on
// success, since Attempt itself only carries the classification inputs.
type launchAttemptResult struct {
	Attempt
	result map[string]any
}

func launchAttempt(ctx context.Context, client *ociclient.Client, ad int, specPath string) (launchAttemptResult, error) {
	raw, err := client.Invoke(ctx, "compute", "instance", "launch", "--from-json", "file://"+specPath)
	if err != nil {
		var ociErr ociclient.Error
		if errors.As(err, &ociErr) {
			return launchAttemptResult{Attempt: Attempt{
				ExitCode: 1,
				Code:     ociErr.Code,
				Message:  ociErr.Message,
				Status:   ociErr.Status,
				Preamble: ociErr.Raw,
			}}, err
		}
		return launchAttemptResult{Attempt: Attempt{ExitCode: 1, Preamble: ""}}, err
	}

	instance, ok := raw.(map[string]any)
	if !ok {
		return launchAttemptResult{Attempt: Attempt{ExitCode: 1, Preamble: fmt.Sprint(raw)}},
			fmt.Errorf("AD-%d: launch returned unexpected payload shape %T", ad, raw)
	}
	return launchAttemptResult{Attempt: Attempt{ExitCode: 0, Preamble: "ok"}, result: instance}, nil
}

// discoverADNumbers lists the tenancy's availability domains and extracts
// their numeric suffixes, in the order the CLI returns them.
func discoverADNumbers(ctx context.Context, client *ociclient.Client, tenancyOCID string) ([]int, error) {
	raw, err := client.Invoke(ctx, "iam", "availability-domain", "list", "--compartment-id", tenancyOCID,
		"--query", "data[].name")
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array of AD names, got %T", raw)
	}
	numbers := make([]int, 0, len(items))
	for _, item := range items {
		name := fmt.Sprint(item)
		n, err := ParseADNumber(name)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return nil, errors.New("tenancy reports zero availability domains")
	}
	return numbers, nil
}

func writeInstanceOutput(instance map[string]any, outputPath string) error {
	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize launched instance: %w", err)
	}
	if outputPath == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(outputPath, append(data, '\n'), 0o644)
}

// sleepCtx sleeps for d or returns early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
