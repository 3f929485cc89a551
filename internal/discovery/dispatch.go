// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"sync"

	"github.com/sapcc/go-bits/logg"
)

// Job is one section extractor's unit of work. It returns an error if any
// part of the section failed to extract. After a partial failure the
// produced fragment has already been spliced into the snapshot; a failure
// that makes the whole section impossible (such as its top-level list call)
// returns before anything is written, leaving the skeleton's empty value.
type Job struct {
	Label string
	Run   func(context.Context) error
}

// jobResult is what each Job reports back to the fan-in collector.
type jobResult struct {
	Label string
	Err   error
}

// RunPhase launches every job in the phase concurrently and blocks until
// all of them have completed (or the context is cancelled cooperatively —
// jobs already running are allowed to finish; RunPhase does not start jobs
// that haven't begun yet once ctx is done). It logs one line per completed
// job and returns nil iff every job succeeded.
func RunPhase(ctx context.Context, phaseName string, jobs []Job) error {
	results := make(chan jobResult, len(jobs))
	var wg sync.WaitGroup

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			results <- jobResult{Label: job.Label, Err: ctx.Err()}
			continue
		default:
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			err := job.Run(ctx)
			results <- jobResult{Label: job.Label, Err: err}
		}(job)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed []string
	for res := range results {
		if res.Err == nil {
			logg.Info("%s: %s: ok", phaseName, res.Label)
			continue
		}
		logg.Error("  - %s: error (exit 1): %s", res.Label, res.Err.Error())
		failed = append(failed, res.Label)
	}

	if len(failed) > 0 {
		return &PhaseError{Phase: phaseName, FailedSections: failed}
	}
	return nil
}

// PhaseError is returned by RunPhase when one or more sections failed. It
// carries the list of section labels so the orchestrator's summary log can
// name them without re-deriving anything from the section errors, which
// have already been logged individually as they completed.
type PhaseError struct {
	Phase          string
	FailedSections []string
}

func (e *PhaseError) Error() string {
	msg := e.Phase + ": sections failed:"
	for _, s := range e.FailedSections {
		msg += " " + s
	}
	return msg
}
