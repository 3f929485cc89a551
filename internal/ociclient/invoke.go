// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package ociclient wraps invocations of the external `oci` CLI binary. It
// owns query construction, subprocess execution, and the normalization of
// the CLI's inconsistent empty-result and error-payload behavior into a
// single predictable contract for callers.
package ociclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/oci-toolkit/internal/metrics"
)

// Executable is the name (or path) of the OCI CLI binary. It is a package
// variable so that tests can point it at a stub script.
var Executable = "oci"

// Client invokes the OCI CLI on behalf of a single profile.
type Client struct {
	Profile string
	// ReadTimeout is passed to the CLI's --read-timeout flag. Zero means
	// "let the CLI apply its own default" and omits the flag entirely.
	ReadTimeout time.Duration
	// slowCallThreshold controls when Invoke logs a warning about a call
	// that took unusually long; overridable in tests.
	slowCallThreshold time.Duration
}

// NewClient creates a Client for the given profile.
func NewClient(profile string, readTimeout time.Duration) *Client {
	return &Client{
		Profile:           profile,
		ReadTimeout:       readTimeout,
		slowCallThreshold: time.Minute,
	}
}

// BuildQuery returns the `--query` flags that project a single OCI CLI
// result object down to the given field names, e.g. BuildQuery("id", "name")
// yields ["--query", "data.{id:id, name:name}"]. With no fields, it returns
// the flags for the unprojected `data` value.
func BuildQuery(fields ...string) []string {
	if len(fields) == 0 {
		return []string{"--query", "data"}
	}
	return []string{"--query", "data." + projection(fields)}
}

// BuildArrayQuery is like BuildQuery, but projects each element of a result
// list (`data[].{...}`) and additionally requests that the CLI page through
// the entire result set via `--all`.
func BuildArrayQuery(fields ...string) []string {
	var query string
	if len(fields) == 0 {
		query = "data"
	} else {
		query = "data[]." + projection(fields)
	}
	return []string{"--query", query, "--all"}
}

func projection(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s:%s", f, f)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Invoke runs `<oci> <args...> --profile <profile> --output json` and
// returns the decoded JSON result on success. When the CLI fails, the
// returned error unwraps to an Error value describing the CLI's error
// payload; a successful call whose stdout is not valid JSON returns a plain
// decode error instead.
func (c *Client) Invoke(ctx context.Context, args ...string) (any, error) {
	fullArgs := make([]string, 0, len(args)+4)
	fullArgs = append(fullArgs, args...)
	fullArgs = append(fullArgs, "--profile", c.Profile, "--output", "json")
	if c.ReadTimeout > 0 {
		fullArgs = append(fullArgs, "--read-timeout", fmt.Sprintf("%d", int(c.ReadTimeout.Seconds())))
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, Executable, fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	duration := time.Since(start)

	command := metrics.CommandLabel(args)
	outcome := "success"
	if runErr != nil {
		outcome = "error"
	}
	metrics.CLIInvocationsTotal.WithLabelValues(command, outcome).Inc()
	metrics.CLIInvocationDuration.WithLabelValues(command).Observe(duration.Seconds())

	threshold := c.slowCallThreshold
	if threshold == 0 {
		threshold = time.Minute
	}
	if duration > threshold {
		logg.Info("oci CLI call has taken excessively long (%s): %s", duration.String(), strings.Join(args, " "))
	}

	if runErr != nil {
		text := extractErrorText(stdout.String(), stderr.String())
		return nil, fmt.Errorf("oci CLI call %q failed: %w", strings.Join(args, " "), ParseError(text))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return emptyResultFor(fullArgs), nil
	}

	var value any
	if err := json.Unmarshal([]byte(out), &value); err != nil {
		return nil, fmt.Errorf("oci CLI call %q returned unparseable JSON: %w", strings.Join(args, " "), err)
	}
	return value, nil
}

// errorPreambleRx extracts the message after an "Error: " prefix that some
// OCI CLI failure modes print to stdout instead of stderr.
var errorPreambleRx = regexp.MustCompile(`Error:\s*(.*)`)

// extractErrorText picks the diagnostic text to feed into ParseError,
// preferring the first line of stderr, then an "Error: ..." match in
// stdout, then falling back to raw stdout.
func extractErrorText(stdout, stderr string) string {
	if line := firstLine(stderr); line != "" {
		return line
	}
	if match := errorPreambleRx.FindStringSubmatch(stdout); match != nil {
		return match[1]
	}
	return stdout
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

// emptyResultFor normalizes the CLI's habit of printing nothing at all on
// success for some list operations: array queries become an empty array,
// everything else becomes an empty object.
func emptyResultFor(args []string) any {
	for i, a := range args {
		if a == "--query" && i+1 < len(args) && strings.Contains(args[i+1], "data[]") {
			return []any{}
		}
	}
	return map[string]any{}
}
