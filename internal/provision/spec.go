// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var adNumberPlaceholder = regexp.MustCompile(`\{\{AD_NUMBER\}\}`)

// LoadLaunchSpec reads and syntax-checks the user-supplied launch spec
// template. It is deliberately not decoded into a typed struct: the
// specification treats it as an opaque JSON object with placeholder
// substitution, not something this toolkit interprets.
func LoadLaunchSpec(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read launch spec %s: %w", path, err)
	}
	raw := string(data)
	if !json.Valid([]byte(adNumberPlaceholder.ReplaceAllString(raw, "1"))) {
		return "", fmt.Errorf("launch spec %s is not valid JSON even with placeholders substituted", path)
	}
	return raw, nil
}

// RenderPerAD substitutes every {{AD_NUMBER}} occurrence with adNumber,
// re-validates the result as JSON, and writes it to a sibling tempfile.
// The caller owns cleanup of the returned path.
func RenderPerAD(template string, adNumber int, tmpDir string) (path string, err error) {
	rendered := adNumberPlaceholder.ReplaceAllString(template, strconv.Itoa(adNumber))
	if !json.Valid([]byte(rendered)) {
		return "", fmt.Errorf("rendered spec for AD %d is not valid JSON", adNumber)
	}

	f, err := os.CreateTemp(tmpDir, fmt.Sprintf("launch-spec-ad%d.*.json", adNumber))
	if err != nil {
		return "", fmt.Errorf("could not create tempfile for AD %d spec: %w", adNumber, err)
	}
	defer f.Close()
	if _, err := f.WriteString(rendered); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("could not write tempfile for AD %d spec: %w", adNumber, err)
	}
	return f.Name(), nil
}

// adNameSuffixRx extracts the trailing AD number from an availability
// domain's fully qualified name, e.g. "kIck:PHX-AD-2" -> 2.
var adNameSuffixRx = regexp.MustCompile(`-AD-(\d+)$`)

// ParseADNumber extracts the numeric suffix from an availability domain
// name as returned by `oci iam availability-domain list`.
func ParseADNumber(name string) (int, error) {
	m := adNameSuffixRx.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, fmt.Errorf("could not parse AD number from name %q", name)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("could not parse AD number from name %q: %w", name, err)
	}
	return n, nil
}
