// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package ociclient

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var tenancyLineRx = regexp.MustCompile(`^\s*tenancy\s*=`)

// ReadTenancyOCID locates the `[profile]` section in the given OCI CLI
// config file and returns the value of its `tenancy` key. It does not
// attempt to be a general-purpose INI parser: it only tracks section
// headers and the one key this toolkit cares about.
func ReadTenancyOCID(configPath, profile string) (string, error) {
	f, err := os.Open(configPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %w", err)
	}
	defer f.Close()

	sectionHeader := "[" + profile + "]"
	inSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inSection = trimmed == sectionHeader
			continue
		}
		if !inSection {
			continue
		}
		if tenancyLineRx.MatchString(line) {
			value := strings.TrimSpace(line[strings.IndexByte(line, '=')+1:])
			if value == "" {
				return "", fmt.Errorf("empty OCID for profile %q in %s", profile, configPath)
			}
			return value, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("while reading %s: %w", configPath, err)
	}
	return "", fmt.Errorf("tenancy line missing for profile %q in %s", profile, configPath)
}
