/******************************************************************************
*
*  Copyright 2023 SAP SE
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
*
******************************************************************************/

// Package toolkit holds small helper types shared between the discovery and
// provisioning engines.
package toolkit

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrorSet accumulates diagnostics from a loop that must keep going after a
// single iteration fails, e.g. a section extractor walking many parent
// resources. Add/Addf never abort; the caller decides at the end whether an
// accumulated ErrorSet should turn the section's exit code nonzero.
//
// It is a thin wrapper around multierror.Error rather than a bare []error,
// reusing multierror's accumulation instead of re-implementing it; Join
// renders the specification's own newline-per-error format rather than
// multierror's default summary-line format.
type ErrorSet struct {
	errs *multierror.Error
}

// Add adds the given error to the set if it is non-nil.
func (errs *ErrorSet) Add(err error) {
	if err == nil {
		return
	}
	errs.errs = multierror.Append(errs.errs, err)
}

// Addf is a shorthand for errs.Add(fmt.Errorf(...)).
func (errs *ErrorSet) Addf(msg string, args ...any) {
	errs.Add(fmt.Errorf(msg, args...))
}

// Append adds all errors from the `other` ErrorSet to this one.
func (errs *ErrorSet) Append(other ErrorSet) {
	if other.errs == nil {
		return
	}
	for _, err := range other.errs.Errors {
		errs.Add(err)
	}
}

// IsEmpty returns true if no errors are in the set.
func (errs ErrorSet) IsEmpty() bool {
	return errs.errs == nil || len(errs.errs.Errors) == 0
}

// Join renders every accumulated error as one newline-joined diagnostic
// string, matching the log line format used by the discovery orchestrator.
func (errs ErrorSet) Join() string {
	if errs.errs == nil {
		return ""
	}
	lines := make([]string, len(errs.errs.Errors))
	for i, err := range errs.errs.Errors {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}
