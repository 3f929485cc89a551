/*******************************************************************************
*
* Copyright 2017-2020 SAP SE
*
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You should have received a copy of the License along with this
* program. If not, you may obtain a copy of the License at
*
*     http://www.apache.org/licenses/LICENSE-2.0
*
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
*
*******************************************************************************/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/oci-toolkit/internal/metrics"
	"github.com/sapcc/oci-toolkit/internal/provision"
)

func main() {
	var (
		specPath    string
		profile     string
		configPath  string
		outputPath  string
		metricsPath string
		timeout     int
		dryRun      bool
		quiet       bool
		verbose     bool
	)

	fs := flag.NewFlagSet("instance-provision", flag.ContinueOnError)
	fs.StringVar(&specPath, "spec", "", "path to the launch spec template (required)")
	fs.StringVar(&specPath, "s", "", "shorthand for --spec")
	fs.StringVar(&profile, "profile", "DEFAULT", "OCI CLI profile to use")
	fs.StringVar(&profile, "p", "DEFAULT", "shorthand for --profile")
	fs.StringVar(&configPath, "config", os.Getenv("OCI_CONFIG_FILE"), "path to the OCI config file (defaults to the CLI's own default)")
	fs.StringVar(&configPath, "c", os.Getenv("OCI_CONFIG_FILE"), "shorthand for --config")
	fs.StringVar(&outputPath, "output", "", "path to write the launched instance JSON to (default: stdout)")
	fs.StringVar(&outputPath, "o", "", "shorthand for --output")
	fs.StringVar(&metricsPath, "metrics-file", os.Getenv("OCI_METRICS_FILE"), "path to write a Prometheus textfile-collector metrics dump to (default: none)")
	fs.IntVar(&timeout, "timeout", 0, "OCI CLI --read-timeout in seconds (0 = CLI default)")
	fs.IntVar(&timeout, "t", 0, "shorthand for --timeout")
	fs.BoolVar(&dryRun, "dry-run", false, "render specs and log intended commands without launching")
	fs.BoolVar(&quiet, "quiet", false, "disable DEBUG log lines, overriding --verbose (INFO lines are still printed)")
	fs.BoolVar(&quiet, "q", false, "shorthand for --quiet")
	fs.BoolVar(&verbose, "verbose", false, "enable DEBUG log lines")
	fs.BoolVar(&verbose, "v", false, "shorthand for --verbose")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if specPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --spec is required")
		os.Exit(2)
	}

	if verbose {
		logg.ShowDebug = true
	}
	if quiet {
		logg.ShowDebug = false
	}
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	var exitCodeFromSignal atomic.Int32
	go func() {
		sig := <-sigCh
		if sig == syscall.SIGTERM {
			exitCodeFromSignal.Store(143)
		} else {
			exitCodeFromSignal.Store(130)
		}
		cancel()
	}()

	opts := provision.Options{
		SpecPath:    specPath,
		Profile:     profile,
		ConfigPath:  configPath,
		OutputPath:  outputPath,
		ReadTimeout: time.Duration(timeout) * time.Second,
		DryRun:      dryRun,
		ScriptName:  "instance-provision",
	}

	err := provision.Run(ctx, opts)

	if metricsPath != "" {
		if writeErr := metrics.WriteTextfile(metricsPath); writeErr != nil {
			logg.Info("could not write metrics file: %s", writeErr.Error())
		}
	}

	if err == nil {
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	if code := exitCodeFromSignal.Load(); errors.Is(err, context.Canceled) && code != 0 {
		os.Exit(int(code))
	}
	os.Exit(1)
}

// defaultConfigPath mirrors the OCI CLI's own default config location,
// used when neither --config nor $OCI_CONFIG_FILE was given.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.oci/config"
}
