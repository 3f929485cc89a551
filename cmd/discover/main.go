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
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/oci-toolkit/internal/discovery"
	"github.com/sapcc/oci-toolkit/internal/metrics"
)

func main() {
	var (
		profile     string
		configPath  string
		outputPath  string
		metricsPath string
		timeout     int
		quiet       bool
		verbose     bool
	)

	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.StringVar(&profile, "profile", envOr("OCI_PROFILE", "DEFAULT"), "OCI CLI profile to use")
	fs.StringVar(&profile, "p", envOr("OCI_PROFILE", "DEFAULT"), "shorthand for --profile")
	fs.StringVar(&configPath, "config", envOr("OCI_CONFIG_FILE", ""), "path to the OCI config file (defaults to the CLI's own default)")
	fs.StringVar(&configPath, "c", envOr("OCI_CONFIG_FILE", ""), "shorthand for --config")
	fs.StringVar(&outputPath, "output", os.Getenv("OCI_SNAPSHOT_OUTPUT"), "path to write the snapshot to")
	fs.StringVar(&outputPath, "o", os.Getenv("OCI_SNAPSHOT_OUTPUT"), "shorthand for --output")
	fs.StringVar(&metricsPath, "metrics-file", os.Getenv("OCI_METRICS_FILE"), "path to write a Prometheus textfile-collector metrics dump to (default: none)")
	fs.IntVar(&timeout, "timeout", 0, "OCI CLI --read-timeout in seconds (0 = CLI default)")
	fs.IntVar(&timeout, "t", 0, "shorthand for --timeout")
	fs.BoolVar(&quiet, "quiet", false, "disable DEBUG log lines, overriding --verbose (INFO lines are still printed)")
	fs.BoolVar(&quiet, "q", false, "shorthand for --quiet")
	fs.BoolVar(&verbose, "verbose", false, "enable DEBUG log lines")
	fs.BoolVar(&verbose, "v", false, "shorthand for --verbose")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if verbose {
		logg.ShowDebug = true
	}
	if quiet {
		logg.ShowDebug = false
	}

	if outputPath == "" {
		outputPath = defaultOutputPath(profile)
	}
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	opts := discovery.Options{
		Profile:      profile,
		ConfigPath:   configPath,
		SnapshotPath: outputPath,
		ReadTimeout:  time.Duration(timeout) * time.Second,
	}

	runErr := discovery.Run(context.Background(), opts)

	if metricsPath != "" {
		if err := metrics.WriteTextfile(metricsPath); err != nil {
			logg.Info("could not write metrics file: %s", err.Error())
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", runErr.Error())
		os.Exit(1)
	}
}

func defaultOutputPath(profile string) string {
	return fmt.Sprintf("snapshot-%s-%s.json", strings.ToLower(profile), time.Now().UTC().Format("20060102150405"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
