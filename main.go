/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l7mp/materialite/internal/buildinfo"
	"github.com/l7mp/materialite/internal/scenario"
	"github.com/l7mp/materialite/pkg/materialite"
	"github.com/l7mp/materialite/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func main() {
	var scenarioFile, format string
	var verbosity int
	var development, dumpMetrics bool

	flag.StringVar(&scenarioFile, "scenario", "", "The YAML scenario to run.")
	flag.StringVar(&format, "format", "text",
		"Output format: text prints the view after each step, dot and mermaid render the dataflow graph.")
	flag.IntVar(&verbosity, "v", 0, "Log verbosity, higher is more verbose.")
	flag.BoolVar(&development, "zap-devel", true, "Use the zap development logger.")
	flag.BoolVar(&dumpMetrics, "metrics", false, "Print the commit metrics when done.")
	flag.Parse()

	logger, err := newLogger(development, verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create logger: %v\n", err)
		os.Exit(1)
	}
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.BuildInfo{Program: "materialite", Version: version, CommitHash: commitHash,
		BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting %s", buildInfo.String()))

	if scenarioFile == "" {
		setupLog.Error(nil, "no scenario given, use -scenario <file>")
		os.Exit(2)
	}

	s, err := scenario.Load(scenarioFile)
	if err != nil {
		setupLog.Error(err, "unable to load scenario")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	r, err := scenario.NewRunner(s, logger, materialite.WithMetrics(reg))
	if err != nil {
		setupLog.Error(err, "unable to set up scenario")
		os.Exit(1)
	}

	if err := run(os.Stdout, r, format); err != nil {
		setupLog.Error(err, "problem running scenario")
		os.Exit(1)
	}

	if dumpMetrics {
		if err := writeMetrics(os.Stdout, reg); err != nil {
			setupLog.Error(err, "unable to write metrics")
			os.Exit(1)
		}
	}
}

func newLogger(development bool, verbosity int) (logr.Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.DisableStacktrace = true

	zl, err := config.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

func run(w io.Writer, r *scenario.Runner, format string) error {
	if format == "text" {
		fmt.Fprintln(w, r.Current("initial"))
		r.Run(func(res scenario.Result) { fmt.Fprintln(w, res) })
		return nil
	}

	gen, err := visualize.NewGenerator(format)
	if err != nil {
		return err
	}
	r.Run(func(scenario.Result) {})
	_, err = fmt.Fprint(w, gen.Generate(r.Materialite().Graph()))
	return err
}

func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
