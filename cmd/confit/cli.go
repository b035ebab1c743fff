// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExitError carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface
func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	Files        []string
	Repeat       int
	Correlations bool
	Metrics      bool
	LogFormat    string
	LogLevel     string
	LogOutput    io.Writer
}

// parse processes command line arguments. It reports whether the program
// should exit without fitting, as after -h.
func parse(args []string, output io.Writer) (*Config, bool, error) {
	fs := flag.NewFlagSet("confit", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
confit - constrained least-squares fits of HCL problem files.

Usage:
  confit [options] FILE...

Problems from several files share one solver and are fitted in turn.

Options:
`)
		fs.PrintDefaults()
	}

	repeat := fs.Int("repeat", 1, "Fit every problem this many times, alternating between problems.")
	correlations := fs.Bool("correlations", false, "Print the correlation matrix of every successful fit.")
	withMetrics := fs.Bool("metrics", false, "Print the collected fit metrics at the end.")
	logFormat := fs.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevel := fs.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, true, nil
	}

	cfg := &Config{
		Files:        fs.Args(),
		Repeat:       *repeat,
		Correlations: *correlations,
		Metrics:      *withMetrics,
		LogFormat:    strings.ToLower(*logFormat),
		LogLevel:     strings.ToLower(*logLevel),
		LogOutput:    os.Stderr,
	}
	switch {
	case cfg.Repeat < 1:
		return nil, false, &ExitError{Code: 2, Message: "invalid repeat: must be at least 1"}
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return cfg, false, nil
}
