// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command confit fits the problems described in HCL files and prints the results.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/curioloop/confit/fit"
	"github.com/curioloop/confit/metrics"
	"github.com/curioloop/confit/problem"
	"github.com/curioloop/confit/solver"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run fits every problem file named in args on one shared solver.
func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := parse(args, outW)
	if err != nil || shouldExit {
		return err
	}

	logger := newLogger(cfg)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	backend := fit.NewBackend(solver.New(solver.WithLogger(logger)))

	fitters := make([]*fit.Fitter, 0, len(cfg.Files))
	for _, path := range cfg.Files {
		p, err := problem.Load(path)
		if err != nil {
			return err
		}
		f, err := p.Fitter(backend, fit.WithLogger(logger), fit.WithMetrics(m))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("problem loaded", "file", path, "fitter", f.Name(), "variables", len(f.VariableNames()))
		fitters = append(fitters, f)
	}

	failed := 0
	for round := 0; round < cfg.Repeat; round++ {
		for _, f := range fitters {
			res, err := f.DoFit()
			if err != nil {
				return fmt.Errorf("fit %s: %w", f.Name(), err)
			}
			if res.Status != fit.Success {
				failed++
			}
			if round == cfg.Repeat-1 {
				printResult(outW, res, cfg.Correlations)
			}
		}
	}
	logger.Info("fits done", "problems", len(fitters), "rounds", cfg.Repeat, "switches", backend.Switches())

	if cfg.Metrics {
		if err := printMetrics(outW, reg); err != nil {
			return err
		}
	}
	if failed > 0 {
		return &ExitError{Code: 3, Message: fmt.Sprintf("%d fits did not succeed", failed)}
	}
	return nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(cfg.LogOutput, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(cfg.LogOutput, &tint.Options{Level: level, TimeFormat: "15:04:05"})
	}
	return slog.New(h)
}

func printResult(w io.Writer, res *fit.Result, correlations bool) {
	fmt.Fprintf(w, "fit %s: %s", res.Name, res.Status)
	if res.Status != fit.Success {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "  chi2=%.6g ndof=%d p=%.4g iterations=%d calls=%d\n",
		res.ChiSquare, res.NDoF, res.Probability, res.NIterations, res.NFunctionCalls)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "variable\tbefore\tsigma\tafter\tsigma\tpull\t")
	for _, v := range res.Variables {
		fmt.Fprintf(tw, "%s\t%.6g\t%.4g\t%.6g\t%.4g\t%.3f\t\n",
			v.Name, v.Value.Before, v.Sigma.Before, v.Value.After, v.Sigma.After, v.Pull)
	}
	_ = tw.Flush()

	names := make([]string, len(res.Constraints))
	for k, c := range res.Constraints {
		names[k] = fmt.Sprintf("%s(%d)", c.Name, c.Number)
	}
	fmt.Fprintf(w, "constraints: %s\n", strings.Join(names, " "))

	if !correlations {
		return
	}
	corr := res.Correlations()
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, v := range res.Variables {
		fmt.Fprintf(tw, "%s\t", v.Name)
	}
	fmt.Fprintln(tw)
	for _, vi := range res.Variables {
		fmt.Fprintf(tw, "%s\t", vi.Name)
		for _, vj := range res.Variables {
			fmt.Fprintf(tw, "%.3f\t", corr[vi.Name][vj.Name])
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

// printMetrics writes one line per sample of the confit collectors.
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				value = fmt.Sprintf("%g", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("count=%d sum=%g", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %s", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
