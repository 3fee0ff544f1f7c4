// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command sitroom runs one batch pass of the alert-correlation pipeline
// over a file or directory of vendor alert records and writes an NDJSON
// stream of situations and correlation findings to stdout or a file.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"sitroom/config"
	"sitroom/errors"
	"sitroom/logger"
	"sitroom/metrics"
	"sitroom/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.GetDefaults()
	console := logger.NewConsole("info", "sitroom")

	cmd := &cobra.Command{
		Use:           "sitroom",
		Short:         "Correlate alerts into situations and rank likely root causes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			console = logger.NewConsole(cfg.LogLevel, "sitroom")
			return execute(cfg, console)
		},
	}
	cfg.BindFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		console.Error("%v", err)
		return exitCode(err)
	}
	return 0
}

func execute(cfg *config.Config, console *logger.Console) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryInput, "validate-config", "fatally malformed configuration")
	}

	zl, err := logger.NewZap(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	console.Info("sitroom starting, input=%s out=%s concurrency=%d", cfg.Input, outputLabel(cfg.Out), cfg.Concurrency)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				zl.Warn("metrics server stopped")
			}
		}()
		console.Info("serving Prometheus metrics on %s", cfg.MetricsAddr)
	}

	out, closeFn, err := openOutput(cfg.Out)
	if err != nil {
		return errors.Wrap(err, errors.CategoryEmit, "open-output", "cannot open output destination")
	}
	defer closeFn()

	if err := pipeline.Run(cfg, out, zl); err != nil {
		return err
	}

	console.Info("sitroom finished")
	return nil
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func outputLabel(path string) string {
	if path == "" {
		return "-"
	}
	return path
}

// exitCode maps a categorized pipeline error to a process exit status: 0 is
// reserved for success, input errors (including malformed configuration,
// which execute wraps as an input error) and emitter failures exit 2, and
// any other fatal error exits 1.
func exitCode(err error) int {
	switch errors.GetCategory(err) {
	case errors.CategoryInput, errors.CategoryEmit:
		return 2
	default:
		return 1
	}
}
