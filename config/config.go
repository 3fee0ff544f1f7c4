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

// Package config provides configuration management for the sitroom
// correlation pipeline: the recognized-option table, defaults, and
// validation, bound to CLI flags by cmd/sitroom via cobra/pflag.
package config

import (
	"fmt"
	"sync"

	"github.com/spf13/pflag"
)

// Config holds every option the pipeline recognizes for one run.
type Config struct {
	mu sync.RWMutex

	// Input/output.
	Input string // path to the input alert file or directory
	Out   string // path to write the NDJSON record stream; "-" for stdout
	Graph string // path to the external adjacency graph document; "" if none

	// Reserved. Declared for interface parity with a future sliding-window
	// mode; not consumed by any stage in this design.
	Window int
	Hop    int

	// NoiseFilter.
	DedupTTLSec int

	// EpisodeBuilder.
	EpisodeGapSec int

	// CorrelationEngine.
	MaxLagSec  int
	MinSupport int

	// Ambient.
	LogLevel    string // debug, info, warn, error
	MetricsAddr string // e.g. ":9090"; empty disables the metrics server
	Concurrency int    // situations processed in parallel; 1 = sequential
}

// Global config instance with thread-safe access, mirroring the package's
// singleton convention even though cmd/sitroom only ever constructs one
// immutable Config per run — pipeline.Run may also be called directly by a
// caller sharing one *Config across goroutines.
var (
	Global     *Config
	globalLock sync.RWMutex
)

// GetDefaults returns a new Config with default values.
func GetDefaults() *Config {
	return &Config{
		Window: 0,
		Hop:    0,

		DedupTTLSec:   120,
		EpisodeGapSec: 300,
		MaxLagSec:     300,
		MinSupport:    2,

		LogLevel:    "info",
		MetricsAddr: "",
		Concurrency: 1,
	}
}

// Load returns the global Config, creating it from defaults on first call.
func Load() *Config {
	globalLock.Lock()
	defer globalLock.Unlock()
	if Global == nil {
		Global = GetDefaults()
	}
	return Global
}

// Get returns the global Config; when Load hasn't been called yet it
// creates the global from defaults, as Load would.
func Get() *Config {
	globalLock.RLock()
	if Global != nil {
		defer globalLock.RUnlock()
		return Global
	}
	globalLock.RUnlock()

	globalLock.Lock()
	defer globalLock.Unlock()
	if Global == nil {
		Global = GetDefaults()
	}
	return Global
}

// BindFlags registers every recognized option on fs, defaulting each flag
// to the value already present on c (normally GetDefaults()).
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs.StringVar(&c.Input, "input", c.Input, "path to the input alert file or directory")
	fs.StringVar(&c.Out, "out", c.Out, "path to write the NDJSON record stream (\"-\" for stdout)")
	fs.StringVar(&c.Graph, "graph", c.Graph, "path to the external adjacency graph document")

	fs.IntVar(&c.Window, "window", c.Window, "reserved; not consumed by the current design")
	fs.IntVar(&c.Hop, "hop", c.Hop, "reserved; not consumed by the current design")

	fs.IntVar(&c.DedupTTLSec, "dedup-ttl", c.DedupTTLSec, "dedup window in seconds")
	fs.IntVar(&c.EpisodeGapSec, "episode-gap", c.EpisodeGapSec, "episode split threshold in seconds")
	fs.IntVar(&c.MaxLagSec, "max-lag", c.MaxLagSec, "lead-lag search bound in seconds")
	fs.IntVar(&c.MinSupport, "min-support", c.MinSupport, "minimum co-occurrence/aligned-burst count for emission")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve Prometheus metrics on; empty disables it")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "number of situations to process in parallel")
}

// Validate checks that the configured values are usable. It does not check
// that Input/Graph exist on disk — that's ingestion's job at the point of
// use, so the error carries the right category (errors.MissingInput).
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Input == "" {
		return fmt.Errorf("config: input is required")
	}
	if c.DedupTTLSec < 0 {
		return fmt.Errorf("config: dedup-ttl must be >= 0, got %d", c.DedupTTLSec)
	}
	if c.EpisodeGapSec <= 0 {
		return fmt.Errorf("config: episode-gap must be > 0, got %d", c.EpisodeGapSec)
	}
	if c.MaxLagSec < 0 {
		return fmt.Errorf("config: max-lag must be >= 0, got %d", c.MaxLagSec)
	}
	if c.MinSupport < 1 {
		return fmt.Errorf("config: min-support must be >= 1, got %d", c.MinSupport)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unrecognized log-level %q", c.LogLevel)
	}
	return nil
}

// Clone returns a deep copy of c, safe to mutate independently.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Input:         c.Input,
		Out:           c.Out,
		Graph:         c.Graph,
		Window:        c.Window,
		Hop:           c.Hop,
		DedupTTLSec:   c.DedupTTLSec,
		EpisodeGapSec: c.EpisodeGapSec,
		MaxLagSec:     c.MaxLagSec,
		MinSupport:    c.MinSupport,
		LogLevel:      c.LogLevel,
		MetricsAddr:   c.MetricsAddr,
		Concurrency:   c.Concurrency,
	}
}
