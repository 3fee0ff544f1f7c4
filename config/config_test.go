// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.DedupTTLSec != 120 {
		t.Errorf("Expected DedupTTLSec to be 120, got %d", cfg.DedupTTLSec)
	}
	if cfg.EpisodeGapSec != 300 {
		t.Errorf("Expected EpisodeGapSec to be 300, got %d", cfg.EpisodeGapSec)
	}
	if cfg.MinSupport != 2 {
		t.Errorf("Expected MinSupport to be 2, got %d", cfg.MinSupport)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LogLevel to be info, got %s", cfg.LogLevel)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Expected Concurrency to be 1, got %d", cfg.Concurrency)
	}
	if cfg.Window != 0 || cfg.Hop != 0 {
		t.Errorf("Expected reserved Window/Hop to default to 0, got %d/%d", cfg.Window, cfg.Hop)
	}
}

func TestLoadReturnsSameInstance(t *testing.T) {
	Global = nil
	a := Load()
	b := Load()
	if a != b {
		t.Errorf("Expected Load to return the same global instance")
	}
}

func TestGetCreatesDefaultsWhenUnset(t *testing.T) {
	Global = nil
	cfg := Get()
	if cfg == nil {
		t.Fatal("Expected Get to return a non-nil Config")
	}
	if cfg.EpisodeGapSec != 300 {
		t.Errorf("Expected Get to fall back to defaults, got EpisodeGapSec=%d", cfg.EpisodeGapSec)
	}
}

func TestBindFlagsOverridesDefaults(t *testing.T) {
	cfg := GetDefaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	if err := fs.Parse([]string{"--dedup-ttl=60", "--min-support=3", "--input=alerts.json"}); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if cfg.DedupTTLSec != 60 {
		t.Errorf("Expected DedupTTLSec to be overridden to 60, got %d", cfg.DedupTTLSec)
	}
	if cfg.MinSupport != 3 {
		t.Errorf("Expected MinSupport to be overridden to 3, got %d", cfg.MinSupport)
	}
	if cfg.Input != "alerts.json" {
		t.Errorf("Expected Input to be alerts.json, got %s", cfg.Input)
	}
}

func TestValidateRequiresInput(t *testing.T) {
	cfg := GetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("Expected Validate to reject a missing Input")
	}

	cfg.Input = "alerts.json"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected Validate to pass with Input set, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.DedupTTLSec = -1 },
		func(c *Config) { c.EpisodeGapSec = 0 },
		func(c *Config) { c.MaxLagSec = -5 },
		func(c *Config) { c.MinSupport = 0 },
		func(c *Config) { c.Concurrency = 0 },
		func(c *Config) { c.LogLevel = "verbose" },
	}

	for i, mutate := range cases {
		cfg := GetDefaults()
		cfg.Input = "alerts.json"
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected Validate to reject the mutated config", i)
		}
	}
}

func TestClone(t *testing.T) {
	cfg := GetDefaults()
	cfg.Input = "alerts.json"
	cfg.MinSupport = 5

	clone := cfg.Clone()
	clone.MinSupport = 99

	if cfg.MinSupport == clone.MinSupport {
		t.Error("Expected Clone to return an independent copy")
	}
	if clone.Input != "alerts.json" {
		t.Errorf("Expected Clone to carry over Input, got %s", clone.Input)
	}
}
