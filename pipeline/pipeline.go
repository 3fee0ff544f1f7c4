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

// Package pipeline wires ingestion, normalization, noise filtering, episode
// building, situation assembly, temporal spreading, correlation and cause
// selection into one batch run, and emits the resulting NDJSON stream.
package pipeline

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitroom/alert"
	"sitroom/cause"
	"sitroom/config"
	"sitroom/correlation"
	"sitroom/emit"
	"sitroom/episode"
	"sitroom/errors"
	"sitroom/ingestion"
	"sitroom/metrics"
	"sitroom/noisefilter"
	"sitroom/situation"
	"sitroom/temporal"
	"sitroom/topology"
)

// Run executes one complete batch pass over cfg.Input and writes the
// resulting record stream to out. It returns a categorized error on fatal
// conditions (missing input, unwritable output); per-record and per-file
// failures are logged and skipped, never fatal.
func Run(cfg *config.Config, out io.Writer, logger *zap.Logger) error {
	m := metrics.New()
	runTimer := metrics.NewTimer(m.PipelineDuration, "total")
	defer runTimer.Stop()

	graph, err := loadGraph(cfg.Graph)
	if err != nil {
		return err
	}

	rawRecords, err := ingestion.New(logger).Load(cfg.Input)
	if err != nil {
		return err
	}

	normalizer := alert.New(logger)
	alerts := normalizer.NormalizeAll(rawRecords)
	m.AlertsProcessedTotal.Add(float64(len(alerts)))
	m.AlertsSkippedTotal.WithLabelValues("malformed_record").Add(float64(len(rawRecords) - len(alerts)))

	filter := noisefilter.New(cfg.DedupTTLSec, logger)
	filtered := filter.Apply(alerts)

	episodes := episode.New(cfg.EpisodeGapSec).Build(filtered)

	situations := situation.New(graph).Assemble(episodes)
	temporal.New().Spread(situations, filtered)

	// max_lag_sec is used directly as a bin count bound, matching the
	// ancestor's behavior of capping the lead-lag search at
	// min(args.max_lag, series length - 1) regardless of bin_size_s.
	corrEngine := correlation.New(cfg.MinSupport, cfg.MaxLagSec)
	causeSelector := cause.New(graph, filter)

	correlations := processSituations(situations, corrEngine, causeSelector, cfg.Concurrency)

	m.SituationsCreatedTotal.Add(float64(len(situations)))
	for _, rec := range correlations {
		m.CorrelationsFoundTotal.WithLabelValues(rec.Method).Inc()
	}

	writer := emit.New(out)
	if err := writer.WriteRunMeta(buildRunMeta(cfg, len(rawRecords), len(filtered), len(episodes), len(situations), len(correlations))); err != nil {
		return err
	}
	if err := writer.WriteSituations(situations); err != nil {
		return err
	}
	if err := writer.WriteCorrelations(correlations); err != nil {
		return err
	}
	return writer.Flush()
}

// processSituations runs correlation and cause selection over every
// situation, optionally across a bounded worker pool, preserving the
// original situation order in the flattened correlation record list.
func processSituations(situations []*situation.Situation, corrEngine *correlation.Engine, causeSelector *cause.Selector, concurrency int) []correlation.Record {
	perSituation := make([][]correlation.Record, len(situations))

	if concurrency <= 1 {
		for i, sit := range situations {
			perSituation[i] = processOne(sit, corrEngine, causeSelector)
		}
		return flatten(perSituation)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				perSituation[i] = processOne(situations[i], corrEngine, causeSelector)
			}
		}()
	}
	for i := range situations {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return flatten(perSituation)
}

func processOne(sit *situation.Situation, corrEngine *correlation.Engine, causeSelector *cause.Selector) []correlation.Record {
	records := corrEngine.Run(sit)
	causeSelector.Select(sit)
	return records
}

func flatten(groups [][]correlation.Record) []correlation.Record {
	var all []correlation.Record
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func loadGraph(path string) (*topology.Graph, error) {
	if path == "" {
		return topology.Empty(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.MissingInput("load-graph", err)
	}
	defer f.Close()
	return topology.Load(f)
}

func buildRunMeta(cfg *config.Config, rawAlerts, processedAlerts, episodesCreated, situationsCreated, correlationsFound int) emit.RunMeta {
	return emit.RunMeta{
		InputDir:          cfg.Input,
		WindowSec:         cfg.Window,
		MaxLagSec:         cfg.MaxLagSec,
		MinSupport:        cfg.MinSupport,
		DedupTTLSec:       cfg.DedupTTLSec,
		EpisodeGapSec:     cfg.EpisodeGapSec,
		RawAlerts:         rawAlerts,
		ProcessedAlerts:   processedAlerts,
		EpisodesCreated:   episodesCreated,
		SituationsCreated: situationsCreated,
		CorrelationsFound: correlationsFound,
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}
