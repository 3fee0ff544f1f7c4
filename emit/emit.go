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

// Package emit writes the NDJSON record stream: one run_meta record, one
// situation record per situation, then one correlation record per finding.
package emit

import (
	"bufio"
	"encoding/json"
	"io"

	"sitroom/correlation"
	"sitroom/errors"
	"sitroom/situation"
)

// RunMeta is the first record written to every output stream.
type RunMeta struct {
	Type              string `json:"type"`
	InputDir          string `json:"input_dir"`
	WindowSec         int    `json:"window_sec"`
	MaxLagSec         int    `json:"max_lag_sec"`
	MinSupport        int    `json:"min_support"`
	DedupTTLSec       int    `json:"dedup_ttl_sec"`
	EpisodeGapSec     int    `json:"episode_gap_sec"`
	RawAlerts         int    `json:"raw_alerts"`
	ProcessedAlerts   int    `json:"processed_alerts"`
	EpisodesCreated   int    `json:"episodes_created"`
	SituationsCreated int    `json:"situations_created"`
	CorrelationsFound int    `json:"correlations_found"`
	GeneratedAt       string `json:"generated_at"`
}

type situationRecord struct {
	Type                       string                  `json:"type"`
	SituationID                string                  `json:"situation_id"`
	Window                     situation.Window        `json:"window"`
	Episodes                   []situation.EpisodeRef  `json:"episodes"`
	PrimaryCause               *situation.PrimaryCause `json:"primary_cause"`
	BlastRadius                situation.BlastRadius   `json:"blast_radius"`
	ChangeRefs                 []situation.ChangeRef   `json:"change_refs"`
	ResourceRefs               []situation.ResourceRef `json:"resource_refs"`
	RelatedAlerts              []situation.RelatedAlert `json:"related_alerts"`
	Score                      float64                 `json:"score"`
	NextActions                []string                `json:"next_actions"`
	InsufficientTemporalSpread bool                    `json:"insufficient_temporal_spread"`
	Reason                     string                  `json:"reason,omitempty"`
	PadMSUsed                  int64                   `json:"pad_ms_used"`
	BinSizeS                   int                     `json:"bin_size_s"`
}

// Writer serializes run_meta, situation and correlation records as NDJSON,
// one JSON object per line, in that fixed order.
type Writer struct {
	w *bufio.Writer
}

// New wraps w in a buffered NDJSON Writer. Callers must call Flush when
// done.
func New(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteRunMeta writes the run_meta record. Must be called first.
func (wr *Writer) WriteRunMeta(meta RunMeta) error {
	meta.Type = "run_meta"
	return wr.writeLine(meta)
}

// WriteSituations writes one record per situation, in the given order.
func (wr *Writer) WriteSituations(situations []*situation.Situation) error {
	for _, sit := range situations {
		rec := situationRecord{
			Type:                       "situation",
			SituationID:                sit.SituationID,
			Window:                     sit.Window,
			Episodes:                   sit.Episodes,
			PrimaryCause:               sit.PrimaryCause,
			BlastRadius:                sit.BlastRadius,
			ChangeRefs:                 sit.ChangeRefs,
			ResourceRefs:               sit.ResourceRefs,
			RelatedAlerts:              sit.RelatedAlerts,
			Score:                      sit.Score,
			NextActions:                sit.NextActions,
			InsufficientTemporalSpread: sit.InsufficientTemporalSpread,
			Reason:                     sit.Reason,
			PadMSUsed:                  sit.PadMSUsed,
			BinSizeS:                   sit.BinSizeS,
		}
		if err := wr.writeLine(rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteCorrelations writes one record per correlation finding, in
// production order.
func (wr *Writer) WriteCorrelations(records []correlation.Record) error {
	for _, rec := range records {
		if err := wr.writeLine(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered output to the underlying writer.
func (wr *Writer) Flush() error {
	if err := wr.w.Flush(); err != nil {
		return errors.Wrap(err, errors.CategoryEmit, "flush", "failed to flush output")
	}
	return nil
}

func (wr *Writer) writeLine(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.CategoryEmit, "marshal", "failed to marshal record")
	}
	if _, err := wr.w.Write(b); err != nil {
		return errors.Wrap(err, errors.CategoryEmit, "write", "failed to write record")
	}
	if err := wr.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.CategoryEmit, "write", "failed to write record")
	}
	return nil
}
