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

// Package temporal widens a situation's window with doubling padding until
// its alert activity forms enough distinct per-fingerprint bins to support
// correlation analysis.
package temporal

import (
	"fmt"

	"sitroom/alert"
	"sitroom/situation"
)

const (
	padMSStart       = 60_000
	maxPadMS         = 600_000
	binSizeSDefault  = 1
	binSizeSFallback = 5
	minSituationMS   = 10_000
	minBins          = 3
)

// Spreader widens situation windows and fills per-fingerprint activity bins.
type Spreader struct{}

// New returns a Spreader.
func New() *Spreader {
	return &Spreader{}
}

// Spread mutates each situation in place, setting PadMSUsed, BinSizeS, Bins,
// PaddedWindow and RehydratedAlerts on success, or InsufficientTemporalSpread
// and Reason when no padding level yields enough distinct bins. allAlerts is
// the full deduplicated, noise-filtered alert set the situations were built
// from.
func (s *Spreader) Spread(situations []*situation.Situation, allAlerts []*alert.Alert) {
	for _, sit := range situations {
		s.spreadOne(sit, allAlerts)
	}
}

func (s *Spreader) spreadOne(sit *situation.Situation, allAlerts []*alert.Alert) {
	start, end := sit.Window.Start, sit.Window.End

	if end-start < minSituationMS {
		sit.InsufficientTemporalSpread = true
		sit.Reason = fmt.Sprintf("situation duration %dms < minimum %dms", end-start, minSituationMS)
		return
	}

	relevant := relevantAlerts(sit, allAlerts)

	for padMS := int64(padMSStart); padMS <= maxPadMS; padMS *= 2 {
		paddedStart := start - padMS
		paddedEnd := end + padMS

		rehydrated := inWindow(relevant, paddedStart, paddedEnd)
		if len(rehydrated) == 0 {
			continue
		}

		binSizeS := binSizeSDefault
		bins := createBins(rehydrated, paddedStart, paddedEnd, binSizeS)
		distinct := countDistinctBins(bins)

		if distinct < minBins {
			binSizeS = binSizeSFallback
			bins = createBins(rehydrated, paddedStart, paddedEnd, binSizeS)
			distinct = countDistinctBins(bins)
		}

		durationMS := paddedEnd - paddedStart
		if distinct >= minBins && durationMS >= minSituationMS {
			sit.PadMSUsed = padMS
			sit.BinSizeS = binSizeS
			sit.Bins = bins
			sit.PaddedWindow = situation.Window{Start: paddedStart, End: paddedEnd}
			sit.RehydratedAlerts = rehydrated
			return
		}
	}

	sit.InsufficientTemporalSpread = true
	sit.Reason = fmt.Sprintf("could not achieve %d distinct bins or %dms duration", minBins, minSituationMS)
}

// relevantAlerts pre-filters the full alert corpus down to alerts whose
// entity_key, fingerprint, deploy_key or net_key matches one of the keys
// carried by the situation's member episodes — done once per situation so
// the padding-doubling loop below only re-scans a bounded slice.
func relevantAlerts(sit *situation.Situation, allAlerts []*alert.Alert) []*alert.Alert {
	keys := make(map[string]bool)
	for _, ep := range sit.MemberEpisodes {
		keys[ep.EntityKey] = true
		keys[ep.Fingerprint] = true
		for _, k := range ep.DeployKeys {
			keys[k] = true
		}
		for _, k := range ep.NetKeys {
			keys[k] = true
		}
	}

	var out []*alert.Alert
	for _, a := range allAlerts {
		if keys[a.EntityKey] || keys[a.Fingerprint] ||
			(a.DeployKey != "" && keys[a.DeployKey]) ||
			(a.NetKey != "" && keys[a.NetKey]) {
			out = append(out, a)
		}
	}
	return out
}

func inWindow(alerts []*alert.Alert, start, end int64) []*alert.Alert {
	var out []*alert.Alert
	for _, a := range alerts {
		if a.TS >= start && a.TS <= end {
			out = append(out, a)
		}
	}
	return out
}

// createBins buckets alerts into fixed-width time bins, one series per
// fingerprint (service-level aggregation, matching the original's series
// granularity).
func createBins(alerts []*alert.Alert, startMS, endMS int64, binSizeS int) map[string][]int {
	binSizeMS := int64(binSizeS) * 1000
	numBins := int((endMS-startMS)/binSizeMS) + 1

	bins := make(map[string][]int)
	for _, a := range alerts {
		if _, ok := bins[a.Fingerprint]; !ok {
			bins[a.Fingerprint] = make([]int, numBins)
		}
	}

	for _, a := range alerts {
		idx := int((a.TS - startMS) / binSizeMS)
		if idx >= 0 && idx < numBins {
			bins[a.Fingerprint][idx]++
		}
	}

	return bins
}

func countDistinctBins(bins map[string][]int) int {
	distinct := 0
	for _, series := range bins {
		for _, count := range series {
			if count > 0 {
				distinct++
				break
			}
		}
	}
	return distinct
}
