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

// Package correlation runs burst, PMI, and lead-lag kernels over a
// situation's per-fingerprint activity bins, emitting one Record per
// (series pair, method) that clears its kernel's threshold.
package correlation

import (
	"sort"

	"sitroom/situation"
)

const (
	maxSeries = 400
	maxPairs  = 20000
)

// Record is one correlation finding between two fingerprint series within
// a situation's padded window. Metrics nests the method-specific result
// under its own method name, e.g. {"burst": {"aligned": 2, "score": 0.7}}.
type Record struct {
	Type         string                 `json:"type"`
	Method       string                 `json:"method"`
	SituationID  string                 `json:"situation_id"`
	SeriesA      string                 `json:"series_a"`
	SeriesB      string                 `json:"series_b"`
	Window       situation.Window       `json:"window"`
	Metrics      map[string]interface{} `json:"metrics"`
	ResourceIDsA []string               `json:"resource_ids_a"`
	ResourceIDsB []string               `json:"resource_ids_b"`
}

// Engine runs the correlation kernels over a situation's bins.
type Engine struct {
	minSupport int
	maxLagBins int
}

// New returns an Engine. minSupport gates burst alignment counts and PMI
// co-occurrence counts; maxLagBins bounds the lead-lag search window.
func New(minSupport, maxLagBins int) *Engine {
	return &Engine{minSupport: minSupport, maxLagBins: maxLagBins}
}

// Run enumerates series pairs from sit.Bins (sorted for determinism, capped
// at maxSeries by total activity and maxPairs overall) and evaluates all
// three kernels per pair, in burst -> PMI -> lead-lag order.
func (e *Engine) Run(sit *situation.Situation) []Record {
	if sit.InsufficientTemporalSpread || len(sit.Bins) == 0 {
		return nil
	}

	seriesKeys := boundedSeriesKeys(sit.Bins)
	pairs := seriesPairs(seriesKeys)

	var records []Record
	for _, p := range pairs {
		a, b := sit.Bins[p.a], sit.Bins[p.b]

		if burst := burstCorrelation(a, b, e.minSupport); burst != nil {
			records = append(records, e.record(sit, "burst", p, map[string]interface{}{
				"aligned": burst.aligned,
				"score":   burst.score,
			}))
		}
		if pmi := pmiCorrelation(a, b, e.minSupport); pmi != nil {
			records = append(records, e.record(sit, "pmi", p, map[string]interface{}{
				"pmi":      pmi.pmi,
				"co_count": pmi.coCount,
			}))
		}
		if ll := leadLagCorrelation(a, b, e.maxLagBins); ll != nil {
			records = append(records, e.record(sit, "leadlag", p, map[string]interface{}{
				"lag_ms": ll.lagMS,
				"score":  ll.score,
			}))
		}
	}

	return records
}

func (e *Engine) record(sit *situation.Situation, method string, p pair, methodMetrics map[string]interface{}) Record {
	return Record{
		Type:         "correlation",
		Method:       method,
		SituationID:  sit.SituationID,
		SeriesA:      p.a,
		SeriesB:      p.b,
		Window:       sit.PaddedWindow,
		Metrics:      map[string]interface{}{method: methodMetrics},
		ResourceIDsA: resourceIDsForSeries(sit, p.a),
		ResourceIDsB: resourceIDsForSeries(sit, p.b),
	}
}

func resourceIDsForSeries(sit *situation.Situation, fingerprint string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ep := range sit.MemberEpisodes {
		if ep.Fingerprint != fingerprint {
			continue
		}
		for _, id := range ep.ResourceIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
				if len(out) == 10 {
					return out
				}
			}
		}
	}
	return out
}

type pair struct{ a, b string }

// seriesPairs returns canonical (a < b) pairs over combinations of keys, in
// the same deterministic order combinations() would produce over a
// lexicographically sorted key list.
func seriesPairs(keys []string) []pair {
	var pairs []pair
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			a, b := keys[i], keys[j]
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, pair{a, b})
			if len(pairs) == maxPairs {
				return pairs
			}
		}
	}
	return pairs
}

// boundedSeriesKeys returns the situation's series keys sorted for
// deterministic iteration, capped at maxSeries by total bin activity when
// there are more distinct fingerprints than that.
func boundedSeriesKeys(bins map[string][]int) []string {
	keys := make([]string, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) <= maxSeries {
		return keys
	}

	type activity struct {
		key   string
		total int
	}
	activities := make([]activity, 0, len(keys))
	for _, k := range keys {
		total := 0
		for _, c := range bins[k] {
			total += c
		}
		activities = append(activities, activity{k, total})
	}
	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].total != activities[j].total {
			return activities[i].total > activities[j].total
		}
		return activities[i].key < activities[j].key
	})

	out := make([]string, maxSeries)
	for i := 0; i < maxSeries; i++ {
		out[i] = activities[i].key
	}
	sort.Strings(out)
	return out
}
