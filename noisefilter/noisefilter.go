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

// Package noisefilter removes duplicate alerts, suppresses cross-vendor
// echoes, and records flap history consumed later by cause scoring.
package noisefilter

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"sitroom/alert"
)

const echoWindowMS = 10 * 1000
const flapWindowMS = 10 * 60 * 1000

type dedupKey struct {
	fingerprint string
	severity    string
	entityKey   string
}

type trackerKey struct {
	fingerprint string
	entityKey   string
}

type sourceSighting struct {
	ts     int64
	source string
}

type statusSighting struct {
	ts     int64
	status string
}

// Filter owns the mutex-guarded dedup, echo, and flap trackers. The run is
// single-threaded through §4.2, but the trackers stay read-accessible
// (guarded, not re-entered) for cause.Selector's flap score lookups later.
type Filter struct {
	mu sync.RWMutex

	dedupTTLMS int64
	dedupCache map[dedupKey]int64
	echo       map[trackerKey][]sourceSighting
	flap       map[trackerKey][]statusSighting

	logger *zap.Logger
}

// New returns a Filter with the given dedup TTL in seconds.
func New(dedupTTLSec int, logger *zap.Logger) *Filter {
	return &Filter{
		dedupTTLMS: int64(dedupTTLSec) * 1000,
		dedupCache: make(map[dedupKey]int64),
		echo:       make(map[trackerKey][]sourceSighting),
		flap:       make(map[trackerKey][]statusSighting),
		logger:     logger,
	}
}

// Apply runs the dedup, echo, and flap-tracking passes in order over alerts
// sorted ascending by ts, and returns the surviving alerts in that order.
func (f *Filter) Apply(alerts []*alert.Alert) []*alert.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted := make([]*alert.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })

	kept := make([]*alert.Alert, 0, len(sorted))
	for _, a := range sorted {
		dk := dedupKey{a.Fingerprint, a.Severity, a.EntityKey}
		if lastTS, ok := f.dedupCache[dk]; ok && a.TS-lastTS < f.dedupTTLMS {
			if f.logger != nil {
				f.logger.Debug("dropped duplicate alert", zap.String("entity_key", a.EntityKey), zap.String("fingerprint", a.Fingerprint))
			}
			continue
		}
		f.dedupCache[dk] = a.TS

		tk := trackerKey{a.Fingerprint, a.EntityKey}
		if f.isEcho(tk, a) {
			if f.logger != nil {
				f.logger.Debug("dropped cross-vendor echo", zap.String("entity_key", a.EntityKey), zap.String("source", a.Source))
			}
			continue
		}

		f.recordSighting(tk, a)
		kept = append(kept, a)
	}

	return kept
}

func (f *Filter) isEcho(tk trackerKey, a *alert.Alert) bool {
	for _, prev := range f.echo[tk] {
		if a.TS-prev.ts <= echoWindowMS && prev.source != a.Source {
			return true
		}
	}
	return false
}

func (f *Filter) recordSighting(tk trackerKey, a *alert.Alert) {
	sightings := append(f.echo[tk], sourceSighting{ts: a.TS, source: a.Source})
	f.echo[tk] = pruneOlderThan(sightings, a.TS, echoWindowMS)

	flaps := append(f.flap[tk], statusSighting{ts: a.TS, status: a.Status})
	f.flap[tk] = pruneFlapsOlderThan(flaps, a.TS, flapWindowMS)
}

func pruneOlderThan(sightings []sourceSighting, now int64, window int64) []sourceSighting {
	out := sightings[:0]
	for _, s := range sightings {
		if now-s.ts <= window {
			out = append(out, s)
		}
	}
	return out
}

func pruneFlapsOlderThan(sightings []statusSighting, now int64, window int64) []statusSighting {
	out := sightings[:0]
	for _, s := range sightings {
		if now-s.ts <= window {
			out = append(out, s)
		}
	}
	return out
}

// FlapScore returns min(0.3, flips/len) over the retained 10-minute status
// history for (fingerprint, entityKey); 0 if fewer than two sightings.
func (f *Filter) FlapScore(fingerprint, entityKey string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	statuses := f.flap[trackerKey{fingerprint, entityKey}]
	if len(statuses) < 2 {
		return 0
	}

	flips := 0
	for i := 1; i < len(statuses); i++ {
		if statuses[i].status != statuses[i-1].status {
			flips++
		}
	}

	score := float64(flips) / float64(len(statuses))
	if score > 0.3 {
		return 0.3
	}
	return score
}

// EchoScore returns 0.3 when the sightings retained for (fingerprint,
// entityKey) within the echo window come from more than one distinct
// source, 0 otherwise.
func (f *Filter) EchoScore(fingerprint, entityKey string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sources := make(map[string]bool)
	for _, s := range f.echo[trackerKey{fingerprint, entityKey}] {
		sources[s.source] = true
	}
	if len(sources) > 1 {
		return 0.3
	}
	return 0
}
