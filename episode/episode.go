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

// Package episode groups consecutive alerts sharing an (entity_key,
// fingerprint) into episodes split on idle gaps.
package episode

import (
	"sort"

	"sitroom/alert"
)

const maxSamples = 50

// Episode is a run of alerts sharing (entity_key, fingerprint) with no
// internal gap larger than episode_gap seconds.
type Episode struct {
	EntityKey     string   `json:"entity_key"`
	Fingerprint   string   `json:"fingerprint"`
	Start         int64    `json:"start"`
	End           int64    `json:"end"`
	Count         int      `json:"count"`
	Vendors       []string `json:"vendors"`
	VendorEventID []string `json:"vendor_event_ids"`
	ResourceIDs   []string `json:"resource_ids"`
	SampleTS      []int64  `json:"sample_ts"`
	DeployKeys    []string `json:"deploy_keys"`
	NetKeys       []string `json:"net_keys"`
	Alerts        []*alert.Alert
}

// Builder groups alerts into episodes.
type Builder struct {
	gapMS int64
}

// New returns a Builder that splits on gaps larger than gapSec seconds.
func New(gapSec int) *Builder {
	return &Builder{gapMS: int64(gapSec) * 1000}
}

// Build groups alerts by (entity_key, fingerprint), then splits each group
// into episodes wherever the gap to the previous alert exceeds the
// configured threshold.
func (b *Builder) Build(alerts []*alert.Alert) []*Episode {
	type groupKey struct{ entityKey, fingerprint string }
	groups := make(map[groupKey][]*alert.Alert)
	var order []groupKey

	for _, a := range alerts {
		k := groupKey{a.EntityKey, a.Fingerprint}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	var episodes []*Episode
	for _, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].TS < group[j].TS })

		var current []*alert.Alert
		for _, a := range group {
			if len(current) > 0 && a.TS-current[len(current)-1].TS > b.gapMS {
				episodes = append(episodes, build(current))
				current = nil
			}
			current = append(current, a)
		}
		if len(current) > 0 {
			episodes = append(episodes, build(current))
		}
	}

	return episodes
}

func build(alerts []*alert.Alert) *Episode {
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].TS < alerts[j].TS })

	vendors := uniqueStrings(mapStrings(alerts, func(a *alert.Alert) string { return a.Source }))
	deployKeys := uniqueStrings(filterEmpty(mapStrings(alerts, func(a *alert.Alert) string { return a.DeployKey })))
	netKeys := uniqueStrings(filterEmpty(mapStrings(alerts, func(a *alert.Alert) string { return a.NetKey })))

	vendorEventIDs := capStrings(uniqueStrings(mapStrings(alerts, func(a *alert.Alert) string { return a.VendorEventID })), maxSamples)
	resourceIDs := capStrings(uniqueStrings(mapStrings(alerts, func(a *alert.Alert) string { return a.ResourceID })), maxSamples)

	sampleTS := make([]int64, 0, maxSamples)
	for i, a := range alerts {
		if i >= maxSamples {
			break
		}
		sampleTS = append(sampleTS, a.TS)
	}

	return &Episode{
		EntityKey:     alerts[0].EntityKey,
		Fingerprint:   alerts[0].Fingerprint,
		Start:         alerts[0].TS,
		End:           alerts[len(alerts)-1].TS,
		Count:         len(alerts),
		Vendors:       vendors,
		VendorEventID: vendorEventIDs,
		ResourceIDs:   resourceIDs,
		SampleTS:      sampleTS,
		DeployKeys:    deployKeys,
		NetKeys:       netKeys,
		Alerts:        alerts,
	}
}

func capStrings(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}

func mapStrings(alerts []*alert.Alert, f func(*alert.Alert) string) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = f(a)
	}
	return out
}

func filterEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
