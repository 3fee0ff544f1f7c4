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

// Package situation unions episodes into situations via temporal overlap
// plus key/graph joinability, using a Union-Find over episode indices.
package situation

import (
	"fmt"
	"sort"
	"time"

	"sitroom/alert"
	"sitroom/episode"
	"sitroom/topology"
)

// joinHaloMS is the temporal slack applied before two episodes are
// considered for joinability (5 minutes).
const joinHaloMS = 5 * 60 * 1000

// Window is the [start, end] span of a situation.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// BlastRadius summarizes the entities and services touched by a situation.
type BlastRadius struct {
	Entities []string `json:"entities"`
	Services []string `json:"services"`
}

// ChangeRef is a deploy/release reference surfaced from an episode's
// deploy keys.
type ChangeRef struct {
	Type      string `json:"type"`
	SHA       string `json:"sha"`
	StartedAt string `json:"started_at"`
}

// ResourceRef is a distinct resource touched by the situation.
type ResourceRef struct {
	Source     string `json:"source"`
	ResourceID string `json:"resource_id"`
}

// RelatedAlert is a drill-down sample, capped at 200 per situation.
type RelatedAlert struct {
	TS            int64  `json:"ts"`
	EntityKey     string `json:"entity_key"`
	Fingerprint   string `json:"fingerprint"`
	VendorEventID string `json:"vendor_event_id"`
	ResourceID    string `json:"resource_id"`
}

// EpisodeRef is the trimmed episode view embedded in a situation record.
type EpisodeRef struct {
	EntityKey   string `json:"entity_key"`
	Fingerprint string `json:"fingerprint"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Count       int    `json:"count"`
}

// PrimaryCause is populated by cause.Selector after correlation.
type PrimaryCause struct {
	Entity      string  `json:"entity"`
	Fingerprint string  `json:"fingerprint"`
	Confidence  float64 `json:"confidence"`
	LagMS       int64   `json:"lag_ms"`
}

// Situation is a temporally- and topologically-coherent group of episodes.
type Situation struct {
	SituationID                string         `json:"situation_id"`
	Window                     Window         `json:"window"`
	Episodes                   []EpisodeRef   `json:"episodes"`
	BlastRadius                BlastRadius    `json:"blast_radius"`
	ChangeRefs                 []ChangeRef    `json:"change_refs"`
	ResourceRefs               []ResourceRef  `json:"resource_refs"`
	RelatedAlerts              []RelatedAlert `json:"related_alerts"`
	PrimaryCause               *PrimaryCause  `json:"primary_cause,omitempty"`
	Score                      float64        `json:"score"`
	NextActions                []string       `json:"next_actions,omitempty"`
	InsufficientTemporalSpread bool           `json:"insufficient_temporal_spread,omitempty"`
	Reason                     string         `json:"reason,omitempty"`
	PadMSUsed                  int64          `json:"pad_ms_used,omitempty"`
	BinSizeS                   int            `json:"bin_size_s,omitempty"`

	MemberEpisodes   []*episode.Episode `json:"-"`
	PaddedWindow     Window             `json:"-"`
	Bins             map[string][]int   `json:"-"`
	RehydratedAlerts []*alert.Alert     `json:"-"`
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// Assembler unions episodes into situations.
type Assembler struct {
	graph *topology.Graph
}

// New returns an Assembler that consults graph for the graph-edge
// joinability bridge. Pass topology.Empty() when no graph was supplied.
func New(graph *topology.Graph) *Assembler {
	return &Assembler{graph: graph}
}

// Assemble unions episodes whose windows overlap (with a 5-minute halo) AND
// share at least one of: entity_key, fingerprint, an intersecting
// deploy_key, an intersecting net_key, or a graph edge between their entity
// keys. Returns situations ordered by window.start ascending, ties broken
// by the lexicographically smallest contained entity_key.
func (a *Assembler) Assemble(episodes []*episode.Episode) []*Situation {
	uf := newUnionFind(len(episodes))

	for i := 0; i < len(episodes); i++ {
		for j := i + 1; j < len(episodes); j++ {
			if a.joinable(episodes[i], episodes[j]) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]*episode.Episode)
	var order []int
	for i, ep := range episodes {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], ep)
	}

	situations := make([]*Situation, 0, len(order))
	for _, root := range order {
		situations = append(situations, build(groups[root]))
	}

	sort.SliceStable(situations, func(i, j int) bool {
		if situations[i].Window.Start != situations[j].Window.Start {
			return situations[i].Window.Start < situations[j].Window.Start
		}
		return smallestEntityKey(situations[i]) < smallestEntityKey(situations[j])
	})

	return situations
}

func smallestEntityKey(s *Situation) string {
	smallest := ""
	for i, ep := range s.Episodes {
		if i == 0 || ep.EntityKey < smallest {
			smallest = ep.EntityKey
		}
	}
	return smallest
}

func (a *Assembler) joinable(ep1, ep2 *episode.Episode) bool {
	overlap := !(ep1.End+joinHaloMS < ep2.Start || ep2.End+joinHaloMS < ep1.Start)
	if !overlap {
		return false
	}

	if ep1.EntityKey == ep2.EntityKey || ep1.Fingerprint == ep2.Fingerprint {
		return true
	}
	if intersects(ep1.DeployKeys, ep2.DeployKeys) {
		return true
	}
	if intersects(ep1.NetKeys, ep2.NetKeys) {
		return true
	}
	if a.graph != nil && (a.graph.HasEdge(ep1.EntityKey, ep2.EntityKey) || a.graph.HasEdge(ep2.EntityKey, ep1.EntityKey)) {
		return true
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func build(episodes []*episode.Episode) *Situation {
	start, end := episodes[0].Start, episodes[0].End
	for _, ep := range episodes[1:] {
		if ep.Start < start {
			start = ep.Start
		}
		if ep.End > end {
			end = ep.End
		}
	}

	epRefs := make([]EpisodeRef, len(episodes))
	entitySet := map[string]bool{}
	serviceSet := map[string]bool{}
	var relatedAlerts []RelatedAlert
	var changeRefs []ChangeRef
	resourceRefs := []ResourceRef{}
	seenResources := map[string]bool{}

	for i, ep := range episodes {
		epRefs[i] = EpisodeRef{EntityKey: ep.EntityKey, Fingerprint: ep.Fingerprint, Start: ep.Start, End: ep.End, Count: ep.Count}
		entitySet[ep.EntityKey] = true

		for _, deployKey := range ep.DeployKeys {
			changeRefs = append(changeRefs, ChangeRef{Type: "deploy", SHA: deployKey, StartedAt: isoUTC(ep.Start)})
		}

		for _, resourceID := range ep.ResourceIDs {
			if seenResources[resourceID] {
				continue
			}
			seenResources[resourceID] = true
			source := "unknown"
			if len(ep.Alerts) > 0 {
				source = ep.Alerts[0].Source
			}
			resourceRefs = append(resourceRefs, ResourceRef{Source: source, ResourceID: resourceID})
		}

		for _, alrt := range ep.Alerts {
			if alrt.Service != "" && alrt.Service != "undefined" {
				serviceSet[alrt.Service] = true
			}
			if len(relatedAlerts) < 200 {
				relatedAlerts = append(relatedAlerts, RelatedAlert{
					TS: alrt.TS, EntityKey: alrt.EntityKey, Fingerprint: alrt.Fingerprint,
					VendorEventID: alrt.VendorEventID, ResourceID: alrt.ResourceID,
				})
			}
		}
	}

	return &Situation{
		SituationID:    fmt.Sprintf("S-%d-%d-%d", start, end, len(episodes)),
		Window:         Window{Start: start, End: end},
		Episodes:       epRefs,
		BlastRadius:    BlastRadius{Entities: sortedKeys(entitySet), Services: sortedKeys(serviceSet)},
		ChangeRefs:     changeRefs,
		ResourceRefs:   resourceRefs,
		RelatedAlerts:  relatedAlerts,
		MemberEpisodes: episodes,
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isoUTC(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
