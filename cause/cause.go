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

// Package cause selects a situation's primary cause candidate and scores
// confidence in it from a fixed set of weighted components.
package cause

import (
	"fmt"
	"math"

	"sitroom/alert"
	"sitroom/episode"
	"sitroom/metrics"
	"sitroom/noisefilter"
	"sitroom/situation"
	"sitroom/topology"
)

// Component weights for the composite confidence score.
const (
	weightChangeProximity = 0.35
	weightLeadLag         = 0.20
	weightGraphPath       = 0.20
	weightCardinality     = 0.15
	weightSeverity        = 0.15
	weightFlap            = -0.10
	weightEcho            = -0.05

	pathGatingCap = 0.35
)

var severityScores = map[string]float64{
	alert.SeverityLow:      0.25,
	alert.SeverityMedium:   0.5,
	alert.SeverityHigh:     0.75,
	alert.SeverityCritical: 1.0,
}

// components holds the individual, pre-weighting contributions to a
// situation's composite cause-confidence score.
type components struct {
	changeProximity float64
	leadLag         float64
	graphPath       float64
	cardinality     float64
	severity        float64
	flap            float64
	echo            float64
}

// LeadLagLookup resolves an external lead_lag score for a candidate cause.
// No caller currently supplies one: the score defaults to 0, matching the
// original pipeline's behavior exactly.
type LeadLagLookup func(entityKey, fingerprint string) float64

// Selector picks the primary cause candidate for each situation and scores
// confidence in it.
type Selector struct {
	graph   *topology.Graph
	filter  *noisefilter.Filter
	leadLag LeadLagLookup
}

// New returns a Selector. graph may be topology.Empty() when no dependency
// graph was supplied. filter supplies flap and echo scores from the
// noise-filtering stage; it may be nil, in which case both default to zero.
func New(graph *topology.Graph, filter *noisefilter.Filter) *Selector {
	return &Selector{graph: graph, filter: filter}
}

// WithLeadLagLookup supplies a LeadLagLookup to populate the lead_lag score
// component. Reserved for a future correlation-derived lead/lag signal.
func (s *Selector) WithLeadLagLookup(lookup LeadLagLookup) *Selector {
	s.leadLag = lookup
	return s
}

// Select picks the earliest episode in the situation as the primary cause
// candidate, computes its composite confidence score, applies path gating,
// and populates sit.PrimaryCause, sit.Score and sit.NextActions in place.
func (s *Selector) Select(sit *situation.Situation) {
	if len(sit.MemberEpisodes) == 0 {
		return
	}

	earliest := sit.MemberEpisodes[0]
	for _, ep := range sit.MemberEpisodes[1:] {
		if ep.Start < earliest.Start {
			earliest = ep
		}
	}

	reachableToAny, pathLength := s.hasPath(earliest, sit.MemberEpisodes)
	comp := s.scoreComponents(earliest, sit, reachableToAny, pathLength)

	composite := weightChangeProximity*comp.changeProximity +
		weightLeadLag*comp.leadLag +
		weightGraphPath*comp.graphPath +
		weightCardinality*comp.cardinality +
		weightSeverity*comp.severity +
		weightFlap*comp.flap +
		weightEcho*comp.echo

	confidence := math.Min(1.0, math.Max(0.0, composite))

	if !reachableToAny && !s.graph.Empty() {
		confidence = math.Min(confidence, pathGatingCap)
		metrics.New().PathGatingApplicable.Inc()
	}

	sit.PrimaryCause = &situation.PrimaryCause{
		Entity:      earliest.EntityKey,
		Fingerprint: earliest.Fingerprint,
		Confidence:  confidence,
		LagMS:       0,
	}
	sit.Score = confidence
	sit.NextActions = nextActions(earliest, confidence)
}

// hasPath reports whether the candidate cause's entity can reach any other
// member episode's entity in the dependency graph, and the shortest such
// distance. With no graph configured, every candidate is treated as
// reachable (matching the no-gating default).
func (s *Selector) hasPath(cause *episode.Episode, all []*episode.Episode) (bool, int) {
	if s.graph == nil || s.graph.Empty() {
		return true, 0
	}

	reachable := false
	best := -1
	for _, ep := range all {
		if ep == cause {
			continue
		}
		ok, dist := s.graph.Reachable(cause.EntityKey, ep.EntityKey)
		if ok {
			reachable = true
			if best == -1 || dist < best {
				best = dist
			}
		}
	}
	if !reachable {
		return false, 0
	}
	return true, best
}

func (s *Selector) scoreComponents(cause *episode.Episode, sit *situation.Situation, reachableToAny bool, pathLength int) components {
	var c components

	if len(cause.DeployKeys) > 0 {
		// Deploy proximity is measured from the episode start; episodes are
		// built from alerts already ordered by time, so a fresh deploy key
		// on the earliest episode is treated as immediately proximate.
		c.changeProximity = 1.0
	}

	if reachableToAny && !s.graph.Empty() {
		c.graphPath = 1.0 / float64(1+pathLength)
	}

	if s.leadLag != nil {
		c.leadLag = s.leadLag(cause.EntityKey, cause.Fingerprint)
	}

	uniqueEntities := make(map[string]bool)
	for _, ep := range sit.MemberEpisodes {
		uniqueEntities[ep.EntityKey] = true
	}
	c.cardinality = math.Log(math.Max(1, float64(len(uniqueEntities)))) / math.Log(10)

	c.severity = severityScores[maxSeverity(cause)]

	if s.filter != nil {
		c.flap = s.filter.FlapScore(cause.Fingerprint, cause.EntityKey)
		c.echo = s.filter.EchoScore(cause.Fingerprint, cause.EntityKey)
	}

	return c
}

func maxSeverity(ep *episode.Episode) string {
	max := alert.SeverityLow
	for _, a := range ep.Alerts {
		switch a.Severity {
		case alert.SeverityCritical:
			return alert.SeverityCritical
		case alert.SeverityHigh:
			if max != alert.SeverityCritical {
				max = alert.SeverityHigh
			}
		case alert.SeverityMedium:
			if max != alert.SeverityCritical && max != alert.SeverityHigh {
				max = alert.SeverityMedium
			}
		}
	}
	return max
}

func nextActions(ep *episode.Episode, confidence float64) []string {
	switch {
	case confidence > 0.8:
		actions := []string{}
		if len(ep.DeployKeys) > 0 {
			actions = append(actions, fmt.Sprintf("rollback deployment %s", truncate(ep.DeployKeys[0], 8)))
		}
		return append(actions, "page oncall team")
	case confidence > 0.5:
		return []string{"investigate root cause", "check recent changes"}
	default:
		return []string{"monitor situation", "gather more data"}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
