package situation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitroom/alert"
	"sitroom/episode"
	"sitroom/topology"
)

func mkEpisode(entityKey, fingerprint string, start, end int64) *episode.Episode {
	return &episode.Episode{
		EntityKey:   entityKey,
		Fingerprint: fingerprint,
		Start:       start,
		End:         end,
		Count:       1,
		Alerts: []*alert.Alert{
			{TS: start, EntityKey: entityKey, Fingerprint: fingerprint, Source: "datadog", Service: "undefined"},
		},
	}
}

func TestUnionBySameEntityKey(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{
		mkEpisode("svc:a", "fp1", 0, 10_000),
		mkEpisode("svc:a", "fp2", 5_000, 15_000),
	}

	situations := a.Assemble(episodes)

	require.Len(t, situations, 1)
	assert.Len(t, situations[0].Episodes, 2)
}

func TestUnionByGraphEdge(t *testing.T) {
	doc := `{"adj": {"svc:a": ["svc:b"]}}`
	g, err := topology.Load(strings.NewReader(doc))
	require.NoError(t, err)

	a := New(g)
	episodes := []*episode.Episode{
		mkEpisode("svc:a", "fp1", 0, 10_000),
		mkEpisode("svc:b", "fp2", 5_000, 15_000),
	}

	situations := a.Assemble(episodes)

	require.Len(t, situations, 1, "a graph edge between the two entities should union them")
	assert.Len(t, situations[0].Episodes, 2)
}

func TestNoUnionWithoutJoinabilityOrOverlap(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{
		mkEpisode("svc:a", "fp1", 0, 10_000),
		mkEpisode("svc:b", "fp2", 5_000, 15_000),
	}

	situations := a.Assemble(episodes)

	assert.Len(t, situations, 2, "different entities, fingerprints, deploy/net keys and no graph edge must not union")
}

func TestNoUnionWhenOutsideHalo(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{
		mkEpisode("svc:a", "fp1", 0, 10_000),
		mkEpisode("svc:a", "fp1", 10_000+joinHaloMS+1, 20_000+joinHaloMS+1),
	}

	situations := a.Assemble(episodes)

	assert.Len(t, situations, 2, "same key but beyond the halo window must not union")
}

func TestUnionByIntersectingDeployKey(t *testing.T) {
	a := New(topology.Empty())
	ep1 := mkEpisode("svc:a", "fp1", 0, 10_000)
	ep1.DeployKeys = []string{"sha123"}
	ep2 := mkEpisode("svc:b", "fp2", 5_000, 15_000)
	ep2.DeployKeys = []string{"sha123"}

	situations := a.Assemble([]*episode.Episode{ep1, ep2})

	require.Len(t, situations, 1)
	assert.Len(t, situations[0].Episodes, 2)
}

func TestWindowIsUnionOfEpisodeBounds(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{
		mkEpisode("svc:a", "fp1", 1_000, 5_000),
		mkEpisode("svc:a", "fp2", 2_000, 9_000),
	}

	situations := a.Assemble(episodes)

	require.Len(t, situations, 1)
	assert.Equal(t, int64(1_000), situations[0].Window.Start)
	assert.Equal(t, int64(9_000), situations[0].Window.End)
}

func TestSituationIDFormat(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{mkEpisode("svc:a", "fp1", 1_000, 5_000)}

	situations := a.Assemble(episodes)

	require.Len(t, situations, 1)
	assert.Equal(t, "S-1000-5000-1", situations[0].SituationID)
}

func TestDeterministicOrderingByWindowStartThenEntityKey(t *testing.T) {
	a := New(topology.Empty())
	episodes := []*episode.Episode{
		mkEpisode("svc:z", "fp1", 20_000, 21_000),
		mkEpisode("svc:a", "fp2", 0, 1_000),
		mkEpisode("svc:m", "fp3", 20_000, 22_000),
	}

	situations := a.Assemble(episodes)

	require.Len(t, situations, 3)
	assert.Equal(t, int64(0), situations[0].Window.Start)
	assert.Equal(t, int64(20_000), situations[1].Window.Start)
	assert.Equal(t, int64(20_000), situations[2].Window.Start)
	assert.Equal(t, "svc:m", smallestEntityKey(situations[1]))
	assert.Equal(t, "svc:z", smallestEntityKey(situations[2]))
}

func TestRelatedAlertsCappedAt200(t *testing.T) {
	a := New(topology.Empty())
	ep := mkEpisode("svc:a", "fp1", 0, 1_000)
	ep.Alerts = nil
	for i := 0; i < 250; i++ {
		ep.Alerts = append(ep.Alerts, &alert.Alert{TS: int64(i), EntityKey: "svc:a", Fingerprint: "fp1", Source: "datadog"})
	}

	situations := a.Assemble([]*episode.Episode{ep})

	require.Len(t, situations, 1)
	assert.Len(t, situations[0].RelatedAlerts, 200)
}

func TestBlastRadiusExcludesUndefinedService(t *testing.T) {
	a := New(topology.Empty())
	ep := mkEpisode("svc:a", "fp1", 0, 1_000)
	ep.Alerts[0].Service = "undefined"

	situations := a.Assemble([]*episode.Episode{ep})

	require.Len(t, situations, 1)
	assert.Empty(t, situations[0].BlastRadius.Services)
}
