package episode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitroom/alert"
)

func mkAlert(ts int64, entityKey, fingerprint string) *alert.Alert {
	return &alert.Alert{TS: ts, EntityKey: entityKey, Fingerprint: fingerprint, Source: "datadog"}
}

func TestBuildSplitsOnGap(t *testing.T) {
	b := New(300)

	alerts := []*alert.Alert{
		mkAlert(0, "svc:a", "fp"),
		mkAlert(10_000, "svc:a", "fp"),
		mkAlert(20_000, "svc:a", "fp"),
		mkAlert(700_000, "svc:a", "fp"),
		mkAlert(710_000, "svc:a", "fp"),
	}

	episodes := b.Build(alerts)

	require.Len(t, episodes, 2)
	assert.Equal(t, int64(0), episodes[0].Start)
	assert.Equal(t, int64(20_000), episodes[0].End)
	assert.Equal(t, 3, episodes[0].Count)
	assert.Equal(t, int64(700_000), episodes[1].Start)
	assert.Equal(t, int64(710_000), episodes[1].End)
	assert.Equal(t, 2, episodes[1].Count)
}

func TestBuildGroupsByEntityAndFingerprint(t *testing.T) {
	b := New(300)

	alerts := []*alert.Alert{
		mkAlert(0, "svc:a", "fp1"),
		mkAlert(1_000, "svc:b", "fp1"),
		mkAlert(2_000, "svc:a", "fp2"),
	}

	episodes := b.Build(alerts)

	assert.Len(t, episodes, 3)
}

func TestBuildInvariantStartLessOrEqualEnd(t *testing.T) {
	b := New(60)

	alerts := []*alert.Alert{mkAlert(5_000, "svc:a", "fp")}
	episodes := b.Build(alerts)

	require.Len(t, episodes, 1)
	assert.LessOrEqual(t, episodes[0].Start, episodes[0].End)
}

func TestBuildSamplesCappedAtFifty(t *testing.T) {
	b := New(1_000_000)

	var alerts []*alert.Alert
	for i := 0; i < 80; i++ {
		a := mkAlert(int64(i*1000), "svc:a", "fp")
		a.VendorEventID = "evt"
		a.ResourceID = "res"
		alerts = append(alerts, a)
	}

	episodes := b.Build(alerts)

	require.Len(t, episodes, 1)
	assert.Equal(t, 80, episodes[0].Count)
	assert.LessOrEqual(t, len(episodes[0].SampleTS), 50)
}
