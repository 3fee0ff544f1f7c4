package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datadogRecord(id string, ts interface{}, tags []interface{}, message, currentStatus string) RawRecord {
	return RawRecord{
		"id":             id,
		"current_status": currentStatus,
		"metadata": map[string]interface{}{
			"event": map[string]interface{}{
				"id": "evt-" + id,
				"attributes": map[string]interface{}{
					"timestamp": ts,
					"message":   message,
					"tags":      tags,
				},
			},
		},
	}
}

func TestNormalizeEntityKeyPrecedence(t *testing.T) {
	n := New(nil)

	svc, err := n.Normalize(datadogRecord("1", 1000.0, []interface{}{"service:checkout", "pod_name:p1", "host:h1", "cluster:c1"}, "boom", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, "svc:checkout", svc.EntityKey)

	pod, err := n.Normalize(datadogRecord("2", 1000.0, []interface{}{"namespace:ns1", "pod_name:p1", "host:h1"}, "boom", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, "pod:p1", pod.EntityKey)

	host, err := n.Normalize(datadogRecord("3", 1000.0, []interface{}{"host:h1", "cluster:c1"}, "boom", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, "host:h1", host.EntityKey)

	cluster, err := n.Normalize(datadogRecord("4", 1000.0, []interface{}{"cluster:c1"}, "boom", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, "cluster:c1", cluster.EntityKey)

	none, err := n.Normalize(datadogRecord("5", 1000.0, nil, "boom", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, EntityNA, none.EntityKey)
}

func TestNormalizeStatusMapping(t *testing.T) {
	n := New(nil)

	resolved, err := n.Normalize(datadogRecord("1", 1000.0, []interface{}{"host:h1"}, "x", "OK"))
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)

	firing, err := n.Normalize(datadogRecord("2", 1000.0, []interface{}{"host:h1"}, "x", "No Data"))
	require.NoError(t, err)
	assert.Equal(t, StatusFiring, firing.Status)

	defaultFiring, err := n.Normalize(datadogRecord("3", 1000.0, []interface{}{"host:h1"}, "x", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, StatusFiring, defaultFiring.Status)
}

func TestNormalizeTimestampSecondsVsMillis(t *testing.T) {
	n := New(nil)

	seconds, err := n.Normalize(datadogRecord("1", 1_700_000_000.0, []interface{}{"host:h1"}, "x", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), seconds.TS)

	millis, err := n.Normalize(datadogRecord("2", 1_700_000_000_000.0, []interface{}{"host:h1"}, "x", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), millis.TS)

	rfc3339, err := n.Normalize(datadogRecord("3", "2023-11-14T22:13:20Z", []interface{}{"host:h1"}, "x", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), rfc3339.TS)
}

func TestNormalizeTagCoercion(t *testing.T) {
	n := New(nil)

	a, err := n.Normalize(datadogRecord("1", 1000.0, []interface{}{"host:h1", "retry:true", "attempt:3", "maintenance"}, "x", "Alert"))
	require.NoError(t, err)

	assert.Equal(t, true, a.Tags["retry"])
	assert.Equal(t, 3, a.Tags["attempt"])
	assert.Equal(t, true, a.Tags["maintenance"])
}

func TestNormalizeFingerprintExcludesVolatileFields(t *testing.T) {
	n := New(nil)

	a, err := n.Normalize(datadogRecord("1", 1000.0, []interface{}{"service:checkout"}, "db timeout", "Alert"))
	require.NoError(t, err)
	b, err := n.Normalize(datadogRecord("2", 2000.0, []interface{}{"service:checkout"}, "db timeout", "Alert"))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint, "fingerprint must ignore volatile per-instance fields like ts and vendor event id")
	assert.NotEqual(t, a.VendorEventID, b.VendorEventID)
}

func TestNormalizeMalformedRecordSkipped(t *testing.T) {
	n := New(nil)

	_, err := n.Normalize(RawRecord{})
	require.Error(t, err)

	out := n.NormalizeAll([]RawRecord{{}, datadogRecord("1", 1000.0, []interface{}{"host:h1"}, "x", "Alert")})
	assert.Len(t, out, 1)
}

func TestNormalizeSeverityDefaultsHigh(t *testing.T) {
	n := New(nil)

	a, err := n.Normalize(datadogRecord("1", 1000.0, []interface{}{"host:h1"}, "x", "Alert"))
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, a.Severity)
}
