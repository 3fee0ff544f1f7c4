package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndReachable(t *testing.T) {
	doc := `{"adj": {"svc:a": ["svc:b"], "svc:b": ["svc:c"]}}`
	g, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	ok, dist := g.Reachable("svc:a", "svc:c")
	assert.True(t, ok)
	assert.Equal(t, 2, dist)

	ok, _ = g.Reachable("svc:c", "svc:a")
	assert.False(t, ok, "edges are directed")
}

func TestReachableSameNode(t *testing.T) {
	g := Empty()
	ok, dist := g.Reachable("svc:a", "svc:a")
	assert.True(t, ok)
	assert.Equal(t, 0, dist)
}

func TestEmptyGraphHasNoPaths(t *testing.T) {
	g := Empty()
	ok, _ := g.Reachable("svc:a", "svc:b")
	assert.False(t, ok)
	assert.True(t, g.Empty())
}

func TestHasEdgeIsDirectional(t *testing.T) {
	doc := `{"adj": {"svc:a": ["svc:b"]}}`
	g, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, g.HasEdge("svc:a", "svc:b"))
	assert.False(t, g.HasEdge("svc:b", "svc:a"))
}

func TestReachableCachesDistances(t *testing.T) {
	doc := `{"adj": {"svc:a": ["svc:b"], "svc:b": ["svc:a"]}}`
	g, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	ok1, d1 := g.Reachable("svc:a", "svc:b")
	ok2, d2 := g.Reachable("svc:a", "svc:b")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, d1, d2)
}
