package graph

import (
	"sort"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(vals ...string) mapset.Set[string] {
	return mapset.NewThreadUnsafeSet[string](vals...)
}

func sorted(s mapset.Set[string]) []string {
	vals := s.ToSlice()
	sort.Strings(vals)
	return vals
}

// snapshot captures every edge touching the given nodes so a graph can be
// compared before and after a failed operation.
func snapshot(g *Dependency, nodes ...string) map[string][][]string {
	snap := make(map[string][][]string, len(nodes))
	for _, n := range nodes {
		snap[n] = [][]string{sorted(g.Dependents(n)), sorted(g.Dependees(n))}
	}
	return snap
}

func TestAddAndSize(t *testing.T) {
	g := New()
	require.Equal(t, 0, g.Size())

	require.True(t, g.Add("B1", "A1"))
	require.Equal(t, 1, g.Size())

	// Duplicate insertion is a no-op.
	require.True(t, g.Add("B1", "A1"))
	require.Equal(t, 1, g.Size())

	require.True(t, g.Add("C1", "A1"))
	assert.Equal(t, 2, g.Size())
}

func TestInverseConsistency(t *testing.T) {
	g := New()
	edges := [][2]string{{"B1", "A1"}, {"C1", "A1"}, {"C1", "B1"}, {"D4", "C1"}}
	for _, e := range edges {
		require.True(t, g.Add(e[0], e[1]))
	}
	require.Equal(t, len(edges), g.Size())

	nodes := []string{"A1", "B1", "C1", "D4"}
	pairs := 0
	for _, s := range nodes {
		g.Dependents(s).Each(func(dep string) bool {
			pairs++
			assert.True(t, g.Dependees(dep).Contains(s), "missing inverse of (%s,%s)", s, dep)
			return false
		})
	}
	assert.Equal(t, g.Size(), pairs)
}

func TestSelfDependencyRejected(t *testing.T) {
	g := New()
	require.False(t, g.Add("A1", "A1"))
	assert.Equal(t, 0, g.Size())
	assert.False(t, g.HasDependents("A1"))
	assert.False(t, g.HasDependees("A1"))
}

func TestCycleRejectedAndRolledBack(t *testing.T) {
	g := New()
	require.True(t, g.Add("B1", "A1"))
	require.True(t, g.Add("C1", "B1"))

	before := snapshot(g, "A1", "B1", "C1")
	require.False(t, g.Add("A1", "C1"))
	assert.Equal(t, before, snapshot(g, "A1", "B1", "C1"))
	assert.Equal(t, 2, g.Size())
}

func TestRemovePrunesEmptyRows(t *testing.T) {
	g := New()
	require.True(t, g.Add("B1", "A1"))
	require.True(t, g.HasDependents("B1"))
	require.True(t, g.HasDependees("A1"))

	g.Remove("B1", "A1")
	assert.Equal(t, 0, g.Size())
	assert.False(t, g.HasDependents("B1"))
	assert.False(t, g.HasDependees("A1"))

	// Removing a non-existent pair is a no-op.
	g.Remove("B1", "A1")
	assert.Equal(t, 0, g.Size())
}

func TestReplaceDependees(t *testing.T) {
	g := New()
	// A1 = =B1+C1, so B1 and C1 point at A1.
	require.True(t, g.ReplaceDependees("A1", set("B1", "C1")))
	assert.True(t, g.Dependees("A1").Equal(set("B1", "C1")))
	assert.True(t, g.Dependents("B1").Contains("A1"))

	// Re-edit: A1 = =D1 drops the old edges.
	require.True(t, g.ReplaceDependees("A1", set("D1")))
	assert.True(t, g.Dependees("A1").Equal(set("D1")))
	assert.False(t, g.HasDependents("B1"))
	assert.False(t, g.HasDependents("C1"))
	assert.Equal(t, 1, g.Size())
}

func TestReplaceDependeesRollbackOnCycle(t *testing.T) {
	g := New()
	// A1 references B1.
	require.True(t, g.ReplaceDependees("A1", set("B1")))
	before := snapshot(g, "A1", "B1")

	// B1 = =A1 would close the loop; the graph must come back bit-identical.
	require.False(t, g.ReplaceDependees("B1", set("A1")))
	assert.Equal(t, before, snapshot(g, "A1", "B1"))
	assert.Equal(t, 1, g.Size())
}

func TestReplaceDependeesRestoresPartialAdds(t *testing.T) {
	g := New()
	require.True(t, g.ReplaceDependees("A1", set("B1")))
	require.True(t, g.ReplaceDependees("X9", set("Y9", "Z9")))

	before := snapshot(g, "A1", "B1", "X9", "Y9", "Z9")
	// Mixed set: the harmless references must not survive the abort.
	require.False(t, g.ReplaceDependees("B1", set("Y9", "A1", "Z9")))
	assert.Equal(t, before, snapshot(g, "A1", "B1", "X9", "Y9", "Z9"))
	assert.Equal(t, 3, g.Size())
}

func TestReplaceDependents(t *testing.T) {
	g := New()
	require.True(t, g.ReplaceDependents("B1", set("A1", "C1")))
	assert.True(t, g.Dependents("B1").Equal(set("A1", "C1")))
	assert.True(t, g.Dependees("A1").Contains("B1"))

	require.True(t, g.ReplaceDependents("B1", set("D1")))
	assert.True(t, g.Dependents("B1").Equal(set("D1")))
	assert.Equal(t, 1, g.Size())
}

func TestUnknownNodeQueries(t *testing.T) {
	g := New()
	assert.Equal(t, 0, g.Dependents("nope").Cardinality())
	assert.Equal(t, 0, g.Dependees("nope").Cardinality())
	assert.False(t, g.HasDependents("nope"))
	assert.False(t, g.HasDependees("nope"))
}
