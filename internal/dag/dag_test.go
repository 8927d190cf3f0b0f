package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestAddEdge_Errors(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddNode("a", nil)
	require.Error(t, g.AddEdge("a", "missing"))
	require.Error(t, g.AddEdge("missing", "a"))
	require.Error(t, g.AddEdge("a", "a"))
}

// TestTopologicalSort_DeclaredOrderTieBreak: a consumer declared before its
// producer moves after it; everything else keeps declared order.
func TestTopologicalSort_DeclaredOrderTieBreak(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	for _, id := range []string{"Ext_data", "ConceptosReporte", "ConceptoInventario", "ConceptosMaquinas", "TR_Real"} {
		g.AddNode(id, nil)
	}
	require.NoError(t, g.AddEdge("ConceptoInventario", "ConceptosReporte"))
	require.NoError(t, g.AddEdge("ConceptosReporte", "TR_Real"))
	require.NoError(t, g.AddEdge("Ext_data", "TR_Real"))

	got, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ext_data", "ConceptoInventario", "ConceptosReporte", "ConceptosMaquinas", "TR_Real"}, ids(got))
}

func TestHasCycle(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	ok, _ := g.HasCycle()
	assert.False(t, ok)

	require.NoError(t, g.AddEdge("c", "a"))
	ok, path := g.HasCycle()
	require.True(t, ok)
	assert.Equal(t, path[0], path[len(path)-1])
	assert.Len(t, path, 4)

	_, err := g.TopologicalSort()
	require.Error(t, err)
}

func TestAncestorsAndNeighbors(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	for _, id := range []string{"x", "a", "b", "c"} {
		g.AddNode(id, id+"-data")
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("x", "c"))
	require.NoError(t, g.AddEdge("x", "c"))

	assert.Equal(t, []string{"x", "a", "b"}, g.Ancestors("c"))
	assert.Equal(t, []string{"b", "x"}, g.Parents("c"))
	assert.Equal(t, []string{"c"}, g.Children("x"))
	assert.Equal(t, 4, g.Len())

	g.AddNode("a", "updated")
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "updated", n.Data)
}
