// Package visualize renders join specifications as diagrams: the bipartite
// graph of relation terms and the variables they bind, annotated with the
// global variable order. Useful for eyeballing why a variable order behaves
// the way it does.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/triejoin/pkg/join"
)

// Graph is the visualization model of one join spec.
type Graph struct {
	Name      string
	Terms     []TermNode
	Variables []string // global variable order
}

// TermNode is one relation term with the variables it binds, in column order.
type TermNode struct {
	Relation string
	Vars     []string
}

// BuildGraph constructs the visualization graph of a join spec.
func BuildGraph(name string, spec join.Spec) *Graph {
	g := &Graph{
		Name:      name,
		Terms:     make([]TermNode, len(spec.Terms)),
		Variables: make([]string, len(spec.VarOrder)),
	}
	copy(g.Variables, spec.VarOrder)

	for i, term := range spec.Terms {
		vars := make([]string, len(term.Vars))
		copy(vars, term.Vars)
		g.Terms[i] = TermNode{Relation: term.Relation, Vars: vars}
	}

	return g
}

// SharedVariables returns the variables bound by two or more terms, in global
// order.
func (g *Graph) SharedVariables() []string {
	counts := make(map[string]int)
	for _, term := range g.Terms {
		seen := make(map[string]bool)
		for _, v := range term.Vars {
			if !seen[v] {
				seen[v] = true
				counts[v]++
			}
		}
	}

	shared := make([]string, 0, len(counts))
	for _, v := range g.Variables {
		if counts[v] > 1 {
			shared = append(shared, v)
		}
	}
	return shared
}

// BuildDotGraph creates a dot.Graph from the visualization graph, styled for
// Graphviz DOT rendering.
func BuildDotGraph(g *Graph) *dot.Graph {
	return buildGraph(g, true)
}

// buildGraph assembles the bipartite term/variable graph. The DOT-specific
// shape and style attributes are applied only when dotShapes is set: the
// Mermaid renderer expects its own shape markers and chokes on the Graphviz
// strings.
func buildGraph(g *Graph, dotShapes bool) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	// One node per variable, labeled with its position in the global order.
	varNodes := make(map[string]dot.Node)
	for i, v := range g.Variables {
		node := graph.Node("var_" + v)
		node.Attr("label", fmt.Sprintf("%s (#%d)", v, i+1))
		if dotShapes {
			node.Attr("shape", "ellipse")
		}
		varNodes[v] = node
	}

	// One node per term, edges to the variables it binds.
	for i, term := range g.Terms {
		node := graph.Node(fmt.Sprintf("term_%d", i))
		node.Attr("label", fmt.Sprintf("%s(%s)", term.Relation, strings.Join(term.Vars, ",")))
		if dotShapes {
			node.Attr("shape", "box")
		}

		seen := make(map[string]bool)
		for pos, v := range term.Vars {
			vn, ok := varNodes[v]
			if !ok {
				// Variable missing from the order: show it flagged.
				vn = graph.Node("var_" + v)
				vn.Attr("label", v+" (unordered)")
				if dotShapes {
					vn.Attr("shape", "ellipse")
					vn.Attr("style", "dashed")
				}
				varNodes[v] = vn
			}
			if seen[v] {
				continue // repeated variable, one edge is enough
			}
			seen[v] = true

			edge := graph.Edge(node, vn)
			edge.Attr("label", fmt.Sprintf("col %d", pos))
		}
	}

	return graph
}
