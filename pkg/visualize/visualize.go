// Package visualize renders materialite dataflow graphs as diagrams.
package visualize

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/l7mp/materialite/pkg/materialite"
)

// Generator renders a graph in a textual diagram format.
type Generator interface {
	Generate(g *materialite.Graph) string
}

// NewGenerator returns the generator for a format name: "dot" or "mermaid".
func NewGenerator(format string) (Generator, error) {
	switch format {
	case "dot":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}
}

// NodeLabel is the label of a node in the diagrams: the name and a short id.
func NodeLabel(n materialite.GraphNode) string {
	id := n.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s\n%s", n.Name, id)
}

// IsTerminal reports whether nothing reads the node.
func IsTerminal(g *materialite.Graph, id string) bool {
	for _, e := range g.Edges {
		if e.From == id {
			return false
		}
	}
	return true
}

// BuildDotGraph creates a dot.Graph from a dataflow graph. The same graph is rendered in every
// output format.
func BuildDotGraph(g *materialite.Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		node := graph.Node(n.ID).
			Attr("label", NodeLabel(n)).
			Attr("fontname", "helvetica")

		switch n.Kind {
		case materialite.KindSource:
			node.Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen")
		case materialite.KindOperator:
			node.Attr("shape", "box").
				Attr("style", "filled").
				Attr("fillcolor", "lightblue").
				Attr("color", "darkblue")
		default:
			node.Attr("shape", "box").
				Attr("style", "filled,rounded").
				Attr("fillcolor", "lightcyan").
				Attr("penwidth", "2")
		}
		nodes[n.ID] = node
	}

	for _, e := range g.Edges {
		from, ok := nodes[e.From]
		if !ok {
			continue
		}
		to, ok := nodes[e.To]
		if !ok {
			continue
		}
		graph.Edge(from, to).Attr("fontname", "helvetica")
	}

	return graph
}
