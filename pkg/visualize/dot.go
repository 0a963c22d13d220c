package visualize

import "github.com/l7mp/materialite/pkg/materialite"

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate renders the graph in the DOT language.
func (d *DotGenerator) Generate(g *materialite.Graph) string {
	return BuildDotGraph(g).String()
}
