package materialite

// GraphNode is a vertex of the dataflow graph.
type GraphNode struct {
	ID   string
	Name string
	Kind NodeKind
}

// GraphEdge connects a producer to one of its readers.
type GraphEdge struct {
	From string
	To   string
}

// Graph is a snapshot of the live dataflow graph.
type Graph struct {
	Name  string
	Nodes []GraphNode
	Edges []GraphEdge
}

// Graph returns the nodes reachable from the registered sources and the edges between them.
// Operators and views that were pruned or detached do not show up.
func (m *Materialite) Graph() *Graph {
	g := &Graph{Name: m.name}
	seen := map[GraphEdge]bool{}
	m.walk(func(n node) {
		g.Nodes = append(g.Nodes, GraphNode{ID: n.ID(), Name: n.Name(), Kind: n.Kind()})
		for _, c := range n.downstream() {
			e := GraphEdge{From: n.ID(), To: c.ID()}
			if !seen[e] {
				seen[e] = true
				g.Edges = append(g.Edges, e)
			}
		}
	})
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}
