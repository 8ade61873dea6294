package analyzer

import "sunwell/internal/graph"

// GraphProvider adapts a *graph.Graph to FanOutProvider.
type GraphProvider struct {
	Graph *graph.Graph
}

func (p GraphProvider) FanOut(id string) (int, error) { return p.Graph.FanOut(id) }
func (p GraphProvider) Depth(id string) (int, error)  { return p.Graph.Depth(id) }

func (p GraphProvider) HasFile(id string) bool {
	a, err := p.Graph.Get(id)
	if err != nil {
		return false
	}
	return !a.IsVirtual()
}
