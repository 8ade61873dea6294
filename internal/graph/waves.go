package graph

import "sort"

// TopologicalWaves computes the wave decomposition of subset, rooted at
// root: wave[0] = {root}; for k>=1, wave[k] is every id in subset not yet
// placed whose requires (intersected with subset ∪ {root}) are already
// fully placed in earlier waves. If a non-empty remainder can't be placed
// (a cycle within the cascade subgraph), the remainder is returned as a
// single final wave in insertion order and cyclic is true.
func (g *Graph) TopologicalWaves(subset []string, root string) (waves [][]string, cyclic bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSubset := make(map[string]bool, len(subset)+1)
	inSubset[root] = true
	for _, id := range subset {
		inSubset[id] = true
	}

	completed := map[string]bool{root: true}
	waves = append(waves, []string{root})

	remaining := make([]string, 0, len(subset))
	for _, id := range subset {
		if id != root {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)

	for len(remaining) > 0 {
		var next []string
		var stillRemaining []string
		for _, id := range remaining {
			a := g.artifacts[id]
			ready := true
			if a != nil {
				for _, req := range a.Requires {
					if inSubset[req] && !completed[req] {
						ready = false
						break
					}
				}
			}
			if ready {
				next = append(next, id)
			} else {
				stillRemaining = append(stillRemaining, id)
			}
		}
		if len(next) == 0 {
			// Cycle within the cascade subgraph: place everything left in
			// one final wave, insertion order, and surface the warning.
			waves = append(waves, orderedBy(stillRemaining, g.order))
			return waves, true
		}
		sort.Strings(next)
		waves = append(waves, next)
		for _, id := range next {
			completed[id] = true
		}
		remaining = stillRemaining
	}

	return waves, false
}

// orderedBy returns items sorted according to their position in order,
// falling back to lexicographic for items order doesn't mention.
func orderedBy(items []string, order []string) []string {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	out := append([]string(nil), items...)
	sort.Slice(out, func(i, j int) bool {
		pi, oki := pos[out[i]]
		pj, okj := pos[out[j]]
		if oki && okj {
			return pi < pj
		}
		if oki != okj {
			return oki
		}
		return out[i] < out[j]
	})
	return out
}
