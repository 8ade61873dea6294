// Package graph implements the artifact dependency graph: the typed DAG of
// artifacts, their dependency ("requires") edges, and the required
// integrations they must realize against their dependencies. All mutation
// goes through Graph's methods so invariants (acyclic, no dangling
// references) can never be violated in place.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"sunwell/internal/logging"
)

// IntegrationKind is how an artifact wires to one of its dependencies.
type IntegrationKind string

const (
	IntegrationImport   IntegrationKind = "import"
	IntegrationCall     IntegrationKind = "call"
	IntegrationRoute    IntegrationKind = "route"
	IntegrationConfig   IntegrationKind = "config"
	IntegrationInherit  IntegrationKind = "inherit"
	IntegrationRegister IntegrationKind = "register"
)

// RequiredIntegration declares how an artifact must wire to a dependency.
type RequiredIntegration struct {
	TargetArtifactID    string          `json:"target_artifact_id"`
	Kind                IntegrationKind `json:"kind"`
	TargetFile          string          `json:"target_file"`
	VerificationPattern string          `json:"verification_pattern,omitempty"`
	ContractExpectation string          `json:"contract_expectation,omitempty"`
}

// Artifact is one unit of source whose regeneration can be scheduled.
type Artifact struct {
	ID               string                `json:"id"`
	ProducesFile     string                `json:"produces_file,omitempty"`
	Requires         []string              `json:"requires,omitempty"`
	Integrations     []RequiredIntegration `json:"integrations,omitempty"`
	ContractDeclared string                `json:"contract_declared,omitempty"`
	Tier             string                `json:"tier,omitempty"`
	Tags             []string              `json:"tags,omitempty"`
}

// IsVirtual reports whether the artifact has no backing file.
func (a *Artifact) IsVirtual() bool { return a.ProducesFile == "" }

// Clone returns a deep copy, so callers can't mutate graph-owned state.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Requires = append([]string(nil), a.Requires...)
	c.Tags = append([]string(nil), a.Tags...)
	c.Integrations = append([]RequiredIntegration(nil), a.Integrations...)
	return &c
}

// Graph is the artifact dependency graph.
type Graph struct {
	mu sync.RWMutex

	artifacts map[string]*Artifact
	// dependents caches direct successors: dependents[x] = { y : x ∈ y.Requires }.
	dependents map[string]map[string]bool
	// order preserves insertion order for deterministic iteration.
	order []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		artifacts:  make(map[string]*Artifact),
		dependents: make(map[string]map[string]bool),
	}
}

// Add inserts an artifact, rejecting duplicates, dangling requires, and
// cycles. On any error the graph is left entirely unchanged.
func (g *Graph) Add(a *Artifact) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.artifacts[a.ID]; exists {
		return &DuplicateIDError{ID: a.ID}
	}
	for _, req := range a.Requires {
		if _, exists := g.artifacts[req]; !exists {
			return &DanglingRequiresError{ID: a.ID, Requires: req}
		}
	}
	for _, i := range a.Integrations {
		if !containsStr(a.Requires, i.TargetArtifactID) {
			return fmt.Errorf("artifact %q declares integration to %q which is not in requires", a.ID, i.TargetArtifactID)
		}
	}

	clone := a.Clone()
	g.artifacts[clone.ID] = clone
	if g.dependents[clone.ID] == nil {
		g.dependents[clone.ID] = make(map[string]bool)
	}
	for _, req := range clone.Requires {
		if g.dependents[req] == nil {
			g.dependents[req] = make(map[string]bool)
		}
		g.dependents[req][clone.ID] = true
	}
	g.order = append(g.order, clone.ID)

	if g.hasCycleFrom(clone.ID, make(map[string]bool), make(map[string]bool)) {
		// Roll back — this artifact completed the first cycle.
		g.removeLocked(clone.ID)
		return &CycleDetectedError{ID: clone.ID}
	}

	logging.Get(logging.CategoryGraph).Debug("added artifact %s (requires=%v)", clone.ID, clone.Requires)
	return nil
}

// Update replaces an existing artifact's requires/integrations/metadata in
// place (a re-scan pass discovering a changed dependency set). Subject to
// the same invariants as Add: dangling requires or a newly introduced
// cycle leave the graph unchanged.
func (g *Graph) Update(a *Artifact) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	old, exists := g.artifacts[a.ID]
	if !exists {
		return &NotFoundError{ID: a.ID}
	}
	for _, req := range a.Requires {
		if req != a.ID {
			if _, ok := g.artifacts[req]; !ok {
				return &DanglingRequiresError{ID: a.ID, Requires: req}
			}
		}
	}
	for _, i := range a.Integrations {
		if !containsStr(a.Requires, i.TargetArtifactID) {
			return fmt.Errorf("artifact %q declares integration to %q which is not in requires", a.ID, i.TargetArtifactID)
		}
	}

	// Apply provisionally so cycle detection sees the new edges, but keep
	// enough of `old` to roll back exactly on failure.
	for _, req := range old.Requires {
		delete(g.dependents[req], a.ID)
	}
	clone := a.Clone()
	g.artifacts[a.ID] = clone
	for _, req := range clone.Requires {
		if g.dependents[req] == nil {
			g.dependents[req] = make(map[string]bool)
		}
		g.dependents[req][a.ID] = true
	}

	if g.hasCycleFrom(a.ID, make(map[string]bool), make(map[string]bool)) {
		// Roll back to the prior edge set.
		for _, req := range clone.Requires {
			delete(g.dependents[req], a.ID)
		}
		g.artifacts[a.ID] = old
		for _, req := range old.Requires {
			if g.dependents[req] == nil {
				g.dependents[req] = make(map[string]bool)
			}
			g.dependents[req][a.ID] = true
		}
		return &CycleDetectedError{ID: a.ID}
	}

	logging.Get(logging.CategoryGraph).Debug("updated artifact %s (requires=%v)", a.ID, clone.Requires)
	return nil
}

// Remove deletes an artifact. It fails if any remaining artifact still
// requires it.
func (g *Graph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.artifacts[id]; !exists {
		return &NotFoundError{ID: id}
	}
	if deps := g.dependents[id]; len(deps) > 0 {
		return fmt.Errorf("cannot remove %q: %d artifacts still require it", id, len(deps))
	}
	g.removeLocked(id)
	return nil
}

func (g *Graph) removeLocked(id string) {
	a := g.artifacts[id]
	if a == nil {
		return
	}
	for _, req := range a.Requires {
		delete(g.dependents[req], id)
	}
	delete(g.artifacts, id)
	delete(g.dependents, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Get returns a defensive copy of the artifact with the given id.
func (g *Graph) Get(id string) (*Artifact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.artifacts[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return a.Clone(), nil
}

// Len returns the number of artifacts in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.artifacts)
}

// All returns every artifact in insertion order.
func (g *Graph) All() []*Artifact {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Artifact, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.artifacts[id].Clone())
	}
	return out
}

// Dependents returns the direct successors of id (artifacts that require it).
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.artifacts[id]; !ok {
		return nil, &NotFoundError{ID: id}
	}
	return g.sortedDependentsLocked(id), nil
}

func (g *Graph) sortedDependentsLocked(id string) []string {
	set := g.dependents[id]
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// TransitiveDependents returns the BFS closure of dependents, in
// deterministic order: insertion (discovery) order, ties broken
// lexicographically, excluding id itself.
func (g *Graph) TransitiveDependents(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.artifacts[id]; !ok {
		return nil, &NotFoundError{ID: id}
	}
	return g.transitiveDependentsLocked(id), nil
}

func (g *Graph) transitiveDependentsLocked(id string) []string {
	visited := map[string]bool{id: true}
	var out []string
	queue := g.sortedDependentsLocked(id)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		out = append(out, next)
		queue = append(queue, g.sortedDependentsLocked(next)...)
	}
	return out
}

// FanOut is |TransitiveDependents(id)|.
func (g *Graph) FanOut(id string) (int, error) {
	deps, err := g.TransitiveDependents(id)
	if err != nil {
		return 0, err
	}
	return len(deps), nil
}

// Depth returns the longest inbound chain length (number of edges on the
// longest path of requires pointing into id).
func (g *Graph) Depth(id string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.artifacts[id]; !ok {
		return 0, &NotFoundError{ID: id}
	}
	memo := make(map[string]int)
	return g.depthLocked(id, memo, make(map[string]bool)), nil
}

func (g *Graph) depthLocked(id string, memo map[string]int, visiting map[string]bool) int {
	if d, ok := memo[id]; ok {
		return d
	}
	a := g.artifacts[id]
	if a == nil || len(a.Requires) == 0 || visiting[id] {
		memo[id] = 0
		return 0
	}
	visiting[id] = true
	best := 0
	reqs := append([]string(nil), a.Requires...)
	sort.Strings(reqs)
	for _, req := range reqs {
		d := 1 + g.depthLocked(req, memo, visiting)
		if d > best {
			best = d
		}
	}
	visiting[id] = false
	memo[id] = best
	return best
}

// InvalidationClosure returns the union of TransitiveDependents over every
// id in seeds. excludeSeeds controls whether the seeds themselves are
// included in the result.
func (g *Graph) InvalidationClosure(seeds []string, excludeSeeds bool) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, s := range seeds {
		if _, ok := g.artifacts[s]; !ok {
			return nil, &NotFoundError{ID: s}
		}
		if !excludeSeeds && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
		for _, d := range g.transitiveDependentsLocked(s) {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// hasCycleFrom does a DFS from id over the dependency ("requires") edges,
// reporting whether a cycle is reachable. visiting tracks the current DFS
// stack; done memoizes nodes already proven cycle-free.
func (g *Graph) hasCycleFrom(id string, visiting, done map[string]bool) bool {
	if done[id] {
		return false
	}
	if visiting[id] {
		return true
	}
	visiting[id] = true
	a := g.artifacts[id]
	if a != nil {
		for _, req := range a.Requires {
			if g.hasCycleFrom(req, visiting, done) {
				return true
			}
		}
	}
	visiting[id] = false
	done[id] = true
	return false
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Snapshot serializes the graph's artifacts (insertion order) to JSON,
// independent of any file on disk. Two snapshots of the same logical graph
// are bytewise equal, which round-trip tests rely on.
func (g *Graph) Snapshot() ([]byte, error) {
	g.mu.RLock()
	artifacts := make([]*Artifact, 0, len(g.order))
	for _, id := range g.order {
		artifacts = append(artifacts, g.artifacts[id])
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return data, nil
}

// Save persists the graph as JSON (artifacts in insertion order).
func (g *Graph) Save(path string) error {
	data, err := g.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

// Load reads a graph previously written by Save, re-adding artifacts in
// file order so requires-before-dependent ordering is preserved.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var artifacts []*Artifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	g := New()
	for _, a := range artifacts {
		if err := g.Add(a); err != nil {
			return nil, fmt.Errorf("reloading artifact %q: %w", a.ID, err)
		}
	}
	return g, nil
}
