// Package cascade computes the preview of a regeneration cascade rooted
// at a weak artifact: which other artifacts are impacted, in what wave
// order, and at what estimated effort and risk.
package cascade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"sunwell/internal/analyzer"
	"sunwell/internal/config"
	"sunwell/internal/contract"
	"sunwell/internal/graph"
)

// EstimatedEffort buckets a cascade by its total impacted artifact count.
type EstimatedEffort string

const (
	EffortSmall  EstimatedEffort = "small"
	EffortMedium EstimatedEffort = "medium"
	EffortLarge  EstimatedEffort = "large"
	EffortEpic   EstimatedEffort = "epic"
)

func estimateEffort(totalImpacted int) EstimatedEffort {
	switch {
	case totalImpacted <= 3:
		return EffortSmall
	case totalImpacted <= 10:
		return EffortMedium
	case totalImpacted <= 25:
		return EffortLarge
	default:
		return EffortEpic
	}
}

// Preview is the pure value a planning pass produces for one weak node.
type Preview struct {
	WeakNode             string                        `json:"weak_node"`
	DirectDependents     []string                      `json:"direct_dependents"`
	TransitiveDependents []string                      `json:"transitive_dependents"`
	TotalImpacted        int                           `json:"total_impacted"`
	Waves                [][]string                    `json:"waves"`
	EstimatedEffort      EstimatedEffort               `json:"estimated_effort"`
	RiskAssessment       string                        `json:"risk_assessment"`
	Contracts            map[string]*contract.Contract `json:"contracts"`
	CascadeTooLarge      bool                          `json:"cascade_too_large"`
	CycleInCascade       bool                          `json:"cycle_in_cascade"`
	// Deltas is reserved for dry-run/delta previews and is always nil today;
	// its presence keeps the wire format forward-compatible.
	Deltas map[string]string `json:"deltas,omitempty"`
}

// Planner computes Preview values against an artifact graph.
type Planner struct {
	Limits    config.CascadeLimits
	Extractor *contract.Registry
}

// NewPlanner builds a Planner with the default extractor registry.
func NewPlanner(limits config.CascadeLimits) *Planner {
	return &Planner{Limits: limits, Extractor: contract.NewRegistry()}
}

// Preview computes the cascade preview rooted at weakID.
func (p *Planner) Preview(ctx context.Context, g *graph.Graph, weakID string, scores []analyzer.WeaknessScore, projectRoot string) (*Preview, error) {
	direct, err := g.Dependents(weakID)
	if err != nil {
		return nil, fmt.Errorf("cascade preview: %w", err)
	}
	transitive, err := g.TransitiveDependents(weakID)
	if err != nil {
		return nil, fmt.Errorf("cascade preview: %w", err)
	}

	totalImpacted := len(transitive) + 1
	waves, cyclic := g.TopologicalWaves(append(append([]string{}, transitive...), weakID), weakID)

	longestChain := len(waves)
	tooLarge := totalImpacted > p.Limits.MaxCascadeSize || longestChain > p.Limits.MaxCascadeDepth

	contracts, err := p.extractContracts(ctx, g, projectRoot, append([]string{weakID}, transitive...))
	if err != nil {
		return nil, err
	}

	riskScoreByID := make(map[string]analyzer.CascadeRisk, len(scores))
	for _, s := range scores {
		riskScoreByID[s.ArtifactID] = s.CascadeRisk
	}

	preview := &Preview{
		WeakNode:             weakID,
		DirectDependents:     direct,
		TransitiveDependents: transitive,
		TotalImpacted:        totalImpacted,
		Waves:                waves,
		EstimatedEffort:      estimateEffort(totalImpacted),
		Contracts:            contracts,
		CascadeTooLarge:      tooLarge,
		CycleInCascade:       cyclic,
	}
	preview.RiskAssessment = assessRisk(preview, g, riskScoreByID)
	return preview, nil
}

// extractContracts runs the extractor over every impacted artifact's file
// concurrently, tolerating missing files and unparseable contracts: a
// failed extraction simply leaves that artifact absent from the map.
func (p *Planner) extractContracts(ctx context.Context, g *graph.Graph, projectRoot string, ids []string) (map[string]*contract.Contract, error) {
	type result struct {
		id string
		c  *contract.Contract
	}
	results := make([]result, len(ids))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		i, id := i, id
		grp.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			art, err := g.Get(id)
			if err != nil || art.IsVirtual() {
				return nil
			}
			path := art.ProducesFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(projectRoot, path)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return nil // file unavailable: contract unavailable, non-blocking
			}
			c, err := p.Extractor.Extract(art.ProducesFile, src)
			if err != nil || c == nil {
				return nil // extraction failed: tolerated per the contract extractor's edge cases
			}
			c.ArtifactID = id
			results[i] = result{id: id, c: c}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("cascade preview: contract extraction: %w", err)
	}

	out := make(map[string]*contract.Contract)
	for _, r := range results {
		if r.c != nil {
			out[r.id] = r.c
		}
	}
	return out, nil
}

// assessRisk builds a deterministic, human-readable risk summary from the
// preview's shape and any critical weakness scores among the impacted
// artifacts.
func assessRisk(preview *Preview, g *graph.Graph, riskByID map[string]analyzer.CascadeRisk) string {
	var factors []string
	if preview.TotalImpacted > 20 {
		factors = append(factors, fmt.Sprintf("large cascade (%d artifacts impacted)", preview.TotalImpacted))
	}
	fanOut, err := g.FanOut(preview.WeakNode)
	if err == nil && fanOut > 10 {
		factors = append(factors, fmt.Sprintf("high fan-out (%d)", fanOut))
	}
	var critical []string
	for _, id := range append([]string{preview.WeakNode}, preview.TransitiveDependents...) {
		if riskByID[id] == analyzer.RiskCritical {
			critical = append(critical, id)
		}
	}
	if len(critical) > 0 {
		sort.Strings(critical)
		factors = append(factors, fmt.Sprintf("critical weakness score present in %s", strings.Join(critical, ", ")))
	}
	if preview.CascadeTooLarge {
		factors = append(factors, "exceeds configured cascade limits")
	}
	if preview.CycleInCascade {
		factors = append(factors, "cycle detected in cascade subgraph")
	}
	if len(factors) == 0 {
		return "low risk: small, acyclic cascade with no critical signals"
	}
	return strings.Join(factors, "; ")
}
