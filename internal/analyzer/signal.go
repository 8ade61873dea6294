// Package analyzer runs the static analyzers that feed per-artifact
// weakness signals (coverage, complexity, lint, types, staleness,
// failure-proneness) and aggregates them into ranked weakness scores.
package analyzer

import (
	"math"
	"sort"
)

// SignalKind enumerates the supported weakness observations.
type SignalKind string

const (
	SignalLowCoverage    SignalKind = "low_coverage"
	SignalHighComplexity SignalKind = "high_complexity"
	SignalLintErrors     SignalKind = "lint_errors"
	SignalStaleCode      SignalKind = "stale_code"
	SignalFailureProne   SignalKind = "failure_prone"
	SignalMissingTypes   SignalKind = "missing_types"
	SignalBrokenContract SignalKind = "broken_contract"
)

// Signal is one observation attached to one artifact.
type Signal struct {
	ArtifactID string                 `json:"artifact_id"`
	Kind       SignalKind             `json:"kind"`
	Severity   float64                `json:"severity"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
}

// CascadeRisk is the derived risk label for a WeaknessScore.
type CascadeRisk string

const (
	RiskLow      CascadeRisk = "low"
	RiskMedium   CascadeRisk = "medium"
	RiskHigh     CascadeRisk = "high"
	RiskCritical CascadeRisk = "critical"
)

// WeaknessScore is the aggregation of every signal observed for one
// artifact.
type WeaknessScore struct {
	ArtifactID    string      `json:"artifact_id"`
	Signals       []Signal    `json:"signals"`
	FanOut        int         `json:"fan_out"`
	Depth         int         `json:"depth"`
	TotalSeverity float64     `json:"total_severity"`
	CascadeRisk   CascadeRisk `json:"cascade_risk"`
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func cascadeRiskLabel(totalSeverity float64, fanOut int) CascadeRisk {
	boosted := totalSeverity * (1 + float64(fanOut)/10)
	switch {
	case boosted > 2.0:
		return RiskCritical
	case boosted > 1.0:
		return RiskHigh
	case boosted > 0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FanOutProvider resolves fan_out/depth for an artifact id, backed by the
// artifact graph. It's an interface (rather than a direct *graph.Graph
// dependency) so the scorer stays pure and independently testable.
type FanOutProvider interface {
	FanOut(id string) (int, error)
	Depth(id string) (int, error)
	HasFile(id string) bool
}

// Score groups signals by artifact, applies the fan-out-weighted severity
// formula, and returns scores sorted by total_severity descending (ties
// broken by higher fan_out, then lexicographic id). Virtual artifacts
// (HasFile == false) are skipped. Score is a pure function: it performs no
// I/O of its own, delegating only to the FanOutProvider for structural
// facts already computed by the graph.
func Score(signals []Signal, provider FanOutProvider) ([]WeaknessScore, error) {
	byArtifact := make(map[string][]Signal)
	var order []string
	for _, s := range signals {
		if _, ok := byArtifact[s.ArtifactID]; !ok {
			order = append(order, s.ArtifactID)
		}
		byArtifact[s.ArtifactID] = append(byArtifact[s.ArtifactID], s)
	}

	var scores []WeaknessScore
	for _, id := range order {
		if !provider.HasFile(id) {
			continue
		}
		fanOut, err := provider.FanOut(id)
		if err != nil {
			return nil, err
		}
		depth, err := provider.Depth(id)
		if err != nil {
			return nil, err
		}

		sigs := byArtifact[id]
		severities := make([]float64, len(sigs))
		for i, s := range sigs {
			severities[i] = s.Severity
		}
		totalSeverity := clamp01(mean(severities) * (1 + 0.05*float64(fanOut)))

		scores = append(scores, WeaknessScore{
			ArtifactID:    id,
			Signals:       sigs,
			FanOut:        fanOut,
			Depth:         depth,
			TotalSeverity: totalSeverity,
			CascadeRisk:   cascadeRiskLabel(totalSeverity, fanOut),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].TotalSeverity != scores[j].TotalSeverity {
			return scores[i].TotalSeverity > scores[j].TotalSeverity
		}
		if scores[i].FanOut != scores[j].FanOut {
			return scores[i].FanOut > scores[j].FanOut
		}
		return scores[i].ArtifactID < scores[j].ArtifactID
	})
	return scores, nil
}

// minClamp1 bounds severity contributions the way the spec's per-analyzer
// formulas do: min(1, x).
func minClamp1(x float64) float64 { return math.Min(1, x) }
