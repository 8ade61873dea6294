package analyzer

import (
	"context"
	"regexp"
	"strconv"

	"sunwell/internal/graph"
)

// gocycloLineRE matches gocyclo's default output format:
//
//	14 graph (*Graph).TopologicalWaves internal/graph/waves.go:11:1
var gocycloLineRE = regexp.MustCompile(`^(\d+)\s+\S+\s+\S+\s+(\S+):\d+:\d+`)

// ComplexityAnalyzer flags artifacts whose maximum function complexity
// exceeds the configured threshold.
type ComplexityAnalyzer struct {
	tc        toolchain
	threshold int
}

func (a *ComplexityAnalyzer) Name() string { return "complexity" }

func (a *ComplexityAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
	signals := make(map[string]Signal)
	if !a.tc.available() {
		warnMissingOnce(a.Name())
		return signals, nil
	}

	result, err := a.tc.run(ctx, projectRoot)
	if err != nil {
		return signals, nil
	}

	byFile := byRelPath(projectRoot, artifacts)
	maxComplexity := make(map[string]int)
	for _, line := range splitLines(result.Output()) {
		m := gocycloLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		c, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		file := normalizeRel(m[2])
		if c > maxComplexity[file] {
			maxComplexity[file] = c
		}
	}

	for file, max := range maxComplexity {
		if max <= a.threshold {
			continue
		}
		id, ok := byFile[file]
		if !ok {
			continue
		}
		signals[id] = Signal{
			ArtifactID: id,
			Kind:       SignalHighComplexity,
			Severity:   minClamp1(float64(max-a.threshold) / 10),
			Evidence: map[string]interface{}{
				"complexity": max,
				"threshold":  a.threshold,
			},
		}
	}
	return signals, nil
}
