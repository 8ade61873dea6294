package analyzer

import (
	"context"
	"regexp"

	"sunwell/internal/graph"
)

// typeErrorLineRE matches `go build`-style compiler diagnostics:
//
//	internal/graph/graph.go:88:6: undefined: foo
var typeErrorLineRE = regexp.MustCompile(`^(\S+\.\w+):\d+:\d+:`)

// TypesAnalyzer flags artifacts whose package fails to type-check.
type TypesAnalyzer struct {
	tc toolchain
}

func (a *TypesAnalyzer) Name() string { return "types" }

func (a *TypesAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
	signals := make(map[string]Signal)
	if !a.tc.available() {
		warnMissingOnce(a.Name())
		return signals, nil
	}

	result, err := a.tc.run(ctx, projectRoot)
	if err != nil && result == nil {
		return signals, nil
	}
	byFile := byRelPath(projectRoot, artifacts)
	counts := make(map[string]int)
	for _, line := range splitLines(result.Output()) {
		m := typeErrorLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		counts[normalizeRel(m[1])]++
	}

	for file, count := range counts {
		id, ok := byFile[file]
		if !ok || count == 0 {
			continue
		}
		signals[id] = Signal{
			ArtifactID: id,
			Kind:       SignalMissingTypes,
			Severity:   minClamp1(float64(count) / 5),
			Evidence:   map[string]interface{}{"count": count},
		}
	}
	return signals, nil
}
