package analyzer

import (
	"context"
	"regexp"

	"sunwell/internal/graph"
)

// lintLineRE matches `go vet`/golangci-lint-style diagnostic lines:
//
//	internal/graph/waves.go:42:3: unused variable x
var lintLineRE = regexp.MustCompile(`^(\S+\.\w+):\d+:\d+:`)

// LintAnalyzer flags artifacts with one or more linter findings.
type LintAnalyzer struct {
	tc toolchain
}

func (a *LintAnalyzer) Name() string { return "lint" }

func (a *LintAnalyzer) Run(ctx context.Context, projectRoot string, artifacts []*graph.Artifact) (map[string]Signal, error) {
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
		m := lintLineRE.FindStringSubmatch(line)
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
			Kind:       SignalLintErrors,
			Severity:   minClamp1(float64(count) / 10),
			Evidence:   map[string]interface{}{"count": count},
		}
	}
	return signals, nil
}
